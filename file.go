package smbfs

import (
	"context"
	"io"
	"io/fs"
	"time"
)

// File is an open handle on a Tree: a FileID plus the read/write offset a
// caller's sequential Read/Write calls advance.
type File struct {
	tree   *Tree
	path   string
	fileID FileID
	offset int64
	closed bool
}

// Read reads up to len(p) bytes starting at the file's current offset,
// chunked to the negotiated MaxReadSize (§4.5).
func (f *File) Read(p []byte) (n int, err error) {
	if f.closed {
		return 0, fs.ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	chunk := len(p)
	if max := int(f.tree.session.client.MaxReadSize); max > 0 && chunk > max {
		chunk = max
	}

	req := buildReadRequest(f.fileID, uint64(f.offset), uint32(chunk))
	header, payload, err := f.tree.session.send(context.Background(), SMB2_READ, f.tree.currentTreeID(), req)
	if err != nil {
		return 0, wrapPathError("read", f.path, err)
	}
	if header.Status == NTStatus(STATUS_END_OF_FILE) {
		return 0, io.EOF
	}
	if header.Status != STATUS_SUCCESS {
		return 0, wrapPathError("read", f.path, convertError(&ProtocolError{Command: SMB2_READ, Status: header.Status}))
	}

	data, err := parseReadResponse(payload)
	if err != nil {
		return 0, err
	}

	n = copy(p, data)
	f.offset += int64(n)
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write writes len(p) bytes at the file's current offset, chunked to the
// negotiated MaxWriteSize (§4.5).
func (f *File) Write(p []byte) (n int, err error) {
	if f.closed {
		return 0, fs.ErrClosed
	}

	max := int(f.tree.session.client.MaxWriteSize)
	for n < len(p) {
		end := len(p)
		if max > 0 && end-n > max {
			end = n + max
		}
		chunk := p[n:end]

		req := buildWriteRequest(f.fileID, uint64(f.offset), chunk)
		header, payload, err := f.tree.session.send(context.Background(), SMB2_WRITE, f.tree.currentTreeID(), req)
		if err != nil {
			return n, wrapPathError("write", f.path, err)
		}
		if header.Status != STATUS_SUCCESS {
			return n, wrapPathError("write", f.path, convertError(&ProtocolError{Command: SMB2_WRITE, Status: header.Status}))
		}

		written, err := parseWriteResponse(payload)
		if err != nil {
			return n, err
		}

		n += int(written)
		f.offset += int64(written)
		if int(written) < len(chunk) {
			break
		}
	}
	return n, nil
}

// Seek sets the offset for the next Read or Write.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, fs.ErrClosed
	}

	var newOffset int64
	switch whence {
	case io.SeekStart:
		newOffset = offset
	case io.SeekCurrent:
		newOffset = f.offset + offset
	case io.SeekEnd:
		stat, err := f.Stat()
		if err != nil {
			return 0, err
		}
		newOffset = stat.Size() + offset
	default:
		return 0, wrapPathError("seek", f.path, ErrInvalidMessage)
	}

	if newOffset < 0 {
		return 0, wrapPathError("seek", f.path, ErrInvalidMessage)
	}
	f.offset = newOffset
	return newOffset, nil
}

// Sync flushes any server-side write buffering for this handle.
func (f *File) Sync() error {
	if f.closed {
		return fs.ErrClosed
	}
	req := buildFlushRequest(f.fileID)
	header, payload, err := f.tree.session.send(context.Background(), SMB2_FLUSH, f.tree.currentTreeID(), req)
	if err != nil {
		return wrapPathError("sync", f.path, err)
	}
	if header.Status != STATUS_SUCCESS {
		return wrapPathError("sync", f.path, convertError(&ProtocolError{Command: SMB2_FLUSH, Status: header.Status}))
	}
	return parseFlushResponse(payload)
}

// Truncate sets the file's size via a SET_INFO FileEndOfFileInformation,
// independent of the handle's current offset.
func (f *File) Truncate(size int64) error {
	if f.closed {
		return fs.ErrClosed
	}
	buf := buildFileEndOfFileBuffer(uint64(size))
	req := buildSetInfoRequest(f.fileID, 1, 20, buf) // FileEndOfFileInformation = class 20
	header, payload, err := f.tree.session.send(context.Background(), SMB2_SET_INFO, f.tree.currentTreeID(), req)
	if err != nil {
		return wrapPathError("truncate", f.path, err)
	}
	if header.Status != STATUS_SUCCESS {
		return wrapPathError("truncate", f.path, convertError(&ProtocolError{Command: SMB2_SET_INFO, Status: header.Status}))
	}
	return parseSetInfoResponse(payload)
}

// Close closes the handle.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	return f.tree.close(context.Background(), f.fileID, false)
}

// Stat returns the handle's current file information.
func (f *File) Stat() (fs.FileInfo, error) {
	if f.closed {
		return nil, fs.ErrClosed
	}
	req := buildQueryInfoRequest(f.fileID, 1, FileAllInformation, 4096)
	header, payload, err := f.tree.session.send(context.Background(), SMB2_QUERY_INFO, f.tree.currentTreeID(), req)
	if err != nil {
		return nil, wrapPathError("stat", f.path, err)
	}
	if header.Status != STATUS_SUCCESS {
		return nil, wrapPathError("stat", f.path, convertError(&ProtocolError{Command: SMB2_QUERY_INFO, Status: header.Status}))
	}
	stat, err := parseQueryInfoResponse(payload)
	if err != nil {
		return nil, err
	}
	return &fileInfo{name: baseName(f.path), stat: stat}, nil
}

// fileInfo implements fs.FileInfo over a parsed FileStat.
type fileInfo struct {
	stat *FileStat
	name string
}

func (fi *fileInfo) Name() string { return fi.name }

func (fi *fileInfo) Size() int64 { return int64(fi.stat.EndOfFile) }

func (fi *fileInfo) Mode() fs.FileMode {
	return attributesToMode(fi.stat.FileAttributes, fi.stat.Directory)
}

func (fi *fileInfo) ModTime() time.Time { return fi.stat.LastWriteTime }

func (fi *fileInfo) IsDir() bool { return fi.stat.Directory }

func (fi *fileInfo) Sys() any { return fi.stat }

// WindowsAttributes returns the file's Windows attributes.
func (fi *fileInfo) WindowsAttributes() *WindowsAttributes {
	return NewWindowsAttributes(fi.stat.FileAttributes)
}

// dirEntry implements fs.DirEntry over one QUERY_DIRECTORY result.
type dirEntry struct {
	entry DirEntry
}

func (de *dirEntry) Name() string { return de.entry.Name }

func (de *dirEntry) IsDir() bool { return de.entry.IsDir() }

func (de *dirEntry) Type() fs.FileMode {
	return attributesToMode(de.entry.FileAttributes, de.entry.IsDir()).Type()
}

func (de *dirEntry) Info() (fs.FileInfo, error) {
	return &fileInfo{
		name: de.entry.Name,
		stat: &FileStat{
			LastWriteTime:  de.entry.LastWriteTime,
			FileAttributes: de.entry.FileAttributes,
			EndOfFile:      de.entry.EndOfFile,
			Directory:      de.entry.IsDir(),
		},
	}, nil
}
