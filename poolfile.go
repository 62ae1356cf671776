package smbfs

import (
	"io"
	"io/fs"
)

// PoolFile is the handle FileSystem.Open/OpenFile/Create hand back to
// callers: an SMBFile borrowed from a pooled connection, plus the
// bookkeeping needed to return that connection to the pool on Close and
// to satisfy absfs.File's richer surface (ReadAt/WriteAt/Readdir/...) on
// top of the narrower SMBFile interface.
type PoolFile struct {
	fs   *FileSystem
	conn *pooledConn
	file SMBFile
	path string

	dirEntries []fs.DirEntry
	dirRead    bool
	dirPos     int
}

// Name returns the path the file was opened with.
func (f *PoolFile) Name() string {
	return f.path
}

// Read reads up to len(p) bytes into p.
func (f *PoolFile) Read(p []byte) (n int, err error) {
	if f.file == nil {
		return 0, fs.ErrClosed
	}
	n, err = f.file.Read(p)
	if err != nil && err != io.EOF {
		return n, wrapPathError("read", f.path, err)
	}
	return n, err
}

// Write writes len(p) bytes from p to the file.
func (f *PoolFile) Write(p []byte) (n int, err error) {
	if f.file == nil {
		return 0, fs.ErrClosed
	}
	n, err = f.file.Write(p)
	if err != nil {
		return n, wrapPathError("write", f.path, err)
	}
	f.fs.cache.invalidate(f.path)
	return n, nil
}

// Seek sets the offset for the next Read or Write on the file.
func (f *PoolFile) Seek(offset int64, whence int) (int64, error) {
	if f.file == nil {
		return 0, fs.ErrClosed
	}
	newOffset, err := f.file.Seek(offset, whence)
	if err != nil {
		return 0, wrapPathError("seek", f.path, err)
	}
	return newOffset, nil
}

// ReadAt reads len(p) bytes starting at off, restoring the prior offset
// afterward.
func (f *PoolFile) ReadAt(p []byte, off int64) (n int, err error) {
	if f.file == nil {
		return 0, fs.ErrClosed
	}
	cur, err := f.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, wrapPathError("read", f.path, err)
	}
	defer f.file.Seek(cur, io.SeekStart)

	if _, err := f.file.Seek(off, io.SeekStart); err != nil {
		return 0, wrapPathError("read", f.path, err)
	}
	return f.Read(p)
}

// WriteAt writes len(p) bytes starting at off, restoring the prior offset
// afterward.
func (f *PoolFile) WriteAt(p []byte, off int64) (n int, err error) {
	if f.file == nil {
		return 0, fs.ErrClosed
	}
	cur, err := f.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, wrapPathError("write", f.path, err)
	}
	defer f.file.Seek(cur, io.SeekStart)

	if _, err := f.file.Seek(off, io.SeekStart); err != nil {
		return 0, wrapPathError("write", f.path, err)
	}
	return f.Write(p)
}

// WriteString writes s to the file.
func (f *PoolFile) WriteString(s string) (n int, err error) {
	return f.Write([]byte(s))
}

// Sync has no server-side effect: writes over this client are already
// acknowledged synchronously by the server's WRITE response.
func (f *PoolFile) Sync() error {
	return nil
}

// Truncate sets the file's size, independent of the handle's offset.
func (f *PoolFile) Truncate(size int64) error {
	if f.file == nil {
		return fs.ErrClosed
	}
	t, ok := f.file.(interface{ Truncate(int64) error })
	if !ok {
		return wrapPathError("truncate", f.path, ErrNotImplemented)
	}
	if err := t.Truncate(size); err != nil {
		return wrapPathError("truncate", f.path, err)
	}
	f.fs.cache.invalidate(f.path)
	return nil
}

// Close closes the file and returns its connection to the pool.
func (f *PoolFile) Close() error {
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil

	if f.conn != nil {
		f.fs.pool.put(f.conn)
		f.conn = nil
	}

	if err != nil {
		return wrapPathError("close", f.path, err)
	}
	return nil
}

// Stat returns file information.
func (f *PoolFile) Stat() (fs.FileInfo, error) {
	if f.file == nil {
		return nil, fs.ErrClosed
	}
	stat, err := f.file.Stat()
	if err != nil {
		return nil, wrapPathError("stat", f.path, err)
	}
	return stat, nil
}

// ReadDir reads the contents of a directory, paginating across repeated
// calls once the full listing has been fetched from the server.
func (f *PoolFile) ReadDir(n int) ([]fs.DirEntry, error) {
	if f.file == nil {
		return nil, fs.ErrClosed
	}

	if !f.dirRead {
		infos, err := f.fs.readDirViaConn(f.conn, f.path)
		if err != nil {
			return nil, wrapPathError("readdir", f.path, err)
		}
		f.dirEntries = make([]fs.DirEntry, 0, len(infos))
		for _, info := range infos {
			if info.Name() == "." || info.Name() == ".." {
				continue
			}
			f.dirEntries = append(f.dirEntries, fs.FileInfoToDirEntry(info))
		}
		f.dirRead = true
		f.dirPos = 0
	}

	if n <= 0 {
		entries := f.dirEntries[f.dirPos:]
		f.dirPos = len(f.dirEntries)
		if len(entries) == 0 {
			return nil, io.EOF
		}
		return entries, nil
	}

	if f.dirPos >= len(f.dirEntries) {
		return nil, io.EOF
	}
	end := f.dirPos + n
	if end > len(f.dirEntries) {
		end = len(f.dirEntries)
	}
	entries := f.dirEntries[f.dirPos:end]
	f.dirPos = end
	return entries, nil
}

// Readdirnames returns up to n directory entry names.
func (f *PoolFile) Readdirnames(n int) ([]string, error) {
	entries, err := f.ReadDir(n)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

// Readdir returns up to n directory entries as fs.FileInfo.
func (f *PoolFile) Readdir(n int) ([]fs.FileInfo, error) {
	entries, err := f.ReadDir(n)
	if err != nil {
		return nil, err
	}
	infos := make([]fs.FileInfo, len(entries))
	for i, e := range entries {
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		infos[i] = info
	}
	return infos, nil
}
