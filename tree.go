package smbfs

import (
	"context"
	"io/fs"
	"os"
	"sync"
	"time"
)

// Tree is an SMB share connected under a Session: a tree ID, the share's
// advertised flags/capabilities, and the File/Directory handles opened
// against it.
type Tree struct {
	session *Session
	share   string

	mu            sync.Mutex
	connected     bool
	treeID        uint32
	encryptShare  bool
	maximalAccess uint32
	handles       []ioCloser
}

type ioCloser interface {
	Close() error
}

// connect issues TREE_CONNECT for t.share under t.session.
func (t *Tree) connect(ctx context.Context) error {
	req := buildTreeConnectRequest(t.session.config.Server, t.session.config.Port, t.share)
	header, payload, err := t.session.sendWithAdaptiveEncryption(ctx, SMB2_TREE_CONNECT, 0, req)
	if err != nil {
		return err
	}
	if header.Status != STATUS_SUCCESS {
		return &ProtocolError{Command: SMB2_TREE_CONNECT, Status: header.Status}
	}

	tc, err := parseTreeConnectResponse(payload)
	if err != nil {
		return err
	}
	if tc.ShareFlags&SMB2_SHAREFLAG_ENCRYPT_DATA != 0 && len(t.session.encryptKey) == 0 {
		return ErrMissingEncryptionKeys
	}

	t.mu.Lock()
	t.treeID = header.TreeID
	t.maximalAccess = tc.MaximalAccess
	t.encryptShare = tc.ShareFlags&SMB2_SHAREFLAG_ENCRYPT_DATA != 0
	t.connected = true
	t.mu.Unlock()

	if t.encryptShare {
		t.session.enableEncryption()
	}

	return nil
}

// Disconnect closes every open handle on t, then sends TREE_DISCONNECT
// (§8 invariant 9: Tree.disconnect() closes all open handles on that tree).
func (t *Tree) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil
	}
	handles := t.handles
	t.handles = nil
	treeID := t.treeID
	t.connected = false
	t.mu.Unlock()

	for _, h := range handles {
		h.Close()
	}

	req := buildTreeDisconnectRequest()
	header, payload, err := t.session.send(ctx, SMB2_TREE_DISCONNECT, treeID, req)
	if err != nil {
		return err
	}
	if header.Status != STATUS_SUCCESS {
		return &ProtocolError{Command: SMB2_TREE_DISCONNECT, Status: header.Status}
	}
	return parseTreeDisconnectResponse(payload)
}

func (t *Tree) registerHandle(h ioCloser) {
	t.mu.Lock()
	t.handles = append(t.handles, h)
	t.mu.Unlock()
}

func (t *Tree) currentTreeID() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.treeID
}

// create issues an MS-SMB2 CREATE for path and returns the parsed result.
func (t *Tree) create(ctx context.Context, path string, desiredAccess, fileAttributes, shareAccess, createDisposition, createOptions uint32) (*createResult, error) {
	req := buildCreateRequest(path, desiredAccess, fileAttributes, shareAccess, createDisposition, createOptions)
	header, payload, err := t.session.send(ctx, SMB2_CREATE, t.currentTreeID(), req)
	if err != nil {
		return nil, wrapPathError("open", path, err)
	}
	if header.Status != STATUS_SUCCESS {
		return nil, wrapPathError("open", path, convertError(&ProtocolError{Command: SMB2_CREATE, Status: header.Status}))
	}
	return parseCreateResponse(payload)
}

// OpenFile opens path for reading and/or writing depending on flag
// (os.O_RDONLY/O_WRONLY/O_RDWR, optionally combined with O_CREATE,
// O_EXCL, O_TRUNC, O_APPEND), returning a File handle.
func (t *Tree) OpenFile(ctx context.Context, path string, flag int, perm fs.FileMode) (*File, error) {
	desiredAccess := uint32(GENERIC_READ)
	switch flag & (os.O_RDONLY | os.O_WRONLY | os.O_RDWR) {
	case os.O_WRONLY:
		desiredAccess = GENERIC_WRITE
	case os.O_RDWR:
		desiredAccess = GENERIC_READ | GENERIC_WRITE
	}

	disposition := uint32(FILE_OPEN)
	switch {
	case flag&os.O_CREATE != 0 && flag&os.O_EXCL != 0:
		disposition = FILE_CREATE
	case flag&os.O_CREATE != 0 && flag&os.O_TRUNC != 0:
		disposition = FILE_OVERWRITE_IF
	case flag&os.O_CREATE != 0:
		disposition = FILE_OPEN_IF
	case flag&os.O_TRUNC != 0:
		disposition = FILE_OVERWRITE
	}

	attrs := modeToAttributes(perm)
	cr, err := t.create(ctx, path, desiredAccess, attrs,
		FILE_SHARE_READ|FILE_SHARE_WRITE|FILE_SHARE_DELETE, disposition, FILE_NON_DIRECTORY_FILE)
	if err != nil {
		return nil, err
	}

	f := &File{
		tree:   t,
		path:   path,
		fileID: cr.FileID,
		offset: 0,
	}
	if flag&os.O_APPEND != 0 {
		f.offset = int64(cr.EndOfFile)
	}
	t.registerHandle(f)
	return f, nil
}

// Stat issues a QUERY_INFO for path via a transient CREATE/CLOSE pair.
func (t *Tree) Stat(ctx context.Context, path string) (fs.FileInfo, error) {
	cr, err := t.create(ctx, path, GENERIC_READ, 0,
		FILE_SHARE_READ|FILE_SHARE_WRITE|FILE_SHARE_DELETE, FILE_OPEN, 0)
	if err != nil {
		return nil, err
	}
	defer t.close(ctx, cr.FileID, false)

	req := buildQueryInfoRequest(cr.FileID, 1, FileAllInformation, 4096)
	header, payload, err := t.session.send(ctx, SMB2_QUERY_INFO, t.currentTreeID(), req)
	if err != nil {
		return nil, wrapPathError("stat", path, err)
	}
	if header.Status != STATUS_SUCCESS {
		return nil, wrapPathError("stat", path, convertError(&ProtocolError{Command: SMB2_QUERY_INFO, Status: header.Status}))
	}

	stat, err := parseQueryInfoResponse(payload)
	if err != nil {
		return nil, err
	}

	return &fileInfo{name: baseName(path), stat: stat}, nil
}

// Mkdir creates a directory at path.
func (t *Tree) Mkdir(ctx context.Context, path string, perm fs.FileMode) error {
	cr, err := t.create(ctx, path, GENERIC_READ|GENERIC_WRITE, modeToAttributes(perm|fs.ModeDir),
		FILE_SHARE_READ|FILE_SHARE_WRITE|FILE_SHARE_DELETE, FILE_CREATE, FILE_DIRECTORY_FILE)
	if err != nil {
		return err
	}
	return t.close(ctx, cr.FileID, false)
}

// Remove deletes the file or empty directory at path via
// FILE_DELETE_ON_CLOSE.
func (t *Tree) Remove(ctx context.Context, path string) error {
	cr, err := t.create(ctx, path, GENERIC_READ|DELETE, 0,
		FILE_SHARE_READ|FILE_SHARE_WRITE|FILE_SHARE_DELETE, FILE_OPEN, FILE_DELETE_ON_CLOSE)
	if err != nil {
		return err
	}
	return t.close(ctx, cr.FileID, false)
}

// Rename renames oldPath to newPath (both relative to this tree's root).
func (t *Tree) Rename(ctx context.Context, oldPath, newPath string) error {
	cr, err := t.create(ctx, oldPath, GENERIC_READ|GENERIC_WRITE|DELETE, 0,
		FILE_SHARE_READ|FILE_SHARE_WRITE|FILE_SHARE_DELETE, FILE_OPEN, 0)
	if err != nil {
		return err
	}
	defer t.close(ctx, cr.FileID, false)

	buf := buildFileRenameBuffer(newPath, false)
	req := buildSetInfoRequest(cr.FileID, 1, 10, buf) // FileRenameInformation = class 10
	header, payload, err := t.session.send(ctx, SMB2_SET_INFO, t.currentTreeID(), req)
	if err != nil {
		return wrapPathError("rename", oldPath, err)
	}
	if header.Status != STATUS_SUCCESS {
		return wrapPathError("rename", oldPath, convertError(&ProtocolError{Command: SMB2_SET_INFO, Status: header.Status}))
	}
	return parseSetInfoResponse(payload)
}

// Chmod updates path's FileAttributes.
func (t *Tree) Chmod(ctx context.Context, path string, mode fs.FileMode) error {
	cr, err := t.create(ctx, path, GENERIC_WRITE, 0,
		FILE_SHARE_READ|FILE_SHARE_WRITE|FILE_SHARE_DELETE, FILE_OPEN, 0)
	if err != nil {
		return err
	}
	defer t.close(ctx, cr.FileID, false)

	buf := buildFileBasicInfoBuffer(0, 0, 0, 0, modeToAttributes(mode))
	req := buildSetInfoRequest(cr.FileID, 1, 4, buf) // FileBasicInformation = class 4
	header, payload, err := t.session.send(ctx, SMB2_SET_INFO, t.currentTreeID(), req)
	if err != nil {
		return wrapPathError("chmod", path, err)
	}
	if header.Status != STATUS_SUCCESS {
		return wrapPathError("chmod", path, convertError(&ProtocolError{Command: SMB2_SET_INFO, Status: header.Status}))
	}
	return parseSetInfoResponse(payload)
}

// Chtimes updates path's access and modification times.
func (t *Tree) Chtimes(ctx context.Context, path string, atime, mtime time.Time) error {
	cr, err := t.create(ctx, path, GENERIC_WRITE, 0,
		FILE_SHARE_READ|FILE_SHARE_WRITE|FILE_SHARE_DELETE, FILE_OPEN, 0)
	if err != nil {
		return err
	}
	defer t.close(ctx, cr.FileID, false)

	buf := buildFileBasicInfoBuffer(0, TimeToFiletime(atime), TimeToFiletime(mtime), 0, 0)
	req := buildSetInfoRequest(cr.FileID, 1, 4, buf)
	header, payload, err := t.session.send(ctx, SMB2_SET_INFO, t.currentTreeID(), req)
	if err != nil {
		return wrapPathError("chtimes", path, err)
	}
	if header.Status != STATUS_SUCCESS {
		return wrapPathError("chtimes", path, convertError(&ProtocolError{Command: SMB2_SET_INFO, Status: header.Status}))
	}
	return parseSetInfoResponse(payload)
}

// ReadDir opens path as a directory and enumerates its entries in one or
// more QUERY_DIRECTORY round trips until STATUS_NO_MORE_FILES.
func (t *Tree) ReadDir(ctx context.Context, path string) ([]DirEntry, error) {
	cr, err := t.create(ctx, path, GENERIC_READ, FILE_ATTRIBUTE_DIRECTORY,
		FILE_SHARE_READ|FILE_SHARE_WRITE|FILE_SHARE_DELETE, FILE_OPEN, FILE_DIRECTORY_FILE)
	if err != nil {
		return nil, err
	}
	defer t.close(ctx, cr.FileID, false)

	var all []DirEntry
	restart := true
	for {
		req := buildQueryDirectoryRequest(cr.FileID, "*", restart, 64*1024)
		restart = false

		header, payload, err := t.session.send(ctx, SMB2_QUERY_DIRECTORY, t.currentTreeID(), req)
		if err != nil {
			return nil, wrapPathError("readdir", path, err)
		}
		if header.Status == NTStatus(STATUS_NO_MORE_FILES) {
			break
		}
		if header.Status != STATUS_SUCCESS {
			return nil, wrapPathError("readdir", path, convertError(&ProtocolError{Command: SMB2_QUERY_DIRECTORY, Status: header.Status}))
		}

		entries, err := parseQueryDirectoryResponse(payload)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}

	return all, nil
}

func (t *Tree) close(ctx context.Context, fileID FileID, wantAttrs bool) error {
	req := buildCloseRequest(fileID, wantAttrs)
	header, payload, err := t.session.send(ctx, SMB2_CLOSE, t.currentTreeID(), req)
	if err != nil {
		return err
	}
	if header.Status != STATUS_SUCCESS {
		return &ProtocolError{Command: SMB2_CLOSE, Status: header.Status}
	}
	_, err = parseCloseResponse(payload)
	return err
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}
