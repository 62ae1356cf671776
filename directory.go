package smbfs

import (
	"context"
	"sync"
)

// defaultChangeNotifyFilter covers the change classes most callers care
// about watching for; Directory.Watch always uses this filter.
const defaultChangeNotifyFilter = FILE_NOTIFY_CHANGE_FILE_NAME |
	FILE_NOTIFY_CHANGE_DIR_NAME |
	FILE_NOTIFY_CHANGE_ATTRIBUTES |
	FILE_NOTIFY_CHANGE_SIZE |
	FILE_NOTIFY_CHANGE_LAST_WRITE |
	FILE_NOTIFY_CHANGE_CREATION

// Directory is an open handle on a Tree that persists across multiple
// enumerations, and that can hold an outstanding CHANGE_NOTIFY watch.
type Directory struct {
	tree   *Tree
	path   string
	fileID FileID

	mu       sync.Mutex
	closed   bool
	watching bool
}

// OpenDirectory opens path as a directory handle that stays open until
// Close, unlike the transient handle ReadDir uses internally.
func (t *Tree) OpenDirectory(ctx context.Context, path string) (*Directory, error) {
	cr, err := t.create(ctx, path, GENERIC_READ, FILE_ATTRIBUTE_DIRECTORY,
		FILE_SHARE_READ|FILE_SHARE_WRITE|FILE_SHARE_DELETE, FILE_OPEN, FILE_DIRECTORY_FILE)
	if err != nil {
		return nil, err
	}

	d := &Directory{tree: t, path: path, fileID: cr.FileID}
	t.registerHandle(d)
	return d, nil
}

// Read enumerates the directory's entries in one or more QUERY_DIRECTORY
// round trips until STATUS_NO_MORE_FILES, against this handle's FileID.
func (d *Directory) Read(ctx context.Context) ([]DirEntry, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrHandleClosed
	}
	d.mu.Unlock()

	var all []DirEntry
	restart := true
	for {
		req := buildQueryDirectoryRequest(d.fileID, "*", restart, 64*1024)
		restart = false

		header, payload, err := d.tree.session.send(ctx, SMB2_QUERY_DIRECTORY, d.tree.currentTreeID(), req)
		if err != nil {
			return nil, wrapPathError("readdir", d.path, err)
		}
		if header.Status == NTStatus(STATUS_NO_MORE_FILES) {
			break
		}
		if header.Status != STATUS_SUCCESS {
			return nil, wrapPathError("readdir", d.path, convertError(&ProtocolError{Command: SMB2_QUERY_DIRECTORY, Status: header.Status}))
		}

		entries, err := parseQueryDirectoryResponse(payload)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}

	return all, nil
}

// Watch issues an MS-SMB2 CHANGE_NOTIFY against the directory and registers
// a listener on the client's notification channel filtered by this
// handle's FileID; recursive sets SMB2_WATCH_TREE so changes anywhere
// under the directory are reported, not just direct children (§4.9).
func (d *Directory) Watch(ctx context.Context, recursive bool) (<-chan ChangeNotifyEvent, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrHandleClosed
	}
	if d.watching {
		d.mu.Unlock()
		return nil, ErrAlreadyWatching
	}
	d.watching = true
	d.mu.Unlock()

	events := d.tree.session.client.Watch(d.fileID)

	req := buildChangeNotifyRequest(d.fileID, defaultChangeNotifyFilter, recursive, 64*1024)
	header, _, err := d.tree.session.sendChangeNotify(ctx, d.tree.currentTreeID(), req, d.fileID)
	if err != nil {
		d.cancelWatch()
		return nil, wrapPathError("watch", d.path, err)
	}
	if header.Status != STATUS_PENDING {
		d.cancelWatch()
		return nil, wrapPathError("watch", d.path, convertError(&ProtocolError{Command: SMB2_CHANGE_NOTIFY, Status: header.Status}))
	}

	return events, nil
}

// Unwatch cancels an outstanding Watch registration and closes the handle
// — CHANGE_NOTIFY requests only resolve server-side when the watched
// handle closes or a change fires, so canceling one requires closing it
// (§4.9).
func (d *Directory) Unwatch() error {
	d.mu.Lock()
	if !d.watching {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	d.cancelWatch()
	return d.Close()
}

// cancelWatch deregisters this handle's watch channel with the transport
// without closing the handle itself.
func (d *Directory) cancelWatch() {
	d.mu.Lock()
	wasWatching := d.watching
	d.watching = false
	d.mu.Unlock()

	if wasWatching {
		d.tree.session.client.Unwatch(d.fileID)
	}
}

// Close closes the directory handle, first canceling any outstanding
// watch. Idempotent.
func (d *Directory) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	watching := d.watching
	d.watching = false
	d.mu.Unlock()

	if watching {
		d.tree.session.client.Unwatch(d.fileID)
	}
	return d.tree.close(context.Background(), d.fileID, false)
}
