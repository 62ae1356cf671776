package smbfs

import (
	"io/fs"
	"time"
)

// SMBSession abstracts an authenticated SMB session for testability. The
// real implementation wraps *Session; fstesting_test.go substitutes a
// mock behind the same interface.
type SMBSession interface {
	// Mount connects to a share and returns an SMBShare.
	Mount(shareName string) (SMBShare, error)
	// Logoff ends the session.
	Logoff() error
}

// SMBShare abstracts a connected SMB share (a Tree) for testability.
type SMBShare interface {
	// OpenFile opens a file with the specified flags and permissions.
	OpenFile(name string, flag int, perm fs.FileMode) (SMBFile, error)
	// Stat returns file info for the specified path.
	Stat(name string) (fs.FileInfo, error)
	// Mkdir creates a directory.
	Mkdir(name string, perm fs.FileMode) error
	// Remove removes a file or empty directory.
	Remove(name string) error
	// Rename renames a file or directory.
	Rename(oldname, newname string) error
	// Chmod changes the mode of a file.
	Chmod(name string, mode fs.FileMode) error
	// Chtimes changes the access and modification times of a file.
	Chtimes(name string, atime, mtime time.Time) error
	// ReadDir enumerates a directory's entries.
	ReadDir(name string) ([]fs.FileInfo, error)
	// Umount disconnects the share.
	Umount() error
}

// SMBFile abstracts an open file handle for testability.
type SMBFile interface {
	// Read reads up to len(p) bytes into p.
	Read(p []byte) (n int, err error)
	// Write writes len(p) bytes from p to the file.
	Write(p []byte) (n int, err error)
	// Seek sets the offset for the next Read or Write.
	Seek(offset int64, whence int) (int64, error)
	// Close closes the file.
	Close() error
	// Stat returns file information.
	Stat() (fs.FileInfo, error)
}

// ConnectionFactory creates SMB connections for the connection pool. This
// abstraction allows injection of mock connections for testing.
type ConnectionFactory interface {
	// CreateConnection creates a new SMB connection using the provided config.
	CreateConnection(config *Config) (SMBSession, SMBShare, error)
}
