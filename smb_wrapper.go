package smbfs

import (
	"context"
	"fmt"
	"io/fs"
	"time"
)

// realSMBSession wraps a native *Session to implement SMBSession.
type realSMBSession struct {
	session *Session
}

func (s *realSMBSession) Mount(shareName string) (SMBShare, error) {
	tree, err := s.session.Mount(context.Background(), shareName)
	if err != nil {
		return nil, err
	}
	return &realSMBShare{tree: tree}, nil
}

func (s *realSMBSession) Logoff() error {
	return s.session.Logoff(context.Background())
}

// realSMBShare wraps a native *Tree to implement SMBShare.
type realSMBShare struct {
	tree *Tree
}

func (sh *realSMBShare) OpenFile(name string, flag int, perm fs.FileMode) (SMBFile, error) {
	f, err := sh.tree.OpenFile(context.Background(), name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &realSMBFile{file: f}, nil
}

func (sh *realSMBShare) Stat(name string) (fs.FileInfo, error) {
	return sh.tree.Stat(context.Background(), name)
}

func (sh *realSMBShare) Mkdir(name string, perm fs.FileMode) error {
	return sh.tree.Mkdir(context.Background(), name, perm)
}

func (sh *realSMBShare) Remove(name string) error {
	return sh.tree.Remove(context.Background(), name)
}

func (sh *realSMBShare) Rename(oldname, newname string) error {
	return sh.tree.Rename(context.Background(), oldname, newname)
}

func (sh *realSMBShare) Chmod(name string, mode fs.FileMode) error {
	return sh.tree.Chmod(context.Background(), name, mode)
}

func (sh *realSMBShare) Chtimes(name string, atime, mtime time.Time) error {
	return sh.tree.Chtimes(context.Background(), name, atime, mtime)
}

func (sh *realSMBShare) ReadDir(name string) ([]fs.FileInfo, error) {
	entries, err := sh.tree.ReadDir(context.Background(), name)
	if err != nil {
		return nil, err
	}
	infos := make([]fs.FileInfo, 0, len(entries))
	for _, e := range entries {
		info, err := (&dirEntry{entry: e}).Info()
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (sh *realSMBShare) Umount() error {
	return sh.tree.Disconnect(context.Background())
}

// realSMBFile wraps a native *File to implement SMBFile.
type realSMBFile struct {
	file *File
}

func (f *realSMBFile) Read(p []byte) (int, error)  { return f.file.Read(p) }
func (f *realSMBFile) Write(p []byte) (int, error) { return f.file.Write(p) }

func (f *realSMBFile) Seek(offset int64, whence int) (int64, error) {
	return f.file.Seek(offset, whence)
}

func (f *realSMBFile) Close() error { return f.file.Close() }

func (f *realSMBFile) Stat() (fs.FileInfo, error) { return f.file.Stat() }

func (f *realSMBFile) Truncate(size int64) error { return f.file.Truncate(size) }

// RealConnectionFactory implements ConnectionFactory by dialing, negotiating
// and authenticating a native Session and mounting config.Share.
type RealConnectionFactory struct{}

func (rf *RealConnectionFactory) CreateConnection(config *Config) (SMBSession, SMBShare, error) {
	ctx, cancel := context.WithTimeout(context.Background(), config.ConnTimeout)
	defer cancel()

	session, err := Connect(ctx, config)
	if err != nil {
		return nil, nil, fmt.Errorf("SMB session setup failed: %w", err)
	}

	tree, err := session.Mount(ctx, config.Share)
	if err != nil {
		_ = session.Close(ctx)
		return nil, nil, fmt.Errorf("failed to mount share %s: %w", config.Share, err)
	}

	return &realSMBSession{session: session}, &realSMBShare{tree: tree}, nil
}
