package smbfs

import (
	"io/fs"
	"testing"

	absfsCore "github.com/absfs/absfs"
	"github.com/absfs/fstesting"
	"github.com/absfs/smbfs/absfs"
)

// fsAdapter adapts smbfs.FileSystem to absfs.FileSystem (github.com/absfs/absfs).
// PoolFile already implements the full absfsCore.File surface, so Open/OpenFile/
// Create just need to assert the concrete type through.
type fsAdapter struct {
	*FileSystem
}

func (a *fsAdapter) Open(name string) (absfsCore.File, error) {
	f, err := a.FileSystem.Open(name)
	if err != nil {
		return nil, err
	}
	return f.(*PoolFile), nil
}

func (a *fsAdapter) OpenFile(name string, flag int, perm fs.FileMode) (absfsCore.File, error) {
	f, err := a.FileSystem.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return f.(*PoolFile), nil
}

func (a *fsAdapter) Create(name string) (absfsCore.File, error) {
	f, err := a.FileSystem.Create(name)
	if err != nil {
		return nil, err
	}
	return f.(*PoolFile), nil
}

// TestFSTestingSuite runs the fstesting suite against smbfs using a mock backend.
func TestFSTestingSuite(t *testing.T) {
	backend := NewMockSMBBackend()
	factory := NewMockConnectionFactory(backend)

	config := &Config{
		Server:   "localhost",
		Port:     445,
		Share:    "testshare",
		Username: "testuser",
		Password: "testpass",
	}

	smbFS, err := NewWithFactory(config, factory)
	if err != nil {
		t.Fatalf("failed to create filesystem: %v", err)
	}
	defer smbFS.Close()

	fs := &fsAdapter{smbFS}

	suite := &fstesting.Suite{
		FS: fs,
		Features: fstesting.Features{
			Symlinks:      false, // SMB doesn't support symlinks in the absfs sense
			HardLinks:     false, // SMB doesn't support hard links
			Permissions:   true,  // SMB supports basic permissions via Chmod
			Timestamps:    true,  // SMB supports timestamps via Chtimes
			CaseSensitive: false, // SMB is typically case-insensitive
			AtomicRename:  true,  // SMB rename is atomic
			SparseFiles:   false, // Not testing sparse file support
			LargeFiles:    true,  // SMB supports large files
		},
		TestDir:     "/fstesting",
		KeepTestDir: false,
	}

	suite.Run(t)
}

// TestFSTestingQuickCheck runs a quick sanity check.
func TestFSTestingQuickCheck(t *testing.T) {
	backend := NewMockSMBBackend()
	factory := NewMockConnectionFactory(backend)

	config := &Config{
		Server:   "localhost",
		Port:     445,
		Share:    "testshare",
		Username: "testuser",
		Password: "testpass",
	}

	smbFS, err := NewWithFactory(config, factory)
	if err != nil {
		t.Fatalf("failed to create filesystem: %v", err)
	}
	defer smbFS.Close()

	fs := &fsAdapter{smbFS}

	suite := &fstesting.Suite{
		FS: fs,
	}

	suite.QuickCheck(t)
}

// Ensure adapter implements absfsCore.FileSystem
var _ absfsCore.FileSystem = (*fsAdapter)(nil)
var _ absfs.FileSystem = (*FileSystem)(nil)
var _ absfsCore.File = (*PoolFile)(nil)
var _ absfs.File = (*PoolFile)(nil)
