package smbfs

import (
	"context"
	"fmt"
)

// ShareType represents the type of SMB share.
type ShareType uint32

const (
	// ShareTypeDisk represents a disk share (standard file share).
	ShareTypeDisk ShareType = 0x00000000

	// ShareTypePrintQueue represents a print queue share.
	ShareTypePrintQueue ShareType = 0x00000001

	// ShareTypeDevice represents a communication device share.
	ShareTypeDevice ShareType = 0x00000002

	// ShareTypeIPC represents an IPC share (named pipes).
	ShareTypeIPC ShareType = 0x00000003

	// ShareTypeSpecial represents special shares (admin shares: C$, IPC$, etc.).
	ShareTypeSpecial ShareType = 0x80000000

	// ShareTypeTemporary represents a temporary share.
	ShareTypeTemporary ShareType = 0x40000000
)

// String returns a human-readable string for the share type.
func (st ShareType) String() string {
	switch st {
	case ShareTypeDisk:
		return "Disk"
	case ShareTypePrintQueue:
		return "Print Queue"
	case ShareTypeDevice:
		return "Device"
	case ShareTypeIPC:
		return "IPC"
	case ShareTypeSpecial:
		return "Special"
	case ShareTypeTemporary:
		return "Temporary"
	default:
		return fmt.Sprintf("Unknown(%d)", st)
	}
}

// ShareInfo contains information about an SMB share.
type ShareInfo struct {
	Name    string    // Share name
	Type    ShareType // Share type
	Comment string    // Share description/comment
}

// ListShares returns a single ShareInfo for the configured Config.Share,
// reported as a disk share. It does not enumerate the server's shares: no
// IPC$ connection or NetShareEnum call is made, and it never returns an
// error.
//
// Example:
//
//	shares, err := fsys.ListShares(ctx)
//	if err != nil {
//	    return err
//	}
//	for _, share := range shares {
//	    fmt.Printf("%s: %s (%s)\n", share.Name, share.Comment, share.Type)
//	}
func (fsys *FileSystem) ListShares(ctx context.Context) ([]ShareInfo, error) {
	// Full enumeration needs the MS-SRVS NetShareEnum RPC call over the
	// IPC$ share's \PIPE\srvsvc named pipe, which this client doesn't
	// speak yet. As a workaround, report the currently mounted share.

	if fsys.config.Logger != nil {
		fsys.config.Logger.Printf("Share enumeration requested (limited implementation)")
	}

	// Return the current share as a known share
	shares := []ShareInfo{
		{
			Name:    fsys.config.Share,
			Type:    ShareTypeDisk, // Assume disk share
			Comment: "Current share",
		},
	}

	return shares, nil
}

// Note: full share enumeration requires implementing MS-SRVS:
// 1. Connecting to IPC$ share
// 2. Opening \PIPE\srvsvc named pipe
// 3. Making a NetShareEnum RPC call
// 4. Parsing the response
//
// See: https://docs.microsoft.com/en-us/openspecs/windows_protocols/ms-srvs/
