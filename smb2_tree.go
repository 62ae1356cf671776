package smbfs

import "fmt"

// buildTreeConnectRequest constructs an MS-SMB2 2.2.9 TREE_CONNECT request
// naming the UNC path \\server:port\share.
func buildTreeConnectRequest(server string, port int, share string) []byte {
	unc := fmt.Sprintf(`\\%s:%d\%s`, server, port, share)
	pathBytes := EncodeStringToUTF16LE(unc)

	w := NewByteWriter(8 + len(pathBytes))
	w.WriteUint16(9) // StructureSize
	w.WriteUint16(0) // Flags/Reserved

	pathOffset := SMB2HeaderSize + 8
	w.WriteUint16(uint16(pathOffset))
	w.WriteUint16(uint16(len(pathBytes)))
	w.WriteBytes(pathBytes)

	return w.Bytes()
}

// treeConnectResult carries the fields of a parsed TREE_CONNECT response.
type treeConnectResult struct {
	ShareType     uint8
	ShareFlags    uint32
	Capabilities  uint32
	MaximalAccess uint32
}

// parseTreeConnectResponse parses an MS-SMB2 2.2.10 TREE_CONNECT response.
// The encrypt-data bit in ShareFlags is SMB2_SHAREFLAG_ENCRYPT_DATA
// (0x00008000); when set, the tree must use Transform-enveloped messages
// for every request carrying this tree ID.
func parseTreeConnectResponse(payload []byte) (*treeConnectResult, error) {
	r := NewByteReader(payload)

	structSize := r.ReadUint16()
	if structSize != 16 {
		return nil, ErrInvalidSizeField
	}

	shareType := r.ReadOneByte()
	r.Skip(1) // Reserved
	shareFlags := r.ReadUint32()
	capabilities := r.ReadUint32()
	maximalAccess := r.ReadUint32()

	if err := r.Err(); err != nil {
		return nil, err
	}

	return &treeConnectResult{
		ShareType:     shareType,
		ShareFlags:    shareFlags,
		Capabilities:  capabilities,
		MaximalAccess: maximalAccess,
	}, nil
}

// buildTreeDisconnectRequest constructs an MS-SMB2 2.2.11 TREE_DISCONNECT
// request.
func buildTreeDisconnectRequest() []byte {
	w := NewByteWriter(4)
	w.WriteUint16(4) // StructureSize
	w.WriteUint16(0) // Reserved
	return w.Bytes()
}

// parseTreeDisconnectResponse parses an MS-SMB2 2.2.12 TREE_DISCONNECT
// response; it carries no information beyond the structure size.
func parseTreeDisconnectResponse(payload []byte) error {
	r := NewByteReader(payload)
	structSize := r.ReadUint16()
	if structSize != 4 {
		return ErrInvalidSizeField
	}
	return r.Err()
}
