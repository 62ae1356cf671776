package smbfs

import "strings"

// createResult carries the fields of a parsed CREATE response (MS-SMB2
// 2.2.14) that File/Directory handles need.
type createResult struct {
	OplockLevel    uint8
	CreateAction   uint32
	CreationTime   uint64
	LastAccessTime uint64
	LastWriteTime  uint64
	ChangeTime     uint64
	AllocationSize uint64
	EndOfFile      uint64
	FileAttributes uint32
	FileID         FileID
}

// buildCreateRequest constructs an MS-SMB2 2.2.13 CREATE request for path,
// encoding backslash-separated path segments as the wire format expects.
func buildCreateRequest(path string, desiredAccess, fileAttributes, shareAccess,
	createDisposition, createOptions uint32) []byte {

	wirePath := strings.ReplaceAll(strings.TrimPrefix(path, "/"), "/", "\\")
	nameBytes := EncodeStringToUTF16LE(wirePath)

	w := NewByteWriter(56 + len(nameBytes))
	w.WriteUint16(57) // StructureSize
	w.WriteOneByte(0) // SecurityFlags
	w.WriteOneByte(0) // RequestedOplockLevel (none)
	w.WriteUint32(0)  // ImpersonationLevel (Impersonation)
	w.WriteUint64(0)  // SmbCreateFlags
	w.WriteUint64(0)  // Reserved
	w.WriteUint32(desiredAccess)
	w.WriteUint32(fileAttributes)
	w.WriteUint32(shareAccess)
	w.WriteUint32(createDisposition)
	w.WriteUint32(createOptions)

	nameOffset := SMB2HeaderSize + 56
	w.WriteUint16(uint16(nameOffset))
	w.WriteUint16(uint16(len(nameBytes)))
	w.WriteUint32(0) // CreateContextsOffset
	w.WriteUint32(0) // CreateContextsLength
	w.WriteBytes(nameBytes)

	return w.Bytes()
}

// parseCreateResponse parses an MS-SMB2 2.2.14 CREATE response.
func parseCreateResponse(payload []byte) (*createResult, error) {
	r := NewByteReader(payload)

	structSize := r.ReadUint16()
	if structSize != 89 {
		return nil, ErrInvalidSizeField
	}

	oplockLevel := r.ReadOneByte()
	r.Skip(1) // Flags
	createAction := r.ReadUint32()
	creationTime := r.ReadUint64()
	lastAccessTime := r.ReadUint64()
	lastWriteTime := r.ReadUint64()
	changeTime := r.ReadUint64()
	allocationSize := r.ReadUint64()
	endOfFile := r.ReadUint64()
	fileAttributes := r.ReadUint32()
	r.Skip(4) // Reserved2
	fileID := r.ReadFileID()
	r.Skip(8) // CreateContextsOffset/Length

	if err := r.Err(); err != nil {
		return nil, err
	}

	return &createResult{
		OplockLevel:    oplockLevel,
		CreateAction:   createAction,
		CreationTime:   creationTime,
		LastAccessTime: lastAccessTime,
		LastWriteTime:  lastWriteTime,
		ChangeTime:     changeTime,
		AllocationSize: allocationSize,
		EndOfFile:      endOfFile,
		FileAttributes: fileAttributes,
		FileID:         fileID,
	}, nil
}

// SMB2 CLOSE flags
const (
	SMB2_CLOSE_FLAG_POSTQUERY_ATTRIB uint16 = 0x0001
)

// buildCloseRequest constructs an MS-SMB2 2.2.15 CLOSE request.
func buildCloseRequest(fileID FileID, wantAttributes bool) []byte {
	w := NewByteWriter(24)
	w.WriteUint16(24) // StructureSize
	if wantAttributes {
		w.WriteUint16(SMB2_CLOSE_FLAG_POSTQUERY_ATTRIB)
	} else {
		w.WriteUint16(0)
	}
	w.WriteUint32(0) // Reserved
	w.WriteFileID(fileID)
	return w.Bytes()
}

// closeResult carries the optional post-close attributes returned by a
// CLOSE response when SMB2_CLOSE_FLAG_POSTQUERY_ATTRIB was requested.
type closeResult struct {
	EndOfFile      uint64
	FileAttributes uint32
}

// parseCloseResponse parses an MS-SMB2 2.2.16 CLOSE response.
func parseCloseResponse(payload []byte) (*closeResult, error) {
	r := NewByteReader(payload)

	structSize := r.ReadUint16()
	if structSize != 60 {
		return nil, ErrInvalidSizeField
	}

	r.Skip(2) // Flags
	r.Skip(4) // Reserved
	r.Skip(8) // CreationTime
	r.Skip(8) // LastAccessTime
	r.Skip(8) // LastWriteTime
	r.Skip(8) // ChangeTime
	r.Skip(8) // AllocationSize
	endOfFile := r.ReadUint64()
	attrs := r.ReadUint32()

	if err := r.Err(); err != nil {
		return nil, err
	}

	return &closeResult{EndOfFile: endOfFile, FileAttributes: attrs}, nil
}

// buildReadRequest constructs an MS-SMB2 2.2.19 READ request.
func buildReadRequest(fileID FileID, offset uint64, length uint32) []byte {
	w := NewByteWriter(48)
	w.WriteUint16(49) // StructureSize
	w.WriteOneByte(0) // Padding
	w.WriteOneByte(0) // Flags
	w.WriteUint32(length)
	w.WriteUint64(offset)
	w.WriteFileID(fileID)
	w.WriteUint32(1) // MinimumCount: at least 1 byte, anything less is EOF
	w.WriteUint32(0) // Channel
	w.WriteUint32(0) // RemainingBytes
	w.WriteUint16(0) // ReadChannelInfoOffset
	w.WriteUint16(0) // ReadChannelInfoLength
	w.WriteOneByte(0)
	return w.Bytes()
}

// parseReadResponse parses an MS-SMB2 2.2.20 READ response and returns the
// data payload it carries.
func parseReadResponse(payload []byte) ([]byte, error) {
	r := NewByteReader(payload)

	structSize := r.ReadUint16()
	if structSize != 17 {
		return nil, ErrInvalidSizeField
	}

	dataOffset := r.ReadOneByte()
	r.Skip(1) // Reserved
	dataLength := r.ReadUint32()
	r.Skip(4) // DataRemaining
	r.Skip(4) // Reserved2

	if err := r.Err(); err != nil {
		return nil, err
	}

	start := int(dataOffset) - SMB2HeaderSize
	if start < 0 || start+int(dataLength) > len(payload) {
		return nil, ErrInvalidSizeField
	}
	return payload[start : start+int(dataLength)], nil
}

// buildWriteRequest constructs an MS-SMB2 2.2.21 WRITE request.
func buildWriteRequest(fileID FileID, offset uint64, data []byte) []byte {
	w := NewByteWriter(48 + len(data))
	w.WriteUint16(49) // StructureSize

	dataOffset := SMB2HeaderSize + 48
	w.WriteUint16(uint16(dataOffset))
	w.WriteUint32(uint32(len(data)))
	w.WriteUint64(offset)
	w.WriteFileID(fileID)
	w.WriteUint32(0) // Channel
	w.WriteUint32(0) // RemainingBytes
	w.WriteUint16(0) // WriteChannelInfoOffset
	w.WriteUint16(0) // WriteChannelInfoLength
	w.WriteUint32(0) // Flags
	w.WriteBytes(data)

	return w.Bytes()
}

// parseWriteResponse parses an MS-SMB2 2.2.22 WRITE response and returns
// the number of bytes the server reports as written.
func parseWriteResponse(payload []byte) (uint32, error) {
	r := NewByteReader(payload)

	structSize := r.ReadUint16()
	if structSize != 17 {
		return 0, ErrInvalidSizeField
	}

	r.Skip(2) // Reserved
	count := r.ReadUint32()

	if err := r.Err(); err != nil {
		return 0, err
	}
	return count, nil
}

// buildFlushRequest constructs an MS-SMB2 2.2.17 FLUSH request.
func buildFlushRequest(fileID FileID) []byte {
	w := NewByteWriter(24)
	w.WriteUint16(24) // StructureSize
	w.WriteUint16(0)  // Reserved1
	w.WriteUint32(0)  // Reserved2
	w.WriteFileID(fileID)
	return w.Bytes()
}

// parseFlushResponse parses an MS-SMB2 2.2.18 FLUSH response; it carries
// no information beyond the structure size.
func parseFlushResponse(payload []byte) error {
	r := NewByteReader(payload)
	structSize := r.ReadUint16()
	if structSize != 4 {
		return ErrInvalidSizeField
	}
	return r.Err()
}
