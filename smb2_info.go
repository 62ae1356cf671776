package smbfs

import "time"

// buildQueryInfoRequest constructs an MS-SMB2 2.2.37 QUERY_INFO request.
func buildQueryInfoRequest(fileID FileID, infoType, fileInfoClass uint8, outputBufferLength uint32) []byte {
	w := NewByteWriter(40)
	w.WriteUint16(41) // StructureSize
	w.WriteOneByte(infoType)
	w.WriteOneByte(fileInfoClass)
	w.WriteUint32(outputBufferLength)
	w.WriteUint16(0) // InputBufferOffset
	w.WriteUint16(0) // Reserved
	w.WriteUint32(0) // InputBufferLength
	w.WriteUint32(0) // AdditionalInformation
	w.WriteUint32(0) // Flags
	w.WriteFileID(fileID)
	return w.Bytes()
}

// FileStat carries the fields parsed out of a FileAllInformation /
// FileBasicInformation + FileStandardInformation response pair; the
// filesystem layer turns this into an fs.FileInfo.
type FileStat struct {
	CreationTime   time.Time
	LastAccessTime time.Time
	LastWriteTime  time.Time
	ChangeTime     time.Time
	FileAttributes uint32
	AllocationSize uint64
	EndOfFile      uint64
	Directory      bool
}

// parseQueryInfoResponse parses an MS-SMB2 2.2.38 QUERY_INFO response
// whose buffer holds a FileBasicInformation (40 bytes) immediately
// followed by a FileStandardInformation (24 bytes) record — the leading
// part of the FileAllInformation buffer that File.Stat requests; the rest
// of that buffer is ignored.
func parseQueryInfoResponse(payload []byte) (*FileStat, error) {
	r := NewByteReader(payload)

	structSize := r.ReadUint16()
	if structSize != 9 {
		return nil, ErrInvalidSizeField
	}

	bufOffset := r.ReadUint16()
	bufLength := r.ReadUint32()

	if err := r.Err(); err != nil {
		return nil, err
	}

	start := int(bufOffset) - SMB2HeaderSize
	if start < 0 || start+int(bufLength) > len(payload) {
		return nil, ErrInvalidSizeField
	}
	buf := payload[start : start+int(bufLength)]
	if len(buf) < 64 {
		return nil, ErrInvalidSizeField
	}

	br := NewByteReader(buf)
	creationTime := br.ReadUint64()
	lastAccessTime := br.ReadUint64()
	lastWriteTime := br.ReadUint64()
	changeTime := br.ReadUint64()
	fileAttributes := br.ReadUint32()
	br.Skip(4) // Reserved, pads FileBasicInformation to 40 bytes

	sr := NewByteReader(buf[40:])
	allocationSize := sr.ReadUint64()
	endOfFile := sr.ReadUint64()
	sr.Skip(4) // NumberOfLinks
	deletePending := sr.ReadOneByte()
	directory := sr.ReadOneByte()
	_ = deletePending

	if err := sr.Err(); err != nil {
		return nil, err
	}

	return &FileStat{
		CreationTime:   FiletimeToTime(creationTime),
		LastAccessTime: FiletimeToTime(lastAccessTime),
		LastWriteTime:  FiletimeToTime(lastWriteTime),
		ChangeTime:     FiletimeToTime(changeTime),
		FileAttributes: fileAttributes,
		AllocationSize: allocationSize,
		EndOfFile:      endOfFile,
		Directory:      directory != 0,
	}, nil
}

// buildSetInfoRequest constructs an MS-SMB2 2.2.39 SET_INFO request
// wrapping an already-encoded information-class buffer.
func buildSetInfoRequest(fileID FileID, infoType, fileInfoClass uint8, buffer []byte) []byte {
	w := NewByteWriter(32 + len(buffer))
	w.WriteUint16(33) // StructureSize
	w.WriteOneByte(infoType)
	w.WriteOneByte(fileInfoClass)
	w.WriteUint32(uint32(len(buffer)))

	bufOffset := SMB2HeaderSize + 32
	w.WriteUint16(uint16(bufOffset))
	w.WriteUint16(0) // Reserved
	w.WriteUint32(0) // AdditionalInformation
	w.WriteFileID(fileID)
	w.WriteBytes(buffer)

	return w.Bytes()
}

// parseSetInfoResponse parses an MS-SMB2 2.2.40 SET_INFO response; it
// carries no information beyond the structure size.
func parseSetInfoResponse(payload []byte) error {
	r := NewByteReader(payload)
	structSize := r.ReadUint16()
	if structSize != 2 {
		return ErrInvalidSizeField
	}
	return r.Err()
}

// buildFileEndOfFileBuffer encodes a FileEndOfFileInformation (MS-FSCC
// 2.4.13) record, the buffer File.Truncate passes to SET_INFO to set the
// file's size.
func buildFileEndOfFileBuffer(size uint64) []byte {
	w := NewByteWriter(8)
	w.WriteUint64(size)
	return w.Bytes()
}

// buildFileDispositionBuffer encodes a FileDispositionInformation (MS-FSCC
// 2.4.11) record requesting delete-on-close.
func buildFileDispositionBuffer(deleteOnClose bool) []byte {
	w := NewByteWriter(1)
	if deleteOnClose {
		w.WriteOneByte(1)
	} else {
		w.WriteOneByte(0)
	}
	return w.Bytes()
}

// buildFileRenameBuffer encodes a FileRenameInformation (MS-FSCC 2.4.38.2)
// record naming the new path, relative to the tree's root.
func buildFileRenameBuffer(newName string, replaceIfExists bool) []byte {
	nameBytes := EncodeStringToUTF16LE(newName)

	w := NewByteWriter(20 + len(nameBytes))
	if replaceIfExists {
		w.WriteOneByte(1)
	} else {
		w.WriteOneByte(0)
	}
	w.WriteZeros(7) // Reserved
	w.WriteUint64(0) // RootDirectory
	w.WriteUint32(uint32(len(nameBytes)))
	w.WriteBytes(nameBytes)

	return w.Bytes()
}

// buildFileBasicInfoBuffer encodes a FileBasicInformation (MS-FSCC 2.4.7)
// record for a Chtimes/Chmod SET_INFO request. Fields left at 0 tell the
// server to leave that timestamp/attribute unchanged.
func buildFileBasicInfoBuffer(creationTime, lastAccessTime, lastWriteTime, changeTime uint64, fileAttributes uint32) []byte {
	w := NewByteWriter(40)
	w.WriteUint64(creationTime)
	w.WriteUint64(lastAccessTime)
	w.WriteUint64(lastWriteTime)
	w.WriteUint64(changeTime)
	w.WriteUint32(fileAttributes)
	w.WriteUint32(0) // Reserved
	return w.Bytes()
}
