package smbfs

import "time"

// SMB2 QUERY_DIRECTORY flags
const (
	SMB2_RESTART_SCANS       uint8 = 0x01 // Restart directory enumeration
	SMB2_RETURN_SINGLE_ENTRY uint8 = 0x02 // Return only one entry
	SMB2_INDEX_SPECIFIED     uint8 = 0x04 // Start at FileIndex
	SMB2_REOPEN              uint8 = 0x10 // Reopen directory handle
)

// DirEntry is one entry returned by a directory enumeration, parsed from a
// FileIdBothDirectoryInformation record (MS-FSCC 2.4.17 minus the obsolete
// short-name fields, which this client never populates on output and
// ignores on input).
type DirEntry struct {
	Name           string
	FileAttributes uint32
	EndOfFile      uint64
	AllocationSize uint64
	CreationTime   time.Time
	LastAccessTime time.Time
	LastWriteTime  time.Time
	ChangeTime     time.Time
	FileID         uint64
}

// IsDir reports whether the entry's attributes mark it as a directory.
func (e DirEntry) IsDir() bool {
	return e.FileAttributes&FILE_ATTRIBUTE_DIRECTORY != 0
}

// buildQueryDirectoryRequest constructs an MS-SMB2 2.2.33 QUERY_DIRECTORY
// request. The client always requests FileIdBothDirectoryInformation,
// which carries every field FileInfo needs in one round trip.
func buildQueryDirectoryRequest(fileID FileID, pattern string, restart bool, outputBufferLength uint32) []byte {
	patternBytes := EncodeStringToUTF16LE(pattern)

	w := NewByteWriter(32 + len(patternBytes))
	w.WriteUint16(33) // StructureSize
	w.WriteOneByte(FileIdBothDirectoryInformation)

	var flags uint8
	if restart {
		flags |= SMB2_RESTART_SCANS
	}
	w.WriteOneByte(flags)

	w.WriteUint32(0) // FileIndex
	w.WriteFileID(fileID)

	patternOffset := SMB2HeaderSize + 32
	w.WriteUint16(uint16(patternOffset))
	w.WriteUint16(uint16(len(patternBytes)))
	w.WriteUint32(outputBufferLength)
	w.WriteBytes(patternBytes)

	return w.Bytes()
}

// parseQueryDirectoryResponse parses an MS-SMB2 2.2.34 QUERY_DIRECTORY
// response buffer into a slice of FileIdBothDirectoryInformation entries.
// STATUS_NO_MORE_FILES is surfaced to the caller by the transport layer
// from the header status, not from this parse.
func parseQueryDirectoryResponse(payload []byte) ([]DirEntry, error) {
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

	var entries []DirEntry
	pos := 0
	for {
		if pos+104 > len(buf) {
			break
		}
		er := NewByteReader(buf[pos:])

		nextEntryOffset := er.ReadUint32()
		er.Skip(4) // FileIndex
		creationTime := er.ReadUint64()
		lastAccessTime := er.ReadUint64()
		lastWriteTime := er.ReadUint64()
		changeTime := er.ReadUint64()
		endOfFile := er.ReadUint64()
		allocationSize := er.ReadUint64()
		fileAttributes := er.ReadUint32()
		nameLen := er.ReadUint32()
		er.Skip(4)  // EaSize
		er.Skip(1)  // ShortNameLength
		er.Skip(1)  // Reserved1
		er.Skip(24) // ShortName
		er.Skip(2)  // Reserved2
		fileID := er.ReadUint64()
		name := er.ReadUTF16String(int(nameLen))

		if err := er.Err(); err != nil {
			return nil, err
		}

		if name != "." && name != ".." {
			entries = append(entries, DirEntry{
				Name:           name,
				FileAttributes: fileAttributes,
				EndOfFile:      endOfFile,
				AllocationSize: allocationSize,
				CreationTime:   FiletimeToTime(creationTime),
				LastAccessTime: FiletimeToTime(lastAccessTime),
				LastWriteTime:  FiletimeToTime(lastWriteTime),
				ChangeTime:     FiletimeToTime(changeTime),
				FileID:         fileID,
			})
		}

		if nextEntryOffset == 0 {
			break
		}
		pos += int(nextEntryOffset)
	}

	return entries, nil
}

// SMB2 CHANGE_NOTIFY flags
const (
	SMB2_WATCH_TREE uint16 = 0x0001
)

// File/Directory change filter flags (MS-FSCC 2.7.1 FILE_NOTIFY_CHANGE_*).
const (
	FILE_NOTIFY_CHANGE_FILE_NAME   uint32 = 0x00000001
	FILE_NOTIFY_CHANGE_DIR_NAME    uint32 = 0x00000002
	FILE_NOTIFY_CHANGE_ATTRIBUTES  uint32 = 0x00000004
	FILE_NOTIFY_CHANGE_SIZE        uint32 = 0x00000008
	FILE_NOTIFY_CHANGE_LAST_WRITE  uint32 = 0x00000010
	FILE_NOTIFY_CHANGE_LAST_ACCESS uint32 = 0x00000020
	FILE_NOTIFY_CHANGE_CREATION    uint32 = 0x00000040
	FILE_NOTIFY_CHANGE_SECURITY    uint32 = 0x00000100
)

// buildChangeNotifyRequest constructs an MS-SMB2 2.2.35 CHANGE_NOTIFY
// request. The server replies with STATUS_PENDING immediately and a real
// response only once a change fires or the handle closes (§4.9, §6).
func buildChangeNotifyRequest(fileID FileID, completionFilter uint32, watchTree bool, outputBufferLength uint32) []byte {
	w := NewByteWriter(32)
	w.WriteUint16(32) // StructureSize

	var flags uint16
	if watchTree {
		flags |= SMB2_WATCH_TREE
	}
	w.WriteUint16(flags)

	w.WriteUint32(outputBufferLength)
	w.WriteFileID(fileID)
	w.WriteUint32(completionFilter)
	w.WriteUint32(0) // Reserved

	return w.Bytes()
}

// ChangeNotifyEvent is one MS-FSCC FILE_NOTIFY_INFORMATION record.
// FileID identifies the watched directory the event was reported against;
// it is populated by the transport when the event is routed to a specific
// Directory.Watch channel, and left zero on events delivered only through
// the client's catch-all notification channel.
type ChangeNotifyEvent struct {
	FileID FileID
	Action uint32
	Name   string
}

// File action codes (MS-FSCC 2.7.1 FILE_ACTION_*).
const (
	FILE_ACTION_ADDED            uint32 = 0x00000001
	FILE_ACTION_REMOVED          uint32 = 0x00000002
	FILE_ACTION_MODIFIED         uint32 = 0x00000003
	FILE_ACTION_RENAMED_OLD_NAME uint32 = 0x00000004
	FILE_ACTION_RENAMED_NEW_NAME uint32 = 0x00000005
)

// parseChangeNotifyResponse parses an MS-SMB2 2.2.36 CHANGE_NOTIFY
// response buffer of chained FILE_NOTIFY_INFORMATION records.
func parseChangeNotifyResponse(payload []byte) ([]ChangeNotifyEvent, error) {
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

	if bufLength == 0 {
		return nil, nil
	}

	start := int(bufOffset) - SMB2HeaderSize
	if start < 0 || start+int(bufLength) > len(payload) {
		return nil, ErrInvalidSizeField
	}
	buf := payload[start : start+int(bufLength)]

	var events []ChangeNotifyEvent
	pos := 0
	for pos+12 <= len(buf) {
		er := NewByteReader(buf[pos:])
		nextEntryOffset := er.ReadUint32()
		action := er.ReadUint32()
		nameLen := er.ReadUint32()
		name := er.ReadUTF16String(int(nameLen))

		if err := er.Err(); err != nil {
			return nil, err
		}

		events = append(events, ChangeNotifyEvent{Action: action, Name: name})

		if nextEntryOffset == 0 {
			break
		}
		pos += int(nextEntryOffset)
	}

	return events, nil
}
