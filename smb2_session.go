package smbfs

// SMB2 Session Setup flags
const (
	SMB2_SESSION_FLAG_BINDING uint16 = 0x01 // Session binding (multi-channel)
)

// SMB2 Session Flags (in response)
const (
	SMB2_SESSION_FLAG_IS_GUEST uint16 = 0x0001 // Session is guest
	SMB2_SESSION_FLAG_IS_NULL  uint16 = 0x0002 // Session is null (anonymous)
	SMB2_SESSION_FLAG_ENCRYPT  uint16 = 0x0004 // Session requires encryption
)

// buildSessionSetupRequest constructs an MS-SMB2 2.2.5 SESSION_SETUP
// request carrying an NTLMSSP security buffer.
func buildSessionSetupRequest(securityBlob []byte, signingRequired bool, previousSessionID uint64) []byte {
	w := NewByteWriter(24 + len(securityBlob))
	w.WriteUint16(25) // StructureSize
	w.WriteOneByte(0) // Flags

	securityMode := byte(SMB2_NEGOTIATE_SIGNING_ENABLED)
	if signingRequired {
		securityMode |= byte(SMB2_NEGOTIATE_SIGNING_REQUIRED)
	}
	w.WriteOneByte(securityMode)

	w.WriteUint32(0) // Capabilities
	w.WriteUint32(0) // Channel

	secBufOffset := SMB2HeaderSize + 24
	w.WriteUint16(uint16(secBufOffset))
	w.WriteUint16(uint16(len(securityBlob)))
	w.WriteUint64(previousSessionID)
	w.WriteBytes(securityBlob)

	return w.Bytes()
}

// sessionSetupResult carries the fields of a parsed SESSION_SETUP response.
type sessionSetupResult struct {
	SessionFlags   uint16
	SecurityBuffer []byte
}

// parseSessionSetupResponse parses an MS-SMB2 2.2.6 SESSION_SETUP response
// body, whether it carries STATUS_SUCCESS or
// STATUS_MORE_PROCESSING_REQUIRED (the Type2 NTLM challenge case); both
// share the same wire layout.
func parseSessionSetupResponse(payload []byte) (*sessionSetupResult, error) {
	r := NewByteReader(payload)

	structSize := r.ReadUint16()
	if structSize != 9 {
		return nil, ErrInvalidSizeField
	}

	sessionFlags := r.ReadUint16()
	secBufOffset := r.ReadUint16()
	secBufLen := r.ReadUint16()

	if err := r.Err(); err != nil {
		return nil, err
	}

	result := &sessionSetupResult{SessionFlags: sessionFlags}

	if secBufLen > 0 {
		bufStart := int(secBufOffset) - SMB2HeaderSize
		if bufStart < 0 || bufStart+int(secBufLen) > len(payload) {
			return nil, ErrInvalidSizeField
		}
		result.SecurityBuffer = payload[bufStart : bufStart+int(secBufLen)]
	}

	return result, nil
}

// buildLogoffRequest constructs an MS-SMB2 2.2.7 LOGOFF request.
func buildLogoffRequest() []byte {
	w := NewByteWriter(4)
	w.WriteUint16(4) // StructureSize
	w.WriteUint16(0) // Reserved
	return w.Bytes()
}

// parseLogoffResponse parses an MS-SMB2 2.2.8 LOGOFF response; it carries
// no information beyond the structure size, so only validation matters.
func parseLogoffResponse(payload []byte) error {
	r := NewByteReader(payload)
	structSize := r.ReadUint16()
	if structSize != 4 {
		return ErrInvalidSizeField
	}
	return r.Err()
}
