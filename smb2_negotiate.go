package smbfs

// buildNegotiateRequest constructs the SMB2 NEGOTIATE request body (MS-SMB2
// 2.2.3). The client offers every dialect it supports, highest first; SMB
// 3.1.1 is never offered, since this client never negotiates preauth
// integrity or encryption negotiate contexts (§1 Non-goals).
//
// StructureSize (2): Must be 36
// DialectCount (2)
// SecurityMode (2)
// Reserved (2)
// Capabilities (4)
// ClientGUID (16)
// NegotiateContextOffset (4): 0, no SMB 3.1.1 contexts
// NegotiateContextCount (2): 0
// Reserved2 (2)
// Dialects (2 * DialectCount)
func buildNegotiateRequest(clientGUID [16]byte, signingRequired bool) []byte {
	dialects := offeredDialects()

	w := NewByteWriter(36 + len(dialects)*2)
	w.WriteUint16(36) // StructureSize
	w.WriteUint16(uint16(len(dialects)))

	securityMode := SMB2_NEGOTIATE_SIGNING_ENABLED
	if signingRequired {
		securityMode |= SMB2_NEGOTIATE_SIGNING_REQUIRED
	}
	w.WriteUint16(securityMode)

	w.WriteUint16(0) // Reserved
	w.WriteUint32(SMB2_GLOBAL_CAP_LARGE_MTU)
	w.WriteGUID(clientGUID)
	w.WriteUint32(0) // NegotiateContextOffset
	w.WriteUint16(0) // NegotiateContextCount
	w.WriteUint16(0) // Reserved2

	for _, d := range dialects {
		w.WriteUint16(uint16(d))
	}

	return w.Bytes()
}

// offeredDialects returns SupportedDialects with SMB 3.1.1 excluded.
func offeredDialects() []SMBDialect {
	out := make([]SMBDialect, 0, len(SupportedDialects))
	for _, d := range SupportedDialects {
		if d == SMB3_1_1 {
			continue
		}
		out = append(out, d)
	}
	return out
}

// negotiateResult carries the fields of a parsed NEGOTIATE response that
// the rest of the client needs (§3 Session).
type negotiateResult struct {
	Dialect              SMBDialect
	ServerGUID           [16]byte
	SecurityModeSigning  bool
	SecurityModeRequired bool
	Capabilities         uint32
	MaxTransactSize      uint32
	MaxReadSize          uint32
	MaxWriteSize         uint32
	SecurityBuffer       []byte
}

// parseNegotiateResponse parses the MS-SMB2 2.2.4 NEGOTIATE response body.
func parseNegotiateResponse(payload []byte) (*negotiateResult, error) {
	r := NewByteReader(payload)

	structSize := r.ReadUint16()
	if structSize != 65 {
		return nil, ErrInvalidSizeField
	}

	securityMode := r.ReadUint16()
	dialect := SMBDialect(r.ReadUint16())
	r.Skip(2) // NegotiateContextCount / Reserved for dialects below 3.1.1
	serverGUID := r.ReadGUID()
	capabilities := r.ReadUint32()
	maxTransactSize := r.ReadUint32()
	maxReadSize := r.ReadUint32()
	maxWriteSize := r.ReadUint32()
	r.Skip(8) // SystemTime
	r.Skip(8) // ServerStartTime
	secBufOffset := r.ReadUint16()
	secBufLen := r.ReadUint16()
	r.Skip(4) // NegotiateContextOffset / Reserved2

	if err := r.Err(); err != nil {
		return nil, err
	}

	result := &negotiateResult{
		Dialect:              dialect,
		ServerGUID:           serverGUID,
		SecurityModeSigning:  securityMode&SMB2_NEGOTIATE_SIGNING_ENABLED != 0,
		SecurityModeRequired: securityMode&SMB2_NEGOTIATE_SIGNING_REQUIRED != 0,
		Capabilities:         capabilities,
		MaxTransactSize:      maxTransactSize,
		MaxReadSize:          maxReadSize,
		MaxWriteSize:         maxWriteSize,
	}

	if secBufLen > 0 {
		bufStart := int(secBufOffset) - SMB2HeaderSize
		if bufStart < 0 || bufStart+int(secBufLen) > len(payload) {
			return nil, ErrInvalidSizeField
		}
		result.SecurityBuffer = payload[bufStart : bufStart+int(secBufLen)]
	}

	return result, nil
}

// formatDialects formats a slice of dialects for logging.
func formatDialects(dialects []SMBDialect) string {
	if len(dialects) == 0 {
		return "[]"
	}

	result := "["
	for i, d := range dialects {
		if i > 0 {
			result += ", "
		}
		result += d.String()
	}
	result += "]"
	return result
}
