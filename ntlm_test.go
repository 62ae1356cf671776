package smbfs

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestBuildNTLMNegotiateMessage_HeaderFields(t *testing.T) {
	msg := buildNTLMNegotiateMessage("WORKSTATION", "CORP", ntlmVersionAuto)

	if !bytes.Equal(msg[0:8], ntlmSignature) {
		t.Fatalf("signature = %q, want %q", msg[0:8], ntlmSignature)
	}
	if got := binary.LittleEndian.Uint32(msg[8:12]); got != ntlmNegotiateMessage {
		t.Errorf("message type = %d, want %d", got, ntlmNegotiateMessage)
	}

	flags := binary.LittleEndian.Uint32(msg[12:16])
	if flags&ntlmFlagNegotiateUnicode == 0 {
		t.Error("negotiate message missing NEGOTIATE_UNICODE flag")
	}
	if flags&ntlmFlagRequestTarget == 0 {
		t.Error("negotiate message with a domain should set NEGOTIATE_REQUEST_TARGET")
	}
}

func TestBuildNTLMNegotiateMessage_ForcedV1OmitsExtendedSecurity(t *testing.T) {
	msg := buildNTLMNegotiateMessage("WS", "", ntlmVersionV1)
	flags := binary.LittleEndian.Uint32(msg[12:16])
	if flags&ntlmFlagNegotiateExtendedSessionSec != 0 {
		t.Error("forced NTLMv1 negotiate message should not set NEGOTIATE_EXTENDED_SESSIONSECURITY")
	}
}

func TestBuildNTLMNegotiateMessage_NoDomainOmitsRequestTarget(t *testing.T) {
	msg := buildNTLMNegotiateMessage("WS", "", ntlmVersionAuto)
	flags := binary.LittleEndian.Uint32(msg[12:16])
	if flags&ntlmFlagRequestTarget != 0 {
		t.Error("negotiate message with no domain should not set NEGOTIATE_REQUEST_TARGET")
	}
}

// buildChallengeMessage constructs a minimal, well-formed Type 2 message for
// parseNTLMChallengeMessage tests, mirroring the layout that function parses.
func buildChallengeMessage(t *testing.T, targetName string, targetInfo []byte, flags uint32) []byte {
	t.Helper()

	nameBytes := EncodeStringToUTF16LE(targetName)
	const headerSize = 48
	nameOffset := headerSize
	infoOffset := nameOffset + len(nameBytes)

	msg := make([]byte, infoOffset+len(targetInfo))
	copy(msg[0:8], ntlmSignature)
	binary.LittleEndian.PutUint32(msg[8:12], ntlmChallengeMessage)

	binary.LittleEndian.PutUint16(msg[12:14], uint16(len(nameBytes)))
	binary.LittleEndian.PutUint16(msg[14:16], uint16(len(nameBytes)))
	binary.LittleEndian.PutUint32(msg[16:20], uint32(nameOffset))

	binary.LittleEndian.PutUint32(msg[20:24], flags)
	for i := 0; i < 8; i++ {
		msg[24+i] = byte(0xA0 + i)
	}

	binary.LittleEndian.PutUint16(msg[40:42], uint16(len(targetInfo)))
	binary.LittleEndian.PutUint16(msg[42:44], uint16(len(targetInfo)))
	binary.LittleEndian.PutUint32(msg[44:48], uint32(infoOffset))

	copy(msg[nameOffset:], nameBytes)
	copy(msg[infoOffset:], targetInfo)
	return msg
}

func TestParseNTLMChallengeMessage_ParsesFieldsCorrectly(t *testing.T) {
	targetInfo := []byte{0x02, 0x00, 0x04, 0x00, 'C', 0x00, 'O', 0x00, 0x00, 0x00, 0x00, 0x00}
	flags := uint32(ntlmFlagNegotiateTargetInfo | ntlmFlagNegotiateExtendedSessionSec)
	raw := buildChallengeMessage(t, "DOMAIN", targetInfo, flags)

	ch, err := parseNTLMChallengeMessage(raw)
	if err != nil {
		t.Fatalf("parseNTLMChallengeMessage: %v", err)
	}
	if ch.TargetName != "DOMAIN" {
		t.Errorf("TargetName = %q, want %q", ch.TargetName, "DOMAIN")
	}
	if !bytes.Equal(ch.TargetInfo, targetInfo) {
		t.Errorf("TargetInfo = %x, want %x", ch.TargetInfo, targetInfo)
	}
	wantChallenge := [8]byte{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5, 0xA6, 0xA7}
	if ch.ServerChallenge != wantChallenge {
		t.Errorf("ServerChallenge = %x, want %x", ch.ServerChallenge, wantChallenge)
	}
	if ch.Flags != flags {
		t.Errorf("Flags = %#x, want %#x", ch.Flags, flags)
	}
}

func TestParseNTLMChallengeMessage_RejectsShortOrInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		blob []byte
	}{
		{"too short", make([]byte, 10)},
		{"wrong signature", append([]byte("WRONGSIG"), make([]byte, 24)...)},
		{"wrong message type", func() []byte {
			b := make([]byte, 32)
			copy(b[0:8], ntlmSignature)
			binary.LittleEndian.PutUint32(b[8:12], ntlmNegotiateMessage)
			return b
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseNTLMChallengeMessage(tt.blob); err != ErrAuthenticationFailed {
				t.Errorf("error = %v, want %v", err, ErrAuthenticationFailed)
			}
		})
	}
}

func TestBuildNTLMAuthenticateMessage_V2ResponseShape(t *testing.T) {
	ch := &ntlmChallenge{
		Flags:      ntlmFlagNegotiateExtendedSessionSec | ntlmFlagNegotiateTargetInfo,
		TargetInfo: []byte{0x00, 0x00, 0x00, 0x00}, // terminator AV_PAIR only
	}
	for i := 0; i < 8; i++ {
		ch.ServerChallenge[i] = byte(i)
	}

	result, err := buildNTLMAuthenticateMessage(ch, "alice", "hunter2", "CORP", "WS", ntlmVersionV2)
	if err != nil {
		t.Fatalf("buildNTLMAuthenticateMessage: %v", err)
	}
	if !bytes.Equal(result.Type3[0:8], ntlmSignature) {
		t.Fatalf("signature = %q, want %q", result.Type3[0:8], ntlmSignature)
	}
	if got := binary.LittleEndian.Uint32(result.Type3[8:12]); got != ntlmAuthenticateMessage {
		t.Errorf("message type = %d, want %d", got, ntlmAuthenticateMessage)
	}
	if len(result.SessionKey) != 16 {
		t.Errorf("SessionKey length = %d, want 16", len(result.SessionKey))
	}

	// NT response is NTPROOF(16) || temp blob; temp blob is at least 28 bytes
	// (fixed header) plus the echoed target info.
	ntLen := binary.LittleEndian.Uint16(result.Type3[20:22])
	if ntLen < 16+28 {
		t.Errorf("NT response length = %d, want at least %d", ntLen, 16+28)
	}
}

func TestBuildNTLMAuthenticateMessage_V1ResponseShape(t *testing.T) {
	ch := &ntlmChallenge{}
	for i := 0; i < 8; i++ {
		ch.ServerChallenge[i] = byte(0xF0 + i)
	}

	result, err := buildNTLMAuthenticateMessage(ch, "bob", "password1", "", "WS", ntlmVersionV1)
	if err != nil {
		t.Fatalf("buildNTLMAuthenticateMessage: %v", err)
	}

	ntLen := binary.LittleEndian.Uint16(result.Type3[20:22])
	lmLen := binary.LittleEndian.Uint16(result.Type3[12:14])
	if ntLen != 24 {
		t.Errorf("NTLMv1 NT response length = %d, want 24", ntLen)
	}
	if lmLen != 24 {
		t.Errorf("NTLMv1 LM response length = %d, want 24", lmLen)
	}
	if len(result.SessionKey) != 16 {
		t.Errorf("SessionKey length = %d, want 16", len(result.SessionKey))
	}
}

func TestBuildNTLMv2Temp_EchoesTargetInfoAndFixedSignature(t *testing.T) {
	clientChallenge := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	targetInfo := []byte{0xAA, 0xBB, 0xCC}

	temp := buildNTLMv2Temp(clientChallenge, targetInfo)
	if len(temp) != 28+len(targetInfo) {
		t.Fatalf("temp length = %d, want %d", len(temp), 28+len(targetInfo))
	}
	if temp[0] != 0x01 || temp[1] != 0x01 {
		t.Errorf("temp signature = %x %x, want 01 01", temp[0], temp[1])
	}
	if !bytes.Equal(temp[16:24], clientChallenge) {
		t.Errorf("client challenge not placed at expected offset: got %x, want %x", temp[16:24], clientChallenge)
	}
	if !bytes.Equal(temp[28:28+len(targetInfo)], targetInfo) {
		t.Error("target info not echoed back verbatim")
	}
}
