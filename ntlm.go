package smbfs

import (
	"crypto/rand"
	"encoding/binary"
	"strings"
	"time"
)

// NTLM message types (MS-NLMP 2.2)
const (
	ntlmNegotiateMessage    = 1
	ntlmChallengeMessage    = 2
	ntlmAuthenticateMessage = 3
)

// NTLM negotiate flags actually exercised by this client.
const (
	ntlmFlagNegotiateUnicode            = 0x00000001
	ntlmFlagRequestTarget               = 0x00000004
	ntlmFlagNegotiateSign               = 0x00000010
	ntlmFlagNegotiateNTLM               = 0x00000200
	ntlmFlagNegotiateAlwaysSign         = 0x00008000
	ntlmFlagNegotiateExtendedSessionSec = 0x00080000
	ntlmFlagNegotiateTargetInfo         = 0x00800000
	ntlmFlagNegotiateVersion            = 0x02000000
	ntlmFlagNegotiateKeyExch            = 0x40000000
)

var ntlmSignature = []byte("NTLMSSP\x00")

// ntlmVersion selects which response style the client produces.
type ntlmVersion int

const (
	ntlmVersionAuto ntlmVersion = iota
	ntlmVersionV1
	ntlmVersionV2
)

// buildNTLMNegotiateMessage builds the Type 1 NTLMSSP message carried
// directly in the SessionSetup security buffer (no SPNEGO wrapper, per
// §1 Non-goals — Kerberos/SPNEGO is out of scope and the server accepts a
// bare NTLMSSP blob). workstation and domain are ASCII fields.
func buildNTLMNegotiateMessage(workstation, domain string, forced ntlmVersion) []byte {
	flags := uint32(ntlmFlagNegotiateUnicode | ntlmFlagNegotiateSign | ntlmFlagNegotiateAlwaysSign | ntlmFlagNegotiateNTLM)
	if forced != ntlmVersionV1 {
		flags |= ntlmFlagNegotiateExtendedSessionSec | ntlmFlagNegotiateTargetInfo | ntlmFlagNegotiateVersion
	}
	if domain != "" {
		flags |= ntlmFlagRequestTarget
	}

	domainBytes := []byte(strings.ToUpper(domain))
	wsBytes := []byte(strings.ToUpper(workstation))

	const headerSize = 32
	domainOffset := headerSize
	wsOffset := domainOffset + len(domainBytes)

	msg := make([]byte, wsOffset+len(wsBytes))
	copy(msg[0:8], ntlmSignature)
	binary.LittleEndian.PutUint32(msg[8:12], ntlmNegotiateMessage)
	binary.LittleEndian.PutUint32(msg[12:16], flags)

	binary.LittleEndian.PutUint16(msg[16:18], uint16(len(domainBytes)))
	binary.LittleEndian.PutUint16(msg[18:20], uint16(len(domainBytes)))
	binary.LittleEndian.PutUint32(msg[20:24], uint32(domainOffset))

	binary.LittleEndian.PutUint16(msg[24:26], uint16(len(wsBytes)))
	binary.LittleEndian.PutUint16(msg[26:28], uint16(len(wsBytes)))
	binary.LittleEndian.PutUint32(msg[28:32], uint32(wsOffset))

	copy(msg[domainOffset:], domainBytes)
	copy(msg[wsOffset:], wsBytes)

	return msg
}

// ntlmChallenge carries the fields parsed out of a Type 2 message.
type ntlmChallenge struct {
	ServerChallenge [8]byte
	Flags           uint32
	TargetInfo      []byte
	TargetName      string
}

// parseNTLMChallengeMessage parses the Type 2 (Challenge) message the
// server returns in a SessionSetup response with status
// STATUS_MORE_PROCESSING_REQUIRED.
func parseNTLMChallengeMessage(blob []byte) (*ntlmChallenge, error) {
	if len(blob) < 32 {
		return nil, ErrAuthenticationFailed
	}
	if string(blob[0:8]) != string(ntlmSignature) {
		return nil, ErrAuthenticationFailed
	}
	if binary.LittleEndian.Uint32(blob[8:12]) != ntlmChallengeMessage {
		return nil, ErrAuthenticationFailed
	}

	targetNameLen := binary.LittleEndian.Uint16(blob[12:14])
	targetNameOffset := binary.LittleEndian.Uint32(blob[16:20])

	flags := binary.LittleEndian.Uint32(blob[20:24])

	ch := &ntlmChallenge{Flags: flags}
	copy(ch.ServerChallenge[:], blob[24:32])

	if targetNameLen > 0 && int(targetNameOffset)+int(targetNameLen) <= len(blob) {
		ch.TargetName = DecodeUTF16LEToString(blob[targetNameOffset : targetNameOffset+uint32(targetNameLen)])
	}

	if flags&ntlmFlagNegotiateTargetInfo != 0 && len(blob) >= 48 {
		targetInfoLen := binary.LittleEndian.Uint16(blob[40:42])
		targetInfoOffset := binary.LittleEndian.Uint32(blob[44:48])
		if targetInfoLen > 0 && int(targetInfoOffset)+int(targetInfoLen) <= len(blob) {
			ch.TargetInfo = blob[targetInfoOffset : targetInfoOffset+uint32(targetInfoLen)]
		}
	}

	return ch, nil
}

// ntlmAuthResult is the Type 3 buffer plus the session key the rest of
// the client needs for signing/encryption key derivation.
type ntlmAuthResult struct {
	Type3      []byte
	SessionKey []byte
}

// buildNTLMAuthenticateMessage builds the Type 3 (Authenticate) message
// and computes the NTLM session key, following the caller's version
// policy: forced v1/v2, or auto (honor the server's
// ExtendedSessionSecurity flag from the challenge), per §4.3.
func buildNTLMAuthenticateMessage(ch *ntlmChallenge, username, password, domain, workstation string, forced ntlmVersion) (*ntlmAuthResult, error) {
	useV2 := forced == ntlmVersionV2
	if forced == ntlmVersionAuto {
		useV2 = ch.Flags&ntlmFlagNegotiateExtendedSessionSec != 0
	}

	var lmResponse, ntResponse, sessionKey []byte

	if useV2 {
		ntowf2 := ntowfv2(password, username, domain)

		clientChallenge := make([]byte, 8)
		rand.Read(clientChallenge)

		temp := buildNTLMv2Temp(clientChallenge, ch.TargetInfo)

		ntProof := hmacMD5(ntowf2, append(append([]byte{}, ch.ServerChallenge[:]...), temp...))
		ntResponse = append(append([]byte{}, ntProof...), temp...)

		lmProof := hmacMD5(ntowf2, append(append([]byte{}, ch.ServerChallenge[:]...), clientChallenge...))
		lmResponse = append(append([]byte{}, lmProof...), clientChallenge...)

		sessionKey = hmacMD5(ntowf2, ntProof)
	} else {
		ntHash := ntowfv1(password)
		lmH := lmHash(password)

		ntResponse = ntlmv1Response(ntHash, ch.ServerChallenge[:])
		lmResponse = ntlmv1Response(lmH, ch.ServerChallenge[:])

		sessionKey = hmacMD5(ntHash, ntResponse)[:16]
	}

	usernameBytes := EncodeStringToUTF16LE(username)
	domainBytes := EncodeStringToUTF16LE(domain)
	wsBytes := EncodeStringToUTF16LE(strings.ToUpper(workstation))

	const headerSize = 64
	lmOffset := headerSize
	ntOffset := lmOffset + len(lmResponse)
	domainOffset := ntOffset + len(ntResponse)
	userOffset := domainOffset + len(domainBytes)
	wsOffset := userOffset + len(usernameBytes)
	sessionKeyOffset := wsOffset + len(wsBytes)

	msg := make([]byte, sessionKeyOffset)
	copy(msg[0:8], ntlmSignature)
	binary.LittleEndian.PutUint32(msg[8:12], ntlmAuthenticateMessage)

	binary.LittleEndian.PutUint16(msg[12:14], uint16(len(lmResponse)))
	binary.LittleEndian.PutUint16(msg[14:16], uint16(len(lmResponse)))
	binary.LittleEndian.PutUint32(msg[16:20], uint32(lmOffset))

	binary.LittleEndian.PutUint16(msg[20:22], uint16(len(ntResponse)))
	binary.LittleEndian.PutUint16(msg[22:24], uint16(len(ntResponse)))
	binary.LittleEndian.PutUint32(msg[24:28], uint32(ntOffset))

	binary.LittleEndian.PutUint16(msg[28:30], uint16(len(domainBytes)))
	binary.LittleEndian.PutUint16(msg[30:32], uint16(len(domainBytes)))
	binary.LittleEndian.PutUint32(msg[32:36], uint32(domainOffset))

	binary.LittleEndian.PutUint16(msg[36:38], uint16(len(usernameBytes)))
	binary.LittleEndian.PutUint16(msg[38:40], uint16(len(usernameBytes)))
	binary.LittleEndian.PutUint32(msg[40:44], uint32(userOffset))

	binary.LittleEndian.PutUint16(msg[44:46], uint16(len(wsBytes)))
	binary.LittleEndian.PutUint16(msg[46:48], uint16(len(wsBytes)))
	binary.LittleEndian.PutUint32(msg[48:52], uint32(wsOffset))

	binary.LittleEndian.PutUint16(msg[52:54], 0) // session key len, unused (no KEY_EXCH)
	binary.LittleEndian.PutUint16(msg[54:56], 0)
	binary.LittleEndian.PutUint32(msg[56:60], uint32(sessionKeyOffset))

	flags := uint32(ntlmFlagNegotiateUnicode | ntlmFlagNegotiateNTLM)
	if useV2 {
		flags |= ntlmFlagNegotiateExtendedSessionSec
	}
	binary.LittleEndian.PutUint32(msg[60:64], flags)

	copy(msg[lmOffset:], lmResponse)
	copy(msg[ntOffset:], ntResponse)
	copy(msg[domainOffset:], domainBytes)
	copy(msg[userOffset:], usernameBytes)
	copy(msg[wsOffset:], wsBytes)

	return &ntlmAuthResult{Type3: msg, SessionKey: sessionKey}, nil
}

// buildNTLMv2Temp builds the NTLMv2 "temp" blob per §4.3: a fixed
// 0x01 0x01 signature, 6 reserved zero bytes, the current FILETIME
// timestamp, the 8-byte client challenge, 4 reserved zero bytes, the
// server's target-info AV_PAIR list echoed back verbatim, and a trailing
// 4 zero bytes.
func buildNTLMv2Temp(clientChallenge, targetInfo []byte) []byte {
	w := NewByteWriter(28 + len(targetInfo))
	w.WriteOneByte(0x01)
	w.WriteOneByte(0x01)
	w.WriteZeros(6)
	w.WriteUint64(TimeToFiletime(time.Now()))
	w.WriteBytes(clientChallenge)
	w.WriteZeros(4)
	w.WriteBytes(targetInfo)
	w.WriteZeros(4)
	return w.Bytes()
}
