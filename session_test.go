package smbfs

import (
	"context"
	"net"
	"testing"
	"time"
)

// fakeNegotiateResponsePayload builds an MS-SMB2 2.2.4 NEGOTIATE response
// body carrying no security buffer, for a scripted test server.
func fakeNegotiateResponsePayload(dialect SMBDialect, serverGUID [16]byte) []byte {
	w := NewByteWriter(64)
	w.WriteUint16(65) // StructureSize
	w.WriteUint16(uint16(SMB2_NEGOTIATE_SIGNING_ENABLED))
	w.WriteUint16(uint16(dialect))
	w.WriteUint16(0) // Reserved / NegotiateContextCount
	w.WriteGUID(serverGUID)
	w.WriteUint32(SMB2_GLOBAL_CAP_LARGE_MTU)
	w.WriteUint32(MaxTransactSize)
	w.WriteUint32(MaxReadSize)
	w.WriteUint32(MaxWriteSize)
	w.WriteZeros(8) // SystemTime
	w.WriteZeros(8) // ServerStartTime
	w.WriteUint16(0) // SecurityBufferOffset
	w.WriteUint16(0) // SecurityBufferLength
	w.WriteUint32(0) // NegotiateContextOffset/Reserved2
	return w.Bytes()
}

// fakeSessionSetupResponsePayload builds an MS-SMB2 2.2.6 SESSION_SETUP
// response body, optionally carrying securityBuffer (the Type2 challenge,
// for the MORE_PROCESSING_REQUIRED leg).
func fakeSessionSetupResponsePayload(sessionFlags uint16, securityBuffer []byte) []byte {
	w := NewByteWriter(8 + len(securityBuffer))
	w.WriteUint16(9) // StructureSize
	w.WriteUint16(sessionFlags)
	if len(securityBuffer) > 0 {
		w.WriteUint16(uint16(SMB2HeaderSize + 8))
	} else {
		w.WriteUint16(0)
	}
	w.WriteUint16(uint16(len(securityBuffer)))
	w.WriteBytes(securityBuffer)
	return w.Bytes()
}

// writeFakeResponse sends one scripted SMB2 response frame on conn, echoing
// the request's message ID.
func writeFakeResponse(conn net.Conn, command uint16, messageID uint64, sessionID uint64, status NTStatus, payload []byte) error {
	header := &SMB2Header{
		StructureSize: SMB2HeaderSize,
		Command:       command,
		MessageID:     messageID,
		SessionID:     sessionID,
		Status:        status,
		Flags:         SMB2_FLAGS_SERVER_TO_REDIR,
	}
	copy(header.ProtocolID[:], SMB2ProtocolID)

	msg := make([]byte, SMB2HeaderSize+len(payload))
	copy(msg, header.Marshal())
	copy(msg[SMB2HeaderSize:], payload)

	_, err := conn.Write(netbiosFrame(msg))
	return err
}

// runFakeSMBServer accepts exactly one connection on ln and drives it
// through NEGOTIATE, the two-legged NTLM SESSION_SETUP, and (if a LOGOFF
// request arrives) a successful LOGOFF response.
func runFakeSMBServer(t *testing.T, ln net.Listener, dialect SMBDialect) {
	t.Helper()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		const assignedSessionID = 0x9999

		for {
			req, err := readNetbiosMessage(conn)
			if err != nil {
				return
			}
			h, err := UnmarshalSMB2Header(req)
			if err != nil {
				return
			}

			switch h.Command {
			case SMB2_NEGOTIATE:
				payload := fakeNegotiateResponsePayload(dialect, NewGUID())
				writeFakeResponse(conn, SMB2_NEGOTIATE, h.MessageID, 0, STATUS_SUCCESS, payload)

			case SMB2_SESSION_SETUP:
				if h.SessionID == 0 {
					// First leg: Type1 negotiate -> reply with a Type2 challenge.
					challenge := buildChallengeMessage(t, "CORP", []byte{0x00, 0x00, 0x00, 0x00}, ntlmFlagNegotiateTargetInfo)
					payload := fakeSessionSetupResponsePayload(0, challenge)
					writeFakeResponse(conn, SMB2_SESSION_SETUP, h.MessageID, assignedSessionID, STATUS_MORE_PROCESSING_REQUIRED, payload)
				} else {
					// Second leg: Type3 authenticate -> success.
					payload := fakeSessionSetupResponsePayload(0, nil)
					writeFakeResponse(conn, SMB2_SESSION_SETUP, h.MessageID, assignedSessionID, STATUS_SUCCESS, payload)
				}

			case SMB2_LOGOFF:
				writeFakeResponse(conn, SMB2_LOGOFF, h.MessageID, h.SessionID, STATUS_SUCCESS, []byte{4, 0, 0, 0})
				return

			default:
				writeFakeResponse(conn, h.Command, h.MessageID, h.SessionID, STATUS_NOT_SUPPORTED, nil)
			}
		}
	}()
}

func listenerConfig(t *testing.T, ln net.Listener) *Config {
	t.Helper()
	addr := ln.Addr().(*net.TCPAddr)
	return &Config{
		Server:      "127.0.0.1",
		Port:        addr.Port,
		Share:       "share",
		Username:    "alice",
		Password:    "hunter2",
		Domain:      "CORP",
		ConnTimeout: 2 * time.Second,
		OpTimeout:   2 * time.Second,
	}
}

func TestConnect_NegotiatesAndAuthenticatesOverNTLM(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	defer ln.Close()

	runFakeSMBServer(t, ln, SMB2_1)
	cfg := listenerConfig(t, ln)

	sess, err := Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.client.Close()

	if sess.Dialect != SMB2_1 {
		t.Errorf("Dialect = %v, want %v", sess.Dialect, SMB2_1)
	}
	if sess.ID != 0x9999 {
		t.Errorf("Session.ID = %#x, want %#x", sess.ID, 0x9999)
	}
	if len(sess.signingKey) == 0 {
		t.Error("signingKey not derived after authentication")
	}
	if sess.encryptionEnabled {
		t.Error("encryption should not be enabled below SMB 3.0")
	}
}

func TestConnect_RejectsUnsupportedDialect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	defer ln.Close()

	runFakeSMBServer(t, ln, SMBDialect(0x9999))
	cfg := listenerConfig(t, ln)

	if _, err := Connect(context.Background(), cfg); err != ErrUnsupportedDialect {
		t.Errorf("Connect() error = %v, want %v", err, ErrUnsupportedDialect)
	}
}

func TestSessionLogoff_Idempotent(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	defer ln.Close()

	runFakeSMBServer(t, ln, SMB2_1)
	cfg := listenerConfig(t, ln)

	sess, err := Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.client.Close()

	if err := sess.Logoff(context.Background()); err != nil {
		t.Fatalf("Logoff: %v", err)
	}
	if err := sess.Logoff(context.Background()); err != nil {
		t.Fatalf("second Logoff: %v", err)
	}
}

func TestDialectSupported(t *testing.T) {
	if !dialectSupported(SMB2_1) {
		t.Error("SMB2_1 should be supported")
	}
	if dialectSupported(SMBDialect(0xFFFF)) {
		t.Error("an unknown dialect should not be reported as supported")
	}
}

func TestLocalWorkstationName_UppercasesAndStripsDomain(t *testing.T) {
	name := localWorkstationName()
	if name == "" {
		t.Fatal("localWorkstationName returned empty string")
	}
	for _, r := range name {
		if r >= 'a' && r <= 'z' {
			t.Errorf("localWorkstationName() = %q, contains lowercase", name)
			break
		}
	}
}
