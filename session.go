package smbfs

import (
	"context"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// authState tracks where a Session is in the negotiate/challenge/
// authenticate state machine (§3).
type authState int

const (
	authUnauthenticated authState = iota
	authNegotiating
	authChallenged
	authAuthenticated
	authLoggedOff
)

// Session is an authenticated SMB session: a negotiated dialect, derived
// signing/encryption keys, and the Trees opened under it. Encryption keys
// are set together or not at all; encryptionEnabled implies all three
// keys are present and the dialect is at least SMB 3.0 (§3 invariant).
type Session struct {
	client *Client
	config *Config
	logger Logger

	ID      uint64
	Dialect SMBDialect

	mu                sync.Mutex
	state             authState
	sessionKey        []byte
	signingKey        []byte
	encryptKey        []byte
	decryptKey        []byte
	encryptionEnabled bool
	trees             []*Tree
}

// Connect dials the server named by cfg, negotiates a dialect, and
// authenticates via NTLM, returning a ready-to-use Session.
func Connect(ctx context.Context, cfg *Config) (*Session, error) {
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dialer := &net.Dialer{Timeout: cfg.ConnTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(cfg.Server, strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, err
	}

	client := NewClient(conn, cfg)

	s := &Session{
		client: client,
		config: cfg,
		logger: cfg.Logger,
		state:  authUnauthenticated,
	}

	if err := s.authenticate(ctx); err != nil {
		client.Close()
		return nil, err
	}

	return s, nil
}

func (s *Session) logf(format string, v ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, v...)
	}
}

// authenticate drives negotiate -> Type1 -> Type2 -> Type3, then derives
// session keys and optionally enables encryption (§3, §4.1-4.3).
func (s *Session) authenticate(ctx context.Context) error {
	s.state = authNegotiating

	negReq := buildNegotiateRequest(s.client.ClientGUID, s.config.Signing)
	header, payload, err := s.client.Send(ctx, SMB2_NEGOTIATE, 0, 0, negReq, nil, nil)
	if err != nil {
		return err
	}
	if header.Status != STATUS_SUCCESS {
		return &ProtocolError{Command: SMB2_NEGOTIATE, Status: header.Status}
	}

	neg, err := parseNegotiateResponse(payload)
	if err != nil {
		return err
	}
	if !dialectSupported(neg.Dialect) {
		return ErrUnsupportedDialect
	}

	s.Dialect = neg.Dialect
	s.client.Dialect = neg.Dialect
	s.client.ServerGUID = neg.ServerGUID
	s.client.SecurityModeSigning = neg.SecurityModeSigning
	s.client.SecurityModeRequired = neg.SecurityModeRequired
	s.client.MaxTransactSize = neg.MaxTransactSize
	s.client.MaxReadSize = neg.MaxReadSize
	s.client.MaxWriteSize = neg.MaxWriteSize

	s.state = authChallenged

	workstation := localWorkstationName()
	forcedVersion := s.forcedNtlmVersion()

	type1 := buildNTLMNegotiateMessage(workstation, s.config.Domain, forcedVersion)
	setupReq := buildSessionSetupRequest(type1, s.config.Signing, 0)

	header, payload, err = s.client.Send(ctx, SMB2_SESSION_SETUP, 0, 0, setupReq, nil, nil)
	if err != nil {
		return err
	}
	if header.Status != STATUS_MORE_PROCESSING_REQUIRED {
		return &ProtocolError{Command: SMB2_SESSION_SETUP, Status: header.Status}
	}

	assignedSessionID := header.SessionID

	setup1, err := parseSessionSetupResponse(payload)
	if err != nil {
		return err
	}

	challenge, err := parseNTLMChallengeMessage(setup1.SecurityBuffer)
	if err != nil {
		return err
	}

	auth, err := buildNTLMAuthenticateMessage(challenge, s.config.Username, s.config.Password, s.config.Domain, workstation, forcedVersion)
	if err != nil {
		return err
	}

	setupReq2 := buildSessionSetupRequest(auth.Type3, s.config.Signing, 0)
	header, payload, err = s.client.Send(ctx, SMB2_SESSION_SETUP, assignedSessionID, 0, setupReq2, nil, nil)
	if err != nil {
		return err
	}
	if header.Status != STATUS_SUCCESS {
		return ErrAuthenticationFailed
	}

	if _, err := parseSessionSetupResponse(payload); err != nil {
		return err
	}

	s.ID = assignedSessionID
	s.sessionKey = auth.SessionKey
	s.signingKey = DeriveSigningKey(s.sessionKey, s.Dialect)

	if s.Dialect >= SMB3_0 && len(s.sessionKey) > 0 {
		s.encryptKey = DeriveEncryptionKey(s.sessionKey)
		s.decryptKey = DeriveDecryptionKey(s.sessionKey)

		if s.config.Encryption || neg.Capabilities&SMB2_GLOBAL_CAP_ENCRYPTION != 0 {
			s.enableEncryption()
		}
	}

	s.state = authAuthenticated
	return nil
}

// enableEncryption turns on Transform-wrapped outbound messages and
// registers this session's decryption key with the transport so inbound
// Transform envelopes addressed to it can be unwrapped.
func (s *Session) enableEncryption() {
	s.mu.Lock()
	s.encryptionEnabled = true
	s.mu.Unlock()
	s.client.RegisterSessionKey(s.ID, s.decryptKey)
}

// effectiveKeys returns the signing key to apply to outbound messages and,
// if encryption is enabled, the key to wrap them in a Transform envelope.
func (s *Session) effectiveKeys() (signingKey, encryptKey []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.encryptionEnabled {
		return nil, s.encryptKey // a Transform-wrapped message is not separately signed
	}
	return s.signingKey, nil
}

// send issues one SMB2 command over this session, signing or encrypting
// it per the session's current policy.
func (s *Session) send(ctx context.Context, command uint16, treeID uint32, payload []byte) (*SMB2Header, []byte, error) {
	signingKey, encryptKey := s.effectiveKeys()
	return s.client.Send(ctx, command, s.ID, treeID, payload, signingKey, encryptKey)
}

// sendChangeNotify issues a CHANGE_NOTIFY request tied to fileID, signing
// or encrypting it per the session's current policy like send, but waiting
// only for the interim acknowledgement (§4.9).
func (s *Session) sendChangeNotify(ctx context.Context, treeID uint32, payload []byte, fileID FileID) (*SMB2Header, []byte, error) {
	signingKey, encryptKey := s.effectiveKeys()
	return s.client.SendChangeNotify(ctx, s.ID, treeID, payload, signingKey, encryptKey, fileID)
}

// sendWithAdaptiveEncryption retries once under Transform encryption when
// the first attempt (unencrypted, or before encryption is known to be
// required) comes back STATUS_ACCESS_DENIED and the dialect supports it —
// the adaptive-encryption-enable policy of §4.8 scenario S6.
func (s *Session) sendWithAdaptiveEncryption(ctx context.Context, command uint16, treeID uint32, payload []byte) (*SMB2Header, []byte, error) {
	header, resp, err := s.send(ctx, command, treeID, payload)
	if err != nil {
		return header, resp, err
	}
	if header.Status == STATUS_ACCESS_DENIED && s.Dialect >= SMB3_0 && len(s.encryptKey) > 0 {
		s.mu.Lock()
		alreadyEncrypted := s.encryptionEnabled
		s.mu.Unlock()
		if !alreadyEncrypted {
			s.enableEncryption()
			return s.send(ctx, command, treeID, payload)
		}
	}
	return header, resp, nil
}

// Mount connects to share, returning a ready-to-use Tree.
func (s *Session) Mount(ctx context.Context, share string) (*Tree, error) {
	t := &Tree{session: s, share: share}
	if err := t.connect(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.trees = append(s.trees, t)
	s.mu.Unlock()

	return t, nil
}

// Logoff disconnects every Tree opened under this session, then sends
// LOGOFF and tears down its registration with the transport (§8 invariant
// 9: Session.logoff() disconnects every tree).
func (s *Session) Logoff(ctx context.Context) error {
	s.mu.Lock()
	if s.state == authLoggedOff {
		s.mu.Unlock()
		return nil
	}
	trees := s.trees
	s.trees = nil
	s.mu.Unlock()

	for _, t := range trees {
		t.Disconnect(ctx)
	}

	req := buildLogoffRequest()
	header, payload, err := s.send(ctx, SMB2_LOGOFF, 0, req)
	if err == nil && header.Status == STATUS_SUCCESS {
		parseLogoffResponse(payload)
	}

	s.client.RegisterSessionKey(s.ID, nil)

	s.mu.Lock()
	s.state = authLoggedOff
	s.mu.Unlock()

	return err
}

// Close logs the session off and closes the underlying transport,
// mirroring Client.close (§8 invariant 9: Client.close() logs off every
// session — here, the only session it owns).
func (s *Session) Close(ctx context.Context) error {
	logoffErr := s.Logoff(ctx)
	closeErr := s.client.Close()
	if logoffErr != nil {
		return logoffErr
	}
	return closeErr
}

// forcedNtlmVersion translates the configured ForceNtlmVersion string into
// the ntlmVersion the NTLM message builders expect; an empty or unrecognized
// value leaves selection to the server's challenge (§4.3).
func (s *Session) forcedNtlmVersion() ntlmVersion {
	switch s.config.ForceNtlmVersion {
	case "v1":
		return ntlmVersionV1
	case "v2":
		return ntlmVersionV2
	default:
		return ntlmVersionAuto
	}
}

func dialectSupported(d SMBDialect) bool {
	for _, sd := range offeredDialects() {
		if sd == d {
			return true
		}
	}
	return false
}

// localWorkstationName returns the client's short host name, uppercased,
// for use in NTLM Type1/Type3 messages (§4.3). It never reflects the
// server's name.
func localWorkstationName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "WORKSTATION"
	}
	if i := strings.IndexByte(host, '.'); i >= 0 {
		host = host[:i]
	}
	return strings.ToUpper(host)
}

// defaultTimeoutContext bounds a Session/Tree operation by Config.OpTimeout
// (60s when unset) when the caller's context carries no deadline of its own.
func (s *Session) defaultTimeoutContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	timeout := s.config.OpTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}
