package smbfs

import (
	"context"
	"net"
	"sync"
	"time"
)

// clientRequest is one outbound SMB2 request, submitted to the owning
// goroutine's command channel. replyCh receives exactly one
// clientResponse.
type clientRequest struct {
	command    uint16
	sessionID  uint64
	treeID     uint32
	payload    []byte
	signingKey []byte // nil: message is left unsigned
	encryptKey []byte // non-nil: message is wrapped in a Transform envelope
	replyCh    chan clientResponse

	// isChangeNotify marks a CHANGE_NOTIFY request so the owning goroutine
	// can track fileID against the request's message ID and route the
	// eventual out-of-band notification to the right watcher (§4.9).
	isChangeNotify bool
	fileID         FileID
}

// clientResponse is what a caller of Client.send receives: the parsed
// header and payload, or the error that ended the wait.
type clientResponse struct {
	header  *SMB2Header
	payload []byte
	err     error
}

// inboundFrame is a fully de-framed, not-yet-decrypted NetBIOS payload
// handed from the reader goroutine to the owning goroutine.
type inboundFrame struct {
	data []byte
	err  error
}

// notifyRegistration lets a session publish the decryption key for its
// session ID so the owning goroutine can unwrap Transform envelopes
// addressed to it, without the transport knowing anything about Session
// internals.
type notifyRegistration struct {
	sessionID    uint64
	decryptKey   []byte // nil means "deregister"
	registerDone chan struct{}
}

// watchRegistration registers or deregisters a per-directory-handle
// ChangeNotify event channel with the owning goroutine. Routing by fileID
// (rather than a single shared broadcast channel) keeps concurrent watchers
// on different directories from racing for each other's events.
type watchRegistration struct {
	fileID     FileID
	ch         chan ChangeNotifyEvent
	unregister bool
	done       chan struct{}
}

// Client owns a single TCP connection to an SMB server and realizes the
// protocol's single-threaded cooperative scheduling model (§5) as one
// goroutine owning all mutable transport state — next message ID,
// pending-response table, registered session decryption keys — serialized
// through channels. Callers never touch that state directly.
type Client struct {
	conn   net.Conn
	config *Config
	logger Logger

	ClientGUID [16]byte

	Dialect              SMBDialect
	ServerGUID           [16]byte
	SecurityModeSigning  bool
	SecurityModeRequired bool
	MaxTransactSize      uint32
	MaxReadSize          uint32
	MaxWriteSize         uint32

	reqCh      chan *clientRequest
	regCh      chan *notifyRegistration
	watchRegCh chan *watchRegistration
	inboundCh  chan inboundFrame
	notifyCh   chan ChangeNotifyEvent
	closedCh   chan struct{}
	closeOnce  sync.Once
	closeErr   error
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewClient wraps an already-dialed TCP connection and starts the owning
// goroutine and the frame reader goroutine. It does not negotiate —
// callers issue Negotiate/SessionSetup through Send.
func NewClient(conn net.Conn, cfg *Config) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	guid := NewGUID()

	c := &Client{
		conn:       conn,
		config:     cfg,
		logger:     cfg.Logger,
		ClientGUID: guid,
		reqCh:      make(chan *clientRequest),
		regCh:      make(chan *notifyRegistration),
		watchRegCh: make(chan *watchRegistration),
		inboundCh:  make(chan inboundFrame, 8),
		notifyCh:   make(chan ChangeNotifyEvent, 32),
		closedCh:   make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.ownerLoop()

	return c
}

// logf logs through the configured Logger, if any (nil means no logging).
func (c *Client) logf(format string, v ...interface{}) {
	if c.logger != nil {
		c.logger.Printf(format, v...)
	}
}

// Notifications returns the channel on which asynchronous ChangeNotify
// events are delivered (§4.6, §4.8); it is never closed while the client
// is open.
func (c *Client) Notifications() <-chan ChangeNotifyEvent {
	return c.notifyCh
}

// RegisterSessionKey publishes sessionID's decryption key so inbound
// Transform envelopes addressed to it can be unwrapped. Passing a nil key
// deregisters the session (called from Session.logoff).
func (c *Client) RegisterSessionKey(sessionID uint64, decryptKey []byte) {
	done := make(chan struct{})
	select {
	case c.regCh <- &notifyRegistration{sessionID: sessionID, decryptKey: decryptKey, registerDone: done}:
		<-done
	case <-c.closedCh:
	}
}

// Send submits one SMB2 command and blocks until its matching response
// arrives, ctx is done, or the configured operation timeout elapses,
// whichever comes first.
func (c *Client) Send(ctx context.Context, command uint16, sessionID uint64, treeID uint32, payload, signingKey, encryptKey []byte) (*SMB2Header, []byte, error) {
	req := &clientRequest{
		command:    command,
		sessionID:  sessionID,
		treeID:     treeID,
		payload:    payload,
		signingKey: signingKey,
		encryptKey: encryptKey,
		replyCh:    make(chan clientResponse, 1),
	}
	return c.sendRequest(ctx, req)
}

// SendChangeNotify issues an MS-SMB2 CHANGE_NOTIFY request against fileID.
// Like Send, it waits only for the server's interim STATUS_PENDING
// acknowledgement; the eventual notification payload arrives later on the
// same message ID and is routed to the channel returned by Watch, not
// through this call's return value (§4.9).
func (c *Client) SendChangeNotify(ctx context.Context, sessionID uint64, treeID uint32, payload, signingKey, encryptKey []byte, fileID FileID) (*SMB2Header, []byte, error) {
	req := &clientRequest{
		command:        SMB2_CHANGE_NOTIFY,
		sessionID:      sessionID,
		treeID:         treeID,
		payload:        payload,
		signingKey:     signingKey,
		encryptKey:     encryptKey,
		isChangeNotify: true,
		fileID:         fileID,
		replyCh:        make(chan clientResponse, 1),
	}
	return c.sendRequest(ctx, req)
}

// sendRequest submits req to the owning goroutine and waits for its reply,
// ctx cancellation, the configured operation timeout, or connection close.
func (c *Client) sendRequest(ctx context.Context, req *clientRequest) (*SMB2Header, []byte, error) {
	select {
	case c.reqCh <- req:
	case <-c.closedCh:
		return nil, nil, ErrConnectionClosed
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	timeout := c.config.OpTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-req.replyCh:
		return resp.header, resp.payload, resp.err
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case <-timer.C:
		return nil, nil, ErrTimeout
	case <-c.closedCh:
		return nil, nil, ErrConnectionClosed
	}
}

// Watch registers fileID as an active directory watch and returns the
// channel on which its ChangeNotify events are delivered. The channel is
// closed by Unwatch or when the client is closed.
func (c *Client) Watch(fileID FileID) <-chan ChangeNotifyEvent {
	ch := make(chan ChangeNotifyEvent, 16)
	done := make(chan struct{})
	select {
	case c.watchRegCh <- &watchRegistration{fileID: fileID, ch: ch, done: done}:
		<-done
	case <-c.closedCh:
	}
	return ch
}

// Unwatch deregisters fileID and closes its event channel.
func (c *Client) Unwatch(fileID FileID) {
	done := make(chan struct{})
	select {
	case c.watchRegCh <- &watchRegistration{fileID: fileID, unregister: true, done: done}:
		<-done
	case <-c.closedCh:
	}
}

// Close tears down the connection and stops both goroutines. It is safe
// to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.closedCh)
		c.closeErr = c.conn.Close()
	})
	c.wg.Wait()
	return c.closeErr
}

// readLoop continuously reads NetBIOS frames off the socket and forwards
// them to the owning goroutine; it never touches shared state itself.
func (c *Client) readLoop() {
	defer c.wg.Done()
	for {
		data, err := readNetbiosMessage(c.conn)
		select {
		case c.inboundCh <- inboundFrame{data: data, err: err}:
		case <-c.closedCh:
			return
		}
		if err != nil {
			return
		}
	}
}

// pendingEntry is the owning goroutine's bookkeeping for one in-flight
// request.
type pendingEntry struct {
	replyCh chan clientResponse
}

// ownerLoop is the single logical execution context of §5: it is the only
// goroutine that reads or writes nextMessageID, the pending-response
// table, and the session decryption-key map.
func (c *Client) ownerLoop() {
	defer c.wg.Done()

	var nextMessageID uint64
	pending := make(map[uint64]pendingEntry)
	earlyResponses := make(map[uint64]clientResponse)
	decryptKeys := make(map[uint64][]byte)
	watchers := make(map[FileID]chan ChangeNotifyEvent)
	watchFileIDs := make(map[uint64]FileID)

	failAll := func(err error) {
		for id, p := range pending {
			p.replyCh <- clientResponse{err: err}
			delete(pending, id)
		}
		for fileID, ch := range watchers {
			close(ch)
			delete(watchers, fileID)
		}
	}

	for {
		select {
		case <-c.ctx.Done():
			failAll(ErrConnectionClosed)
			return

		case reg := <-c.regCh:
			if reg.decryptKey == nil {
				delete(decryptKeys, reg.sessionID)
			} else {
				decryptKeys[reg.sessionID] = reg.decryptKey
			}
			close(reg.registerDone)

		case reg := <-c.watchRegCh:
			if reg.unregister {
				if ch, ok := watchers[reg.fileID]; ok {
					close(ch)
					delete(watchers, reg.fileID)
				}
			} else {
				watchers[reg.fileID] = reg.ch
			}
			close(reg.done)

		case req := <-c.reqCh:
			msgID := nextMessageID
			nextMessageID++

			header := &SMB2Header{
				StructureSize: SMB2HeaderSize,
				Command:       req.command,
				CreditRequest: 1,
				MessageID:     msgID,
				TreeID:        req.treeID,
				SessionID:     req.sessionID,
			}
			copy(header.ProtocolID[:], SMB2ProtocolID)

			if req.isChangeNotify {
				watchFileIDs[msgID] = req.fileID
			}

			msg := make([]byte, SMB2HeaderSize+len(req.payload))
			copy(msg, header.Marshal())
			copy(msg[SMB2HeaderSize:], req.payload)

			if req.signingKey != nil {
				SetSignedFlag(msg)
				sig := SignMessage(msg, req.signingKey, c.Dialect)
				ApplySignature(msg, sig)
			}

			var wire []byte
			if req.encryptKey != nil {
				enveloped, err := encryptTransformMessage(req.encryptKey, req.sessionID, msg)
				if err != nil {
					req.replyCh <- clientResponse{err: err}
					continue
				}
				wire = enveloped
			} else {
				wire = msg
			}

			if resp, ok := earlyResponses[msgID]; ok {
				delete(earlyResponses, msgID)
				req.replyCh <- resp
				continue
			}

			pending[msgID] = pendingEntry{replyCh: req.replyCh}

			if _, err := c.conn.Write(netbiosFrame(wire)); err != nil {
				delete(pending, msgID)
				req.replyCh <- clientResponse{err: err}
				failAll(ErrConnectionClosed)
				return
			}

		case frame := <-c.inboundCh:
			if frame.err != nil {
				failAll(frame.err)
				return
			}

			data := frame.data
			var msgID uint64
			var header *SMB2Header
			var payload []byte

			if isTransformHeader(data) {
				sessionIDGuess := leSessionIDFromTransform(data)
				key, ok := decryptKeys[sessionIDGuess]
				if !ok {
					c.logf("[smbfs] dropping transform frame for unregistered session %d", sessionIDGuess)
					continue
				}
				plain, sid, err := decryptTransformMessage(key, data)
				if err != nil {
					c.logf("[smbfs] transform decrypt failed for session %d: %v", sid, err)
					continue
				}
				data = plain
			}

			if !isSMB2Header(data) {
				continue
			}

			h, err := UnmarshalSMB2Header(data)
			if err != nil {
				c.logf("[smbfs] dropping malformed frame: %v", err)
				continue
			}
			header = h
			msgID = header.MessageID
			payload = data[SMB2HeaderSize:]

			// The real notification payload arrives asynchronously on the
			// same message ID as the interim STATUS_PENDING ack, which was
			// already delivered to the caller's Send/SendChangeNotify reply
			// above — nothing will ever read this one back out of
			// earlyResponses, so route it to the registered watcher (or
			// the catch-all notifyCh) and stop, rather than leaking it.
			if header.Command == SMB2_CHANGE_NOTIFY && header.Status == STATUS_SUCCESS {
				events, err := parseChangeNotifyResponse(payload)
				if err == nil {
					fileID, tracked := watchFileIDs[msgID]
					if tracked {
						delete(watchFileIDs, msgID)
					}

					var target chan ChangeNotifyEvent
					if tracked {
						target = watchers[fileID]
					}

					for i := range events {
						if tracked {
							events[i].FileID = fileID
						}
						dst := c.notifyCh
						if target != nil {
							dst = target
						}
						select {
						case dst <- events[i]:
						default:
						}
					}
				}
				continue
			}

			resp := clientResponse{header: header, payload: payload}
			if p, ok := pending[msgID]; ok {
				delete(pending, msgID)
				p.replyCh <- resp
			} else {
				earlyResponses[msgID] = resp
			}
		}
	}
}

// leSessionIDFromTransform reads the session ID out of a Transform
// envelope without fully decrypting it, so the owning goroutine can find
// the right decryption key before verifying the tag.
func leSessionIDFromTransform(frame []byte) uint64 {
	if len(frame) < transformHeaderSize {
		return 0
	}
	return beUint64LE(frame[44:52])
}

func beUint64LE(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
