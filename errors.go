package smbfs

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	// ErrNotImplemented indicates a feature is not yet implemented.
	ErrNotImplemented = errors.New("not implemented")

	// ErrInvalidConfig indicates the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionClosed indicates the connection has been closed.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrPoolExhausted indicates all connections in the pool are in use.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrAuthenticationFailed indicates authentication failed.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrUnsupportedDialect indicates the SMB dialect is not supported.
	ErrUnsupportedDialect = errors.New("unsupported SMB dialect")

	// ErrInvalidPath indicates the path is invalid.
	ErrInvalidPath = errors.New("invalid path")

	// ErrNotDirectory indicates the path is not a directory.
	ErrNotDirectory = errors.New("not a directory")

	// ErrInvalidMessage indicates a malformed or truncated message: a
	// NetBIOS frame length shorter than an SMB2 header or larger than
	// MaxTransactSize, an SMB2 header that is too short, or an invalid
	// Transform envelope. File.Seek also returns it for an unknown whence
	// or a negative resulting offset.
	ErrInvalidMessage = fmt.Errorf("%w: invalid message", ErrFraming)

	// ErrIsDirectory indicates the path is a directory.
	ErrIsDirectory = errors.New("is a directory")

	// Error-kind sentinels per the protocol's error taxonomy. Every
	// protocol-level failure wraps one of these via %w so a caller can
	// classify with errors.Is regardless of the specific status or cause.
	ErrTransport      = errors.New("transport error")
	ErrFraming        = errors.New("framing error")
	ErrProtocol       = errors.New("protocol error")
	ErrAuthentication = errors.New("authentication error")
	ErrCryptographic  = errors.New("cryptographic error")
	ErrUsage          = errors.New("usage error")
	ErrTimeout        = errors.New("request timeout")

	// ErrInvalidNetBIOSType is returned by the framer when the leading
	// message-type byte of a NetBIOS session-service header is not 0x00.
	ErrInvalidNetBIOSType = fmt.Errorf("%w: invalid NetBIOS message type", ErrFraming)

	// ErrInvalidSizeField is returned by the structure codec when a read
	// runs past the end of the buffer it was handed, or a size-derivation
	// field named by the schema was never populated.
	ErrInvalidSizeField = fmt.Errorf("%w: invalid size field", ErrFraming)

	// ErrNotConnected is returned when an operation is issued against a
	// Client, Session, or Tree that has not completed the connect/authenticate
	// step it depends on.
	ErrNotConnected = fmt.Errorf("%w: not connected", ErrUsage)

	// ErrHandleClosed is returned when an operation is issued against a
	// File or Directory handle that has already been closed.
	ErrHandleClosed = fmt.Errorf("%w: handle closed", ErrUsage)

	// ErrDecryptionFailed is returned when an inbound Transform envelope's
	// CCM authentication tag does not verify.
	ErrDecryptionFailed = fmt.Errorf("%w: CCM tag verification failed", ErrCryptographic)

	// ErrMissingEncryptionKeys is returned when encryption is required but
	// the session never derived SMB3 keys (e.g. dialect < 0x0300, or no
	// NTLMv2 session key was produced).
	ErrMissingEncryptionKeys = fmt.Errorf("%w: missing encryption keys", ErrCryptographic)

	// ErrAlreadyWatching is returned when Directory.Watch is called on a
	// handle that already has an outstanding watch registration.
	ErrAlreadyWatching = fmt.Errorf("%w: already watching", ErrUsage)
)

// ProtocolError carries the raw NT status code an SMB2 response returned,
// so a caller can compare it against the status table in §6 even after the
// error has been wrapped with operation context.
type ProtocolError struct {
	Command uint16
	Status  NTStatus
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s", CommandName(e.Command), e.Status.String())
}

func (e *ProtocolError) Unwrap() error {
	return ErrProtocol
}

// PathError records an error and the operation and path that caused it.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// wrapPathError wraps an error with operation and path information in an
// *fs.PathError, so os.IsNotExist and errors.As(&*fs.PathError) see it.
func wrapPathError(op, path string, err error) error {
	if err == nil {
		return nil
	}

	// If it's already a PathError for the same path, don't double-wrap
	var pe *fs.PathError
	if errors.As(err, &pe) && pe.Path == path {
		return err
	}

	return &fs.PathError{
		Op:   op,
		Path: path,
		Err:  err,
	}
}

// convertError converts common errors to fs package errors.
func convertError(err error) error {
	if err == nil {
		return nil
	}

	// Already a standard error
	if errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, fs.ErrExist) ||
		errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, fs.ErrInvalid) ||
		errors.Is(err, fs.ErrClosed) {
		return err
	}

	// Map our errors to standard fs errors
	switch {
	case errors.Is(err, ErrConnectionClosed):
		return fs.ErrClosed
	case errors.Is(err, ErrInvalidPath):
		return fs.ErrInvalid
	case errors.Is(err, ErrAuthenticationFailed):
		return fs.ErrPermission
	case errors.Is(err, ErrHandleClosed):
		return fs.ErrClosed
	}

	var pe *ProtocolError
	if errors.As(err, &pe) {
		switch pe.Status {
		case STATUS_OBJECT_NAME_NOT_FOUND, STATUS_OBJECT_PATH_NOT_FOUND:
			return fs.ErrNotExist
		case STATUS_OBJECT_NAME_COLLISION:
			return fs.ErrExist
		case STATUS_ACCESS_DENIED:
			return fs.ErrPermission
		case STATUS_FILE_CLOSED:
			return fs.ErrClosed
		}
	}

	return err
}

// netError interface for network errors.
type netError interface {
	Timeout() bool
	Temporary() bool
}

// isRetryable returns true if the error indicates a transient failure
// that might succeed if retried.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Network errors are generally retryable
	var netErr netError
	if errors.As(err, &netErr) {
		// Temporary network errors are retryable
		if netErr.Temporary() {
			return true
		}
		// Timeout errors are retryable
		if netErr.Timeout() {
			return true
		}
	}

	// Connection errors are typically retryable
	switch {
	case errors.Is(err, ErrConnectionClosed):
		return true
	case errors.Is(err, ErrPoolExhausted):
		return true
	}

	// Check wrapped errors
	unwrapped := errors.Unwrap(err)
	if unwrapped != nil && unwrapped != err {
		return isRetryable(unwrapped)
	}

	return false
}
