package chat

import (
	"errors"
	"fmt"
)

// ErrTransport matches every TransportError via errors.Is.
var ErrTransport = errors.New("chat: transport failure")

// TransportError reports a failed call against the chat source or the
// delivery channel. It is never retried inside the pipeline.
type TransportError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("chat transport %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrTransport) hold for any TransportError.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// WrapTransport wraps err as a TransportError unless it is nil or already one.
func WrapTransport(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}

// ErrPartialSend matches every PartialSendError via errors.Is.
var ErrPartialSend = errors.New("chat: digest partially sent")

// PartialSendError reports a multi-part send that failed after Sent of
// Total parts were already posted. Repeating the send would duplicate them.
type PartialSendError struct {
	Sent  int
	Total int
	Err   error
}

// Error implements the error interface.
func (e *PartialSendError) Error() string {
	return fmt.Sprintf("sent %d of %d parts: %v", e.Sent, e.Total, e.Err)
}

// Unwrap returns the underlying error.
func (e *PartialSendError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrPartialSend) hold for any PartialSendError.
func (e *PartialSendError) Is(target error) bool {
	return target == ErrPartialSend
}
