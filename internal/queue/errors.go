package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrWriterStopped is returned by appends once the writer loop no longer
	// accepts work, either after Close or after a fatal write error.
	ErrWriterStopped = errors.New("queue: writer stopped")
	// ErrClosed is returned by tailers blocked in follow mode when the queue
	// closes.
	ErrClosed = errors.New("queue: closed")

	ErrCorruptedMessage           = errors.New("queue: corrupted message")
	ErrShortFrame                 = errors.New("queue: short frame")
	ErrInvalidPath                = errors.New("queue: invalid path")
	ErrRollFailed                 = errors.New("queue: segment roll failed")
	ErrIndex                      = errors.New("queue: index error")
	ErrManifestCorrupted          = errors.New("queue: manifest corrupted")
	ErrUnsupportedManifestVersion = errors.New("queue: unsupported manifest version")
	ErrCorruptedSegment           = errors.New("queue: corrupted segment")
	ErrSequenceOutOfRange         = errors.New("queue: sequence out of range")
	ErrLocked                     = errors.New("queue: directory locked by another process")
	ErrInternal                   = errors.New("queue: internal error")
)

// CorruptedMessageError reports a frame whose checksum or length does not
// verify. It matches ErrCorruptedMessage with errors.Is.
type CorruptedMessageError struct {
	Sequence uint64
	Offset   int64
	Reason   string
}

func (e *CorruptedMessageError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("queue: corrupted message at sequence %d", e.Sequence)
	}
	return fmt.Sprintf("queue: corrupted message at sequence %d: %s", e.Sequence, e.Reason)
}

func (e *CorruptedMessageError) Is(target error) bool {
	return target == ErrCorruptedMessage
}

func corrupted(seq uint64, off int64, reason string) error {
	return &CorruptedMessageError{Sequence: seq, Offset: off, Reason: reason}
}
