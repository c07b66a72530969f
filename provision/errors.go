package provision

import (
	"errors"
	"fmt"

	"github.com/user/wifiprov/proto"
)

// ErrorKind classifies a failed operation.
type ErrorKind int

const (
	KindDecode ErrorKind = iota + 1
	KindValidation
	KindNetwork
	KindHost
	KindUnsupported
	KindPanic
)

func (k ErrorKind) String() string {
	switch k {
	case KindDecode:
		return "decode"
	case KindValidation:
		return "validation"
	case KindNetwork:
		return "network"
	case KindHost:
		return "host"
	case KindUnsupported:
		return "unsupported"
	case KindPanic:
		return "panic"
	}
	return "unknown"
}

// Error is returned by operation handlers.
type Error struct {
	Op   proto.OpCode
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provision: %s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func opError(op proto.OpCode, kind ErrorKind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// ErrAlreadyConnected is returned by Run when the station is already connected
// and SkipIfConnected is set.
var ErrAlreadyConnected = errors.New("provision: station already connected")

// StatusFor maps an operation error to the status reported to the client.
func StatusFor(err error) proto.Status {
	if err == nil {
		return proto.StatusSuccess
	}
	var e *Error
	if errors.As(err, &e) && e.Kind == KindUnsupported {
		return proto.StatusInvalidArgument
	}
	return proto.StatusInternalError
}
