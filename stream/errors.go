package stream

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the replicator can decide between retrying
// and stopping.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindConnection
	KindConsistency
	KindStructural
	KindApply
	KindCheckpoint
	KindFeedEnded
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "configuration error"
	case KindConnection:
		return "connection error"
	case KindConsistency:
		return "consistency error"
	case KindStructural:
		return "structural error"
	case KindApply:
		return "apply error"
	case KindCheckpoint:
		return "checkpoint error"
	case KindFeedEnded:
		return "feed ended"
	default:
		return "error"
	}
}

// Error carries the failure kind along with the event that was being
// processed, if any, so an operator can resume or replay by hand.
type Error struct {
	Kind Kind
	Op   string
	ID   string
	Seq  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.ID != "" || e.Seq != "" {
		msg += fmt.Sprintf(" (id=%q seq=%q)", e.ID, e.Seq)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error of the given kind with a formatted cause.
func Errorf(kind Kind, op string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap returns err as an *Error of the given kind. An err that already is an
// *Error keeps its kind.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithEvent attaches the event identity to err. An *Error at the top of the
// chain is copied with the identity filled in. Anything else is wrapped whole,
// keeping the kind of the first *Error in its chain or fallback when there is
// none.
func WithEvent(err error, fallback Kind, ev ChangeEvent) error {
	if err == nil {
		return nil
	}
	if se, ok := err.(*Error); ok {
		cp := *se
		if cp.ID == "" {
			cp.ID = ev.ID
		}
		if cp.Seq == "" {
			cp.Seq = ev.Seq
		}
		return &cp
	}

	kind := fallback
	var inner *Error
	if errors.As(err, &inner) {
		kind = inner.Kind
	}
	return &Error{Kind: kind, ID: ev.ID, Seq: ev.Seq, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return KindOf(err) == KindConnection
}
