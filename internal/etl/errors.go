package etl

import (
	"errors"
	"fmt"
)

// Kind classifies why a run failed. Every kind is fatal.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindConnection
	KindQuery
	KindResource
	KindDestination
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindConnection:
		return "connection"
	case KindQuery:
		return "query"
	case KindResource:
		return "resource"
	case KindDestination:
		return "destination"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
