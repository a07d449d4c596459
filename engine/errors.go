package engine

import (
	"errors"
	"fmt"
)

// Kind classifies errors returned while rendering a frame.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindIO
	KindParse
	KindConfiguration
	KindRuntime
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "IOError"
	case KindParse:
		return "ParseError"
	case KindConfiguration:
		return "ConfigurationError"
	case KindRuntime:
		return "EngineRuntimeError"
	}
	return "UnknownError"
}

// A classified error.
type Error struct {
	Kind Kind

	// The failed operation and, if any, the file it operated on.
	Op   string
	Path string

	Err error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s %s: %v", e.Kind, e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func IOError(op, path string, err error) error {
	return &Error{Kind: KindIO, Op: op, Path: path, Err: err}
}

func ParseError(op, path string, err error) error {
	return &Error{Kind: KindParse, Op: op, Path: path, Err: err}
}

func ConfigurationError(op string, err error) error {
	return &Error{Kind: KindConfiguration, Op: op, Err: err}
}

func RuntimeError(op string, err error) error {
	return &Error{Kind: KindRuntime, Op: op, Err: err}
}

// Get the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
