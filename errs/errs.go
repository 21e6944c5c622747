// Package errs contains the domain error handling used by aux. Errors
// carry an operation chain and a Kind that the API edge maps onto HTTP
// statuses, so business failures never leak internal messages.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Op is the operation being performed, usually the name of the method
// being invoked, like "submission.Create".
type Op string

// Kind classifies an error for dispatch at the API boundary.
type Kind int

const (
	Other            Kind = iota // unclassified; maps to 500
	Invalid                      // malformed request or business validation
	Auth                         // bad or expired identity credential
	PlatformAuth                 // music platform refresh failed; client must re-link
	AlreadySubmitted             // a submission already exists for this cycle
	NoRecentActivity             // music platform has nothing played recently
	Platform                     // music platform transport or upstream failure
	UnknownUser                  // referenced username does not resolve
	NoSuchRequest                // no pending friend request from that user
	NotFound                     // absence; not alarming
)

func (k Kind) String() string {
	switch k {
	case Invalid:
		return "invalid"
	case Auth:
		return "unauthenticated"
	case PlatformAuth:
		return "music platform authorization expired"
	case AlreadySubmitted:
		return "already submitted this cycle"
	case NoRecentActivity:
		return "no recent listening activity"
	case Platform:
		return "music platform unavailable"
	case UnknownUser:
		return "unknown user"
	case NoSuchRequest:
		return "no such friend request"
	case NotFound:
		return "not found"
	}
	return "internal error"
}

// Error is a domain error. Some fields may be unset.
type Error struct {
	Op   Op
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	msg := ""
	if e.Op != "" {
		msg = string(e.Op) + ": "
	}
	if e.Kind != Other {
		msg += e.Kind.String()
		if e.Err != nil {
			msg += ": "
		}
	}
	if e.Err != nil {
		msg += e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an error value from its arguments; the type of each
// argument determines its meaning. Strings become the underlying
// error message.
func E(args ...interface{}) error {
	if len(args) == 0 {
		panic("call to errs.E with no arguments")
	}
	e := &Error{}
	for _, arg := range args {
		switch arg := arg.(type) {
		case Op:
			e.Op = arg
		case Kind:
			e.Kind = arg
		case string:
			e.Err = errors.New(arg)
		case *Error:
			c := *arg
			e.Err = &c
		case error:
			e.Err = arg
		default:
			e.Err = fmt.Errorf("unknown argument %v in error call", arg)
		}
	}
	// Pull the kind up from a wrapped domain error so callers can
	// rewrap with just an Op without losing classification.
	if e.Kind == Other {
		if inner, ok := e.Err.(*Error); ok {
			e.Kind = inner.Kind
		}
	}
	return e
}

// KindOf reports the Kind of err, walking the wrap chain. Non-domain
// errors are Other.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Other
}

// Is reports whether err carries the given kind.
func Is(kind Kind, err error) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error onto the API status code contract:
// 200 success, 400 business-rule failure, 401 authentication failure,
// 404 absence, 502 upstream platform failure, 500 unexpected.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case Invalid, PlatformAuth, AlreadySubmitted, NoRecentActivity, UnknownUser, NoSuchRequest:
		return http.StatusBadRequest
	case Auth:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	case Platform:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Public returns the user-facing error string. Auth failures return a
// fixed message regardless of the underlying cause, and unexpected
// errors never leak internals.
func Public(err error) string {
	switch KindOf(err) {
	case Other:
		return "internal error"
	case Auth:
		return "unauthenticated"
	}

	var e *Error
	if !errors.As(err, &e) {
		return "internal error"
	}

	// Walk past op-only wrappers to the innermost message.
	inner := e.Err
	for {
		next, ok := inner.(*Error)
		if !ok || next.Err == nil {
			break
		}
		inner = next.Err
	}
	if inner != nil {
		return inner.Error()
	}
	return e.Kind.String()
}
