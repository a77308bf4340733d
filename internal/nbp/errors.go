package nbp

import (
	"errors"
	"fmt"
)

// Kind classifies a failed upstream request.
type Kind string

const (
	KindNotFound    Kind = "not_found"
	KindUnavailable Kind = "unavailable"
	KindTimeout     Kind = "timeout"
	KindNetwork     Kind = "network"
	KindMalformed   Kind = "malformed"
	KindRejected    Kind = "rejected"
)

// Kinds lists every upstream error kind.
var Kinds = []Kind{KindNotFound, KindUnavailable, KindTimeout, KindNetwork, KindMalformed, KindRejected}

type Error struct {
	Kind       Kind
	Path       string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case KindNotFound:
		msg = "no data published for " + e.Path
	case KindUnavailable:
		msg = fmt.Sprintf("upstream unavailable (status %d)", e.StatusCode)
	case KindRejected:
		msg = fmt.Sprintf("upstream rejected the request (status %d)", e.StatusCode)
	case KindTimeout:
		msg = "upstream request timed out"
	case KindNetwork:
		msg = "upstream request failed"
	case KindMalformed:
		msg = "upstream returned an unexpected payload"
	default:
		msg = "upstream request failed"
	}
	if e.Body != "" {
		msg += ": " + e.Body
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the upstream kind carried by err, if any.
func KindOf(err error) (Kind, bool) {
	var upstream *Error
	if errors.As(err, &upstream) {
		return upstream.Kind, true
	}

	return "", false
}

func IsNotFound(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindNotFound
}
