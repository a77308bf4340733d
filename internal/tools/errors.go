package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mpryc/nbp-mcp-server/internal/daterange"
	"github.com/mpryc/nbp-mcp-server/internal/format"
	"github.com/mpryc/nbp-mcp-server/internal/nbp"
)

// Kind is the error category reported back to the MCP client.
type Kind string

const (
	KindInvalidArgument     Kind = "invalid_argument"
	KindUnknownTool         Kind = "unknown_tool"
	KindNotFound            Kind = "not_found"
	KindUpstreamUnavailable Kind = "rate_limited_or_server_error"
	KindTimeout             Kind = "timeout"
	KindNetwork             Kind = "network_error"
	KindMalformedPayload    Kind = "malformed_payload"
)

type Error struct {
	Kind    Kind
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func invalidArgument(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// KindFromUpstream maps every upstream failure kind to a tool error kind.
func KindFromUpstream(kind nbp.Kind) Kind {
	switch kind {
	case nbp.KindNotFound:
		return KindNotFound
	case nbp.KindUnavailable:
		return KindUpstreamUnavailable
	case nbp.KindTimeout:
		return KindTimeout
	case nbp.KindNetwork:
		return KindNetwork
	case nbp.KindMalformed:
		return KindMalformedPayload
	case nbp.KindRejected:
		return KindInvalidArgument
	default:
		return KindMalformedPayload
	}
}

// asToolError converts any failure produced while serving a call.
func asToolError(err error) *Error {
	var toolErr *Error
	if errors.As(err, &toolErr) {
		return toolErr
	}

	var upstream *nbp.Error
	if errors.As(err, &upstream) {
		return &Error{Kind: KindFromUpstream(upstream.Kind), Message: err.Error(), Status: upstream.StatusCode, Err: err}
	}

	var missingErr *format.MissingFieldError
	if errors.As(err, &missingErr) {
		return &Error{Kind: KindMalformedPayload, Message: err.Error(), Err: err}
	}

	switch {
	case errors.Is(err, daterange.ErrInverted):
		return &Error{Kind: KindInvalidArgument, Message: err.Error(), Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Message: err.Error(), Err: err}
	}

	return &Error{Kind: KindNetwork, Message: err.Error(), Err: err}
}
