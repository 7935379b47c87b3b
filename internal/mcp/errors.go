// Package mcp implements the Model Context Protocol surface: tools for
// search and context generation, resources for status and stats, and
// reusable documentation prompts, served over stdio JSON-RPC.
package mcp

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/docscout/docscout/internal/errors"
)

// JSON-RPC error codes surfaced by the MCP server.
const (
	ErrCodeInvalidParams  = -32602
	ErrCodeMethodNotFound = -32601
	ErrCodeInternalError  = -32603

	// Application codes.
	ErrCodeRepoNotFound    = -32001
	ErrCodeBackendDown     = -32002
	ErrCodeTimeout         = -32003
	ErrCodeAuthFailed      = -32004
	ErrCodeSecurityBlocked = -32005
)

// Error is a JSON-RPC protocol error with code and message.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError translates internal errors to protocol errors by kind.
func MapError(err error) *Error {
	if err == nil {
		return nil
	}
	if me, ok := err.(*Error); ok {
		return me
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return &Error{Code: ErrCodeTimeout, Message: "request timed out"}
	}

	switch errors.KindOf(err) {
	case errors.KindValidation:
		return &Error{Code: ErrCodeInvalidParams, Message: err.Error()}
	case errors.KindNotFound:
		return &Error{Code: ErrCodeRepoNotFound, Message: err.Error()}
	case errors.KindAuth:
		return &Error{Code: ErrCodeAuthFailed, Message: err.Error()}
	case errors.KindSecurity:
		return &Error{Code: ErrCodeSecurityBlocked, Message: err.Error()}
	case errors.KindTransient, errors.KindBackend:
		return &Error{Code: ErrCodeBackendDown, Message: err.Error()}
	default:
		return &Error{Code: ErrCodeInternalError, Message: "internal server error"}
	}
}

// NewInvalidParamsError creates an invalid-params error with a custom message.
func NewInvalidParamsError(msg string) *Error {
	return &Error{Code: ErrCodeInvalidParams, Message: msg}
}
