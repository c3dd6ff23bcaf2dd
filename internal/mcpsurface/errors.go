package mcpsurface

import (
	"context"
	"errors"
	"fmt"

	"github.com/corvidmem/corvid/internal/cerrors"
)

// Standard JSON-RPC error codes, plus a block reserved for this surface's
// own domain errors, mirroring internal/mcp/errors.go code
// ranges.
const (
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603

	ErrCodeNotFound       = -32001
	ErrCodeIndexDegraded  = -32002
	ErrCodeTimeout        = -32003
	ErrCodeStorageFailure = -32004
	ErrCodeCrisis         = -32005
)

// ToolError is an MCP-surfaced error: a machine-readable code plus a
// short human message, satisfying "every failed operation
// returns (a) a machine-readable code, (b) a short human message, (c)
// optional context."
type ToolError struct {
	Code    int
	Message string
	Details map[string]string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError builds a strict-validation failure: unknown
// parameter, bounds violation, or malformed id.
func NewInvalidParamsError(msg string) *ToolError {
	return &ToolError{Code: ErrCodeInvalidParams, Message: msg}
}

// MapError translates an internal error into a ToolError, preserving the
// offending embedder index and any attached details as context.
func MapError(err error) *ToolError {
	if err == nil {
		return nil
	}

	var cerr *cerrors.CorvidError
	if errors.As(err, &cerr) {
		return mapCorvidError(cerr)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &ToolError{Code: ErrCodeTimeout, Message: "request timed out or was canceled"}
	default:
		return &ToolError{Code: ErrCodeInternalError, Message: "internal server error"}
	}
}

func mapCorvidError(e *cerrors.CorvidError) *ToolError {
	te := &ToolError{Message: e.Message, Details: e.Details}
	if e.HasEmbedder {
		if te.Details == nil {
			te.Details = make(map[string]string)
		}
		te.Details["embedder_index"] = fmt.Sprintf("%d", e.EmbedderIndex)
	}

	switch e.Code {
	case cerrors.ErrCodeNotFound:
		te.Code = ErrCodeNotFound
	case cerrors.ErrCodeIndexDegraded:
		te.Code = ErrCodeIndexDegraded
	case cerrors.ErrCodeTimeout:
		te.Code = ErrCodeTimeout
	case cerrors.ErrCodeStorageFailure, cerrors.ErrCodeCorruption, cerrors.ErrCodeLockFailed:
		te.Code = ErrCodeStorageFailure
	case cerrors.ErrCodeCrisis:
		te.Code = ErrCodeCrisis
	case cerrors.ErrCodeInvalidInput, cerrors.ErrCodeInvalidWeights, cerrors.ErrCodeUnknownParameter, cerrors.ErrCodeBoundsViolation:
		te.Code = ErrCodeInvalidParams
	default:
		te.Code = ErrCodeInternalError
	}
	return te
}
