package apierror

import (
	"context"
	"errors"
	"net/http"

	"github.com/vango-go/vai-interview/pkg/core"
	"github.com/vango-go/vai-interview/pkg/core/providers/gemini"
	"github.com/vango-go/vai-interview/pkg/core/report"
	"github.com/vango-go/vai-interview/pkg/store"
)

type Envelope struct {
	Error *core.Error `json:"error"`
}

func FromError(err error, requestID string) (*core.Error, int) {
	if err == nil {
		return nil, http.StatusOK
	}

	// Context timeouts/cancellation.
	if errors.Is(err, context.DeadlineExceeded) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "request timeout",
			RequestID: requestID,
		}, http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "request cancelled",
			Code:      "cancelled",
			RequestID: requestID,
		}, http.StatusRequestTimeout
	}

	// Already canonical.
	var coreErr *core.Error
	if errors.As(err, &coreErr) && coreErr != nil {
		out := *coreErr
		out.RequestID = requestID
		return &out, statusFromType(coreErr.Type)
	}

	if errors.Is(err, store.ErrNotFound) {
		return &core.Error{
			Type:      core.ErrNotFound,
			Message:   "report not found",
			RequestID: requestID,
		}, http.StatusNotFound
	}

	if errors.Is(err, report.ErrNoScorer) {
		return &core.Error{
			Type:      core.ErrUpstream,
			Message:   "scoring is unavailable",
			RequestID: requestID,
		}, http.StatusBadGateway
	}

	// Gemini failures surface as upstream errors. Credentials and request
	// shape are server-side concerns, so only throttling keeps its type.
	var gemErr *gemini.Error
	if errors.As(err, &gemErr) && gemErr != nil {
		switch gemErr.Type {
		case gemini.ErrRateLimit:
			return &core.Error{
				Type:      core.ErrRateLimit,
				Message:   "interview agent is rate limited",
				Code:      gemErr.Code,
				RequestID: requestID,
			}, http.StatusTooManyRequests
		case gemini.ErrOverloaded:
			return &core.Error{
				Type:      core.ErrOverloaded,
				Message:   "interview agent is overloaded",
				Code:      gemErr.Code,
				RequestID: requestID,
			}, statusFromType(core.ErrOverloaded)
		default:
			return &core.Error{
				Type:      core.ErrUpstream,
				Message:   "interview agent is unavailable",
				Code:      gemErr.Code,
				RequestID: requestID,
			}, http.StatusBadGateway
		}
	}

	// Unknown errors: treat as internal API error (do not leak details by default).
	return &core.Error{
		Type:      core.ErrAPI,
		Message:   "internal error",
		RequestID: requestID,
	}, http.StatusInternalServerError
}

func statusFromType(t core.ErrorType) int {
	switch t {
	case core.ErrInvalidRequest:
		return http.StatusBadRequest
	case core.ErrAuthentication:
		return http.StatusUnauthorized
	case core.ErrPermission:
		return http.StatusForbidden
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrRateLimit:
		return http.StatusTooManyRequests
	case core.ErrOverloaded:
		return 529
	case core.ErrUpstream:
		return http.StatusBadGateway
	case core.ErrAPI:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
