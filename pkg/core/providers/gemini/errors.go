package gemini

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"
)

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrPermission     ErrorType = "permission_error"
	ErrNotFound       ErrorType = "not_found_error"
	ErrRateLimit      ErrorType = "rate_limit_error"
	ErrAPI            ErrorType = "api_error"
	ErrOverloaded     ErrorType = "overloaded_error"
	ErrProvider       ErrorType = "provider_error"
)

// Error represents an API error from Gemini.
type Error struct {
	Type          ErrorType `json:"type"`
	Message       string    `json:"message"`
	Code          string    `json:"code,omitempty"`
	ProviderError any       `json:"provider_error,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gemini: %s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("gemini: %s: %s", e.Type, e.Message)
}

// IsRetryable returns true if the error is retryable.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrRateLimit, ErrOverloaded, ErrAPI:
		return true
	default:
		return false
	}
}

// geminiError represents an error response from Gemini API.
type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// errorTypeFor maps a Gemini status string and HTTP code to an ErrorType.
// The HTTP code wins when both are present.
func errorTypeFor(status string, httpCode int) ErrorType {
	switch httpCode {
	case http.StatusTooManyRequests:
		return ErrRateLimit
	case http.StatusServiceUnavailable:
		return ErrOverloaded
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuthentication
	case http.StatusNotFound:
		return ErrNotFound
	}

	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "INVALID_ARGUMENT", "FAILED_PRECONDITION":
		return ErrInvalidRequest
	case "UNAUTHENTICATED":
		return ErrAuthentication
	case "PERMISSION_DENIED":
		return ErrPermission
	case "NOT_FOUND":
		return ErrNotFound
	case "RESOURCE_EXHAUSTED":
		return ErrRateLimit
	case "INTERNAL":
		return ErrAPI
	case "UNAVAILABLE":
		return ErrOverloaded
	}

	switch {
	case httpCode >= 500:
		return ErrAPI
	case httpCode >= 400:
		return ErrInvalidRequest
	default:
		return ErrProvider
	}
}

// parseHandshakeError maps a rejected websocket upgrade to an Error.
func parseHandshakeError(resp *http.Response, cause error) error {
	var body []byte
	if resp.Body != nil {
		body, _ = io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	}

	var geminiErr geminiError
	if err := json.Unmarshal(body, &geminiErr); err != nil || geminiErr.Error.Message == "" {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("websocket handshake failed with status %d: %v", resp.StatusCode, cause)
		}
		return &Error{
			Type:    errorTypeFor("", resp.StatusCode),
			Message: msg,
			Code:    strconv.Itoa(resp.StatusCode),
		}
	}

	return &Error{
		Type:          errorTypeFor(geminiErr.Error.Status, resp.StatusCode),
		Message:       geminiErr.Error.Message,
		Code:          geminiErr.Error.Status,
		ProviderError: geminiErr.Error,
	}
}

// closeError maps a websocket close frame from the Live API to an Error.
// Other errors are returned unchanged.
func closeError(err error) error {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return err
	}

	var errType ErrorType
	switch ce.Code {
	case websocket.CloseInvalidFramePayloadData, websocket.CloseUnsupportedData:
		errType = ErrInvalidRequest
	case websocket.ClosePolicyViolation:
		errType = ErrPermission
	case websocket.CloseInternalServerErr:
		errType = ErrAPI
	case websocket.CloseTryAgainLater, websocket.CloseServiceRestart:
		errType = ErrOverloaded
	default:
		errType = ErrProvider
	}
	msg := strings.TrimSpace(ce.Text)
	if msg == "" {
		msg = "connection closed"
	}
	return &Error{
		Type:          errType,
		Message:       msg,
		Code:          strconv.Itoa(ce.Code),
		ProviderError: ce,
	}
}

// fromAPIError maps genai client errors to an Error.
func fromAPIError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	code := apiErr.Status
	if code == "" {
		code = strconv.Itoa(apiErr.Code)
	}
	return &Error{
		Type:          errorTypeFor(apiErr.Status, apiErr.Code),
		Message:       apiErr.Message,
		Code:          code,
		ProviderError: apiErr,
	}
}
