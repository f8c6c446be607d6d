package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mcoot/partyroom/internal/model"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Common error codes
const (
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeInvalidRoomType   = "INVALID_ROOM_TYPE"
	CodeInvalidPlayerData = "INVALID_PLAYER_DATA"
	CodeInvalidID         = "INVALID_ID"
	CodeAlreadyLoggedIn   = "ALREADY_LOGGED_IN"
	CodeRoomNotFound      = "ROOM_NOT_FOUND"
	CodePlayerNotFound    = "PLAYER_NOT_FOUND"
	CodeNotOwner          = "NOT_OWNER"
	CodeTransient         = "TRANSIENT"
	CodeIntegrityError    = "INTEGRITY_ERROR"
	CodeNotReady          = "NOT_READY"
	CodeInternalError     = "INTERNAL_ERROR"
)

// ErrInvalidRequest is what an INVALID_REQUEST response turns back into
var ErrInvalidRequest = errors.New("invalid request")

// ErrInternal is what an INTERNAL_ERROR response turns back into
var ErrInternal = errors.New("internal server error")

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

// Status returns the HTTP status an error is written with
func Status(err error) int {
	return toHTTPError(err).status
}

// toHTTPError converts an error to an httpError. Errors carrying several
// sentinels resolve to the first case that matches, so NotReady wins over
// a Transient wrapper around it.
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	switch {
	case errors.Is(err, model.ErrAlreadyLoggedIn):
		return &httpError{http.StatusConflict, APIError{CodeAlreadyLoggedIn, err.Error()}}
	case errors.Is(err, model.ErrRoomNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeRoomNotFound, err.Error()}}
	case errors.Is(err, model.ErrPlayerNotFound):
		return &httpError{http.StatusNotFound, APIError{CodePlayerNotFound, err.Error()}}
	case errors.Is(err, model.ErrInvalidRoomType):
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidRoomType, err.Error()}}
	case errors.Is(err, model.ErrInvalidPlayerData):
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidPlayerData, err.Error()}}
	case errors.Is(err, model.ErrInvalidID):
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidID, err.Error()}}
	case errors.Is(err, ErrInvalidRequest):
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, err.Error()}}
	case errors.Is(err, model.ErrIntegrity):
		return &httpError{http.StatusInternalServerError, APIError{CodeIntegrityError, err.Error()}}
	case errors.Is(err, model.ErrNotReady):
		return &httpError{http.StatusServiceUnavailable, APIError{CodeNotReady, "Service is not ready"}}
	case errors.Is(err, model.ErrNotOwner):
		return &httpError{http.StatusServiceUnavailable, APIError{CodeNotOwner, err.Error()}}
	case errors.Is(err, model.ErrTransient):
		return &httpError{http.StatusServiceUnavailable, APIError{CodeTransient, err.Error()}}

	default:
		return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
	}
}

var codeErrors = map[string]error{
	CodeInvalidRequest:    ErrInvalidRequest,
	CodeInvalidRoomType:   model.ErrInvalidRoomType,
	CodeInvalidPlayerData: model.ErrInvalidPlayerData,
	CodeInvalidID:         model.ErrInvalidID,
	CodeAlreadyLoggedIn:   model.ErrAlreadyLoggedIn,
	CodeRoomNotFound:      model.ErrRoomNotFound,
	CodePlayerNotFound:    model.ErrPlayerNotFound,
	CodeNotOwner:          model.ErrNotOwner,
	CodeTransient:         model.ErrTransient,
	CodeIntegrityError:    model.ErrIntegrity,
	CodeNotReady:          model.ErrNotReady,
	CodeInternalError:     ErrInternal,
}

// FromCode turns an error envelope received from another service back into
// an error wrapping the matching sentinel. Unknown codes become internal
// errors.
func FromCode(code, message string) error {
	sentinel, ok := codeErrors[code]
	if !ok {
		return fmt.Errorf("%w: %s: %s", ErrInternal, code, message)
	}
	if rest, found := strings.CutPrefix(message, sentinel.Error()); found {
		return fmt.Errorf("%w%s", sentinel, rest)
	}
	return fmt.Errorf("%w: %s", sentinel, message)
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, message}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
}
