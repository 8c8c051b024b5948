// Package apperr classifies pipeline failures so every HTTP and Lambda boundary maps them
// to the same status codes and {error, message} body.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	// KindValidation marks bad input rejected before any external call.
	KindValidation Kind = "validation"
	// KindCollaborator marks storage, transcription or model failures.
	KindCollaborator Kind = "collaborator"
	// KindResponseShape marks model output that is not the JSON we asked for.
	KindResponseShape Kind = "response_shape"
	KindPersistence   Kind = "persistence"
	KindNotFound      Kind = "not_found"
	KindUnauthorized  Kind = "unauthorized"
	KindInternal      Kind = "internal"
)

// Error carries a Kind alongside the operation that failed. The wrapped error's message is
// preserved verbatim.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with kind and op. A nil err yields nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func Validation(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Err: fmt.Errorf(format, args...)}
}

func Collaborator(op string, err error) error  { return E(KindCollaborator, op, err) }
func ResponseShape(op string, err error) error { return E(KindResponseShape, op, err) }
func Persistence(op string, err error) error   { return E(KindPersistence, op, err) }
func NotFound(op string, err error) error      { return E(KindNotFound, op, err) }
func Unauthorized(op string, err error) error  { return E(KindUnauthorized, op, err) }
func Internal(op string, err error) error      { return E(KindInternal, op, err) }

// KindOf returns the outermost classification in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindCollaborator, KindResponseShape:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Body is the error payload returned to clients.
type Body struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// BodyFor builds the client-facing payload. Internal and persistence failures do not leak
// their message; it can carry SQL or constraint names.
func BodyFor(err error) Body {
	kind := KindOf(err)
	body := Body{Error: string(kind)}
	switch kind {
	case KindInternal, KindPersistence:
	default:
		body.Message = err.Error()
	}
	return body
}

// WriteJSON writes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Write maps err to its status code and writes the error body.
func Write(w http.ResponseWriter, err error) {
	WriteJSON(w, HTTPStatus(KindOf(err)), BodyFor(err))
}
