package fines

import (
	"errors"
	"fmt"

	"LIBRA-backend/internal/platform/db"
)

type Code string

const (
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeNotFound         Code = "NOT_FOUND"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeConflict         Code = "CONFLICT" // fine not in a payable/waivable state
	CodeConcurrentUpdate Code = "CONCURRENT_UPDATE"
	CodeInternal         Code = "INTERNAL"
)

type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string       { return fmt.Sprintf("%s: %s", e.Code, e.Message) }
func ErrInvalid(msg string) *APIError   { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError  { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrPermission(msg string) *APIError {
	return &APIError{Code: CodePermissionDenied, Message: msg}
}
func ErrConflict(msg string) *APIError { return &APIError{Code: CodeConflict, Message: msg} }
func ErrInternal(msg string) *APIError { return &APIError{Code: CodeInternal, Message: msg} }

func wrapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	var api *APIError
	if errors.As(err, &api) {
		return err
	}
	if db.IsRetryable(err) {
		return &APIError{Code: CodeConcurrentUpdate, Message: "concurrent update, please retry"}
	}
	return err
}

func ToHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument:
			return 400
		case CodePermissionDenied:
			return 403
		case CodeNotFound:
			return 404
		case CodeConflict, CodeConcurrentUpdate:
			return 409
		default:
			return 500
		}
	}
	return 500
}
