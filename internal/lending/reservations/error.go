package reservations

import (
	"errors"
	"fmt"

	"LIBRA-backend/internal/platform/db"
)

type Code string

const (
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeBookNotFound     Code = "BOOK_NOT_FOUND"
	CodeNotFound         Code = "NOT_FOUND"
	CodeStockAvailable   Code = "STOCK_AVAILABLE" // reservations exist only for out-of-stock titles
	CodeAlreadyReserved  Code = "ALREADY_RESERVED"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeNotCancellable   Code = "STATUS_NOT_CANCELLABLE"
	CodeConcurrentUpdate Code = "CONCURRENT_UPDATE"
	CodeInternal         Code = "INTERNAL"
)

type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func newErr(code Code, msg string) *APIError { return &APIError{Code: code, Message: msg} }

func wrapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	var api *APIError
	if errors.As(err, &api) {
		return err
	}
	if db.IsRetryable(err) {
		return newErr(CodeConcurrentUpdate, "concurrent update, please retry")
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
		case CodeBookNotFound, CodeNotFound:
			return 404
		case CodeStockAvailable, CodeAlreadyReserved, CodeNotCancellable, CodeConcurrentUpdate:
			return 409
		default:
			return 500
		}
	}
	return 500
}
