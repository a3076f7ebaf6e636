package borrows

import (
	"errors"
	"fmt"

	"LIBRA-backend/internal/platform/db"
)

type Code string

const (
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"
	CodeInvalidDays       Code = "INVALID_DAYS"
	CodeBookUnavailable   Code = "BOOK_UNAVAILABLE"
	CodeStockExhausted    Code = "STOCK_EXHAUSTED"
	CodeAlreadyBorrowed   Code = "ALREADY_BORROWED"
	CodeLimitExceeded     Code = "LIMIT_EXCEEDED"
	CodeNotFound          Code = "NOT_FOUND"
	CodeAlreadyReturned   Code = "ALREADY_RETURNED"
	CodePermissionDenied  Code = "PERMISSION_DENIED"
	CodeOverdueNotAllowed Code = "OVERDUE_NOT_ALLOWED"
	CodeNoFine            Code = "NO_FINE"
	CodeAlreadyPaid       Code = "ALREADY_PAID"
	CodeConcurrentUpdate  Code = "CONCURRENT_UPDATE"
	CodeInternal          Code = "INTERNAL"
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
		case CodeInvalidArgument, CodeInvalidDays:
			return 400
		case CodePermissionDenied:
			return 403
		case CodeNotFound:
			return 404
		case CodeBookUnavailable, CodeStockExhausted, CodeAlreadyBorrowed, CodeLimitExceeded,
			CodeAlreadyReturned, CodeOverdueNotAllowed, CodeNoFine, CodeAlreadyPaid,
			CodeConcurrentUpdate:
			return 409
		default:
			return 500
		}
	}
	return 500
}
