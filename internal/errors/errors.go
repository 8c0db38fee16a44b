package errors

import (
	"errors"
	"net/http"
)

var (
	// ErrCardNotFound is returned when a card does not exist or is not visible to the caller.
	ErrCardNotFound = errors.New("card not found")
	// ErrTransferNotFound is returned when a transfer does not exist.
	ErrTransferNotFound = errors.New("transfer not found")
	// ErrBlockRequestNotFound is returned when a block request does not exist.
	ErrBlockRequestNotFound = errors.New("block request not found")
	// ErrUserNotFound is returned when a referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidAmount is returned when amount is zero, negative or malformed.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrSameCard is returned when source and destination of a transfer are the same card.
	ErrSameCard = errors.New("source and destination card must differ")
	// ErrInvalidCardNumber is returned when a card number fails the Luhn check.
	ErrInvalidCardNumber = errors.New("invalid card number")
	// ErrInvalidExpiry is returned when the expiry is malformed or not in the future.
	ErrInvalidExpiry = errors.New("invalid card expiry")
	// ErrInvalidInput is returned for malformed input outside the other categories.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInsufficientFunds is returned when a card balance does not cover the amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInactiveCard is returned when an operation requires an active, unexpired card.
	ErrInactiveCard = errors.New("card is not active")
	// ErrStatusAlreadySet is returned when a status change would not change anything.
	ErrStatusAlreadySet = errors.New("card already has the requested status")
	// ErrInvalidStatusTransition is returned for status edges outside ACTIVE <-> BLOCKED.
	ErrInvalidStatusTransition = errors.New("invalid card status transition")
	// ErrNonZeroBalance is returned when deleting a card that still holds funds.
	ErrNonZeroBalance = errors.New("card balance must be zero")
	// ErrCardNumberTaken is returned when the card number is already issued.
	ErrCardNumberTaken = errors.New("card number already issued")
	// ErrBlockRequestExists is returned when the card already has a pending block request.
	ErrBlockRequestExists = errors.New("card already has a pending block request")
	// ErrBlockRequestResolved is returned when approving or rejecting a resolved request.
	ErrBlockRequestResolved = errors.New("block request already resolved")
	// ErrConcurrentUpdate is returned when the row version changed under the writer.
	// It is the only error a caller may retry, after re-reading state.
	ErrConcurrentUpdate = errors.New("concurrent update detected")

	// ErrForbidden is returned when the caller lacks the role for an operation.
	ErrForbidden = errors.New("forbidden")

	// ErrCrypto is returned when card number ciphertext fails to decrypt or verify.
	ErrCrypto = errors.New("card number integrity check failed")
)

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message, code string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Code:       code,
	}
}

// ToErrorResponse converts an HTTPError to ErrorResponse.
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{
		Error: e.Message,
		Code:  e.Code,
	}
}

var mappings = []struct {
	err    error
	status int
	code   string
}{
	{ErrCardNotFound, http.StatusNotFound, "CARD_NOT_FOUND"},
	{ErrTransferNotFound, http.StatusNotFound, "TRANSFER_NOT_FOUND"},
	{ErrBlockRequestNotFound, http.StatusNotFound, "BLOCK_REQUEST_NOT_FOUND"},
	{ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND"},
	{ErrInvalidAmount, http.StatusBadRequest, "INVALID_AMOUNT"},
	{ErrSameCard, http.StatusBadRequest, "SAME_CARD"},
	{ErrInvalidCardNumber, http.StatusBadRequest, "INVALID_CARD_NUMBER"},
	{ErrInvalidExpiry, http.StatusBadRequest, "INVALID_EXPIRY"},
	{ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT"},
	{ErrInsufficientFunds, http.StatusBadRequest, "INSUFFICIENT_FUNDS"},
	{ErrInactiveCard, http.StatusConflict, "CARD_INACTIVE"},
	{ErrStatusAlreadySet, http.StatusConflict, "STATUS_ALREADY_SET"},
	{ErrInvalidStatusTransition, http.StatusConflict, "INVALID_STATUS_TRANSITION"},
	{ErrNonZeroBalance, http.StatusConflict, "NON_ZERO_BALANCE"},
	{ErrCardNumberTaken, http.StatusConflict, "CARD_NUMBER_TAKEN"},
	{ErrBlockRequestExists, http.StatusConflict, "BLOCK_REQUEST_EXISTS"},
	{ErrBlockRequestResolved, http.StatusConflict, "BLOCK_REQUEST_RESOLVED"},
	{ErrConcurrentUpdate, http.StatusConflict, "CONCURRENT_UPDATE"},
	{ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
}

// MapErrorToHTTP maps domain errors to HTTP errors. Wrapped errors are
// matched with errors.Is; the sentinel message is exposed, never the wrapped detail.
func MapErrorToHTTP(err error) *HTTPError {
	for _, m := range mappings {
		if errors.Is(err, m.err) {
			return NewHTTPError(m.status, m.err.Error(), m.code)
		}
	}
	return NewHTTPError(http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
}

// Retryable reports whether err may be retried after re-reading state.
func Retryable(err error) bool {
	return errors.Is(err, ErrConcurrentUpdate)
}
