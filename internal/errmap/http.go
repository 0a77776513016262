// Package errmap translates domain sentinel errors into the HTTP error
// envelope every Shamell service and the BFF gateway return to clients.
package errmap

import (
	"errors"
	"net/http"

	"github.com/shamell/shamell/internal/domain"
)

// HTTPError represents an HTTP error response body.
type HTTPError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e HTTPError) Error() string {
	return e.Message
}

// ToHTTPError converts a domain error into the HTTP error envelope. Every
// service's HTTP adapter and the BFF gateway funnel errors through this one
// function so the mapping from sentinel to wire shape lives in exactly one
// place.
func ToHTTPError(err error) HTTPError {
	if err == nil {
		return HTTPError{StatusCode: http.StatusOK}
	}

	switch {
	case errors.Is(err, domain.ErrDuplicateMessage):
		// Idempotency hit: return success, not an error.
		return HTTPError{StatusCode: http.StatusOK, Code: "DUPLICATE", Message: err.Error()}

	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrKeyBundleUnavailable):
		// key-bundle policy violations are deliberately indistinguishable
		// from a missing device, never disclosing which strict-v2
		// precondition failed.
		return HTTPError{StatusCode: http.StatusNotFound, Code: "NOT_FOUND", Message: err.Error()}

	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrIdempotencyConflict),
		errors.Is(err, domain.ErrIdempotencyMismatch),
		errors.Is(err, domain.ErrDeviceLoginBound),
		errors.Is(err, domain.ErrBookingNotPending),
		errors.Is(err, domain.ErrTicketAlreadyBoarded):
		return HTTPError{StatusCode: http.StatusConflict, Code: "CONFLICT", Message: err.Error()}

	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrSessionExpired),
		errors.Is(err, domain.ErrSessionRevoked),
		errors.Is(err, domain.ErrChallengeExpired),
		errors.Is(err, domain.ErrChallengeMismatch),
		errors.Is(err, domain.ErrDeviceMismatch),
		errors.Is(err, domain.ErrDeviceTokenInvalid),
		errors.Is(err, domain.ErrDeviceLoginNotReady):
		return HTTPError{StatusCode: http.StatusUnauthorized, Code: "UNAUTHENTICATED", Message: err.Error()}

	case errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrNotMember),
		errors.Is(err, domain.ErrPoWInvalid),
		errors.Is(err, domain.ErrAttestationFailed),
		errors.Is(err, domain.ErrProtocolDowngrade),
		errors.Is(err, domain.ErrProtocolDisabled),
		errors.Is(err, domain.ErrSealedSenderRequired),
		errors.Is(err, domain.ErrInviteSelfRedeem),
		errors.Is(err, domain.ErrBoardingRejected):
		return HTTPError{StatusCode: http.StatusForbidden, Code: "PERMISSION_DENIED", Message: err.Error()}

	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrMessageTooLarge),
		errors.Is(err, domain.ErrInvalidContentType),
		errors.Is(err, domain.ErrEmptyID),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidPhoneNumber),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrSameWalletTransfer),
		errors.Is(err, domain.ErrCurrencyMismatch),
		errors.Is(err, domain.ErrSeatsUnavailable),
		errors.Is(err, domain.ErrTripNotPublished),
		errors.Is(err, domain.ErrDepartureHasPassed),
		errors.Is(err, domain.ErrInviteExhausted),
		errors.Is(err, domain.ErrMailboxInactive):
		return HTTPError{StatusCode: http.StatusBadRequest, Code: "INVALID_ARGUMENT", Message: err.Error()}

	case errors.Is(err, domain.ErrRateLimited),
		errors.Is(err, domain.ErrPhoneRateLimited),
		errors.Is(err, domain.ErrIPRateLimited),
		errors.Is(err, domain.ErrSlowConsumer):
		return HTTPError{StatusCode: http.StatusTooManyRequests, Code: "RATE_LIMITED", Message: err.Error()}

	case errors.Is(err, domain.ErrUpstream):
		return HTTPError{StatusCode: http.StatusBadGateway, Code: "UPSTREAM_ERROR", Message: err.Error()}

	case errors.Is(err, domain.ErrUnavailable):
		return HTTPError{StatusCode: http.StatusServiceUnavailable, Code: "UNAVAILABLE", Message: err.Error()}

	default:
		// Never expose internal error details to clients.
		return HTTPError{StatusCode: http.StatusInternalServerError, Code: "INTERNAL", Message: "internal error"}
	}
}

// ToHTTPStatusCode extracts just the HTTP status code for a domain error.
func ToHTTPStatusCode(err error) int {
	return ToHTTPError(err).StatusCode
}
