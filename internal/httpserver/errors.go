package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pideas/creditd/pkg/credit"
)

const (
	errorCodeAccountNotFound     = "account_not_found"
	errorCodeAccountExists       = "account_exists"
	errorCodeAccountInactive     = "account_inactive"
	errorCodeInsufficientCredits = "insufficient_credits"
	errorCodeDuplicateRequest    = "duplicate_idempotency_key"
	errorCodeUnknownPackage      = "unknown_package"
	errorCodePackageNotEligible  = "package_not_eligible"
	errorCodeInvalidPayload      = "invalid_payload"
	errorCodeInternal            = "internal_error"
)

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// respondDomainError maps balance-engine errors onto HTTP statuses.
// InsufficientCredits is the one recoverable failure the UI acts on
// (402 prompts the purchase flow); store-level failures collapse to a
// generic retryable 500.
func respondDomainError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, credit.ErrAccountNotFound):
		ctx.JSON(http.StatusNotFound, errorResponse(errorCodeAccountNotFound, "account not initialized"))
	case errors.Is(err, credit.ErrInsufficientCredits):
		ctx.JSON(http.StatusPaymentRequired, errorResponse(errorCodeInsufficientCredits, "not enough credits for this action"))
	case errors.Is(err, credit.ErrAccountInactive):
		ctx.JSON(http.StatusForbidden, errorResponse(errorCodeAccountInactive, "account is deactivated"))
	case errors.Is(err, credit.ErrPackageNotEligible):
		ctx.JSON(http.StatusForbidden, errorResponse(errorCodePackageNotEligible, "package not available for this role"))
	case errors.Is(err, credit.ErrUnknownPackage):
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeUnknownPackage, "no such package"))
	case errors.Is(err, credit.ErrDuplicateIdempotencyKey):
		ctx.JSON(http.StatusConflict, errorResponse(errorCodeDuplicateRequest, "operation already applied"))
	case errors.Is(err, credit.ErrAccountExists):
		ctx.JSON(http.StatusConflict, errorResponse(errorCodeAccountExists, "account already exists"))
	case errors.Is(err, credit.ErrInvalidRole),
		errors.Is(err, credit.ErrInvalidActionType),
		errors.Is(err, credit.ErrInvalidAccountStatus),
		errors.Is(err, credit.ErrInvalidAmount),
		errors.Is(err, credit.ErrInvalidAccountID),
		errors.Is(err, credit.ErrInvalidAdminID),
		errors.Is(err, credit.ErrInvalidIdempotencyKey),
		errors.Is(err, credit.ErrInvalidMetadataJSON):
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, err.Error()))
	default:
		ctx.JSON(http.StatusInternalServerError, errorResponse(errorCodeInternal, "operation failed, retry later"))
	}
}
