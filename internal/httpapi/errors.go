package httpapi

import (
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/bankroll/internal/checkout"
	"github.com/MarkoPoloResearchLab/bankroll/pkg/access"
	"github.com/MarkoPoloResearchLab/bankroll/pkg/bankroll"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	codeInvalidInput        = "invalid_input"
	codeInvalidPayload      = "invalid_payload"
	codeInsufficientBalance = "insufficient_balance"
	codeAlreadySettled      = "already_settled"
	codeAlreadyInitialized  = "already_initialized"
	codeNotFound            = "not_found"
	codeUserExists          = "user_exists"
	codeStorageConflict     = "storage_conflict"
	codeAccessRequired      = "access_required"
	codeForbidden           = "forbidden"
	codeUnauthorized        = "unauthorized"
	codeCheckoutUnavailable = "checkout_unavailable"
	codeGatewayError        = "gateway_error"
	codeInternal            = "internal_error"
)

type apiError struct {
	status  int
	code    string
	message string
}

// classifyError maps domain errors onto stable HTTP responses.
func classifyError(err error) apiError {
	switch {
	case errors.Is(err, bankroll.ErrInvalidInput),
		errors.Is(err, access.ErrInvalidIdentity),
		errors.Is(err, access.ErrInvalidEmail),
		errors.Is(err, access.ErrInvalidGrant),
		errors.Is(err, checkout.ErrInvalidCustomer):
		return apiError{status: http.StatusBadRequest, code: codeInvalidInput, message: err.Error()}
	case errors.Is(err, bankroll.ErrInsufficientBalance):
		return apiError{status: http.StatusConflict, code: codeInsufficientBalance, message: "insufficient balance"}
	case errors.Is(err, bankroll.ErrAlreadySettled):
		return apiError{status: http.StatusConflict, code: codeAlreadySettled, message: "bet already settled"}
	case errors.Is(err, bankroll.ErrAlreadyInitialized):
		return apiError{status: http.StatusConflict, code: codeAlreadyInitialized, message: "bankroll already initialized"}
	case errors.Is(err, access.ErrUserExists),
		errors.Is(err, access.ErrUnknownPreAuthorization):
		return apiError{status: http.StatusConflict, code: codeUserExists, message: "email is registered to another account"}
	case errors.Is(err, bankroll.ErrUnknownAccount),
		errors.Is(err, bankroll.ErrUnknownBet),
		errors.Is(err, access.ErrUnknownUser):
		return apiError{status: http.StatusNotFound, code: codeNotFound, message: "not found"}
	case errors.Is(err, bankroll.ErrStorageConflict):
		return apiError{status: http.StatusInternalServerError, code: codeStorageConflict, message: "concurrent update, try again"}
	case errors.Is(err, checkout.ErrMissingAPIKey):
		return apiError{status: http.StatusServiceUnavailable, code: codeCheckoutUnavailable, message: "checkout is not configured"}
	case errors.Is(err, checkout.ErrGateway):
		return apiError{status: http.StatusBadGateway, code: codeGatewayError, message: "payment gateway error"}
	default:
		return apiError{status: http.StatusInternalServerError, code: codeInternal, message: "internal error"}
	}
}

func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	classified := classifyError(err)
	if classified.status >= http.StatusInternalServerError {
		handler.logger.Error("request failed",
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.FullPath()),
			zap.Error(err),
		)
	}
	ctx.AbortWithStatusJSON(classified.status, errorResponse(classified.code, classified.message))
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
