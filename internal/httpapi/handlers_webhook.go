package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/MarkoPoloResearchLab/bankroll/pkg/webhook"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	codeWebhookUnauthorized = "invalid_signature"
	codeWebhookMalformed    = "malformed_event"
	codeWebhookRejected     = "unprocessable_event"
	codePayloadTooLarge     = "payload_too_large"
)

// handlePaymentWebhook reads the raw body before anything parses it; the
// signature covers the exact bytes the gateway sent.
func (handler *httpHandler) handlePaymentWebhook(ctx *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			ctx.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, errorResponse(codePayloadTooLarge, "webhook body exceeds 1 MiB"))
			return
		}
		ctx.AbortWithStatusJSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, "unreadable body"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	result, err := handler.webhooks.Process(requestCtx, ctx.GetHeader(handler.cfg.WebhookSignatureHeader), body)
	switch {
	case err == nil:
		ctx.JSON(http.StatusOK, gin.H{
			"received": true,
			"status":   string(result.Status),
			"eventId":  result.EventID,
		})
	case errors.Is(err, webhook.ErrUnauthorized):
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(codeWebhookUnauthorized, "signature verification failed"))
	case errors.Is(err, webhook.ErrMalformedEvent):
		ctx.AbortWithStatusJSON(http.StatusBadRequest, errorResponse(codeWebhookMalformed, err.Error()))
	case errors.Is(err, webhook.ErrUnprocessableEvent):
		ctx.AbortWithStatusJSON(http.StatusBadRequest, errorResponse(codeWebhookRejected, err.Error()))
	default:
		handler.logger.Error("webhook processing failed", zap.String("event_id", result.EventID), zap.Error(err))
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse(codeInternal, "webhook processing failed"))
	}
}
