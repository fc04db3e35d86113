package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/bankroll/internal/checkout"
	"github.com/MarkoPoloResearchLab/bankroll/pkg/access"
	"github.com/MarkoPoloResearchLab/bankroll/pkg/plans"
	"github.com/gin-gonic/gin"
)

const revenueDateLayout = "2006-01-02"

func (handler *httpHandler) handleSession(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse(codeUnauthorized, "missing session"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	user, err := handler.access.ResolveOnSignIn(requestCtx, newUserFromClaims(claims))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"user":    newUserPayload(user, handler.nowFn()),
		"expires": claims.GetExpiresAt().Unix(),
	})
}

func (handler *httpHandler) handleMe(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"user": newUserPayload(currentUser(ctx), handler.nowFn())})
}

func (handler *httpHandler) handleCheckout(ctx *gin.Context) {
	var request checkoutRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, "expected JSON body with planId and taxId"))
		return
	}
	plan, ok := plans.Lookup(request.PlanID)
	if !ok {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, errorResponse(codeInvalidInput, fmt.Sprintf("unknown plan %q", request.PlanID)))
		return
	}
	user := currentUser(ctx)
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	url, err := handler.checkout.CreateCheckout(requestCtx, checkout.Request{
		Plan: plan,
		Customer: checkout.Customer{
			ID:        user.ID,
			Name:      user.DisplayName,
			Email:     user.Email,
			TaxID:     request.TaxID,
			Cellphone: request.Cellphone,
		},
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"url": url})
}

func (handler *httpHandler) handleGrants(ctx *gin.Context) {
	var request grantsRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, "expected JSON body with identities"))
		return
	}
	if len(request.Identities) == 0 {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, errorResponse(codeInvalidInput, "identities must not be empty"))
		return
	}
	until, err := handler.grantExpiry(request)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	outcomes := handler.access.BulkGrant(requestCtx, request.Identities, until, currentUser(ctx).Email)
	payloads := make([]grantOutcomePayload, 0, len(outcomes))
	granted := 0
	for _, outcome := range outcomes {
		if outcome.Err == nil {
			granted++
		}
		payloads = append(payloads, newGrantOutcomePayload(outcome))
	}
	ctx.JSON(http.StatusOK, gin.H{
		"accessUntil": until,
		"granted":     granted,
		"results":     payloads,
	})
}

// grantExpiry prefers an explicit expiry over a plan duration counted from now.
func (handler *httpHandler) grantExpiry(request grantsRequest) (time.Time, error) {
	if request.AccessUntil != nil {
		if !request.AccessUntil.After(handler.nowFn()) {
			return time.Time{}, fmt.Errorf("%w: accessUntil must be in the future", access.ErrInvalidGrant)
		}
		return request.AccessUntil.UTC(), nil
	}
	if strings.TrimSpace(request.PlanID) == "" {
		return time.Time{}, fmt.Errorf("%w: planId or accessUntil is required", access.ErrInvalidGrant)
	}
	plan, ok := plans.Lookup(request.PlanID)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: unknown plan %q", access.ErrInvalidGrant, request.PlanID)
	}
	return plan.AccessUntil(handler.nowFn().UTC()), nil
}

func (handler *httpHandler) handleRevenue(ctx *gin.Context) {
	since, err := handler.revenueSince(ctx.Query("since"))
	if err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, errorResponse(codeInvalidInput, "since must be YYYY-MM-DD or RFC3339"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	report, err := handler.access.RevenueReport(requestCtx, since)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	months := make([]monthlyRevenuePayload, 0, len(report.Months))
	var totalCents int64
	for _, month := range report.Months {
		totalCents += month.AmountCents
		months = append(months, monthlyRevenuePayload{
			Month:       month.Month,
			AmountCents: month.AmountCents,
			Payments:    month.Payments,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{
		"since":      report.Since,
		"newUsers":   report.NewUsers,
		"totalCents": totalCents,
		"months":     months,
	})
}

// revenueSince defaults to the first day of the month a year back, covering twelve calendar months.
func (handler *httpHandler) revenueSince(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		now := handler.nowFn().UTC()
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return monthStart.AddDate(0, -revenueWindowMonths, 0), nil
	}
	if parsed, err := time.Parse(revenueDateLayout, raw); err == nil {
		return parsed, nil
	}
	return time.Parse(time.RFC3339, raw)
}
