package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/MarkoPoloResearchLab/bankroll/pkg/bankroll"
	"github.com/gin-gonic/gin"
)

func (handler *httpHandler) handleBankroll(ctx *gin.Context) {
	userID, ok := handler.currentUserID(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	account, err := handler.bankroll.Account(requestCtx, userID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"bankroll": newAccountPayload(account)})
}

func (handler *httpHandler) handleInitialBalance(ctx *gin.Context) {
	userID, ok := handler.currentUserID(ctx)
	if !ok {
		return
	}
	amount, ok := handler.bindAmount(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	account, err := handler.bankroll.SetInitialBalance(requestCtx, userID, amount)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"bankroll": newAccountPayload(account)})
}

func (handler *httpHandler) handleDeposit(ctx *gin.Context) {
	handler.handleTransaction(ctx, handler.bankroll.Deposit)
}

func (handler *httpHandler) handleWithdraw(ctx *gin.Context) {
	handler.handleTransaction(ctx, handler.bankroll.Withdraw)
}

type transactionFunc func(ctx context.Context, userID bankroll.UserID, amount bankroll.Amount) (bankroll.Transaction, error)

func (handler *httpHandler) handleTransaction(ctx *gin.Context, record transactionFunc) {
	userID, ok := handler.currentUserID(ctx)
	if !ok {
		return
	}
	amount, ok := handler.bindAmount(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	transaction, err := record(requestCtx, userID, amount)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.respondWithBankroll(ctx, http.StatusCreated, userID, gin.H{"transaction": newTransactionPayload(transaction)})
}

func (handler *httpHandler) handleReset(ctx *gin.Context) {
	userID, ok := handler.currentUserID(ctx)
	if !ok {
		return
	}
	var request resetRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, "expected JSON body with initialBalance"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	account, err := handler.bankroll.ResetBankroll(requestCtx, userID, request.InitialBalance)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"bankroll": newAccountPayload(account)})
}

func (handler *httpHandler) handleHistory(ctx *gin.Context) {
	userID, ok := handler.currentUserID(ctx)
	if !ok {
		return
	}
	limit := 0
	if rawLimit := ctx.Query("limit"); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil || parsed < 0 {
			ctx.AbortWithStatusJSON(http.StatusBadRequest, errorResponse(codeInvalidInput, "limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	history, err := handler.bankroll.History(requestCtx, userID, limit)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	bets := make([]betPayload, 0, len(history.Bets))
	for _, bet := range history.Bets {
		bets = append(bets, newBetPayload(bet))
	}
	transactions := make([]transactionPayload, 0, len(history.Transactions))
	for _, transaction := range history.Transactions {
		transactions = append(transactions, newTransactionPayload(transaction))
	}
	ctx.JSON(http.StatusOK, gin.H{
		"bankroll":     newAccountPayload(history.Account),
		"bets":         bets,
		"transactions": transactions,
	})
}

func (handler *httpHandler) handleStatistics(ctx *gin.Context) {
	userID, ok := handler.currentUserID(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	statistics, err := handler.bankroll.Statistics(requestCtx, userID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"statistics": newStatisticsPayload(statistics)})
}

func (handler *httpHandler) bindAmount(ctx *gin.Context) (bankroll.Amount, bool) {
	var request amountRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, "expected JSON body with amount"))
		return bankroll.Amount{}, false
	}
	amount, err := bankroll.NewAmount(request.Amount)
	if err != nil {
		handler.respondError(ctx, err)
		return bankroll.Amount{}, false
	}
	return amount, true
}

// respondWithBankroll adds the account after a mutation so clients can refresh the balance.
func (handler *httpHandler) respondWithBankroll(ctx *gin.Context, status int, userID bankroll.UserID, body gin.H) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	account, err := handler.bankroll.Account(requestCtx, userID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	body["bankroll"] = newAccountPayload(account)
	ctx.JSON(status, body)
}
