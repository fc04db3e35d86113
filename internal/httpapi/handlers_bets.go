package httpapi

import (
	"net/http"

	"github.com/MarkoPoloResearchLab/bankroll/pkg/bankroll"
	"github.com/gin-gonic/gin"
)

func (handler *httpHandler) handlePlaceBet(ctx *gin.Context) {
	userID, ok := handler.currentUserID(ctx)
	if !ok {
		return
	}
	var request placeBetRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, "expected JSON bet body"))
		return
	}
	details, err := bankroll.NewBetDetails(request.Game, request.Market, request.Sport)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	odd, err := bankroll.NewOdd(request.Odd)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	stake, err := bankroll.NewAmount(request.Stake)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	bet, err := handler.bankroll.PlaceBet(requestCtx, userID, details, odd, stake)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.respondWithBankroll(ctx, http.StatusCreated, userID, gin.H{"bet": newBetPayload(bet)})
}

func (handler *httpHandler) handleSettleBet(ctx *gin.Context) {
	userID, ok := handler.currentUserID(ctx)
	if !ok {
		return
	}
	betID, ok := handler.betIDParam(ctx)
	if !ok {
		return
	}
	var request settleBetRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, "expected JSON body with result"))
		return
	}
	result, err := bankroll.ParseResult(request.Result)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	bet, err := handler.bankroll.SettleBet(requestCtx, userID, betID, result)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.respondWithBankroll(ctx, http.StatusOK, userID, gin.H{"bet": newBetPayload(bet)})
}

func (handler *httpHandler) handleEditBet(ctx *gin.Context) {
	userID, ok := handler.currentUserID(ctx)
	if !ok {
		return
	}
	betID, ok := handler.betIDParam(ctx)
	if !ok {
		return
	}
	var request editBetRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, "expected JSON patch body"))
		return
	}
	patch, err := request.toPatch()
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	bet, err := handler.bankroll.EditBet(requestCtx, userID, betID, patch)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.respondWithBankroll(ctx, http.StatusOK, userID, gin.H{"bet": newBetPayload(bet)})
}

func (handler *httpHandler) handleDeleteBet(ctx *gin.Context) {
	userID, ok := handler.currentUserID(ctx)
	if !ok {
		return
	}
	betID, ok := handler.betIDParam(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	if err := handler.bankroll.DeleteBet(requestCtx, userID, betID); err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.respondWithBankroll(ctx, http.StatusOK, userID, gin.H{"deleted": betID.String()})
}

func (handler *httpHandler) betIDParam(ctx *gin.Context) (bankroll.BetID, bool) {
	betID, err := bankroll.NewBetID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return bankroll.BetID{}, false
	}
	return betID, true
}

func (request editBetRequest) toPatch() (bankroll.BetPatch, error) {
	patch := bankroll.BetPatch{
		Game:   request.Game,
		Market: request.Market,
		Sport:  request.Sport,
	}
	if request.Odd != nil {
		odd, err := bankroll.NewOdd(*request.Odd)
		if err != nil {
			return bankroll.BetPatch{}, err
		}
		patch.Odd = &odd
	}
	if request.Stake != nil {
		stake, err := bankroll.NewAmount(*request.Stake)
		if err != nil {
			return bankroll.BetPatch{}, err
		}
		patch.Stake = &stake
	}
	if request.Result != nil {
		result, err := bankroll.ParseResult(*request.Result)
		if err != nil {
			return bankroll.BetPatch{}, err
		}
		patch.Result = &result
	}
	return patch, nil
}
