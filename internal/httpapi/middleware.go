package httpapi

import (
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/bankroll/pkg/access"
	"github.com/MarkoPoloResearchLab/bankroll/pkg/bankroll"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
)

// loadUser resolves the session claims to a stored user, registering it on first use.
func (handler *httpHandler) loadUser(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(codeUnauthorized, "missing session"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	user, err := handler.access.User(requestCtx, claims.GetUserID())
	if errors.Is(err, access.ErrUnknownUser) {
		user, err = handler.access.ResolveOnSignIn(requestCtx, newUserFromClaims(claims))
	}
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Set(userContextKey, user)
	ctx.Next()
}

// requireAccess enforces the paywall on ledger mutations. Admins are exempt.
func (handler *httpHandler) requireAccess(ctx *gin.Context) {
	user := currentUser(ctx)
	if user.IsAdmin() || access.IsActive(user, handler.nowFn()) {
		ctx.Next()
		return
	}
	ctx.AbortWithStatusJSON(http.StatusPaymentRequired, errorResponse(codeAccessRequired, "an active subscription is required"))
}

func (handler *httpHandler) requireAdmin(ctx *gin.Context) {
	if !currentUser(ctx).IsAdmin() {
		ctx.AbortWithStatusJSON(http.StatusForbidden, errorResponse(codeForbidden, "admin role required"))
		return
	}
	ctx.Next()
}

func getClaims(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get(claimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	return claims
}

func currentUser(ctx *gin.Context) access.User {
	value, ok := ctx.Get(userContextKey)
	if !ok {
		return access.User{}
	}
	user, _ := value.(access.User)
	return user
}

// currentUserID converts the loaded user into a ledger id. The middleware
// guarantees the user exists, so a failure here is an internal error.
func (handler *httpHandler) currentUserID(ctx *gin.Context) (bankroll.UserID, bool) {
	userID, err := bankroll.NewUserID(currentUser(ctx).ID)
	if err != nil {
		handler.logger.Error("user missing from request context")
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse(codeInternal, "user unavailable"))
		return bankroll.UserID{}, false
	}
	return userID, true
}

func newUserFromClaims(claims *sessionvalidator.Claims) access.NewUser {
	return access.NewUser{
		ID:          claims.GetUserID(),
		Email:       claims.GetUserEmail(),
		DisplayName: claims.GetUserDisplayName(),
	}
}
