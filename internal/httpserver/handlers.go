package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pideas/creditd/pkg/credit"
	"go.uber.org/zap"
)

type deductRequest struct {
	Action         string `json:"action"`
	IdempotencyKey string `json:"idempotency_key"`
}

type purchaseRequest struct {
	PackageID       string `json:"package_id"`
	PaymentMethodID string `json:"payment_method_id"`
	IdempotencyKey  string `json:"idempotency_key"`
}

type adminCreditRequest struct {
	AccountID      string         `json:"account_id"`
	Amount         int64          `json:"amount"`
	Metadata       map[string]any `json:"metadata"`
	IdempotencyKey string         `json:"idempotency_key"`
}

type adminRoleRequest struct {
	AccountID string `json:"account_id"`
	Role      string `json:"role"`
}

type adminStatusRequest struct {
	AccountID string `json:"account_id"`
	Status    string `json:"status"`
}

type accountPayload struct {
	AccountID        string `json:"account_id"`
	Email            string `json:"email"`
	Role             string `json:"role"`
	Balance          int64  `json:"balance"`
	DailyAllowance   int64  `json:"daily_allowance"`
	LastDailyRefresh int64  `json:"last_daily_refresh_unix_utc"`
	Status           string `json:"status"`
	CreatedUnixUTC   int64  `json:"created_unix_utc"`
	LastLoginUnixUTC int64  `json:"last_login_unix_utc"`
}

type entryPayload struct {
	EntryID        string          `json:"entry_id"`
	Kind           string          `json:"kind"`
	Amount         int64           `json:"amount"`
	ActionType     string          `json:"action_type,omitempty"`
	PackageID      string          `json:"package_id,omitempty"`
	TransactionID  string          `json:"transaction_id,omitempty"`
	AdminID        string          `json:"admin_id,omitempty"`
	Metadata       json.RawMessage `json:"metadata"`
	CreatedUnixUTC int64           `json:"created_unix_utc"`
}

type packagePayload struct {
	PackageID   string   `json:"package_id"`
	Name        string   `json:"name"`
	Credits     int64    `json:"credits"`
	PriceCents  int64    `json:"price_cents"`
	Description string   `json:"description"`
	Features    []string `json:"features"`
}

func (server *Server) handleBootstrap(ctx *gin.Context) {
	claims := getClaims(ctx)
	accountID, err := credit.NewAccountID(claims.AccountID())
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	role, err := credit.ParseRole(claims.Role)
	if err != nil {
		role = credit.RoleFree
	}
	account, err := server.engine.Initialize(ctx.Request.Context(), accountID, claims.Email, role)
	if err != nil {
		server.logger.Error("bootstrap failed", zap.Error(err))
		respondDomainError(ctx, err)
		return
	}
	server.respondWithWallet(ctx, account.AccountID)
}

func (server *Server) handleWallet(ctx *gin.Context) {
	claims := getClaims(ctx)
	server.respondWithWallet(ctx, claims.AccountID())
}

func (server *Server) handleBalance(ctx *gin.Context) {
	claims := getClaims(ctx)
	accountID, err := credit.NewAccountID(claims.AccountID())
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	account, err := server.engine.GetBalance(ctx.Request.Context(), accountID)
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"account": mapAccountPayload(account)})
}

func (server *Server) handleBalanceCheck(ctx *gin.Context) {
	claims := getClaims(ctx)
	accountID, err := credit.NewAccountID(claims.AccountID())
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	action, err := credit.ParseActionType(ctx.Query("action"))
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	sufficient, err := server.engine.HasSufficientBalance(ctx.Request.Context(), accountID, action)
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"action":     action.String(),
		"sufficient": sufficient,
	})
}

func (server *Server) handleDeduct(ctx *gin.Context) {
	claims := getClaims(ctx)
	var request deductRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body"))
		return
	}
	accountID, err := credit.NewAccountID(claims.AccountID())
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	action, err := credit.ParseActionType(request.Action)
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	idempotencyKey, err := credit.NewIdempotencyKey(defaultIfEmpty(request.IdempotencyKey, "deduct:"+uuid.NewString()))
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	newBalance, err := server.engine.Deduct(ctx.Request.Context(), accountID, action, idempotencyKey)
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"balance": newBalance.Int64(),
	})
}

func (server *Server) handleHistory(ctx *gin.Context) {
	claims := getClaims(ctx)
	accountID, err := credit.NewAccountID(claims.AccountID())
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	limit := server.cfg.HistoryLimit
	if raw := ctx.Query("limit"); raw != "" {
		parsed, parseErr := strconv.Atoi(raw)
		if parseErr != nil || parsed <= 0 || parsed > maxHistoryLimit {
			ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "invalid limit"))
			return
		}
		limit = parsed
	}
	entries, err := server.engine.HistoryFor(ctx.Request.Context(), accountID, limit)
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"entries": mapEntryPayloads(entries)})
}

func (server *Server) handlePackages(ctx *gin.Context) {
	claims := getClaims(ctx)
	accountID, err := credit.NewAccountID(claims.AccountID())
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	account, err := server.engine.GetBalance(ctx.Request.Context(), accountID)
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	offered := credit.PackagesFor(account.Role)
	payload := make([]packagePayload, 0, len(offered))
	for _, bundle := range offered {
		payload = append(payload, packagePayload{
			PackageID:   bundle.PackageID,
			Name:        bundle.Name,
			Credits:     bundle.Credits.Int64(),
			PriceCents:  bundle.PriceCents,
			Description: bundle.Description,
			Features:    bundle.Features,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{
		"packages": payload,
		"role":     account.Role.String(),
	})
}

func (server *Server) handlePurchase(ctx *gin.Context) {
	claims := getClaims(ctx)
	var request purchaseRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body"))
		return
	}
	accountID, err := credit.NewAccountID(claims.AccountID())
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	idempotencyKey, err := credit.NewIdempotencyKey(defaultIfEmpty(request.IdempotencyKey, "purchase:"+uuid.NewString()))
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	receipt, err := server.engine.PurchasePackage(ctx.Request.Context(), accountID, request.PackageID, request.PaymentMethodID, idempotencyKey)
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"transaction_id": receipt.TransactionID,
		"package_name":   receipt.PackageName,
		"credits_added":  receipt.CreditsAdded.Int64(),
		"price_cents":    receipt.PriceCents,
		"balance":        receipt.NewBalance.Int64(),
	})
}

func (server *Server) handleAdminCredit(ctx *gin.Context) {
	claims := getClaims(ctx)
	var request adminCreditRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body"))
		return
	}
	accountID, err := credit.NewAccountID(request.AccountID)
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	amount, err := credit.NewPositiveCredits(request.Amount)
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	metadata, err := credit.NewMetadataJSON(marshalMetadata(request.Metadata))
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	idempotencyKey, err := credit.NewIdempotencyKey(defaultIfEmpty(request.IdempotencyKey, "admin_grant:"+uuid.NewString()))
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	provenance := credit.Provenance{
		AdminID:  claims.AccountID(),
		Metadata: metadata,
	}
	newBalance, err := server.engine.Credit(ctx.Request.Context(), accountID, amount, provenance, idempotencyKey)
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"balance": newBalance.Int64()})
}

func (server *Server) handleAdminRole(ctx *gin.Context) {
	claims := getClaims(ctx)
	var request adminRoleRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body"))
		return
	}
	accountID, err := credit.NewAccountID(request.AccountID)
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	newRole, err := credit.ParseRole(request.Role)
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	adminID, err := credit.NewAdminID(claims.AccountID())
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	idempotencyKey, err := credit.NewIdempotencyKey("role_change:" + uuid.NewString())
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	if err := server.engine.ChangeRole(ctx.Request.Context(), accountID, newRole, adminID, idempotencyKey); err != nil {
		respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (server *Server) handleAdminStatus(ctx *gin.Context) {
	claims := getClaims(ctx)
	var request adminStatusRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body"))
		return
	}
	accountID, err := credit.NewAccountID(request.AccountID)
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	status, err := credit.ParseAccountStatus(request.Status)
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	adminID, err := credit.NewAdminID(claims.AccountID())
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	if err := server.engine.SetStatus(ctx.Request.Context(), accountID, status, adminID); err != nil {
		respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (server *Server) handleAdminUsers(ctx *gin.Context) {
	accounts, err := server.engine.ListAccounts(ctx.Request.Context())
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	payload := make([]accountPayload, 0, len(accounts))
	for _, account := range accounts {
		payload = append(payload, mapAccountPayload(account))
	}
	ctx.JSON(http.StatusOK, gin.H{"accounts": payload})
}

func (server *Server) handleAdminAnalytics(ctx *gin.Context) {
	days := 30
	if raw := ctx.Query("days"); raw != "" {
		parsed, parseErr := strconv.Atoi(raw)
		if parseErr != nil || parsed <= 0 {
			ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "invalid days"))
			return
		}
		days = parsed
	}
	totals, err := server.engine.UsageSummary(ctx.Request.Context(), days)
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"days":              days,
		"credits_used":      totals.CreditsUsed,
		"revenue_cents":     totals.RevenueCents,
		"action_breakdown":  totals.ActionBreakdown,
		"role_distribution": totals.RoleDistribution,
	})
}

func (server *Server) respondWithWallet(ctx *gin.Context, rawAccountID string) {
	accountID, err := credit.NewAccountID(rawAccountID)
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	account, err := server.engine.GetBalance(ctx.Request.Context(), accountID)
	if err != nil {
		respondDomainError(ctx, err)
		return
	}
	entries, err := server.engine.HistoryFor(ctx.Request.Context(), accountID, server.cfg.HistoryLimit)
	if err != nil {
		server.logger.Warn("history fetch failed", zap.Error(err))
		entries = nil
	}
	ctx.JSON(http.StatusOK, gin.H{
		"account": mapAccountPayload(account),
		"entries": mapEntryPayloads(entries),
	})
}

func mapAccountPayload(account credit.Account) accountPayload {
	return accountPayload{
		AccountID:        account.AccountID,
		Email:            account.Email,
		Role:             account.Role.String(),
		Balance:          account.Balance.Int64(),
		DailyAllowance:   account.DailyAllowance.Int64(),
		LastDailyRefresh: account.LastDailyRefreshUnixUTC,
		Status:           account.Status.String(),
		CreatedUnixUTC:   account.CreatedUnixUTC,
		LastLoginUnixUTC: account.LastLoginUnixUTC,
	}
}

func mapEntryPayloads(entries []credit.Entry) []entryPayload {
	payload := make([]entryPayload, 0, len(entries))
	for _, entry := range entries {
		metadata := entry.MetadataJSON
		if metadata == "" {
			metadata = "{}"
		}
		payload = append(payload, entryPayload{
			EntryID:        entry.EntryID,
			Kind:           entry.Kind.String(),
			Amount:         entry.Amount,
			ActionType:     entry.ActionType,
			PackageID:      entry.PackageID,
			TransactionID:  entry.TransactionID,
			AdminID:        entry.AdminID,
			Metadata:       json.RawMessage(metadata),
			CreatedUnixUTC: entry.CreatedUnixUTC,
		})
	}
	return payload
}

func marshalMetadata(metadata map[string]any) string {
	if metadata == nil {
		return "{}"
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
