package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/fuel-trade-bot/internal/ai"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/asset"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/constants"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/conversation"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/flags"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/ledger"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/storage"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/wallet"
)

// Handlers contains all dependencies for API endpoint handlers
type Handlers struct {
	Catalog      *asset.Catalog           // Supported assets
	Purchases    *conversation.Controller // Per-chat buy dialogues
	Wallets      wallet.Store             // Wallet records (no secrets exposed)
	Positions    *ledger.Store            // Accumulated holdings
	Cache        storage.TradeCache       // Redis-backed trade feed (optional)
	Toggles      *flags.Store             // Redis-backed ops toggles (optional)
	AI           *ai.Agent                // AI agent for natural language queries
	AIBaseConfig ai.AgentConfig           // Base configuration for AI agents
	DevMode      bool                     // Enable detailed error responses in development
	Logger       *logrus.Logger           // Structured logger
}

// err returns a standardized JSON error response
// In dev mode, includes additional error details for debugging
func (h *Handlers) err(c echo.Context, code int, msg string, details any) error {
	resp := ErrorResponse{Error: msg, Code: code}
	if h.DevMode && details != nil {
		resp.Details = details
	}
	return c.JSON(code, resp)
}

// withTimeout creates a context with timeout, defaulting to 10 seconds if duration <= 0
func (h *Handlers) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

// tradingEnabled checks the ops kill switch. With no toggle store configured
// trading is always open.
func (h *Handlers) tradingEnabled(ctx context.Context) bool {
	if h.Toggles == nil {
		return true
	}
	return h.Toggles.TradingEnabled(ctx)
}

func chatIDParam(c echo.Context) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(c.Param("chat_id")), 10, 64)
}

// Health returns a simple health check endpoint
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{OK: true})
}

// Assets lists the assets the bot is willing to buy.
func (h *Handlers) Assets(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"items": h.Catalog.All(), "base": asset.Base})
}

// Wallet returns the chat's wallet, creating it on first contact.
func (h *Handlers) Wallet(c echo.Context) error {
	chatID, err := chatIDParam(c)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid chat id", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	rec, err := h.Wallets.GetOrCreate(ctx, chatID)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to get wallet", nil)
	}
	return c.JSON(http.StatusOK, WalletResponse{
		ID:        rec.ID,
		ChatID:    rec.ChatID,
		Address:   rec.Address,
		CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// WalletPositions lists the chat's accumulated holdings.
func (h *Handlers) WalletPositions(c echo.Context) error {
	chatID, err := chatIDParam(c)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid chat id", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	rec, err := h.Wallets.GetByChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, wallet.ErrNotFound) {
			return h.err(c, http.StatusNotFound, "wallet not found", nil)
		}
		return h.err(c, http.StatusInternalServerError, "failed to get wallet", nil)
	}

	items, err := h.Positions.ListByWallet(ctx, rec.ID)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to list positions", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// PurchaseStart opens a buy dialogue: resolves the asset, bootstraps the
// wallet, and leaves the session waiting for an amount.
func (h *Handlers) PurchaseStart(c echo.Context) error {
	var req PurchaseStartRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	if req.ChatID == 0 || strings.TrimSpace(req.Asset) == "" {
		return h.err(c, http.StatusBadRequest, "chat_id and asset are required", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	if !h.tradingEnabled(ctx) {
		return h.err(c, http.StatusServiceUnavailable, "trading is paused", nil)
	}

	s, err := h.Purchases.StartPurchase(ctx, req.ChatID, req.Asset)
	if err != nil {
		switch {
		case errors.Is(err, asset.ErrNotFound):
			return h.err(c, http.StatusNotFound, "unsupported asset", map[string]any{"asset": req.Asset})
		case errors.Is(err, conversation.ErrBusy):
			return h.err(c, http.StatusConflict, "purchase already submitting", nil)
		default:
			h.Logger.WithError(err).Error("failed to start purchase")
			return h.err(c, http.StatusInternalServerError, "failed to start purchase", nil)
		}
	}
	return c.JSON(http.StatusOK, s)
}

// PurchaseAmount submits the amount for the chat's pending purchase and runs
// the order to completion. The response always carries the pipeline's tagged
// result; only transport-level problems map to error statuses.
func (h *Handlers) PurchaseAmount(c echo.Context) error {
	var req PurchaseAmountRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	if req.ChatID == 0 {
		return h.err(c, http.StatusBadRequest, "chat_id is required", nil)
	}

	// Submission covers quote, simulation and broadcast; give it room.
	ctx, cancel := h.withTimeout(c.Request().Context(), 90*time.Second)
	defer cancel()

	if !h.tradingEnabled(ctx) {
		return h.err(c, http.StatusServiceUnavailable, "trading is paused", nil)
	}

	res, err := h.Purchases.SubmitAmount(ctx, req.ChatID, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, conversation.ErrNoSession):
			return h.err(c, http.StatusNotFound, "no purchase in progress", nil)
		case errors.Is(err, conversation.ErrBusy):
			return h.err(c, http.StatusConflict, "purchase already submitting", nil)
		default:
			h.Logger.WithError(err).Error("failed to submit purchase amount")
			return h.err(c, http.StatusInternalServerError, "failed to submit amount", nil)
		}
	}
	return c.JSON(http.StatusOK, res)
}

// PurchaseCancel abandons the chat's pending purchase.
func (h *Handlers) PurchaseCancel(c echo.Context) error {
	var req PurchaseCancelRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	if req.ChatID == 0 {
		return h.err(c, http.StatusBadRequest, "chat_id is required", nil)
	}

	if err := h.Purchases.Cancel(req.ChatID); err != nil {
		switch {
		case errors.Is(err, conversation.ErrNoSession):
			return h.err(c, http.StatusNotFound, "no purchase in progress", nil)
		case errors.Is(err, conversation.ErrBusy):
			return h.err(c, http.StatusConflict, "purchase already submitting", nil)
		default:
			return h.err(c, http.StatusInternalServerError, "failed to cancel purchase", nil)
		}
	}
	return c.NoContent(http.StatusNoContent)
}

// PurchaseSession returns the chat's pending purchase dialogue, if any.
func (h *Handlers) PurchaseSession(c echo.Context) error {
	chatID, err := chatIDParam(c)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid chat id", nil)
	}

	s, ok := h.Purchases.Active(chatID)
	if !ok {
		return h.err(c, http.StatusNotFound, "no purchase in progress", nil)
	}
	return c.JSON(http.StatusOK, s)
}

// RecentTrades returns the most recent completed buys with optional limit
// parameter (default and max match the cached list cap).
func (h *Handlers) RecentTrades(c echo.Context) error {
	if h.Cache == nil {
		return h.err(c, http.StatusServiceUnavailable, "trade feed not configured", nil)
	}

	limitStr := c.QueryParam("limit")
	limit := constants.MaxRecentTrades
	if limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "must be an integer"})
		}
		limit = n
	}
	if limit < 1 || limit > constants.MaxRecentTrades {
		return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": fmt.Sprintf("min 1 max %d", constants.MaxRecentTrades)})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Cache.GetRecentTrades(ctx, int64(limit))
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to get trades", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// TogglesSet creates or updates an operational toggle.
func (h *Handlers) TogglesSet(c echo.Context) error {
	var req ToggleSetRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	if err := flags.ValidateKey(req.Key); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid key", map[string]any{"key": "invalid format"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	out, err := h.Toggles.Set(ctx, req.Key, req.Value, req.Note)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to set toggle", nil)
	}
	return c.JSON(http.StatusOK, out)
}

// TogglesUpdate updates an existing toggle by key.
func (h *Handlers) TogglesUpdate(c echo.Context) error {
	key := c.Param("key")
	if err := flags.ValidateKey(key); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid key", map[string]any{"key": "invalid format"})
	}
	var req ToggleUpdateRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	out, err := h.Toggles.Set(ctx, key, req.Value, req.Note)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to update toggle", nil)
	}
	return c.JSON(http.StatusOK, out)
}

// TogglesGet retrieves a toggle by its key. Returns 404 if it was never set.
func (h *Handlers) TogglesGet(c echo.Context) error {
	key := c.Param("key")
	if err := flags.ValidateKey(key); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid key", map[string]any{"key": "invalid format"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	out, err := h.Toggles.Get(ctx, key)
	if err != nil {
		if errors.Is(err, flags.ErrNotFound) {
			return h.err(c, http.StatusNotFound, "toggle not found", nil)
		}
		return h.err(c, http.StatusInternalServerError, "failed to get toggle", nil)
	}
	return c.JSON(http.StatusOK, out)
}

// TogglesList returns all operational toggles.
func (h *Handlers) TogglesList(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Toggles.List(ctx)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to list toggles", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// TogglesDelete removes a toggle by its key, restoring its default.
func (h *Handlers) TogglesDelete(c echo.Context) error {
	key := c.Param("key")
	if err := flags.ValidateKey(key); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid key", map[string]any{"key": "invalid format"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := h.Toggles.Delete(ctx, key); err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to delete toggle", nil)
	}
	return c.NoContent(http.StatusNoContent)
}

// AIAsk processes natural language questions about trade data using AI
// Supports optional model override for one-off requests
// Returns SQL query and answer with execution time
func (h *Handlers) AIAsk(c echo.Context) error {
	if h.AI == nil {
		return h.err(c, http.StatusBadRequest, "ai is not configured", nil)
	}

	var req AIAskRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return h.err(c, http.StatusBadRequest, "question is required", map[string]any{"question": "required"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 45*time.Second)
	defer cancel()

	start := time.Now()

	// Use default AI agent or create temporary one with custom model
	agent := h.AI
	var tmp *ai.Agent
	if m := strings.TrimSpace(req.Model); m != "" {
		cfg := h.AIBaseConfig
		cfg.Model = m
		a, err := ai.NewAgent(ctx, cfg)
		if err != nil {
			return h.err(c, http.StatusInternalServerError, "failed to create ai agent", nil)
		}
		tmp = a
		agent = a
		defer func() {
			_ = tmp.Close() // Clean up temporary agent
		}()
	}

	res, err := agent.Ask(ctx, req.Question)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "ai ask failed", map[string]any{"err": err.Error()})
	}

	return c.JSON(http.StatusOK, AIAskResponse{SQL: res.SQL, Answer: res.Answer, TookMs: time.Since(start).Milliseconds()})
}
