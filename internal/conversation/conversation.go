package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/fuel-trade-bot/internal/asset"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/constants"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/pipeline"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/wallet"
)

var (
	// ErrNoSession is returned when a chat has no purchase in progress.
	ErrNoSession = errors.New("no purchase in progress")
	// ErrBusy is returned when a chat's order is already being submitted; a
	// submission in flight can neither be cancelled nor replaced.
	ErrBusy = errors.New("purchase is being submitted")
)

// State is a purchase dialogue's position in its lifecycle.
type State string

const (
	StateAwaitingAmount State = "awaiting_amount"
	StateSubmitting     State = "submitting"
)

// Session is one chat's in-progress purchase dialogue. A chat has at most one;
// starting a new purchase replaces any pending one.
type Session struct {
	ID        string           `json:"id"`
	ChatID    int64            `json:"chat_id"`
	Asset     asset.Descriptor `json:"asset"`
	State     State            `json:"state"`
	CreatedAt time.Time        `json:"created_at"`
}

// Executor runs a purchase order end to end.
type Executor interface {
	Execute(ctx context.Context, order *pipeline.PurchaseOrder) (*pipeline.Result, error)
}

// Controller owns the per-chat purchase dialogues: it resolves the asset,
// bootstraps the chat's wallet, collects the amount, and hands the completed
// order to the pipeline exactly once.
type Controller struct {
	mu       sync.Mutex
	sessions map[int64]*Session

	catalog  *asset.Catalog
	wallets  wallet.Store
	executor Executor
	orderTTL time.Duration
	logger   *logrus.Logger
}

// Config carries the controller's collaborators. OrderTTL defaults to the
// standard order deadline when zero.
type Config struct {
	Catalog  *asset.Catalog
	Wallets  wallet.Store
	Executor Executor
	OrderTTL time.Duration
	Logger   *logrus.Logger
}

func NewController(cfg Config) (*Controller, error) {
	if cfg.Catalog == nil || cfg.Wallets == nil || cfg.Executor == nil {
		return nil, fmt.Errorf("conversation: catalog, wallets and executor are required")
	}
	ttl := cfg.OrderTTL
	if ttl <= 0 {
		ttl = constants.DefaultOrderTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
	}
	return &Controller{
		sessions: make(map[int64]*Session),
		catalog:  cfg.Catalog,
		wallets:  cfg.Wallets,
		executor: cfg.Executor,
		orderTTL: ttl,
		logger:   logger,
	}, nil
}

// StartPurchase opens a purchase dialogue for the chat. It ensures the chat
// has a wallet, resolves the asset, and replaces any pending session for the
// same chat. A session whose order is already being submitted cannot be
// replaced.
func (c *Controller) StartPurchase(ctx context.Context, chatID int64, symbolOrID string) (*Session, error) {
	a, err := c.catalog.Resolve(symbolOrID)
	if err != nil {
		return nil, fmt.Errorf("resolve asset %q: %w", symbolOrID, err)
	}

	// First contact creates the wallet, so by the time an amount arrives the
	// signing wallet is guaranteed to exist.
	if _, err := c.wallets.GetOrCreate(ctx, chatID); err != nil {
		return nil, fmt.Errorf("bootstrap wallet for chat %d: %w", chatID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.sessions[chatID]; ok {
		if prev.State == StateSubmitting {
			return nil, ErrBusy
		}
		c.logger.WithFields(logrus.Fields{
			"chat_id": chatID,
			"old":     prev.Asset.Symbol,
			"new":     a.Symbol,
		}).Debug("replacing pending purchase session")
	}

	s := &Session{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Asset:     a,
		State:     StateAwaitingAmount,
		CreatedAt: time.Now(),
	}
	c.sessions[chatID] = s

	copied := *s
	return &copied, nil
}

// SubmitAmount feeds the user's amount into the chat's pending session and
// runs the order. The session is consumed whatever the outcome; retrying
// means starting a new purchase.
func (c *Controller) SubmitAmount(ctx context.Context, chatID int64, rawAmount string) (*pipeline.Result, error) {
	c.mu.Lock()
	s, ok := c.sessions[chatID]
	if !ok {
		c.mu.Unlock()
		return nil, ErrNoSession
	}
	if s.State == StateSubmitting {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	s.State = StateSubmitting
	order := &pipeline.PurchaseOrder{
		ChatID:    chatID,
		Asset:     s.Asset,
		RawAmount: rawAmount,
		Deadline:  time.Now().Add(c.orderTTL),
	}
	c.mu.Unlock()

	res, err := c.executor.Execute(ctx, order)

	c.mu.Lock()
	// Only drop the session we started; a concurrent StartPurchase cannot
	// have replaced it while Submitting, but be precise anyway.
	if cur, ok := c.sessions[chatID]; ok && cur.ID == s.ID {
		delete(c.sessions, chatID)
	}
	c.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("execute order: %w", err)
	}
	return res, nil
}

// Cancel abandons the chat's pending purchase. Nothing has been spent at this
// point, so cancelling is always safe; an order mid-submission cannot be
// cancelled.
func (c *Controller) Cancel(chatID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[chatID]
	if !ok {
		return ErrNoSession
	}
	if s.State == StateSubmitting {
		return ErrBusy
	}
	delete(c.sessions, chatID)
	return nil
}

// Active returns a snapshot of the chat's pending session, if any.
func (c *Controller) Active(chatID int64) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[chatID]
	if !ok {
		return nil, false
	}
	copied := *s
	return &copied, true
}
