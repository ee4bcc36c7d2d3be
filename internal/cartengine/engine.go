package cartengine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const (
	defaultQueueSize   = 64
	defaultSyncTimeout = 10 * time.Second
)

// ErrClosed is returned for mutations after Close.
var ErrClosed = pkgerrors.New(pkgerrors.CodeStateConflict, "cart engine closed")

// Options wires an Engine.
type Options struct {
	Repository  Repository
	Local       LocalStore
	Logger      *logger.Logger
	QueueSize   int
	SyncTimeout time.Duration
	NewGuestID  func() string
}

// Engine owns the cart of one shopper session. In guest mode the device copy
// is authoritative and the server is updated best effort in the background;
// in user mode every mutation is a synchronous round trip to the server.
type Engine struct {
	repo        Repository
	local       LocalStore
	logg        *logger.Logger
	newGuestID  func() string
	syncTimeout time.Duration

	mu      sync.Mutex
	mode    enums.CartMode
	token   string
	guestID string
	items   []types.CartItem
	closed  bool

	queue chan syncTask
	done  chan struct{}

	// runMu is held while a sync task runs. Login and Logout take it before
	// advancing epoch so no task of the old guest session runs past them.
	runMu sync.Mutex
	epoch atomic.Uint64
}

type syncTask struct {
	op      string
	epoch   uint64
	session Session
	run     func(ctx context.Context, repo Repository, session Session) error
}

// New restores the guest snapshot from the local store, if any, and starts
// the background sync worker.
func New(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Repository == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if opts.Local == nil {
		return nil, fmt.Errorf("local store required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	syncTimeout := opts.SyncTimeout
	if syncTimeout <= 0 {
		syncTimeout = defaultSyncTimeout
	}
	newGuestID := opts.NewGuestID
	if newGuestID == nil {
		newGuestID = uuid.NewString
	}

	e := &Engine{
		repo:        opts.Repository,
		local:       opts.Local,
		logg:        opts.Logger,
		newGuestID:  newGuestID,
		syncTimeout: syncTimeout,
		mode:        enums.CartModeGuest,
		items:       []types.CartItem{},
		queue:       make(chan syncTask, queueSize),
		done:        make(chan struct{}),
	}

	snapshot, err := opts.Local.Load(ctx)
	if err != nil {
		e.logg.Warn(e.logg.Event(ctx, "cart.local.load_failed"), err.Error())
	}
	if snapshot != nil && snapshot.GuestID != "" {
		e.guestID = snapshot.GuestID
		e.items = types.CloneItems(snapshot.Items)
	} else {
		e.guestID = newGuestID()
	}

	go e.worker()
	return e, nil
}

// Mode reports who is authoritative for the cart right now.
func (e *Engine) Mode() enums.CartMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// GuestID is the anonymous session id used while in guest mode.
func (e *Engine) GuestID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.guestID
}

// Items returns a copy of the current lines in display order.
func (e *Engine) Items() []types.CartItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	return types.CloneItems(e.items)
}

// Summary prices the current lines.
func (e *Engine) Summary(calc *pricing.Calculator) pricing.Summary {
	return calc.Summarize(e.Items())
}

func (e *Engine) AddItem(ctx context.Context, item types.CartItem, quantity int) ([]types.CartItem, error) {
	if strings.TrimSpace(item.ProductID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	return e.apply(ctx, "add_item",
		func(items []types.CartItem) []types.CartItem { return cart.AddLine(items, item, quantity) },
		func(ctx context.Context, repo Repository, session Session) ([]types.CartItem, error) {
			return repo.AddItem(ctx, session, item, quantity)
		})
}

// UpdateQuantity sets a line's quantity. Zero or less removes the line.
func (e *Engine) UpdateQuantity(ctx context.Context, productID, variantID string, quantity int) ([]types.CartItem, error) {
	if quantity <= 0 {
		return e.RemoveItem(ctx, productID, variantID)
	}
	key := types.NewLineKey(productID, variantID)
	if key.ProductID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	return e.apply(ctx, "update_quantity",
		func(items []types.CartItem) []types.CartItem { return cart.SetQuantity(items, key, quantity) },
		func(ctx context.Context, repo Repository, session Session) ([]types.CartItem, error) {
			return repo.UpdateQuantity(ctx, session, key, quantity)
		})
}

func (e *Engine) RemoveItem(ctx context.Context, productID, variantID string) ([]types.CartItem, error) {
	key := types.NewLineKey(productID, variantID)
	if key.ProductID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	return e.apply(ctx, "remove_item",
		func(items []types.CartItem) []types.CartItem { return cart.RemoveLine(items, key) },
		func(ctx context.Context, repo Repository, session Session) ([]types.CartItem, error) {
			return repo.RemoveItem(ctx, session, key)
		})
}

func (e *Engine) ClearCart(ctx context.Context) ([]types.CartItem, error) {
	return e.apply(ctx, "clear_cart",
		func([]types.CartItem) []types.CartItem { return []types.CartItem{} },
		func(ctx context.Context, repo Repository, session Session) ([]types.CartItem, error) {
			return repo.ClearCart(ctx, session)
		})
}

// apply runs one mutation under the engine lock. User mode waits for the
// server and adopts its answer; guest mode reduces locally and queues the
// same call for the server.
func (e *Engine) apply(
	ctx context.Context,
	op string,
	reduce func([]types.CartItem) []types.CartItem,
	remote func(context.Context, Repository, Session) ([]types.CartItem, error),
) ([]types.CartItem, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}

	if e.mode == enums.CartModeUser {
		items, err := remote(ctx, e.repo, Session{Token: e.token})
		if err != nil {
			return nil, err
		}
		e.items = types.CloneItems(items)
		return types.CloneItems(e.items), nil
	}

	e.items = reduce(e.items)
	e.persistLocked(ctx)
	e.enqueueLocked(ctx, syncTask{
		op:      op,
		epoch:   e.epoch.Load(),
		session: Session{GuestID: e.guestID},
		run: func(ctx context.Context, repo Repository, session Session) error {
			_, err := remote(ctx, repo, session)
			return err
		},
	})
	return types.CloneItems(e.items), nil
}

// Login switches to user mode. A non-empty guest cart is merged into the
// user's server cart; an empty one adopts the server cart as is. On failure
// the engine stays in guest mode with its lines intact. Guest syncs still
// queued when the merge succeeds are discarded: the merge carried their
// effect and has already removed the guest copy on the server.
func (e *Engine) Login(ctx context.Context, token string) ([]types.CartItem, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "token is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}

	e.runMu.Lock()
	defer e.runMu.Unlock()

	var (
		items []types.CartItem
		err   error
	)
	session := Session{Token: token}
	if e.mode == enums.CartModeGuest && len(e.items) > 0 {
		session.GuestID = e.guestID
		items, err = e.repo.MergeCart(ctx, session, types.CloneItems(e.items))
	} else {
		items, err = e.repo.GetCart(ctx, session)
	}
	if err != nil {
		return nil, err
	}

	merged := e.mode == enums.CartModeGuest && len(e.items) > 0
	e.epoch.Add(1)
	e.mode = enums.CartModeUser
	e.token = token
	e.items = types.CloneItems(items)
	if err := e.local.Clear(ctx); err != nil {
		e.logg.Warn(e.logg.Event(ctx, "cart.local.clear_failed"), err.Error())
	}

	logCtx := e.logg.WithFields(ctx, map[string]any{
		"event":         "cart.login",
		"merged":        merged,
		"guest_session": e.guestID,
		"lines":         len(e.items),
	})
	e.logg.Info(logCtx, "cart switched to user mode")
	return types.CloneItems(e.items), nil
}

// Logout drops all cart state and starts a fresh guest session.
func (e *Engine) Logout(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runMu.Lock()
	e.epoch.Add(1)
	e.runMu.Unlock()

	e.mode = enums.CartModeGuest
	e.token = ""
	e.items = []types.CartItem{}
	e.guestID = e.newGuestID()
	if err := e.local.Clear(ctx); err != nil {
		e.logg.Warn(e.logg.Event(ctx, "cart.local.clear_failed"), err.Error())
	}
	e.logg.Info(e.logg.WithGuestSession(e.logg.Event(ctx, "cart.logout"), e.guestID), "cart reset to a new guest session")
}

// Close stops accepting work and waits for queued syncs to finish or for ctx
// to end, whichever comes first.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) persistLocked(ctx context.Context) {
	if err := e.local.Save(ctx, Snapshot{GuestID: e.guestID, Items: e.items}); err != nil {
		e.logg.Warn(e.logg.WithGuestSession(e.logg.Event(ctx, "cart.local.persist_failed"), e.guestID), err.Error())
	}
}

func (e *Engine) enqueueLocked(ctx context.Context, task syncTask) {
	select {
	case e.queue <- task:
	default:
		logCtx := e.logg.WithFields(ctx, map[string]any{
			"event":         "cart.sync.dropped",
			"op":            task.op,
			"guest_session": task.session.GuestID,
		})
		e.logg.Warn(logCtx, "cart sync queue full, dropping task")
	}
}

// worker drains the sync queue in FIFO order. Failures are logged and never
// reach the caller or the local state.
func (e *Engine) worker() {
	defer close(e.done)
	for task := range e.queue {
		ran, err := e.runTask(task)
		if !ran {
			logCtx := e.logg.WithFields(context.Background(), map[string]any{
				"event":         "cart.sync.stale",
				"op":            task.op,
				"guest_session": task.session.GuestID,
			})
			e.logg.Debug(logCtx, "guest session ended, skipping queued sync")
			continue
		}
		if err == nil {
			continue
		}
		logCtx := e.logg.WithFields(context.Background(), map[string]any{
			"event":         "cart.sync.failed",
			"op":            task.op,
			"guest_session": task.session.GuestID,
		})
		e.logg.Warn(logCtx, err.Error())
	}
}

// runTask reports false when the task belongs to a guest session that has
// since ended.
func (e *Engine) runTask(task syncTask) (bool, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if task.epoch != e.epoch.Load() {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.syncTimeout)
	defer cancel()
	return true, task.run(ctx, e.repo, task.session)
}
