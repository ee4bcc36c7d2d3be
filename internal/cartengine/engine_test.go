package cartengine

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// fakeRepo emulates the cart API with one line collection per session.
type fakeRepo struct {
	mu      sync.Mutex
	carts   map[string][]types.CartItem
	calls   []string
	err     error
	merged  []types.CartItem
	blockCh chan struct{}
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{carts: map[string][]types.CartItem{}}
}

func (f *fakeRepo) key(s Session) string {
	if s.Token != "" {
		return "user:" + s.Token
	}
	return "guest:" + s.GuestID
}

func (f *fakeRepo) record(op string, s Session) ([]types.CartItem, error) {
	if f.blockCh != nil {
		<-f.blockCh
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op+" "+f.key(s))
	if f.err != nil {
		return nil, f.err
	}
	return f.carts[f.key(s)], nil
}

func (f *fakeRepo) store(s Session, items []types.CartItem) []types.CartItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.carts[f.key(s)] = items
	return types.CloneItems(items)
}

func (f *fakeRepo) GetCart(_ context.Context, s Session) ([]types.CartItem, error) {
	items, err := f.record("get", s)
	return types.CloneItems(items), err
}

func (f *fakeRepo) AddItem(_ context.Context, s Session, item types.CartItem, qty int) ([]types.CartItem, error) {
	items, err := f.record("add", s)
	if err != nil {
		return nil, err
	}
	return f.store(s, cart.AddLine(items, item, qty)), nil
}

func (f *fakeRepo) UpdateQuantity(_ context.Context, s Session, key types.LineKey, qty int) ([]types.CartItem, error) {
	items, err := f.record("update", s)
	if err != nil {
		return nil, err
	}
	return f.store(s, cart.SetQuantity(items, key, qty)), nil
}

func (f *fakeRepo) RemoveItem(_ context.Context, s Session, key types.LineKey) ([]types.CartItem, error) {
	items, err := f.record("remove", s)
	if err != nil {
		return nil, err
	}
	return f.store(s, cart.RemoveLine(items, key)), nil
}

func (f *fakeRepo) ClearCart(_ context.Context, s Session) ([]types.CartItem, error) {
	if _, err := f.record("clear", s); err != nil {
		return nil, err
	}
	return f.store(s, []types.CartItem{}), nil
}

func (f *fakeRepo) MergeCart(_ context.Context, s Session, items []types.CartItem) ([]types.CartItem, error) {
	current, err := f.record("merge", s)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.merged = types.CloneItems(items)
	f.mu.Unlock()
	return f.store(s, cart.MergeLines(current, items)), nil
}

func (f *fakeRepo) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeRepo) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newEngine(t *testing.T, repo Repository, local LocalStore, out *syncBuffer) *Engine {
	t.Helper()
	logg := logger.Nop()
	if out != nil {
		logg = logger.New(logger.Options{ServiceName: "cart-test", Output: out})
	}
	ids := []string{"guest-1", "guest-2", "guest-3"}
	var next int
	engine, err := New(context.Background(), Options{
		Repository: repo,
		Local:      local,
		Logger:     logg,
		NewGuestID: func() string {
			id := ids[next%len(ids)]
			next++
			return id
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = engine.Close(ctx)
	})
	return engine
}

func shirt() types.CartItem {
	return types.CartItem{ProductID: "A", Name: "Shirt", BasePrice: decimal.NewFromInt(200000)}
}

func drain(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Close(ctx))
}

func TestGuestAddSameItemSumsIntoOneLine(t *testing.T) {
	repo := newFakeRepo()
	e := newEngine(t, repo, NewMemoryStore(), nil)
	ctx := context.Background()

	_, err := e.AddItem(ctx, shirt(), 1)
	require.NoError(t, err)
	items, err := e.AddItem(ctx, shirt(), 2)
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, enums.CartModeGuest, e.Mode())

	drain(t, e)
	assert.Equal(t, []string{"add guest:guest-1", "add guest:guest-1"}, repo.callLog(), "guest mutations sync in order")
}

func TestGuestQuantityFloorRemovesLine(t *testing.T) {
	for _, qty := range []int{0, -3} {
		e := newEngine(t, newFakeRepo(), NewMemoryStore(), nil)
		ctx := context.Background()
		_, err := e.AddItem(ctx, shirt(), 2)
		require.NoError(t, err)

		items, err := e.UpdateQuantity(ctx, "A", "", qty)
		require.NoError(t, err)
		assert.Empty(t, items, "quantity %d", qty)
	}
}

func TestGuestSyncFailureIsLoggedNotSurfaced(t *testing.T) {
	repo := newFakeRepo()
	repo.setErr(pkgerrors.New(pkgerrors.CodeDependency, "server down"))
	out := &syncBuffer{}
	local := NewMemoryStore()
	e := newEngine(t, repo, local, out)

	items, err := e.AddItem(context.Background(), shirt(), 2)
	require.NoError(t, err)
	require.Len(t, items, 1)

	drain(t, e)
	assert.Contains(t, out.String(), `"event":"cart.sync.failed"`)
	assert.Contains(t, out.String(), `"op":"add_item"`)
	assert.Equal(t, 2, e.Items()[0].Quantity, "local state is never rolled back")

	snapshot, err := local.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, "guest-1", snapshot.GuestID)
	assert.Len(t, snapshot.Items, 1)
}

func TestValidationRejectedBeforeAnyCall(t *testing.T) {
	repo := newFakeRepo()
	e := newEngine(t, repo, NewMemoryStore(), nil)
	ctx := context.Background()

	_, err := e.AddItem(ctx, shirt(), 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = e.AddItem(ctx, types.CartItem{ProductID: " "}, 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	drain(t, e)
	assert.Empty(t, repo.callLog())
}

func TestLoginMergesNonEmptyGuestCart(t *testing.T) {
	repo := newFakeRepo()
	repo.store(Session{Token: "tok"}, []types.CartItem{{ProductID: "B", BasePrice: decimal.NewFromInt(1000), Quantity: 1}})
	local := NewMemoryStore()
	e := newEngine(t, repo, local, nil)
	ctx := context.Background()

	_, err := e.AddItem(ctx, shirt(), 2)
	require.NoError(t, err)

	items, err := e.Login(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, enums.CartModeUser, e.Mode())
	require.Len(t, items, 2)
	assert.Equal(t, "B", items[0].ProductID)
	assert.Equal(t, "A", items[1].ProductID)
	assert.Contains(t, repo.callLog(), "merge user:tok")

	snapshot, err := local.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, snapshot, "guest snapshot is cleared after merge")
}

func TestLoginDiscardsQueuedGuestSyncs(t *testing.T) {
	repo := newFakeRepo()
	repo.blockCh = make(chan struct{})
	e := newEngine(t, repo, NewMemoryStore(), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := e.AddItem(ctx, shirt(), 1)
		require.NoError(t, err)
	}

	type loginResult struct {
		items []types.CartItem
		err   error
	}
	done := make(chan loginResult, 1)
	go func() {
		items, err := e.Login(ctx, "tok")
		done <- loginResult{items: items, err: err}
	}()
	close(repo.blockCh)

	res := <-done
	require.NoError(t, res.err)
	require.Len(t, res.items, 1)
	assert.Equal(t, 3, res.items[0].Quantity)
	drain(t, e)

	calls := repo.callLog()
	mergeAt := -1
	for i, call := range calls {
		if call == "merge user:tok" {
			mergeAt = i
		}
	}
	require.GreaterOrEqual(t, mergeAt, 0, "calls: %v", calls)
	for _, call := range calls[mergeAt+1:] {
		assert.NotContains(t, call, "guest:", "guest sync ran after the merge: %v", calls)
	}
}

func TestLogoutDiscardsQueuedGuestSyncs(t *testing.T) {
	repo := newFakeRepo()
	repo.blockCh = make(chan struct{})
	e := newEngine(t, repo, NewMemoryStore(), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := e.AddItem(ctx, shirt(), 1)
		require.NoError(t, err)
	}

	go close(repo.blockCh)
	e.Logout(ctx)
	before := len(repo.callLog())
	_, err := e.AddItem(ctx, shirt(), 1)
	require.NoError(t, err)
	drain(t, e)

	calls := repo.callLog()
	assert.Equal(t, []string{"add guest:guest-2"}, calls[before:], "old session syncs never run after logout")
}

func TestLoginAdoptsServerCartWhenGuestEmpty(t *testing.T) {
	repo := newFakeRepo()
	repo.store(Session{Token: "tok"}, []types.CartItem{{ProductID: "B", Quantity: 4}})
	e := newEngine(t, repo, NewMemoryStore(), nil)

	items, err := e.Login(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 4, items[0].Quantity)
	assert.Equal(t, []string{"get user:tok"}, repo.callLog())
}

func TestLoginFailureStaysGuest(t *testing.T) {
	repo := newFakeRepo()
	repo.setErr(pkgerrors.New(pkgerrors.CodeDependency, "offline"))
	e := newEngine(t, repo, NewMemoryStore(), nil)
	ctx := context.Background()

	_, err := e.AddItem(ctx, shirt(), 1)
	require.NoError(t, err)

	_, err = e.Login(ctx, "tok")
	require.Error(t, err)
	assert.Equal(t, enums.CartModeGuest, e.Mode())
	assert.Len(t, e.Items(), 1)
	assert.Equal(t, "guest-1", e.GuestID())
}

func TestUserModeErrorLeavesStateUnchanged(t *testing.T) {
	repo := newFakeRepo()
	e := newEngine(t, repo, NewMemoryStore(), nil)
	ctx := context.Background()

	_, err := e.Login(ctx, "tok")
	require.NoError(t, err)
	_, err = e.AddItem(ctx, shirt(), 2)
	require.NoError(t, err)
	before := e.Items()

	boom := errors.New("connection reset")
	repo.setErr(boom)
	_, err = e.UpdateQuantity(ctx, "A", "", 5)
	require.ErrorIs(t, err, boom)
	_, err = e.ClearCart(ctx)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, before, e.Items())
}

func TestUserModeAdoptsServerResponse(t *testing.T) {
	repo := newFakeRepo()
	e := newEngine(t, repo, NewMemoryStore(), nil)
	ctx := context.Background()

	_, err := e.Login(ctx, "tok")
	require.NoError(t, err)
	_, err = e.AddItem(ctx, shirt(), 1)
	require.NoError(t, err)
	items, err := e.AddItem(ctx, shirt(), 2)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)

	items, err = e.RemoveItem(ctx, "A", "")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestLogoutClearsEverything(t *testing.T) {
	repo := newFakeRepo()
	local := NewMemoryStore()
	e := newEngine(t, repo, local, nil)
	ctx := context.Background()

	_, err := e.Login(ctx, "tok")
	require.NoError(t, err)
	_, err = e.AddItem(ctx, shirt(), 1)
	require.NoError(t, err)

	e.Logout(ctx)
	assert.Equal(t, enums.CartModeGuest, e.Mode())
	assert.Empty(t, e.Items())
	assert.Equal(t, "guest-2", e.GuestID(), "a fresh guest session starts after logout")
}

func TestEngineRestoresGuestSnapshot(t *testing.T) {
	local := NewMemoryStore()
	require.NoError(t, local.Save(context.Background(), Snapshot{GuestID: "saved", Items: []types.CartItem{{ProductID: "A", Quantity: 2}}}))

	e := newEngine(t, newFakeRepo(), local, nil)
	assert.Equal(t, "saved", e.GuestID())
	require.Len(t, e.Items(), 1)
}

func TestClosedEngineRejectsMutations(t *testing.T) {
	e := newEngine(t, newFakeRepo(), NewMemoryStore(), nil)
	drain(t, e)

	_, err := e.AddItem(context.Background(), shirt(), 1)
	require.ErrorIs(t, err, ErrClosed)
}

func TestFullQueueDropsWithWarning(t *testing.T) {
	repo := newFakeRepo()
	repo.blockCh = make(chan struct{})
	out := &syncBuffer{}
	engine, err := New(context.Background(), Options{
		Repository: repo,
		Local:      NewMemoryStore(),
		Logger:     logger.New(logger.Options{ServiceName: "cart-test", Output: out}),
		QueueSize:  1,
	})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := engine.AddItem(ctx, shirt(), 1)
		require.NoError(t, err)
	}
	assert.Equal(t, 4, engine.Items()[0].Quantity)
	assert.Contains(t, out.String(), `"event":"cart.sync.dropped"`)

	close(repo.blockCh)
	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, engine.Close(closeCtx))
}
