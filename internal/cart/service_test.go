package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const cartDDL = `
CREATE TABLE IF NOT EXISTS cart_records (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL UNIQUE,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS cart_items (
  id TEXT PRIMARY KEY,
  cart_id TEXT NOT NULL REFERENCES cart_records(id) ON DELETE CASCADE,
  product_id TEXT NOT NULL,
  variant_id TEXT NOT NULL DEFAULT '',
  name TEXT NOT NULL DEFAULT '',
  base_price TEXT NOT NULL,
  variant_adjustment TEXT NOT NULL,
  discount_percent TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  position INTEGER NOT NULL,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (cart_id, product_id, variant_id)
);`

// memoryKV stands in for redis; misses return the redis nil sentinel.
type memoryKV struct {
	mu      sync.Mutex
	values  map[string]string
	ttls    map[string]time.Duration
	failGet error
}

func newMemoryKV() *memoryKV {
	return &memoryKV{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return "", m.failGet
	}
	v, ok := m.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memoryKV) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.values[key] = string(v)
	default:
		m.values[key] = fmt.Sprint(v)
	}
	m.ttls[key] = ttl
	return nil
}

func (m *memoryKV) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.values, key)
		delete(m.ttls, key)
	}
	return nil
}

func (m *memoryKV) GuestCartKey(sessionID string) string {
	return "sf:cart:guest:" + sessionID
}

type fixture struct {
	svc Service
	kv  *memoryKV
	db  *gorm.DB
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.Exec(cartDDL).Error)

	calc, err := pricing.NewCalculator(config.PricingConfig{
		ShippingFee:           decimal.NewFromInt(25000),
		FreeShippingThreshold: decimal.NewFromInt(5000000),
		TaxRate:               decimal.RequireFromString("0.10"),
		Currency:              "VND",
	})
	require.NoError(t, err)

	kv := newMemoryKV()
	svc, err := NewService(NewRepository(conn), NewGuestStore(kv, time.Hour), calc, config.CartConfig{MaxLineQuantity: 10}, logger.Nop())
	require.NoError(t, err)
	return &fixture{svc: svc, kv: kv, db: conn}
}

func item(product, variant, price string) types.CartItem {
	return types.CartItem{ProductID: product, VariantID: variant, Name: "Item " + product, BasePrice: decimal.RequireFromString(price)}
}

func TestUserCartRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := UserOwner(uuid.New())

	empty, err := f.svc.GetCart(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
	assert.Equal(t, "user", empty.Mode)

	_, err = f.svc.AddItem(ctx, owner, item("p1", "", "200000"), 1)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, owner, item("p2", "xl", "100000"), 2)
	require.NoError(t, err)
	view, err := f.svc.AddItem(ctx, owner, item("p1", "", "200000"), 2)
	require.NoError(t, err)
	require.Len(t, view.Items, 2)
	assert.Equal(t, 3, view.Items[0].Quantity)

	reloaded, err := f.svc.GetCart(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, keys(view.Items), keys(reloaded.Items), "display order survives persistence")
	assert.True(t, reloaded.Items[0].BasePrice.Equal(decimal.NewFromInt(200000)))

	view, err = f.svc.UpdateQuantity(ctx, owner, types.NewLineKey("p1", ""), 0)
	require.NoError(t, err)
	assert.Equal(t, []types.LineKey{{ProductID: "p2", VariantID: "xl"}}, keys(view.Items))

	view, err = f.svc.RemoveItem(ctx, owner, types.NewLineKey("missing", ""))
	require.NoError(t, err)
	assert.Len(t, view.Items, 1)

	view, err = f.svc.ClearCart(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	reloaded, err = f.svc.GetCart(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, reloaded.Items)
}

func TestGuestCartStoredWithTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := GuestOwner("sess-1")

	view, err := f.svc.AddItem(ctx, owner, item("p1", "", "50000"), 2)
	require.NoError(t, err)
	assert.Equal(t, "guest", view.Mode)
	assert.Equal(t, time.Hour, f.kv.ttls["sf:cart:guest:sess-1"])

	reloaded, err := f.svc.GetCart(ctx, owner)
	require.NoError(t, err)
	require.Len(t, reloaded.Items, 1)
	assert.Equal(t, 2, reloaded.Items[0].Quantity)

	_, err = f.svc.RemoveItem(ctx, owner, types.NewLineKey("p1", ""))
	require.NoError(t, err)
	_, ok := f.kv.values["sf:cart:guest:sess-1"]
	assert.False(t, ok, "an emptied guest cart is dropped")
}

func TestAddItemValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := GuestOwner("sess-2")

	_, err := f.svc.AddItem(ctx, owner, item("p1", "", "1000"), 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.AddItem(ctx, owner, item(" ", "", "1000"), 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.AddItem(ctx, owner, item("p1", "", "1000"), 11)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.AddItem(ctx, Owner{}, item("p1", "", "1000"), 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestMergeCartFoldsGuestLinesAndDropsGuestCopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := UserOwner(uuid.New())

	_, err := f.svc.AddItem(ctx, user, item("p1", "", "1000"), 1)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, GuestOwner("sess-3"), item("p9", "", "1000"), 1)
	require.NoError(t, err)

	guestItems := []types.CartItem{
		{ProductID: "p2", BasePrice: decimal.NewFromInt(500), Quantity: 2},
		{ProductID: "p1", BasePrice: decimal.NewFromInt(1000), Quantity: 9},
	}
	merged, err := f.svc.MergeCart(ctx, user, "sess-3", guestItems)
	require.NoError(t, err)

	assert.Equal(t, []types.LineKey{{ProductID: "p1"}, {ProductID: "p2"}}, keys(merged.Items))
	assert.Equal(t, 10, merged.Items[0].Quantity, "merged quantity is capped")
	assert.Equal(t, 2, merged.Items[1].Quantity)

	_, ok := f.kv.values["sf:cart:guest:sess-3"]
	assert.False(t, ok)

	_, err = f.svc.MergeCart(ctx, GuestOwner("sess-3"), "", guestItems)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := GuestOwner("sess-4")

	_, err := f.svc.AddItem(ctx, owner, item("p1", "", "1000000"), 3)
	require.NoError(t, err)

	summary, err := f.svc.Summary(ctx, owner)
	require.NoError(t, err)
	assert.True(t, summary.Total.Equal(decimal.NewFromInt(3325000)), "total %s", summary.Total)
}

func TestStoreFailureIsDependencyError(t *testing.T) {
	f := newFixture(t)
	f.kv.failGet = errors.New("connection refused")

	_, err := f.svc.GetCart(context.Background(), GuestOwner("sess-5"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}
