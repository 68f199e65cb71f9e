package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/floorkit/scanpos/internal/domain/audit"
	"github.com/floorkit/scanpos/internal/domain/auth"
	"github.com/floorkit/scanpos/internal/domain/cart"
	"github.com/floorkit/scanpos/internal/domain/coupon"
	"github.com/floorkit/scanpos/internal/domain/product"
	"github.com/floorkit/scanpos/internal/lookup"
)

// --- Mock implementations ---

type mockProductRepo struct {
	bySKU map[string]*product.Product
	byID  map[int64]*product.Product
}

func newMockProductRepo(products ...product.Product) *mockProductRepo {
	m := &mockProductRepo{
		bySKU: make(map[string]*product.Product, len(products)),
		byID:  make(map[int64]*product.Product, len(products)),
	}
	for i := range products {
		p := &products[i]
		m.bySKU[p.SKU] = p
		if p.LegacySKU != "" {
			m.bySKU[p.LegacySKU] = p
		}
		m.byID[p.ID] = p
	}
	return m
}

func (m *mockProductRepo) FindBySKU(_ context.Context, term string) (*product.Product, error) {
	p, ok := m.bySKU[term]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id int64) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockProductRepo) Update(_ context.Context, _ int64, _ product.FieldUpdate) error {
	return nil
}

func (m *mockProductRepo) SetVerified(_ context.Context, _ int64, _ string) error {
	return nil
}

func (m *mockProductRepo) ListSKUs(_ context.Context) ([]string, error) {
	skus := make([]string, 0, len(m.bySKU))
	for sku := range m.bySKU {
		skus = append(skus, sku)
	}
	return skus, nil
}

// mockRedis is an in-memory lookup.Cmdable with no expiry.
type mockRedis struct {
	data map[string]string
}

func newMockRedis() *mockRedis {
	return &mockRedis{data: make(map[string]string)}
}

func (m *mockRedis) Get(_ context.Context, key string) *redis.StringCmd {
	val, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(val, nil)
}

func (m *mockRedis) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case string:
		m.data[key] = v
	case []byte:
		m.data[key] = string(v)
	}
	return redis.NewStatusResult("OK", nil)
}

func (m *mockRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := m.data[k]; ok {
			delete(m.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

// mockAuditStore captures records written by the audit logger. The flusher
// writes from its own goroutine, so access is locked.
type mockAuditStore struct {
	mu   sync.Mutex
	recs []audit.Record
}

func (m *mockAuditStore) Insert(_ context.Context, rec *audit.Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, *rec)
	return int64(len(m.recs)), nil
}

func (m *mockAuditStore) InsertBatch(_ context.Context, recs []audit.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, recs...)
	return nil
}

func (m *mockAuditStore) RecentProductScans(_ context.Context, _ int64, _ []int64, _ time.Time) ([]audit.ScanRef, error) {
	return nil, nil
}

func (m *mockAuditStore) UnlinkedScansInWindow(_ context.Context, _ int64, _ []int64, _, _ time.Time) ([]audit.ScanRef, error) {
	return nil, nil
}

func (m *mockAuditStore) List(_ context.Context, _ audit.Filter) ([]audit.Record, error) {
	return nil, nil
}

func (m *mockAuditStore) Count(_ context.Context, _ audit.Filter) (int, error) {
	return 0, nil
}

func (m *mockAuditStore) PurgeOlderThan(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (m *mockAuditStore) records() []audit.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audit.Record(nil), m.recs...)
}

type mockCouponValidator struct {
	coupon *coupon.Coupon
	err    error
}

func (m *mockCouponValidator) Validate(_ context.Context, _ string) (*coupon.Coupon, error) {
	return m.coupon, m.err
}

// --- Helpers ---

type testEnv struct {
	srv    *httptest.Server
	audits *mockAuditStore
	stop   func()
}

// newTestEnv wires a Handler against in-memory fakes and serves its routes
// with a fixed operator injected in place of API key auth.
func newTestEnv(t *testing.T, cfg Config, repo *mockProductRepo, coupons coupon.Validator) *testEnv {
	t.Helper()

	store := &mockAuditStore{}
	logger := audit.NewLogger(store, zap.NewNop(), audit.LoggerConfig{FlushInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	go logger.Run(ctx)

	cache := lookup.New(repo, newMockRedis(), time.Minute, zap.NewNop())
	sessions := cart.NewSessionStore(time.Hour)

	h := New(cfg, cache, repo, sessions, nil, nil, coupons, nil, nil, nil, logger, store, nil, zap.NewNop())

	stubAuth := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op := &auth.Operator{OperatorID: 7, DisplayName: "Station 7"}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), operatorKey{}, op)))
		})
	}
	srv := httptest.NewServer(h.Routes(stubAuth))

	env := &testEnv{
		srv:    srv,
		audits: store,
		stop: func() {
			srv.Close()
			cancel()
			logger.Wait()
		},
	}
	t.Cleanup(env.stop)
	return env
}

func (e *testEnv) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.srv.URL+path, "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	require.NoError(t, err)
	return resp
}

func decodeResp[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// auditedRecords waits for the async flusher to catch up, then returns
// whatever the store has seen.
func (e *testEnv) auditedRecords(t *testing.T, want int) []audit.Record {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(e.audits.records()) >= want
	}, time.Second, 5*time.Millisecond)
	return e.audits.records()
}

func floorProduct(id int64, sku, legacy, name string, price int64) product.Product {
	return product.Product{
		ID:           id,
		SKU:          sku,
		LegacySKU:    legacy,
		Name:         name,
		RegularPrice: decimal.NewFromInt(price),
		StockStatus:  product.StockInStock,
		Status:       "publish",
		Verified:     product.VerifiedOnFloor,
	}
}

// --- Tests ---

func TestScan(t *testing.T) {
	sale := decimal.NewFromInt(95)
	table := floorProduct(1, "FLR-0001", "10001", "Oak Side Table", 89)
	lamp := floorProduct(2, "FLR-0002", "", "Brass Floor Lamp", 120)
	lamp.SalePrice = &sale

	env := newTestEnv(t, Config{}, newMockProductRepo(table, lamp), &mockCouponValidator{})

	t.Run("primary sku", func(t *testing.T) {
		resp := env.post(t, "/scan", scanRequest{Term: "FLR-0001", Context: "pos"})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeResp[scanResponse](t, resp)
		require.True(t, body.Found)
		require.NotNil(t, body.Product)
		assert.Equal(t, "FLR-0001", body.Product.SKU)
		assert.Equal(t, "Oak Side Table", body.Product.Name)
		assert.Equal(t, "89.00", body.Product.EffectivePrice)
	})

	t.Run("legacy sku fallback", func(t *testing.T) {
		resp := env.post(t, "/scan", scanRequest{Term: "10001"})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeResp[scanResponse](t, resp)
		require.NotNil(t, body.Product)
		assert.Equal(t, "FLR-0001", body.Product.SKU)
	})

	t.Run("sale price wins", func(t *testing.T) {
		resp := env.post(t, "/scan", scanRequest{Term: "FLR-0002"})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeResp[scanResponse](t, resp)
		require.NotNil(t, body.Product)
		assert.Equal(t, "120.00", body.Product.RegularPrice)
		assert.Equal(t, "95.00", body.Product.SalePrice)
		assert.Equal(t, "95.00", body.Product.EffectivePrice)
	})

	t.Run("unknown term", func(t *testing.T) {
		resp := env.post(t, "/scan", scanRequest{Term: "NO-SUCH-SKU"})
		require.Equal(t, http.StatusNotFound, resp.StatusCode)

		body := decodeResp[scanResponse](t, resp)
		assert.False(t, body.Found)
		assert.Nil(t, body.Product)
	})

	t.Run("empty term", func(t *testing.T) {
		resp := env.post(t, "/scan", scanRequest{Term: "   "})
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestScan_AuditTrail(t *testing.T) {
	table := floorProduct(1, "FLR-0001", "", "Oak Side Table", 89)
	env := newTestEnv(t, Config{}, newMockProductRepo(table), &mockCouponValidator{})

	resp := env.post(t, "/scan", scanRequest{Term: "FLR-0001", Context: "verification"})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.post(t, "/scan", scanRequest{Term: "NO-SUCH-SKU", Context: "not-a-real-context"})
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	recs := env.auditedRecords(t, 2)
	require.Len(t, recs, 2)

	hit, miss := recs[0], recs[1]
	if !hit.Success {
		hit, miss = miss, hit
	}

	assert.Equal(t, int64(7), hit.UserID)
	assert.Equal(t, "Station 7", hit.UserDisplayName)
	assert.Equal(t, int64(1), hit.ProductID)
	assert.Equal(t, "FLR-0001", hit.ProductSKU)
	assert.Equal(t, audit.ContextVerification, hit.ScanContext)
	assert.True(t, hit.Success)

	assert.False(t, miss.Success)
	assert.Zero(t, miss.ProductID)
	assert.Equal(t, "NO-SUCH-SKU", miss.SearchTerm)
	// Unrecognized contexts fall back to the main scanner flow.
	assert.Equal(t, audit.ContextMainScanner, miss.ScanContext)
}

func TestGetProduct(t *testing.T) {
	table := floorProduct(1, "FLR-0001", "10001", "Oak Side Table", 89)
	env := newTestEnv(t, Config{}, newMockProductRepo(table), &mockCouponValidator{})

	t.Run("found", func(t *testing.T) {
		resp := env.get(t, "/products/1")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeResp[productResponse](t, resp)
		assert.Equal(t, int64(1), body.ID)
		assert.Equal(t, "10001", body.LegacySKU)
		assert.Equal(t, "instock", body.StockStatus)
		assert.Equal(t, product.VerifiedOnFloor, body.Verified)
	})

	t.Run("not found", func(t *testing.T) {
		resp := env.get(t, "/products/99")
		defer resp.Body.Close()
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("bad id", func(t *testing.T) {
		resp := env.get(t, "/products/abc")
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestValidateCoupon(t *testing.T) {
	table := floorProduct(1, "FLR-0001", "", "Oak Side Table", 89)
	repo := newMockProductRepo(table)

	t.Run("valid", func(t *testing.T) {
		validator := &mockCouponValidator{coupon: &coupon.Coupon{
			Code:         "welcome10",
			DiscountType: coupon.DiscountPercent,
			Amount:       decimal.NewFromInt(10),
			Description:  "New customer discount",
		}}
		env := newTestEnv(t, Config{}, repo, validator)

		resp := env.post(t, "/coupons/validate", validateCouponRequest{Code: "welcome10"})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeResp[couponResponse](t, resp)
		assert.Equal(t, "welcome10", body.Code)
		assert.Equal(t, string(coupon.DiscountPercent), body.DiscountType)
		assert.Equal(t, "10.00", body.Amount)
	})

	t.Run("rejections carry the reason", func(t *testing.T) {
		for _, wantErr := range []error{coupon.ErrNotFound, coupon.ErrExpired, coupon.ErrUsageLimitReached} {
			env := newTestEnv(t, Config{}, repo, &mockCouponValidator{err: wantErr})

			resp := env.post(t, "/coupons/validate", validateCouponRequest{Code: "whatever"})
			require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

			body := decodeResp[errorResponse](t, resp)
			assert.Equal(t, wantErr.Error(), body.Message)
		}
	})

	t.Run("unexpected error is opaque", func(t *testing.T) {
		env := newTestEnv(t, Config{}, repo, &mockCouponValidator{err: errors.New("db down")})

		resp := env.post(t, "/coupons/validate", validateCouponRequest{Code: "welcome10"})
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

		body := decodeResp[errorResponse](t, resp)
		assert.Equal(t, "internal error", body.Message)
	})
}

func TestProductToResponse_ImageBaseURL(t *testing.T) {
	table := floorProduct(1, "FLR-0001", "", "Oak Side Table", 89)
	table.ImageURL = "/uploads/oak-table.jpg"

	h := &Handler{cfg: Config{ImageBaseURL: "https://img.example.com/"}}
	resp := h.productToResponse(&table)
	assert.Equal(t, "https://img.example.com/uploads/oak-table.jpg", resp.ImageURL)

	table.ImageURL = "https://cdn.example.com/oak-table.jpg"
	resp = h.productToResponse(&table)
	assert.Equal(t, "https://cdn.example.com/oak-table.jpg", resp.ImageURL)
}
