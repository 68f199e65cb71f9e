// Package lookup memoizes catalog reads so rapid scanning does not hammer
// the database. Identifier resolution and product projections are cached in
// Redis with a short TTL; a bloom filter warmed from the catalog short-
// circuits scans of identifiers that cannot possibly exist.
package lookup

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/floorkit/scanpos/internal/domain/product"
)

const (
	keyPrefix   = "scanpos"
	termPrefix  = keyPrefix + ":term:"
	prodPrefix  = keyPrefix + ":product:"
	missMarker  = "!"
	filterItems = 1_000_000
	filterFPR   = 0.001
)

// DefaultTTL is the cache lifetime for both term resolutions and product
// projections, including negative entries.
const DefaultTTL = 5 * time.Minute

// Cmdable is the slice of the Redis API the cache uses. *redis.Client
// satisfies it; tests substitute a fake.
type Cmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Cache fronts the product repository for the scan path.
type Cache struct {
	products product.Repository
	rdb      Cmdable
	ttl      time.Duration
	lg       *zap.Logger

	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// New creates a Cache. A non-positive ttl uses DefaultTTL. The bloom
// prefilter is inactive until WarmFilter succeeds.
func New(products product.Repository, rdb Cmdable, ttl time.Duration, lg *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		products: products,
		rdb:      rdb,
		ttl:      ttl,
		lg:       lg,
	}
}

// WarmFilter loads every catalog SKU into the bloom prefilter. SKUs created
// later are added via Invalidate, so the filter never yields a false miss
// for anything written through this service.
func (c *Cache) WarmFilter(ctx context.Context) error {
	skus, err := c.products.ListSKUs(ctx)
	if err != nil {
		return errors.Wrap(err, "list skus")
	}

	f := bloom.NewWithEstimates(filterItems, filterFPR)
	for _, sku := range skus {
		f.AddString(sku)
	}

	c.mu.Lock()
	c.filter = f
	c.mu.Unlock()

	c.lg.Info("lookup prefilter warmed", zap.Int("skus", len(skus)))
	return nil
}

// FindByIdentifier resolves a scanned term to a product. Misses are cached
// too, so repeated scans of an unknown barcode stay cheap.
func (c *Cache) FindByIdentifier(ctx context.Context, term string) (*product.Product, error) {
	if !c.mightExist(term) {
		return nil, product.ErrNotFound
	}

	key := termPrefix + term
	if val, err := c.rdb.Get(ctx, key).Result(); err == nil {
		if val == missMarker {
			return nil, product.ErrNotFound
		}
		id, perr := strconv.ParseInt(val, 10, 64)
		if perr == nil {
			return c.GetProjection(ctx, id)
		}
	} else if !errors.Is(err, redis.Nil) {
		c.lg.Debug("term cache read failed", zap.String("term", term), zap.Error(err))
	}

	p, err := c.products.FindBySKU(ctx, term)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			c.set(ctx, key, missMarker)
		}
		return nil, err
	}

	c.set(ctx, key, strconv.FormatInt(p.ID, 10))
	c.storeProjection(ctx, p)
	return p, nil
}

// GetProjection returns the full product view, served from cache when fresh.
func (c *Cache) GetProjection(ctx context.Context, id int64) (*product.Product, error) {
	key := prodPrefix + strconv.FormatInt(id, 10)
	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var p product.Product
		if uerr := json.Unmarshal(raw, &p); uerr == nil {
			return &p, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.lg.Debug("projection cache read failed", zap.Int64("product_id", id), zap.Error(err))
	}

	p, err := c.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.storeProjection(ctx, p)
	return p, nil
}

// Invalidate drops the cached projection and term resolutions after a product
// write. The product's SKUs are added to the prefilter so a freshly created
// identifier is scannable immediately.
func (c *Cache) Invalidate(ctx context.Context, id int64, skus ...string) {
	keys := []string{prodPrefix + strconv.FormatInt(id, 10)}
	for _, sku := range skus {
		if sku != "" {
			keys = append(keys, termPrefix+sku)
		}
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.lg.Warn("cache invalidation failed", zap.Int64("product_id", id), zap.Error(err))
	}

	c.mu.Lock()
	if c.filter != nil {
		for _, sku := range skus {
			if sku != "" {
				c.filter.AddString(sku)
			}
		}
	}
	c.mu.Unlock()
}

func (c *Cache) mightExist(term string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.filter == nil {
		return true
	}
	return c.filter.TestString(term)
}

func (c *Cache) set(ctx context.Context, key, val string) {
	if err := c.rdb.Set(ctx, key, val, c.ttl).Err(); err != nil {
		c.lg.Debug("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cache) storeProjection(ctx context.Context, p *product.Product) {
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	c.set(ctx, prodPrefix+strconv.FormatInt(p.ID, 10), string(raw))
}
