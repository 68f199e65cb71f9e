// Command seed-db loads a catalog snapshot and an API key into the database
// for local development and integration testing.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/floorkit/scanpos/internal/handler"
	"github.com/floorkit/scanpos/internal/repository"
)

type catalogJSON struct {
	Consignors []struct {
		Number string `json:"number"`
		Name   string `json:"name"`
	} `json:"consignors"`
	Products []struct {
		SKU             string           `json:"sku"`
		LegacySKU       string           `json:"legacy_sku"`
		Name            string           `json:"name"`
		RegularPrice    decimal.Decimal  `json:"regular_price"`
		SalePrice       *decimal.Decimal `json:"sale_price"`
		StockStatus     string           `json:"stock_status"`
		StockQuantity   int              `json:"stock_quantity"`
		CategoryIDs     []int64          `json:"category_ids"`
		ConsignorNumber string           `json:"consignor_number"`
		ImageURL        string           `json:"image_url"`
	} `json:"products"`
	Customers []struct {
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	} `json:"customers"`
	Coupons []struct {
		Code         string          `json:"code"`
		DiscountType string          `json:"discount_type"`
		Amount       decimal.Decimal `json:"amount"`
		Description  string          `json:"description"`
		ExpiresAt    *time.Time      `json:"expires_at"`
		UsageLimit   int             `json:"usage_limit"`
	} `json:"coupons"`
}

func main() {
	var (
		databaseURL  string
		catalogFile  string
		apiKey       string
		apiKeyPepper string
		operatorID   int64
		operatorName string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "db/seed/catalog.json", "path to catalog JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or SCANPOS_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SCANPOS_API_KEY_PEPPER env)")
	flag.Int64Var(&operatorID, "operator-id", 1, "operator ID attached to the seeded API key")
	flag.StringVar(&operatorName, "operator-name", "Dev Operator", "display name attached to the seeded API key")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("SCANPOS_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or SCANPOS_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("SCANPOS_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogFile, apiKey, apiKeyPepper, operatorID, operatorName); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, catalogFile, apiKey, pepper string, operatorID int64, operatorName string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	data, err := os.ReadFile(catalogFile)
	if err != nil {
		return errors.Wrap(err, "read catalog file")
	}
	var catalog catalogJSON
	if err := json.Unmarshal(data, &catalog); err != nil {
		return errors.Wrap(err, "parse catalog file")
	}

	if err := seedCatalog(ctx, pool, catalog); err != nil {
		return err
	}
	return seedAPIKey(ctx, pool, apiKey, pepper, operatorID, operatorName)
}

func seedCatalog(ctx context.Context, pool *pgxpool.Pool, catalog catalogJSON) error {
	consignorIDs := make(map[string]int64, len(catalog.Consignors))
	for _, c := range catalog.Consignors {
		var id int64
		err := pool.QueryRow(ctx, `INSERT INTO consignors (consignor_number, name) VALUES ($1, $2)
			ON CONFLICT (consignor_number) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`, c.Number, c.Name).Scan(&id)
		if err != nil {
			return errors.Wrapf(err, "seed consignor %s", c.Number)
		}
		consignorIDs[c.Number] = id
	}
	slog.Info("seeded consignors", slog.Int("count", len(catalog.Consignors)))

	for _, p := range catalog.Products {
		stockStatus := p.StockStatus
		if stockStatus == "" {
			stockStatus = "instock"
		}
		var consignorID any
		if id, ok := consignorIDs[p.ConsignorNumber]; ok {
			consignorID = id
		}
		_, err := pool.Exec(ctx, `INSERT INTO products
			(sku, legacy_sku, name, regular_price, sale_price, stock_status, stock_quantity, category_ids, consignor_id, image_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (sku) DO UPDATE SET
				legacy_sku = EXCLUDED.legacy_sku,
				name = EXCLUDED.name,
				regular_price = EXCLUDED.regular_price,
				sale_price = EXCLUDED.sale_price,
				stock_status = EXCLUDED.stock_status,
				stock_quantity = EXCLUDED.stock_quantity,
				category_ids = EXCLUDED.category_ids,
				consignor_id = EXCLUDED.consignor_id,
				image_url = EXCLUDED.image_url,
				updated_at = now()`,
			p.SKU, p.LegacySKU, p.Name, p.RegularPrice, p.SalePrice,
			stockStatus, p.StockQuantity, p.CategoryIDs, consignorID, p.ImageURL)
		if err != nil {
			return errors.Wrapf(err, "seed product %s", p.SKU)
		}
	}
	slog.Info("seeded products", slog.Int("count", len(catalog.Products)))

	for _, c := range catalog.Customers {
		_, err := pool.Exec(ctx, `INSERT INTO customers (email, first_name, last_name)
			VALUES ($1, $2, $3)
			ON CONFLICT (email) DO UPDATE SET first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name`,
			c.Email, c.FirstName, c.LastName)
		if err != nil {
			return errors.Wrapf(err, "seed customer %s", c.Email)
		}
	}
	slog.Info("seeded customers", slog.Int("count", len(catalog.Customers)))

	for _, c := range catalog.Coupons {
		_, err := pool.Exec(ctx, `INSERT INTO coupons (code, discount_type, amount, description, expires_at, usage_limit)
			VALUES (lower($1), $2, $3, $4, $5, $6)
			ON CONFLICT (code) DO UPDATE SET
				discount_type = EXCLUDED.discount_type,
				amount = EXCLUDED.amount,
				description = EXCLUDED.description,
				expires_at = EXCLUDED.expires_at,
				usage_limit = EXCLUDED.usage_limit`,
			c.Code, c.DiscountType, c.Amount, c.Description, c.ExpiresAt, c.UsageLimit)
		if err != nil {
			return errors.Wrapf(err, "seed coupon %s", c.Code)
		}
	}
	slog.Info("seeded coupons", slog.Int("count", len(catalog.Coupons)))

	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string, operatorID int64, operatorName string) error {
	hash := handler.HashAPIKey(apiKey, []byte(pepper))
	_, err := pool.Exec(ctx, `INSERT INTO api_keys (id, key_hash, display_name, operator_id, scopes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key_hash) DO UPDATE SET display_name = EXCLUDED.display_name, operator_id = EXCLUDED.operator_id`,
		"seed-"+hash[:12], hash, operatorName, operatorID, []string{"pos", "scanner"})
	if err != nil {
		return errors.Wrap(err, "seed api key")
	}
	slog.Info("seeded api key", slog.String("operator", operatorName))
	return nil
}
