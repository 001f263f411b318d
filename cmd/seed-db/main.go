// Command seed-db provisions a database with demo data for local development
// and integration testing: a product catalog, completed orders, customers
// with loyalty accounts, vouchers, and an API key.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/openpos/restobill/internal/repository"
)

type seedProduct struct {
	id, name, category string
	price              string
}

type seedOrderItem struct {
	productID string
	quantity  int
}

type seedOrder struct {
	id     string
	status string
	items  []seedOrderItem
}

type seedCustomer struct {
	id, phone, name string
	points          int
	tier            string
	enrolled        bool
}

type seedVoucher struct {
	code, kind, value      string
	startOffset, endOffset int // days relative to today
	status                 string
}

var products = []seedProduct{
	{id: "1", name: "Pho Bo", category: "mains", price: "55000"},
	{id: "2", name: "Bun Cha", category: "mains", price: "45000"},
	{id: "3", name: "Goi Cuon", category: "starters", price: "30000"},
	{id: "4", name: "Ca Phe Sua Da", category: "drinks", price: "25000"},
	{id: "5", name: "Tra Da", category: "drinks", price: "5000"},
}

var orders = []seedOrder{
	{id: "ord-1001", status: "Completed", items: []seedOrderItem{
		{productID: "1", quantity: 2},
		{productID: "4", quantity: 2},
	}},
	{id: "ord-1002", status: "Completed", items: []seedOrderItem{
		{productID: "2", quantity: 1},
		{productID: "3", quantity: 2},
		{productID: "5", quantity: 4},
	}},
	{id: "ord-1003", status: "Pending", items: []seedOrderItem{
		{productID: "1", quantity: 1},
	}},
	{id: "ord-1004", status: "Completed", items: []seedOrderItem{
		{productID: "4", quantity: 1},
	}},
}

var customers = []seedCustomer{
	{id: "cust-1", phone: "0901234567", name: "Nguyen Van An", points: 25, tier: "Gold", enrolled: true},
	{id: "cust-2", phone: "0907654321", name: "Tran Thi Binh", points: 3, tier: "Standard", enrolled: true},
	{id: "cust-3", phone: "0912345678", name: "Le Van Cuong", enrolled: false},
}

var vouchers = []seedVoucher{
	{code: "WELCOME10", kind: "PERCENT", value: "10", startOffset: -30, endOffset: 30, status: "ACTIVE"},
	{code: "TET50K", kind: "FIXED_AMOUNT", value: "50000", startOffset: -7, endOffset: 7, status: "ACTIVE"},
	{code: "EXPIRED20", kind: "PERCENT", value: "20", startOffset: -60, endOffset: -30, status: "ACTIVE"},
	{code: "UPCOMING15", kind: "PERCENT", value: "15", startOffset: 7, endOffset: 37, status: "ACTIVE"},
	{code: "DISABLED25", kind: "PERCENT", value: "25", startOffset: -30, endOffset: 30, status: "INACTIVE"},
}

func main() {
	var (
		databaseURL  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or BILLING_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or BILLING_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("BILLING_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or BILLING_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("BILLING_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedOrders(ctx, pool); err != nil {
		return errors.Wrap(err, "seed orders")
	}
	if err := seedCustomers(ctx, pool); err != nil {
		return errors.Wrap(err, "seed customers")
	}
	if err := seedVouchers(ctx, pool); err != nil {
		return errors.Wrap(err, "seed vouchers")
	}
	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		price, err := decimal.NewFromString(p.price)
		if err != nil {
			return errors.Wrapf(err, "parse price for product %s", p.id)
		}
		_, err = pool.Exec(ctx, `INSERT INTO products (id, name, price, category)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET name = $2, price = $3, category = $4`,
			p.id, p.name, price, p.category)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.id)
		}
	}
	return nil
}

func seedOrders(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("upserting orders", slog.Int("count", len(orders)))

	for _, o := range orders {
		_, err := pool.Exec(ctx, `INSERT INTO orders (id, status)
			VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET status = $2`,
			o.id, o.status)
		if err != nil {
			return errors.Wrapf(err, "upsert order %s", o.id)
		}

		for _, item := range o.items {
			// Snapshot the current catalog price as price_at_order.
			_, err := pool.Exec(ctx, `INSERT INTO order_items
				(order_id, product_id, name, price_at_order, quantity)
				SELECT $1, p.id, p.name, p.price, $3 FROM products p WHERE p.id = $2
				ON CONFLICT (order_id, product_id) DO UPDATE SET quantity = $3`,
				o.id, item.productID, item.quantity)
			if err != nil {
				return errors.Wrapf(err, "upsert item %s for order %s", item.productID, o.id)
			}
		}
	}
	return nil
}

func seedCustomers(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("upserting customers", slog.Int("count", len(customers)))

	for _, c := range customers {
		_, err := pool.Exec(ctx, `INSERT INTO customers (id, phone, full_name)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET phone = $2, full_name = $3`,
			c.id, c.phone, c.name)
		if err != nil {
			return errors.Wrapf(err, "upsert customer %s", c.id)
		}
		if !c.enrolled {
			continue
		}
		_, err = pool.Exec(ctx, `INSERT INTO loyalty_accounts (customer_id, points, tier)
			VALUES ($1, $2, $3)
			ON CONFLICT (customer_id) DO UPDATE SET points = $2, tier = $3`,
			c.id, c.points, c.tier)
		if err != nil {
			return errors.Wrapf(err, "upsert loyalty account for %s", c.id)
		}
	}
	return nil
}

func seedVouchers(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("upserting vouchers", slog.Int("count", len(vouchers)))

	today := time.Now().UTC().Truncate(24 * time.Hour)
	for _, v := range vouchers {
		value, err := decimal.NewFromString(v.value)
		if err != nil {
			return errors.Wrapf(err, "parse value for voucher %s", v.code)
		}
		start := today.AddDate(0, 0, v.startOffset)
		end := today.AddDate(0, 0, v.endOffset)

		_, err = pool.Exec(ctx, `INSERT INTO vouchers
			(code, discount_type, value, start_date, end_date, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (code) DO UPDATE SET
				discount_type = $2, value = $3, start_date = $4, end_date = $5, status = $6`,
			v.code, v.kind, value, start, end, v.status)
		if err != nil {
			return errors.Wrapf(err, "upsert voucher %s", v.code)
		}
	}
	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	slog.Info("upserting api key")

	_, err := pool.Exec(ctx, `INSERT INTO api_keys (id, key_hash, name, scopes, active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (key_hash) DO UPDATE SET scopes = $4, active = TRUE`,
		"seed-key", keyHash, "seed", []string{"billing:read", "billing:write"})
	return err
}
