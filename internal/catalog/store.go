// Package catalog is the curated product list kept in a local SQLite file.
// Its rows join every search as the "manual" pseudo-provider.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"componentsearch/searchservice/internal/domain"
	"componentsearch/searchservice/internal/providers/common"
)

const (
	SourceName   = "manual"
	lookupLimit  = 20
	timeLayout   = time.RFC3339
	likeEscapeCh = `\`
)

var ErrNotFound = errors.New("catalog product not found")

type Product struct {
	MPN          string              `json:"mpn"`
	Manufacturer string              `json:"manufacturer"`
	Title        string              `json:"title"`
	Description  string              `json:"description"`
	Package      string              `json:"package"`
	Packaging    string              `json:"packaging"`
	Regions      []domain.Region     `json:"regions"`
	Stock        *int                `json:"stock"`
	PriceRUB     *float64            `json:"priceRub"`
	ImageURL     string              `json:"imageUrl"`
	ProductURL   string              `json:"productUrl"`
	PriceBreaks  []domain.PriceBreak `json:"priceBreaks"`
	Active       bool                `json:"active"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the catalog database at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("catalog path is empty")
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog %s: %w", path, err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS manual_products (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	mpn TEXT NOT NULL,
	mpn_key TEXT NOT NULL UNIQUE,
	manufacturer TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	package TEXT NOT NULL DEFAULT '',
	packaging TEXT NOT NULL DEFAULT '',
	manufacturer_key TEXT NOT NULL DEFAULT '',
	search_text TEXT NOT NULL DEFAULT '',
	regions TEXT NOT NULL DEFAULT '',
	stock INTEGER,
	price_rub REAL,
	image_url TEXT NOT NULL DEFAULT '',
	product_url TEXT NOT NULL DEFAULT '',
	price_breaks TEXT NOT NULL DEFAULT '[]',
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_manual_products_active ON manual_products(is_active);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate catalog: %w", err)
	}
	return s.migrateSearchColumns(ctx)
}

// SQLite's LOWER only folds ASCII, so the case-folded match columns are
// written from Go. Files created before these columns existed are backfilled.
func (s *Store) migrateSearchColumns(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `PRAGMA table_info(manual_products)`)
	if err != nil {
		return fmt.Errorf("migrate catalog: %w", err)
	}
	columns := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name, kind string
			notNull    int
			dflt       sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &kind, &notNull, &dflt, &pk); err != nil {
			rows.Close()
			return fmt.Errorf("migrate catalog: %w", err)
		}
		columns[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("migrate catalog: %w", err)
	}
	if columns["manufacturer_key"] && columns["search_text"] {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate catalog: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, column := range []string{"manufacturer_key", "search_text"} {
		if columns[column] {
			continue
		}
		if _, err := tx.ExecContext(ctx, `ALTER TABLE manual_products ADD COLUMN `+column+` TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("migrate catalog: add %s: %w", column, err)
		}
	}

	type pending struct {
		id                               int64
		manufacturer, title, description string
	}
	var backfill []pending
	existing, err := tx.QueryContext(ctx, `SELECT id, manufacturer, title, description FROM manual_products`)
	if err != nil {
		return fmt.Errorf("migrate catalog: %w", err)
	}
	for existing.Next() {
		var p pending
		if err := existing.Scan(&p.id, &p.manufacturer, &p.title, &p.description); err != nil {
			existing.Close()
			return fmt.Errorf("migrate catalog: %w", err)
		}
		backfill = append(backfill, p)
	}
	existing.Close()
	for _, p := range backfill {
		if _, err := tx.ExecContext(ctx,
			`UPDATE manual_products SET manufacturer_key = ?, search_text = ? WHERE id = ?`,
			foldText(p.manufacturer), searchText(p.title, p.description), p.id,
		); err != nil {
			return fmt.Errorf("migrate catalog: backfill: %w", err)
		}
	}
	return tx.Commit()
}

// Lookup returns active products whose mpn, manufacturer, title or
// description contains query, best matches first.
func (s *Store) Lookup(ctx context.Context, query string) ([]domain.CanonicalRow, error) {
	q := foldText(query)
	if q == "" {
		return []domain.CanonicalRow{}, nil
	}
	contains := "%" + escapeLike(q) + "%"
	prefix := escapeLike(q) + "%"

	rows, err := s.db.QueryContext(ctx, `
SELECT mpn, manufacturer, title, description, package, packaging, regions,
       stock, price_rub, image_url, product_url, price_breaks, is_active, updated_at
FROM manual_products
WHERE is_active = 1
  AND (mpn_key LIKE ? ESCAPE '\'
    OR manufacturer_key LIKE ? ESCAPE '\'
    OR search_text LIKE ? ESCAPE '\')
ORDER BY
  CASE
    WHEN mpn_key = ? THEN 1
    WHEN mpn_key LIKE ? ESCAPE '\' THEN 2
    WHEN manufacturer_key LIKE ? ESCAPE '\' THEN 3
    ELSE 4
  END,
  COALESCE(stock, 0) DESC,
  price_rub IS NULL,
  price_rub ASC,
  id ASC
LIMIT ?`,
		contains, contains, contains,
		q, prefix, contains,
		lookupLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("catalog lookup: %w", err)
	}
	defer rows.Close()

	out := make([]domain.CanonicalRow, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p.Row())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog lookup: %w", err)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, mpn string) (Product, error) {
	key := mpnKey(mpn)
	if key == "" {
		return Product{}, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `
SELECT mpn, manufacturer, title, description, package, packaging, regions,
       stock, price_rub, image_url, product_url, price_breaks, is_active, updated_at
FROM manual_products WHERE mpn_key = ?`, key)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

// Upsert inserts or replaces the product with the same case-insensitive mpn.
func (s *Store) Upsert(ctx context.Context, p Product) error {
	key := mpnKey(p.MPN)
	if key == "" {
		return errors.New("catalog product mpn is empty")
	}
	breaks := p.PriceBreaks
	if breaks == nil {
		breaks = []domain.PriceBreak{}
	}
	breaksJSON, err := json.Marshal(breaks)
	if err != nil {
		return fmt.Errorf("encode price breaks: %w", err)
	}

	now := s.now().UTC().Format(timeLayout)
	_, err = s.db.ExecContext(ctx, `
INSERT INTO manual_products (
	mpn, mpn_key, manufacturer, manufacturer_key, title, description, search_text, package, packaging, regions,
	stock, price_rub, image_url, product_url, price_breaks, is_active, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(mpn_key) DO UPDATE SET
	mpn = excluded.mpn,
	manufacturer = excluded.manufacturer,
	manufacturer_key = excluded.manufacturer_key,
	title = excluded.title,
	description = excluded.description,
	search_text = excluded.search_text,
	package = excluded.package,
	packaging = excluded.packaging,
	regions = excluded.regions,
	stock = excluded.stock,
	price_rub = excluded.price_rub,
	image_url = excluded.image_url,
	product_url = excluded.product_url,
	price_breaks = excluded.price_breaks,
	is_active = excluded.is_active,
	updated_at = excluded.updated_at`,
		strings.TrimSpace(p.MPN), key,
		strings.TrimSpace(p.Manufacturer), foldText(p.Manufacturer),
		strings.TrimSpace(p.Title), strings.TrimSpace(p.Description), searchText(p.Title, p.Description),
		strings.TrimSpace(p.Package), strings.TrimSpace(p.Packaging), joinRegions(p.Regions),
		nullInt(p.Stock), nullFloat(p.PriceRUB),
		strings.TrimSpace(p.ImageURL), strings.TrimSpace(p.ProductURL), string(breaksJSON),
		boolInt(p.Active), now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert catalog product %s: %w", p.MPN, err)
	}
	return nil
}

func (s *Store) Deactivate(ctx context.Context, mpn string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE manual_products SET is_active = 0, updated_at = ? WHERE mpn_key = ?`,
		s.now().UTC().Format(timeLayout), mpnKey(mpn),
	)
	if err != nil {
		return fmt.Errorf("deactivate catalog product %s: %w", mpn, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Row maps the product to a canonical row. Catalog prices are in roubles.
func (p Product) Row() domain.CanonicalRow {
	title := p.Title
	if title == "" {
		title = strings.TrimSpace(p.Manufacturer + " " + p.MPN)
	}
	regions := p.Regions
	if len(regions) == 0 {
		regions = []domain.Region{domain.RegionGlobal}
	}

	raw := make([]domain.PriceBreak, 0, len(p.PriceBreaks))
	for _, pb := range p.PriceBreaks {
		raw = append(raw, domain.PriceBreak{Qty: pb.Qty, Price: pb.Price, Currency: domain.CurrencyRUB})
	}
	breaks := common.PriceBreaks(raw, nil)
	var minPrice *float64
	if p.PriceRUB != nil && *p.PriceRUB >= 0 {
		minPrice = domain.FloatPtr(*p.PriceRUB)
	}
	for i := range breaks {
		breaks[i].PriceRUB = domain.FloatPtr(breaks[i].Price)
		if minPrice == nil || breaks[i].Price < *minPrice {
			minPrice = domain.FloatPtr(breaks[i].Price)
		}
	}

	row := domain.CanonicalRow{
		MPN:              p.MPN,
		Title:            title,
		Manufacturer:     p.Manufacturer,
		DescriptionShort: p.Description,
		PackageType:      p.Package,
		Packaging:        p.Packaging,
		Regions:          domain.Regions(regions...),
		ImageURL:         p.ImageURL,
		ProductURL:       p.ProductURL,
		Source:           SourceName,
		PriceBreaks:      breaks,
	}
	if p.Stock != nil {
		row.Stock = domain.IntPtr(*p.Stock)
	}
	if minPrice != nil {
		row.MinPrice = domain.FloatPtr(*minPrice)
		row.MinCurrency = domain.CurrencyRUB
		row.MinPriceRUB = domain.FloatPtr(*minPrice)
	}
	return row
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(sc scanner) (Product, error) {
	var (
		p          Product
		regions    string
		stock      sql.NullInt64
		price      sql.NullFloat64
		breaksJSON string
		active     int
		updatedAt  string
	)
	if err := sc.Scan(
		&p.MPN, &p.Manufacturer, &p.Title, &p.Description, &p.Package, &p.Packaging, &regions,
		&stock, &price, &p.ImageURL, &p.ProductURL, &breaksJSON, &active, &updatedAt,
	); err != nil {
		return Product{}, err
	}
	p.Regions = splitRegions(regions)
	if stock.Valid {
		p.Stock = domain.IntPtr(int(stock.Int64))
	}
	if price.Valid {
		p.PriceRUB = domain.FloatPtr(price.Float64)
	}
	if breaksJSON != "" {
		if err := json.Unmarshal([]byte(breaksJSON), &p.PriceBreaks); err != nil {
			return Product{}, fmt.Errorf("decode price breaks for %s: %w", p.MPN, err)
		}
	}
	p.Active = active == 1
	if t, err := time.Parse(timeLayout, updatedAt); err == nil {
		p.UpdatedAt = t
	}
	return p, nil
}

func mpnKey(mpn string) string {
	return foldText(mpn)
}

func foldText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func searchText(title, description string) string {
	return foldText(title) + "\n" + foldText(description)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(likeEscapeCh, likeEscapeCh+likeEscapeCh, "%", likeEscapeCh+"%", "_", likeEscapeCh+"_")
	return r.Replace(s)
}

func joinRegions(regions []domain.Region) string {
	sorted := domain.Regions(regions...)
	parts := make([]string, 0, len(sorted))
	for _, r := range sorted {
		parts = append(parts, string(r))
	}
	return strings.Join(parts, ",")
}

func splitRegions(raw string) []domain.Region {
	var out []domain.Region
	for _, part := range strings.Split(raw, ",") {
		if r, ok := domain.ParseRegion(part); ok {
			out = append(out, r)
		}
	}
	return out
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
