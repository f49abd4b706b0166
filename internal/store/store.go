// Package store provides the repository layer over Product, Offer,
// PriceHistory, and User, following the teacher's
// DBPool-interface-over-pgxpool pattern (database/market.go) so that the
// same repository code runs against pgxmock in unit tests.
package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dealwatch/scout/internal/crypto"
	"github.com/dealwatch/scout/internal/models"
)

// DBPool is satisfied by both *pgxpool.Pool and pgxmock.PgxPoolIface.
type DBPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

const batchSize = 1000

// ProductStore persists Products and their owned Offers/PriceHistory
// (cascade-delete owned, per the Data Model's Ownership note).
type ProductStore struct {
	db DBPool
}

func NewProductStore(db DBPool) *ProductStore { return &ProductStore{db: db} }

// GetByURL locates a Product by its unique URL, returning (nil, nil) if
// not found — upsert_offer's first step.
func (s *ProductStore) GetByURL(ctx context.Context, url string) (*models.Product, error) {
	const q = `
		SELECT id, source, external_id, url, title, image_url, img_hash, brand,
			category, finger, geoid, avg_price_30d, min_price_30d,
			avg_price_90d, min_price_90d, trend_30d, created_at, updated_at
		FROM products WHERE url = $1`
	row := s.db.QueryRow(ctx, q, url)
	var p models.Product
	err := row.Scan(&p.ID, &p.Source, &p.ExternalID, &p.URL, &p.Title, &p.ImageURL,
		&p.ImgHash, &p.Brand, &p.Category, &p.Finger, &p.Geoid,
		&p.AvgPrice30d, &p.MinPrice30d, &p.AvgPrice90d, &p.MinPrice90d, &p.Trend30d,
		&p.CreatedAt, &p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get product by url: %w", err)
	}
	return &p, nil
}

// Create inserts a new Product with the full field set (I1: unique on
// (source, external_id) and on url).
func (s *ProductStore) Create(ctx context.Context, p *models.Product) error {
	const q = `
		INSERT INTO products (
			source, external_id, url, title, image_url, img_hash, brand,
			category, finger, geoid, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (source, external_id) DO NOTHING
		RETURNING id`
	row := s.db.QueryRow(ctx, q, p.Source, p.ExternalID, p.URL, p.Title, p.ImageURL,
		p.ImgHash, p.Brand, p.Category, p.Finger, p.Geoid, p.CreatedAt, p.UpdatedAt)
	return row.Scan(&p.ID)
}

// FillImgHashIfMissing sets img_hash only if the stored row currently
// lacks one (I4: never overwrite a set img_hash with null).
func (s *ProductStore) FillImgHashIfMissing(ctx context.Context, productID int64, imgHash string) error {
	const q = `UPDATE products SET img_hash = $2, updated_at = now()
		WHERE id = $1 AND img_hash IS NULL`
	_, err := s.db.Exec(ctx, q, productID, imgHash)
	return err
}

// UpdateAggregates persists the rolling 30d/90d stats and trend computed
// by internal/features.
func (s *ProductStore) UpdateAggregates(ctx context.Context, productID int64, avg30 *float64, min30 *int64, avg90 *float64, min90 *int64, trend *float64) error {
	const q = `
		UPDATE products SET
			avg_price_30d = $2, min_price_30d = $3,
			avg_price_90d = $4, min_price_90d = $5,
			trend_30d = $6, updated_at = now()
		WHERE id = $1`
	_, err := s.db.Exec(ctx, q, productID, avg30, min30, avg90, min90, trend)
	return err
}

// OfferStore appends per-observation Offer rows.
type OfferStore struct{ db DBPool }

func NewOfferStore(db DBPool) *OfferStore { return &OfferStore{db: db} }

func (s *OfferStore) Insert(ctx context.Context, o *models.Offer) error {
	const q = `
		INSERT INTO offers (
			product_id, price, price_old, price_final, seller, seller_rating,
			shipping_days, promo_flags, shipping_included, price_in_cart,
			subscription, observed_at, discount_pct, abs_saving, score, fake_msrp
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING id`
	row := s.db.QueryRow(ctx, q, o.ProductID, o.Price, o.PriceOld, o.PriceFinal, o.Seller,
		o.SellerRating, o.ShippingDays, o.PromoFlags, o.ShippingIncluded, o.PriceInCart,
		o.Subscription, o.ObservedAt, o.DiscountPct, o.AbsSaving, o.Score, o.FakeMSRP)
	return row.Scan(&o.ID)
}

// PriceHistoryStore appends immutable price points and reads them back
// for feature computation (O3: a consistent per-product snapshot read).
type PriceHistoryStore struct{ db DBPool }

func NewPriceHistoryStore(db DBPool) *PriceHistoryStore { return &PriceHistoryStore{db: db} }

func (s *PriceHistoryStore) Insert(ctx context.Context, h *models.PriceHistory) error {
	const q = `INSERT INTO price_history (product_id, ts, price_final, seller)
		VALUES ($1,$2,$3,$4) RETURNING id`
	row := s.db.QueryRow(ctx, q, h.ProductID, h.Ts, h.PriceFinal, h.Seller)
	return row.Scan(&h.ID)
}

// InsertBatch writes many history rows via pgx.Batch, chunked the same
// way the teacher's UpsertMarketOrders chunks large order sets.
func (s *PriceHistoryStore) InsertBatch(ctx context.Context, rows []models.PriceHistory) error {
	if len(rows) == 0 {
		return nil
	}
	for i := 0; i < len(rows); i += batchSize {
		end := i + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := s.insertChunk(ctx, rows[i:end]); err != nil {
			return fmt.Errorf("insert price history batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

func (s *PriceHistoryStore) insertChunk(ctx context.Context, rows []models.PriceHistory) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	const q = `INSERT INTO price_history (product_id, ts, price_final, seller) VALUES ($1,$2,$3,$4)`
	for _, h := range rows {
		batch.Queue(q, h.ProductID, h.Ts, h.PriceFinal, h.Seller)
	}
	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("batch exec at index %d: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch results: %w", err)
	}
	return tx.Commit(ctx)
}

// ForFeatures returns all history rows for a product, newest last, for
// WindowStats/Trend30d to slice by window.
func (s *PriceHistoryStore) ForFeatures(ctx context.Context, productID int64) ([]models.PriceHistory, error) {
	const q = `SELECT id, product_id, ts, price_final, seller FROM price_history
		WHERE product_id = $1 ORDER BY ts ASC`
	rows, err := s.db.Query(ctx, q, productID)
	if err != nil {
		return nil, fmt.Errorf("query price history: %w", err)
	}
	defer rows.Close()

	var out []models.PriceHistory
	for rows.Next() {
		var h models.PriceHistory
		if err := rows.Scan(&h.ID, &h.ProductID, &h.Ts, &h.PriceFinal, &h.Seller); err != nil {
			return nil, fmt.Errorf("scan price history: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// UserStore reads active notification recipients and their filters. With
// a non-nil box the chat_id column is stored AES-GCM encrypted at rest
// (the Go equivalent of crypto.py's EncryptedInt column type) and
// decrypted on read through box; with a nil box it is stored and read as
// a plaintext decimal string.
type UserStore struct {
	db  DBPool
	box *crypto.Box
}

func NewUserStore(db DBPool, box *crypto.Box) *UserStore { return &UserStore{db: db, box: box} }

func (s *UserStore) ListActive(ctx context.Context) ([]models.User, error) {
	const q = `SELECT id, chat_id, geoid, min_discount, min_score, categories, schedule_cron FROM users WHERE active`
	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		var u models.User
		var chatIDEnc string
		if err := rows.Scan(&u.ID, &chatIDEnc, &u.Geoid, &u.MinDiscount, &u.MinScore, &u.Categories, &u.ScheduleCron); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		chatID, err := s.decryptChatID(chatIDEnc)
		if err != nil {
			return nil, fmt.Errorf("decrypt chat id: %w", err)
		}
		u.ChatID = chatID
		out = append(out, u)
	}
	return out, rows.Err()
}

// GetByChatID finds the active user whose decrypted chat ID matches
// chatID, for the per-task profile overlay (geoid/thresholds/weights).
// chat_id is AES-GCM encrypted with a random nonce per row, so equality
// can't be pushed into the WHERE clause (matching ciphertexts would
// require a deterministic nonce); instead every active row is decrypted
// and compared in application code, mirroring app/worker.py's
// `select(User).where(User.chat_id == int(chat_id))` scan.
func (s *UserStore) GetByChatID(ctx context.Context, chatID int64) (*models.User, error) {
	const q = `SELECT id, chat_id, geoid, min_discount, min_score, categories, schedule_cron, score_weights_json FROM users WHERE active`
	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("scan users for chat id: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u models.User
		var chatIDEnc string
		if err := rows.Scan(&u.ID, &chatIDEnc, &u.Geoid, &u.MinDiscount, &u.MinScore, &u.Categories, &u.ScheduleCron, &u.Weights); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		decrypted, err := s.decryptChatID(chatIDEnc)
		if err != nil {
			return nil, fmt.Errorf("decrypt chat id: %w", err)
		}
		if decrypted == chatID {
			u.ChatID = decrypted
			return &u, nil
		}
	}
	return nil, rows.Err()
}

// Create inserts a new active user with the given chat ID encrypted at rest.
func (s *UserStore) Create(ctx context.Context, u *models.User) error {
	chatIDEnc, err := s.encryptChatID(u.ChatID)
	if err != nil {
		return fmt.Errorf("encrypt chat id: %w", err)
	}
	const q = `INSERT INTO users (chat_id, geoid, min_discount, min_score, categories, schedule_cron, active)
		VALUES ($1,$2,$3,$4,$5,$6,true) RETURNING id`
	row := s.db.QueryRow(ctx, q, chatIDEnc, u.Geoid, u.MinDiscount, u.MinScore, u.Categories, u.ScheduleCron)
	return row.Scan(&u.ID)
}

func (s *UserStore) encryptChatID(chatID int64) (string, error) {
	if s.box == nil {
		return strconv.FormatInt(chatID, 10), nil
	}
	return s.box.Encrypt([]byte(strconv.FormatInt(chatID, 10)))
}

func (s *UserStore) decryptChatID(enc string) (int64, error) {
	if s.box == nil {
		return strconv.ParseInt(enc, 10, 64)
	}
	plain, err := s.box.Decrypt(enc)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(plain), 10, 64)
}

// CleanOldPriceHistory prunes rows older than the retention window,
// mirroring the teacher's CleanOldMarketOrders housekeeping query.
func CleanOldPriceHistory(ctx context.Context, db DBPool, olderThan time.Duration) (int64, error) {
	const q = `DELETE FROM price_history WHERE ts < $1`
	cutoff := time.Now().Add(-olderThan)
	tag, err := db.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, fmt.Errorf("clean old price history: %w", err)
	}
	return tag.RowsAffected(), nil
}
