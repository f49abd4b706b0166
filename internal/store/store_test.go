package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealwatch/scout/internal/crypto"
)

func TestProductStoreGetByURLFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	rows := mock.NewRows([]string{
		"id", "source", "external_id", "url", "title", "image_url", "img_hash", "brand",
		"category", "finger", "geoid", "avg_price_30d", "min_price_30d",
		"avg_price_90d", "min_price_90d", "trend_30d", "created_at", "updated_at",
	}).AddRow(
		int64(1), "ozon", "123", "https://ozon.ru/product/123", "Title", "", nil, nil,
		"phones", "finger", "213", nil, nil, nil, nil, nil, now, now,
	)

	mock.ExpectQuery("SELECT id, source, external_id").
		WithArgs("https://ozon.ru/product/123").
		WillReturnRows(rows)

	s := NewProductStore(mock)
	p, err := s.GetByURL(context.Background(), "https://ozon.ru/product/123")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "ozon", p.Source)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserStoreListActiveDecryptsChatID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	box, err := crypto.NewBox([][]byte{make([]byte, 32)})
	require.NoError(t, err)

	enc, err := box.Encrypt([]byte("123456789"))
	require.NoError(t, err)

	rows := mock.NewRows([]string{"id", "chat_id", "geoid", "min_discount", "min_score", "categories", "schedule_cron"}).
		AddRow(int64(1), enc, "213", 20, 50, []string{"phones"}, nil)

	mock.ExpectQuery("SELECT id, chat_id, geoid").WillReturnRows(rows)

	s := NewUserStore(mock, box)
	users, err := s.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, int64(123456789), users[0].ChatID)
	assert.Equal(t, []string{"phones"}, users[0].Categories)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserStoreListActiveWithoutBoxUsesPlaintext(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := mock.NewRows([]string{"id", "chat_id", "geoid", "min_discount", "min_score", "categories", "schedule_cron"}).
		AddRow(int64(1), "42", "213", 20, 50, []string{}, nil)
	mock.ExpectQuery("SELECT id, chat_id, geoid").WillReturnRows(rows)

	s := NewUserStore(mock, nil)
	users, err := s.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, int64(42), users[0].ChatID)
}

func TestProductStoreGetByURLNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := mock.NewRows([]string{
		"id", "source", "external_id", "url", "title", "image_url", "img_hash", "brand",
		"category", "finger", "geoid", "avg_price_30d", "min_price_30d",
		"avg_price_90d", "min_price_90d", "trend_30d", "created_at", "updated_at",
	})

	mock.ExpectQuery("SELECT id, source, external_id").
		WithArgs("https://example.com/missing").
		WillReturnRows(rows)

	s := NewProductStore(mock)
	p, err := s.GetByURL(context.Background(), "https://example.com/missing")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}
