package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/servicelink/servicelink-backend/pkg/config"
	"github.com/servicelink/servicelink-backend/pkg/logger"
)

type ledgerRow struct {
	ID        int
	Reference string `gorm:"uniqueIndex"`
}

func openSQLite(t *testing.T) *Client {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	client, err := New(context.Background(), config.DBConfig{DSN: dsn, Driver: "sqlite", MaxOpenConns: 1}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.DB().AutoMigrate(&ledgerRow{}))
	return client
}

func countRows(t *testing.T, client *Client) int64 {
	t.Helper()
	var n int64
	require.NoError(t, client.DB().Model(&ledgerRow{}).Count(&n).Error)
	return n
}

func TestWithTxCommitsAndRollsBack(t *testing.T) {
	client := openSQLite(t)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&ledgerRow{Reference: "BK-1"}).Error
	}))
	assert.Equal(t, int64(1), countRows(t, client))

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&ledgerRow{Reference: "BK-2"}).Error; err != nil {
			return err
		}
		return errors.New("settlement failed")
	})
	assert.EqualError(t, err, "settlement failed")
	assert.Equal(t, int64(1), countRows(t, client))
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	client := openSQLite(t)

	assert.Panics(t, func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			tx.Create(&ledgerRow{Reference: "BK-3"})
			panic("boom")
		})
	})
	assert.Zero(t, countRows(t, client))
}

func TestPing(t *testing.T) {
	client := openSQLite(t)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestDialectorFor(t *testing.T) {
	_, err := dialectorFor(config.DBConfig{})
	assert.Error(t, err)

	_, err = dialectorFor(config.DBConfig{DSN: "x", Driver: "mysql"})
	assert.ErrorContains(t, err, "unsupported")

	d, err := dialectorFor(config.DBConfig{DSN: "postgres://localhost/servicelink"})
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())

	d, err = dialectorFor(config.DBConfig{DSN: "file::memory:", Driver: "SQLite"})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())
}

func TestQueryLoggerIsSilentWithoutThreshold(t *testing.T) {
	assert.Equal(t, gormlogger.Discard, queryLogger(context.Background(), config.DBConfig{}, nil))
}

func TestSlowQueryWriterUsesServiceLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "api", Output: buf})
	w := slowQueryWriter{ctx: context.Background(), logg: logg}

	w.Printf("%s SLOW SQL >= %v\n", "bookings.go:42", 200*time.Millisecond)

	assert.Contains(t, buf.String(), `"component":"gorm"`)
	assert.Contains(t, buf.String(), "SLOW SQL")
	assert.Contains(t, buf.String(), `"level":"warn"`)
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "leads_job_post_provider_key"}
	assert.True(t, IsUniqueViolation(pgErr, ""))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", pgErr), "leads_job_post_provider_key"))
	assert.False(t, IsUniqueViolation(pgErr, "other_key"))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""), "foreign key violation")
	assert.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: leads.job_post_id, leads.provider_profile_id"), ""))
	assert.False(t, IsUniqueViolation(errors.New("boom"), ""))
	assert.False(t, IsUniqueViolation(nil, ""))
}

func TestUniqueViolationFromSQLite(t *testing.T) {
	client := openSQLite(t)
	require.NoError(t, client.DB().Create(&ledgerRow{Reference: "ref_1"}).Error)

	err := client.DB().Create(&ledgerRow{Reference: "ref_1"}).Error
	assert.True(t, IsUniqueViolation(err, ""), "got %v", err)
}
