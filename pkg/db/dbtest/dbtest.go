// Package dbtest opens isolated in-memory sqlite databases carrying the
// marketplace schema for repository and service tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const schema = `
CREATE TABLE IF NOT EXISTS provider_profiles (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL UNIQUE,
  business_name TEXT NOT NULL,
  bio TEXT,
  location TEXT,
  service_areas TEXT,
  contact_email TEXT,
  contact_phone TEXT,
  auto_reveal_contact INTEGER NOT NULL DEFAULT 1,
  subscription_tier TEXT NOT NULL DEFAULT 'free',
  monthly_booking_count INTEGER NOT NULL DEFAULT 0,
  usage_window_start DATETIME NOT NULL,
  booking_count_reset_date DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS service_offerings (
  id TEXT PRIMARY KEY,
  provider_profile_id TEXT NOT NULL,
  title TEXT NOT NULL,
  description TEXT,
  price TEXT,
  pricing_model TEXT NOT NULL DEFAULT 'fixed',
  unit TEXT,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS bookings (
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL,
  provider_id TEXT NOT NULL,
  service_offering_id TEXT,
  service_title TEXT NOT NULL,
  description TEXT,
  scheduled_date DATETIME,
  scheduled_time TEXT,
  location TEXT,
  notes TEXT,
  service_price TEXT NOT NULL DEFAULT '0',
  booking_fee TEXT NOT NULL DEFAULT '0',
  customer_booking_fee TEXT NOT NULL DEFAULT '0',
  provider_booking_fee TEXT NOT NULL DEFAULT '0',
  transaction_fee_percent TEXT NOT NULL DEFAULT '0',
  transaction_fee_amount TEXT NOT NULL DEFAULT '0',
  total_amount TEXT NOT NULL DEFAULT '0',
  deposit_amount TEXT NOT NULL DEFAULT '0',
  provider_net_amount TEXT NOT NULL DEFAULT '0',
  status TEXT NOT NULL DEFAULT 'pending',
  contact_revealed INTEGER NOT NULL DEFAULT 0,
  contact_revealed_at DATETIME,
  completed_at DATETIME,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS transactions (
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL,
  provider_id TEXT,
  booking_id TEXT,
  type TEXT NOT NULL,
  status TEXT NOT NULL,
  amount TEXT NOT NULL,
  fee TEXT NOT NULL DEFAULT '0',
  net_amount TEXT NOT NULL,
  payment_reference TEXT UNIQUE,
  gateway_status TEXT,
  description TEXT,
  metadata TEXT,
  created_at DATETIME
);
CREATE TABLE IF NOT EXISTS subscriptions (
  id TEXT PRIMARY KEY,
  provider_profile_id TEXT NOT NULL UNIQUE,
  tier TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  current_period_start DATETIME NOT NULL,
  current_period_end DATETIME NOT NULL,
  cancel_at_period_end INTEGER NOT NULL DEFAULT 0,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS job_posts (
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL,
  title TEXT NOT NULL,
  description TEXT NOT NULL,
  category TEXT NOT NULL,
  location TEXT,
  budget TEXT,
  tags TEXT,
  status TEXT NOT NULL DEFAULT 'open',
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS leads (
  id TEXT PRIMARY KEY,
  job_post_id TEXT NOT NULL,
  provider_profile_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'unlocked',
  unlocked_at DATETIME NOT NULL,
  created_at DATETIME,
  CONSTRAINT leads_job_post_provider_key UNIQUE (job_post_id, provider_profile_id)
);
CREATE TABLE IF NOT EXISTS messages (
  id TEXT PRIMARY KEY,
  sender_id TEXT NOT NULL,
  receiver_id TEXT NOT NULL,
  booking_id TEXT,
  content TEXT NOT NULL,
  type TEXT NOT NULL DEFAULT 'text',
  content_masked INTEGER NOT NULL DEFAULT 0,
  is_read INTEGER NOT NULL DEFAULT 0,
  read_at DATETIME,
  deleted_by_sender INTEGER NOT NULL DEFAULT 0,
  deleted_by_receiver INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME
);
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);
CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`

// Open returns a fresh database private to the calling test.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	// the in-memory database lives as long as one pooled connection stays open
	sqlDB.SetMaxIdleConns(4)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}
