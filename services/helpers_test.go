package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glivermore2025/getsovrn-site/database"
	"github.com/glivermore2025/getsovrn-site/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v80/webhook"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testWebhookSecret = "whsec_test_secret"
	testTopicArn      = "arn:aws:sns:us-east-1:000000000000:marketplace-events"
)

// newTestDB opens a private in-memory database. A single connection keeps
// every query on the same in-memory instance and serializes transactions.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func seedDataset(t *testing.T, db *gorm.DB) *models.Dataset {
	t.Helper()
	ds := &models.Dataset{
		Slug:           "ds-" + uuid.NewString()[:8],
		Name:           "Pooled browsing data",
		UnitPriceCents: 900,
		Currency:       "usd",
		IsActive:       true,
	}
	require.NoError(t, db.Create(ds).Error)
	return ds
}

func seedListing(t *testing.T, db *gorm.DB, sellerID string) *models.Listing {
	t.Helper()
	l := &models.Listing{
		SellerID:   sellerID,
		Title:      "Fitness tracker export",
		PriceCents: 2500,
		Currency:   "usd",
		FilePath:   "listings/export.csv",
	}
	require.NoError(t, db.Create(l).Error)
	return l
}

func seedContributor(t *testing.T, db *gorm.DB, datasetID uuid.UUID, userID string, weight int64) {
	t.Helper()
	require.NoError(t, db.Create(&models.DatasetContribution{
		DatasetID: datasetID,
		UserID:    userID,
		IsActive:  true,
		Weight:    weight,
	}).Error)
}

// checkoutPayload builds a Stripe event body around a checkout session.
func checkoutPayload(t *testing.T, eventType, sessionID string, amount int64, metadata map[string]string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"id":          "evt_" + uuid.NewString(),
		"object":      "event",
		"type":        eventType,
		"api_version": "2024-06-20",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":             sessionID,
				"object":         "checkout.session",
				"amount_total":   amount,
				"currency":       "usd",
				"payment_status": "paid",
				"mode":           "payment",
				"metadata":       metadata,
			},
		},
	})
	require.NoError(t, err)
	return body
}

func sign(payload []byte) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	}).Header
}

// --- Mock SNS Publisher ---

type mockSNSPublisher struct {
	mu        sync.Mutex
	published []models.MarketplaceEvent
}

func (m *mockSNSPublisher) Publish(_ context.Context, _ string, message []byte) error {
	var evt models.MarketplaceEvent
	if err := json.Unmarshal(message, &evt); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, evt)
	return nil
}

func (m *mockSNSPublisher) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.published))
	for i, e := range m.published {
		out[i] = e.Type
	}
	return out
}

// --- Mock metrics ---

type mockMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{counts: make(map[string]int)}
}

func (m *mockMetrics) RecordCount(_ context.Context, name string, _ map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[name]++
	return nil
}

func (m *mockMetrics) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}

// --- Mock retry queue ---

type mockRetryQueue struct {
	mu    sync.Mutex
	sales []uuid.UUID
	err   error
}

func (m *mockRetryQueue) Enqueue(ctx context.Context, saleID uuid.UUID, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sales = append(m.sales, saleID)
	return nil
}

var errBoom = errors.New("boom")
