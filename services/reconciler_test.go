package services_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/glivermore2025/getsovrn-site/models"
	aws_pkg "github.com/glivermore2025/getsovrn-site/pkg/aws"
	"github.com/glivermore2025/getsovrn-site/repository"
	"github.com/glivermore2025/getsovrn-site/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type reconcilerFixture struct {
	db         *gorm.DB
	reconciler services.PurchaseReconciler
	sns        *mockSNSPublisher
	metrics    *mockMetrics
	retry      *mockRetryQueue
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()
	db := newTestDB(t)
	f := &reconcilerFixture{
		db:      db,
		sns:     &mockSNSPublisher{},
		metrics: newMockMetrics(),
		retry:   &mockRetryQueue{},
	}
	purchases := repository.NewGormPurchaseRepository(db)
	allocator := services.NewRevenueAllocator(purchases, repository.NewGormAllocationRepository(db), f.sns, testTopicArn, f.metrics, testLogger())
	f.reconciler = f.build(purchases, allocator)
	return f
}

func (f *reconcilerFixture) build(repo repository.PurchaseRepository, allocator services.RevenueAllocator) services.PurchaseReconciler {
	return services.NewPurchaseReconciler(newVerifier(), repo, allocator, f.retry, f.sns, testTopicArn, f.metrics, testLogger())
}

func (f *reconcilerFixture) deliver(t *testing.T, payload []byte) (*services.ReconcileResult, error) {
	t.Helper()
	return f.reconciler.Reconcile(context.Background(), payload, sign(payload))
}

func count(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func balanceOf(t *testing.T, db *gorm.DB, userID string) int64 {
	t.Helper()
	var b models.UserBalance
	err := db.Where("user_id = ? AND currency = ?", userID, "usd").First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0
	}
	require.NoError(t, err)
	return b.BalanceCents
}

func datasetMeta(datasetID uuid.UUID, quantity string) map[string]string {
	return map[string]string{
		"type":       "dataset",
		"dataset_id": datasetID.String(),
		"user_id":    "buyer-1",
		"quantity":   quantity,
	}
}

func TestReconcile_DatasetSaleAllocatesByWeight(t *testing.T) {
	f := newReconcilerFixture(t)
	ds := seedDataset(t, f.db)
	seedContributor(t, f.db, ds.ID, "alice", 1)
	seedContributor(t, f.db, ds.ID, "bob", 3)

	payload := checkoutPayload(t, models.EventCheckoutCompleted, "cs_scenario_a", 900, datasetMeta(ds.ID, "2"))
	result, err := f.deliver(t, payload)
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeRecorded, result.Outcome)
	assert.Equal(t, models.PurchaseTypeDataset, result.Type)
	require.NotNil(t, result.Allocation)
	assert.Equal(t, services.AllocationCompleted, result.Allocation.Status)

	var sale models.DatasetSale
	require.NoError(t, f.db.First(&sale).Error)
	assert.Equal(t, int64(900), sale.GrossCents)
	assert.Equal(t, 2, sale.Quantity)
	assert.Equal(t, result.RecordID, sale.ID)

	assert.Equal(t, int64(225), balanceOf(t, f.db, "alice"))
	assert.Equal(t, int64(675), balanceOf(t, f.db, "bob"))
	assert.Equal(t, int64(2), count(t, f.db, &models.RevenueShare{}))

	assert.Equal(t, []string{services.EventDatasetSaleRecorded, services.EventRevenueAllocated}, f.sns.types())
	assert.Equal(t, 1, f.metrics.count(aws_pkg.MetricDatasetSalesRecorded))
	assert.Equal(t, 1, f.metrics.count(aws_pkg.MetricAllocationsCompleted))
}

func TestReconcile_ReplayIsNoOp(t *testing.T) {
	f := newReconcilerFixture(t)
	ds := seedDataset(t, f.db)
	seedContributor(t, f.db, ds.ID, "alice", 1)
	seedContributor(t, f.db, ds.ID, "bob", 3)

	payload := checkoutPayload(t, models.EventCheckoutCompleted, "cs_scenario_b", 900, datasetMeta(ds.ID, "1"))
	_, err := f.deliver(t, payload)
	require.NoError(t, err)

	result, err := f.deliver(t, payload)
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeDuplicate, result.Outcome)
	require.NotNil(t, result.Allocation)
	assert.Equal(t, services.AllocationAlreadyDone, result.Allocation.Status)

	assert.Equal(t, int64(1), count(t, f.db, &models.DatasetSale{}))
	assert.Equal(t, int64(1), count(t, f.db, &models.AllocationBatch{}))
	assert.Equal(t, int64(2), count(t, f.db, &models.RevenueShare{}))
	assert.Equal(t, int64(225), balanceOf(t, f.db, "alice"))
	assert.Equal(t, int64(675), balanceOf(t, f.db, "bob"))
	assert.Equal(t, 1, f.metrics.count(aws_pkg.MetricWebhookDuplicates))
}

func TestReconcile_MissingItemIDsIsMalformed(t *testing.T) {
	f := newReconcilerFixture(t)
	payload := checkoutPayload(t, models.EventCheckoutCompleted, "cs_scenario_c", 900, map[string]string{"user_id": "buyer-1"})

	_, err := f.deliver(t, payload)
	require.Error(t, err)
	var malformed *services.MalformedEventError
	assert.True(t, errors.As(err, &malformed))
	assert.Equal(t, http.StatusBadRequest, services.StatusCode(err))
	assert.Equal(t, int64(0), count(t, f.db, &models.Purchase{}))
	assert.Equal(t, int64(0), count(t, f.db, &models.DatasetSale{}))
}

func TestReconcile_ListingPurchaseWritesLedger(t *testing.T) {
	f := newReconcilerFixture(t)
	listing := seedListing(t, f.db, "seller-1")
	payload := checkoutPayload(t, models.EventCheckoutCompleted, "cs_listing", 2500, map[string]string{
		"type":       "listing",
		"listing_id": listing.ID.String(),
		"user_id":    "buyer-1",
	})

	result, err := f.deliver(t, payload)
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeRecorded, result.Outcome)
	assert.Nil(t, result.Allocation)

	var entry models.LedgerEntry
	require.NoError(t, f.db.First(&entry).Error)
	assert.Equal(t, int64(2500), entry.AmountCents)
	assert.Equal(t, "buyer-1", entry.BuyerID)
	assert.Equal(t, "cs_listing", entry.SessionID)
	assert.Equal(t, []string{services.EventPurchaseRecorded}, f.sns.types())

	again, err := f.deliver(t, payload)
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeDuplicate, again.Outcome)
	assert.Equal(t, result.RecordID, again.RecordID)
	assert.Equal(t, int64(1), count(t, f.db, &models.Purchase{}))
	assert.Equal(t, int64(1), count(t, f.db, &models.LedgerEntry{}))
}

func TestReconcile_SequentialRedeliveries(t *testing.T) {
	f := newReconcilerFixture(t)
	ds := seedDataset(t, f.db)
	seedContributor(t, f.db, ds.ID, "alice", 2)
	payload := checkoutPayload(t, models.EventCheckoutCompleted, "cs_seq", 1001, datasetMeta(ds.ID, "1"))

	for i := 0; i < 10; i++ {
		_, err := f.deliver(t, payload)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), count(t, f.db, &models.DatasetSale{}))
	assert.Equal(t, int64(1), count(t, f.db, &models.RevenueShare{}))
	assert.Equal(t, int64(1001), balanceOf(t, f.db, "alice"))
}

// The sqlite pool has a single connection, so these deliveries interleave
// between statements but never inside a transaction. The row-level race on
// the unique indexes is covered against Postgres in the integration package.
func TestReconcile_ConcurrentRedeliveries(t *testing.T) {
	f := newReconcilerFixture(t)
	listing := seedListing(t, f.db, "seller-1")
	ds := seedDataset(t, f.db)
	seedContributor(t, f.db, ds.ID, "alice", 1)
	seedContributor(t, f.db, ds.ID, "bob", 1)

	listingPayload := checkoutPayload(t, models.EventCheckoutCompleted, "cs_conc_listing", 2500, map[string]string{
		"type": "listing", "listing_id": listing.ID.String(), "user_id": "buyer-1",
	})
	datasetPayload := checkoutPayload(t, models.EventCheckoutCompleted, "cs_conc_dataset", 901, datasetMeta(ds.ID, "1"))

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for i := 0; i < n; i++ {
		for _, p := range [][]byte{listingPayload, datasetPayload} {
			wg.Add(1)
			go func(p []byte) {
				defer wg.Done()
				_, err := f.reconciler.Reconcile(context.Background(), p, sign(p))
				errs <- err
			}(p)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	assert.Equal(t, int64(1), count(t, f.db, &models.Purchase{}))
	assert.Equal(t, int64(1), count(t, f.db, &models.LedgerEntry{}))
	assert.Equal(t, int64(1), count(t, f.db, &models.DatasetSale{}))
	assert.Equal(t, int64(1), count(t, f.db, &models.AllocationBatch{}))
	assert.Equal(t, int64(901), balanceOf(t, f.db, "alice")+balanceOf(t, f.db, "bob"))
}

func TestReconcile_EmptyPoolIsNotAnError(t *testing.T) {
	f := newReconcilerFixture(t)
	ds := seedDataset(t, f.db)
	payload := checkoutPayload(t, models.EventCheckoutCompleted, "cs_empty", 900, datasetMeta(ds.ID, "1"))

	result, err := f.deliver(t, payload)
	require.NoError(t, err)
	require.NotNil(t, result.Allocation)
	assert.Equal(t, services.AllocationNoContributors, result.Allocation.Status)
	assert.Empty(t, f.retry.sales)
	assert.Equal(t, 0, f.metrics.count(aws_pkg.MetricAllocationFailures))
}

func TestReconcile_RejectsBadSignatureWithoutWriting(t *testing.T) {
	f := newReconcilerFixture(t)
	listing := seedListing(t, f.db, "seller-1")
	payload := checkoutPayload(t, models.EventCheckoutCompleted, "cs_forged", 2500, map[string]string{
		"type": "listing", "listing_id": listing.ID.String(), "user_id": "buyer-1",
	})

	_, err := f.reconciler.Reconcile(context.Background(), payload, "t=1,v1=deadbeef")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, services.StatusCode(err))
	assert.Equal(t, int64(0), count(t, f.db, &models.Purchase{}))
	assert.Equal(t, 1, f.metrics.count(aws_pkg.MetricWebhookRejected))
}

func TestReconcile_IgnoredEvents(t *testing.T) {
	f := newReconcilerFixture(t)
	ds := seedDataset(t, f.db)

	other := checkoutPayload(t, "checkout.session.expired", "cs_expired", 900, datasetMeta(ds.ID, "1"))
	result, err := f.deliver(t, other)
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeIgnored, result.Outcome)

	unpaid := bytes.Replace(
		checkoutPayload(t, models.EventCheckoutCompleted, "cs_unpaid", 900, datasetMeta(ds.ID, "1")),
		[]byte(`"payment_status":"paid"`), []byte(`"payment_status":"unpaid"`), 1)
	result, err = f.deliver(t, unpaid)
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeIgnored, result.Outcome)

	assert.Equal(t, int64(0), count(t, f.db, &models.DatasetSale{}))

	async := checkoutPayload(t, models.EventCheckoutAsyncPaymentSucceeded, "cs_unpaid", 900, datasetMeta(ds.ID, "1"))
	result, err = f.deliver(t, async)
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeRecorded, result.Outcome)
	assert.Equal(t, int64(1), count(t, f.db, &models.DatasetSale{}))
}

// --- Failure injection ---

type failingPurchaseRepo struct {
	repository.PurchaseRepository
}

func (failingPurchaseRepo) RecordListingPurchase(context.Context, *models.Purchase, *models.LedgerEntry) (bool, error) {
	return false, errBoom
}

func (failingPurchaseRepo) RecordDatasetSale(context.Context, *models.DatasetSale) (bool, error) {
	return false, errBoom
}

type failingAllocator struct {
	calls int
}

func (a *failingAllocator) Allocate(_ context.Context, saleID uuid.UUID) (*services.AllocationResult, error) {
	a.calls++
	return nil, &services.AllocationError{SaleID: saleID, Err: errBoom}
}

func TestReconcile_PersistenceFailureAsksForRedelivery(t *testing.T) {
	f := newReconcilerFixture(t)
	reconciler := f.build(failingPurchaseRepo{}, &failingAllocator{})

	for _, meta := range []map[string]string{
		{"type": "listing", "listing_id": uuid.NewString(), "user_id": "buyer-1"},
		datasetMeta(uuid.New(), "1"),
	} {
		payload := checkoutPayload(t, models.EventCheckoutCompleted, "cs_fail_"+meta["type"], 900, meta)
		_, err := reconciler.Reconcile(context.Background(), payload, sign(payload))
		require.Error(t, err)
		var persistErr *services.PersistenceError
		assert.True(t, errors.As(err, &persistErr))
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, http.StatusInternalServerError, services.StatusCode(err))
	}
	assert.Empty(t, f.sns.types())
}

func TestReconcile_AllocationFailureIsAcknowledgedAndQueued(t *testing.T) {
	f := newReconcilerFixture(t)
	ds := seedDataset(t, f.db)
	allocator := &failingAllocator{}
	reconciler := f.build(repository.NewGormPurchaseRepository(f.db), allocator)

	payload := checkoutPayload(t, models.EventCheckoutCompleted, "cs_alloc_fail", 900, datasetMeta(ds.ID, "1"))
	result, err := reconciler.Reconcile(context.Background(), payload, sign(payload))
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeRecorded, result.Outcome)
	assert.Nil(t, result.Allocation)
	assert.Equal(t, []uuid.UUID{result.RecordID}, f.retry.sales)
	assert.Equal(t, 1, f.metrics.count(aws_pkg.MetricAllocationFailures))

	// Redelivery retries the allocation for the existing sale.
	_, err = reconciler.Reconcile(context.Background(), payload, sign(payload))
	require.NoError(t, err)
	assert.Equal(t, 2, allocator.calls)
	assert.Len(t, f.retry.sales, 2)
}

// cancellingAllocator fails the way an allocator does when the request
// deadline passes mid-allocation.
type cancellingAllocator struct {
	cancel context.CancelFunc
}

func (a *cancellingAllocator) Allocate(ctx context.Context, saleID uuid.UUID) (*services.AllocationResult, error) {
	a.cancel()
	return nil, &services.AllocationError{SaleID: saleID, Err: ctx.Err()}
}

func TestReconcile_TimedOutAllocationIsStillQueued(t *testing.T) {
	f := newReconcilerFixture(t)
	ds := seedDataset(t, f.db)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reconciler := f.build(repository.NewGormPurchaseRepository(f.db), &cancellingAllocator{cancel: cancel})

	payload := checkoutPayload(t, models.EventCheckoutCompleted, "cs_timeout", 900, datasetMeta(ds.ID, "1"))
	result, err := reconciler.Reconcile(ctx, payload, sign(payload))
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeRecorded, result.Outcome)
	require.Error(t, ctx.Err())
	assert.Equal(t, []uuid.UUID{result.RecordID}, f.retry.sales)
	assert.Equal(t, int64(0), count(t, f.db, &models.AllocationBatch{}))
}

func TestReconcile_BalancesSeparateCurrencies(t *testing.T) {
	f := newReconcilerFixture(t)
	ds := seedDataset(t, f.db)
	seedContributor(t, f.db, ds.ID, "alice", 1)

	usd := checkoutPayload(t, models.EventCheckoutCompleted, "cs_usd", 900, datasetMeta(ds.ID, "1"))
	jpy := bytes.Replace(
		checkoutPayload(t, models.EventCheckoutCompleted, "cs_jpy", 900, datasetMeta(ds.ID, "1")),
		[]byte(`"currency":"usd"`), []byte(`"currency":"jpy"`), 1)
	for _, p := range [][]byte{usd, jpy} {
		_, err := f.deliver(t, p)
		require.NoError(t, err)
	}

	balances, err := repository.NewGormAllocationRepository(f.db).ListBalances(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, "jpy", balances[0].Currency)
	assert.Equal(t, int64(900), balances[0].BalanceCents)
	assert.Equal(t, "usd", balances[1].Currency)
	assert.Equal(t, int64(900), balances[1].BalanceCents)
}

func TestReconcile_AllocationRecoversOnRedelivery(t *testing.T) {
	f := newReconcilerFixture(t)
	ds := seedDataset(t, f.db)
	seedContributor(t, f.db, ds.ID, "alice", 1)
	purchases := repository.NewGormPurchaseRepository(f.db)
	payload := checkoutPayload(t, models.EventCheckoutCompleted, "cs_recover", 900, datasetMeta(ds.ID, "1"))

	broken := f.build(purchases, &failingAllocator{})
	_, err := broken.Reconcile(context.Background(), payload, sign(payload))
	require.NoError(t, err)
	assert.Equal(t, int64(0), balanceOf(t, f.db, "alice"))

	result, err := f.deliver(t, payload)
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeDuplicate, result.Outcome)
	require.NotNil(t, result.Allocation)
	assert.Equal(t, services.AllocationCompleted, result.Allocation.Status)
	assert.Equal(t, int64(900), balanceOf(t, f.db, "alice"))
}
