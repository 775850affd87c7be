package services_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/glivermore2025/getsovrn-site/models"
	"github.com/glivermore2025/getsovrn-site/repository"
	"github.com/glivermore2025/getsovrn-site/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newCatalogService(db *gorm.DB) services.CatalogService {
	return services.NewCatalogService(repository.NewGormCatalogRepository(db), repository.NewGormPurchaseRepository(db), testLogger())
}

func TestCatalogService_CreateAndListListings(t *testing.T) {
	db := newTestDB(t)
	svc := newCatalogService(db)
	ctx := context.Background()

	created, svcErr := svc.CreateListing(ctx, "seller-1", &models.CreateListingRequest{
		Title:      "  Commute traces ",
		PriceCents: 1200,
		Currency:   "EUR",
		FilePath:   "uploads/commute.csv",
	})
	require.Nil(t, svcErr)
	assert.Equal(t, "Commute traces", created.Title)
	assert.Equal(t, "eur", created.Currency)
	assert.Equal(t, "seller-1", created.SellerID)

	_, svcErr = svc.CreateListing(ctx, "seller-2", &models.CreateListingRequest{Title: "Other", PriceCents: 1, FilePath: "other.csv"})
	require.Nil(t, svcErr)

	all, svcErr := svc.ListListings(ctx, "")
	require.Nil(t, svcErr)
	assert.Len(t, all, 2)

	mine, svcErr := svc.ListListings(ctx, "seller-1")
	require.Nil(t, svcErr)
	require.Len(t, mine, 1)
	assert.Equal(t, created.ID, mine[0].ID)

	none, svcErr := svc.ListListings(ctx, "seller-3")
	require.Nil(t, svcErr)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestCatalogService_CreateListingRejectsBadInput(t *testing.T) {
	svc := newCatalogService(newTestDB(t))

	for _, req := range []*models.CreateListingRequest{
		{Title: "x", PriceCents: 1, FilePath: "/etc/passwd"},
		{Title: "x", PriceCents: 1, FilePath: "../secret.csv"},
		{Title: "x", PriceCents: 1, FilePath: "a/../../b.csv"},
		{Title: "   ", PriceCents: 1, FilePath: "ok.csv"},
	} {
		_, svcErr := svc.CreateListing(context.Background(), "seller-1", req)
		require.NotNil(t, svcErr, req.FilePath)
		assert.Equal(t, http.StatusBadRequest, svcErr.StatusCode)
	}
}

func TestCatalogService_ListDatasetsActiveOnly(t *testing.T) {
	db := newTestDB(t)
	active := seedDataset(t, db)
	retired := seedDataset(t, db)
	require.NoError(t, db.Model(retired).Update("is_active", false).Error)

	datasets, svcErr := newCatalogService(db).ListDatasets(context.Background())
	require.Nil(t, svcErr)
	require.Len(t, datasets, 1)
	assert.Equal(t, active.ID, datasets[0].ID)
}

func TestCatalogService_ListPurchases(t *testing.T) {
	f := newReconcilerFixture(t)
	listing := seedListing(t, f.db, "seller-1")
	ds := seedDataset(t, f.db)

	listingPayload := checkoutPayload(t, models.EventCheckoutCompleted, "cs_hist_listing", 2500, map[string]string{
		"type": "listing", "listing_id": listing.ID.String(), "user_id": "buyer-1",
	})
	datasetPayload := checkoutPayload(t, models.EventCheckoutCompleted, "cs_hist_dataset", 900, datasetMeta(ds.ID, "1"))
	for _, p := range [][]byte{listingPayload, datasetPayload} {
		_, err := f.deliver(t, p)
		require.NoError(t, err)
	}

	svc := newCatalogService(f.db)
	history, svcErr := svc.ListPurchases(context.Background(), "buyer-1")
	require.Nil(t, svcErr)
	require.Len(t, history.Listings, 1)
	assert.Equal(t, listing.ID, history.Listings[0].ListingID)
	assert.Equal(t, listing.Title, history.Listings[0].Title)
	require.Len(t, history.Datasets, 1)
	assert.Equal(t, ds.ID, history.Datasets[0].DatasetID)

	empty, svcErr := svc.ListPurchases(context.Background(), "nobody")
	require.Nil(t, svcErr)
	assert.NotNil(t, empty.Listings)
	assert.Empty(t, empty.Datasets)
}
