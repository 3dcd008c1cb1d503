package offers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/vinlotto-backend/internal/manifest"
	"github.com/angelmondragon/vinlotto-backend/pkg/clock"
	"github.com/angelmondragon/vinlotto-backend/pkg/db"
	"github.com/angelmondragon/vinlotto-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/vinlotto-backend/pkg/errors"
)

var testNow = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := "file:offers_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Offer{}, &models.ManifestItem{}))

	clk := clock.NewFixed(testNow)
	svc, err := NewService(db.Wrap(conn), NewRepository(conn), manifest.NewRepository(conn, clk), clk)
	require.NoError(t, err)
	return svc, conn
}

func TestCreateValidatesAndPersists(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateOfferInput{Name: "Spring Case"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	offer, err := svc.Create(ctx, CreateOfferInput{DealVariantID: " deal-1 ", Name: "Spring Case"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, offer.ID)
	assert.Equal(t, "deal-1", offer.DealVariantID)

	_, err = svc.Create(ctx, CreateOfferInput{DealVariantID: "deal-1", Name: "Duplicate"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())
}

func TestGetMissingOfferIsNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Get(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestArchiveIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	offer, err := svc.Create(ctx, CreateOfferInput{DealVariantID: "deal-1", Name: "Case"})
	require.NoError(t, err)

	archived, err := svc.Archive(ctx, offer.ID)
	require.NoError(t, err)
	assert.True(t, archived.Archived)
	require.NotNil(t, archived.ArchivedAt)

	again, err := svc.Archive(ctx, offer.ID)
	require.NoError(t, err)
	assert.True(t, again.Archived)

	_, err = svc.Archive(ctx, uuid.New())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestDeleteRefusesClaimedOffer(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	offer, err := svc.Create(ctx, CreateOfferInput{DealVariantID: "deal-1", Name: "Case"})
	require.NoError(t, err)

	owner := "order-1"
	require.NoError(t, conn.Create(&[]models.ManifestItem{
		{OfferID: offer.ID, VariantID: "A", SortKey: 1},
		{OfferID: offer.ID, VariantID: "B", SortKey: 2, ClaimedBy: &owner},
	}).Error)

	err = svc.Delete(ctx, offer.ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())

	var remaining int64
	require.NoError(t, conn.Model(&models.ManifestItem{}).Where("offer_id = ?", offer.ID).Count(&remaining).Error)
	assert.Equal(t, int64(2), remaining)
}

func TestDeleteRemovesFreeRowsAndOffer(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	offer, err := svc.Create(ctx, CreateOfferInput{DealVariantID: "deal-1", Name: "Case"})
	require.NoError(t, err)
	require.NoError(t, conn.Create(&[]models.ManifestItem{
		{OfferID: offer.ID, VariantID: "A", SortKey: 1},
		{OfferID: offer.ID, VariantID: "B", SortKey: 2},
	}).Error)

	require.NoError(t, svc.Delete(ctx, offer.ID))

	var remaining int64
	require.NoError(t, conn.Model(&models.ManifestItem{}).Where("offer_id = ?", offer.ID).Count(&remaining).Error)
	assert.Zero(t, remaining)
	_, err = svc.Get(ctx, offer.ID)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestRepositoryLookups(t *testing.T) {
	_, conn := newTestService(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	ended := testNow.Add(-96 * time.Hour)
	recent := testNow.Add(-time.Hour)
	rows := []*models.Offer{
		{DealVariantID: "deal-old", Name: "Old", SaleEndsAt: &ended},
		{DealVariantID: "deal-recent", Name: "Recent", SaleEndsAt: &recent},
		{DealVariantID: "deal-open", Name: "Open"},
	}
	for _, row := range rows {
		require.NoError(t, repo.Create(ctx, row))
	}

	found, err := repo.FindByDealVariants(ctx, []string{"deal-old", "deal-open", "unknown"})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	byID, err := repo.FindByIDs(ctx, []uuid.UUID{rows[1].ID})
	require.NoError(t, err)
	require.Len(t, byID, 1)
	assert.Equal(t, "Recent", byID[0].Name)

	archivable, err := repo.ListArchivable(ctx, testNow.Add(-72*time.Hour))
	require.NoError(t, err)
	require.Len(t, archivable, 1)
	assert.Equal(t, "deal-old", archivable[0].DealVariantID)

	none, err := repo.FindByDealVariants(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}
