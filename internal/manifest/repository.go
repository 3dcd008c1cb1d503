package manifest

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/vinlotto-backend/pkg/clock"
	"github.com/angelmondragon/vinlotto-backend/pkg/db"
	"github.com/angelmondragon/vinlotto-backend/pkg/db/models"
)

// Claim is the set of rows tagged by a single Claim call.
type Claim struct {
	Token uuid.UUID
	Items []models.ManifestItem
}

// Len returns the number of rows claimed.
func (c Claim) Len() int { return len(c.Items) }

// Variants returns the distinct variant ids in the claim.
func (c Claim) Variants() []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, item := range c.Items {
		if _, ok := seen[item.VariantID]; ok {
			continue
		}
		seen[item.VariantID] = struct{}{}
		out = append(out, item.VariantID)
	}
	return out
}

// Repository is the gorm-backed manifest pool. Every mutation is a single
// conditional statement so concurrent runs for different orders never
// double-claim a row.
type Repository struct {
	db    *gorm.DB
	clock clock.Clock
}

// NewRepository binds a pool repository to the given connection.
func NewRepository(conn *gorm.DB, clk clock.Clock) *Repository {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Repository{db: conn, clock: clk}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx, clock: r.clock}
}

func (r *Repository) items(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.ManifestItem{})
}

// maxClaimRounds bounds how often Claim tops up a short round.
const maxClaimRounds = 5

// Claim tags up to n free rows of the offer with orderID, lowest sort key
// first, and returns the rows actually claimed. On postgres the candidate
// rows are locked with FOR UPDATE, so a claim waits for a concurrent rekey
// instead of skipping its rows. Rows lost to a concurrent claim are topped
// up under the same token until the pool has no free rows left.
func (r *Repository) Claim(ctx context.Context, offerID uuid.UUID, orderID string, n int) (Claim, error) {
	token := uuid.New()
	claim := Claim{Token: token}
	if n <= 0 {
		return claim, nil
	}

	var got int64
	for round := 0; round < maxClaimRounds && got < int64(n); round++ {
		affected, err := r.claimRound(ctx, offerID, orderID, token, n-int(got))
		if err != nil {
			return Claim{}, err
		}
		if affected == 0 {
			break
		}
		got += affected
	}
	if got == 0 {
		return claim, nil
	}
	if err := r.items(ctx).
		Where("claim_token = ?", token).
		Order("sort_key ASC").
		Order("id ASC").
		Find(&claim.Items).Error; err != nil {
		return Claim{}, fmt.Errorf("load claimed items: %w", err)
	}
	return claim, nil
}

func (r *Repository) claimRound(ctx context.Context, offerID uuid.UUID, orderID string, token uuid.UUID, n int) (int64, error) {
	candidates := r.items(ctx).
		Select("id").
		Where("offer_id = ? AND claimed_by IS NULL", offerID).
		Order("sort_key ASC").
		Order("id ASC").
		Limit(n)
	if db.IsPostgres(r.db) {
		candidates = candidates.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	res := r.items(ctx).
		Where("id IN (?) AND claimed_by IS NULL", candidates).
		Updates(map[string]any{
			"claimed_by":  orderID,
			"claim_token": token,
			"claimed_at":  r.clock.Now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("claim manifest items: %w", res.Error)
	}
	return res.RowsAffected, nil
}

var releasedColumns = map[string]any{
	"claimed_by":  nil,
	"claim_token": nil,
	"claimed_at":  nil,
}

// ReleaseClaim frees every row tagged by a previous Claim call.
func (r *Repository) ReleaseClaim(ctx context.Context, token uuid.UUID) (int64, error) {
	res := r.items(ctx).
		Where("claim_token = ? AND claimed_by IS NOT NULL", token).
		Updates(releasedColumns)
	if res.Error != nil {
		return 0, fmt.Errorf("release claim %s: %w", token, res.Error)
	}
	return res.RowsAffected, nil
}

// Release frees up to n rows held by orderID, lowest sort key first.
func (r *Repository) Release(ctx context.Context, offerID uuid.UUID, orderID string, n int) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	held := r.items(ctx).
		Select("id").
		Where("offer_id = ? AND claimed_by = ?", offerID, orderID).
		Order("sort_key ASC").
		Order("id ASC").
		Limit(n)
	res := r.items(ctx).
		Where("id IN (?) AND claimed_by = ?", held, orderID).
		Updates(releasedColumns)
	if res.Error != nil {
		return 0, fmt.Errorf("release manifest items: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ReleaseAll frees every row of the offer held by orderID.
func (r *Repository) ReleaseAll(ctx context.Context, offerID uuid.UUID, orderID string) (int64, error) {
	res := r.items(ctx).
		Where("offer_id = ? AND claimed_by = ?", offerID, orderID).
		Updates(releasedColumns)
	if res.Error != nil {
		return 0, fmt.Errorf("release all manifest items: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// FreeItemIDs lists the offer's free rows in claim order.
func (r *Repository) FreeItemIDs(ctx context.Context, offerID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.items(ctx).
		Where("offer_id = ? AND claimed_by IS NULL", offerID).
		Order("sort_key ASC").
		Order("id ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list free items: %w", err)
	}
	return ids, nil
}

// maxRekeyBatch keeps each rekey statement well under driver parameter limits.
const maxRekeyBatch = 1000

// Rekey assigns ordered[i] the sort key i+1 with one conditional UPDATE per
// batch, so free rows are only locked for the span of a single statement.
// Rows claimed in the meantime are skipped by the claimed_by condition.
func (r *Repository) Rekey(ctx context.Context, offerID uuid.UUID, ordered []uuid.UUID) (int64, error) {
	var updated int64
	for start := 0; start < len(ordered); start += maxRekeyBatch {
		end := min(start+maxRekeyBatch, len(ordered))
		n, err := r.rekeyBatch(ctx, offerID, ordered[start:end], start)
		if err != nil {
			return updated, fmt.Errorf("rekey free items: %w", err)
		}
		updated += n
	}
	return updated, nil
}

func (r *Repository) rekeyBatch(ctx context.Context, offerID uuid.UUID, ids []uuid.UUID, offset int) (int64, error) {
	var sql strings.Builder
	args := make([]any, 0, len(ids)*2)
	sql.WriteString("CASE id")
	for i, id := range ids {
		sql.WriteString(" WHEN ? THEN ?")
		args = append(args, id, float64(offset+i+1))
	}
	sql.WriteString(" ELSE sort_key END")

	target := r.items(ctx).
		Select("id").
		Where("offer_id = ? AND claimed_by IS NULL AND id IN ?", offerID, ids)
	if db.IsPostgres(r.db) {
		// Same lock order as Claim.
		target = target.Order("sort_key ASC").Order("id ASC").Clauses(clause.Locking{Strength: "UPDATE"})
	}
	res := r.items(ctx).
		Where("id IN (?) AND claimed_by IS NULL", target).
		Update("sort_key", gorm.Expr(sql.String(), args...))
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// FreeVariants returns the distinct variants still free in the offer's pool.
func (r *Repository) FreeVariants(ctx context.Context, offerID uuid.UUID) ([]string, error) {
	var variants []string
	if err := r.items(ctx).
		Where("offer_id = ? AND claimed_by IS NULL", offerID).
		Distinct().
		Order("variant_id").
		Pluck("variant_id", &variants).Error; err != nil {
		return nil, fmt.Errorf("list free variants: %w", err)
	}
	return variants, nil
}

type variantCount struct {
	VariantID string
	Count     int
}

// ClaimedVariantCounts groups the rows held by orderID across the given
// offers by variant.
func (r *Repository) ClaimedVariantCounts(ctx context.Context, orderID string, offerIDs ...uuid.UUID) (map[string]int, error) {
	out := map[string]int{}
	if len(offerIDs) == 0 {
		return out, nil
	}
	var rows []variantCount
	if err := r.items(ctx).
		Select("variant_id, COUNT(*) AS count").
		Where("offer_id IN ? AND claimed_by = ?", offerIDs, orderID).
		Group("variant_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count claimed variants: %w", err)
	}
	for _, row := range rows {
		out[row.VariantID] = row.Count
	}
	return out, nil
}

// CountClaimed returns how many rows of the offer orderID holds.
func (r *Repository) CountClaimed(ctx context.Context, offerID uuid.UUID, orderID string) (int, error) {
	var count int64
	if err := r.items(ctx).
		Where("offer_id = ? AND claimed_by = ?", offerID, orderID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count claimed items: %w", err)
	}
	return int(count), nil
}

// OffersClaimedBy returns the offers in which orderID holds at least one row.
func (r *Repository) OffersClaimedBy(ctx context.Context, orderID string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.items(ctx).
		Where("claimed_by = ?", orderID).
		Distinct().
		Pluck("offer_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list offers claimed by order: %w", err)
	}
	return ids, nil
}

// DistinctVariants returns every variant present in the given offers' pools.
func (r *Repository) DistinctVariants(ctx context.Context, offerIDs ...uuid.UUID) ([]string, error) {
	if len(offerIDs) == 0 {
		return nil, nil
	}
	var variants []string
	if err := r.items(ctx).
		Where("offer_id IN ?", offerIDs).
		Distinct().
		Order("variant_id").
		Pluck("variant_id", &variants).Error; err != nil {
		return nil, fmt.Errorf("list pool variants: %w", err)
	}
	return variants, nil
}

// Counts returns the total and free row counts for one (offer, variant) pair.
func (r *Repository) Counts(ctx context.Context, offerID uuid.UUID, variantID string) (total int, free int, err error) {
	row := r.items(ctx).
		Select("COUNT(*), COALESCE(SUM(CASE WHEN claimed_by IS NULL THEN 1 ELSE 0 END), 0)").
		Where("offer_id = ? AND variant_id = ?", offerID, variantID).
		Row()
	if err := row.Scan(&total, &free); err != nil {
		return 0, 0, fmt.Errorf("count pool rows: %w", err)
	}
	return total, free, nil
}

// MaxSortKey returns the highest sort key in the offer's pool, 0 when empty.
func (r *Repository) MaxSortKey(ctx context.Context, offerID uuid.UUID) (float64, error) {
	var max float64
	row := r.items(ctx).
		Select("COALESCE(MAX(sort_key), 0)").
		Where("offer_id = ?", offerID).
		Row()
	if err := row.Scan(&max); err != nil {
		return 0, fmt.Errorf("max sort key: %w", err)
	}
	return max, nil
}

// AppendFree inserts n free rows whose sort keys continue after startAfter.
func (r *Repository) AppendFree(ctx context.Context, offerID uuid.UUID, variantID string, n int, startAfter float64, source *string) error {
	if n <= 0 {
		return nil
	}
	rows := make([]models.ManifestItem, 0, n)
	for i := 1; i <= n; i++ {
		rows = append(rows, models.ManifestItem{
			OfferID:   offerID,
			VariantID: variantID,
			SortKey:   startAfter + float64(i),
			Source:    source,
		})
	}
	if err := r.db.WithContext(ctx).CreateInBatches(&rows, 500).Error; err != nil {
		return fmt.Errorf("append manifest items: %w", err)
	}
	return nil
}

// DeleteFree removes up to n free rows of the pair, highest sort key first.
func (r *Repository) DeleteFree(ctx context.Context, offerID uuid.UUID, variantID string, n int) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	victims := r.items(ctx).
		Select("id").
		Where("offer_id = ? AND variant_id = ? AND claimed_by IS NULL", offerID, variantID).
		Order("sort_key DESC").
		Order("id DESC").
		Limit(n)
	res := r.db.WithContext(ctx).
		Where("id IN (?) AND claimed_by IS NULL", victims).
		Delete(&models.ManifestItem{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete free manifest items: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CountClaimedInOffer returns how many rows of the offer are claimed by any order.
func (r *Repository) CountClaimedInOffer(ctx context.Context, offerID uuid.UUID) (int, error) {
	var count int64
	if err := r.items(ctx).
		Where("offer_id = ? AND claimed_by IS NOT NULL", offerID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count claimed items in offer: %w", err)
	}
	return int(count), nil
}

// DeleteFreeInOffer removes every free row of the offer.
func (r *Repository) DeleteFreeInOffer(ctx context.Context, offerID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("offer_id = ? AND claimed_by IS NULL", offerID).
		Delete(&models.ManifestItem{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete free items in offer: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ClaimingOrders returns the orders holding at least one row of the offer.
func (r *Repository) ClaimingOrders(ctx context.Context, offerID uuid.UUID) ([]string, error) {
	var orders []string
	if err := r.items(ctx).
		Where("offer_id = ? AND claimed_by IS NOT NULL", offerID).
		Distinct().
		Order("claimed_by").
		Pluck("claimed_by", &orders).Error; err != nil {
		return nil, fmt.Errorf("list claiming orders: %w", err)
	}
	return orders, nil
}
