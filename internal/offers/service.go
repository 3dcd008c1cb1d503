package offers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vinlotto-backend/internal/manifest"
	"github.com/angelmondragon/vinlotto-backend/pkg/clock"
	"github.com/angelmondragon/vinlotto-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/vinlotto-backend/pkg/errors"
)

const dealVariantConstraint = "offers_deal_variant_id_key"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the offer lifecycle.
type Service struct {
	tx       txRunner
	repo     *Repository
	items    *manifest.Repository
	clock    clock.Clock
	validate *validator.Validate
}

func NewService(tx txRunner, repo *Repository, items *manifest.Repository, clk clock.Clock) (*Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("offer repository required")
	}
	if items == nil {
		return nil, fmt.Errorf("manifest repository required")
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Service{tx: tx, repo: repo, items: items, clock: clk, validate: validator.New()}, nil
}

// Create registers a new offer for a deal variant.
func (s *Service) Create(ctx context.Context, input CreateOfferInput) (*OfferDTO, error) {
	input.DealVariantID = strings.TrimSpace(input.DealVariantID)
	input.Name = strings.TrimSpace(input.Name)
	if err := s.validate.Struct(input); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid offer")
	}

	offer := input.toModel()
	if err := s.repo.Create(ctx, offer); err != nil {
		if isDealVariantConflict(err) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "an offer already exists for this deal variant")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create offer")
	}
	return FromModel(offer), nil
}

// Get loads one offer.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*OfferDTO, error) {
	offer, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return FromModel(offer), nil
}

// Archive hides the offer from further sales. Archiving twice is a no-op.
func (s *Service) Archive(ctx context.Context, id uuid.UUID) (*OfferDTO, error) {
	if _, err := s.repo.Archive(ctx, id, s.clock.Now()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "archive offer")
	}
	return s.Get(ctx, id)
}

// Delete removes the offer and its free rows. Offers with claimed rows are
// refused.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		items := s.items.WithTx(tx)

		if _, err := repo.FindByID(ctx, id); err != nil {
			return mapLookupError(err)
		}
		claimed, err := items.CountClaimedInOffer(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count claimed items")
		}
		if claimed > 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "offer still has claimed manifest items").
				WithDetails(map[string]any{"claimed": claimed})
		}
		if _, err := items.DeleteFreeInOffer(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete manifest items")
		}
		if err := repo.Delete(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete offer")
		}
		return nil
	})
}

// isDealVariantConflict matches the postgres constraint name and the column
// reference sqlite reports.
func isDealVariantConflict(err error) bool {
	return db.IsUniqueViolation(err, dealVariantConstraint) ||
		(db.IsUniqueViolation(err, "") && strings.Contains(err.Error(), "offers.deal_variant_id"))
}

func mapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "offer not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load offer")
}
