package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/vinlotto-backend/api/responses"
	"github.com/angelmondragon/vinlotto-backend/api/validators"
	"github.com/angelmondragon/vinlotto-backend/internal/processing"
	"github.com/angelmondragon/vinlotto-backend/pkg/db/models"
	"github.com/angelmondragon/vinlotto-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vinlotto-backend/pkg/errors"
	"github.com/angelmondragon/vinlotto-backend/pkg/logger"
)

// OrderProcessor runs one reconciliation of an order.
type OrderProcessor interface {
	ProcessOrder(ctx context.Context, trigger processing.Trigger) (processing.Result, error)
}

// EventLister reads an order's processing trace.
type EventLister interface {
	ListByOrder(ctx context.Context, orderID string, limit int) ([]models.ProcessingEvent, error)
}

type ProcessOrderBody struct {
	ForceRepick bool   `json:"force_repick"`
	Operator    string `json:"operator" validate:"required_if=ForceRepick true,max=255"`
}

// ProcessOrder triggers a run on behalf of an operator. Skipped runs answer
// 202 so callers can retry once the other run finishes.
func ProcessOrder(proc OrderProcessor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
		if orderID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order id is required"))
			return
		}

		var body ProcessOrderBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithOrderID(r.Context(), orderID)
		result, err := proc.ProcessOrder(ctx, processing.Trigger{
			OrderID:     orderID,
			Source:      enums.TriggerSourceOperator,
			ForceRepick: body.ForceRepick,
			Operator:    validators.SanitizeString(body.Operator, 255),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if result.Outcome == processing.OutcomeSkipped {
			responses.WriteAccepted(w, result)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// OrderEvents returns the newest trace lines of an order.
func OrderEvents(lister EventLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
		if orderID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order id is required"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 100, 1, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := lister.ListByOrder(r.Context(), orderID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list processing events"))
			return
		}
		out := make([]eventView, 0, len(list))
		for _, event := range list {
			out = append(out, newEventView(event))
		}
		responses.WriteSuccess(w, map[string]any{"order_id": orderID, "events": out})
	}
}
