package controllers

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/vinlotto-backend/pkg/db/models"
)

type eventView struct {
	RunID     string          `json:"run_id"`
	Sequence  int             `json:"sequence"`
	Source    string          `json:"source"`
	Kind      string          `json:"kind"`
	Message   string          `json:"message"`
	Context   json.RawMessage `json:"context,omitempty"`
	ElapsedMS int64           `json:"elapsed_ms"`
	CreatedAt time.Time       `json:"created_at"`
}

func newEventView(e models.ProcessingEvent) eventView {
	return eventView{
		RunID:     e.RunID.String(),
		Sequence:  e.Sequence,
		Source:    string(e.Source),
		Kind:      string(e.Kind),
		Message:   e.Message,
		Context:   e.Context,
		ElapsedMS: e.ElapsedMS,
		CreatedAt: e.CreatedAt,
	}
}
