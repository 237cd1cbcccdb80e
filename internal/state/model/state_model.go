package model

import (
	"time"

	"github.com/google/uuid"

	"teaser/internal/early"
)

// Chunk is a slice of freshly observed timepoints for one instance of
// a streaming session, channels by timepoints.
type Chunk struct {
	ID        uuid.UUID   `json:"id"`
	SessionID string      `json:"sessionId"`
	Instance  int         `json:"instance"`
	Values    [][]float64 `json:"values"`
	CreatedAt time.Time   `json:"createdAt"`
}

func NewChunk(sessionID string, instance int, values [][]float64, createdAt time.Time) Chunk {
	return Chunk{
		ID:        uuid.New(),
		SessionID: sessionID,
		Instance:  instance,
		Values:    values,
		CreatedAt: createdAt,
	}
}

// Snapshot is the persisted state of one streaming session. Buffered
// counts observed timepoints keyed by instance index, which may be
// sparse before the session starts.
type Snapshot struct {
	SessionID string      `json:"sessionId"`
	State     early.State `json:"state"`
	Buffered  map[int]int `json:"buffered"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// ModelInfo is the registry row describing the fitted model the
// service is currently serving.
type ModelInfo struct {
	ID       uuid.UUID `json:"id"`
	Dataset  string    `json:"dataset"`
	Classes  []string  `json:"classes"`
	Points   []int     `json:"points"`
	FittedAt time.Time `json:"fittedAt"`
}
