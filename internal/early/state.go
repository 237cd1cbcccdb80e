package early

import (
	"time"

	"teaser/pkg/math/vector"
)

// InstanceState is the per instance record persisted across streaming
// calls. Index refers to the position within the batch of the first
// stateful call.
type InstanceState struct {
	Index     int       `json:"index"`
	Probas    vector.V  `json:"probas"`
	Class     string    `json:"class"`
	Closed    bool      `json:"closed"`
	ClosedAt  int       `json:"closedAt"`
	LastPoint int       `json:"lastPoint"`
	Streak    int       `json:"streak"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// State is the streaming bookkeeping of one classifier session.
type State struct {
	Length  int             `json:"length"`
	Records []InstanceState `json:"records"`
}

func (s State) Total() int {
	return len(s.Records)
}

// OpenIndices returns the original indices of instances still open,
// in ascending order.
func (s State) OpenIndices() []int {
	var open []int
	for i := range s.Records {
		if !s.Records[i].Closed {
			open = append(open, s.Records[i].Index)
		}
	}
	return open
}

func (s State) Copy() State {
	out := State{Length: s.Length, Records: make([]InstanceState, len(s.Records))}
	copy(out.Records, s.Records)
	for i := range out.Records {
		out.Records[i].Probas = s.Records[i].Probas.Copy()
	}
	return out
}
