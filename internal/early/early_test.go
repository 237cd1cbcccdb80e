package early

import (
	"context"
	"errors"
	"math"
	"sort"
	"testing"

	"teaser/internal/estimator"
	"teaser/internal/series"
	"teaser/pkg/math/vector"
)

// stubEstimator classifies by the sign of the first value: rising
// series are up, falling series are down.
type stubEstimator struct {
	classes []string
}

func (s *stubEstimator) Fit(_ context.Context, _ series.Batch, y []string) error {
	seen := map[string]struct{}{}
	for _, label := range y {
		if _, ok := seen[label]; !ok {
			seen[label] = struct{}{}
			s.classes = append(s.classes, label)
		}
	}
	sort.Strings(s.classes)
	return nil
}

func (s *stubEstimator) PredictProba(_ context.Context, x series.Batch) ([]vector.V, error) {
	out := make([]vector.V, x.Len())
	for i := range x {
		if x[i][0][0] >= 0 {
			out[i] = vector.V{0.1, 0.9}
		} else {
			out[i] = vector.V{0.9, 0.1}
		}
	}
	return out, nil
}

func (s *stubEstimator) Classes() []string { return s.classes }

type stubOneClass struct {
	acceptFn func(p vector.V) bool
	fitted   int
}

func (s *stubOneClass) Fit(points []vector.V) error {
	s.fitted = len(points)
	return nil
}

func (s *stubOneClass) Accept(p vector.V) (bool, error) {
	if s.acceptFn == nil {
		return true, nil
	}
	return s.acceptFn(p), nil
}

func (s *stubOneClass) Len() int { return s.fitted }
func (s *stubOneClass) Reset()   { s.fitted = 0 }

// twoInstanceBatch is one rising up instance and one falling down
// instance, a single channel of nine timepoints.
func twoInstanceBatch() (series.Batch, []string) {
	up := make([]float64, 9)
	down := make([]float64, 9)
	for i := range up {
		up[i] = float64(i + 1)
		down[i] = -float64(i + 1)
	}
	x := series.Batch{
		series.New([][]float64{up}),
		series.New([][]float64{down}),
	}
	return x, []string{"up", "down"}
}

func newStubClassifier(t *testing.T, consecutive int, acceptFn func(p vector.V) bool) *Classifier {
	t.Helper()
	cls, err := New(
		WithClassificationPoints([]int{3, 6}),
		WithConsecutive(consecutive),
		WithEstimator(func() (estimator.ProbaEstimator, error) {
			return &stubEstimator{}, nil
		}),
		WithOneClass(func() (estimator.OneClass, error) {
			return &stubOneClass{acceptFn: acceptFn}, nil
		}),
	)
	if err != nil {
		t.Fatalf("calling the New method, err got: %v, expected: nil", err)
	}
	return cls
}

func TestClassifierFit(t *testing.T) {
	x, y := twoInstanceBatch()
	cls := newStubClassifier(t, 2, nil)

	if err := cls.Fit(context.Background(), x, y); err != nil {
		t.Fatalf("calling the Fit method, err got: %v, expected: nil", err)
	}

	points := cls.Points()
	if len(points) != 3 || points[0] != 3 || points[1] != 6 || points[2] != 9 {
		t.Errorf("the full length must be the final checkpoint, points got: %v, expected: [3 6 9]", points)
	}
	classes := cls.Classes()
	if len(classes) != 2 || classes[0] != "down" || classes[1] != "up" {
		t.Errorf("classes got: %v, expected: [down up]", classes)
	}
}

func TestClassifierNotFitted(t *testing.T) {
	x, _ := twoInstanceBatch()
	cls := newStubClassifier(t, 2, nil)

	if _, _, err := cls.PredictProba(context.Background(), x); !errors.Is(err, ErrNotFitted) {
		t.Errorf("calling the PredictProba method, err got: %v, expected: %v", err, ErrNotFitted)
	}
	if _, _, err := cls.UpdatePredictProba(context.Background(), x); !errors.Is(err, ErrNotFitted) {
		t.Errorf("calling the UpdatePredictProba method, err got: %v, expected: %v", err, ErrNotFitted)
	}
}

func TestClassifierBadPoints(t *testing.T) {
	x, y := twoInstanceBatch()
	tests := []struct {
		name   string
		points []int
	}{
		{name: "not_ascending", points: []int{6, 3}},
		{name: "too_small", points: []int{1, 6}},
		{name: "over_length", points: []int{3, 12}},
		{name: "duplicate", points: []int{3, 3}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cls, err := New(
				WithClassificationPoints(test.points),
				WithEstimator(func() (estimator.ProbaEstimator, error) {
					return &stubEstimator{}, nil
				}),
			)
			if err != nil {
				t.Fatal(err)
			}
			if err := cls.Fit(context.Background(), x, y); !errors.Is(err, ErrBadPoints) {
				t.Errorf("calling the Fit method, err got: %v, expected: %v", err, ErrBadPoints)
			}
		})
	}
}

func TestUpdatePredictProbaStreak(t *testing.T) {
	x, y := twoInstanceBatch()
	cls := newStubClassifier(t, 2, nil)
	if err := cls.Fit(context.Background(), x, y); err != nil {
		t.Fatal(err)
	}

	prefix3, _ := x.Prefix(3)
	_, decisions, err := cls.UpdatePredictProba(context.Background(), prefix3)
	if err != nil {
		t.Fatalf("calling the UpdatePredictProba method, err got: %v, expected: nil", err)
	}
	for i, d := range decisions {
		if d {
			t.Errorf("instance %d closed after a single agreeing checkpoint, expected to stay open", i)
		}
	}

	prefix6, _ := x.Prefix(6)
	_, decisions, err = cls.UpdatePredictProba(context.Background(), prefix6)
	if err != nil {
		t.Fatalf("calling the UpdatePredictProba method, err got: %v, expected: nil", err)
	}
	for i, d := range decisions {
		if !d {
			t.Errorf("instance %d must close after two agreeing checkpoints", i)
		}
	}

	state := cls.State()
	for i := range state.Records {
		rec := state.Records[i]
		if !rec.Closed || rec.ClosedAt != 6 || rec.Streak != 2 {
			t.Errorf("record %d got: %+v, expected closed at 6 with streak 2", i, rec)
		}
	}
	if len(state.OpenIndices()) != 0 {
		t.Errorf("open indices got: %v, expected: none", state.OpenIndices())
	}
}

func TestUpdatePredictProbaRegression(t *testing.T) {
	x, y := twoInstanceBatch()
	cls := newStubClassifier(t, 3, nil)
	if err := cls.Fit(context.Background(), x, y); err != nil {
		t.Fatal(err)
	}

	prefix3, _ := x.Prefix(3)
	if _, _, err := cls.UpdatePredictProba(context.Background(), prefix3); err != nil {
		t.Fatal(err)
	}
	if _, _, err := cls.UpdatePredictProba(context.Background(), prefix3); !errors.Is(err, ErrPrefixRegression) {
		t.Errorf("a repeated prefix must be rejected, err got: %v, expected: %v", err, ErrPrefixRegression)
	}

	// a longer prefix that still maps to the same checkpoint is a
	// regression too
	prefix4, _ := x.Prefix(4)
	if _, _, err := cls.UpdatePredictProba(context.Background(), prefix4); !errors.Is(err, ErrPrefixRegression) {
		t.Errorf("a same checkpoint prefix must be rejected, err got: %v, expected: %v", err, ErrPrefixRegression)
	}
}

func TestUpdatePredictProbaFinalPointCloses(t *testing.T) {
	x, y := twoInstanceBatch()
	// the safety estimator rejects everything
	cls := newStubClassifier(t, 3, func(vector.V) bool { return false })
	if err := cls.Fit(context.Background(), x, y); err != nil {
		t.Fatal(err)
	}

	_, decisions, err := cls.UpdatePredictProba(context.Background(), x)
	if err != nil {
		t.Fatal(err)
	}
	for i, d := range decisions {
		if !d {
			t.Errorf("instance %d must close unconditionally at the full length", i)
		}
	}
	state := cls.State()
	for i := range state.Records {
		if state.Records[i].ClosedAt != 9 {
			t.Errorf("record %d closed at %d, expected: 9", i, state.Records[i].ClosedAt)
		}
	}
}

func TestUpdatePredictProbaClosedNeverMutated(t *testing.T) {
	x, y := twoInstanceBatch()
	// accept only up probas, so the falling instance stays open
	cls := newStubClassifier(t, 1, func(p vector.V) bool { return p[1] > p[0] })
	if err := cls.Fit(context.Background(), x, y); err != nil {
		t.Fatal(err)
	}

	prefix3, _ := x.Prefix(3)
	_, decisions, err := cls.UpdatePredictProba(context.Background(), prefix3)
	if err != nil {
		t.Fatal(err)
	}
	if !decisions[0] || decisions[1] {
		t.Fatalf("decisions got: %v, expected: [true false]", decisions)
	}
	closedRec := cls.State().Records[0]

	// the batch must now carry only the open instance
	if _, _, err := cls.UpdatePredictProba(context.Background(), prefix3); !errors.Is(err, ErrStateMismatch) {
		t.Fatalf("a full batch against a reduced open set, err got: %v, expected: %v", err, ErrStateMismatch)
	}

	openOnly, err := x.Select(cls.State().OpenIndices())
	if err != nil {
		t.Fatal(err)
	}
	prefix6, _ := openOnly.Prefix(6)
	if _, _, err := cls.UpdatePredictProba(context.Background(), prefix6); err != nil {
		t.Fatal(err)
	}
	prefix9, _ := openOnly.Prefix(9)
	_, decisions, err = cls.UpdatePredictProba(context.Background(), prefix9)
	if err != nil {
		t.Fatal(err)
	}
	if !decisions[0] {
		t.Errorf("the last open instance must close at the full length")
	}

	state := cls.State()
	if state.Records[0].ClosedAt != closedRec.ClosedAt ||
		state.Records[0].Class != closedRec.Class ||
		state.Records[0].UpdatedAt != closedRec.UpdatedAt {
		t.Errorf("a closed record was mutated by later calls: %+v, expected: %+v", state.Records[0], closedRec)
	}
	if state.Records[1].ClosedAt != 9 || state.Records[1].Class != "down" {
		t.Errorf("record 1 got: %+v, expected closed at 9 as down", state.Records[1])
	}
}

func TestResetState(t *testing.T) {
	x, y := twoInstanceBatch()
	cls := newStubClassifier(t, 1, nil)
	if err := cls.Fit(context.Background(), x, y); err != nil {
		t.Fatal(err)
	}

	prefix3, _ := x.Prefix(3)
	if _, _, err := cls.UpdatePredictProba(context.Background(), prefix3); err != nil {
		t.Fatal(err)
	}
	if cls.State().Total() != 2 {
		t.Fatalf("state total got: %v, expected: 2", cls.State().Total())
	}

	cls.ResetState()
	if cls.State().Total() != 0 {
		t.Errorf("state total after reset got: %v, expected: 0", cls.State().Total())
	}
	// a fresh run fixes a new instance count
	single, _ := x.Select([]int{0})
	singlePrefix, _ := single.Prefix(3)
	if _, _, err := cls.UpdatePredictProba(context.Background(), singlePrefix); err != nil {
		t.Fatal(err)
	}
	if cls.State().Total() != 1 {
		t.Errorf("state total got: %v, expected: 1", cls.State().Total())
	}
}

func TestCloneSharesModelNotState(t *testing.T) {
	x, y := twoInstanceBatch()
	cls := newStubClassifier(t, 1, nil)
	if err := cls.Fit(context.Background(), x, y); err != nil {
		t.Fatal(err)
	}

	prefix3, _ := x.Prefix(3)
	if _, _, err := cls.UpdatePredictProba(context.Background(), prefix3); err != nil {
		t.Fatal(err)
	}

	clone := cls.Clone()
	if clone.State().Total() != 0 {
		t.Errorf("a clone must start with empty state, total got: %v", clone.State().Total())
	}
	if _, _, err := clone.UpdatePredictProba(context.Background(), prefix3); err != nil {
		t.Errorf("a clone must classify independently, err got: %v", err)
	}
	if cls.State().Total() != 2 || clone.State().Total() != 2 {
		t.Errorf("states must not be shared between clones")
	}
}

func TestScore(t *testing.T) {
	x, y := twoInstanceBatch()
	// the up instance is accepted at the first checkpoint, the down
	// instance runs to the full length
	cls := newStubClassifier(t, 1, func(p vector.V) bool { return p[1] > p[0] })
	if err := cls.Fit(context.Background(), x, y); err != nil {
		t.Fatal(err)
	}

	hm, acc, earliness, err := cls.Score(context.Background(), x, y)
	if err != nil {
		t.Fatalf("calling the Score method, err got: %v, expected: nil", err)
	}
	if acc != 1 {
		t.Errorf("accuracy got: %v, expected: 1", acc)
	}
	expectedEarliness := (3.0/9.0 + 1.0) / 2
	if math.Abs(earliness-expectedEarliness) > 1e-9 {
		t.Errorf("earliness got: %v, expected: %v", earliness, expectedEarliness)
	}
	if math.Abs(hm-0.5) > 1e-9 {
		t.Errorf("harmonic mean got: %v, expected: 0.5", hm)
	}
}

func TestNormalizePoints(t *testing.T) {
	tests := []struct {
		name        string
		points      []int
		num         int
		length      int
		expected    []int
		expectedErr error
	}{
		{name: "append_final", points: []int{3, 6}, length: 9, expected: []int{3, 6, 9}},
		{name: "keep_final", points: []int{3, 9}, length: 9, expected: []int{3, 9}},
		{name: "spaced", num: 3, length: 9, expected: []int{3, 6, 9}},
		{name: "spaced_skips_short", num: 10, length: 10, expected: []int{3, 4, 5, 6, 7, 8, 9, 10}},
		{name: "not_ascending", points: []int{6, 3}, length: 9, expectedErr: ErrBadPoints},
		{name: "out_of_range", points: []int{2}, length: 9, expectedErr: ErrBadPoints},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := normalizePoints(test.points, test.num, test.length)
			if !errors.Is(err, test.expectedErr) {
				t.Fatalf("calling normalizePoints, err got: %v, expected: %v", err, test.expectedErr)
			}
			if err != nil {
				return
			}
			if len(got) != len(test.expected) {
				t.Fatalf("points got: %v, expected: %v", got, test.expected)
			}
			for i := range got {
				if got[i] != test.expected[i] {
					t.Errorf("points got: %v, expected: %v", got, test.expected)
				}
			}
		})
	}
}
