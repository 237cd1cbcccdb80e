package stream

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"teaser/internal/database"
	"teaser/internal/early"
	"teaser/internal/estimator"
	"teaser/internal/notify"
	"teaser/internal/series"
	"teaser/internal/state/model"
	"teaser/pkg/math/vector"
)

type stubNotifier struct {
	events []notify.Event
}

func (s *stubNotifier) Notify(events ...notify.Event) {
	s.events = append(s.events, events...)
}

func (s *stubNotifier) Run(context.Context) error { return nil }
func (s *stubNotifier) Stop()                     {}

func testClassifierFn() (*early.Classifier, error) {
	return &early.Classifier{}, nil
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewFromEnv(context.Background(), &database.Config{
		FileName: filepath.Join(t.TempDir(), "stream.db"),
	})
	if err != nil {
		t.Fatalf("unable to open test db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close(context.Background())
	})
	return db
}

// trendEstimator classifies by the sign of the first observed value.
type trendEstimator struct {
	classes []string
}

func (e *trendEstimator) Fit(_ context.Context, _ series.Batch, y []string) error {
	seen := map[string]struct{}{}
	for _, label := range y {
		seen[label] = struct{}{}
	}
	e.classes = make([]string, 0, len(seen))
	for label := range seen {
		e.classes = append(e.classes, label)
	}
	sort.Strings(e.classes)
	return nil
}

func (e *trendEstimator) PredictProba(_ context.Context, x series.Batch) ([]vector.V, error) {
	out := make([]vector.V, 0, len(x))
	for _, s := range x {
		if s[0][0] >= 0 {
			out = append(out, vector.V{0.1, 0.9})
		} else {
			out = append(out, vector.V{0.9, 0.1})
		}
	}
	return out, nil
}

func (e *trendEstimator) Classes() []string { return e.classes }

type acceptAllOneClass struct {
	points int
}

func (o *acceptAllOneClass) Fit(points []vector.V) error {
	o.points = len(points)
	return nil
}

func (o *acceptAllOneClass) Accept(vector.V) (bool, error) { return true, nil }
func (o *acceptAllOneClass) Len() int                      { return o.points }
func (o *acceptAllOneClass) Reset()                        { o.points = 0 }

// fittedClassifierFn trains a classifier on a rising "up" and a falling
// "down" instance, length 9, checkpoints 3/6/9, closing on one accept.
func fittedClassifierFn(t *testing.T) ProvideClassifierFn {
	t.Helper()

	cls, err := early.New(
		early.WithClassificationPoints([]int{3, 6}),
		early.WithConsecutive(1),
		early.WithEstimator(func() (estimator.ProbaEstimator, error) {
			return &trendEstimator{}, nil
		}),
		early.WithOneClass(func() (estimator.OneClass, error) {
			return &acceptAllOneClass{}, nil
		}),
	)
	if err != nil {
		t.Fatalf("unable to create classifier: %v", err)
	}

	train := series.Batch{
		series.New([][]float64{{1, 2, 3, 4, 5, 6, 7, 8, 9}}),
		series.New([][]float64{{-1, -2, -3, -4, -5, -6, -7, -8, -9}}),
	}
	if err := cls.Fit(context.Background(), train, []string{"up", "down"}); err != nil {
		t.Fatalf("unable to fit classifier: %v", err)
	}
	return func() (*early.Classifier, error) {
		return cls, nil
	}
}

func TestManagerNew(t *testing.T) {
	tests := []struct {
		name        string
		classifier  ProvideClassifierFn
		notifier    notify.Manager
		expectedErr bool
	}{
		{
			name:       "positive_new",
			classifier: testClassifierFn,
			notifier:   &stubNotifier{},
		},
		{
			name:        "nil_notifier",
			classifier:  testClassifierFn,
			notifier:    nil,
			expectedErr: true,
		},
		{
			name:        "nil_classifier",
			classifier:  nil,
			notifier:    &stubNotifier{},
			expectedErr: true,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			shutdownCh := make(chan error, 1)
			_, err := New(&database.DB{}, test.classifier, test.notifier, shutdownCh)
			if test.expectedErr && err == nil {
				t.Errorf("calling the New method, err got: nil, expected an error")
			}
			if !test.expectedErr && err != nil {
				t.Errorf("calling the New method, err got: %v, expected: nil", err)
			}
		})
	}
}

func TestManagerIngestToClosure(t *testing.T) {
	ctx := context.Background()
	notifier := &stubNotifier{}
	shutdownCh := make(chan error, 2)
	m, err := New(newTestDB(t), fittedClassifierFn(t), notifier, shutdownCh, WithDBFlushSize(64))
	if err != nil {
		t.Fatal(err)
	}

	// both instances short of the first checkpoint, no decision yet
	if err := m.process(ctx, model.NewChunk("session-1", 0, [][]float64{{1, 2}}, time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := m.process(ctx, model.NewChunk("session-1", 1, [][]float64{{-1, -2}}, time.Now())); err != nil {
		t.Fatal(err)
	}
	if len(notifier.events) != 0 {
		t.Fatalf("no checkpoint is reachable with 2 timepoints, events got: %d", len(notifier.events))
	}

	// instance 0 reaches the checkpoint, instance 1 still holds it back
	if err := m.process(ctx, model.NewChunk("session-1", 0, [][]float64{{3}}, time.Now())); err != nil {
		t.Fatal(err)
	}
	if len(notifier.events) != 0 {
		t.Fatalf("the checkpoint must wait for every open instance, events got: %d", len(notifier.events))
	}

	if err := m.process(ctx, model.NewChunk("session-1", 1, [][]float64{{-3}}, time.Now())); err != nil {
		t.Fatal(err)
	}

	if len(notifier.events) != 2 {
		t.Fatalf("both instances must close at the first checkpoint, events got: %d", len(notifier.events))
	}
	for _, event := range notifier.events {
		expected := "up"
		if event.Instance == 1 {
			expected = "down"
		}
		if event.SessionID != "session-1" || event.Class != expected || event.Point != 3 {
			t.Errorf("closure event got: %+v, expected instance %d closed at point 3 as %q", event, event.Instance, expected)
		}
	}

	snapshot, err := m.Snapshot(ctx, "session-1")
	if err != nil {
		t.Fatalf("calling the Snapshot method, err got: %v, expected: nil", err)
	}
	if snapshot.State.Total() != 2 {
		t.Fatalf("session state got: %+v, expected 2 instances", snapshot.State)
	}
	for i, record := range snapshot.State.Records {
		if !record.Closed || record.ClosedAt != 3 {
			t.Errorf("instance %d must be closed at point 3, got: %+v", i, record)
		}
	}
	if snapshot.Buffered[0] != 3 || snapshot.Buffered[1] != 3 {
		t.Errorf("buffered counts got: %+v, expected 3 timepoints per instance", snapshot.Buffered)
	}
	if len(m.dbTxExecutor.buf) != 1 {
		t.Errorf("the session snapshot must be queued for the bulk save, buffer length got: %d", len(m.dbTxExecutor.buf))
	}
}

func TestManagerSnapshotDuringIngest(t *testing.T) {
	ctx := context.Background()
	m, err := New(newTestDB(t), fittedClassifierFn(t), &stubNotifier{}, make(chan error, 2), WithDBFlushSize(64))
	if err != nil {
		t.Fatal(err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_, _ = m.Snapshot(ctx, "session-1")
			}
		}
	}()

	for i := 0; i < 9; i++ {
		chunk := model.NewChunk("session-1", 0, [][]float64{{float64(i + 1)}}, time.Now())
		if err := m.process(ctx, chunk); err != nil {
			t.Fatal(err)
		}
	}
	close(stop)
	wg.Wait()

	snapshot, err := m.Snapshot(ctx, "session-1")
	if err != nil {
		t.Fatal(err)
	}
	if snapshot.Buffered[0] != 9 {
		t.Errorf("buffered count got: %+v, expected 9 timepoints", snapshot.Buffered)
	}
	if len(snapshot.State.Records) != 1 || !snapshot.State.Records[0].Closed {
		t.Errorf("the single instance must close, state got: %+v", snapshot.State)
	}
}

func TestManagerSnapshotSparseBuffers(t *testing.T) {
	ctx := context.Background()
	m, err := New(newTestDB(t), fittedClassifierFn(t), &stubNotifier{}, make(chan error, 2), WithDBFlushSize(64))
	if err != nil {
		t.Fatal(err)
	}

	if err := m.process(ctx, model.NewChunk("session-1", 0, [][]float64{{1, 2}}, time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := m.process(ctx, model.NewChunk("session-1", 5, [][]float64{{-1, -2, -3}}, time.Now())); err != nil {
		t.Fatal(err)
	}

	snapshot, err := m.Snapshot(ctx, "session-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(snapshot.Buffered) != 2 || snapshot.Buffered[0] != 2 || snapshot.Buffered[5] != 3 {
		t.Errorf("buffered counts must be keyed by instance index, got: %+v", snapshot.Buffered)
	}
	if snapshot.State.Total() != 0 {
		t.Errorf("a sparse instance set must not start the session, state got: %+v", snapshot.State)
	}
}

func TestManagerCollectAfterClose(t *testing.T) {
	shutdownCh := make(chan error, 1)
	m, err := New(&database.DB{}, testClassifierFn, &stubNotifier{}, shutdownCh)
	if err != nil {
		t.Fatal(err)
	}

	m.mtx.Lock()
	m.closed = true
	m.mtx.Unlock()

	if err := m.Collect(model.NewChunk("session-1", 0, [][]float64{{1}}, time.Now())); err == nil {
		t.Errorf("collect on a shut down manager must return an error")
	}
}

func TestManagerCollectShuttingDown(t *testing.T) {
	shutdownCh := make(chan error, 1)
	m, err := New(&database.DB{}, testClassifierFn, &stubNotifier{}, shutdownCh)
	if err != nil {
		t.Fatal(err)
	}

	// occupy the channel buffer so the next send would block
	m.collectCh <- model.NewChunk("session-1", 0, [][]float64{{1}}, time.Now())
	close(m.done)

	if err := m.Collect(model.NewChunk("session-1", 0, [][]float64{{2}}, time.Now())); err == nil {
		t.Errorf("collect must not block once the collector is gone")
	}
}
