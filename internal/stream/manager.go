package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"teaser/internal/cache"
	"teaser/internal/database"
	"teaser/internal/early"
	"teaser/internal/logging"
	"teaser/internal/notify"
	"teaser/internal/series"
	stateDb "teaser/internal/state/database"
	"teaser/internal/state/model"
	"teaser/internal/telemetry"
	"teaser/pkg/iqueue"
)

// ProvideClassifierFn returns the fitted classifier sessions are
// cloned from.
type ProvideClassifierFn func() (*early.Classifier, error)

// Contract for returning the Manager instance
type ProvideFn func(notify.Manager, chan<- error) (Manager, error)

// Manager is the streaming controller: it feeds growing prefixes to
// per session classifiers and tracks which instances already closed.
type Manager interface {
	Collector
	SnapshotProvider
	Run(context.Context) error
	Stop()
}

// Collector accepts observation chunks from outside and queues them.
type Collector interface {
	Collect(in ...model.Chunk) error
}

// SnapshotProvider serves session state for external bookkeeping.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, sessionID string) (model.Snapshot, error)
}

type Options struct {
	maxStoredSessions  int
	maxSessionIdleTime time.Duration
	rebuildDBTime      time.Duration
	dbFlushTime        time.Duration
	dbFlushSize        int
}

type Option func(*manager)

func WithMaxStoredSessions(n int) Option {
	return func(o *manager) {
		o.opts.maxStoredSessions = n
	}
}

func WithMaxSessionIdleTime(t time.Duration) Option {
	return func(o *manager) {
		o.opts.maxSessionIdleTime = t
	}
}

func WithRebuildDBTime(t time.Duration) Option {
	return func(o *manager) {
		o.opts.rebuildDBTime = t
	}
}

func WithDBFlushTime(t time.Duration) Option {
	return func(o *manager) {
		o.opts.dbFlushTime = t
	}
}

func WithDBFlushSize(n int) Option {
	return func(o *manager) {
		o.opts.dbFlushSize = n
	}
}

func WithCache(c *cache.Cache) Option {
	return func(o *manager) {
		o.cache = c
	}
}

// New returns the streaming manager.
func New(
	db *database.DB,
	provideClassifierFn ProvideClassifierFn,
	notifier notify.Manager,
	shutdownCh chan<- error,
	opts ...Option,
) (*manager, error) {
	if notifier == nil {
		return nil, fmt.Errorf("notifier instance is not created")
	}
	if provideClassifierFn == nil {
		return nil, fmt.Errorf("classifier factory is not created")
	}

	m := &manager{
		stateDB:             stateDb.New(db),
		collectCh:           make(chan model.Chunk, 1),
		done:                make(chan struct{}),
		shutDownCh:          shutdownCh,
		provideClassifierFn: provideClassifierFn,
		sessions:            map[string]*session{},
		queue:               map[string]*iqueue.Queue{},
		notifier:            notifier,
	}
	for _, f := range opts {
		f(m)
	}

	m.dbTxExecutor = newDBTxExecutor(m.stateDB, dbTxExecutorOptions{
		flushTime: m.opts.dbFlushTime,
		flushSize: m.opts.dbFlushSize,
	}, shutdownCh)

	m.dbScheduler = newDBScheduler(m.stateDB, dbSchedulerConfig{
		maxStoredSessions:  m.opts.maxStoredSessions,
		maxSessionIdleTime: m.opts.maxSessionIdleTime,
		rebuildDBTime:      m.opts.rebuildDBTime,
	})

	return m, nil
}

// session is the live state of one streaming classification run: a
// clone of the fitted classifier plus per instance observation buffers.
type session struct {
	// mtx guards buffers and classifier state: the receive goroutine
	// writes, Snapshot reads concurrently.
	mtx sync.RWMutex

	id  string
	cls *early.Classifier
	// buffers[instance][channel] accumulates observed timepoints
	buffers   map[int][][]float64
	updatedAt time.Time
}

type manager struct {
	mtx sync.RWMutex

	opts Options

	stateDB      *stateDb.DB
	notifier     notify.Manager
	cache        *cache.Cache
	dbTxExecutor *dbTxExecutor
	dbScheduler  *dbScheduler

	queue     map[string]*iqueue.Queue
	collectCh chan model.Chunk
	done      chan struct{}

	shutDownCh chan<- error
	closed     bool

	provideClassifierFn ProvideClassifierFn
	sessions            map[string]*session

	cancelNotifier func()
	cancel         func()
}

func (m *manager) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	c, cancel := context.WithCancel(context.Background())
	m.cancelNotifier = cancel

	go m.collector(ctx)
	go m.dbTxExecutor.flusher(ctx)
	go m.dbScheduler.schedule(ctx)

	if err := m.notifier.Run(c); err != nil {
		return fmt.Errorf("notify.Run: %w", err)
	}

	return nil
}

func (m *manager) Stop() {
	m.cancel()
}

// Collect queues observation chunks for processing.
func (m *manager) Collect(in ...model.Chunk) error {
	m.mtx.RLock()
	closed := m.closed
	m.mtx.RUnlock()
	if closed {
		return fmt.Errorf("error send to collect, shutting down")
	}
	for i := range in {
		select {
		case m.collectCh <- in[i]:
		case <-m.done:
			return fmt.Errorf("error send to collect, shutting down")
		}
	}
	return nil
}

// Snapshot answers from the live session first, then the redis mirror,
// then persistent storage.
func (m *manager) Snapshot(ctx context.Context, sessionID string) (model.Snapshot, error) {
	m.mtx.RLock()
	s, ok := m.sessions[sessionID]
	m.mtx.RUnlock()
	if ok {
		return s.snapshot(), nil
	}
	if m.cache != nil {
		snapshot, found, err := m.cache.Snapshot(ctx, sessionID)
		if err == nil && found {
			return snapshot, nil
		}
	}
	return m.stateDB.Find(sessionID)
}

func (s *session) snapshot() model.Snapshot {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.snapshotLocked()
}

func (s *session) snapshotLocked() model.Snapshot {
	buffered := make(map[int]int, len(s.buffers))
	for idx, chans := range s.buffers {
		if len(chans) > 0 {
			buffered[idx] = len(chans[0])
		}
	}
	return model.Snapshot{
		SessionID: s.id,
		State:     s.cls.State(),
		Buffered:  buffered,
		UpdatedAt: s.updatedAt,
	}
}

func (m *manager) process(ctx context.Context, chunk model.Chunk) error {
	m.mtx.Lock()
	s, ok := m.sessions[chunk.SessionID]
	if !ok {
		cls, err := m.provideClassifierFn()
		if err != nil {
			m.mtx.Unlock()
			return fmt.Errorf("can not create classifier instance: %w", err)
		}
		s = &session{id: chunk.SessionID, cls: cls.Clone(), buffers: map[int][][]float64{}}
		m.sessions[chunk.SessionID] = s
	}
	m.mtx.Unlock()

	telemetry.RecordChunk(ctx)

	s.mtx.Lock()
	if err := s.append(chunk); err != nil {
		s.mtx.Unlock()
		return fmt.Errorf("session %s: %w", chunk.SessionID, err)
	}
	if err := m.advance(ctx, s); err != nil {
		s.mtx.Unlock()
		return fmt.Errorf("session %s: %w", chunk.SessionID, err)
	}
	s.updatedAt = time.Now()
	snap := s.snapshotLocked()
	s.mtx.Unlock()

	m.dbTxExecutor.write(ctx, snap)
	if m.cache != nil {
		if err := m.cache.SetSnapshot(ctx, snap); err != nil {
			logging.FromContext(ctx).Errorf("unable to mirror session %s: %v", s.id, err)
		}
	}
	return nil
}

func (s *session) append(chunk model.Chunk) error {
	buf, ok := s.buffers[chunk.Instance]
	if !ok {
		buf = make([][]float64, len(chunk.Values))
		s.buffers[chunk.Instance] = buf
	}
	if len(buf) != len(chunk.Values) {
		return fmt.Errorf("chunk with %d channels for instance buffered with %d", len(chunk.Values), len(buf))
	}
	for c := range chunk.Values {
		buf[c] = append(buf[c], chunk.Values[c]...)
	}
	s.buffers[chunk.Instance] = buf
	return nil
}

// advance runs checkpoint decisions while every open instance has
// buffered enough observations for the next classification point.
func (m *manager) advance(ctx context.Context, s *session) error {
	logger := logging.FromContext(ctx)
	for {
		state := s.cls.State()
		open := state.OpenIndices()
		if state.Total() == 0 {
			// session not started yet: all buffered instances are open
			if !s.contiguous() {
				return nil
			}
			open = make([]int, len(s.buffers))
			for i := range open {
				open[i] = i
			}
		}
		if len(open) == 0 {
			return nil
		}

		point, ok := s.nextPoint(open)
		if !ok {
			return nil
		}

		batch := make(series.Batch, 0, len(open))
		for _, idx := range open {
			prefix := make([][]float64, len(s.buffers[idx]))
			for c := range s.buffers[idx] {
				prefix[c] = s.buffers[idx][c][:point]
			}
			batch = append(batch, series.New(prefix))
		}

		probas, decisions, err := s.cls.UpdatePredictProba(ctx, batch)
		if err != nil {
			return fmt.Errorf("unable to update predict: %w", err)
		}

		var events []notify.Event
		now := time.Now()
		for j, idx := range open {
			if !decisions[j] {
				continue
			}
			class := s.cls.Classes()[probas[j].ArgMax()]
			earliness := float64(point) / float64(s.cls.State().Length)
			telemetry.RecordClosed(ctx, earliness)
			events = append(events, notify.Event{
				SessionID: s.id,
				Instance:  idx,
				Class:     class,
				Probas:    probas[j].Points(),
				Point:     point,
				Length:    s.cls.State().Length,
				CreatedAt: now,
			})
			logger.Infof("session %s instance %d closed at point %d as %q", s.id, idx, point, class)
		}
		if len(events) > 0 {
			m.alert(events...)
		}
	}
}

// contiguous reports whether buffered instance indices form 0..n-1,
// the precondition for starting the session state.
func (s *session) contiguous() bool {
	for i := 0; i < len(s.buffers); i++ {
		if _, ok := s.buffers[i]; !ok {
			return false
		}
	}
	return len(s.buffers) > 0
}

// nextPoint returns the smallest unvisited classification point every
// open instance has buffered observations for.
func (s *session) nextPoint(open []int) (int, bool) {
	state := s.cls.State()
	last := 0
	for _, idx := range open {
		if state.Total() > idx && state.Records[idx].LastPoint > last {
			last = state.Records[idx].LastPoint
		}
	}
	for _, point := range s.cls.Points() {
		if point <= last {
			continue
		}
		for _, idx := range open {
			buf, ok := s.buffers[idx]
			if !ok || len(buf) == 0 || len(buf[0]) < point {
				return 0, false
			}
		}
		return point, true
	}
	return 0, false
}

func (m *manager) alert(in ...notify.Event) {
	m.mtx.RLock()
	if !m.closed {
		m.mtx.RUnlock()
		m.notifier.Notify(in...)
		return
	}
	m.mtx.RUnlock()
}

func (m *manager) shutdown(ctx context.Context, q *iqueue.Queue) error {
	for {
		front := q.Queue().Front()
		if front == nil {
			if !m.recvShutdown() {
				return fmt.Errorf("stream shutdown: closed num receivers not equal created")
			}
			m.cancelNotifier()
			break
		}

		if err := m.process(ctx, front.Value.(model.Chunk)); err != nil {
			return fmt.Errorf("stream shutdown: unable processed data: %w", err)
		}

		q.Queue().Remove(front)
	}
	return nil
}

func (m *manager) recvShutdown() bool {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	finishedNum, sessionsNum := 0, len(m.queue)
	for _, q := range m.queue {
		if q.Queue().Len() == 0 {
			finishedNum++
		}
	}

	return finishedNum == sessionsNum
}

// receive serializes processing per session, the classifier state is
// single writer.
func (m *manager) receive(ctx context.Context, q *iqueue.Queue) {
	logger := logging.FromContext(ctx)
	defer func() {
		m.shutDownCh <- m.shutdown(ctx, q)
	}()

	for {
		select {
		case recv, ok := <-q.Receive():
			if !ok {
				return
			}
			if err := m.process(ctx, recv.(model.Chunk)); err != nil {
				logger.Errorf("unable processed data: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (m *manager) collector(ctx context.Context) {
	for {
		select {
		case in := <-m.collectCh:
			m.mtx.Lock()
			q, ok := m.queue[in.SessionID]
			if !ok {
				q = iqueue.New()
				go q.Loop()
				go m.receive(ctx, q)
				m.queue[in.SessionID] = q
			}
			m.mtx.Unlock()
			q.Send(in)
		case <-ctx.Done():
			m.mtx.Lock()
			m.closed = true
			m.mtx.Unlock()
			close(m.done)
			return
		}
	}
}
