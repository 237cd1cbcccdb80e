package notify

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"teaser/internal/httputil"
	"teaser/internal/logging"
	"teaser/pkg/rworker"
)

type ProvideFn func(shutdownCh chan<- error) (Manager, error)

const UserAgent = "TEASER/0.1"

// Event is one finalized early classification decision.
type Event struct {
	SessionID string    `json:"sessionId"`
	Instance  int       `json:"instance"`
	Class     string    `json:"class"`
	Probas    []float64 `json:"probas"`
	Point     int       `json:"point"`
	Length    int       `json:"length"`
	CreatedAt time.Time `json:"createdAt"`
}

type request struct {
	Events []Event `json:"events"`
}

type Options struct {
	maxConcurrentRequest int
	requestTimeout       time.Duration
	notifyInterval       time.Duration
	targets              Targets
}

type Option func(*manager)

func WithMaxConcurrentRequest(n int) Option {
	return func(o *manager) {
		o.opts.maxConcurrentRequest = n
	}
}

func WithInterval(t time.Duration) Option {
	return func(o *manager) {
		o.opts.notifyInterval = t
	}
}

func WithTargets(m Targets) Option {
	return func(o *manager) {
		o.opts.targets = m
	}
}

type Notifier interface {
	Notify(events ...Event)
}

type Manager interface {
	Notifier
	Run(context.Context) error
	Stop()
}

func New(shutdownCh chan<- error, opts ...Option) (*manager, error) {
	m := &manager{
		shutdownCh: shutdownCh,
		clients:    map[string]*http.Client{},
	}
	m.opts.maxConcurrentRequest = 16
	m.opts.requestTimeout = 10 * time.Second
	m.opts.notifyInterval = 5 * time.Second
	for _, f := range opts {
		f(m)
	}
	for _, target := range m.opts.targets {
		if _, ok := m.clients[target.URL]; !ok {
			client, err := httputil.NewClientFromConfig(target.HTTPConfig, true)
			if err != nil {
				return nil, fmt.Errorf("unable create client for target %s: %v", target.URL, err)
			}
			m.clients[target.URL] = client
		}
	}
	return m, nil
}

type manager struct {
	mtx  sync.Mutex
	opts Options

	clients    map[string]*http.Client
	buf        []Event
	shutdownCh chan<- error
	cancel     func()
}

// Notify queues decision events for delivery on the next flush.
func (m *manager) Notify(events ...Event) {
	if len(m.opts.targets) == 0 {
		return
	}
	m.mtx.Lock()
	m.buf = append(m.buf, events...)
	m.mtx.Unlock()
}

func (m *manager) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	go func() {
		defer func() {
			m.flush(context.Background())
			m.shutdownCh <- nil
		}()
		ticker := time.NewTicker(m.opts.notifyInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.flush(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (m *manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *manager) flush(ctx context.Context) {
	m.mtx.Lock()
	if len(m.buf) == 0 {
		m.mtx.Unlock()
		return
	}
	events := make([]Event, len(m.buf))
	copy(events, m.buf)
	m.buf = m.buf[:0]
	m.mtx.Unlock()

	logger := logging.FromContext(ctx)
	wg := sync.WaitGroup{}
	errCh := make(chan error, 1)
	rateCh := make(chan struct{}, m.opts.maxConcurrentRequest)
	for _, target := range m.opts.targets {
		target := target
		rworker.Job(&wg, func() error {
			if err := m.post(ctx, target, events); err != nil {
				return fmt.Errorf("notify target %s: %w", target.URL, err)
			}
			return nil
		}, rateCh, errCh)
	}
	wg.Wait()
	close(rateCh)
	select {
	case err := <-errCh:
		logger.Errorf("notify manager error: %v", err)
	default:
	}
}

func (m *manager) post(ctx context.Context, target Target, events []Event) error {
	body, err := json.Marshal(request{Events: events})
	if err != nil {
		return fmt.Errorf("encoding request error: %w", err)
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return fmt.Errorf("gzip write error: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("gzip close error: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.opts.requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "POST", target.URL, &buf)
	if err != nil {
		return fmt.Errorf("creating request error: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Add("User-Agent", UserAgent)

	resp, err := m.clients[target.URL].Do(req)
	if err != nil {
		return fmt.Errorf("sending request error: %w", err)
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("failed to drain response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("response was not 200 OK: %d", resp.StatusCode)
	}
	return nil
}
