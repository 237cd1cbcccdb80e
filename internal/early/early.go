package early

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"teaser/internal/estimator"
	"teaser/internal/estimator/oneclass"
	"teaser/internal/series"
	"teaser/pkg/math/vector"
)

var (
	ErrNotFitted = fmt.Errorf("classifier is not fitted")
	// ErrPrefixRegression is returned when a stateful call carries a
	// prefix not longer than the one already seen for the open set.
	ErrPrefixRegression = fmt.Errorf("prefix is not longer than the last seen prefix")
	ErrStateMismatch    = fmt.Errorf("batch does not match the open instance subset")
	ErrBadPoints        = fmt.Errorf("classification points must be strictly increasing within the series length")
)

const minPoint = 3

type Option func(*Classifier)

func WithClassificationPoints(points []int) Option {
	return func(c *Classifier) {
		c.opts.points = points
	}
}

func WithNumPoints(n int) Option {
	return func(c *Classifier) {
		c.opts.numPoints = n
	}
}

func WithConsecutive(n int) Option {
	return func(c *Classifier) {
		c.opts.consecutive = n
	}
}

func WithEstimator(fn estimator.ProvideFn) Option {
	return func(c *Classifier) {
		c.opts.provideEstimator = fn
	}
}

func WithOneClass(fn estimator.OneClassProvideFn) Option {
	return func(c *Classifier) {
		c.opts.provideOneClass = fn
	}
}

type Options struct {
	points           []int
	numPoints        int
	consecutive      int
	provideEstimator estimator.ProvideFn
	provideOneClass  estimator.OneClassProvideFn
}

var defaultOptions = Options{numPoints: 20, consecutive: 3}

// New returns an early classifier over the given base estimator
// factory. A fresh base estimator and safety estimator pair is trained
// per classification point during Fit.
func New(opts ...Option) (*Classifier, error) {
	c := &Classifier{opts: defaultOptions}
	for _, f := range opts {
		f(c)
	}
	if c.opts.provideEstimator == nil {
		return nil, fmt.Errorf("unable creating classifier, base estimator factory is not set")
	}
	if c.opts.provideOneClass == nil {
		c.opts.provideOneClass = func() (estimator.OneClass, error) {
			return oneclass.New()
		}
	}
	if c.opts.consecutive < 1 {
		return nil, fmt.Errorf("unable creating classifier, consecutive %d is less than 1", c.opts.consecutive)
	}
	if c.opts.numPoints < 1 {
		return nil, fmt.Errorf("unable creating classifier, num points %d is less than 1", c.opts.numPoints)
	}
	return c, nil
}

// stage is one classification point with its trained pair.
type stage struct {
	point int
	est   estimator.ProbaEstimator
	oc    estimator.OneClass
}

type Classifier struct {
	opts Options

	stages   []stage
	classes  []string
	channels int
	length   int
	fitted   bool

	state *State
}

// Points returns the normalized classification points the classifier
// was fitted with.
func (c *Classifier) Points() []int {
	points := make([]int, len(c.stages))
	for i := range c.stages {
		points[i] = c.stages[i].point
	}
	return points
}

func (c *Classifier) Classes() []string {
	out := make([]string, len(c.classes))
	copy(out, c.classes)
	return out
}

// Clone returns a classifier sharing the fitted stages with a fresh
// streaming state. Used to run independent sessions over one model.
func (c *Classifier) Clone() *Classifier {
	return &Classifier{
		opts:     c.opts,
		stages:   c.stages,
		classes:  c.classes,
		channels: c.channels,
		length:   c.length,
		fitted:   c.fitted,
	}
}

// Fit trains a base estimator per classification point and a safety
// estimator on the probability vectors the base estimator produced for
// correctly classified training instances at that point.
func (c *Classifier) Fit(ctx context.Context, x series.Batch, y []string) error {
	if err := x.Validate(); err != nil {
		return fmt.Errorf("unable to fit: %w", err)
	}
	if err := x.ValidateLabels(y); err != nil {
		return fmt.Errorf("unable to fit: %w", err)
	}

	points, err := normalizePoints(c.opts.points, c.opts.numPoints, x.Length())
	if err != nil {
		return fmt.Errorf("unable to fit: %w", err)
	}

	stages := make([]stage, len(points))
	grp, ctx := errgroup.WithContext(ctx)
	for i := range points {
		i := i
		grp.Go(func() error {
			s, err := c.fitStage(ctx, points[i], x, y)
			if err != nil {
				return fmt.Errorf("classification point %d: %w", points[i], err)
			}
			stages[i] = s
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return fmt.Errorf("unable to fit: %w", err)
	}

	c.stages = stages
	c.classes = stages[0].est.Classes()
	c.channels = x.Channels()
	c.length = x.Length()
	c.fitted = true
	c.state = nil

	return nil
}

func (c *Classifier) fitStage(ctx context.Context, point int, x series.Batch, y []string) (stage, error) {
	est, err := c.opts.provideEstimator()
	if err != nil {
		return stage{}, fmt.Errorf("unable to create base estimator: %w", err)
	}
	prefix, err := x.Prefix(point)
	if err != nil {
		return stage{}, err
	}
	if err := est.Fit(ctx, prefix, y); err != nil {
		return stage{}, fmt.Errorf("unable to fit base estimator: %w", err)
	}

	probas, err := est.PredictProba(ctx, prefix)
	if err != nil {
		return stage{}, fmt.Errorf("unable to score training prefixes: %w", err)
	}
	classes := est.Classes()

	// the safety estimator learns what a trustworthy probability
	// vector looks like, so it is fitted on the correctly classified
	// training instances only
	var accepted []vector.V
	for i := range probas {
		if classes[probas[i].ArgMax()] == y[i] {
			accepted = append(accepted, ocFeature(probas[i]))
		}
	}
	if len(accepted) == 0 {
		for i := range probas {
			accepted = append(accepted, ocFeature(probas[i]))
		}
	}

	oc, err := c.opts.provideOneClass()
	if err != nil {
		return stage{}, fmt.Errorf("unable to create safety estimator: %w", err)
	}
	if err := oc.Fit(accepted); err != nil {
		return stage{}, fmt.Errorf("unable to fit safety estimator: %w", err)
	}

	return stage{point: point, est: est, oc: oc}, nil
}

// PredictProba is the stateless single shot variant: probabilities and
// stop decisions for the given prefixes, without consulting or mutating
// the streaming state.
func (c *Classifier) PredictProba(ctx context.Context, x series.Batch) ([]vector.V, []bool, error) {
	stageIdx, prefix, err := c.selectStage(x)
	if err != nil {
		return nil, nil, err
	}
	return c.predictStage(ctx, stageIdx, prefix)
}

// Predict is PredictProba reduced to class labels.
func (c *Classifier) Predict(ctx context.Context, x series.Batch) ([]string, []bool, error) {
	probas, decisions, err := c.PredictProba(ctx, x)
	if err != nil {
		return nil, nil, err
	}
	labels := make([]string, len(probas))
	for i := range probas {
		labels[i] = c.classes[probas[i].ArgMax()]
	}
	return labels, decisions, nil
}

// UpdatePredictProba is the stateful variant. The batch must be aligned
// to the currently open instance subset in original index order; the
// first call fixes the instance count. Already closed instances are
// never recomputed and their records are never overwritten.
func (c *Classifier) UpdatePredictProba(ctx context.Context, x series.Batch) ([]vector.V, []bool, error) {
	stageIdx, prefix, err := c.selectStage(x)
	if err != nil {
		return nil, nil, err
	}
	point := c.stages[stageIdx].point

	if c.state == nil {
		records := make([]InstanceState, x.Len())
		for i := range records {
			records[i] = InstanceState{Index: i}
		}
		c.state = &State{Length: c.length, Records: records}
	}

	open := c.state.OpenIndices()
	if len(open) != x.Len() {
		return nil, nil, fmt.Errorf("%d instances for %d open: %w", x.Len(), len(open), ErrStateMismatch)
	}
	for _, idx := range open {
		if point <= c.state.Records[idx].LastPoint {
			return nil, nil, fmt.Errorf("point %d after %d for instance %d: %w",
				point, c.state.Records[idx].LastPoint, idx, ErrPrefixRegression)
		}
	}

	probas, decisions, err := c.predictStage(ctx, stageIdx, prefix)
	if err != nil {
		return nil, nil, err
	}
	final := point == c.length
	now := time.Now()

	for j, idx := range open {
		rec := &c.state.Records[idx]
		class := c.classes[probas[j].ArgMax()]
		accepted := decisions[j]

		switch {
		case accepted && rec.Class == class && rec.Streak > 0:
			rec.Streak++
		case accepted:
			rec.Streak = 1
		default:
			rec.Streak = 0
		}

		rec.Probas = probas[j].Copy()
		rec.Class = class
		rec.LastPoint = point
		rec.UpdatedAt = now

		closed := final || rec.Streak >= c.opts.consecutive
		if closed {
			rec.Closed = true
			rec.ClosedAt = point
		}
		decisions[j] = closed
	}

	return probas, decisions, nil
}

// UpdatePredict is UpdatePredictProba reduced to class labels.
func (c *Classifier) UpdatePredict(ctx context.Context, x series.Batch) ([]string, []bool, error) {
	probas, decisions, err := c.UpdatePredictProba(ctx, x)
	if err != nil {
		return nil, nil, err
	}
	labels := make([]string, len(probas))
	for i := range probas {
		labels[i] = c.classes[probas[i].ArgMax()]
	}
	return labels, decisions, nil
}

// ResetState clears the streaming state to the initial condition.
func (c *Classifier) ResetState() {
	c.state = nil
}

// State returns a snapshot of the streaming state for external
// bookkeeping.
func (c *Classifier) State() State {
	if c.state == nil {
		return State{Length: c.length}
	}
	return c.state.Copy()
}

// Score runs a full streaming pass over the batch and returns the
// harmonic mean together with accuracy and earliness.
func (c *Classifier) Score(ctx context.Context, x series.Batch, y []string) (float64, float64, float64, error) {
	if !c.fitted {
		return 0, 0, 0, ErrNotFitted
	}
	if err := x.Validate(); err != nil {
		return 0, 0, 0, fmt.Errorf("unable to score: %w", err)
	}
	if err := x.ValidateLabels(y); err != nil {
		return 0, 0, 0, fmt.Errorf("unable to score: %w", err)
	}
	if x.Length() != c.length {
		return 0, 0, 0, fmt.Errorf("unable to score: fitted on length %d, got %d", c.length, x.Length())
	}

	c.ResetState()
	open := make([]int, x.Len())
	for i := range open {
		open[i] = i
	}
	cur := x

	for _, s := range c.stages {
		if len(open) == 0 {
			break
		}
		prefix, err := cur.Prefix(s.point)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("unable to score: %w", err)
		}
		_, decisions, err := c.UpdatePredictProba(ctx, prefix)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("unable to score: %w", err)
		}
		cur, open, _, err = SplitAndFilter(cur, open, decisions)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("unable to score: %w", err)
		}
	}

	return HarmonicMean(c.State(), y)
}

func (c *Classifier) predictStage(ctx context.Context, stageIdx int, x series.Batch) ([]vector.V, []bool, error) {
	s := c.stages[stageIdx]
	probas, err := s.est.PredictProba(ctx, x)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to predict at point %d: %w", s.point, err)
	}
	final := s.point == c.length
	decisions := make([]bool, len(probas))
	for i := range probas {
		if final {
			decisions[i] = true
			continue
		}
		ok, err := s.oc.Accept(ocFeature(probas[i]))
		if err != nil {
			return nil, nil, fmt.Errorf("unable to judge probas at point %d: %w", s.point, err)
		}
		decisions[i] = ok
	}
	return probas, decisions, nil
}

// selectStage picks the largest classification point not exceeding the
// prefix length and truncates the batch to it.
func (c *Classifier) selectStage(x series.Batch) (int, series.Batch, error) {
	if !c.fitted {
		return 0, nil, ErrNotFitted
	}
	if err := x.Validate(); err != nil {
		return 0, nil, fmt.Errorf("unable to predict: %w", err)
	}
	if x.Channels() != c.channels {
		return 0, nil, fmt.Errorf("unable to predict: fitted on %d channels, got %d", c.channels, x.Channels())
	}
	n := x.Length()
	stageIdx := -1
	for i := range c.stages {
		if c.stages[i].point <= n {
			stageIdx = i
		}
	}
	if stageIdx < 0 {
		return 0, nil, fmt.Errorf("prefix %d is shorter than the first classification point %d", n, c.stages[0].point)
	}
	prefix, err := x.Prefix(c.stages[stageIdx].point)
	if err != nil {
		return 0, nil, fmt.Errorf("unable to predict: %w", err)
	}
	return stageIdx, prefix, nil
}

// ocFeature is the safety estimator input: the probability vector
// extended with the margin between the two largest probabilities.
func ocFeature(probas vector.V) vector.V {
	out := make(vector.V, 0, len(probas)+1)
	out = append(out, probas...)
	out = append(out, probas.Margin())
	return out
}

// normalizePoints validates the configured classification points and
// guarantees the full series length is the final checkpoint. Empty
// configuration produces num evenly spaced points.
func normalizePoints(points []int, num, length int) ([]int, error) {
	if len(points) == 0 {
		points = spacedPoints(num, length)
	}
	if !sort.IntsAreSorted(points) {
		return nil, ErrBadPoints
	}
	for i, p := range points {
		if p < minPoint || p > length {
			return nil, fmt.Errorf("point %d out of [%d, %d]: %w", p, minPoint, length, ErrBadPoints)
		}
		if i > 0 && points[i-1] >= p {
			return nil, ErrBadPoints
		}
	}
	if points[len(points)-1] != length {
		points = append(append([]int(nil), points...), length)
	}
	return points, nil
}

func spacedPoints(num, length int) []int {
	var points []int
	for i := 1; i <= num; i++ {
		p := length * i / num
		if p < minPoint {
			continue
		}
		if len(points) > 0 && points[len(points)-1] == p {
			continue
		}
		points = append(points, p)
	}
	if len(points) == 0 {
		points = []int{length}
	}
	return points
}
