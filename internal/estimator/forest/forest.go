package forest

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/valyala/fastrand"
	"golang.org/x/sync/errgroup"

	"teaser/internal/estimator"
	"teaser/internal/series"
	"teaser/pkg/math/vector"
)

var _ estimator.ProbaEstimator = (*forest)(nil)

const (
	// features extracted per interval: mean, std, slope
	featuresPerInterval = 3
	minIntervalLen      = 3
)

var ErrNotFitted = fmt.Errorf("forest is not fitted")

type Option func(*forest)

func WithTrees(n int) Option {
	return func(f *forest) {
		f.opts.trees = n
	}
}

func WithMaxDepth(n int) Option {
	return func(f *forest) {
		f.opts.maxDepth = n
	}
}

func WithMinLeaf(n int) Option {
	return func(f *forest) {
		f.opts.minLeaf = n
	}
}

func WithIntervals(n int) Option {
	return func(f *forest) {
		f.opts.intervals = n
	}
}

func WithSeed(seed int64) Option {
	return func(f *forest) {
		f.opts.seed = seed
	}
}

type Options struct {
	trees     int
	maxDepth  int
	minLeaf   int
	intervals int
	seed      int64
}

var defaultOptions = Options{trees: 50, maxDepth: 8, minLeaf: 1}

// New returns an interval feature forest. Each tree draws its own random
// intervals per channel, summarises them with mean, std and slope and fits
// an axis aligned decision tree on the summaries.
func New(opts ...Option) (*forest, error) {
	f := &forest{opts: defaultOptions}
	for _, opt := range opts {
		opt(f)
	}
	if f.opts.trees < 1 {
		return nil, fmt.Errorf("unable creating forest instance, trees num %d is less than 1", f.opts.trees)
	}
	if f.opts.minLeaf < 1 {
		f.opts.minLeaf = 1
	}
	return f, nil
}

type interval struct {
	channel int
	start   int
	end     int
}

type fittedTree struct {
	intervals []interval
	root      *node
}

type forest struct {
	mtx  sync.RWMutex
	opts Options

	classes  []string
	classIdx map[string]int
	trees    []fittedTree
	channels int
	length   int
	fitted   bool
}

func (f *forest) Classes() []string {
	f.mtx.RLock()
	defer f.mtx.RUnlock()
	out := make([]string, len(f.classes))
	copy(out, f.classes)
	return out
}

func (f *forest) Fit(ctx context.Context, x series.Batch, y []string) error {
	if err := x.Validate(); err != nil {
		return fmt.Errorf("unable to fit forest: %w", err)
	}
	if err := x.ValidateLabels(y); err != nil {
		return fmt.Errorf("unable to fit forest: %w", err)
	}

	classes, classIdx := indexClasses(y)
	yIdx := make([]int, len(y))
	for i := range y {
		yIdx[i] = classIdx[y[i]]
	}

	seed := f.opts.seed
	if seed == 0 {
		seed = int64(fastrand.Uint32()) + 1
	}
	rnd := rand.New(rand.NewSource(seed))

	// per tree seeds are drawn up front so tree fitting can run in
	// parallel without losing reproducibility
	seeds := make([]int64, f.opts.trees)
	for i := range seeds {
		seeds[i] = rnd.Int63()
	}

	trees := make([]fittedTree, f.opts.trees)
	grp, ctx := errgroup.WithContext(ctx)
	for i := 0; i < f.opts.trees; i++ {
		i := i
		grp.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			t, err := f.fitTree(rand.New(rand.NewSource(seeds[i])), x, yIdx, len(classes))
			if err != nil {
				return fmt.Errorf("tree %d: %w", i, err)
			}
			trees[i] = t
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return fmt.Errorf("unable to fit forest: %w", err)
	}

	f.mtx.Lock()
	f.classes = classes
	f.classIdx = classIdx
	f.trees = trees
	f.channels = x.Channels()
	f.length = x.Length()
	f.fitted = true
	f.mtx.Unlock()

	return nil
}

func (f *forest) PredictProba(_ context.Context, x series.Batch) ([]vector.V, error) {
	f.mtx.RLock()
	defer f.mtx.RUnlock()
	if !f.fitted {
		return nil, ErrNotFitted
	}
	if err := x.Validate(); err != nil {
		return nil, fmt.Errorf("unable to predict: %w", err)
	}
	if x.Channels() != f.channels {
		return nil, fmt.Errorf("unable to predict: fitted on %d channels, got %d", f.channels, x.Channels())
	}
	if x.Length() != f.length {
		return nil, fmt.Errorf("unable to predict: fitted on length %d, got %d", f.length, x.Length())
	}

	out := make([]vector.V, x.Len())
	for i := range x {
		probas := make(vector.V, len(f.classes))
		for t := range f.trees {
			feats := extractFeatures(x[i], f.trees[t].intervals)
			leaf := f.trees[t].root.walk(feats)
			for c := range leaf {
				probas[c] += leaf[c]
			}
		}
		probas.Norm()
		out[i] = probas
	}
	return out, nil
}

func (f *forest) fitTree(rnd *rand.Rand, x series.Batch, yIdx []int, nClasses int) (fittedTree, error) {
	intervals := drawIntervals(rnd, x.Channels(), x.Length(), f.opts.intervals)

	// bagging: each tree sees a bootstrap sample of the batch
	n := x.Len()
	feats := make([][]float64, n)
	sampleY := make([]int, n)
	for i := 0; i < n; i++ {
		j := rnd.Intn(n)
		feats[i] = extractFeatures(x[j], intervals)
		sampleY[i] = yIdx[j]
	}

	root, err := buildNode(rnd, feats, sampleY, nClasses, 0, f.opts.maxDepth, f.opts.minLeaf)
	if err != nil {
		return fittedTree{}, err
	}
	return fittedTree{intervals: intervals, root: root}, nil
}

func drawIntervals(rnd *rand.Rand, channels, length, num int) []interval {
	if num < 1 {
		num = int(math.Sqrt(float64(length)))
		if num < 1 {
			num = 1
		}
	}
	minLen := minIntervalLen
	if minLen > length {
		minLen = length
	}
	intervals := make([]interval, 0, num*channels)
	for c := 0; c < channels; c++ {
		for i := 0; i < num; i++ {
			ln := minLen
			if length > minLen {
				ln = minLen + rnd.Intn(length-minLen+1)
			}
			start := 0
			if length > ln {
				start = rnd.Intn(length - ln + 1)
			}
			intervals = append(intervals, interval{channel: c, start: start, end: start + ln})
		}
	}
	return intervals
}

func extractFeatures(s series.Series, intervals []interval) []float64 {
	feats := make([]float64, 0, len(intervals)*featuresPerInterval)
	for _, iv := range intervals {
		seg := s[iv.channel][iv.start:iv.end]
		feats = append(feats, seg.Mean(), seg.Std(), seg.Slope())
	}
	return feats
}

func indexClasses(y []string) ([]string, map[string]int) {
	seen := map[string]struct{}{}
	var classes []string
	for _, label := range y {
		if _, ok := seen[label]; !ok {
			seen[label] = struct{}{}
			classes = append(classes, label)
		}
	}
	sort.Strings(classes)
	classIdx := make(map[string]int, len(classes))
	for i, c := range classes {
		classIdx[c] = i
	}
	return classes, classIdx
}
