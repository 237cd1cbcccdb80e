package knn

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"teaser/internal/estimator"
	"teaser/internal/series"
	"teaser/pkg/math/vector"
	"teaser/pkg/pqueue"
)

var _ estimator.ProbaEstimator = (*knn)(nil)

const MinKNum = 1

var ErrNotFitted = fmt.Errorf("knn is not fitted")

type Option func(*knn)

func WithKNum(k int) Option {
	return func(n *knn) {
		n.kNum = k
	}
}

func WithDistance(f estimator.PointsDistanceFn) Option {
	return func(n *knn) {
		n.distFunc = f
	}
}

// New returns a brute force k nearest neighbours classifier over
// flattened series. Probability per class is the vote fraction among
// the k nearest training instances.
func New(opts ...Option) (*knn, error) {
	n := &knn{kNum: 3, distFunc: vector.EuclideanDistance}
	for _, opt := range opts {
		opt(n)
	}
	if n.kNum < MinKNum {
		return nil, fmt.Errorf("unable creating knn instance, k %d is less than %d", n.kNum, MinKNum)
	}
	return n, nil
}

type trainPoint struct {
	vec   vector.V
	class int
}

type knn struct {
	mtx      sync.RWMutex
	kNum     int
	distFunc estimator.PointsDistanceFn

	classes []string
	points  []trainPoint
	fitted  bool
}

func (n *knn) Classes() []string {
	n.mtx.RLock()
	defer n.mtx.RUnlock()
	out := make([]string, len(n.classes))
	copy(out, n.classes)
	return out
}

func (n *knn) Fit(_ context.Context, x series.Batch, y []string) error {
	if err := x.Validate(); err != nil {
		return fmt.Errorf("unable to fit knn: %w", err)
	}
	if err := x.ValidateLabels(y); err != nil {
		return fmt.Errorf("unable to fit knn: %w", err)
	}

	classes, classIdx := indexClasses(y)
	points := make([]trainPoint, x.Len())
	for i := range x {
		points[i] = trainPoint{vec: flatten(x[i]), class: classIdx[y[i]]}
	}

	n.mtx.Lock()
	n.classes = classes
	n.points = points
	n.fitted = true
	n.mtx.Unlock()
	return nil
}

func (n *knn) PredictProba(_ context.Context, x series.Batch) ([]vector.V, error) {
	n.mtx.RLock()
	defer n.mtx.RUnlock()
	if !n.fitted {
		return nil, ErrNotFitted
	}
	if err := x.Validate(); err != nil {
		return nil, fmt.Errorf("unable to predict: %w", err)
	}

	out := make([]vector.V, x.Len())
	for i := range x {
		probas, err := n.vote(flatten(x[i]))
		if err != nil {
			return nil, fmt.Errorf("unable to predict instance %d: %w", i, err)
		}
		out[i] = probas
	}
	return out, nil
}

func (n *knn) vote(vec vector.V) (vector.V, error) {
	k := n.kNum
	if k > len(n.points) {
		k = len(n.points)
	}
	if k == 0 {
		return nil, fmt.Errorf("no training points")
	}
	pq := pqueue.New(pqueue.WithCap(uint(k)))
	for i := range n.points {
		distance, err := n.distFunc(vec.Points(), n.points[i].vec.Points())
		if err != nil {
			return nil, fmt.Errorf("unable to compute distance: %w", err)
		}
		pq.Push(n.points[i].class, distance)
	}
	probas := make(vector.V, len(n.classes))
	for _, c := range pq.PopAll() {
		probas[c.(int)] += 1
	}
	probas.Norm()
	return probas, nil
}

func flatten(s series.Series) vector.V {
	out := make(vector.V, 0, s.Channels()*s.Length())
	for c := range s {
		out = append(out, s[c]...)
	}
	return out
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
	// stable order for probability vectors
	sort.Strings(classes)
	classIdx := make(map[string]int, len(classes))
	for i, c := range classes {
		classIdx[c] = i
	}
	return classes, classIdx
}
