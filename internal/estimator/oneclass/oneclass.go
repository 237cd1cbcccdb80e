package oneclass

import (
	"fmt"
	"math"
	"sync"

	"teaser/internal/estimator"
	"teaser/pkg/math/vector"
	"teaser/pkg/pqueue"
)

var _ estimator.OneClass = (*lof)(nil)

type Option func(*lof)

func WithKNum(k int) Option {
	return func(l *lof) {
		l.kNum = k
	}
}

// WithThreshold sets the local outlier factor above which a point is
// rejected.
func WithThreshold(t float64) Option {
	return func(l *lof) {
		l.threshold = t
	}
}

func WithDistance(f estimator.PointsDistanceFn) Option {
	return func(l *lof) {
		l.distFunc = f
	}
}

// New returns a local outlier factor novelty detector. Fitted on the
// probability vectors the base classifier produced for training data,
// it accepts a vector when its local density matches the fitted
// population.
func New(opts ...Option) (*lof, error) {
	l := &lof{
		kNum:      MinKNum,
		threshold: 1.5,
		distFunc:  vector.EuclideanDistance,
	}
	for _, f := range opts {
		f(l)
	}
	if l.kNum < MinKNum {
		return nil, fmt.Errorf("unable creating lof instance, the k selected is too small")
	}
	if l.threshold <= 0 {
		return nil, fmt.Errorf("unable creating lof instance, threshold %f is not positive", l.threshold)
	}
	return l, nil
}

type lof struct {
	mtx       sync.RWMutex
	kNum      int
	threshold float64
	distFunc  estimator.PointsDistanceFn

	points []vector.V
}

func (l *lof) Fit(points []vector.V) error {
	if len(points) == 0 {
		return fmt.Errorf("unable to fit lof on empty point set")
	}
	stored := make([]vector.V, len(points))
	for i := range points {
		stored[i] = points[i].Copy()
	}
	l.mtx.Lock()
	l.points = stored
	l.mtx.Unlock()
	return nil
}

func (l *lof) Len() int {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return len(l.points)
}

func (l *lof) Reset() {
	l.mtx.Lock()
	l.points = nil
	l.mtx.Unlock()
}

// Accept reports whether the vector looks like a member of the fitted
// population. With fewer fitted points than k there is no density to
// compare against and the point is accepted.
func (l *lof) Accept(p vector.V) (bool, error) {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	if len(l.points) == 0 {
		return false, fmt.Errorf("unable to accept, lof is not fitted")
	}
	if len(l.points) <= l.kNum {
		return true, nil
	}
	score, err := l.score(p)
	if err != nil {
		return false, fmt.Errorf("unable to compute lof for %v: %w", p, err)
	}
	return score <= l.threshold, nil
}

func (l *lof) score(p vector.V) (float64, error) {
	lrd, err := l.lrd(p)
	if err != nil {
		return 0.0, fmt.Errorf("unable compute lrd: %w", err)
	}
	// the query sits inside a zero distance cluster
	if math.IsInf(lrd, 1) {
		return 0, nil
	}
	nn, err := l.knn(p, l.kNum)
	if err != nil {
		return 0.0, fmt.Errorf("unable compute knn: %w", err)
	}
	var lrdSum float64
	for _, y := range nn {
		nLrd, err := l.lrd(y)
		if err != nil {
			return 0.0, fmt.Errorf("unable compute lrd: %w", err)
		}
		if math.IsInf(nLrd, 1) {
			return math.Inf(1), nil
		}
		lrdSum += nLrd
	}
	avgLrd := lrdSum / float64(len(nn))
	return avgLrd / lrd, nil
}

func (l *lof) lrd(vec vector.V) (float64, error) {
	nn, err := l.knn(vec, l.kNum)
	if err != nil {
		return 0.0, fmt.Errorf("unable to compute knn: %w", err)
	}
	var rSum float64
	for _, vec1 := range nn {
		rDistance, err := l.reachabilityDist(vec, vec1)
		if err != nil {
			return 0.0, fmt.Errorf("unable to compute reachability distance: %w", err)
		}
		rSum += rDistance
	}
	if rSum == 0 {
		return math.Inf(1), nil
	}
	return float64(len(nn)) / rSum, nil
}

func (l *lof) reachabilityDist(vec, vec1 vector.V) (float64, error) {
	kDistance, err := l.kDistance(vec1)
	if err != nil {
		return 0.0, fmt.Errorf("unable compute kDistance: %w", err)
	}
	distance, err := l.distFunc(vec.Points(), vec1.Points())
	if err != nil {
		return 0.0, fmt.Errorf("unable compute distance: %w", err)
	}
	return math.Max(kDistance, distance), nil
}

// kDistance is the distance to the k-th nearest fitted point.
func (l *lof) kDistance(in vector.V) (float64, error) {
	pq := pqueue.New(pqueue.WithCap(uint(l.kNum)))
	for i := range l.points {
		distance, err := l.distFunc(in.Points(), l.points[i].Points())
		if err != nil {
			return 0.0, fmt.Errorf("unable to compute distance: %w", err)
		}
		pq.Push(l.points[i], distance)
	}
	if pq.Len() == 0 {
		return 0, nil
	}
	_, kDist := pq.Seek(pq.Len() - 1)
	return kDist, nil
}

func (l *lof) knn(vec vector.V, k int) ([]vector.V, error) {
	pq := pqueue.New(pqueue.WithCap(uint(k)))
	for i := range l.points {
		distance, err := l.distFunc(vec.Points(), l.points[i].Points())
		if err != nil {
			return nil, fmt.Errorf("unable to compute distance between %v and %v: %w", vec.Points(), l.points[i].Points(), err)
		}
		pq.Push(l.points[i], distance)
	}
	popped := pq.PopAll()
	knn := make([]vector.V, len(popped))
	for i, pData := range popped {
		knn[i] = pData.(vector.V)
	}
	if len(knn) < k {
		return nil, fmt.Errorf("knn less minimal value")
	}
	return knn, nil
}
