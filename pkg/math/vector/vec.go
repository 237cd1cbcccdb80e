package vector

import (
	"math"
	"sort"
)

type V []float64

func New(vec []float64) V {
	return vec
}

func (v V) Dimensions() int {
	return len(v)
}

func (v V) Point(idx int) float64 {
	return v[idx]
}

func (v V) Points() []float64 {
	return v
}

func (v V) Copy() V {
	var v1 = make(V, len(v))
	copy(v1, v)
	return v1
}

func (v V) Norm() {
	s := v.Sum()
	if s == 0 {
		return
	}
	for i := 0; i < len(v); i++ {
		v[i] /= s
	}
}

func (v V) Zero() {
	for i := range v {
		v[i] = 0.0
	}
}

func (v V) Sum() float64 {
	var s float64
	for i := range v {
		s += v[i]
	}
	return s
}

func (v V) Mean() float64 {
	if len(v) == 0 {
		return 0
	}
	return v.Sum() / float64(len(v))
}

func (v V) Std() float64 {
	if len(v) < 2 {
		return 0
	}
	m := v.Mean()
	var s float64
	for i := range v {
		s += (v[i] - m) * (v[i] - m)
	}
	return math.Sqrt(s / float64(len(v)-1))
}

// Slope is the slope of the least squares line over the values,
// the index is taken as the abscissa.
func (v V) Slope() float64 {
	n := float64(len(v))
	if n < 2 {
		return 0
	}
	var sx, sy, sxy, sxx float64
	for i := range v {
		x := float64(i)
		sx += x
		sy += v[i]
		sxy += x * v[i]
		sxx += x * x
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return 0
	}
	return (n*sxy - sx*sy) / den
}

func (v V) Max() float64 {
	var max = -math.MaxFloat64
	for i := range v {
		if v[i] > max {
			max = v[i]
		}
	}
	return max
}

func (v V) Min() float64 {
	var min = math.MaxFloat64
	for i := range v {
		if v[i] < min {
			min = v[i]
		}
	}
	return min
}

// ArgMax returns the index of the largest value, the first one on ties.
func (v V) ArgMax() int {
	var idx int
	var max = -math.MaxFloat64
	for i := range v {
		if v[i] > max {
			max = v[i]
			idx = i
		}
	}
	return idx
}

// Margin returns the difference between the largest and the second
// largest value. For a single-element vector the value itself is returned.
func (v V) Margin() float64 {
	if len(v) == 0 {
		return 0
	}
	if len(v) == 1 {
		return v[0]
	}
	first, second := -math.MaxFloat64, -math.MaxFloat64
	for i := range v {
		if v[i] > first {
			second = first
			first = v[i]
		} else if v[i] > second {
			second = v[i]
		}
	}
	return first - second
}

func (v V) Median() float64 {
	var p float64
	v1 := v.Copy()
	sort.Slice(v1, func(i, j int) bool {
		return v1[i] < v1[j]
	})
	if len(v1)%2 == 0 {
		vc := v1[len(v1)/2-1 : len(v1)/2+1]
		p = vc.Sum() / float64(len(vc))
	} else {
		p = v1[len(v1)/2]
	}

	return p
}

func (v V) SizeEqual(vec V) bool {
	return len(v) == len(vec)
}

func (v V) Equal(vec V) bool {
	if len(v) != len(vec) {
		return false
	}
	for i, value := range v {
		if vec[i] != value {
			return false
		}
	}
	return true
}
