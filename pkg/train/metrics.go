package train

import "errors"

var ErrNoObservation = errors.New("no values are observed")

// Accumulator computes the arithmetic mean of observed values.
//
// Zero value is ready to use.
type Accumulator struct {
	sum   float64
	count int
}

func (a *Accumulator) Add(v float64) {
	a.sum += v
	a.count += 1
}

func (a *Accumulator) Count() int {
	return a.count
}

// Mean returns the mean of values added so far.
//
// If nothing has been added, it returns ErrNoObservation.
func (a *Accumulator) Mean() (float64, error) {
	if a.count == 0 {
		return 0, ErrNoObservation
	}
	return a.sum / float64(a.count), nil
}
