package dataset

import (
	"math/rand/v2"
)

// A batch of samples. Features[i] is labeled with Labels[i].
type Batch struct {
	Features [][]float64
	Labels   []int
}

func (b Batch) Len() int {
	return len(b.Labels)
}

// Loader splits a dataset into batches.
type Loader struct {
	dataset   *Dataset
	batchSize int
	shuffle   bool
	seed      uint64
}

type LoaderOption func(*Loader)

// Shuffled makes the loader to shuffle samples for each epoch.
//
// The order of an epoch is determined by seed and the epoch number.
func Shuffled(seed uint64) LoaderOption {
	return func(l *Loader) {
		l.shuffle = true
		l.seed = seed
	}
}

func NewLoader(ds *Dataset, batchSize int, options ...LoaderOption) *Loader {
	if batchSize <= 0 {
		batchSize = 1
	}
	l := &Loader{dataset: ds, batchSize: batchSize}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// Epoch returns batches of the epoch. The last batch may be smaller than others.
func (l *Loader) Epoch(epoch int) []Batch {
	order := make([]int, len(l.dataset.Samples))
	for i := range order {
		order[i] = i
	}
	if l.shuffle {
		rng := rand.New(rand.NewPCG(l.seed, uint64(epoch)))
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	batches := make([]Batch, 0, (len(order)+l.batchSize-1)/l.batchSize)
	for start := 0; start < len(order); start += l.batchSize {
		end := min(start+l.batchSize, len(order))
		b := Batch{
			Features: make([][]float64, 0, end-start),
			Labels:   make([]int, 0, end-start),
		}
		for _, idx := range order[start:end] {
			s := l.dataset.Samples[idx]
			b.Features = append(b.Features, s.Features)
			b.Labels = append(b.Labels, s.Label)
		}
		batches = append(batches, b)
	}
	return batches
}
