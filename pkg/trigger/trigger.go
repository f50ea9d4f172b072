// Package trigger runs training jobs in background, one at a time.
//
// Submitting a job only acknowledges it. Progress is observed through the job status
// and, once the job has started, the run in the experiment store.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	kerr "github.com/opst/vitrain/pkg/domain/errors"
	"github.com/opst/vitrain/pkg/loop"
	"github.com/opst/vitrain/pkg/train"
)

var ErrQueueFull = errors.New("job queue is full")

type Status string

const (
	Queued   Status = "queued"
	Running  Status = "running"
	Promoted Status = "promoted"
	Demoted  Status = "demoted"
	Failed   Status = "failed"
)

// Terminal reports the job has been done.
func (s Status) Terminal() bool {
	return s == Promoted || s == Demoted || s == Failed
}

// Request is what the submitter asks for.
type Request struct {
	// overrides the run name in the training config, if not empty.
	RunName string
}

// Job is a submitted request and its status.
type Job struct {
	JobId   string
	Request Request
	Status  Status

	// set when the run is started.
	RunId string

	// set when the model is registered.
	Version *int

	// error kind and message, when failed.
	Kind   string
	Reason string

	QueuedAt   time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// Runner executes a job.
type Runner func(ctx context.Context, req Request) (train.Result, error)

type Dispatcher struct {
	runner Runner
	queue  chan string
	logger *log.Logger
	now    func() time.Time
	newId  func() string

	m    sync.Mutex
	jobs map[string]*Job
}

type Option func(*Dispatcher)

func WithLogger(logger *log.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

func WithJobIdGenerator(gen func() string) Option {
	return func(d *Dispatcher) {
		d.newId = gen
	}
}

// New creates a dispatcher queueing up to capacity jobs waiting to start.
func New(capacity int, runner Runner, options ...Option) *Dispatcher {
	if capacity < 1 {
		capacity = 1
	}
	d := &Dispatcher{
		runner: runner,
		queue:  make(chan string, capacity),
		logger: log.Default(),
		now:    time.Now,
		newId:  uuid.NewString,
		jobs:   map[string]*Job{},
	}
	for _, opt := range options {
		opt(d)
	}
	return d
}

// Submit queues a job and returns its id without waiting for it to start.
//
// When the queue is full, it returns ErrQueueFull.
func (d *Dispatcher) Submit(req Request) (string, error) {
	d.m.Lock()
	defer d.m.Unlock()

	id := d.newId()
	if _, ok := d.jobs[id]; ok {
		return "", fmt.Errorf("%w: job %s", kerr.ErrConflict, id)
	}
	select {
	case d.queue <- id:
	default:
		return "", ErrQueueFull
	}
	d.jobs[id] = &Job{JobId: id, Request: req, Status: Queued, QueuedAt: d.now()}
	d.logger.Printf("job %s is queued", id)
	return id, nil
}

// Get returns a copy of the job.
//
// If not found, error wraps domain/errors.ErrMissing.
func (d *Dispatcher) Get(jobId string) (Job, error) {
	d.m.Lock()
	defer d.m.Unlock()
	j, ok := d.jobs[jobId]
	if !ok {
		return Job{}, fmt.Errorf("%w: job %s", kerr.ErrMissing, jobId)
	}
	out := *j
	if j.Version != nil {
		v := *j.Version
		out.Version = &v
	}
	return out, nil
}

func (d *Dispatcher) update(jobId string, f func(*Job)) {
	d.m.Lock()
	defer d.m.Unlock()
	if j, ok := d.jobs[jobId]; ok {
		f(j)
	}
}

// Start runs queued jobs one by one until ctx is done.
//
// Jobs not started yet are left queued. It returns the number of jobs done and ctx.Err().
func (d *Dispatcher) Start(ctx context.Context) (int, error) {
	return loop.Start(ctx, 0, func(ctx context.Context, done int) (int, loop.Next) {
		select {
		case <-ctx.Done():
			return done, loop.Break(ctx.Err())
		case jobId := <-d.queue:
			d.do(ctx, jobId)
			return done + 1, loop.Continue(0)
		}
	})
}

func (d *Dispatcher) do(ctx context.Context, jobId string) {
	var req Request
	d.update(jobId, func(j *Job) {
		now := d.now()
		j.Status = Running
		j.StartedAt = &now
		req = j.Request
	})
	d.logger.Printf("job %s is started", jobId)

	res, err := d.safeRun(ctx, req)

	d.update(jobId, func(j *Job) {
		now := d.now()
		j.FinishedAt = &now
		j.RunId = res.RunId
		j.Version = res.Version
		switch {
		case err != nil:
			j.Status = Failed
			j.Kind = train.KindName(err)
			j.Reason = err.Error()
		case res.State == train.Promoted:
			j.Status = Promoted
		case res.State == train.Demoted:
			j.Status = Demoted
		default:
			j.Status = Failed
			j.Reason = fmt.Sprintf("training ended in unexpected state %s", res.State)
		}
	})

	if err != nil {
		d.logger.Printf("job %s (run %s) failed: %s", jobId, res.RunId, err)
	} else {
		d.logger.Printf("job %s (run %s) is done: %s", jobId, res.RunId, res.State)
	}
}

func (d *Dispatcher) safeRun(ctx context.Context, req Request) (res train.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", train.ErrTrainingFailed, r)
		}
	}()
	return d.runner(ctx, req)
}
