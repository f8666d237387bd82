// Package workerpool runs batches of highlight jobs on a bounded pool
// (github.com/cilium/workerpool). The CLI uses it for `highlight --jobs N`.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"

	"github.com/cilium/workerpool"

	"github.com/corey/hilite/internal/logging"
	"github.com/corey/hilite/internal/logging/logfields"
)

var log = logging.DefaultLogger.WithField(logfields.LogSubsys, "workerpool")

// Batch is a one-shot pool: submit jobs, then Wait once. Callers that may
// bail out before Wait defer Close.
type Batch struct {
	wp        *workerpool.WorkerPool
	size      int
	submitted int
}

// TaskError is a failed job.
type TaskError struct {
	ID  string
	Err error
}

func (e TaskError) Error() string {
	return fmt.Sprintf("%s: %v", e.ID, e.Err)
}

// Report summarizes a finished batch.
type Report struct {
	Total  int
	Failed []TaskError // sorted by ID
}

// NewBatch creates a pool of n workers; n <= 0 uses one per CPU.
func NewBatch(n int) *Batch {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return &Batch{wp: workerpool.New(n), size: n}
}

// Size returns the number of workers.
func (b *Batch) Size() int {
	return b.size
}

// Submit queues a job. It blocks while every worker is busy.
func (b *Batch) Submit(id string, fn func(ctx context.Context) error) error {
	log.WithField("task", id).Debug("Submitting")
	if err := b.wp.Submit(id, fn); err != nil {
		return fmt.Errorf("submit %s: %w", id, err)
	}
	b.submitted++
	return nil
}

// Close releases the pool without collecting results; running jobs see their
// context cancelled. Safe to call after Wait and more than once.
func (b *Batch) Close() error {
	if err := b.wp.Close(); err != nil && !errors.Is(err, workerpool.ErrClosed) {
		return err
	}
	return nil
}

// Wait blocks until every submitted job has run, then releases the pool.
func (b *Batch) Wait() (Report, error) {
	defer b.Close()

	tasks, err := b.wp.Drain()
	if err != nil {
		return Report{}, fmt.Errorf("drain: %w", err)
	}

	report := Report{Total: len(tasks)}
	for _, t := range tasks {
		if t.Err() != nil {
			report.Failed = append(report.Failed, TaskError{ID: t.String(), Err: t.Err()})
		}
	}
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].ID < report.Failed[j].ID })

	log.WithFields(map[string]interface{}{
		logfields.Count: report.Total,
		"failed":        len(report.Failed),
	}).Debug("Batch drained")
	return report, nil
}
