package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Registered job function names.
const (
	FnCreateVariants      = "create_variants_for_score_set"
	FnMapVariants         = "map_variants_for_score_set"
	FnLinkClinGenAlleles  = "link_clingen_allele_ids"
	FnLinkClinicalControl = "link_clinical_controls"
	FnLinkGnomadVariants  = "link_gnomad_variants"
	FnRefreshControls     = "refresh_clinical_controls"
)

// Worker consumes the queue and dispatches jobs to registered handlers.
// Execution is bounded by a semaphore so one slow job cannot monopolize the
// process while others starve.
type Worker struct {
	manager  *Manager
	queue    *Queue
	handlers map[string]Handler
	sem      chan struct{}
	log      *logrus.Logger

	wg sync.WaitGroup
}

// NewWorker creates a worker running at most concurrency jobs at once.
func NewWorker(manager *Manager, queue *Queue, concurrency int, logger *logrus.Logger) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		manager:  manager,
		queue:    queue,
		handlers: make(map[string]Handler),
		sem:      make(chan struct{}, concurrency),
		log:      logger,
	}
}

// Register binds a job function name to its handler. Registration happens
// at startup, before Run.
func (w *Worker) Register(jobFunction string, handler Handler) {
	w.handlers[jobFunction] = handler
}

// Run consumes jobs until the context is canceled, then waits for in-flight
// jobs to drain.
func (w *Worker) Run(ctx context.Context) error {
	w.log.WithField("concurrency", cap(w.sem)).Info("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			w.log.Info("Worker stopped")
			return ctx.Err()
		default:
		}

		msg, err := w.queue.Dequeue(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				w.wg.Wait()
				return ctx.Err()
			}
			w.log.WithError(err).Error("Failed to dequeue job")
			time.Sleep(time.Second)
			continue
		}
		if msg == nil {
			continue
		}

		handler, ok := w.handlers[msg.JobFunction]
		if !ok {
			w.failUnknown(ctx, msg)
			continue
		}

		w.sem <- struct{}{}
		w.wg.Add(1)
		go func() {
			defer func() {
				<-w.sem
				w.wg.Done()
			}()
			if err := w.manager.Execute(ctx, msg, handler); err != nil {
				w.log.WithFields(logrus.Fields{
					"job_id": msg.JobID,
					"error":  err,
				}).Error("Job execution infrastructure failure")
			}
		}()
	}
}

// failUnknown records a failure for a job whose function has no handler.
func (w *Worker) failUnknown(ctx context.Context, msg *QueueMessage) {
	w.log.WithFields(logrus.Fields{
		"job_id":       msg.JobID,
		"job_function": msg.JobFunction,
	}).Error("No handler registered for job function")

	err := w.manager.Execute(ctx, msg, func(context.Context, *JobContext) (json.RawMessage, error) {
		return nil, fmt.Errorf("no handler registered for job function %q", msg.JobFunction)
	})
	if err != nil {
		w.log.WithError(err).Error("Failed to record unknown job function")
	}
}
