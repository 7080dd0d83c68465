package server

import (
	"context"
	"errors"
	"reflect"
	"runtime"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/keyfobhq/keyfob/internal"
	"github.com/keyfobhq/keyfob/internal/logging"
	"github.com/keyfobhq/keyfob/internal/repeat"
	"github.com/keyfobhq/keyfob/internal/server/data"
	"github.com/keyfobhq/keyfob/internal/server/jobs"
)

// BackgroundJobFunc is the interface for implementing a new background job.
//
// currentTime is the time the job was invoked at, and should be used for
// segmenting records into processable chunks.
//
// lastRunAt is the time that the background job was last invoked. The value
// only advances when the function returns without error, so a run after a
// failure covers the records the failed run missed.
//
// Errors are logged and the job is retried at the next interval. A transient
// store outage delays a sweep, it never stops the loop. Panics are caught and
// logged.
//
// Jobs should gracefully exit when their context quits.
type BackgroundJobFunc func(ctx context.Context, tx *data.DB, lastRunAt, currentTime time.Time) error

func (s *Server) SetupBackgroundJobs(ctx context.Context) {
	retention := s.options.Sweep.Retention

	removeSessions := func(ctx context.Context, tx *data.DB, lastRunAt, currentTime time.Time) error {
		return jobs.RemoveExpiredSessions(ctx, tx, retention, currentTime)
	}
	removeAccessKeys := func(ctx context.Context, tx *data.DB, lastRunAt, currentTime time.Time) error {
		return jobs.RemoveExpiredAccessKeys(ctx, tx, retention, currentTime)
	}

	s.registerJob(ctx, removeSessions, s.options.Sweep.Interval)
	s.registerJob(ctx, removeAccessKeys, s.options.Sweep.Interval)
}

func (s *Server) registerJob(ctx context.Context, job BackgroundJobFunc, every time.Duration) {
	s.routines = append(s.routines, routine{
		run:  jobWrapper(ctx, s.db, job, every),
		stop: func() {}, // uses the context to stop
	})
}

func jobWrapper(ctx context.Context, db *data.DB, job BackgroundJobFunc, every time.Duration) func() error {
	return func() error { // jobs shouldn't return errors, we just do this to be compatible with the "routine" struct.
		lastRunAt := time.Time{}

		jobWithRescue := func(ctx context.Context) {
			if ctx.Err() != nil {
				return
			}
			defer func() {
				if err := recover(); err != nil {
					logging.Errorf("background job %s panic: %s", getFuncName(job), err)
				}
			}()

			startAt := time.Now().UTC()
			logging.Debugf("background job %s starting", getFuncName(job))

			err := runWithRetry(ctx, db, job, lastRunAt, startAt)
			if err != nil {
				logging.Errorf("background job %s error: %s", getFuncName(job), err.Error())
			} else {
				logging.Debugf("background job %s successful, elapsed: %s", getFuncName(job), time.Since(startAt))
				lastRunAt = startAt
			}
		}

		repeat.Start(ctx, every, jobWithRescue)
		<-ctx.Done()
		return nil // time to quit.
	}
}

// runWithRetry runs job, retrying a store outage a few times with backoff
// before giving up until the next interval.
func runWithRetry(ctx context.Context, db *data.DB, job BackgroundJobFunc, lastRunAt, startAt time.Time) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = time.Minute
	waiter := repeat.NewWaiter(backoff.WithMaxRetries(policy, 5))

	for {
		err := job(ctx, db, lastRunAt, startAt)
		if !errors.Is(err, internal.ErrStoreUnavailable) {
			return err
		}
		if waitErr := waiter.Wait(ctx); waitErr != nil {
			return err
		}
	}
}

func getFuncName(f interface{}) string {
	return runtime.FuncForPC(reflect.ValueOf(f).Pointer()).Name()
}
