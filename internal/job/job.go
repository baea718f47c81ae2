// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package job runs a periodic task that never overlaps with itself.
package job

import (
	"context"
	"time"
)

// Job is a task that runs at a fixed interval in singleton mode.
type Job struct {
	interval  time.Duration
	task      func(context.Context)
	immediate bool
}

// Option configures a Job.
type Option func(*Job)

// WithImmediate runs the task once when the job starts instead of waiting for the first tick.
func WithImmediate() Option {
	return func(j *Job) {
		j.immediate = true
	}
}

// New creates a Job that runs task every interval.
func New(interval time.Duration, task func(context.Context), opts ...Option) *Job {
	job := &Job{
		interval: interval,
		task:     task,
	}
	for _, opt := range opts {
		opt(job)
	}
	return job
}

// Start runs the job until ctx is cancelled. A tick that fires while the previous run is still in
// progress is skipped.
func (j *Job) Start(ctx context.Context) {
	if j.task == nil || j.interval <= 0 {
		return
	}

	running := make(chan struct{}, 1)
	run := func() {
		select {
		case running <- struct{}{}:
		default:
			return
		}
		go func() {
			defer func() { <-running }()
			j.task(ctx)
		}()
	}

	if j.immediate {
		run()
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
