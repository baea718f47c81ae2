// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package job

import (
	"context"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"
)

func TestNew(t *testing.T) {
	job := New(time.Millisecond*100, func(context.Context) {})
	if job == nil {
		t.Fatal("expected job to be non-nil")
	}
	if job.immediate {
		t.Error("expected job to wait for the first tick by default")
	}
	if !New(time.Second, nil, WithImmediate()).immediate {
		t.Error("expected WithImmediate to be applied")
	}
}

func TestJob_Start(t *testing.T) {
	t.Run("start returns when the context is cancelled", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			var returned atomic.Bool
			go func() {
				New(time.Millisecond*100, func(context.Context) {}).Start(ctx)
				returned.Store(true)
			}()

			synctest.Wait()
			if returned.Load() {
				t.Fatal("expected job to run until the context is cancelled")
			}
			cancel()
			synctest.Wait()
			if !returned.Load() {
				t.Fatal("expected job to return after the context was cancelled")
			}
		})
	})
	t.Run("task runs on every tick", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			var runs atomic.Int32
			ctx, cancel := context.WithTimeout(t.Context(), time.Millisecond*55)
			defer cancel()

			New(time.Millisecond*10, func(context.Context) { runs.Add(1) }).Start(ctx)
			synctest.Wait()
			if got := runs.Load(); got != 5 {
				t.Errorf("expected task to run 5 times, got %d", got)
			}
		})
	})
	t.Run("immediate task runs before the first tick", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			var runs atomic.Int32
			ctx, cancel := context.WithCancel(t.Context())
			go New(time.Minute, func(context.Context) { runs.Add(1) }, WithImmediate()).Start(ctx)

			synctest.Wait()
			if got := runs.Load(); got != 1 {
				t.Errorf("expected task to run once, got %d", got)
			}
			cancel()
			synctest.Wait()
		})
	})
	t.Run("overlapping ticks are skipped", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			var runs atomic.Int32
			ctx, cancel := context.WithTimeout(t.Context(), time.Millisecond*95)
			defer cancel()

			task := func(ctx context.Context) {
				runs.Add(1)
				select {
				case <-ctx.Done():
				case <-time.After(time.Millisecond * 25):
				}
			}
			New(time.Millisecond*10, task).Start(ctx)
			synctest.Wait()
			if got := runs.Load(); got != 3 {
				t.Errorf("expected 3 non-overlapping runs, got %d", got)
			}
		})
	})
	t.Run("nil task returns", func(t *testing.T) {
		New(time.Millisecond*100, nil).Start(t.Context())
	})
}
