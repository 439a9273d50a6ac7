// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/toeirei/joinguard/internal/logging"
	"github.com/uptrace/bun"
)

var debugEnabled atomic.Bool

// SetDebug turns on connection timing logs and per-statement SQL tracing for
// backends opened afterwards.
func SetDebug(enabled bool) {
	debugEnabled.Store(enabled)
}

func dbLogf(format string, v ...any) {
	if debugEnabled.Load() {
		logging.Debugf(format, v...)
	}
}

// queryTracer logs every statement bun runs, with its duration and error.
type queryTracer struct {
	logf func(format string, v ...any)
}

var _ bun.QueryHook = queryTracer{}

func (queryTracer) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (t queryTracer) AfterQuery(_ context.Context, ev *bun.QueryEvent) {
	took := time.Since(ev.StartTime).Round(time.Microsecond)
	if ev.Err != nil {
		t.logf("db: %s failed after %s: %v", ev.Query, took, ev.Err)
		return
	}
	t.logf("db: %s (%s)", ev.Query, took)
}
