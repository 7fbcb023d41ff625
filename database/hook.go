/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
	"go.mongodb.org/mongo-driver/event"
)

var querySilentMode atomic.Bool

// SetQueryLogSilent mutes query and slow query output of every backend.
func SetQueryLogSilent(b bool) {
	querySilentMode.Store(b)
}

var (
	selectColor = color.New(color.FgGreen)
	insertColor = color.New(color.FgBlue)
	updateColor = color.New(color.FgYellow)
	deleteColor = color.New(color.FgMagenta)
	otherColor  = color.New(color.FgRed)
	tagColor    = color.New(color.FgCyan)
	slowColor   = color.New(color.FgYellow, color.Bold)
	errorColor  = color.New(color.BgRed, color.FgHiWhite)
)

// operationColor picks the highlight of a SQL verb or a MongoDB command name.
func operationColor(operation string) *color.Color {
	switch strings.ToLower(operation) {
	case "select", "find", "aggregate", "count", "getmore":
		return selectColor
	case "insert":
		return insertColor
	case "update", "findandmodify":
		return updateColor
	case "delete":
		return deleteColor
	default:
		return otherColor
	}
}

func logLine(w io.Writer, tag string, dur time.Duration, operation, text string, err error) {
	args := []interface{}{
		time.Now().Format("2006-01-02 15:04:05.000"),
		tagColor.Sprintf("%15s", tag),
		fmt.Sprintf("%17s", dur.Round(time.Microsecond)),
		"  ", operationColor(operation).Sprint(text),
	}
	if err != nil {
		typ := reflect.TypeOf(err).String()
		args = append(args, "\t", errorColor.Sprintf(" %s ", typ+": "+err.Error()))
	}
	_, _ = fmt.Fprintln(w, args...)
}

// SlowQueryHook prints bun queries slower than the threshold.
type SlowQueryHook struct {
	fromEnv  string
	slowTime time.Duration
	writer   io.Writer
}

var _ bun.QueryHook = (*SlowQueryHook)(nil)

// NewSlowQueryHook returns a hook for queries slower than slowTime. Setting
// BUN_SLOW=0 disables it at runtime.
func NewSlowQueryHook(slowTime time.Duration) *SlowQueryHook {
	return &SlowQueryHook{fromEnv: "BUN_SLOW", slowTime: slowTime, writer: os.Stdout}
}

func (h *SlowQueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *SlowQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if querySilentMode.Load() || event.Err != nil {
		return
	}
	if env, ok := os.LookupEnv(h.fromEnv); ok && strings.TrimSpace(env) == "0" {
		return
	}
	duration := time.Since(event.StartTime)
	if duration > h.slowTime {
		logLine(h.writer, slowColor.Sprint("[BUN_SLOW]"), duration, event.Operation(), event.Query, nil)
	}
}

// commandLogger prints MongoDB commands through a command monitor. With
// verbose off only slow and failed commands are printed.
type commandLogger struct {
	verbose  bool
	slowTime time.Duration
	writer   io.Writer
	started  sync.Map // request id -> command text
}

func newCommandLogger(verbose bool, slowTime time.Duration) *commandLogger {
	return &commandLogger{verbose: verbose, slowTime: slowTime, writer: os.Stdout}
}

func (l *commandLogger) monitor() *event.CommandMonitor {
	return &event.CommandMonitor{
		Started: func(_ context.Context, e *event.CommandStartedEvent) {
			l.started.Store(e.RequestID, e.Command.String())
		},
		Succeeded: func(_ context.Context, e *event.CommandSucceededEvent) {
			l.finish(e.RequestID, e.CommandName, e.Duration, nil)
		},
		Failed: func(_ context.Context, e *event.CommandFailedEvent) {
			l.finish(e.RequestID, e.CommandName, e.Duration, errors.New(e.Failure))
		},
	}
}

func (l *commandLogger) finish(requestID int64, name string, dur time.Duration, err error) {
	v, _ := l.started.LoadAndDelete(requestID)
	if querySilentMode.Load() {
		return
	}
	text, _ := v.(string)
	if text == "" {
		text = name
	}
	switch {
	case l.slowTime > 0 && dur > l.slowTime:
		logLine(l.writer, slowColor.Sprint("[MONGO_SLOW]"), dur, name, text, err)
	case l.verbose || err != nil:
		logLine(l.writer, "[MONGO]", dur, name, text, err)
	}
}
