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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type logEntry struct {
	level  string
	msg    string
	fields []interface{}
}

type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *captureLogger) add(level, msg string, fields []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) SetLevel(LogLevel) {}

func (l *captureLogger) Debug(msg string, fields ...interface{}) { l.add("debug", msg, fields) }

func (l *captureLogger) Info(msg string, fields ...interface{}) { l.add("info", msg, fields) }

func (l *captureLogger) Warn(msg string, fields ...interface{}) { l.add("warn", msg, fields) }

func (l *captureLogger) Error(msg string, fields ...interface{}) { l.add("error", msg, fields) }

func (l *captureLogger) count(level, msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			n++
		}
	}
	return n
}

func (l *captureLogger) find(level, msg string) (logEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			return e, true
		}
	}
	return logEntry{}, false
}

type fakeSession struct {
	closed atomic.Bool
}

func (s *fakeSession) Collection(name string) Collection { return disconnectedCollection(name) }

func (s *fakeSession) Ping(context.Context) error {
	if s.closed.Load() {
		return errors.New("session closed")
	}
	return nil
}

func (s *fakeSession) Close(context.Context) error {
	s.closed.Store(true)
	return nil
}

type dialCall struct {
	cfg     ConnectionConfig
	notify  func(Event)
	session *fakeSession
}

// fakeDialer records every Dial and fails the calls listed in failFrom
// onwards when failFrom > 0.
type fakeDialer struct {
	mu       sync.Mutex
	calls    []dialCall
	failFrom int
}

func (d *fakeDialer) Dial(_ context.Context, cfg ConnectionConfig, notify func(Event)) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failFrom > 0 && len(d.calls)+1 >= d.failFrom {
		d.calls = append(d.calls, dialCall{cfg: cfg, notify: notify})
		return nil, errors.New("dial refused")
	}
	s := &fakeSession{}
	d.calls = append(d.calls, dialCall{cfg: cfg, notify: notify, session: s})
	return s, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func (d *fakeDialer) call(i int) dialCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[i]
}

type eventRecorder struct {
	mu     sync.Mutex
	events []EventType
}

func (r *eventRecorder) record(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e.Type)
	r.mu.Unlock()
}

func (r *eventRecorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]EventType(nil), r.events...)
}

func testConfig() *ConnectionConfig {
	cfg := DefaultConnectionConfig()
	cfg.Host = "localhost"
	cfg.Username = "app"
	cfg.Password = "p@ss"
	cfg.DBName = "docs"
	return cfg
}

type harness struct {
	manager  AbstractConnectionManager
	dialer   *fakeDialer
	logger   *captureLogger
	recorder *eventRecorder
}

func newHarness(t *testing.T, cfg *ConnectionConfig) *harness {
	t.Helper()
	h := &harness{dialer: &fakeDialer{}, logger: &captureLogger{}, recorder: &eventRecorder{}}
	h.manager = NewConnectionManager(cfg, WithDialer(h.dialer), WithLogger(h.logger))
	h.manager.OnEvent(h.recorder.record)
	t.Cleanup(func() { _ = h.manager.Disconnect(context.Background()) })
	return h
}

func (h *harness) connectAndOpen(t *testing.T) {
	t.Helper()
	require.NoError(t, h.manager.Connect(context.Background()))
	require.Equal(t, 1, h.dialer.count())
	h.dialer.call(0).notify(NewEvent(EventOpen, nil))
	require.Eventually(t, func() bool { return h.manager.State() == StateOpen }, waitFor, tick)
}

func TestConnectReturnsBeforeOpen(t *testing.T) {
	h := newHarness(t, testConfig())
	require.NoError(t, h.manager.Connect(context.Background()))
	assert.Equal(t, StateConnecting, h.manager.State())
	assert.Equal(t, 1, h.dialer.count())

	h.dialer.call(0).notify(NewEvent(EventOpen, nil))
	require.Eventually(t, func() bool {
		return h.logger.count("info", "MongoDB connection is established.") == 1
	}, waitFor, tick)
	assert.Equal(t, StateOpen, h.manager.State())
	require.Eventually(t, func() bool { return len(h.recorder.types()) == 1 }, waitFor, tick)
	assert.Equal(t, []EventType{EventOpen}, h.recorder.types())
	assert.NoError(t, h.manager.Ping(context.Background()))
}

func TestDisconnectTriggersOneRedial(t *testing.T) {
	h := newHarness(t, testConfig())
	h.connectAndOpen(t)

	first := h.dialer.call(0)
	first.notify(NewEvent(EventDisconnected, nil))

	require.Eventually(t, func() bool { return h.dialer.count() == 2 }, waitFor, tick)
	assert.Never(t, func() bool { return h.dialer.count() > 2 }, 100*time.Millisecond, tick)
	assert.Equal(t, 1, h.logger.count("warn", "MongoDB disconnected."))
	assert.Equal(t, first.cfg, h.dialer.call(1).cfg)
	assert.Equal(t, 1, h.manager.Stats().Reconnects)

	// the replaced session is closed in the background
	require.Eventually(t, first.session.closed.Load, waitFor, tick)

	h.dialer.call(1).notify(NewEvent(EventOpen, nil))
	require.Eventually(t, func() bool {
		return h.logger.count("info", "MongoDB reconnected.") == 1
	}, waitFor, tick)
	assert.Equal(t, 1, h.logger.count("info", "MongoDB connection is established."))
	assert.Equal(t, StateOpen, h.manager.State())
	require.Eventually(t, func() bool { return len(h.recorder.types()) == 3 }, waitFor, tick)
	assert.Equal(t, []EventType{EventOpen, EventDisconnected, EventReconnected}, h.recorder.types())
}

func TestBackToBackDisconnectsRedialEachTime(t *testing.T) {
	cfg := testConfig()
	// keeps both redials pending while the live session reports twice
	cfg.ReconnectInterval = 100 * time.Millisecond
	h := newHarness(t, cfg)
	h.connectAndOpen(t)

	first := h.dialer.call(0)
	first.notify(NewEvent(EventDisconnected, nil))
	first.notify(NewEvent(EventDisconnected, nil))

	require.Eventually(t, func() bool { return h.dialer.count() == 3 }, waitFor, tick)
	assert.Never(t, func() bool { return h.dialer.count() > 3 }, 100*time.Millisecond, tick)
	assert.Equal(t, 2, h.logger.count("warn", "MongoDB disconnected."))
	assert.Equal(t, 2, h.manager.Stats().Reconnects)
	assert.Equal(t, first.cfg, h.dialer.call(1).cfg)
	assert.Equal(t, first.cfg, h.dialer.call(2).cfg)
	require.Eventually(t, func() bool { return len(h.recorder.types()) == 3 }, waitFor, tick)
	assert.Equal(t, []EventType{EventOpen, EventDisconnected, EventDisconnected}, h.recorder.types())

	// only the session dialed last is current, the other one is stale
	h.dialer.call(1).notify(NewEvent(EventOpen, nil))
	h.dialer.call(2).notify(NewEvent(EventOpen, nil))
	require.Eventually(t, func() bool { return h.manager.State() == StateOpen }, waitFor, tick)
	assert.Never(t, func() bool {
		return h.logger.count("info", "MongoDB reconnected.") > 1
	}, 100*time.Millisecond, tick)
}

func TestEveryDisconnectRedials(t *testing.T) {
	h := newHarness(t, testConfig())
	h.connectAndOpen(t)

	for i := 0; i < 3; i++ {
		h.dialer.call(i).notify(NewEvent(EventDisconnected, nil))
		require.Eventually(t, func() bool { return h.dialer.count() == i+2 }, waitFor, tick)
		h.dialer.call(i + 1).notify(NewEvent(EventOpen, nil))
		require.Eventually(t, func() bool { return h.manager.State() == StateOpen }, waitFor, tick)
	}
	require.Eventually(t, func() bool {
		return h.logger.count("info", "MongoDB reconnected.") == 3
	}, waitFor, tick)
	assert.Equal(t, 3, h.manager.Stats().Reconnects)
}

func TestErrorEventDoesNotRedial(t *testing.T) {
	h := newHarness(t, testConfig())
	require.NoError(t, h.manager.Connect(context.Background()))

	cause := errors.New("auth failed")
	h.dialer.call(0).notify(NewEvent(EventError, cause))

	require.Eventually(t, func() bool { return h.manager.State() == StateError }, waitFor, tick)
	entry, ok := h.logger.find("error", "MongoDB connection error")
	require.True(t, ok)
	assert.Equal(t, []interface{}{"error", cause}, entry.fields)
	assert.Never(t, func() bool { return h.dialer.count() > 1 }, 100*time.Millisecond, tick)
	assert.Equal(t, "auth failed", h.manager.Stats().LastError)
}

func TestErrorAfterOpenKeepsState(t *testing.T) {
	h := newHarness(t, testConfig())
	h.connectAndOpen(t)

	h.dialer.call(0).notify(NewEvent(EventError, errors.New("transient")))
	require.Eventually(t, func() bool {
		return h.logger.count("error", "MongoDB connection error") == 1
	}, waitFor, tick)
	assert.Equal(t, StateOpen, h.manager.State())
}

func TestEventsOfSupersededSessionAreIgnored(t *testing.T) {
	h := newHarness(t, testConfig())
	h.connectAndOpen(t)

	stale := h.dialer.call(0)
	stale.notify(NewEvent(EventDisconnected, nil))
	require.Eventually(t, func() bool { return h.dialer.count() == 2 }, waitFor, tick)

	stale.notify(NewEvent(EventOpen, nil))
	stale.notify(NewEvent(EventDisconnected, nil))
	assert.Never(t, func() bool {
		return h.dialer.count() > 2 || h.manager.State() != StateDisconnected
	}, 100*time.Millisecond, tick)
	assert.Equal(t, 0, h.logger.count("info", "MongoDB reconnected."))
}

func TestReconnectDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.EnableReconnect = false
	h := newHarness(t, cfg)
	h.connectAndOpen(t)

	h.dialer.call(0).notify(NewEvent(EventDisconnected, nil))
	require.Eventually(t, func() bool { return h.manager.State() == StateDisconnected }, waitFor, tick)
	assert.Never(t, func() bool { return h.dialer.count() > 1 }, 100*time.Millisecond, tick)
}

func TestMaxReconnectTries(t *testing.T) {
	cfg := testConfig()
	cfg.MaxReconnectTries = 2
	h := newHarness(t, cfg)
	h.dialer.failFrom = 2
	h.connectAndOpen(t)

	h.dialer.call(0).notify(NewEvent(EventDisconnected, nil))
	require.Eventually(t, func() bool {
		return h.logger.count("error", "Max reconnect attempts reached, stopping") == 1
	}, waitFor, tick)
	assert.Equal(t, StateError, h.manager.State())
	assert.Equal(t, 3, h.dialer.count())
	assert.Equal(t, 2, h.logger.count("error", "MongoDB connection error"))
}

func TestReconnectIntervalDelaysRedial(t *testing.T) {
	cfg := testConfig()
	cfg.ReconnectInterval = 150 * time.Millisecond
	h := newHarness(t, cfg)
	h.connectAndOpen(t)

	h.dialer.call(0).notify(NewEvent(EventDisconnected, nil))
	assert.Never(t, func() bool { return h.dialer.count() > 1 }, 50*time.Millisecond, tick)
	require.Eventually(t, func() bool { return h.dialer.count() == 2 }, waitFor, tick)
}

func TestConnectRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Password = ""
	h := newHarness(t, cfg)

	err := h.manager.Connect(context.Background())
	require.ErrorIs(t, err, ErrMissingConfig)
	assert.Zero(t, h.dialer.count())
}

func TestConnectDialFailure(t *testing.T) {
	h := newHarness(t, testConfig())
	h.dialer.failFrom = 1

	err := h.manager.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateError, h.manager.State())
	assert.Equal(t, 1, h.logger.count("error", "MongoDB connection error"))
}

func TestCollectionWithoutSession(t *testing.T) {
	m := NewConnectionManager(testConfig(), WithDialer(&fakeDialer{}), WithLogger(&captureLogger{}))
	ctx := context.Background()

	coll := m.Collection("users")
	assert.Equal(t, "users", coll.Name())
	_, err := coll.Find(ctx, bson.M{}, nil)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.True(t, IsConnectionError(err))
	assert.ErrorIs(t, m.Ping(ctx), ErrNotConnected)

	status := m.HealthCheck(ctx)
	assert.False(t, status.Healthy)
	assert.Equal(t, ErrNotConnected.Error(), status.LastError)
}

func TestDisconnectStopsHandling(t *testing.T) {
	h := newHarness(t, testConfig())
	h.connectAndOpen(t)
	session := h.dialer.call(0).session

	require.NoError(t, h.manager.Disconnect(context.Background()))
	assert.True(t, session.closed.Load())
	assert.Equal(t, StateDisconnected, h.manager.State())

	h.dialer.call(0).notify(NewEvent(EventDisconnected, nil))
	assert.Never(t, func() bool { return h.dialer.count() > 1 }, 100*time.Millisecond, tick)
	assert.ErrorIs(t, h.manager.Ping(context.Background()), ErrNotConnected)
}

func TestManualReconnect(t *testing.T) {
	h := newHarness(t, testConfig())
	h.connectAndOpen(t)

	require.NoError(t, h.manager.Reconnect(context.Background()))
	require.Equal(t, 2, h.dialer.count())
	assert.Equal(t, StateConnecting, h.manager.State())

	h.dialer.call(1).notify(NewEvent(EventOpen, nil))
	require.Eventually(t, func() bool {
		return h.logger.count("info", "MongoDB connection is established.") == 2
	}, waitFor, tick)
}

func TestSQLiteBackendLifecycle(t *testing.T) {
	logger := &captureLogger{}
	cfg := &ConnectionConfig{
		Type:            TypeSQLite,
		DBName:          fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		EnableReconnect: true,
	}
	m := NewConnectionManager(cfg, WithLogger(logger), WithDialer(&SQLDialer{ProbeInterval: 20 * time.Millisecond}))
	t.Cleanup(func() { _ = m.Disconnect(context.Background()) })

	ctx := context.Background()
	require.NoError(t, m.Connect(ctx))
	require.Eventually(t, func() bool {
		return logger.count("info", "SQLite connection is established.") == 1
	}, waitFor, tick)

	notes := m.Collection("notes")
	id, err := notes.InsertOne(ctx, bson.D{{Key: "title", Value: "hello"}})
	require.NoError(t, err)
	raw, err := notes.FindOne(ctx, bson.M{"_id": id}, nil)
	require.NoError(t, err)
	require.NotNil(t, raw)
	assert.Equal(t, "hello", raw.Lookup("title").StringValue())

	n, err := notes.CountDocuments(ctx, bson.M{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
