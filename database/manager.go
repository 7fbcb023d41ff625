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
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/tomoncle/docrepo/types"
)

// ErrNotConnected is returned by collections obtained while no session is
// installed.
var ErrNotConnected = errors.New("database not connected")

const eventBufferSize = 64

// Option configures a connection manager.
type Option func(*connectionManager)

// WithDialer replaces the backend dialer chosen from the config type.
func WithDialer(d Dialer) Option {
	return func(m *connectionManager) { m.dialer = d }
}

func WithLogger(l Logger) Option {
	return func(m *connectionManager) {
		if l != nil {
			m.logger = l
		}
	}
}

type connectionManager struct {
	config ConnectionConfig
	dialer Dialer
	logger Logger

	mu         sync.RWMutex
	session    Session
	sessionGen uint64
	generation uint64
	state      ConnectionState
	opened     bool
	closed     bool
	indexedGen uint64
	tries      int
	reconnects int
	lastEvent  EventType
	lastError  error
	events     chan Event
	done       chan struct{}
	observers  []func(Event)
}

// NewConnectionManager returns a manager for config. If config is nil, the
// default configuration is used.
func NewConnectionManager(config *ConnectionConfig, opts ...Option) AbstractConnectionManager {
	if config == nil {
		config = DefaultConnectionConfig()
	}
	m := &connectionManager{
		config: *config,
		logger: GetLogger(),
		state:  StateDisconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dialer == nil {
		m.dialer = dialerFor(m.config.Type)
	}
	return m
}

func dialerFor(typ string) Dialer {
	switch typ {
	case TypeMySQL, TypePostgres, TypeSQLite:
		return &SQLDialer{}
	}
	return &MongoDialer{}
}

func (m *connectionManager) log() Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.logger
}

func (m *connectionManager) backend() string { return backendName(m.config.Type) }

// Connect validates the configuration and starts an asynchronous
// connection attempt. Configuration errors are returned and not retried.
func (m *connectionManager) Connect(ctx context.Context) error {
	if err := m.config.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.session != nil && !m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = false
	m.opened = false
	m.tries = 0
	m.state = StateConnecting
	if m.done != nil {
		close(m.done)
	}
	m.events = make(chan Event, eventBufferSize)
	m.done = make(chan struct{})
	go m.loop(m.events, m.done)
	m.mu.Unlock()

	return m.dial(ctx)
}

// dial starts a new session with a copy of the configuration. Events of
// earlier sessions are ignored from here on.
func (m *connectionManager) dial(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrNotConnected
	}
	m.generation++
	gen := m.generation
	cfg := m.config
	notify := m.notifier(gen, m.events, m.done)
	m.mu.Unlock()

	session, err := m.dialer.Dial(ctx, cfg, notify)
	if err != nil {
		m.mu.Lock()
		if m.generation == gen {
			m.lastError = err
			if m.state == StateConnecting {
				m.state = StateError
			}
		}
		m.mu.Unlock()
		m.log().Error(fmt.Sprintf("%s connection error", m.backend()), "error", err)
		return fmt.Errorf("failed to start %s connection: %w", cfg.Type, err)
	}

	m.mu.Lock()
	if m.generation != gen || m.closed {
		m.mu.Unlock()
		go m.closeSession(session)
		return nil
	}
	previous := m.session
	m.session = session
	m.sessionGen = gen
	ensure := m.state == StateOpen && m.indexedGen != gen
	m.mu.Unlock()

	if previous != nil {
		go m.closeSession(previous)
	}
	if ensure {
		m.ensureIndexes(gen)
	}
	return nil
}

func (m *connectionManager) notifier(gen uint64, events chan Event, done chan struct{}) func(Event) {
	return func(e Event) {
		e.generation = gen
		if e.At.IsZero() {
			e.At = time.Now()
		}
		select {
		case events <- e:
		case <-done:
		}
	}
}

func (m *connectionManager) loop(events chan Event, done chan struct{}) {
	for {
		select {
		case e := <-events:
			m.handle(e)
		case <-done:
			return
		}
	}
}

// handle reacts to one lifecycle event. It runs on the loop goroutine only.
func (m *connectionManager) handle(e Event) {
	m.mu.Lock()
	if e.generation != m.generation || m.closed {
		m.mu.Unlock()
		m.log().Debug("Ignoring event of a superseded session", "event", e.Type.Name())
		return
	}
	switch e.Type {
	case EventError:
		m.lastError = e.Err
		if m.state == StateConnecting {
			m.state = StateError
		}
		m.lastEvent = EventError
		m.mu.Unlock()
		m.log().Error(fmt.Sprintf("%s connection error", m.backend()), "error", e.Err)

	case EventOpen, EventReconnected:
		if m.state == StateOpen {
			m.mu.Unlock()
			return
		}
		e.Type = EventOpen
		if m.opened {
			e.Type = EventReconnected
		}
		m.opened = true
		m.state = StateOpen
		m.tries = 0
		m.lastError = nil
		m.lastEvent = e.Type
		installed := m.sessionGen == e.generation
		m.mu.Unlock()
		if e.Type == EventReconnected {
			m.log().Info(fmt.Sprintf("%s reconnected.", m.backend()))
		} else {
			m.log().Info(fmt.Sprintf("%s connection is established.", m.backend()))
		}
		if installed {
			m.ensureIndexes(e.generation)
		}

	case EventDisconnected:
		m.state = StateDisconnected
		if e.Err != nil {
			m.lastError = e.Err
		}
		m.lastEvent = EventDisconnected
		m.mu.Unlock()
		if e.Err != nil {
			m.log().Warn(fmt.Sprintf("%s disconnected.", m.backend()), "error", e.Err)
		} else {
			m.log().Warn(fmt.Sprintf("%s disconnected.", m.backend()))
		}
		m.redial()

	default:
		m.mu.Unlock()
		return
	}
	m.publish(e)
}

// redial issues one new connection attempt with the same configuration for
// every disconnect of the current session. With MaxReconnectTries set, a failed attempt is retried
// until the limit is reached.
func (m *connectionManager) redial() {
	m.mu.Lock()
	if !m.config.EnableReconnect {
		m.mu.Unlock()
		m.log().Warn("Reconnect is disabled, the handle stays disconnected")
		return
	}
	if limit := m.config.MaxReconnectTries; limit > 0 && m.tries >= limit {
		m.state = StateError
		m.mu.Unlock()
		m.log().Error("Max reconnect attempts reached, stopping", "tries", limit)
		return
	}
	m.tries++
	m.reconnects++
	interval := m.config.ReconnectInterval
	timeout := m.config.ConnectTimeout
	bounded := m.config.MaxReconnectTries > 0
	done := m.done
	m.mu.Unlock()

	go func() {
		if interval > 0 {
			select {
			case <-time.After(interval):
			case <-done:
				return
			}
		}
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		// dial logs its own failures. Only the bounded policy retries them.
		if err := m.dial(ctx); err != nil && bounded && !errors.Is(err, ErrNotConnected) {
			m.redial()
		}
	}()
}

func (m *connectionManager) publish(e Event) {
	m.mu.RLock()
	observers := make([]func(Event), len(m.observers))
	copy(observers, m.observers)
	m.mu.RUnlock()
	for _, fn := range observers {
		fn(e)
	}
}

// OnEvent registers fn for every handled lifecycle event. fn runs on the
// event loop and must not block.
func (m *connectionManager) OnEvent(fn func(Event)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

func (m *connectionManager) ensureIndexes(gen uint64) {
	specs := RegisteredIndexes()
	m.mu.Lock()
	if m.generation != gen || m.indexedGen == gen || m.sessionGen != gen {
		m.mu.Unlock()
		return
	}
	m.indexedGen = gen
	session := m.session
	timeout := m.config.ConnectTimeout
	m.mu.Unlock()

	ix, ok := session.(indexEnsurer)
	if !ok || len(specs) == 0 {
		return
	}
	go func() {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if err := ix.EnsureIndexes(ctx, specs); err != nil {
			m.log().Error("Failed to ensure indexes", "error", err)
			return
		}
		m.log().Debug("Indexes ensured", "count", len(specs))
	}()
}

func (m *connectionManager) closeSession(s Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		m.log().Debug("Failed to close superseded session", "error", err)
	}
}

func (m *connectionManager) current() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil
	}
	return m.session
}

func (m *connectionManager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	session := m.session
	m.session = nil
	m.generation++
	m.closed = true
	m.state = StateDisconnected
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
	m.mu.Unlock()

	if session == nil {
		return nil
	}
	err := session.Close(ctx)
	if err != nil {
		m.log().Error("Failed to close database connection", "error", err)
	} else {
		m.log().Info("Database connection closed")
	}
	return err
}

func (m *connectionManager) Reconnect(ctx context.Context) error {
	m.log().Info("Attempting to reconnect to the database")
	if err := m.Disconnect(ctx); err != nil {
		m.log().Warn("Error disconnecting existing connection", "error", err)
	}
	return m.Connect(ctx)
}

func (m *connectionManager) Ping(ctx context.Context) error {
	session := m.current()
	if session == nil {
		return ErrNotConnected
	}
	return session.Ping(ctx)
}

func (m *connectionManager) HealthCheck(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{LastCheckTime: start}

	ctxTimeout, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()
	err := m.Ping(ctxTimeout)
	status.ResponseTime = time.Since(start)

	m.mu.RLock()
	status.State = m.state
	status.Generation = m.generation
	status.Reconnects = m.reconnects
	lastErr := m.lastError
	m.mu.RUnlock()

	if err != nil {
		status.LastError = err.Error()
		return status
	}
	status.Healthy = true
	status.Connected = true
	if lastErr != nil && status.State != StateOpen {
		status.LastError = lastErr.Error()
	}
	return status
}

func (m *connectionManager) State() ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *connectionManager) Stats() *Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := &Stats{
		Type:       m.config.Type,
		State:      m.state,
		Generation: m.generation,
		Reconnects: m.reconnects,
		LastEvent:  m.lastEvent,
	}
	if m.lastError != nil {
		stats.LastError = m.lastError.Error()
	}
	return stats
}

// Collection resolves name against the live session. Without one, every
// operation fails with ErrNotConnected.
func (m *connectionManager) Collection(name string) Collection {
	if session := m.current(); session != nil {
		return session.Collection(name)
	}
	return disconnectedCollection(name)
}

func (m *connectionManager) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	m.mu.Lock()
	m.logger = logger
	m.mu.Unlock()
}

func (m *connectionManager) Config() ConnectionConfig {
	return m.config
}

type disconnectedCollection string

func (c disconnectedCollection) Name() string { return string(c) }

func (c disconnectedCollection) InsertOne(context.Context, bson.D) (interface{}, error) {
	return nil, ErrNotConnected
}

func (c disconnectedCollection) Find(context.Context, bson.M, *types.FindOptions) ([]bson.Raw, error) {
	return nil, ErrNotConnected
}

func (c disconnectedCollection) FindOne(context.Context, bson.M, *types.FindOptions) (bson.Raw, error) {
	return nil, ErrNotConnected
}

func (c disconnectedCollection) UpdateOne(context.Context, bson.M, bson.M, *types.UpdateOptions) (*types.UpdateResult, error) {
	return nil, ErrNotConnected
}

func (c disconnectedCollection) UpdateMany(context.Context, bson.M, bson.M, *types.UpdateOptions) (*types.UpdateResult, error) {
	return nil, ErrNotConnected
}

func (c disconnectedCollection) DeleteOne(context.Context, bson.M) (*types.DeleteResult, error) {
	return nil, ErrNotConnected
}

func (c disconnectedCollection) CountDocuments(context.Context, bson.M) (int64, error) {
	return 0, ErrNotConnected
}
