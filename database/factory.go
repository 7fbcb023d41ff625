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
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// BaseConnectionFactory creates and manages a configured connection manager
// and provides helpers for initialization, health checks, and statistics.
type BaseConnectionFactory struct {
	manager AbstractConnectionManager
	logger  Logger
	opts    []Option
}

// NewConnectionFactory returns a new factory using the global logger. opts
// are passed to every manager it creates.
func NewConnectionFactory(opts ...Option) *BaseConnectionFactory {
	return &BaseConnectionFactory{
		logger: GetLogger(),
		opts:   opts,
	}
}

// CreateFromConfig constructs a connection manager from the given
// configuration after applying environment overrides.
func (f *BaseConnectionFactory) CreateFromConfig(cfg *ConnectionConfig) (AbstractConnectionManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}

	// Override sensitive config from environment variables
	overrideFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := append([]Option{WithLogger(f.logger)}, f.opts...)
	manager := NewConnectionManager(cfg, opts...)
	f.manager = manager
	return manager, nil
}

// overrideFromEnv overrides configuration values from DB_* environment
// variables. Durations accept Go syntax ("5s") or whole seconds.
func overrideFromEnv(cfg *ConnectionConfig) {
	// Database connection info
	if typ := os.Getenv("DB_TYPE"); typ != "" {
		cfg.Type = strings.ToLower(typ)
	}
	if scheme := os.Getenv("DB_SCHEME"); scheme != "" {
		cfg.Scheme = scheme
	}
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	envInt("DB_PORT", &cfg.Port)
	if username := os.Getenv("DB_USERNAME"); username != "" {
		cfg.Username = username
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}
	if authSource := os.Getenv("DB_AUTH_SOURCE"); authSource != "" {
		cfg.AuthSource = authSource
	}
	if replicaSet := os.Getenv("DB_REPLICA_SET"); replicaSet != "" {
		cfg.ReplicaSet = replicaSet
	}
	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.SSLMode = sslmode
	}

	// Connection pool config
	if maxPool := os.Getenv("DB_MAX_POOL_SIZE"); maxPool != "" {
		if val, err := strconv.ParseUint(maxPool, 10, 64); err == nil {
			cfg.MaxPoolSize = val
		}
	}
	envInt("DB_MAX_IDLE_CONNS", &cfg.MaxIdleConns)
	envInt("DB_MAX_OPEN_CONNS", &cfg.MaxOpenConns)
	envDuration("DB_CONN_MAX_LIFETIME", &cfg.ConnMaxLifetime)
	envDuration("DB_CONNECT_TIMEOUT", &cfg.ConnectTimeout)
	envDuration("DB_HEARTBEAT_INTERVAL", &cfg.HeartbeatInterval)

	// Reconnect config
	if enableReconnect := os.Getenv("DB_ENABLE_RECONNECT"); enableReconnect != "" {
		cfg.EnableReconnect = enableReconnect == "true"
	}
	envDuration("DB_RECONNECT_INTERVAL", &cfg.ReconnectInterval)
	envInt("DB_MAX_RECONNECT_TRIES", &cfg.MaxReconnectTries)

	// Logging config
	if enableQueryLog := os.Getenv("DB_ENABLE_QUERY_LOG"); enableQueryLog != "" {
		cfg.EnableQueryLog = enableQueryLog == "true"
	}
	envDuration("DB_SLOW_QUERY_TIME", &cfg.SlowQueryTime)
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			*dst = val
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	if val, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(val) * time.Second
	}
}

// InitializeConnection starts the connection of the managed handle.
func (f *BaseConnectionFactory) InitializeConnection(ctx context.Context) error {
	if f.manager == nil {
		return fmt.Errorf("connection manager not created")
	}
	if err := f.manager.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	f.logger.Info("Database initialization completed!", "type", f.manager.Config().Type)
	return nil
}

// GetManager returns the underlying connection manager.
func (f *BaseConnectionFactory) GetManager() AbstractConnectionManager {
	return f.manager
}

// SetLogger sets the logger on the factory and the underlying manager.
func (f *BaseConnectionFactory) SetLogger(logger Logger) {
	f.logger = logger
	if f.manager != nil {
		f.manager.SetLogger(logger)
	}
}

// Close disconnects the managed handle.
func (f *BaseConnectionFactory) Close(ctx context.Context) error {
	if f.manager == nil {
		return nil
	}
	return f.manager.Disconnect(ctx)
}

// GetHealthStatus returns the current health status from the manager.
func (f *BaseConnectionFactory) GetHealthStatus(ctx context.Context) *HealthStatus {
	if f.manager == nil {
		return &HealthStatus{
			Healthy:       false,
			Connected:     false,
			LastError:     "Connection manager not initialized",
			LastCheckTime: time.Now(),
		}
	}
	return f.manager.HealthCheck(ctx)
}

// GetStats returns lifecycle statistics from the manager.
func (f *BaseConnectionFactory) GetStats() *Stats {
	if f.manager == nil {
		return &Stats{}
	}
	return f.manager.Stats()
}
