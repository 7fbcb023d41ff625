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
	"sync"
)

var (
	globalMu      sync.RWMutex
	globalFactory *BaseConnectionFactory
	globalConfig  *Config
)

// GetManager returns the process-wide connection manager, or nil before
// InitDB.
func GetManager() AbstractConnectionManager {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalFactory != nil {
		return globalFactory.GetManager()
	}
	return nil
}

// GetConnectionFactory returns the global connection factory.
func GetConnectionFactory() *BaseConnectionFactory {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalFactory
}

// GetConfig returns the configuration passed to InitDB.
func GetConfig() *Config {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalConfig
}

// InitDB builds the process-wide connection handle and starts connecting.
// It returns before the backend is reachable.
func InitDB(cfg *Config, opts ...Option) (AbstractConnectionManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	factory := NewConnectionFactory(opts...)
	manager, err := factory.CreateFromConfig(&cfg.ConnectionConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection manager: %w", err)
	}
	if err := factory.InitializeConnection(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	globalMu.Lock()
	previous := globalFactory
	globalFactory = factory
	globalConfig = cfg
	globalMu.Unlock()
	if previous != nil {
		_ = previous.Close(context.Background())
	}
	return manager, nil
}

// CloseDB disconnects the process-wide handle.
func CloseDB() error {
	globalMu.Lock()
	factory := globalFactory
	globalFactory = nil
	globalMu.Unlock()
	if factory != nil {
		return factory.Close(context.Background())
	}
	return nil
}

// GetHealthStatus returns the current database health status.
func GetHealthStatus(ctx context.Context) *HealthStatus {
	if factory := GetConnectionFactory(); factory != nil {
		return factory.GetHealthStatus(ctx)
	}
	return &HealthStatus{
		Healthy:   false,
		Connected: false,
		LastError: "Database not initialized",
	}
}

// GetStats returns global lifecycle statistics.
func GetStats() *Stats {
	if factory := GetConnectionFactory(); factory != nil {
		return factory.GetStats()
	}
	return &Stats{}
}

// GetCollection resolves name against the process-wide handle. Before InitDB
// every operation of the returned collection fails with ErrNotConnected.
func GetCollection(name string) Collection {
	if manager := GetManager(); manager != nil {
		return manager.Collection(name)
	}
	return disconnectedCollection(name)
}
