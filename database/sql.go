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
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/tomoncle/docrepo/docsql"
)

const defaultProbeInterval = 10 * time.Second

// SQLDialer opens a bun database holding documents in one table. SQL drivers
// have no topology events, so a ping loop reports availability changes.
type SQLDialer struct {
	// ProbeInterval overrides the heartbeat interval of the config.
	ProbeInterval time.Duration
}

func (d *SQLDialer) Dial(ctx context.Context, cfg ConnectionConfig, notify func(Event)) (Session, error) {
	db, err := openBunDB(cfg)
	if err != nil {
		return nil, err
	}
	interval := d.ProbeInterval
	if interval <= 0 {
		interval = cfg.HeartbeatInterval
	}
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s := &sqlSession{
		db:      db,
		store:   docsql.New(db),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.heartbeat(interval, timeout, notify)
	return s, nil
}

func openBunDB(cfg ConnectionConfig) (*bun.DB, error) {
	dsn, err := BuildDSN(cfg)
	if err != nil {
		return nil, err
	}

	var db *bun.DB
	switch cfg.Type {
	case TypeMySQL:
		sqlDB, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, err
		}
		db = bun.NewDB(sqlDB, mysqldialect.New())
	case TypePostgres:
		sqlDB, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, err
		}
		db = bun.NewDB(sqlDB, pgdialect.New())
	case TypeSQLite:
		sqlDB, err := sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, err
		}
		// SQLite serialises writers; one connection avoids "database is locked".
		sqlDB.SetMaxOpenConns(1)
		db = bun.NewDB(sqlDB, sqlitedialect.New())
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	if cfg.Type != TypeSQLite {
		configureConnectionPool(db.DB, cfg)
	}
	if cfg.EnableQueryLog {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	if cfg.SlowQueryTime > 0 {
		db.AddQueryHook(NewSlowQueryHook(cfg.SlowQueryTime))
	}
	return db, nil
}

func configureConnectionPool(sqlDB *sql.DB, cfg ConnectionConfig) {
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
}

type sqlSession struct {
	db       *bun.DB
	store    *docsql.Store
	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

func (s *sqlSession) Collection(name string) Collection {
	return s.store.Collection(name)
}

func (s *sqlSession) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlSession) Close(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	select {
	case <-s.stopped:
	case <-ctx.Done():
	}
	return s.db.Close()
}

// heartbeat pings immediately and then every interval, reporting the first
// failure before the backend was ever reachable as an error and later
// transitions as open or disconnected.
func (s *sqlSession) heartbeat(interval, timeout time.Duration, notify func(Event)) {
	defer close(s.stopped)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	available, failed := false, false
	for {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err := s.db.PingContext(ctx)
		if err == nil {
			err = s.store.EnsureSchema(ctx)
		}
		cancel()

		switch {
		case err == nil && !available:
			available, failed = true, false
			notify(NewEvent(EventOpen, nil))
		case err != nil && available:
			available, failed = false, true
			notify(NewEvent(EventDisconnected, err))
		case err != nil && !failed:
			failed = true
			notify(NewEvent(EventError, err))
		}

		select {
		case <-ticker.C:
		case <-s.stop:
			return
		}
	}
}
