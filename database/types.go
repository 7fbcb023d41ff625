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
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/tomoncle/docrepo/types"
)

// Supported backend types.
const (
	TypeMongoDB  = "mongodb"
	TypeMySQL    = "mysql"
	TypePostgres = "postgres"
	TypeSQLite   = "sqlite"

	SchemeMongoDB    = "mongodb"
	SchemeMongoDBSRV = "mongodb+srv"
)

// AbstractConnectionManager owns one logical connection handle, reacts to
// its lifecycle events and hands out collections bound to the live session.
type AbstractConnectionManager interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Reconnect(ctx context.Context) error
	Ping(ctx context.Context) error
	HealthCheck(ctx context.Context) *HealthStatus
	State() ConnectionState
	Stats() *Stats
	Collection(name string) Collection
	OnEvent(fn func(Event))
	SetLogger(logger Logger)
	Config() ConnectionConfig
}

// AbstractDatabaseConfigProvider exposes configuration loading.
type AbstractDatabaseConfigProvider interface {
	ConfigLoader() *Config
}

// Collection is the driver-level surface a repository delegates to. FindOne
// returns a nil document and a nil error when nothing matches.
type Collection interface {
	Name() string
	InsertOne(ctx context.Context, doc bson.D) (interface{}, error)
	Find(ctx context.Context, filter bson.M, opts *types.FindOptions) ([]bson.Raw, error)
	FindOne(ctx context.Context, filter bson.M, opts *types.FindOptions) (bson.Raw, error)
	UpdateOne(ctx context.Context, filter, update bson.M, opts *types.UpdateOptions) (*types.UpdateResult, error)
	UpdateMany(ctx context.Context, filter, update bson.M, opts *types.UpdateOptions) (*types.UpdateResult, error)
	DeleteOne(ctx context.Context, filter bson.M) (*types.DeleteResult, error)
	CountDocuments(ctx context.Context, filter bson.M) (int64, error)
}

// Session is one live client produced by a Dialer.
type Session interface {
	Collection(name string) Collection
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Dialer starts a session. Dial must not wait for the backend to become
// reachable; availability is reported through notify.
type Dialer interface {
	Dial(ctx context.Context, cfg ConnectionConfig, notify func(Event)) (Session, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, cfg ConnectionConfig, notify func(Event)) (Session, error)

func (f DialerFunc) Dial(ctx context.Context, cfg ConnectionConfig, notify func(Event)) (Session, error) {
	return f(ctx, cfg, notify)
}

// HealthStatus holds the result of a health check against the database.
type HealthStatus struct {
	Healthy       bool            `json:"healthy"`
	Connected     bool            `json:"connected"`
	State         ConnectionState `json:"state"`
	ResponseTime  time.Duration   `json:"response_time"`
	Generation    uint64          `json:"generation"`
	Reconnects    int             `json:"reconnects"`
	LastError     string          `json:"last_error,omitempty"`
	LastCheckTime time.Time       `json:"last_check_time"`
}

// Stats summarises the lifecycle of the connection handle.
type Stats struct {
	Type       string          `json:"type"`
	State      ConnectionState `json:"state"`
	Generation uint64          `json:"generation"`
	Reconnects int             `json:"reconnects"`
	LastEvent  EventType       `json:"last_event"`
	LastError  string          `json:"last_error,omitempty"`
}

// ConnectionConfig describes how to connect to a database and tune its pool.
type ConnectionConfig struct {
	Type                   string        `json:"type" yaml:"type"`     // mongodb、mysql、postgres、sqlite
	Scheme                 string        `json:"scheme" yaml:"scheme"` // mongodb、mongodb+srv
	Host                   string        `json:"host" yaml:"host"`
	Port                   int           `json:"port" yaml:"port"`
	Username               string        `json:"username" yaml:"username"`
	Password               string        `json:"password" yaml:"password"`
	DBName                 string        `json:"dbname" yaml:"dbname"`
	AuthSource             string        `json:"auth_source" yaml:"auth_source"`
	ReplicaSet             string        `json:"replica_set" yaml:"replica_set"`
	SSLMode                string        `json:"sslmode" yaml:"sslmode"`
	MaxPoolSize            uint64        `json:"max_pool_size" yaml:"max_pool_size"`
	MaxIdleConns           int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	MaxOpenConns           int           `json:"max_open_conns" yaml:"max_open_conns"`
	ConnMaxLifetime        time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime        time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time"`
	ConnectTimeout         time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	ServerSelectionTimeout time.Duration `json:"server_selection_timeout" yaml:"server_selection_timeout"`
	HeartbeatInterval      time.Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`
	EnableReconnect        bool          `json:"enable_reconnect" yaml:"enable_reconnect"`
	ReconnectInterval      time.Duration `json:"reconnect_interval" yaml:"reconnect_interval"`
	MaxReconnectTries      int           `json:"max_reconnect_tries" yaml:"max_reconnect_tries"`
	EnableQueryLog         bool          `json:"enable_query_log" yaml:"enable_query_log"`
	SlowQueryTime          time.Duration `json:"slow_query_time" yaml:"slow_query_time"`
}

// LoggingConfig selects the level and format of the default loggers.
type LoggingConfig struct {
	Level   string `json:"level" yaml:"level"`
	Format  string `json:"format" yaml:"format"`   // text、json
	Backend string `json:"backend" yaml:"backend"` // logrus、zerolog
}

// Config aggregates connection and logging settings.
type Config struct {
	ConnectionConfig ConnectionConfig `json:"connection_config" yaml:"database"`
	Logging          LoggingConfig    `json:"logging" yaml:"logging"`
}

// DefaultConnectionConfig returns a MongoDB connection config. Reconnect is
// immediate and unbounded; ReconnectInterval and MaxReconnectTries opt in to
// a bounded policy.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Type:                   TypeMongoDB,
		Scheme:                 SchemeMongoDB,
		Port:                   27017,
		MaxPoolSize:            100,
		MaxIdleConns:           10,
		MaxOpenConns:           100,
		ConnMaxLifetime:        time.Hour,
		ConnMaxIdleTime:        time.Minute * 30,
		ConnectTimeout:         time.Second * 10,
		ServerSelectionTimeout: time.Second * 30,
		HeartbeatInterval:      time.Second * 10,
		EnableReconnect:        true,
		ReconnectInterval:      0,
		MaxReconnectTries:      0,
		EnableQueryLog:         false,
		SlowQueryTime:          time.Second * 2,
	}
}

// DefaultConfig wraps DefaultConnectionConfig with info level text logging.
func DefaultConfig() *Config {
	return &Config{
		ConnectionConfig: *DefaultConnectionConfig(),
		Logging:          LoggingConfig{Level: "info", Format: "text", Backend: "logrus"},
	}
}
