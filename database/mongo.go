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
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/description"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/tomoncle/docrepo/types"
)

// MongoDialer connects with the official MongoDB driver. Availability
// changes are taken from the driver's server monitor.
type MongoDialer struct{}

func (d *MongoDialer) Dial(ctx context.Context, cfg ConnectionConfig, notify func(Event)) (Session, error) {
	uri, err := BuildURI(cfg)
	if err != nil {
		return nil, err
	}
	watcher := newTopologyWatcher(notify)
	clientOptions := options.Client().
		ApplyURI(uri).
		SetServerMonitor(watcher.monitor()).
		SetReadPreference(readpref.Primary())
	if cfg.MaxPoolSize > 0 {
		clientOptions.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	if cfg.ConnectTimeout > 0 {
		clientOptions.SetConnectTimeout(cfg.ConnectTimeout)
	}
	if cfg.ServerSelectionTimeout > 0 {
		clientOptions.SetServerSelectionTimeout(cfg.ServerSelectionTimeout)
	}
	if cfg.HeartbeatInterval > 0 {
		clientOptions.SetHeartbeatInterval(cfg.HeartbeatInterval)
	}
	if cfg.ConnMaxIdleTime > 0 {
		clientOptions.SetMaxConnIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.EnableQueryLog || cfg.SlowQueryTime > 0 {
		clientOptions.SetMonitor(newCommandLogger(cfg.EnableQueryLog, cfg.SlowQueryTime).monitor())
	}
	if err := clientOptions.Validate(); err != nil {
		return nil, err
	}

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}
	return &mongoSession{client: client, db: client.Database(cfg.DBName)}, nil
}

// topologyWatcher turns server monitor callbacks into lifecycle events. Only
// availability transitions are reported, so a flapping heartbeat yields one
// error per outage instead of one per heartbeat.
type topologyWatcher struct {
	mu        sync.Mutex
	available bool
	failed    bool
	notify    func(Event)
}

func newTopologyWatcher(notify func(Event)) *topologyWatcher {
	return &topologyWatcher{notify: notify}
}

func (w *topologyWatcher) monitor() *event.ServerMonitor {
	return &event.ServerMonitor{
		TopologyDescriptionChanged: func(e *event.TopologyDescriptionChangedEvent) {
			w.topologyChanged(e.NewDescription)
		},
		ServerHeartbeatFailed: func(e *event.ServerHeartbeatFailedEvent) {
			w.heartbeatFailed(e.Failure)
		},
	}
}

func (w *topologyWatcher) topologyChanged(t description.Topology) {
	available := topologyAvailable(t)
	w.mu.Lock()
	if available == w.available {
		w.mu.Unlock()
		return
	}
	w.available = available
	w.failed = false
	w.mu.Unlock()

	if available {
		w.notify(NewEvent(EventOpen, nil))
	} else {
		w.notify(NewEvent(EventDisconnected, nil))
	}
}

func (w *topologyWatcher) heartbeatFailed(err error) {
	w.mu.Lock()
	if w.failed || w.available {
		w.mu.Unlock()
		return
	}
	w.failed = true
	w.mu.Unlock()
	w.notify(NewEvent(EventError, err))
}

// topologyAvailable reports whether at least one server can take
// operations.
func topologyAvailable(t description.Topology) bool {
	for _, s := range t.Servers {
		switch s.Kind {
		case description.Standalone, description.RSPrimary, description.RSSecondary,
			description.Mongos, description.LoadBalancer:
			return true
		}
	}
	return false
}

type mongoSession struct {
	client *mongo.Client
	db     *mongo.Database
}

func (s *mongoSession) Collection(name string) Collection {
	return &mongoCollection{coll: s.db.Collection(name)}
}

func (s *mongoSession) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *mongoSession) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *mongoSession) EnsureIndexes(ctx context.Context, specs []IndexSpec) error {
	var errs []error
	for _, spec := range specs {
		opts := options.Index().SetUnique(spec.Unique)
		if spec.Name != "" {
			opts.SetName(spec.Name)
		}
		_, err := s.db.Collection(spec.Collection).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    spec.Keys,
			Options: opts,
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// mongoCollection adapts *mongo.Collection to Collection.
type mongoCollection struct {
	coll *mongo.Collection
}

func (c *mongoCollection) Name() string { return c.coll.Name() }

func (c *mongoCollection) InsertOne(ctx context.Context, doc bson.D) (interface{}, error) {
	res, err := c.coll.InsertOne(ctx, doc)
	if err != nil {
		return nil, err
	}
	return res.InsertedID, nil
}

func (c *mongoCollection) Find(ctx context.Context, filter bson.M, opts *types.FindOptions) ([]bson.Raw, error) {
	if filter == nil {
		return nil, types.ErrNilFilter
	}
	findOptions := options.Find()
	if opts != nil {
		if opts.Projection != nil {
			findOptions.SetProjection(opts.Projection)
		}
		if opts.Sort != nil {
			findOptions.SetSort(opts.Sort)
		}
		if opts.Skip != nil {
			findOptions.SetSkip(*opts.Skip)
		}
		if opts.Limit != nil {
			findOptions.SetLimit(*opts.Limit)
		}
	}
	cursor, err := c.coll.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cursor.Close(ctx) }()

	out := make([]bson.Raw, 0)
	for cursor.Next(ctx) {
		out = append(out, append(bson.Raw(nil), cursor.Current...))
	}
	return out, cursor.Err()
}

func (c *mongoCollection) FindOne(ctx context.Context, filter bson.M, opts *types.FindOptions) (bson.Raw, error) {
	if filter == nil {
		return nil, types.ErrNilFilter
	}
	findOptions := options.FindOne()
	if opts != nil {
		if opts.Projection != nil {
			findOptions.SetProjection(opts.Projection)
		}
		if opts.Sort != nil {
			findOptions.SetSort(opts.Sort)
		}
		if opts.Skip != nil {
			findOptions.SetSkip(*opts.Skip)
		}
	}
	raw, err := c.coll.FindOne(ctx, filter, findOptions).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *mongoCollection) UpdateOne(ctx context.Context, filter, update bson.M, opts *types.UpdateOptions) (*types.UpdateResult, error) {
	if err := checkUpdate(filter, update); err != nil {
		return nil, err
	}
	res, err := c.coll.UpdateOne(ctx, filter, update, updateOptions(opts))
	return toUpdateResult(res), err
}

func (c *mongoCollection) UpdateMany(ctx context.Context, filter, update bson.M, opts *types.UpdateOptions) (*types.UpdateResult, error) {
	if err := checkUpdate(filter, update); err != nil {
		return nil, err
	}
	res, err := c.coll.UpdateMany(ctx, filter, update, updateOptions(opts))
	return toUpdateResult(res), err
}

func (c *mongoCollection) DeleteOne(ctx context.Context, filter bson.M) (*types.DeleteResult, error) {
	if filter == nil {
		return nil, types.ErrNilFilter
	}
	res, err := c.coll.DeleteOne(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &types.DeleteResult{DeletedCount: res.DeletedCount}, nil
}

func (c *mongoCollection) CountDocuments(ctx context.Context, filter bson.M) (int64, error) {
	if filter == nil {
		return 0, types.ErrNilFilter
	}
	return c.coll.CountDocuments(ctx, filter)
}

// checkUpdate rejects nil filters and replacement documents before they
// reach the driver.
func checkUpdate(filter, update bson.M) error {
	if filter == nil {
		return types.ErrNilFilter
	}
	if len(update) == 0 {
		return types.NewValidationError("", "update document must not be empty")
	}
	for key := range update {
		if !strings.HasPrefix(key, "$") {
			return types.NewValidationError(key, "update document requires atomic operators")
		}
	}
	return nil
}

func updateOptions(opts *types.UpdateOptions) *options.UpdateOptions {
	updateOpts := options.Update()
	if opts != nil && opts.Upsert != nil {
		updateOpts.SetUpsert(*opts.Upsert)
	}
	return updateOpts
}

func toUpdateResult(res *mongo.UpdateResult) *types.UpdateResult {
	if res == nil {
		return nil
	}
	return &types.UpdateResult{
		MatchedCount:  res.MatchedCount,
		ModifiedCount: res.ModifiedCount,
		UpsertedCount: res.UpsertedCount,
		UpsertedID:    res.UpsertedID,
	}
}
