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

package docsql

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/uptrace/bun"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tomoncle/docrepo/types"
)

// documentRow is one stored document. Collections share a single table.
type documentRow struct {
	bun.BaseModel `bun:"table:documents,alias:d"`

	Seq        int64  `bun:"seq,pk,autoincrement"`
	Collection string `bun:"collection_name,notnull,unique:uq_documents_doc"`
	DocID      string `bun:"doc_id,notnull,unique:uq_documents_doc"`
	Body       []byte `bun:"body,notnull"`
}

// DuplicateKeyError is returned when a document with the same _id already
// exists in the collection.
type DuplicateKeyError struct {
	Collection string
	ID         interface{}
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key in collection %q: _id %v", e.Collection, e.ID)
}

// Store keeps BSON documents in a SQL database through bun.
type Store struct {
	db    *bun.DB
	mu    sync.Mutex
	ready bool
}

// New wraps db. The documents table is created on first use.
func New(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *bun.DB { return s.db }

// EnsureSchema creates the documents table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	_, err := s.db.NewCreateTable().
		Model((*documentRow)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	s.ready = true
	return nil
}

// Collection returns a handle on the named collection.
func (s *Store) Collection(name string) *Collection {
	return &Collection{store: s, name: name}
}

// Collection implements the document operations over one collection name.
type Collection struct {
	store *Store
	name  string
}

func (c *Collection) Name() string { return c.name }

// InsertOne stores doc, assigning a new ObjectID when _id is missing or
// zero, and returns the stored _id.
func (c *Collection) InsertOne(ctx context.Context, doc bson.D) (interface{}, error) {
	if err := c.store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	doc = withID(doc)
	id := doc[0].Value
	body, err := bson.Marshal(doc)
	if err != nil {
		return nil, err
	}
	err = c.store.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return c.insert(ctx, tx, id, body)
	})
	if err != nil {
		return nil, err
	}
	return id, nil
}

func (c *Collection) insert(ctx context.Context, db bun.IDB, id interface{}, body []byte) error {
	key := idKey(id)
	exists, err := db.NewSelect().
		Model((*documentRow)(nil)).
		Where("collection_name = ?", c.name).
		Where("doc_id = ?", key).
		Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return &DuplicateKeyError{Collection: c.name, ID: id}
	}
	row := &documentRow{Collection: c.name, DocID: key, Body: body}
	_, err = db.NewInsert().Model(row).Exec(ctx)
	return err
}

// Find returns the documents matching filter, after sort, skip, limit and
// projection from opts.
func (c *Collection) Find(ctx context.Context, filter bson.M, opts *types.FindOptions) ([]bson.Raw, error) {
	if filter == nil {
		return nil, types.ErrNilFilter
	}
	if opts == nil {
		opts = types.Find()
	}
	docs, err := c.match(ctx, c.store.db, filter, false)
	if err != nil {
		return nil, err
	}
	matched := make([]bson.D, len(docs))
	for i, d := range docs {
		matched[i] = d.doc
	}
	if err = sortDocuments(matched, opts.Sort); err != nil {
		return nil, err
	}
	matched, err = projectDocuments(window(matched, opts.Skip, opts.Limit), opts.Projection)
	if err != nil {
		return nil, err
	}
	out := make([]bson.Raw, 0, len(matched))
	for _, d := range matched {
		raw, err := bson.Marshal(d)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

// FindOne returns the first document Find would return, or nil when
// nothing matches.
func (c *Collection) FindOne(ctx context.Context, filter bson.M, opts *types.FindOptions) (bson.Raw, error) {
	one := types.MergeFindOptions(opts).SetLimit(1)
	docs, err := c.Find(ctx, filter, one)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

func (c *Collection) UpdateOne(ctx context.Context, filter, update bson.M, opts *types.UpdateOptions) (*types.UpdateResult, error) {
	return c.update(ctx, filter, update, opts, false)
}

func (c *Collection) UpdateMany(ctx context.Context, filter, update bson.M, opts *types.UpdateOptions) (*types.UpdateResult, error) {
	return c.update(ctx, filter, update, opts, true)
}

func (c *Collection) update(ctx context.Context, filter, update bson.M, opts *types.UpdateOptions, multi bool) (*types.UpdateResult, error) {
	if filter == nil {
		return nil, types.ErrNilFilter
	}
	if update == nil {
		return nil, types.NewValidationError("", "update document must not be nil")
	}
	filterDoc, err := normalizeDoc(filter)
	if err != nil {
		return nil, err
	}
	updateDoc, err := normalizeDoc(update)
	if err != nil {
		return nil, err
	}
	if err = validateUpdate(updateDoc); err != nil {
		return nil, err
	}
	if err = c.store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	result := &types.UpdateResult{}
	err = c.store.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		*result = types.UpdateResult{}
		docs, err := c.scan(ctx, tx, filterDoc, !multi)
		if err != nil {
			return err
		}
		for _, d := range docs {
			result.MatchedCount++
			next, err := applyUpdate(d.doc, updateDoc, false)
			if err != nil {
				return err
			}
			body, err := bson.Marshal(next)
			if err != nil {
				return err
			}
			if bytes.Equal(body, d.row.Body) {
				continue
			}
			_, err = tx.NewUpdate().
				Model((*documentRow)(nil)).
				Set("body = ?", body).
				Where("seq = ?", d.row.Seq).
				Exec(ctx)
			if err != nil {
				return err
			}
			result.ModifiedCount++
		}
		if result.MatchedCount > 0 || !opts.IsUpsert() {
			return nil
		}
		seed, err := seedFromFilter(filterDoc)
		if err != nil {
			return err
		}
		doc, err := applyUpdate(seed, updateDoc, true)
		if err != nil {
			return err
		}
		doc = withID(doc)
		body, err := bson.Marshal(doc)
		if err != nil {
			return err
		}
		if err = c.insert(ctx, tx, doc[0].Value, body); err != nil {
			return err
		}
		result.UpsertedCount = 1
		result.UpsertedID = doc[0].Value
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteOne removes the first document matching filter.
func (c *Collection) DeleteOne(ctx context.Context, filter bson.M) (*types.DeleteResult, error) {
	if filter == nil {
		return nil, types.ErrNilFilter
	}
	filterDoc, err := normalizeDoc(filter)
	if err != nil {
		return nil, err
	}
	if err = c.store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	result := &types.DeleteResult{}
	err = c.store.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		docs, err := c.scan(ctx, tx, filterDoc, true)
		if err != nil || len(docs) == 0 {
			return err
		}
		res, err := tx.NewDelete().
			Model((*documentRow)(nil)).
			Where("seq = ?", docs[0].row.Seq).
			Exec(ctx)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		result.DeletedCount = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Collection) CountDocuments(ctx context.Context, filter bson.M) (int64, error) {
	if filter == nil {
		return 0, types.ErrNilFilter
	}
	docs, err := c.match(ctx, c.store.db, filter, false)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

type storedDoc struct {
	row *documentRow
	doc bson.D
}

func (c *Collection) match(ctx context.Context, db bun.IDB, filter bson.M, first bool) ([]storedDoc, error) {
	if err := c.store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	filterDoc, err := normalizeDoc(filter)
	if err != nil {
		return nil, err
	}
	return c.scan(ctx, db, filterDoc, first)
}

// scan loads the collection in insertion order and keeps the documents
// matching filter. A plain _id equality narrows the query to one row.
func (c *Collection) scan(ctx context.Context, db bun.IDB, filter bson.D, first bool) ([]storedDoc, error) {
	var rows []*documentRow
	q := db.NewSelect().
		Model(&rows).
		Where("collection_name = ?", c.name).
		Order("seq ASC")
	if id, ok := field(filter, "_id"); ok {
		if _, isOps := isOperatorDoc(id); !isOps {
			q = q.Where("doc_id = ?", idKey(id))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	var out []storedDoc
	for _, row := range rows {
		doc, err := decode(row.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to decode document %s in %s: %w", row.DocID, c.name, err)
		}
		ok, err := matchDocument(doc, filter)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, storedDoc{row: row, doc: doc})
		if first {
			break
		}
	}
	return out, nil
}

// withID moves _id to the front of doc, generating one when it is missing
// or a zero ObjectID.
func withID(doc bson.D) bson.D {
	out := make(bson.D, 0, len(doc)+1)
	var id interface{}
	for _, e := range doc {
		if e.Key == "_id" {
			id = e.Value
			continue
		}
		out = append(out, e)
	}
	if oid, ok := id.(primitive.ObjectID); id == nil || (ok && oid.IsZero()) {
		id = primitive.NewObjectID()
	}
	return append(bson.D{{Key: "_id", Value: id}}, out...)
}
