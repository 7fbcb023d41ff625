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

package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tomoncle/docrepo/database"
)

func TestParseDocument(t *testing.T) {
	doc, err := parseDocument(`{"age": {"$gt": 3}, "_id": {"$oid": "507f1f77bcf86cd799439011"}}`)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$gt": int32(3)}, doc["age"])
	oid, _ := primitive.ObjectIDFromHex("507f1f77bcf86cd799439011")
	assert.Equal(t, oid, doc["_id"])

	empty, err := parseDocument("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = parseDocument("{not json")
	assert.Error(t, err)
}

func TestFormatEvent(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	e := database.Event{Type: database.EventDisconnected, At: at, Err: errors.New("socket closed")}
	assert.Equal(t,
		"2025-03-01T12:00:00Z disconnected the handle lost its connection; state=disconnected (no usable connection) error=socket closed",
		formatEvent(e, database.StateDisconnected))

	e = database.Event{Type: database.EventOpen, At: at}
	assert.Equal(t,
		"2025-03-01T12:00:00Z open         the handle became available for the first time; state=open (the backend is reachable)",
		formatEvent(e, database.StateOpen))

	assert.Contains(t, formatEvent(e, database.ConnectionState(42)), "state=unknown")
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCountAgainstSQLite(t *testing.T) {
	t.Setenv("DB_TYPE", "sqlite")
	t.Setenv("DB_NAME", "file:cli_count?mode=memory&cache=shared")
	t.Cleanup(func() { _ = database.CloseDB() })

	out, err := runCLI(t, "count", "notes", "--filter", `{"title": "x"}`, "--timeout", "5s")
	require.NoError(t, err)
	assert.Equal(t, "0", strings.TrimSpace(out))

	out, err = runCLI(t, "find", "notes", "--limit", "1", "--timeout", "5s")
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(out))
}

func TestLoggerFlagSelectsZerolog(t *testing.T) {
	t.Setenv("DB_TYPE", "sqlite")
	t.Setenv("DB_NAME", "file:cli_logger?mode=memory&cache=shared")
	t.Cleanup(func() {
		_ = database.CloseDB()
		database.SetLogger(nil)
	})

	_, err := runCLI(t, "count", "notes", "--logger", "zerolog", "--log-level", "error", "--timeout", "5s")
	require.NoError(t, err)
	assert.IsType(t, &database.ZerologLogger{}, database.GetLogger())

	_, err = runCLI(t, "count", "notes", "--timeout", "5s")
	require.NoError(t, err)
	assert.IsType(t, &database.DefaultLogger{}, database.GetLogger())
}

func TestFindRejectsBadFilter(t *testing.T) {
	_, err := runCLI(t, "find", "notes", "--filter", "{oops")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --filter")
}

func TestCommandsRequireCollection(t *testing.T) {
	_, err := runCLI(t, "count")
	assert.Error(t, err)
}
