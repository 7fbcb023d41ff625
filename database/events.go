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
	"time"

	"github.com/tomoncle/docrepo/types"
)

// EventType is a lifecycle event of the connection handle.
type EventType int

const (
	EventError EventType = iota
	EventOpen
	EventDisconnected
	EventReconnected
)

var _ types.BaseEnum = EventOpen

var eventNames = [...]string{"error", "open", "disconnected", "reconnected"}

var eventDescs = [...]string{
	"the driver reported a connection failure",
	"the handle became available for the first time",
	"the handle lost its connection",
	"the handle became available again after a disconnect",
}

func (e EventType) IsValid() bool { return e >= EventError && e <= EventReconnected }

func (e EventType) Number() int {
	if !e.IsValid() {
		return types.IllegalValue
	}
	return int(e)
}

func (e EventType) Name() string {
	if !e.IsValid() {
		return types.IllegalName
	}
	return eventNames[e]
}

func (e EventType) String() string { return e.Name() }

func (e EventType) Desc() string {
	if !e.IsValid() {
		return types.IllegalDesc
	}
	return eventDescs[e]
}

func (e EventType) MarshalText() ([]byte, error) { return []byte(e.Name()), nil }

// ConnectionState is the state of the connection handle.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateOpen
	StateError
)

var _ types.BaseEnum = StateOpen

var stateNames = [...]string{"disconnected", "connecting", "open", "error"}

var stateDescs = [...]string{
	"no usable connection",
	"a connection attempt is in flight",
	"the backend is reachable",
	"the first connection attempt failed",
}

func (s ConnectionState) IsValid() bool { return s >= StateDisconnected && s <= StateError }

func (s ConnectionState) Number() int {
	if !s.IsValid() {
		return types.IllegalValue
	}
	return int(s)
}

func (s ConnectionState) Name() string {
	if !s.IsValid() {
		return types.IllegalName
	}
	return stateNames[s]
}

func (s ConnectionState) String() string { return s.Name() }

func (s ConnectionState) Desc() string {
	if !s.IsValid() {
		return types.IllegalDesc
	}
	return stateDescs[s]
}

func (s ConnectionState) MarshalText() ([]byte, error) { return []byte(s.Name()), nil }

// Event is one lifecycle notification.
type Event struct {
	Type EventType `json:"type"`
	Err  error     `json:"-"`
	At   time.Time `json:"at"`

	generation uint64
}

// NewEvent stamps an event with the current time.
func NewEvent(typ EventType, err error) Event {
	return Event{Type: typ, Err: err, At: time.Now()}
}
