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

package types

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ObjectIDLength is the length of a hex encoded document identifier.
const ObjectIDLength = 24

// ErrInvalidID is matched by every InvalidIDError.
var ErrInvalidID = errors.New("invalid document identifier")

// InvalidIDError reports an identifier that is not a 24 character hex string.
type InvalidIDError struct {
	ID string
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("invalid document identifier %q: want %d hex characters", e.ID, ObjectIDLength)
}

func (e *InvalidIDError) Is(target error) bool { return target == ErrInvalidID }

// ParseObjectID converts a hex identifier into the native ObjectID. It never
// touches the network.
func ParseObjectID(id string) (primitive.ObjectID, error) {
	if len(id) != ObjectIDLength {
		return primitive.NilObjectID, &InvalidIDError{ID: id}
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, &InvalidIDError{ID: id}
	}
	return oid, nil
}

// IsValidObjectID reports whether id can be parsed by ParseObjectID.
func IsValidObjectID(id string) bool {
	_, err := ParseObjectID(id)
	return err == nil
}
