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
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/tomoncle/docrepo/docsql"
	"github.com/tomoncle/docrepo/types"
)

// ErrorKind is the category of an error surfaced by a repository call.
type ErrorKind int

const (
	UnknownErr ErrorKind = iota
	ConnectionErr
	ValidationErr
	InvalidIdentifierErr
	DuplicateKeyErr
	ConfigurationErr
)

func (k ErrorKind) String() string {
	switch k {
	case ConnectionErr:
		return "connection"
	case ValidationErr:
		return "validation"
	case InvalidIdentifierErr:
		return "invalid_identifier"
	case DuplicateKeyErr:
		return "duplicate_key"
	case ConfigurationErr:
		return "configuration"
	default:
		return "unknown"
	}
}

// MongoDB server codes that describe a rejected payload.
var mongoValidationCodes = []int{2, 9, 14, 52, 55, 56, 57, 121}

// Classify maps err to an ErrorKind. Errors keep their original type; this
// only inspects the chain.
func Classify(err error) ErrorKind {
	if err == nil {
		return UnknownErr
	}
	if errors.Is(err, types.ErrInvalidID) {
		return InvalidIdentifierErr
	}
	if errors.Is(err, ErrMissingConfig) {
		return ConfigurationErr
	}
	if isDuplicateKey(err) {
		return DuplicateKeyErr
	}
	if isValidation(err) {
		return ValidationErr
	}
	if isConnection(err) {
		return ConnectionErr
	}
	return UnknownErr
}

func IsConnectionError(err error) bool { return Classify(err) == ConnectionErr }

func IsValidationError(err error) bool { return Classify(err) == ValidationErr }

func IsInvalidIdentifier(err error) bool { return Classify(err) == InvalidIdentifierErr }

func IsDuplicateKey(err error) bool { return Classify(err) == DuplicateKeyErr }

func isDuplicateKey(err error) bool {
	var dup *docsql.DuplicateKeyError
	if errors.As(err, &dup) || mongo.IsDuplicateKeyError(err) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unique constraint failed")
}

func isValidation(err error) bool {
	if _, ok := types.AsValidationError(err); ok {
		return true
	}
	var fieldErrs validator.ValidationErrors
	var invalid *validator.InvalidValidationError
	if errors.As(err, &fieldErrs) || errors.As(err, &invalid) {
		return true
	}
	if errors.Is(err, mongo.ErrNilDocument) || errors.Is(err, mongo.ErrEmptySlice) {
		return true
	}
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		for _, code := range mongoValidationCodes {
			if serverErr.HasErrorCode(code) {
				return true
			}
		}
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1048, 1264, 1265, 1366, 1406, 3819:
			return true
		}
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		class := pqErr.Code.Class()
		return class == "22" || class == "23"
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "not null constraint failed") ||
		strings.Contains(s, "check constraint failed") ||
		strings.Contains(s, "datatype mismatch")
}

func isConnection(err error) bool {
	if errors.Is(err, ErrNotConnected) ||
		errors.Is(err, mongo.ErrClientDisconnected) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	if mongo.IsNetworkError(err) || strings.Contains(strings.ToLower(err.Error()), "server selection error") {
		return true
	}
	// Caller deadlines and cancellations are not connection failures.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	if mongo.IsTimeout(err) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		class := pqErr.Code.Class()
		return class == "08" || pqErr.Code == "57P01"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "connection refused") ||
		strings.Contains(s, "database is closed")
}
