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

package repository

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	sharedValidator     *validator.Validate
	sharedValidatorOnce sync.Once
)

// defaultValidator is shared so struct metadata is parsed once per type.
func defaultValidator() *validator.Validate {
	sharedValidatorOnce.Do(func() {
		sharedValidator = validator.New(validator.WithRequiredStructEnabled())
	})
	return sharedValidator
}

type options struct {
	validate *validator.Validate
}

// Option configures a repository.
type Option func(*options)

// WithValidator validates documents on create with v.
func WithValidator(v *validator.Validate) Option {
	return func(o *options) { o.validate = v }
}

// WithoutValidation stores documents without tag validation.
func WithoutValidation() Option {
	return func(o *options) { o.validate = nil }
}
