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

import "go.mongodb.org/mongo-driver/bson"

// PageRequest describes pagination, optional filter, and ordering.
type PageRequest struct {
	page     int
	pageSize int
	filter   bson.M
	sort     bson.D // {{"created_at", -1}, {"name", 1}}
}

func (p *PageRequest) GetPageSize() int {
	if p.pageSize < 1 {
		p.pageSize = 10
	}
	return p.pageSize
}

func (p *PageRequest) GetPage() int {
	if p.page < 1 {
		p.page = 1
	}
	return p.page
}

func (p *PageRequest) GetOffset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

// GetFilter never returns nil; an unfiltered request matches everything.
func (p *PageRequest) GetFilter() bson.M {
	if p.filter == nil {
		return bson.M{}
	}
	return p.filter
}

func (p *PageRequest) GetSort() bson.D {
	return p.sort
}

// FindOptions converts the request window and ordering into FindOptions.
func (p *PageRequest) FindOptions() *FindOptions {
	opts := Find().SetSkip(int64(p.GetOffset())).SetLimit(int64(p.GetPageSize()))
	if len(p.sort) > 0 {
		opts.SetSort(p.sort)
	}
	return opts
}

// NewPageRequest constructs a PageRequest with filter and sort settings.
func NewPageRequest(page int, pageSize int, filter bson.M, sort bson.D) *PageRequest {
	return &PageRequest{page, pageSize, filter, sort}
}

// NewPageRequestWithFilter constructs a PageRequest with a filter only.
func NewPageRequestWithFilter(page int, pageSize int, filter bson.M) *PageRequest {
	return NewPageRequest(page, pageSize, filter, nil)
}

// NewPageRequestWithSort constructs a PageRequest with ordering only.
func NewPageRequestWithSort(page int, pageSize int, sort bson.D) *PageRequest {
	return NewPageRequest(page, pageSize, nil, sort)
}

// NewDefaultPageRequest constructs a PageRequest with no filter or ordering.
func NewDefaultPageRequest(page int, pageSize int) *PageRequest {
	return NewPageRequest(page, pageSize, nil, nil)
}

// Pagination holds paged result items along with pagination metadata.
type Pagination[T any] struct {
	Page     int
	PageSize int
	Total    int64
	Items    []*T
}

// NewDefaultPagination constructs an empty pagination container.
func NewDefaultPagination[T any](page int, pageSize int) *Pagination[T] {
	return &Pagination[T]{page, pageSize, 0, make([]*T, 0)}
}
