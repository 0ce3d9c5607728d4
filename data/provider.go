// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package data

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Provider downloads daily closes. Unknown symbols are reported as an empty
// result, not an error, so the resolver can move on to the next candidate.
type Provider interface {
	Name() string
	FetchDaily(ctx context.Context, symbol string, begin, end time.Time) ([]PricePoint, error)
}

var httpClient = &http.Client{Timeout: 30 * time.Second}

// NewProvider builds the provider named by `price.provider`
func NewProvider(name string, token string, loc *time.Location) (Provider, error) {
	switch strings.ToLower(name) {
	case "", "yahoo":
		return NewYahoo(loc), nil
	case "tiingo":
		return NewTiingo(token, loc), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
}
