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

import "errors"

var (
	// ErrDayClosePriceNotFound is a miss: the date is not a trading day for
	// the security. Whether that is fatal is up to the caller.
	ErrDayClosePriceNotFound = errors.New("day close price not found")
	ErrNoIdentifierMapping   = errors.New("security has no usable identifier")
	ErrRemoteFetchExhausted  = errors.New("every identifier candidate returned an empty series")
	ErrPartitionNotFound     = errors.New("price partition not found")
	ErrEmptySeries           = errors.New("provider returned no rows")
	ErrProviderRequest       = errors.New("price provider request failed")
	ErrInvalidPrice          = errors.New("close price must be positive")
	ErrBeginAfterEnd         = errors.New("invalid interval; begin after end date")
	ErrUnknownProvider       = errors.New("unknown price provider")
)
