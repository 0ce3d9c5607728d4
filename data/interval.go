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
	"time"

	"github.com/rs/zerolog"
)

// Interval is an inclusive range of calendar days
type Interval struct {
	Begin time.Time
	End   time.Time
}

// ContainsDay returns true if the calendar day of t is within the interval
func (interval *Interval) ContainsDay(t time.Time) bool {
	day := dayKey(t)
	return day >= dayKey(interval.Begin) && day <= dayKey(interval.End)
}

// Contains returns true if interval completely contains other
func (interval *Interval) Contains(other *Interval) bool {
	return interval.ContainsDay(other.Begin) && interval.ContainsDay(other.End)
}

// Valid checks if the given interval is a valid range and returns an error if not
func (interval *Interval) Valid() error {
	if dayKey(interval.Begin) > dayKey(interval.End) {
		return ErrBeginAfterEnd
	}
	return nil
}

// MarshalZerologObject implement the log marshaller interface for zerolog
func (interval *Interval) MarshalZerologObject(e *zerolog.Event) {
	e.Str("Begin", dayKey(interval.Begin)).Str("End", dayKey(interval.End))
}
