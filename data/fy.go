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
	"fmt"
	"time"
)

// FinancialYear returns the April to March accounting year t belongs to.
// April 2023 through March 2024 is FY 2024.
func FinancialYear(t time.Time) int {
	if t.Month() >= time.April {
		return t.Year() + 1
	}
	return t.Year()
}

// FinancialYearBounds is April 1 of fy-1 through March 31 of fy
func FinancialYearBounds(fy int, loc *time.Location) Interval {
	return Interval{
		Begin: time.Date(fy-1, time.April, 1, 0, 0, 0, 0, loc),
		End:   time.Date(fy, time.March, 31, 0, 0, 0, 0, loc),
	}
}

// FetchWindow widens the FY bounds by padding days on each side so
// providers that disagree on the boundary day still cover the whole year
func FetchWindow(fy int, padding int, loc *time.Location) Interval {
	bounds := FinancialYearBounds(fy, loc)
	return Interval{
		Begin: bounds.Begin.AddDate(0, 0, -padding),
		End:   bounds.End.AddDate(0, 0, padding),
	}
}

// PartitionRef names one durable price partition
type PartitionRef struct {
	Identifier string
	FY         int
}

func (ref PartitionRef) String() string {
	return fmt.Sprintf("%s_%d", ref.Identifier, ref.FY)
}
