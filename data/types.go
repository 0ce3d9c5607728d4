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
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/penny-vault/pv-nav/common"
	"github.com/rs/zerolog"
)

// Security is identified by its ISIN. Ticker is the human readable exchange
// code and may be the only identifier available, e.g. for an index.
type Security struct {
	ISIN   string `json:"isin"`
	Ticker string `json:"ticker"`
}

// Key is the primary identifier: the ISIN when known, otherwise the ticker
func (s Security) Key() string {
	if s.ISIN != "" {
		return s.ISIN
	}
	return s.Ticker
}

var isinPattern = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}[0-9]$`)

// SecurityFromIdentifier builds a Security from a user supplied identifier.
// Anything shaped like an ISIN is taken as one; everything else is a ticker.
func SecurityFromIdentifier(id string) Security {
	id = strings.ToUpper(strings.TrimSpace(id))
	if isinPattern.MatchString(id) {
		return Security{ISIN: id}
	}
	return Security{Ticker: id}
}

func (s Security) String() string {
	switch {
	case s.ISIN != "" && s.Ticker != "":
		return fmt.Sprintf("%s (%s)", s.Ticker, s.ISIN)
	case s.ISIN != "":
		return s.ISIN
	default:
		return s.Ticker
	}
}

func (s Security) MarshalZerologObject(e *zerolog.Event) {
	e.Str("ISIN", s.ISIN).Str("Ticker", s.Ticker)
}

type PricePoint struct {
	Date  time.Time
	Close float64
}

// Series is one financial year of daily closes for a resolved identifier.
// A Series is never mutated after construction; refreshing an open year
// builds a new one.
type Series struct {
	Identifier string
	FY         int

	// Symbol is the vendor symbol the series was fetched with. It is used to
	// extend the partition of a financial year that has not closed yet.
	Symbol    string
	Coverage  Interval
	FetchedAt time.Time

	points []PricePoint
	index  map[string]int
}

// NewSeries sorts points by date and indexes them by calendar day. Duplicate
// days keep the first point seen.
func NewSeries(ref PartitionRef, symbol string, coverage Interval, points []PricePoint) (*Series, error) {
	if err := coverage.Valid(); err != nil {
		return nil, err
	}

	sorted := make([]PricePoint, 0, len(points))
	index := make(map[string]int, len(points))

	cp := make([]PricePoint, len(points))
	copy(cp, points)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Date.Before(cp[j].Date) })

	for _, pt := range cp {
		if math.IsNaN(pt.Close) || math.IsInf(pt.Close, 0) || pt.Close <= 0 {
			return nil, fmt.Errorf("%w: %s on %s is %f", ErrInvalidPrice, ref, dayKey(pt.Date), pt.Close)
		}
		key := dayKey(pt.Date)
		if _, ok := index[key]; ok {
			continue
		}
		index[key] = len(sorted)
		sorted = append(sorted, PricePoint{Date: common.Day(pt.Date), Close: pt.Close})
	}

	return &Series{
		Identifier: ref.Identifier,
		FY:         ref.FY,
		Symbol:     symbol,
		Coverage:   coverage,
		points:     sorted,
		index:      index,
	}, nil
}

func (s *Series) Ref() PartitionRef {
	return PartitionRef{Identifier: s.Identifier, FY: s.FY}
}

// Close returns the close on the calendar day of date. ok is false on
// non-trading days.
func (s *Series) Close(date time.Time) (float64, bool) {
	idx, ok := s.index[dayKey(date)]
	if !ok {
		return 0, false
	}
	return s.points[idx].Close, true
}

func (s *Series) Len() int {
	return len(s.points)
}

// Points returns a copy of the series in ascending date order
func (s *Series) Points() []PricePoint {
	cp := make([]PricePoint, len(s.points))
	copy(cp, s.points)
	return cp
}

func (s *Series) MarshalZerologObject(e *zerolog.Event) {
	e.Str("Identifier", s.Identifier).Int("FY", s.FY).Str("Symbol", s.Symbol).Int("Rows", len(s.points)).Object("Coverage", &s.Coverage)
}

func dayKey(t time.Time) string {
	return t.Format(common.DateFormat)
}
