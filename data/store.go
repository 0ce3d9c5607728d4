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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/penny-vault/pv-nav/common"
	"github.com/penny-vault/pv-nav/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

// OpenYearGraceDays is how long a new financial year may go without a single
// close before an empty fetch counts as an unknown symbol
const OpenYearGraceDays = 7

type StoreOptions struct {
	Location *time.Location

	// PaddingDays widens each fetched financial year on both ends
	PaddingDays int

	// ProbeDays bounds CloseOnOrAfter
	ProbeDays int

	// Now is the processing clock; partitions never extend past the day
	// before Now
	Now func() time.Time
}

// PriceStore answers close price questions for a security. Series are served
// from the cache, then from a durable partition, and finally fetched from
// the provider and persisted. Partition creation is serialized per
// identifier and financial year.
type PriceStore struct {
	resolver   *IdentifierResolver
	partitions PartitionStore
	provider   Provider
	cache      *PriceCache
	group      singleflight.Group
	opts       StoreOptions
}

func NewPriceStore(resolver *IdentifierResolver, partitions PartitionStore, provider Provider, cache *PriceCache, opts StoreOptions) *PriceStore {
	if opts.Location == nil {
		opts.Location = common.GetTimezone()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PaddingDays < 0 {
		opts.PaddingDays = 0
	}
	return &PriceStore{
		resolver:   resolver,
		partitions: partitions,
		provider:   provider,
		cache:      cache,
		opts:       opts,
	}
}

func (ps *PriceStore) Cache() *PriceCache {
	return ps.cache
}

func (ps *PriceStore) yesterday() time.Time {
	return common.Yesterday(ps.opts.Now().In(ps.opts.Location))
}

// Series returns the full financial year of closes for sec
func (ps *PriceStore) Series(ctx context.Context, sec Security, fy int) (*Series, error) {
	key := CacheKey{SecurityID: sec.Key(), FY: fy}
	if series, ok := ps.cache.Get(key); ok {
		return series, nil
	}

	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "data.PriceStore.Series")
	defer span.End()
	span.SetAttributes(attribute.String("Security", sec.Key()), attribute.Int("FY", fy))

	v, err, _ := ps.group.Do("security:"+key.String(), func() (interface{}, error) {
		return ps.loadSeries(ctx, sec, fy)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load series failed")
		return nil, err
	}

	series := v.(*Series)
	ps.cache.Put(key, series)
	return series, nil
}

func (ps *PriceStore) loadSeries(ctx context.Context, sec Security, fy int) (*Series, error) {
	res, err := ps.resolver.Resolve(ctx, sec, fy)
	if err != nil {
		return nil, err
	}

	if res.Found {
		log.Debug().Object("Security", sec).Str("Partition", res.Ref.String()).Stringer("Source", res.Candidate.Source).Msg("loading durable partition")
		return ps.partitions.Load(ctx, res.Ref)
	}

	return ps.fetchCandidates(ctx, sec, fy, res.Candidates)
}

// fetchCandidates walks the candidates in priority order. Only an empty
// result moves on to the next candidate; any other provider failure ends
// the lookup. When every candidate is empty in a year that has only just
// opened the result is a day miss, not exhaustion.
func (ps *PriceStore) fetchCandidates(ctx context.Context, sec Security, fy int, candidates []Candidate) (*Series, error) {
	tried := make([]string, 0, len(candidates))
	for _, cand := range candidates {
		if cand.VendorSymbol == "" {
			continue
		}
		tried = append(tried, cand.VendorSymbol)

		series, err := ps.createPartition(ctx, PartitionRef{Identifier: cand.Identifier, FY: fy}, cand.VendorSymbol)
		if errors.Is(err, ErrEmptySeries) {
			log.Info().Object("Security", sec).Object("Candidate", cand).Int("FY", fy).Msg("candidate returned no prices, trying next")
			continue
		}
		if err != nil {
			return nil, err
		}
		return series, nil
	}

	if ps.yearJustOpened(fy) {
		log.Info().Object("Security", sec).Int("FY", fy).Strs("Tried", tried).Msg("financial year has no trading day yet")
		return nil, fmt.Errorf("%w: %s FY%d has no trading day yet, tried [%s]", ErrDayClosePriceNotFound, sec, fy, strings.Join(tried, ", "))
	}
	return nil, fmt.Errorf("%w: %s FY%d tried [%s]", ErrRemoteFetchExhausted, sec, fy, strings.Join(tried, ", "))
}

// yearJustOpened reports whether fy began less than OpenYearGraceDays days
// before yesterday. An empty fetch that early only means the market has not
// traded in the new year yet.
func (ps *PriceStore) yearJustOpened(fy int) bool {
	grace := FinancialYearBounds(fy, ps.opts.Location).Begin.AddDate(0, 0, OpenYearGraceDays)
	return ps.yesterday().Before(grace)
}

// createPartition fetches and persists one partition. Concurrent callers
// for the same partition share a single download.
func (ps *PriceStore) createPartition(ctx context.Context, ref PartitionRef, symbol string) (*Series, error) {
	v, err, _ := ps.group.Do("partition:"+ref.String(), func() (interface{}, error) {
		// another caller may have finished the same partition while this
		// one was resolving
		if exists, err := ps.partitions.Exists(ctx, ref); err != nil {
			return nil, err
		} else if exists {
			return ps.partitions.Load(ctx, ref)
		}
		return ps.fetch(ctx, ref, symbol)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Series), nil
}

func (ps *PriceStore) fetch(ctx context.Context, ref PartitionRef, symbol string) (*Series, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "data.PriceStore.fetch")
	defer span.End()
	span.SetAttributes(attribute.String("Partition", ref.String()), attribute.String("Symbol", symbol))

	window := FetchWindow(ref.FY, ps.opts.PaddingDays, ps.opts.Location)
	if yesterday := ps.yesterday(); window.End.After(yesterday) {
		window.End = yesterday
	}
	if window.Valid() != nil {
		// the financial year has not started yet
		return nil, fmt.Errorf("%w: %s starts in the future", ErrEmptySeries, ref)
	}

	points, err := ps.provider.FetchDaily(ctx, symbol, window.Begin, window.End)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider fetch failed")
		return nil, err
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: %s via %s", ErrEmptySeries, ref, symbol)
	}

	series, err := NewSeries(ref, symbol, window, points)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid series")
		return nil, err
	}
	series.FetchedAt = ps.opts.Now().UTC().Truncate(time.Second)

	if err := ps.partitions.Save(ctx, series); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save partition failed")
		return nil, err
	}

	log.Info().Object("Series", series).Str("Provider", ps.provider.Name()).Msg("created price partition")
	return series, nil
}

// refresh re-downloads a partition whose financial year was still open when
// it was fetched
func (ps *PriceStore) refresh(ctx context.Context, key CacheKey, series *Series) (*Series, error) {
	ref := series.Ref()
	v, err, _ := ps.group.Do("partition:"+ref.String(), func() (interface{}, error) {
		return ps.fetch(ctx, ref, series.Symbol)
	})
	if errors.Is(err, ErrEmptySeries) {
		return series, nil
	}
	if err != nil {
		return nil, err
	}

	updated := v.(*Series)
	ps.cache.Put(key, updated)
	return updated, nil
}

// Close returns the close of sec on the calendar day of date. A date the
// security did not trade is reported as ErrDayClosePriceNotFound.
func (ps *PriceStore) Close(ctx context.Context, sec Security, date time.Time) (float64, error) {
	date = common.Day(date.In(ps.opts.Location))
	fy := FinancialYear(date)

	series, err := ps.Series(ctx, sec, fy)
	if err != nil {
		return 0, err
	}

	if closePrice, ok := series.Close(date); ok {
		return closePrice, nil
	}

	// extend a partition fetched before the financial year closed
	if date.After(series.Coverage.End) && !date.After(ps.yesterday()) && series.Symbol != "" {
		log.Debug().Object("Series", series).Str("Date", dayKey(date)).Msg("date past partition coverage, refreshing")
		if series, err = ps.refresh(ctx, CacheKey{SecurityID: sec.Key(), FY: fy}, series); err != nil {
			return 0, err
		}
		if closePrice, ok := series.Close(date); ok {
			return closePrice, nil
		}
	}

	return 0, fmt.Errorf("%w: %s on %s", ErrDayClosePriceNotFound, sec, dayKey(date))
}

// CloseOnOrAfter looks for the first close on or after date, advancing at
// most ProbeDays days. It is meant for ad-hoc lookups near a financial year
// boundary; NAV computation always uses Close.
func (ps *PriceStore) CloseOnOrAfter(ctx context.Context, sec Security, date time.Time) (PricePoint, error) {
	day := common.Day(date.In(ps.opts.Location))
	for step := 0; step <= ps.opts.ProbeDays; step++ {
		closePrice, err := ps.Close(ctx, sec, day)
		if err == nil {
			return PricePoint{Date: day, Close: closePrice}, nil
		}
		if !errors.Is(err, ErrDayClosePriceNotFound) {
			return PricePoint{}, err
		}
		day = common.NextDay(day)
	}

	return PricePoint{}, fmt.Errorf("%w: %s within %d days of %s", ErrDayClosePriceNotFound, sec, ps.opts.ProbeDays, dayKey(date))
}
