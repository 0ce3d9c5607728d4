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
	"strings"

	"github.com/rs/zerolog"
)

// CandidateSource records which rule produced an identifier candidate
type CandidateSource int

const (
	SourcePrimary CandidateSource = iota
	SourceTicker
	SourceSymbolMap
)

func (src CandidateSource) String() string {
	switch src {
	case SourcePrimary:
		return "primary"
	case SourceTicker:
		return "ticker"
	case SourceSymbolMap:
		return "symbol-map"
	default:
		return fmt.Sprintf("source(%d)", int(src))
	}
}

// Candidate is one identifier form a partition may be stored under.
// VendorSymbol is empty when the candidate cannot be fetched remotely.
type Candidate struct {
	Identifier   string
	VendorSymbol string
	Source       CandidateSource
}

func (c Candidate) MarshalZerologObject(e *zerolog.Event) {
	e.Str("Identifier", c.Identifier).Str("VendorSymbol", c.VendorSymbol).Stringer("Source", c.Source)
}

// Resolution is the outcome of IdentifierResolver.Resolve. When Found is
// false, Candidates lists every identifier evaluated, in priority order,
// for the caller to fetch from.
type Resolution struct {
	Found      bool
	Ref        PartitionRef
	Candidate  Candidate
	Candidates []Candidate
}

type ResolverOptions struct {
	// VendorSuffix is appended to the ticker to form the provider symbol
	VendorSuffix string

	// FetchByPrimary allows the primary identifier to be sent to the
	// provider as-is
	FetchByPrimary bool
}

// IdentifierResolver finds the identifier a security's price partition is
// stored under. Candidates are tried in a fixed order: the primary
// identifier, the ticker in vendor form, then the manual symbol map. The
// symbol map is only consulted when the earlier candidates have no
// partition.
type IdentifierResolver struct {
	partitions PartitionStore
	symbols    SymbolMap
	opts       ResolverOptions
}

func NewIdentifierResolver(partitions PartitionStore, symbols SymbolMap, opts ResolverOptions) *IdentifierResolver {
	if symbols == nil {
		symbols = StaticSymbolMap{}
	}
	return &IdentifierResolver{
		partitions: partitions,
		symbols:    symbols,
		opts:       opts,
	}
}

func (r *IdentifierResolver) primary(sec Security) (Candidate, bool) {
	id := sec.Key()
	if id == "" {
		return Candidate{}, false
	}
	cand := Candidate{Identifier: id, Source: SourcePrimary}
	if r.opts.FetchByPrimary {
		cand.VendorSymbol = id
	}
	return cand, true
}

func (r *IdentifierResolver) ticker(sec Security) (Candidate, bool) {
	ticker := strings.ToUpper(strings.TrimSpace(sec.Ticker))
	if ticker == "" {
		return Candidate{}, false
	}
	suffix := strings.ToUpper(r.opts.VendorSuffix)
	if !strings.HasSuffix(ticker, suffix) {
		ticker += suffix
	}
	return Candidate{Identifier: ticker, VendorSymbol: ticker, Source: SourceTicker}, true
}

func (r *IdentifierResolver) mapped(sec Security) (Candidate, bool) {
	for _, id := range []string{sec.ISIN, sec.Ticker} {
		if symbol, ok := r.symbols.Lookup(id); ok {
			return Candidate{Identifier: symbol, VendorSymbol: symbol, Source: SourceSymbolMap}, true
		}
	}
	return Candidate{}, false
}

// Resolve returns the first candidate with a durable partition for fy. A
// missing symbol map entry is not an error; ErrNoIdentifierMapping is only
// returned when no rule produced any candidate at all.
func (r *IdentifierResolver) Resolve(ctx context.Context, sec Security, fy int) (Resolution, error) {
	rules := []func(Security) (Candidate, bool){r.primary, r.ticker, r.mapped}
	seen := make(map[string]bool, len(rules))
	res := Resolution{}

	for _, rule := range rules {
		cand, ok := rule(sec)
		if !ok || seen[cand.Identifier] {
			continue
		}
		seen[cand.Identifier] = true
		res.Candidates = append(res.Candidates, cand)

		ref := PartitionRef{Identifier: cand.Identifier, FY: fy}
		exists, err := r.partitions.Exists(ctx, ref)
		if err != nil {
			return Resolution{}, err
		}
		if exists {
			res.Found = true
			res.Ref = ref
			res.Candidate = cand
			return res, nil
		}
	}

	if len(res.Candidates) == 0 {
		return Resolution{}, fmt.Errorf("%w: %s", ErrNoIdentifierMapping, sec)
	}

	return res, nil
}
