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

package nav

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"

	"github.com/penny-vault/pv-nav/common"
	"github.com/zeebo/blake3"
)

// MemorySink collects records in process. It enforces the same append-only
// rule as the database store.
type MemorySink struct {
	lock      sync.Mutex
	Index     []IndexRecord
	Portfolio []PortfolioRecord
}

func (m *MemorySink) AppendIndex(_ context.Context, rec IndexRecord) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if n := len(m.Index); n > 0 && !rec.Date.After(m.Index[n-1].Date) {
		return fmt.Errorf("%w: %s", ErrNotAppendOnly, rec.Date.Format(common.DateFormat))
	}
	m.Index = append(m.Index, rec)
	return nil
}

func (m *MemorySink) AppendPortfolio(_ context.Context, rec PortfolioRecord) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if n := len(m.Portfolio); n > 0 && !rec.Date.After(m.Portfolio[n-1].Date) {
		return fmt.Errorf("%w: %s", ErrNotAppendOnly, rec.Date.Format(common.DateFormat))
	}
	m.Portfolio = append(m.Portfolio, rec)
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// IndexDigest hashes the canonical form of an index NAV history. Two runs
// over the same ledger and prices produce the same digest.
func IndexDigest(records []IndexRecord) string {
	h := blake3.New()
	for _, r := range records {
		fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%s|%s\n",
			r.Date.Format(common.DateFormat), r.Ticker,
			r.DayPayin.String(), r.DayPayout.String(), r.AmountInvested.String(),
			formatFloat(r.Units), formatFloat(r.Close), formatFloat(r.NAV))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// PortfolioDigest hashes the canonical form of a portfolio NAV history
func PortfolioDigest(records []PortfolioRecord) string {
	h := blake3.New()
	for _, r := range records {
		fmt.Fprintf(h, "%s|%s", r.Date.Format(common.DateFormat), formatFloat(r.NAV))
		for _, pos := range r.Holdings {
			fmt.Fprintf(h, "|%s:%d", pos.Security.Key(), pos.Quantity)
		}
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
