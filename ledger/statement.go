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

package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/penny-vault/pv-nav/common"
	"github.com/shopspring/decimal"
)

const (
	// FundsAddedMarker identifies a statement line as a credit
	FundsAddedMarker = "Funds added using"
)

var (
	settlementVoucherTypes = []string{"Bank Payments", "Bank Receipts"}
	settlementCostCenters  = []string{"STARMF - Z"}
)

// StatementLine is one row of the broker's funds statement
type StatementLine struct {
	PostingDate time.Time
	Particulars string
	CostCenter  string
	VoucherType string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// IsSettlement reports whether the line moves money between the bank and
// the trading account. Trade settlements and charges are internal to the
// account and do not change the amount invested.
func IsSettlement(line StatementLine) bool {
	for _, vt := range settlementVoucherTypes {
		if strings.Contains(line.VoucherType, vt) {
			return true
		}
	}
	for _, cc := range settlementCostCenters {
		if strings.Contains(line.CostCenter, cc) {
			return true
		}
	}
	return false
}

// Classify turns a statement line into a CashEvent. A line is a credit iff
// its particulars carry FundsAddedMarker; the matching amount column must
// be positive.
func Classify(line StatementLine) (CashEvent, error) {
	date := line.PostingDate.Format(common.DateFormat)

	if strings.Contains(line.Particulars, FundsAddedMarker) {
		if !line.Credit.IsPositive() {
			return CashEvent{}, fmt.Errorf("%w: credit line on %s has credit %s", ErrLedgerIntegrity, date, line.Credit)
		}
		return CashEvent{Date: line.PostingDate, IsCredit: true, Amount: line.Credit, Narration: line.Particulars}, nil
	}

	if !line.Debit.IsPositive() {
		return CashEvent{}, fmt.Errorf("%w: debit line on %s has debit %s", ErrLedgerIntegrity, date, line.Debit)
	}
	return CashEvent{Date: line.PostingDate, IsCredit: false, Amount: line.Debit, Narration: line.Particulars}, nil
}

// CashEventsFromStatement keeps settlement lines and classifies them. The
// first line that fails classification aborts the whole statement.
func CashEventsFromStatement(lines []StatementLine) ([]CashEvent, error) {
	events := make([]CashEvent, 0, len(lines))
	for _, line := range lines {
		if !IsSettlement(line) {
			continue
		}
		event, err := Classify(line)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}
