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

import "errors"

var (
	ErrDayZeroNotTradingDay     = errors.New("day zero has no close price")
	ErrMarketClosedWithActivity = errors.New("account activity on a day without a close price")
	ErrNoEvents                 = errors.New("ledger has no events")
	ErrEngineState              = errors.New("operation not allowed in current engine state")
	ErrResumeMismatch           = errors.New("resume record does not match engine")
	ErrNotAppendOnly            = errors.New("record date must be after the last persisted record")
)
