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
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/penny-vault/pv-nav/common"
	"github.com/penny-vault/pv-nav/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var yahooAPI = "https://query1.finance.yahoo.com"

type yahoo struct {
	loc *time.Location
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// NewYahoo creates a provider backed by the Yahoo Finance v8 chart API.
// Bars are assigned to calendar days in loc.
func NewYahoo(loc *time.Location) *yahoo {
	return &yahoo{loc: loc}
}

func (y *yahoo) Name() string {
	return "yahoo"
}

func (y *yahoo) FetchDaily(ctx context.Context, symbol string, begin, end time.Time) ([]PricePoint, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "yahoo.FetchDaily")
	defer span.End()

	subLog := log.With().Str("Symbol", symbol).Str("Begin", begin.Format(common.DateFormat)).Str("End", end.Format(common.DateFormat)).Logger()

	// period2 is exclusive
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&period1=%d&period2=%d&events=history",
		yahooAPI, url.PathEscape(symbol), common.Day(begin).Unix(), common.NextDay(end).Unix())
	span.SetAttributes(attribute.String("Url", endpoint), attribute.String("Symbol", symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; pvnav/"+common.CurrentVersion.String()+")")

	resp, err := httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		msg := "yahoo http request failed"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Err(err).Msg(msg)
		return nil, fmt.Errorf("%w: %s", ErrProviderRequest, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not read yahoo body")
		return nil, err
	}

	span.SetAttributes(attribute.Int("StatusCode", resp.StatusCode))
	if resp.StatusCode == http.StatusNotFound {
		subLog.Debug().Msg("yahoo does not know symbol")
		return nil, nil
	}
	if resp.StatusCode >= 400 {
		msg := "yahoo returned invalid response code"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Int("HTTPResponseStatusCode", resp.StatusCode).Bytes("Body", body).Msg(msg)
		return nil, fmt.Errorf("%w: HTTP status %d", ErrProviderRequest, resp.StatusCode)
	}

	chart := yahooChartResponse{}
	if err := json.Unmarshal(body, &chart); err != nil {
		span.RecordError(err)
		msg := "could not unmarshal json"
		span.SetStatus(codes.Error, msg)
		subLog.Error().Err(err).Bytes("Body", body).Msg(msg)
		return nil, err
	}

	if chart.Chart.Error != nil {
		subLog.Debug().Str("Code", chart.Chart.Error.Code).Str("Description", chart.Chart.Error.Description).Msg("yahoo chart error")
		return nil, nil
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	result := chart.Chart.Result[0]
	closes := result.Indicators.Quote[0].Close
	points := make([]PricePoint, 0, len(result.Timestamp))
	for idx, ts := range result.Timestamp {
		// yahoo emits null bars for sessions without trades
		if idx >= len(closes) || closes[idx] == nil || *closes[idx] <= 0 {
			continue
		}
		day := common.Day(time.Unix(ts, 0).In(y.loc))
		if day.Before(common.Day(begin)) || day.After(common.Day(end)) {
			continue
		}
		points = append(points, PricePoint{Date: day, Close: *closes[idx]})
	}

	subLog.Debug().Int("Rows", len(points)).Msg("fetched yahoo chart")
	return points, nil
}
