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

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/penny-vault/pv-nav/common"
	"github.com/penny-vault/pv-nav/data"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(priceCmd)
}

var priceCmd = &cobra.Command{
	Use:        "price [flags] Identifier [Date]",
	Short:      "Print the first close of a security on or after a date",
	Long:       `Identifier is an ISIN or a ticker. Date defaults to yesterday.`,
	Args:       cobra.RangeArgs(1, 2),
	ArgAliases: []string{"Identifier", "Date"},
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cleanup := setup(ctx, viper.GetString("price.partition_backend") == "database")
		defer cleanup()

		loc := common.GetTimezone()
		date := common.Yesterday(time.Now().In(loc))
		if len(args) == 2 {
			var err error
			date, err = common.ParseDate(args[1], loc)
			if err != nil {
				log.Fatal().Err(err).Str("InputStr", args[1]).Msg("could not parse date - expected format 2006-01-02")
			}
		}

		prices, err := newPriceStore(loc)
		if err != nil {
			log.Fatal().Err(err).Msg("could not create price store")
		}

		sec := data.SecurityFromIdentifier(args[0])
		point, err := prices.CloseOnOrAfter(ctx, sec, date)
		if err != nil {
			log.Error().Err(err).Object("Security", sec).Time("Date", date).Msg("no close price")
			cleanup()
			log.Fatal().Msg("exiting")
		}

		fmt.Printf("%s\t%s\t%.2f\n", sec, point.Date.Format(common.DateFormat), point.Close)
	},
}
