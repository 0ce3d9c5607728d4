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

	"github.com/penny-vault/pv-nav/common"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	portfolioReplay bool
	portfolioDryRun bool
)

func init() {
	portfolioCmd.Flags().BoolVar(&portfolioReplay, "replay", false, "Discard the stored portfolio NAV and rebuild it from day zero")
	portfolioCmd.Flags().BoolVar(&portfolioDryRun, "dry-run", false, "Print records instead of saving them")
	rootCmd.AddCommand(portfolioCmd)
}

var portfolioCmd = &cobra.Command{
	Use:   "portfolio",
	Short: "Compute the NAV of the holdings implied by the trade report",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cleanup := setup(ctx, true)
		defer cleanup()

		loc := common.GetTimezone()
		prices, err := newPriceStore(loc)
		if err != nil {
			log.Fatal().Err(err).Msg("could not create price store")
		}

		job := newNavJob(loc, prices, portfolioReplay, portfolioDryRun)
		engine, err := job.portfolio(ctx)
		if err != nil {
			log.Error().Err(err).Msg("portfolio nav failed")
			cleanup()
			log.Fatal().Msg("exiting")
		}
		if portfolioDryRun {
			job.printPortfolio()
		}
		log.Info().Int("Emitted", engine.Emitted()).Str("State", engine.State().String()).Msg("portfolio nav done")
	},
}
