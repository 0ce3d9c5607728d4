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

func init() {
	rootCmd.AddCommand(updateCmd)
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Extend the stored index and portfolio NAV through yesterday",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cleanup := setup(ctx, true)
		defer cleanup()

		loc := common.GetTimezone()
		prices, err := newPriceStore(loc)
		if err != nil {
			log.Fatal().Err(err).Msg("could not create price store")
		}

		if err := newNavJob(loc, prices, false, false).update(ctx); err != nil {
			cleanup()
			log.Fatal().Err(err).Msg("update failed")
		}
	},
}
