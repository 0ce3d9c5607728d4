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
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// SymbolMap is the manually curated identifier to vendor symbol map used
// when neither the ISIN nor the exchange ticker is known to the provider
type SymbolMap interface {
	Lookup(identifier string) (string, bool)
}

// StaticSymbolMap keys are matched case-insensitively
type StaticSymbolMap map[string]string

func (m StaticSymbolMap) Lookup(identifier string) (string, bool) {
	if identifier == "" {
		return "", false
	}
	symbol, ok := m[strings.ToUpper(identifier)]
	return symbol, ok && symbol != ""
}

// ParseSymbolMap reads a flat YAML mapping, e.g.
//
//	NIFTY50: ^NSEI
//	INF204KB14I2: NIFTYBEES.NS
func ParseSymbolMap(r io.Reader) (StaticSymbolMap, error) {
	raw := make(map[string]string)
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && err != io.EOF {
		return nil, err
	}

	symbols := make(StaticSymbolMap, len(raw))
	for k, v := range raw {
		symbols[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return symbols, nil
}

// LoadSymbolMap reads the map at path. An empty path yields an empty map.
func LoadSymbolMap(path string) (StaticSymbolMap, error) {
	if path == "" {
		return StaticSymbolMap{}, nil
	}

	fh, err := os.Open(path)
	if err != nil {
		log.Error().Err(err).Str("Path", path).Msg("could not open symbol map")
		return nil, err
	}
	defer fh.Close()

	symbols, err := ParseSymbolMap(fh)
	if err != nil {
		log.Error().Err(err).Str("Path", path).Msg("could not parse symbol map")
		return nil, fmt.Errorf("symbol map %s: %w", path, err)
	}

	log.Debug().Str("Path", path).Int("Entries", len(symbols)).Msg("loaded symbol map")
	return symbols, nil
}
