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
	"sync"
)

// PartitionStore is the durable home of price partitions. Implementations
// must make Save atomic: a concurrent Exists either sees the complete
// partition or nothing.
type PartitionStore interface {
	Exists(ctx context.Context, ref PartitionRef) (bool, error)
	Load(ctx context.Context, ref PartitionRef) (*Series, error)
	Save(ctx context.Context, series *Series) error
}

// MemoryPartitionStore keeps partitions in process memory. It is used when
// no durable backend is configured and in tests.
type MemoryPartitionStore struct {
	lock       sync.RWMutex
	partitions map[PartitionRef]*Series
	saves      int
}

func NewMemoryPartitionStore(series ...*Series) *MemoryPartitionStore {
	store := &MemoryPartitionStore{
		partitions: make(map[PartitionRef]*Series, len(series)),
	}
	for _, s := range series {
		store.partitions[s.Ref()] = s
	}
	return store
}

func (m *MemoryPartitionStore) Exists(_ context.Context, ref PartitionRef) (bool, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	_, ok := m.partitions[ref]
	return ok, nil
}

func (m *MemoryPartitionStore) Load(_ context.Context, ref PartitionRef) (*Series, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	s, ok := m.partitions[ref]
	if !ok {
		return nil, ErrPartitionNotFound
	}
	return s, nil
}

func (m *MemoryPartitionStore) Save(_ context.Context, series *Series) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.partitions[series.Ref()] = series
	m.saves++
	return nil
}

// Saves counts calls to Save
func (m *MemoryPartitionStore) Saves() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.saves
}
