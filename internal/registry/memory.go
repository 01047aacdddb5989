package registry

import (
	"context"
	"maps"

	"guildry.org/internal/envelope"
)

// Memory implements Store with in-process maps. It performs no locking of
// its own: the Service serializes all access (see Service).
type Memory struct {
	moderator     string
	entities      map[string]envelope.Record
	contributors  map[string]envelope.Record
	contributions map[PairKey]envelope.Record
	requests      map[PairKey]envelope.Record
	invites       map[PairKey]envelope.Record
	needs         map[PairKey]envelope.Record
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entities:      make(map[string]envelope.Record),
		contributors:  make(map[string]envelope.Record),
		contributions: make(map[PairKey]envelope.Record),
		requests:      make(map[PairKey]envelope.Record),
		invites:       make(map[PairKey]envelope.Record),
		needs:         make(map[PairKey]envelope.Record),
	}
}

func (m *Memory) Entities() KV          { return memKV{m.entities} }
func (m *Memory) Contributors() KV      { return memKV{m.contributors} }
func (m *Memory) Contributions() PairKV { return memPairKV{m.contributions} }
func (m *Memory) Requests() PairKV      { return memPairKV{m.requests} }
func (m *Memory) Invites() PairKV       { return memPairKV{m.invites} }
func (m *Memory) Needs() PairKV         { return memPairKV{m.needs} }

func (m *Memory) Moderator(ctx context.Context) (string, error) {
	return m.moderator, nil
}

func (m *Memory) SetModerator(ctx context.Context, accountID string) error {
	m.moderator = accountID
	return nil
}

// Atomic runs fn directly: the Service never writes before its preconditions
// hold, so a failed operation has no partial effects to roll back.
func (m *Memory) Atomic(ctx context.Context, fn func(Store) error) error {
	return fn(m)
}

type memKV struct {
	data map[string]envelope.Record
}

func (kv memKV) Get(ctx context.Context, key string) (envelope.Record, bool, error) {
	rec, ok := kv.data[key]
	return rec, ok, nil
}

func (kv memKV) Put(ctx context.Context, key string, rec envelope.Record) error {
	kv.data[key] = rec
	return nil
}

func (kv memKV) Delete(ctx context.Context, key string) (bool, error) {
	_, ok := kv.data[key]
	delete(kv.data, key)
	return ok, nil
}

func (kv memKV) All(ctx context.Context) (map[string]envelope.Record, error) {
	return maps.Clone(kv.data), nil
}

type memPairKV struct {
	data map[PairKey]envelope.Record
}

func (kv memPairKV) Get(ctx context.Context, key PairKey) (envelope.Record, bool, error) {
	rec, ok := kv.data[key]
	return rec, ok, nil
}

func (kv memPairKV) Put(ctx context.Context, key PairKey, rec envelope.Record) error {
	kv.data[key] = rec
	return nil
}

func (kv memPairKV) Delete(ctx context.Context, key PairKey) (bool, error) {
	_, ok := kv.data[key]
	delete(kv.data, key)
	return ok, nil
}

func (kv memPairKV) All(ctx context.Context) (map[PairKey]envelope.Record, error) {
	return maps.Clone(kv.data), nil
}
