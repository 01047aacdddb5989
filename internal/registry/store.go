package registry

import (
	"context"

	"guildry.org/internal/envelope"
)

// PairKey identifies a record scoped to an entity: Member is the contributor
// account for relationship stores and the need name for the needs store.
type PairKey struct {
	EntityID string
	Member   string
}

// KV is one keyed store of versioned records.
type KV interface {
	Get(ctx context.Context, key string) (envelope.Record, bool, error)
	Put(ctx context.Context, key string, rec envelope.Record) error
	Delete(ctx context.Context, key string) (bool, error)
	All(ctx context.Context) (map[string]envelope.Record, error)
}

// PairKV is a keyed store of versioned records under composite keys.
type PairKV interface {
	Get(ctx context.Context, key PairKey) (envelope.Record, bool, error)
	Put(ctx context.Context, key PairKey, rec envelope.Record) error
	Delete(ctx context.Context, key PairKey) (bool, error)
	All(ctx context.Context) (map[PairKey]envelope.Record, error)
}

// Store is the persisted registry state: six independent versioned-record
// stores plus the moderator slot. Implementations do not interpret records;
// the Service owns all encoding and every invariant.
type Store interface {
	Entities() KV
	Contributors() KV
	Contributions() PairKV
	Requests() PairKV
	Invites() PairKV
	Needs() PairKV

	Moderator(ctx context.Context) (string, error)
	SetModerator(ctx context.Context, accountID string) error

	// Atomic runs fn against a view whose writes commit together or not at
	// all. The Service still validates every precondition before writing;
	// Atomic protects the multi-store writes of a single operation.
	Atomic(ctx context.Context, fn func(Store) error) error
}
