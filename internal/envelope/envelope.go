// Package envelope implements the schema-tagged persistence wrapper used for
// every stored registry value. Records written by older code keep decoding:
// upgrades run lazily, one step at a time, on first read after a deploy.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
)

// CurrentSchema is the schema tag written for every new record.
const CurrentSchema = 1

// ErrUnknownSchema indicates a record tag this build cannot decode. Stored
// state carrying such a tag is corrupt or written by an incompatible version.
var ErrUnknownSchema = errors.New("envelope: unknown schema")

// Record is the stored form of a value: a schema tag plus the raw payload.
type Record struct {
	Schema  int             `json:"schema"`
	Payload json.RawMessage `json:"payload"`
}

// Upgrade converts a payload from one schema to the next.
type Upgrade func(payload json.RawMessage) (json.RawMessage, error)

// Codec wraps values into current-schema records and opens records of the
// current or any registered prior schema.
type Codec struct {
	current  int
	upgrades map[int]Upgrade
}

// NewCodec returns a codec targeting CurrentSchema with no legacy upgrades.
func NewCodec() *Codec {
	return &Codec{current: CurrentSchema, upgrades: make(map[int]Upgrade)}
}

// RegisterUpgrade installs the conversion from schema `from` to `from+1`.
func (c *Codec) RegisterUpgrade(from int, fn Upgrade) {
	c.upgrades[from] = fn
}

// Wrap marshals v into a record tagged with the current schema.
func (c *Codec) Wrap(v any) (Record, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return Record{}, fmt.Errorf("envelope: wrap: %w", err)
	}
	return Record{Schema: c.current, Payload: payload}, nil
}

// Open unmarshals a record into dst, first applying upgrades stepwise until
// the payload reaches the current schema. A tag newer than this build, or an
// old tag with no registered upgrade, yields ErrUnknownSchema.
func (c *Codec) Open(rec Record, dst any) error {
	upgraded, err := c.Upgraded(rec)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(upgraded.Payload, dst); err != nil {
		return fmt.Errorf("envelope: open: %w", err)
	}
	return nil
}

// Upgraded returns rec converted to the current schema. Records already at
// the current schema are returned unchanged, so re-running is idempotent.
func (c *Codec) Upgraded(rec Record) (Record, error) {
	if rec.Schema > c.current {
		return Record{}, fmt.Errorf("%w: %d", ErrUnknownSchema, rec.Schema)
	}
	for rec.Schema < c.current {
		up, ok := c.upgrades[rec.Schema]
		if !ok {
			return Record{}, fmt.Errorf("%w: %d", ErrUnknownSchema, rec.Schema)
		}
		payload, err := up(rec.Payload)
		if err != nil {
			return Record{}, fmt.Errorf("envelope: upgrade from schema %d: %w", rec.Schema, err)
		}
		rec = Record{Schema: rec.Schema + 1, Payload: payload}
	}
	return rec, nil
}
