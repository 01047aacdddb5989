package envelope

import (
	"encoding/json"
	"errors"
	"testing"
)

type widget struct {
	Label string `json:"label"`
	Size  int    `json:"size"`
}

func TestWrapOpenRoundTrip(t *testing.T) {
	c := NewCodec()
	rec, err := c.Wrap(widget{Label: "a", Size: 3})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Schema != CurrentSchema {
		t.Fatalf("schema = %d, want %d", rec.Schema, CurrentSchema)
	}
	var out widget
	if err := c.Open(rec, &out); err != nil {
		t.Fatal(err)
	}
	if out.Label != "a" || out.Size != 3 {
		t.Fatalf("unexpected value: %+v", out)
	}
}

func TestOpenAppliesUpgradeLazily(t *testing.T) {
	type legacyWidget struct {
		Name string `json:"name"`
	}
	c := NewCodec()
	c.RegisterUpgrade(0, func(payload json.RawMessage) (json.RawMessage, error) {
		var old legacyWidget
		if err := json.Unmarshal(payload, &old); err != nil {
			return nil, err
		}
		return json.Marshal(widget{Label: old.Name})
	})

	rec := Record{Schema: 0, Payload: json.RawMessage(`{"name":"legacy"}`)}
	var out widget
	if err := c.Open(rec, &out); err != nil {
		t.Fatal(err)
	}
	if out.Label != "legacy" {
		t.Fatalf("upgrade not applied: %+v", out)
	}
}

func TestUpgradedIdempotent(t *testing.T) {
	c := NewCodec()
	rec, err := c.Wrap(widget{Label: "x"})
	if err != nil {
		t.Fatal(err)
	}
	once, err := c.Upgraded(rec)
	if err != nil {
		t.Fatal(err)
	}
	twice, err := c.Upgraded(once)
	if err != nil {
		t.Fatal(err)
	}
	if string(once.Payload) != string(twice.Payload) || once.Schema != twice.Schema {
		t.Fatalf("upgraded not idempotent: %+v vs %+v", once, twice)
	}
}

func TestOpenUnknownSchema(t *testing.T) {
	c := NewCodec()
	var out widget

	err := c.Open(Record{Schema: CurrentSchema + 1, Payload: json.RawMessage(`{}`)}, &out)
	if !errors.Is(err, ErrUnknownSchema) {
		t.Fatalf("future schema: got %v, want ErrUnknownSchema", err)
	}

	err = c.Open(Record{Schema: CurrentSchema - 1, Payload: json.RawMessage(`{}`)}, &out)
	if !errors.Is(err, ErrUnknownSchema) {
		t.Fatalf("unregistered legacy schema: got %v, want ErrUnknownSchema", err)
	}
}
