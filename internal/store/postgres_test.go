package store

import (
	"encoding/hex"
	"strings"
	"testing"
)

func TestComputeDedupKeyFromID(t *testing.T) {
	body := []byte(`{"id":"evt_123","type":"x"}`)
	got := computeDedupKey(body)
	if got != "evt_123" {
		t.Fatalf("want evt_123, got %s", got)
	}
}

func TestComputeDedupKeyFromHash(t *testing.T) {
	body := []byte(`{"notId":"x"}`)
	got := computeDedupKey(body)
	// hex-encoded first 8 bytes -> 16 hex chars
	b, err := hex.DecodeString(got)
	if err != nil {
		t.Fatalf("invalid hex: %v", err)
	}
	if len(b) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(b))
	}
}

func TestJSONOrNil(t *testing.T) {
	var m map[string]any
	if v := jsonOrNil(m); v != nil {
		t.Fatalf("nil map -> nil expected")
	}
	var s []int
	if v := jsonOrNil(s); v != nil {
		t.Fatalf("nil slice -> nil expected")
	}
	if v := jsonOrNil([]int{3, 1}); v != "[3,1]" {
		t.Fatalf("want [3,1], got %v", v)
	}
	if v := jsonOrNil(map[string]any{"a": 1}); v != `{"a":1}` {
		t.Fatalf("want {\"a\":1}, got %v", v)
	}
}

func TestSchemaEmbedded(t *testing.T) {
	for _, table := range []string{"instances", "runs", "run_checkpoints", "webhook_deliveries", "webhook_dlq", "solver_config"} {
		if !strings.Contains(schemaSQL, "CREATE TABLE IF NOT EXISTS "+table+" ") {
			t.Fatalf("schema missing table %s", table)
		}
	}
}
