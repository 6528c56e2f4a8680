package utils

import (
	"math/rand"
	"strings"
	"testing"
	"time"
)

type samplePayload struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

func TestIdempotencyKeyStable(t *testing.T) {
	a := samplePayload{Event: "message.received", Data: map[string]any{"from": "+54911", "body": "hola"}}
	b := samplePayload{Event: "message.received", Data: map[string]any{"body": "hola", "from": "+54911"}}
	ka, err := IdempotencyKey("whatsapp-bot", a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	kb, _ := IdempotencyKey("whatsapp-bot", b)
	if ka != kb {
		t.Fatalf("expected identical keys for reordered map, got %s and %s", ka, kb)
	}
	if len(ka) != 64 {
		t.Fatalf("expected sha256 hex, got %q", ka)
	}
}

func TestIdempotencyKeyIncludesSource(t *testing.T) {
	p := samplePayload{Event: "x"}
	k1, _ := IdempotencyKey("whatsapp-bot", p)
	k2, _ := IdempotencyKey("voice-calls", p)
	if k1 == k2 {
		t.Fatalf("expected different keys for different sources")
	}
}

func TestTicketNumberFormat(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	n := TicketNumber(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), rnd)
	if !strings.HasPrefix(n, "TKT-") {
		t.Fatalf("unexpected ticket number: %s", n)
	}
	if parts := strings.Split(n, "-"); len(parts) != 3 || len(parts[2]) != 4 {
		t.Fatalf("unexpected ticket number layout: %s", n)
	}
}
