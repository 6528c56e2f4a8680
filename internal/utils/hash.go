package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

func HashStringToUint64(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// IdempotencyKey hashes source plus the JSON form of the validated payload.
// Struct fields marshal in declaration order and map keys sorted, so the
// same payload always yields the same key.
func IdempotencyKey(source string, payload any) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}
	sum := sha256.New()
	_, _ = sum.Write([]byte(source))
	_, _ = sum.Write(b)
	return hex.EncodeToString(sum.Sum(nil)), nil
}

// TicketNumber builds a human-facing ticket number from time and randomness.
func TicketNumber(now time.Time, rnd *rand.Rand) string {
	n := 0
	if rnd != nil {
		n = rnd.Intn(10000)
	} else {
		n = rand.Intn(10000)
	}
	return fmt.Sprintf("TKT-%s-%04d", strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36)), n)
}
