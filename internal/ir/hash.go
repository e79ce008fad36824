package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed keys.
// Version suffix enables future algorithm migration.
const (
	DomainSubscription = "bindery/subscription/v1"
	DomainPayload      = "bindery/payload/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SubscriptionKey computes the persisted key for one connection's
// membership in one group. Joining the same group twice yields the same key,
// which makes subscription writes idempotent.
func SubscriptionKey(group, connID string) string {
	obj := Object{
		"group":   String(group),
		"conn_id": String(connID),
	}
	// Strings always marshal.
	canonical := MustMarshalCanonical(obj)
	return hashWithDomain(DomainSubscription, canonical)
}

// PayloadDigest computes a short digest of a canonical payload. Used in logs
// and test transcripts to identify a pushed message without printing it.
func PayloadDigest(v Value) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("PayloadDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainPayload, canonical)[:16], nil
}
