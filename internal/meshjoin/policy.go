package meshjoin

import (
	"fmt"
	"strings"
)

// RefreshPolicy selects when the dimension partition buffers rotate.
type RefreshPolicy string

const (
	// RefreshPerMiss rotates a buffer whenever a lookup misses and retries
	// the lookup once. One partition read per miss.
	RefreshPerMiss RefreshPolicy = "per-miss"

	// RefreshPerSegment rotates both buffers once at the start of every
	// segment. Lookups never rotate; a miss skips the transaction.
	RefreshPerSegment RefreshPolicy = "per-segment"
)

// ParseRefreshPolicy parses a policy name. Empty selects RefreshPerMiss.
func ParseRefreshPolicy(s string) (RefreshPolicy, error) {
	switch p := RefreshPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return RefreshPerMiss, nil
	case RefreshPerMiss, RefreshPerSegment:
		return p, nil
	}
	return "", fmt.Errorf("unknown refresh policy %q (want %q or %q)", s, RefreshPerMiss, RefreshPerSegment)
}

// FactDedup selects how the fact writer avoids duplicate fact rows.
type FactDedup string

const (
	// DedupOrderID inserts facts with insert-if-absent on order_id, the
	// natural key of a fact row.
	DedupOrderID FactDedup = "order_id"

	// DedupTimeID suppresses a fact when any fact with the same time_id is
	// already in the warehouse or earlier in the open batch. time_id is
	// shared by every order of a day, so this drops legitimate orders; kept
	// for compatibility with older loads.
	DedupTimeID FactDedup = "time_id"

	// DedupNone inserts every fact; a repeated order_id fails the flush.
	DedupNone FactDedup = "none"
)

// ParseFactDedup parses a dedup policy name. Empty selects DedupOrderID.
func ParseFactDedup(s string) (FactDedup, error) {
	switch d := FactDedup(strings.ToLower(strings.TrimSpace(s))); d {
	case "":
		return DedupOrderID, nil
	case DedupOrderID, DedupTimeID, DedupNone:
		return d, nil
	}
	return "", fmt.Errorf("unknown fact dedup policy %q (want %q, %q or %q)", s, DedupOrderID, DedupTimeID, DedupNone)
}
