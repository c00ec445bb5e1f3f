package expbin

import "fmt"

// --------------------------------------------------------------------------
// TTL Type
// --------------------------------------------------------------------------

// TTL expresses the caller's intent for a bin's expiration. It is a tagged
// value with three variants instead of a raw numeric sentinel, so "leave the
// expiry alone", "make this a normal bin" and "expire after n seconds"
// cannot be confused.
type TTL struct {
	kind    ttlKind
	seconds uint64
}

type ttlKind uint8

const (
	ttlPreserve ttlKind = iota
	ttlNormal
	ttlExpireAfter
)

// Preserve keeps the bin's current expiry status: a put writes the value as
// a normal bin if none exists, but an existing expire bin is NOT demoted.
func Preserve() TTL {
	return TTL{kind: ttlPreserve}
}

// Normal marks the bin as a normal, never-expiring bin. Any existing expiry
// metadata for the bin is cleared (the explicit demotion path).
func Normal() TTL {
	return TTL{kind: ttlNormal}
}

// ExpireAfter sets the bin to expire the given number of seconds from now.
// ExpireAfter(0) is equivalent to Normal.
func ExpireAfter(seconds uint64) TTL {
	if seconds == 0 {
		return Normal()
	}
	return TTL{kind: ttlExpireAfter, seconds: seconds}
}

// --------------------------------------------------------------------------
// Wire Mapping
// --------------------------------------------------------------------------

// FromSeconds converts the numeric wire form used by put operations:
// a negative value means Preserve, zero means Normal (demote), a positive
// value means ExpireAfter that many seconds.
func FromSeconds(sec int64) TTL {
	switch {
	case sec < 0:
		return Preserve()
	case sec == 0:
		return Normal()
	default:
		return ExpireAfter(uint64(sec))
	}
}

// FromTouchSeconds converts the numeric wire form used by touch operations,
// where any non-positive value clears the bin's expiry metadata.
func FromTouchSeconds(sec int64) TTL {
	if sec <= 0 {
		return Normal()
	}
	return ExpireAfter(uint64(sec))
}

// Seconds returns the numeric wire form of the TTL (-1, 0 or >0).
func (t TTL) Seconds() int64 {
	switch t.kind {
	case ttlPreserve:
		return -1
	case ttlExpireAfter:
		return int64(t.seconds)
	default:
		return 0
	}
}

func (t TTL) String() string {
	switch t.kind {
	case ttlPreserve:
		return "preserve"
	case ttlNormal:
		return "normal"
	default:
		return fmt.Sprintf("expire-after(%ds)", t.seconds)
	}
}

// --------------------------------------------------------------------------
// TTL Query Result
// --------------------------------------------------------------------------

// TTLState classifies the result of a BinTTL query.
type TTLState uint8

const (
	// TTLRemaining: the bin is an expire bin with time left; the remaining
	// seconds accompany this state.
	TTLRemaining TTLState = iota
	// TTLNone: the bin exists and never expires (normal bin).
	TTLNone
	// TTLAbsent: the bin does not exist, or is already expired.
	TTLAbsent
)

func (s TTLState) String() string {
	switch s {
	case TTLRemaining:
		return "remaining"
	case TTLNone:
		return "none"
	case TTLAbsent:
		return "absent"
	default:
		return "unknown"
	}
}
