package expbin

import "testing"

// TestTTLWireMapping tests the numeric wire form of the TTL variants
func TestTTLWireMapping(t *testing.T) {
	cases := []struct {
		in   int64
		want TTL
	}{
		{-1, Preserve()},
		{-100, Preserve()},
		{0, Normal()},
		{1, ExpireAfter(1)},
		{3600, ExpireAfter(3600)},
	}

	for _, c := range cases {
		if got := FromSeconds(c.in); got != c.want {
			t.Errorf("FromSeconds(%d): expected %s, got %s", c.in, c.want, got)
		}
	}

	// touch has no preserve form on the wire: non-positive clears
	if got := FromTouchSeconds(-1); got != Normal() {
		t.Errorf("FromTouchSeconds(-1): expected normal, got %s", got)
	}
	if got := FromTouchSeconds(0); got != Normal() {
		t.Errorf("FromTouchSeconds(0): expected normal, got %s", got)
	}
	if got := FromTouchSeconds(30); got != ExpireAfter(30) {
		t.Errorf("FromTouchSeconds(30): expected expire-after(30s), got %s", got)
	}

	// ExpireAfter(0) collapses to Normal so 0 never means "expire now"
	if ExpireAfter(0) != Normal() {
		t.Error("ExpireAfter(0) should equal Normal()")
	}

	// round trip through the wire form
	for _, ttl := range []TTL{Preserve(), Normal(), ExpireAfter(60)} {
		if got := FromSeconds(ttl.Seconds()); got != ttl {
			t.Errorf("Wire round trip of %s yielded %s", ttl, got)
		}
	}
}
