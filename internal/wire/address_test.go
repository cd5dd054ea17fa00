package wire

import "testing"

func TestAddressIsValid(t *testing.T) {
	cases := []struct {
		name string
		addr Address
		want bool
	}{
		{"all set", NewAddress(1, 2, 3, 4), true},
		{"zero subsystem", NewAddress(0, 2, 3, 4), false},
		{"zero node", NewAddress(1, 0, 3, 4), false},
		{"zero component", NewAddress(1, 2, 0, 4), false},
		{"zero instance", NewAddress(1, 2, 3, 0), false},
		{"broadcast", NewAddress(Broadcast, Broadcast, Broadcast, Broadcast), true},
	}
	for _, tc := range cases {
		if got := tc.addr.IsValid(); got != tc.want {
			t.Errorf("%s: IsValid() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestAddressIsBroadcast(t *testing.T) {
	if !NewAddress(Broadcast, Broadcast, Broadcast, Broadcast).IsBroadcast() {
		t.Fatal("expected all-wildcard address to be broadcast")
	}
	if NewAddress(Broadcast, 2, 3, 4).IsBroadcast() {
		t.Fatal("partial wildcard must not be broadcast")
	}
}

func TestAddressHasWildcard(t *testing.T) {
	if !NewAddress(Broadcast, 2, 3, 4).HasWildcard() {
		t.Fatal("expected wildcard byte to be detected")
	}
	if NewAddress(1, 2, 3, 4).HasWildcard() {
		t.Fatal("fully concrete address must not report a wildcard")
	}
}

func TestAddressMatches(t *testing.T) {
	peer := NewAddress(1, 2, 3, 4)
	cases := []struct {
		name string
		want Address
		ok   bool
	}{
		{"exact", NewAddress(1, 2, 3, 4), true},
		{"wrong subsystem", NewAddress(9, 2, 3, 4), false},
		{"wildcard subsystem", NewAddress(Broadcast, 2, 3, 4), true},
		{"all wildcard", NewAddress(Broadcast, Broadcast, Broadcast, Broadcast), true},
	}
	for _, tc := range cases {
		if got := tc.want.Matches(peer); got != tc.ok {
			t.Errorf("%s: Matches() = %v, want %v", tc.name, got, tc.ok)
		}
	}
}

func TestAddressOrdering(t *testing.T) {
	low := NewAddress(1, 1, 1, 1)
	high := NewAddress(1, 1, 1, 2)
	if !low.Less(high) {
		t.Fatal("expected low < high")
	}
	if low.Compare(high) != -1 {
		t.Fatalf("expected Compare() = -1, got %d", low.Compare(high))
	}
	if high.Compare(low) != 1 {
		t.Fatalf("expected Compare() = 1, got %d", high.Compare(low))
	}
	if low.Compare(low) != 0 {
		t.Fatalf("expected Compare() = 0, got %d", low.Compare(low))
	}
}

func TestAddressString(t *testing.T) {
	if got, want := NewAddress(1, 2, 3, 4).String(), "1.2.3.4"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestParseAddressRoundTrip(t *testing.T) {
	addr := NewAddress(1, 2, 3, 4)
	got, err := ParseAddress(addr.String())
	if err != nil {
		t.Fatalf("ParseAddress returned error: %v", err)
	}
	if got != addr {
		t.Fatalf("ParseAddress(%q) = %+v, want %+v", addr.String(), got, addr)
	}
}

func TestParseAddressRejectsMalformedInput(t *testing.T) {
	cases := []string{"", "1.2.3", "1.2.3.4.5", "1.2.3.256", "a.b.c.d"}
	for _, raw := range cases {
		if _, err := ParseAddress(raw); err == nil {
			t.Errorf("ParseAddress(%q): expected error, got none", raw)
		}
	}
}
