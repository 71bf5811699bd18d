package trie

import (
	"math/rand"
	"net"
	"testing"
)

func cidr(t *testing.T, s string) *net.IPNet {
	t.Helper()
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		t.Fatalf("ParseCIDR(%q): %v", s, err)
	}
	return n
}

func ip(t *testing.T, s string) net.IP {
	t.Helper()
	addr := net.ParseIP(s)
	if addr == nil {
		t.Fatalf("ParseIP(%q) failed", s)
	}
	return addr
}

// Scenario 5: 10.0.0.0/8 -> "a", 10.1.0.0/16 -> "b", 10.1.1.0/24 -> "c".
func TestConcreteInsertLookupRemoveSequence(t *testing.T) {
	tr := NewIPv4[string]()
	tr.Add(cidr(t, "10.0.0.0/8"), "a")
	tr.Add(cidr(t, "10.1.0.0/16"), "b")
	tr.Add(cidr(t, "10.1.1.0/24"), "c")

	checkLookup := func(addr string, wantNet string, wantVal string) {
		t.Helper()
		n, v, err := tr.LookupAddr(ip(t, addr))
		if err != nil {
			t.Fatalf("lookup(%s): %v", addr, err)
		}
		if n.String() != wantNet || v != wantVal {
			t.Fatalf("lookup(%s) = (%s, %q), want (%s, %q)", addr, n, v, wantNet, wantVal)
		}
	}

	checkLookup("10.1.1.1", "10.1.1.0/24", "c")
	checkLookup("10.1.2.1", "10.1.0.0/16", "b")
	checkLookup("10.2.0.1", "10.0.0.0/8", "a")

	if err := tr.Remove(cidr(t, "10.1.0.0/16")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	checkLookup("10.1.2.1", "10.0.0.0/8", "a")
	checkLookup("10.1.1.1", "10.1.1.0/24", "c")
}

func TestAddExactLookup(t *testing.T) {
	tr := NewIPv4[int]()
	n := cidr(t, "192.168.0.0/16")
	tr.Add(n, 42)
	got, err := tr.ExactLookup(n)
	if err != nil || got != 42 {
		t.Fatalf("ExactLookup = (%d, %v), want (42, nil)", got, err)
	}
}

func TestRemoveNotFound(t *testing.T) {
	tr := NewIPv4[int]()
	if err := tr.Remove(cidr(t, "10.0.0.0/8")); err != ErrNotFound {
		t.Fatalf("Remove on empty trie = %v, want ErrNotFound", err)
	}
}

func TestRemovePreservesDescendants(t *testing.T) {
	tr := NewIPv4[string]()
	tr.Add(cidr(t, "10.0.0.0/8"), "a")
	tr.Add(cidr(t, "10.1.0.0/16"), "b")

	if err := tr.Remove(cidr(t, "10.0.0.0/8")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := tr.ExactLookup(cidr(t, "10.0.0.0/8")); err != ErrNotFound {
		t.Fatalf("expected removed network to be gone")
	}
	got, err := tr.ExactLookup(cidr(t, "10.1.0.0/16"))
	if err != nil || got != "b" {
		t.Fatalf("descendant not preserved after parent removal: got=%q err=%v", got, err)
	}
}

// Trie law: last-write-wins.
func TestLastWriteWins(t *testing.T) {
	tr := NewIPv4[string]()
	n := cidr(t, "172.16.0.0/12")
	tr.Add(n, "v1")
	tr.Add(n, "v2")
	got, err := tr.ExactLookup(n)
	if err != nil || got != "v2" {
		t.Fatalf("ExactLookup = (%q, %v), want (v2, nil)", got, err)
	}
}

// Trie law: insertion order-independence.
func TestInsertionOrderIndependence(t *testing.T) {
	prefixes := []struct {
		net   string
		value string
	}{
		{"10.0.0.0/8", "a"},
		{"10.1.0.0/16", "b"},
		{"10.1.1.0/24", "c"},
		{"10.2.0.0/16", "d"},
		{"10.1.1.128/25", "e"},
		{"192.168.0.0/16", "f"},
	}
	lookups := []string{"10.1.1.1", "10.1.1.200", "10.2.5.5", "10.9.9.9", "192.168.1.1", "172.0.0.1"}

	reference := NewIPv4[string]()
	for _, p := range prefixes {
		reference.Add(cidr(t, p.net), p.value)
	}
	var want []string
	for _, addr := range lookups {
		n, v, err := reference.LookupAddr(ip(t, addr))
		if err != nil {
			want = append(want, "<notfound>")
			continue
		}
		want = append(want, n.String()+"="+v)
	}

	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 20; trial++ {
		perm := rng.Perm(len(prefixes))
		tr := NewIPv4[string]()
		for _, i := range perm {
			tr.Add(cidr(t, prefixes[i].net), prefixes[i].value)
		}
		for i, addr := range lookups {
			n, v, err := tr.LookupAddr(ip(t, addr))
			var got string
			if err != nil {
				got = "<notfound>"
			} else {
				got = n.String() + "=" + v
			}
			if got != want[i] {
				t.Fatalf("trial %d: lookup(%s) = %s, want %s (permutation %v)", trial, addr, got, want[i], perm)
			}
		}
	}
}

func TestAllIteratesEveryEntry(t *testing.T) {
	tr := NewIPv4[int]()
	tr.Add(cidr(t, "10.0.0.0/8"), 1)
	tr.Add(cidr(t, "10.1.0.0/16"), 2)
	tr.Add(cidr(t, "192.168.0.0/16"), 3)

	entries := tr.All()
	if len(entries) != 3 {
		t.Fatalf("All() returned %d entries, want 3", len(entries))
	}
	if tr.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", tr.Len())
	}
}
