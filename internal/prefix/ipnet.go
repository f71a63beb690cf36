package prefix

import (
	"net/netip"

	"github.com/gaissmai/bart"
)

// zero4 and zero6 are the widest possible prefixes, used to walk the
// whole trie via Subnets when an "all entries" view is needed — the bart
// API exposes no dedicated iterator, only Subnets(pfx)/Supernets(pfx).
var (
	zero4 = netip.MustParsePrefix("0.0.0.0/0")
	zero6 = netip.MustParsePrefix("::/0")
)

// IPNet is the "IP-network with LPM" prefix variant: a network prefix key
// with longest-prefix-match lookup and parent/children enumeration,
// backed by github.com/gaissmai/bart's popcount-compressed trie.
type IPNet[V any] struct {
	table *bart.Table[V]
}

// NewIPNet constructs an empty IPNet map/set.
func NewIPNet[V any]() *IPNet[V] {
	return &IPNet[V]{table: &bart.Table[V]{}}
}

// Insert stores v for pfx, replacing any existing value. bart.Table has
// no bare Insert; Update's callback form is used with a function that
// always returns the new value regardless of what (if anything) it finds.
func (n *IPNet[V]) Insert(pfx netip.Prefix, v V) {
	n.table.Update(pfx, func(V, bool) V { return v })
}

// Delete removes pfx; reports whether it was present.
func (n *IPNet[V]) Delete(pfx netip.Prefix) bool {
	_, found := n.table.GetAndDelete(pfx)
	return found
}

// Get returns the exact-match value for pfx (no LPM).
func (n *IPNet[V]) Get(pfx netip.Prefix) (V, bool) {
	return n.table.LookupPrefix(pfx)
}

// Contains reports whether pfx has an exact entry.
func (n *IPNet[V]) Contains(pfx netip.Prefix) bool {
	_, ok := n.table.LookupPrefix(pfx)
	return ok
}

// LPM performs a longest-prefix-match lookup for pfx, returning the
// most-specific covering entry.
func (n *IPNet[V]) LPM(pfx netip.Prefix) (matched netip.Prefix, v V, ok bool) {
	return n.table.LookupPrefixLPM(pfx)
}

// Covers reports whether a is equal to, or a less specific supernet of, b.
func (n *IPNet[V]) Covers(a, b netip.Prefix) bool {
	return a.Bits() <= b.Bits() && a.Contains(b.Addr())
}

// LPMAddr performs LPM for a single address.
func (n *IPNet[V]) LPMAddr(ip netip.Addr) (v V, ok bool) {
	return n.table.Lookup(ip)
}

// Children enumerates entries that are subnets (more specific) of pfx.
func (n *IPNet[V]) Children(pfx netip.Prefix) iterSeq[V] {
	return n.table.Subnets(pfx)
}

// Parents enumerates entries that are supernets (less specific, covering)
// of pfx.
func (n *IPNet[V]) Parents(pfx netip.Prefix) iterSeq[V] {
	return n.table.Supernets(pfx)
}

// All enumerates every entry in the table, IPv4 then IPv6.
func (n *IPNet[V]) All() []Entry[V] {
	var out []Entry[V]
	for p, v := range n.table.Subnets(zero4) {
		out = append(out, Entry[V]{Prefix: p, Value: v})
	}
	for p, v := range n.table.Subnets(zero6) {
		out = append(out, Entry[V]{Prefix: p, Value: v})
	}
	return out
}

// Keys returns every prefix stored in the table, satisfying
// Table[netip.Prefix, V].
func (n *IPNet[V]) Keys() []netip.Prefix {
	entries := n.All()
	out := make([]netip.Prefix, len(entries))
	for i, e := range entries {
		out[i] = e.Prefix
	}
	return out
}

// Entry pairs a matched prefix with its stored value.
type Entry[V any] struct {
	Prefix netip.Prefix
	Value  V
}

// iterSeq is a local alias kept small so callers don't need to import
// the "iter" package just to range over Children/Parents.
type iterSeq[V any] = func(func(netip.Prefix, V) bool)

// EquivalenceClass groups network prefixes the simulator treats as one
// logical destination (spec §9: "iterate prefixes covered by a prefix
// equivalence class") while still letting callers enumerate every
// concrete member for on-device verification. It reuses the same trie:
// membership of a concrete prefix in the class rooted at `root` is
// exactly root's Children (Subnets) plus root itself.
type EquivalenceClass[V any] struct {
	root  netip.Prefix
	table *IPNet[V]
}

// NewEquivalenceClass builds a class rooted at root over table.
func NewEquivalenceClass[V any](root netip.Prefix, table *IPNet[V]) *EquivalenceClass[V] {
	return &EquivalenceClass[V]{root: root, table: table}
}

// Members returns every concrete prefix belonging to the class: root
// itself (if present) plus all its subnets in the backing table.
func (c *EquivalenceClass[V]) Members() []Entry[V] {
	var out []Entry[V]
	if v, ok := c.table.Get(c.root); ok {
		out = append(out, Entry[V]{Prefix: c.root, Value: v})
	}
	for p, v := range c.table.Children(c.root) {
		out = append(out, Entry[V]{Prefix: p, Value: v})
	}
	return out
}

// Root returns the class's defining (least-specific) prefix.
func (c *EquivalenceClass[V]) Root() netip.Prefix { return c.root }
