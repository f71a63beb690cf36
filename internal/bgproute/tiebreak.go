package bgproute

// Compare implements the strict, total decision-process tie-break order
// from spec §3:
//  1. higher weight
//  2. higher local_pref (missing = 100)
//  3. shorter as_path
//  4. prefer eBGP- over iBGP-learned
//  5. lower igp_cost
//  6. lower from_id (stable tiebreak)
//
// Compare returns a positive number if a is strictly preferred over b, a
// negative number if b is preferred, and 0 only when a and b are the same
// entry (from_id is a total order, so ties never fall through all six
// keys for distinct entries).
func Compare[P comparable](a, b RibEntry[P]) int {
	if a.Weight != b.Weight {
		return int(a.Weight) - int(b.Weight)
	}
	if lp := int(a.Route.LocalPrefOrDefault()) - int(b.Route.LocalPrefOrDefault()); lp != 0 {
		return lp
	}
	if la, lb := len(a.Route.AsPath), len(b.Route.AsPath); la != lb {
		// Shorter AS path wins, so invert the natural length comparison.
		return lb - la
	}
	if ea, eb := a.FromType == SessionEBgp, b.FromType == SessionEBgp; ea != eb {
		if ea {
			return 1
		}
		return -1
	}
	ca, cb := igpCostOf(a), igpCostOf(b)
	if ca != cb {
		if ca < cb {
			return 1
		}
		return -1
	}
	// Lower from_id wins; from_id is always distinct for two routes
	// stored under different peers in the same bgp_rib_in[prefix] map.
	return int(b.FromID) - int(a.FromID)
}

// Best returns the most-preferred entry among candidates under Compare,
// and false if candidates is empty.
func Best[P comparable](candidates []RibEntry[P]) (RibEntry[P], bool) {
	if len(candidates) == 0 {
		var zero RibEntry[P]
		return zero, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if Compare(c, best) > 0 {
			best = c
		}
	}
	return best, true
}

func igpCostOf[P comparable](e RibEntry[P]) float64 {
	if e.IgpCost == nil {
		return 0
	}
	return *e.IgpCost
}
