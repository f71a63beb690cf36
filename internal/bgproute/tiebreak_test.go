package bgproute

import "testing"

func lp(v uint32) *uint32 { return &v }

func TestCompareWeightDominates(t *testing.T) {
	a := RibEntry[string]{Weight: 10, FromID: 5}
	b := RibEntry[string]{Weight: 20, FromID: 1}
	if Compare(a, b) >= 0 {
		t.Fatalf("expected b (higher weight) to win")
	}
}

func TestCompareLocalPrefBeforeAsPath(t *testing.T) {
	a := RibEntry[string]{Route: Route[string]{LocalPref: lp(200), AsPath: []AsID{1, 2, 3}}, FromID: 1}
	b := RibEntry[string]{Route: Route[string]{LocalPref: lp(100), AsPath: []AsID{1}}, FromID: 2}
	if Compare(a, b) <= 0 {
		t.Fatalf("expected a (higher local_pref) to win despite longer as_path")
	}
}

func TestCompareEbgpOverIbgp(t *testing.T) {
	a := RibEntry[string]{FromType: SessionEBgp, FromID: 9}
	b := RibEntry[string]{FromType: SessionIBgpPeer, FromID: 1}
	if Compare(a, b) <= 0 {
		t.Fatalf("expected eBGP-learned route to win tie-break over iBGP")
	}
}

func TestCompareFromIDStableTiebreak(t *testing.T) {
	a := RibEntry[string]{FromID: 1}
	b := RibEntry[string]{FromID: 2}
	if Compare(a, b) <= 0 {
		t.Fatalf("expected lower from_id to win when all else equal")
	}
}

func TestBestPicksTopCandidate(t *testing.T) {
	cands := []RibEntry[string]{
		{Weight: 1, FromID: 3},
		{Weight: 5, FromID: 1},
		{Weight: 5, FromID: 0},
	}
	best, ok := Best(cands)
	if !ok {
		t.Fatalf("expected a best candidate")
	}
	if best.Weight != 5 || best.FromID != 0 {
		t.Fatalf("got %+v, want weight=5 from_id=0", best)
	}
}
