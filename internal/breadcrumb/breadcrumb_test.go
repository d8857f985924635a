package breadcrumb

import "testing"

func TestParseRoundTrip(t *testing.T) {
	cases := []string{
		"c_61/s_4107604e/p_ead030a5/t_1761360651/g_c3ec870",
		"c_61/s_4107604e/p_none",
		"c_0/s_unknown/p_none",
	}
	for _, s := range cases {
		b, ok := Parse(s)
		if !ok {
			t.Fatalf("Parse(%q) failed", s)
		}
		if got := b.String(); got != s {
			t.Errorf("round-trip mismatch: Parse(%q).String() = %q", s, got)
		}
	}
}

func TestParseLegacy(t *testing.T) {
	b, ok := Parse("C60/4107604e/ead030a5")
	if !ok {
		t.Fatal("legacy parse failed")
	}
	if b.Cycle != 60 || b.SessionID != "4107604e" || b.PromptID != "ead030a5" {
		t.Errorf("unexpected legacy parse: %+v", b)
	}
}

func TestParseUnparseable(t *testing.T) {
	if _, ok := Parse(""); ok {
		t.Error("expected empty string to fail parse")
	}
	if _, ok := Parse("garbage-not-a-breadcrumb"); ok {
		t.Error("expected garbage to fail parse")
	}
}

func TestMinterCachesWithinTTL(t *testing.T) {
	m := NewMinter()
	calls := 0
	cycle := func() int { calls++; return 5 }
	b1 := m.Mint("session-aaaaaaaa", "prompt-bbbbbbbb", cycle)
	b2 := m.Mint("session-aaaaaaaa", "prompt-bbbbbbbb", cycle)
	if b1 != b2 {
		t.Errorf("expected cached breadcrumb to be identical: %+v vs %+v", b1, b2)
	}
	if calls != 1 {
		t.Errorf("expected cycle source to be called once due to caching, got %d", calls)
	}
}
