package backup

import "testing"

func TestRewritePathMostSpecificWins(t *testing.T) {
	mappings := []PathMapping{
		{From: "/home/alice/proj", To: "/home/bob/other"},
		{From: "/home/alice/proj/.macf", To: "/home/bob/other/.macf-v2"},
	}
	got := RewritePath("/home/alice/proj/.macf/agent_events_log.jsonl", mappings)
	want := "/home/bob/other/.macf-v2/agent_events_log.jsonl"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRewritePathNoMatchIsUnchanged(t *testing.T) {
	mappings := []PathMapping{{From: "/a", To: "/b"}}
	if got := RewritePath("/unrelated/path", mappings); got != "/unrelated/path" {
		t.Errorf("expected unchanged path, got %q", got)
	}
}

func TestVerifyReportsMissingFile(t *testing.T) {
	dir := t.TempDir()
	m := Manifest{Entries: []ManifestEntry{{Path: "nope.txt", SHA256: "x", Size: 1}}}
	r := Verify(m, dir)
	if r.OK() {
		t.Fatal("expected a missing-file verification failure")
	}
	if len(r.Missing) != 1 || r.Missing[0] != "nope.txt" {
		t.Errorf("expected nope.txt reported missing, got %v", r.Missing)
	}
}
