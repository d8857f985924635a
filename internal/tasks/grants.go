package tasks

import (
	"sort"
	"strings"

	"github.com/cversek/macf/internal/events"
)

// grantKey canonicalizes a set of task ids for exact-set-equality
// comparison between a grant event and the requested operation.
func grantKey(ids []string) string {
	cp := append([]string(nil), ids...)
	sort.Strings(cp)
	return strings.Join(cp, ",")
}

// CheckGrantInEvents looks for the newest task_grant_{op} event whose
// task_ids set equals ids (exact set equality) and which has not been
// superseded by a later task_grant_{op}_cleared event. On a match, it
// emits the _cleared event (consuming the grant) and returns true.
func CheckGrantInEvents(s *events.Store, op string, ids []string) bool {
	want := grantKey(ids)
	grantEvent := "task_grant_" + op
	clearedEvent := grantEvent + "_cleared"

	for _, r := range s.Read(0, true) {
		switch r.Event {
		case clearedEvent:
			var clearedIDs []string
			r.DataField("task_ids", &clearedIDs)
			if grantKey(clearedIDs) == want {
				return false // grant already consumed
			}
		case grantEvent:
			var grantIDs []string
			r.DataField("task_ids", &grantIDs)
			if grantKey(grantIDs) == want {
				s.Append(clearedEvent, map[string]any{"task_ids": ids}, nil)
				return true
			}
		}
	}
	return false
}
