package commands

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cversek/macf/internal/events"
	"github.com/cversek/macf/internal/output"
)

// NewEventsCmd exposes direct read access to the append-only event log
// (C1/C3 §3.1, §3.3): single-record show, bounded history, the query and
// set-algebra query-set verbs, session enumeration, tallying, and gap
// detection.
func NewEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the append-only event log",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newEventsShowCmd())
	cmd.AddCommand(newEventsHistoryCmd())
	cmd.AddCommand(newEventsQueryCmd())
	cmd.AddCommand(newEventsQuerySetCmd())

	sessionsCmd := &cobra.Command{Use: "sessions", Short: "Enumerate sessions seen in the event log"}
	sessionsCmd.AddCommand(newEventsSessionsListCmd())
	namespaceIndex(sessionsCmd)
	cmd.AddCommand(sessionsCmd)

	cmd.AddCommand(newEventsStatsCmd())
	cmd.AddCommand(newEventsGapsCmd())
	namespaceIndex(cmd)
	return cmd
}

func newEventsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the most recently appended event",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			recs := cc.Events.Read(1, true)
			if len(recs) == 0 {
				return cmdErr(fmt.Errorf("events show: log is empty"))
			}
			return output.PrintSuccess(recs[0])
		},
	}
}

func newEventsHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the N most recent events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			return output.PrintSuccess(cc.Events.Read(limit, true))
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of events to print")
	return cmd
}

// filterFlags binds the Filters fields query and query-set share.
type filterFlags struct {
	eventType  string
	since      float64
	until      float64
	sessionID  string
	without    string
	bcSession  string
	bcCycle    int
	bcGitHash  string
	bcPromptID string
	hasSince   bool
	hasUntil   bool
	hasCycle   bool
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.eventType, "event", "", "exact event name to match")
	cmd.Flags().Float64Var(&f.since, "since", 0, "only events strictly after this unix timestamp")
	cmd.Flags().Float64Var(&f.until, "until", 0, "only events strictly before this unix timestamp")
	cmd.Flags().StringVar(&f.sessionID, "session-id", "", "match data.session_id")
	cmd.Flags().StringVar(&f.without, "without", "", "exclude events whose name equals this")
	cmd.Flags().StringVar(&f.bcSession, "bc-session", "", "match breadcrumb session id")
	cmd.Flags().IntVar(&f.bcCycle, "bc-cycle", 0, "match breadcrumb cycle")
	cmd.Flags().StringVar(&f.bcGitHash, "bc-git-hash", "", "match breadcrumb git hash")
	cmd.Flags().StringVar(&f.bcPromptID, "bc-prompt-id", "", "match breadcrumb prompt id")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		f.hasSince = cmd.Flags().Changed("since")
		f.hasUntil = cmd.Flags().Changed("until")
		f.hasCycle = cmd.Flags().Changed("bc-cycle")
		return nil
	}
}

func (f *filterFlags) toFilters() events.Filters {
	out := events.Filters{
		EventType:       f.eventType,
		SessionID:       f.sessionID,
		WithoutMatching: f.without,
	}
	if f.hasSince {
		out.Since = &f.since
	}
	if f.hasUntil {
		out.Until = &f.until
	}
	if f.bcSession != "" || f.bcGitHash != "" || f.bcPromptID != "" || f.hasCycle {
		bf := &events.BreadcrumbFilter{SessionID: f.bcSession, GitHash: f.bcGitHash, PromptID: f.bcPromptID}
		if f.hasCycle {
			bf.Cycle = &f.bcCycle
		}
		out.Breadcrumb = bf
	}
	return out
}

func newEventsQueryCmd() *cobra.Command {
	var f filterFlags
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run one conjunctive filter set over the event log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			return output.PrintSuccess(cc.Events.Query(f.toFilters()))
		},
	}
	f.register(cmd)
	return cmd
}

func newEventsQuerySetCmd() *cobra.Command {
	var op string
	var rawFilters []string
	cmd := &cobra.Command{
		Use:   "query-set",
		Short: "Compute a set operation (union|intersection|subtraction) over repeated --filter clauses",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			var queries []events.Filters
			for _, raw := range rawFilters {
				q, err := parseFilterClause(raw)
				if err != nil {
					return cmdErr(err)
				}
				queries = append(queries, q)
			}
			setOp := events.SetOp(op)
			switch setOp {
			case events.OpUnion, events.OpIntersection, events.OpSubtraction:
			default:
				return cmdErr(fmt.Errorf("events query-set: --op must be one of union, intersection, subtraction"))
			}
			return output.PrintSuccess(cc.Events.SetOperation(queries, setOp))
		},
	}
	cmd.Flags().StringVar(&op, "op", "union", "union, intersection, or subtraction")
	cmd.Flags().StringArrayVar(&rawFilters, "filter", nil, "event=X,session-id=Y,since=T,until=T,without=Z clause (repeatable)")
	return cmd
}

// parseFilterClause parses one comma-separated key=value clause into a
// Filters, reusing filterFlags' field set so query and query-set accept
// the same vocabulary.
func parseFilterClause(clause string) (events.Filters, error) {
	var f filterFlags
	for _, pair := range strings.Split(clause, ",") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return events.Filters{}, fmt.Errorf("events query-set: invalid clause segment %q", pair)
		}
		key, val := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		switch key {
		case "event":
			f.eventType = val
		case "session-id":
			f.sessionID = val
		case "without":
			f.without = val
		case "bc-session":
			f.bcSession = val
		case "bc-git-hash":
			f.bcGitHash = val
		case "bc-prompt-id":
			f.bcPromptID = val
		case "since":
			v, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return events.Filters{}, fmt.Errorf("events query-set: invalid since %q: %w", val, err)
			}
			f.since, f.hasSince = v, true
		case "until":
			v, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return events.Filters{}, fmt.Errorf("events query-set: invalid until %q: %w", val, err)
			}
			f.until, f.hasUntil = v, true
		case "bc-cycle":
			v, err := strconv.Atoi(val)
			if err != nil {
				return events.Filters{}, fmt.Errorf("events query-set: invalid bc-cycle %q: %w", val, err)
			}
			f.bcCycle, f.hasCycle = v, true
		default:
			return events.Filters{}, fmt.Errorf("events query-set: unknown filter key %q", key)
		}
	}
	return f.toFilters(), nil
}

func newEventsSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List distinct session ids seen in the event log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			seen := map[string]bool{}
			for _, r := range cc.Events.Query(events.Filters{}) {
				if bc, ok := r.ParsedBreadcrumb(); ok && bc.SessionID != "" {
					seen[bc.SessionID] = true
				}
				if sid := r.DataString("session_id"); sid != "" {
					seen[sid] = true
				}
			}
			var out []string
			for s := range seen {
				out = append(out, s)
			}
			sort.Strings(out)
			return output.PrintSuccess(out)
		},
	}
}

func newEventsStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the full-scan event-count and duration tally",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			return output.PrintSuccess(cc.Events.TallyAll())
		},
	}
}

// eventGap is one pair of consecutive records whose timestamp delta
// exceeds the requested threshold.
type eventGap struct {
	Before       events.Record `json:"before"`
	After        events.Record `json:"after"`
	GapSeconds   float64       `json:"gap_seconds"`
}

func newEventsGapsCmd() *cobra.Command {
	var threshold float64
	cmd := &cobra.Command{
		Use:   "gaps",
		Short: "Find consecutive-event gaps exceeding a threshold, in seconds",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			all := cc.Events.Query(events.Filters{})
			var gaps []eventGap
			for i := 1; i < len(all); i++ {
				delta := all[i].Timestamp - all[i-1].Timestamp
				if delta > threshold {
					gaps = append(gaps, eventGap{Before: all[i-1], After: all[i], GapSeconds: delta})
				}
			}
			return output.PrintSuccess(gaps)
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", 300, "minimum gap in seconds to report")
	return cmd
}
