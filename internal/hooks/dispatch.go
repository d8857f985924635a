package hooks

// Dispatch maps each hook_event_name the host invokes to its runner,
// the single fixed table every entrypoint (cmd/macf hooks subcommands)
// consults instead of a switch duplicated per binary.
var Dispatch = map[string]RunnerFunc{
	"SessionStart":      SessionStart,
	"UserPromptSubmit":  UserPromptSubmit,
	"PreToolUse":        PreToolUse,
	"PostToolUse":       PostToolUse,
	"Stop":              Stop,
	"SubagentStop":      SubagentStop,
	"SessionEnd":        SessionEnd,
	"PreCompact":        PreCompact,
	"PermissionRequest": PermissionRequest,
	"Notification":      Notification,
}

// Lookup returns the runner for name and whether one is registered.
func Lookup(name string) (RunnerFunc, bool) {
	fn, ok := Dispatch[name]
	return fn, ok
}
