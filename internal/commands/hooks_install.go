package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cversek/macf/internal/hooks"
	"github.com/cversek/macf/internal/output"
)

type hookHandler struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Timeout int    `json:"timeout"`
}

type hookEntry struct {
	Matcher string        `json:"matcher"`
	Hooks   []hookHandler `json:"hooks"`
}

// hookMatchers and hookTimeoutsMs mirror the per-event detail Claude
// Code's settings.json schema expects; everything not listed here gets
// an empty matcher and the default timeout.
var hookMatchers = map[string]string{
	"SessionStart": "startup|resume|clear|compact",
}

var hookTimeoutsMs = map[string]int{
	"SessionStart":     3000,
	"PreCompact":       4000,
	"SessionEnd":       5000,
	"PermissionRequest": 2000,
}

func defaultTimeoutMs(eventName string) int {
	if v, ok := hookTimeoutsMs[eventName]; ok {
		return v
	}
	return 2000
}

func macfExecutable() string {
	exe, err := os.Executable()
	if err != nil || strings.TrimSpace(exe) == "" {
		return "macf"
	}
	return exe
}

func buildMacfHookCommand(eventName string) string {
	sub := kebabCase(eventName)
	exe := macfExecutable()
	if exe == "macf" {
		return fmt.Sprintf("macf hooks %s", sub)
	}
	return fmt.Sprintf("%q hooks %s", exe, sub)
}

func macfHooks() map[string]hookEntry {
	out := map[string]hookEntry{}
	for name := range hooks.Dispatch {
		out[name] = hookEntry{
			Matcher: hookMatchers[name],
			Hooks: []hookHandler{{
				Type:    "command",
				Command: buildMacfHookCommand(name),
				Timeout: defaultTimeoutMs(name),
			}},
		}
	}
	return out
}

func claudeSettingsPathFor(home string, projectScoped bool) string {
	if projectScoped {
		wd, err := os.Getwd()
		if err != nil {
			return filepath.Join(".", ".claude", "settings.json")
		}
		return filepath.Join(wd, ".claude", "settings.json")
	}
	return filepath.Join(home, ".claude", "settings.json")
}

func readJSONSettings(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var settings map[string]any
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return settings, nil
}

func writeJSONSettings(path string, settings map[string]any) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// isMacfHookCommand reports whether command was produced by
// buildMacfHookCommand — used to find and replace our own prior
// installs without touching hooks some other tool registered.
func isMacfHookCommand(command string) bool {
	cmd := strings.TrimSpace(command)
	parts := strings.Fields(cmd)
	if len(parts) < 3 {
		return false
	}
	exec := strings.Trim(parts[0], "\"'")
	return filepath.Base(exec) == "macf" && parts[1] == "hooks"
}

func newHooksInstallCmd() *cobra.Command {
	var local bool
	var global bool
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install macf hooks into Claude Code's settings.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectScoped := local && !global

			home, err := os.UserHomeDir()
			if err != nil {
				return cmdErr(err)
			}
			path := claudeSettingsPathFor(home, projectScoped)

			settings, err := readJSONSettings(path)
			if err != nil {
				return cmdErr(err)
			}
			hooksObj, _ := settings["hooks"].(map[string]any)
			if hooksObj == nil {
				hooksObj = map[string]any{}
			}

			var installed, updated []string
			for eventName, entry := range macfHooks() {
				existing, _ := hooksObj[eventName].([]any)
				var kept []any
				hadOurs := false
				for _, raw := range existing {
					entryObj, ok := raw.(map[string]any)
					if !ok {
						kept = append(kept, raw)
						continue
					}
					hs, _ := entryObj["hooks"].([]any)
					isOurs := false
					for _, h := range hs {
						hMap, ok := h.(map[string]any)
						if !ok {
							continue
						}
						cmdStr, _ := hMap["command"].(string)
						if isMacfHookCommand(cmdStr) {
							isOurs = true
							break
						}
					}
					if isOurs {
						hadOurs = true
						continue
					}
					kept = append(kept, raw)
				}
				entryJSON, _ := json.Marshal(entry)
				var entryMap map[string]any
				_ = json.Unmarshal(entryJSON, &entryMap)
				kept = append(kept, entryMap)
				hooksObj[eventName] = kept

				if hadOurs {
					updated = append(updated, eventName)
				} else {
					installed = append(installed, eventName)
				}
			}
			settings["hooks"] = hooksObj

			if err := writeJSONSettings(path, settings); err != nil {
				return cmdErr(err)
			}

			sort.Strings(installed)
			sort.Strings(updated)
			return output.PrintSuccess(map[string]any{
				"path":      path,
				"installed": installed,
				"updated":   updated,
			})
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "install into the project-scoped .claude/settings.json")
	cmd.Flags().BoolVar(&global, "global", false, "install into the user's ~/.claude/settings.json (default)")
	return cmd
}

func newHooksUninstallCmd() *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove macf hooks from Claude Code's settings.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return cmdErr(err)
			}
			path := claudeSettingsPathFor(home, local)

			settings, err := readJSONSettings(path)
			if err != nil {
				return cmdErr(err)
			}
			hooksObj, _ := settings["hooks"].(map[string]any)
			removed := []string{}
			for eventName, raw := range hooksObj {
				entries, ok := raw.([]any)
				if !ok {
					continue
				}
				var kept []any
				didRemove := false
				for _, e := range entries {
					entryObj, ok := e.(map[string]any)
					if !ok {
						kept = append(kept, e)
						continue
					}
					hs, _ := entryObj["hooks"].([]any)
					isOurs := false
					for _, h := range hs {
						hMap, ok := h.(map[string]any)
						if !ok {
							continue
						}
						cmdStr, _ := hMap["command"].(string)
						if isMacfHookCommand(cmdStr) {
							isOurs = true
							break
						}
					}
					if isOurs {
						didRemove = true
						continue
					}
					kept = append(kept, e)
				}
				if didRemove {
					removed = append(removed, eventName)
				}
				hooksObj[eventName] = kept
			}
			settings["hooks"] = hooksObj

			if err := writeJSONSettings(path, settings); err != nil {
				return cmdErr(err)
			}
			sort.Strings(removed)
			return output.PrintSuccess(map[string]any{"path": path, "removed": removed})
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "uninstall from the project-scoped .claude/settings.json")
	return cmd
}
