// Package manifest implements the layered policy manifest (C7 §3.7,
// §4.8): a framework base merged with an optional project overlay,
// filtered at query time to the view an agent's declared layers,
// languages, and consciousness artifacts require.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/cversek/macf/internal/env"
)

// manifestSchema is the merged manifest's shape, checked once after
// merge so a malformed framework/project overlay fails loudly instead
// of silently producing an empty discovery index downstream.
const manifestSchema = `{
  "type": "object",
  "properties": {
    "active_layers": {"type": "array", "items": {"type": "string"}},
    "active_languages": {"type": "array", "items": {"type": "string"}},
    "active_consciousness": {"type": "array", "items": {"type": "string"}},
    "mandatory_policies": {"type": "array", "items": {"type": "string"}},
    "discovery_index": {"type": "object", "additionalProperties": {"type": "array", "items": {"type": "string"}}},
    "task_type_policies": {"type": "object", "additionalProperties": {"type": "array", "items": {"type": "string"}}},
    "policy_dirs": {"type": "array", "items": {"type": "string"}}
  }
}`

// Validate checks m against manifestSchema, round-tripping through
// encoding/json since jsonschema validates decoded any values rather
// than Go structs directly.
func Validate(m Manifest) error {
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("manifest: marshal for validation: %w", err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("manifest: unmarshal for validation: %w", err)
	}

	var schemaDoc any
	if err := json.Unmarshal([]byte(manifestSchema), &schemaDoc); err != nil {
		return fmt.Errorf("manifest: parse schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("manifest.json", schemaDoc); err != nil {
		return fmt.Errorf("manifest: add schema resource: %w", err)
	}
	schema, err := c.Compile("manifest.json")
	if err != nil {
		return fmt.Errorf("manifest: compile schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("manifest: schema validation failed: %w", err)
	}
	return nil
}

// Manifest is the merged configuration document.
type Manifest struct {
	ActiveLayers        []string            `yaml:"active_layers" json:"active_layers"`
	ActiveLanguages     []string            `yaml:"active_languages" json:"active_languages"`
	ActiveConsciousness []string            `yaml:"active_consciousness" json:"active_consciousness"`
	MandatoryPolicies   []string            `yaml:"mandatory_policies" json:"mandatory_policies"`
	DiscoveryIndex      map[string][]string `yaml:"discovery_index" json:"discovery_index"`
	TaskTypePolicies    map[string][]string `yaml:"task_type_policies" json:"task_type_policies"`
	PolicyDirs          []string            `yaml:"policy_dirs" json:"policy_dirs"`
	Raw                 map[string]any      `yaml:",inline" json:"-"`
}

// Load reads and parses a single YAML manifest file. A missing file
// returns a zero Manifest and no error — callers degrade to defaults.
func Load(path string) (Manifest, error) {
	if path == "" {
		return Manifest{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, nil
		}
		return Manifest{}, err
	}
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Merge deep-merges overlay onto base per §3.7: scalars — overlay wins;
// lists — concatenation; nested objects — deep merge.
func Merge(base, overlay Manifest) Manifest {
	out := base
	out.ActiveLayers = append(append([]string{}, base.ActiveLayers...), overlay.ActiveLayers...)
	out.ActiveLanguages = append(append([]string{}, base.ActiveLanguages...), overlay.ActiveLanguages...)
	out.ActiveConsciousness = append(append([]string{}, base.ActiveConsciousness...), overlay.ActiveConsciousness...)
	out.MandatoryPolicies = append(append([]string{}, base.MandatoryPolicies...), overlay.MandatoryPolicies...)
	out.PolicyDirs = append(append([]string{}, base.PolicyDirs...), overlay.PolicyDirs...)

	out.DiscoveryIndex = mergeStringSliceMap(base.DiscoveryIndex, overlay.DiscoveryIndex)
	out.TaskTypePolicies = mergeStringSliceMap(base.TaskTypePolicies, overlay.TaskTypePolicies)
	return out
}

func mergeStringSliceMap(base, overlay map[string][]string) map[string][]string {
	out := map[string][]string{}
	for k, v := range base {
		out[k] = append([]string{}, v...)
	}
	for k, v := range overlay {
		out[k] = append(out[k], v...)
	}
	return out
}

// LoadMerged resolves the framework base path and project overlay path,
// deep-merges them, and returns the result. Unresolved paths degrade to
// whatever side did resolve, with no error raised — only a caller-level
// warning is appropriate, matching §4.8.
func LoadMerged(e *env.Environment, frameworkPath, projectPath string) (Manifest, error) {
	base, err := Load(frameworkPath)
	if err != nil {
		return Manifest{}, err
	}
	overlay, err := Load(projectPath)
	if err != nil {
		return base, nil // degrade to base alone
	}
	merged := Merge(base, overlay)
	if err := Validate(merged); err != nil {
		return Manifest{}, err
	}
	return merged, nil
}

// FilterActivePolicies projects m to what the declared active layers,
// languages, and consciousness artifacts require, always including
// mandatory policies.
func FilterActivePolicies(m Manifest) []string {
	seen := map[string]bool{}
	var out []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, p := range m.MandatoryPolicies {
		add(p)
	}
	for _, layer := range m.ActiveLayers {
		for _, p := range m.DiscoveryIndex[layer] {
			add(p)
		}
	}
	for _, lang := range m.ActiveLanguages {
		for _, p := range m.DiscoveryIndex[lang] {
			add(p)
		}
	}
	for _, c := range m.ActiveConsciousness {
		for _, p := range m.DiscoveryIndex[c] {
			add(p)
		}
	}
	return out
}

// FindPolicyFile searches the merged-policy directory tree for name,
// trying each configured policy dir plus optional additional parents.
func FindPolicyFile(m Manifest, name string, parents ...string) (string, bool) {
	dirs := append(append([]string{}, m.PolicyDirs...), parents...)
	candidates := []string{name, name + ".md", name + ".yaml"}
	for _, dir := range dirs {
		for _, c := range candidates {
			p := filepath.Join(dir, c)
			if _, err := os.Stat(p); err == nil {
				return p, true
			}
		}
	}
	return "", false
}
