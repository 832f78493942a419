package patch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// planSchema is the JSON Schema every plan file must satisfy, whatever its
// encoding. Kind-specific parameter requirements are enforced separately by
// Validate, which can report every problem at once.
const planSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["plan", "primitives"],
  "properties": {
    "plan": {"type": "string", "minLength": 1},
    "primitives": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "kind"],
        "properties": {
          "id": {"type": "string", "pattern": "^[A-Za-z0-9][A-Za-z0-9_.-]*$"},
          "kind": {"enum": ["add_column", "add_foreign_key", "backfill_column", "rename_index"]},
          "depends_on": {"type": "array", "items": {"type": "string"}},
          "batch_size": {"type": "integer", "minimum": 1}
        }
      }
    }
  }
}`

// Load reads a plan from a .json, .yaml/.yml or .toml file, validates it and
// reorders its primitives into a stable topological order. Any problem is a
// ConfigurationError: plans fail before a connection is ever opened.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	var plan Plan
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, &plan); err != nil {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("invalid JSON in %s: %v", path, err)}
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &plan); err != nil {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("invalid YAML in %s: %v", path, err)}
		}
	case ".toml":
		if err := toml.Unmarshal(data, &plan); err != nil {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("invalid TOML in %s: %v", path, err)}
		}
	default:
		return nil, &ConfigurationError{Reason: fmt.Sprintf("unsupported plan format %q (want .json, .yaml or .toml)", ext)}
	}

	if err := Finalize(&plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// Finalize validates a plan and reorders its primitives topologically.
// Exposed for plans constructed in memory rather than loaded from a file.
func Finalize(plan *Plan) error {
	if issues := Validate(plan); len(issues) > 0 {
		return &ConfigurationError{Reason: strings.Join(issues, "; ")}
	}

	ordered, err := toposort(plan.Primitives)
	if err != nil {
		return err
	}
	plan.Primitives = ordered
	return nil
}

// Validate returns every structural and semantic problem with a plan. An
// empty slice means the plan is well-formed (dependency cycles are detected
// separately, during topological ordering).
func Validate(plan *Plan) []string {
	var issues []string

	issues = append(issues, schemaIssues(plan)...)

	seen := make(map[string]bool, len(plan.Primitives))
	for i := range plan.Primitives {
		spec := &plan.Primitives[i]
		if spec.ID == "" {
			continue // already reported by the schema check
		}
		if seen[spec.ID] {
			issues = append(issues, fmt.Sprintf("duplicate primitive id %q", spec.ID))
		}
		seen[spec.ID] = true

		issues = append(issues, specIssues(spec)...)
	}

	for i := range plan.Primitives {
		spec := &plan.Primitives[i]
		for _, dep := range spec.DependsOn {
			if plan.Find(dep) == nil {
				issues = append(issues, fmt.Sprintf("%s depends on unknown primitive %q", spec.ID, dep))
			}
			if dep == spec.ID {
				issues = append(issues, fmt.Sprintf("%s depends on itself", spec.ID))
			}
		}
	}

	return issues
}

// schemaIssues validates the plan against the embedded JSON Schema.
func schemaIssues(plan *Plan) []string {
	// Round-trip through encoding/json so YAML and TOML plans are validated
	// against the same schema as native JSON ones.
	raw, err := json.Marshal(plan)
	if err != nil {
		return []string{fmt.Sprintf("plan is not encodable: %v", err)}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(planSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return []string{fmt.Sprintf("schema validation failed: %v", err)}
	}

	var issues []string
	for _, desc := range result.Errors() {
		issues = append(issues, desc.String())
	}
	return issues
}

// specIssues checks the kind-specific required parameters of one primitive.
func specIssues(spec *PrimitiveSpec) []string {
	var issues []string
	missing := func(field string) {
		issues = append(issues, fmt.Sprintf("%s (%s) is missing required field %q", spec.ID, spec.Kind, field))
	}

	switch spec.Kind {
	case KindAddColumn:
		if spec.Table == "" {
			missing("table")
		}
		if spec.Column == "" {
			missing("column")
		}
		if spec.Type == "" {
			missing("type")
		}
	case KindAddForeignKey:
		if spec.Table == "" {
			missing("table")
		}
		if spec.Column == "" {
			missing("column")
		}
		if spec.RefTable == "" {
			missing("ref_table")
		}
	case KindBackfillColumn:
		if spec.Table == "" {
			missing("table")
		}
		if spec.Column == "" {
			missing("column")
		}
		if spec.SourceExpression == "" {
			missing("source_expression")
		}
		if spec.Predicate == "" {
			missing("predicate")
		}
		if spec.BatchSize < 0 {
			issues = append(issues, fmt.Sprintf("%s has negative batch_size", spec.ID))
		}
	case KindRenameIndex:
		if spec.OldName == "" {
			missing("old_name")
		}
		if spec.NewName == "" {
			missing("new_name")
		}
	case "":
		issues = append(issues, fmt.Sprintf("%s is missing required field %q", spec.ID, "kind"))
	default:
		issues = append(issues, fmt.Sprintf("%s has unknown kind %q", spec.ID, spec.Kind))
	}

	return issues
}

// toposort orders primitives so every primitive follows all of its
// dependencies, keeping declaration order among independent primitives.
// A cycle is a ConfigurationError.
func toposort(specs []PrimitiveSpec) ([]PrimitiveSpec, error) {
	indegree := make(map[string]int, len(specs))
	dependents := make(map[string][]string, len(specs))
	byID := make(map[string]PrimitiveSpec, len(specs))
	order := make([]string, 0, len(specs))

	for _, spec := range specs {
		byID[spec.ID] = spec
		order = append(order, spec.ID)
		indegree[spec.ID] += 0
		for _, dep := range spec.DependsOn {
			indegree[spec.ID]++
			dependents[dep] = append(dependents[dep], spec.ID)
		}
	}

	// Kahn's algorithm with a queue seeded in declaration order
	var queue []string
	for _, id := range order {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	sorted := make([]PrimitiveSpec, 0, len(specs))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, byID[id])

		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(sorted) != len(specs) {
		var stuck []string
		for _, id := range order {
			if indegree[id] > 0 {
				stuck = append(stuck, id)
			}
		}
		return nil, &ConfigurationError{
			Reason: fmt.Sprintf("cyclic depends_on involving: %s", strings.Join(stuck, ", ")),
		}
	}

	return sorted, nil
}
