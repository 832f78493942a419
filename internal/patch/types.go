package patch

// Kind names a built-in change primitive.
type Kind string

const (
	KindAddColumn      Kind = "add_column"
	KindAddForeignKey  Kind = "add_foreign_key"
	KindBackfillColumn Kind = "backfill_column"
	KindRenameIndex    Kind = "rename_index"
)

// Kinds lists every built-in primitive kind.
var Kinds = []Kind{KindAddColumn, KindAddForeignKey, KindBackfillColumn, KindRenameIndex}

// DefaultBatchSize caps each backfill batch when a plan does not set one.
const DefaultBatchSize = 1000

// PrimitiveSpec is one declarative patch primitive from a plan file. The
// field names (kind, id, depends_on and the kind-specific parameters) are
// stable API surface across the JSON, YAML and TOML encodings.
type PrimitiveSpec struct {
	ID          string   `json:"id" yaml:"id" toml:"id"`
	Kind        Kind     `json:"kind" yaml:"kind" toml:"kind"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty" toml:"depends_on,omitempty"`

	// add_column / add_foreign_key / backfill_column
	Table  string `json:"table,omitempty" yaml:"table,omitempty" toml:"table,omitempty"`
	Column string `json:"column,omitempty" yaml:"column,omitempty" toml:"column,omitempty"`

	// add_column
	Type     string  `json:"type,omitempty" yaml:"type,omitempty" toml:"type,omitempty"`
	Nullable bool    `json:"nullable,omitempty" yaml:"nullable,omitempty" toml:"nullable,omitempty"`
	Default  *string `json:"default,omitempty" yaml:"default,omitempty" toml:"default,omitempty"`

	// add_foreign_key
	Constraint string `json:"constraint,omitempty" yaml:"constraint,omitempty" toml:"constraint,omitempty"`
	RefTable   string `json:"ref_table,omitempty" yaml:"ref_table,omitempty" toml:"ref_table,omitempty"`
	RefColumn  string `json:"ref_column,omitempty" yaml:"ref_column,omitempty" toml:"ref_column,omitempty"`
	OnDelete   string `json:"on_delete,omitempty" yaml:"on_delete,omitempty" toml:"on_delete,omitempty"`

	// backfill_column
	SourceExpression string `json:"source_expression,omitempty" yaml:"source_expression,omitempty" toml:"source_expression,omitempty"`
	Predicate        string `json:"predicate,omitempty" yaml:"predicate,omitempty" toml:"predicate,omitempty"`
	BatchSize        int    `json:"batch_size,omitempty" yaml:"batch_size,omitempty" toml:"batch_size,omitempty"`

	// rename_index
	OldName string `json:"old_name,omitempty" yaml:"old_name,omitempty" toml:"old_name,omitempty"`
	NewName string `json:"new_name,omitempty" yaml:"new_name,omitempty" toml:"new_name,omitempty"`
}

// Plan is an ordered, dependency-respecting set of primitives applied in one
// run. After Load, Primitives is in a stable topological order.
type Plan struct {
	Name       string          `json:"plan" yaml:"plan" toml:"plan"`
	Primitives []PrimitiveSpec `json:"primitives" yaml:"primitives" toml:"primitives"`
}

// Find returns the primitive spec with the given id, or nil.
func (p *Plan) Find(id string) *PrimitiveSpec {
	for i := range p.Primitives {
		if p.Primitives[i].ID == id {
			return &p.Primitives[i]
		}
	}
	return nil
}
