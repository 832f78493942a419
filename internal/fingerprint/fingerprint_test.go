package fingerprint

import (
	"strings"
	"testing"

	"github.com/schemapatch/schemapatch/database"
)

func bookingsSchema() *database.Schema {
	return &database.Schema{
		Dialect: database.DialectSQLite,
		Tables: []database.Table{
			{
				Name: "bookings",
				Columns: []database.Column{
					{Name: "id", Type: "INTEGER", IsPrimaryKey: true},
					{Name: "user_id", Type: "BIGINT"},
				},
				Indexes: []database.Index{
					{Name: "idx_bookings_user_id", Columns: []string{"user_id"}},
				},
			},
			{
				Name: "users",
				Columns: []database.Column{
					{Name: "id", Type: "INTEGER", IsPrimaryKey: true},
				},
			},
		},
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	a, err := Compute(bookingsSchema())
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	b, err := Compute(bookingsSchema())
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if a != b {
		t.Errorf("same schema produced different fingerprints: %s vs %s", a, b)
	}
	if len(a) != 64 || strings.ToLower(a) != a {
		t.Errorf("expected lowercase sha256 hex, got %q", a)
	}
}

func TestComputeIgnoresDeclarationOrder(t *testing.T) {
	ordered, err := Compute(bookingsSchema())
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	shuffled := bookingsSchema()
	shuffled.Tables[0], shuffled.Tables[1] = shuffled.Tables[1], shuffled.Tables[0]
	bookings := &shuffled.Tables[1]
	bookings.Columns[0], bookings.Columns[1] = bookings.Columns[1], bookings.Columns[0]

	got, err := Compute(shuffled)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if got != ordered {
		t.Errorf("fingerprint must not depend on declaration order: %s vs %s", got, ordered)
	}
}

func TestComputeDetectsChanges(t *testing.T) {
	base, err := Compute(bookingsSchema())
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	changed := bookingsSchema()
	changed.Tables[0].Columns = append(changed.Tables[0].Columns,
		database.Column{Name: "industry_id", Type: "BIGINT", Nullable: true})
	got, err := Compute(changed)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if got == base {
		t.Error("adding a column must change the fingerprint")
	}
}

func TestComputeNilSchemaMatchesEmptySchema(t *testing.T) {
	nilFP, err := Compute(nil)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	emptyFP, err := Compute(&database.Schema{})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if nilFP != emptyFP {
		t.Errorf("nil and empty schemas must fingerprint alike: %s vs %s", nilFP, emptyFP)
	}
}
