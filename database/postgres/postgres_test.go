package postgres

import (
	"strings"
	"testing"

	"github.com/schemapatch/schemapatch/database"
)

func TestGeneratorAddColumn(t *testing.T) {
	g := NewGenerator()

	st := g.AddColumn("bookings", database.Column{Name: "industry_id", Type: "bigint", Nullable: true})
	if st.SQL != "ALTER TABLE bookings ADD COLUMN industry_id bigint" {
		t.Errorf("unexpected SQL %q", st.SQL)
	}

	def := "now()"
	st = g.AddColumn("bookings", database.Column{
		Name: "created_at", Type: "timestamptz", Nullable: false, Default: &def,
	})
	if st.SQL != "ALTER TABLE bookings ADD COLUMN created_at timestamptz NOT NULL DEFAULT now()" {
		t.Errorf("unexpected SQL %q", st.SQL)
	}
}

func TestGeneratorAddForeignKey(t *testing.T) {
	g := NewGenerator()
	cascade := "CASCADE"
	fk := database.ForeignKey{
		Name:              "fk_bookings_industry_id",
		Columns:           []string{"industry_id"},
		ReferencedTable:   "industries",
		ReferencedColumns: []string{"id"},
		OnDelete:          &cascade,
	}

	steps := g.AddForeignKey(database.Table{Name: "bookings"}, fk)
	if len(steps) != 1 {
		t.Fatalf("postgres adds a constraint in one statement, got %d", len(steps))
	}
	want := "ALTER TABLE bookings ADD CONSTRAINT fk_bookings_industry_id FOREIGN KEY (industry_id) REFERENCES industries (id) ON DELETE CASCADE"
	if steps[0].SQL != want {
		t.Errorf("got %q, want %q", steps[0].SQL, want)
	}
}

func TestGeneratorRenameIndex(t *testing.T) {
	g := NewGenerator()
	idx := database.IndexInfo{
		Index: database.Index{Name: "idx_old", Columns: []string{"user_id"}},
		Table: "bookings",
	}

	steps := g.RenameIndex(idx, "idx_bookings_user_id")
	if len(steps) != 1 {
		t.Fatalf("postgres renames natively in one statement, got %d", len(steps))
	}
	if steps[0].SQL != "ALTER INDEX idx_old RENAME TO idx_bookings_user_id" {
		t.Errorf("unexpected SQL %q", steps[0].SQL)
	}
}

func TestGeneratorBackfillBatchBoundsRows(t *testing.T) {
	g := NewGenerator()
	st := g.BackfillBatch("bookings", "industry_id",
		"(SELECT industry_id FROM users WHERE users.id = bookings.user_id)",
		"industry_id IS NULL", 1000)

	if !strings.Contains(st.SQL, "WHERE ctid IN (SELECT ctid FROM bookings WHERE industry_id IS NULL LIMIT 1000)") {
		t.Errorf("batch must be bounded via ctid selection, got %q", st.SQL)
	}
}

func TestGeneratorParameterPlaceholder(t *testing.T) {
	g := NewGenerator()
	if got := g.ParameterPlaceholder(3); got != "$3" {
		t.Errorf("expected $3, got %q", got)
	}
}

func TestLockKeyIsStable(t *testing.T) {
	a := lockKey("bookings-industry")
	b := lockKey("bookings-industry")
	if a != b {
		t.Errorf("lock key must be deterministic: %d vs %d", a, b)
	}
	if a == lockKey("other-plan") {
		t.Error("distinct keys must not trivially collide")
	}
}

func TestDriverFeatures(t *testing.T) {
	drv := NewDriver()
	if drv.Name() != "postgres" {
		t.Errorf("expected name postgres, got %q", drv.Name())
	}
	if drv.Dialect() != database.DialectPostgres {
		t.Errorf("expected postgres dialect, got %q", drv.Dialect())
	}
	for _, feature := range []string{
		database.FeatureTransactionalDDL,
		database.FeatureAlterAddForeignKey,
		database.FeatureRenameIndex,
		database.FeatureAdvisoryLock,
	} {
		if !drv.SupportsFeature(feature) {
			t.Errorf("postgres must support %s", feature)
		}
	}
}
