// Package fingerprint derives a deterministic digest of a live schema.
// Dry runs take a fingerprint before and after to prove they mutated
// nothing; status output shows it so two environments can be compared.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/schemapatch/schemapatch/database"
)

// Compute returns the hex-encoded SHA-256 of a canonical rendering of the
// schema. Any change to tables, columns, indexes or foreign keys produces a
// different fingerprint; ordering differences between introspection runs do
// not.
func Compute(schema *database.Schema) (string, error) {
	canonical := map[string]any{"tables": []any{}}
	if schema != nil {
		canonical = canonicalize(schema)
	}

	raw, err := json.Marshal(canonical)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalize sorts every collection so the rendering is deterministic.
func canonicalize(schema *database.Schema) map[string]any {
	sortedTables := make([]database.Table, len(schema.Tables))
	copy(sortedTables, schema.Tables)
	sort.Slice(sortedTables, func(i, j int) bool {
		return sortedTables[i].Name < sortedTables[j].Name
	})

	tables := make([]any, 0, len(sortedTables))
	for _, table := range sortedTables {
		tableMap := map[string]any{
			"name":    table.Name,
			"columns": canonicalColumns(table.Columns),
		}
		if len(table.Indexes) > 0 {
			tableMap["indexes"] = canonicalIndexes(table.Indexes)
		}
		if len(table.ForeignKeys) > 0 {
			tableMap["foreign_keys"] = canonicalForeignKeys(table.ForeignKeys)
		}
		tables = append(tables, tableMap)
	}

	return map[string]any{"tables": tables}
}

func canonicalColumns(columns []database.Column) []any {
	sorted := make([]database.Column, len(columns))
	copy(sorted, columns)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	result := make([]any, 0, len(sorted))
	for _, col := range sorted {
		colMap := map[string]any{
			"name":           col.Name,
			"type":           col.Type,
			"nullable":       col.Nullable,
			"is_primary_key": col.IsPrimaryKey,
		}
		if col.Default != nil {
			colMap["default"] = *col.Default
		}
		result = append(result, colMap)
	}
	return result
}

func canonicalIndexes(indexes []database.Index) []any {
	sorted := make([]database.Index, len(indexes))
	copy(sorted, indexes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	result := make([]any, 0, len(sorted))
	for _, idx := range sorted {
		result = append(result, map[string]any{
			"name":    idx.Name,
			"columns": idx.Columns,
			"unique":  idx.Unique,
		})
	}
	return result
}

func canonicalForeignKeys(fks []database.ForeignKey) []any {
	sorted := make([]database.ForeignKey, len(fks))
	copy(sorted, fks)
	sort.Slice(sorted, func(i, j int) bool {
		if len(sorted[i].Columns) > 0 && len(sorted[j].Columns) > 0 {
			return sorted[i].Columns[0] < sorted[j].Columns[0]
		}
		return sorted[i].Name < sorted[j].Name
	})

	result := make([]any, 0, len(sorted))
	for _, fk := range sorted {
		fkMap := map[string]any{
			"columns":            fk.Columns,
			"referenced_table":   fk.ReferencedTable,
			"referenced_columns": fk.ReferencedColumns,
		}
		if fk.OnDelete != nil {
			fkMap["on_delete"] = *fk.OnDelete
		}
		if fk.OnUpdate != nil {
			fkMap["on_update"] = *fk.OnUpdate
		}
		result = append(result, fkMap)
	}
	return result
}
