package core

import "slices"

// ColumnType is the storage class of a column.
type ColumnType string

const (
	ColumnText    ColumnType = "TEXT"
	ColumnInteger ColumnType = "INTEGER"
)

// Column describes one column of a table.
type Column struct {
	Name    string
	Type    ColumnType
	NotNull bool
}

// TableSchema describes a table and its uniqueness constraints.
type TableSchema struct {
	Name    string
	Columns []Column
	// Unique lists column groups whose values must be unique together.
	Unique [][]string
}

// HasColumn reports whether name is a column of the table.
func (t TableSchema) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// ColumnNames returns the column names in declaration order.
func (t TableSchema) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Conflicts returns the first unique group on which candidate collides with
// existing, or nil. Rows with the same id never conflict with themselves.
func (t TableSchema) Conflicts(existing, candidate Fields) []string {
	if existing.ID() != "" && existing.ID() == candidate.ID() {
		return nil
	}
	for _, group := range t.Unique {
		same := true
		for _, col := range group {
			a, b := existing[col], candidate[col]
			if a == nil || b == nil || FormatValue(a) != FormatValue(b) {
				same = false
				break
			}
		}
		if same {
			return group
		}
	}
	return nil
}

// Schema is the set of tables a store serves.
type Schema []TableSchema

// Table looks a table up by name.
func (s Schema) Table(name string) (TableSchema, bool) {
	i := slices.IndexFunc(s, func(t TableSchema) bool { return t.Name == name })
	if i < 0 {
		return TableSchema{}, false
	}
	return s[i], true
}

// Names returns the table names.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, t := range s {
		names[i] = t.Name
	}
	return names
}

// DefaultSchema is the Aether data model.
func DefaultSchema() Schema {
	return Schema{
		{
			Name: TableUsers,
			Columns: []Column{
				{Name: "id", Type: ColumnText, NotNull: true},
				{Name: "email", Type: ColumnText, NotNull: true},
				{Name: "name", Type: ColumnText},
			},
			Unique: [][]string{{"email"}},
		},
		{
			Name: TableValues,
			Columns: []Column{
				{Name: "id", Type: ColumnText, NotNull: true},
				{Name: "user_id", Type: ColumnText, NotNull: true},
				{Name: "name", Type: ColumnText, NotNull: true},
				{Name: "description", Type: ColumnText},
				{Name: "created_at", Type: ColumnText},
			},
			Unique: [][]string{{"user_id", "name"}},
		},
		{
			Name: TableCaptures,
			Columns: []Column{
				{Name: "id", Type: ColumnText, NotNull: true},
				{Name: "user_id", Type: ColumnText, NotNull: true},
				{Name: "kind", Type: ColumnText, NotNull: true},
				{Name: "body", Type: ColumnText},
				{Name: "url", Type: ColumnText},
				{Name: "created_at", Type: ColumnText},
			},
		},
		{
			Name: TableActions,
			Columns: []Column{
				{Name: "id", Type: ColumnText, NotNull: true},
				{Name: "user_id", Type: ColumnText, NotNull: true},
				{Name: "title", Type: ColumnText, NotNull: true},
				{Name: "status", Type: ColumnText},
				{Name: "created_at", Type: ColumnText},
				{Name: "updated_at", Type: ColumnText},
			},
		},
		{
			Name: TableResonance,
			Columns: []Column{
				{Name: "id", Type: ColumnText, NotNull: true},
				{Name: "user_id", Type: ColumnText, NotNull: true},
				{Name: "capture_id", Type: ColumnText, NotNull: true},
				{Name: "value_id", Type: ColumnText, NotNull: true},
				{Name: "reflection", Type: ColumnText},
				{Name: "xp_granted", Type: ColumnInteger},
				{Name: "created_at", Type: ColumnText},
			},
			Unique: [][]string{{"user_id", "capture_id", "value_id"}},
		},
		{
			Name: TableLedger,
			Columns: []Column{
				{Name: "id", Type: ColumnText, NotNull: true},
				{Name: "user_id", Type: ColumnText, NotNull: true},
				{Name: "delta", Type: ColumnInteger, NotNull: true},
				{Name: "source_description", Type: ColumnText},
				{Name: "source_action_id", Type: ColumnText},
				{Name: "source_resonate_id", Type: ColumnText},
				{Name: "created_at", Type: ColumnText},
			},
		},
	}
}
