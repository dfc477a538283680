package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Column describes a single column of a target table
type Column struct {
	Name       string `json:"name"`
	DataType   string `json:"data_type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key"`
}

// Table describes a target table with its columns in ordinal order
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Snapshot is a point-in-time view of the target database schema.
// It is the ground truth for query validation and the context given
// to the translator.
type Snapshot struct {
	Tables     []Table   `json:"tables"`
	CapturedAt time.Time `json:"captured_at"`
}

// Table returns the named table, matching case-insensitively
func (s *Snapshot) Table(name string) (*Table, bool) {
	for i := range s.Tables {
		if strings.EqualFold(s.Tables[i].Name, name) {
			return &s.Tables[i], true
		}
	}
	return nil, false
}

// HasTable reports whether the snapshot contains the named table
func (s *Snapshot) HasTable(name string) bool {
	_, ok := s.Table(name)
	return ok
}

// HasColumn reports whether the named table contains the named column
func (s *Snapshot) HasColumn(table, column string) bool {
	t, ok := s.Table(table)
	if !ok {
		return false
	}
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, column) {
			return true
		}
	}
	return false
}

// PrimaryKey returns the primary key column names of the named table
// in ordinal order. An empty slice means the table has no declared
// primary key.
func (s *Snapshot) PrimaryKey(table string) []string {
	t, ok := s.Table(table)
	if !ok {
		return nil
	}
	var pk []string
	for _, c := range t.Columns {
		if c.PrimaryKey {
			pk = append(pk, c.Name)
		}
	}
	return pk
}

// TableNames returns all table names in the snapshot, sorted
func (s *Snapshot) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for _, t := range s.Tables {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names
}

// PromptContext renders the snapshot as a compact text description
// suitable for inclusion in a translation prompt.
func (s *Snapshot) PromptContext() string {
	var b strings.Builder
	for _, t := range s.Tables {
		fmt.Fprintf(&b, "Table: %s\n", t.Name)
		for _, c := range t.Columns {
			nullable := "NOT NULL"
			if c.Nullable {
				nullable = "NULL"
			}
			pk := ""
			if c.PrimaryKey {
				pk = " PRIMARY KEY"
			}
			fmt.Fprintf(&b, "  - %s %s %s%s\n", c.Name, c.DataType, nullable, pk)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Hash returns a stable digest of the snapshot structure. Cached
// generated SQL is keyed by this hash so a schema change forces
// re-translation.
func (s *Snapshot) Hash() string {
	// CapturedAt is excluded so two identical schemas hash the same
	type hashTable struct {
		Name    string   `json:"name"`
		Columns []Column `json:"columns"`
	}
	tables := make([]hashTable, 0, len(s.Tables))
	for _, t := range s.Tables {
		tables = append(tables, hashTable{Name: t.Name, Columns: t.Columns})
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
	data, _ := json.Marshal(tables)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
