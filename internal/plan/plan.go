// Package plan defines the query-plan abstraction the storage engine
// consumes: a parsed, validated operation over a named table with a row
// payload or a simple predicate. How a plan is produced — tokenizing and
// parsing SQL text, resolving identifiers, type-checking expressions — is
// out of scope; this package only carries the result.
package plan

import (
	"fmt"
	"time"
)

// ValueKind tags the logical column type a Value holds, mirroring the
// schema column types of spec §3: int, text, real, datetime, bool.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindInt
	KindText
	KindReal
	KindDateTime
	KindBool
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindText:
		return "text"
	case KindReal:
		return "real"
	case KindDateTime:
		return "datetime"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Value is a tagged column value. Only the field matching Kind is
// meaningful; the others are zero.
type Value struct {
	Kind ValueKind
	Int  int64
	Text string
	Real float64
	Bool bool
	Time time.Time
}

func Null() Value                 { return Value{Kind: KindNull} }
func Int(v int64) Value           { return Value{Kind: KindInt, Int: v} }
func Text(v string) Value         { return Value{Kind: KindText, Text: v} }
func Real(v float64) Value        { return Value{Kind: KindReal, Real: v} }
func Bool(v bool) Value           { return Value{Kind: KindBool, Bool: v} }
func DateTime(v time.Time) Value  { return Value{Kind: KindDateTime, Time: v} }

// Key returns a comparable string fingerprint of the value, used by the
// hash index and by equality-predicate evaluation.
func (v Value) Key() string {
	switch v.Kind {
	case KindNull:
		return "n:"
	case KindInt:
		return fmt.Sprintf("i:%d", v.Int)
	case KindText:
		return "t:" + v.Text
	case KindReal:
		return fmt.Sprintf("r:%g", v.Real)
	case KindBool:
		return fmt.Sprintf("b:%t", v.Bool)
	case KindDateTime:
		return "d:" + v.Time.UTC().Format(time.RFC3339Nano)
	default:
		return "?:"
	}
}

// Column describes one field of a table's schema. Indexed marks a column
// the catalog should register a lazily-built hash index for (spec §4.9);
// the index is only populated on its first lookup, not at registration.
type Column struct {
	Name    string
	Type    ValueKind
	Indexed bool
}

// Schema is a table's ordered column list, the unit the row codec and the
// catalog's persisted table descriptor both key off.
type Schema struct {
	Name    string
	Columns []Column
}

// IndexOf returns the ordinal of a column by name, or -1 if absent.
func (s Schema) IndexOf(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Op is a comparison operator for a Predicate.
type Op uint8

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

// Predicate is the simple column/op/value triple spec §4.8 allows scan to
// evaluate per row; a nil *Predicate means always-true (full scan).
// Only OpEq is index-backed (spec §4.9); every other operator, and every
// predicate on an unindexed column, falls back to a table scan.
type Predicate struct {
	Column string
	Op     Op
	Value  Value
}

// Row is an ordered set of column values matching a Schema's column order.
type Row []Value

// InsertPlan appends one new row to Table.
type InsertPlan struct {
	Table string
	Row   Row
}

// UpdatePlan rewrites the columns named in Set for every row matching
// Predicate (nil means every row).
type UpdatePlan struct {
	Table     string
	Predicate *Predicate
	Set       map[string]Value
}

// DeletePlan removes every row matching Predicate (nil means every row —
// callers driving a real DELETE FROM t WHERE ... are expected to always
// supply one; an unconditional delete is a legal but unusual plan).
type DeletePlan struct {
	Table     string
	Predicate *Predicate
}

// ScanPlan reads rows from Table, optionally filtered by Predicate and
// projected to Columns (nil/empty means all columns).
type ScanPlan struct {
	Table     string
	Predicate *Predicate
	Columns   []string
}

// Plan is the common interface every statement-level plan implements, so
// the facade and the batch driver can type-switch over a mixed slice.
type Plan interface {
	PlanTable() string
}

func (p InsertPlan) PlanTable() string { return p.Table }
func (p UpdatePlan) PlanTable() string { return p.Table }
func (p DeletePlan) PlanTable() string { return p.Table }
func (p ScanPlan) PlanTable() string   { return p.Table }
