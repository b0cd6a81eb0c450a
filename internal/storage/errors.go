package storage

import "fmt"

// NotFoundError is returned by Read/Update/Delete when a RowRef no longer
// addresses a live row. Non-fatal: spec §7 treats it as a normal result
// value, not an exceptional condition.
type NotFoundError struct {
	Table string
	Ref   uint64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("storage: row %#x not found in table %q", e.Ref, e.Table)
}

// CorruptionError marks a checksum or structural inconsistency the engine
// refuses to paper over (spec §7: fatal, surfaced to the caller, the
// affected artefact unusable until reopen).
type CorruptionError struct {
	Table  string
	Reason string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("storage: corruption in table %q: %s", e.Table, e.Reason)
}

// SchemaViolationError reports a row that does not conform to its table's
// column list or types. Rejected before WAL enqueue (spec §7).
type SchemaViolationError struct {
	Table  string
	Reason string
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("storage: schema violation on table %q: %s", e.Table, e.Reason)
}

// ConstraintViolationError reports a duplicate primary-key value on a
// table that declares one.
type ConstraintViolationError struct {
	Table  string
	Column string
	Value  string
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("storage: constraint violation on %s.%s (value=%s)", e.Table, e.Column, e.Value)
}

// TableNotFoundError reports a plan naming a table the catalog has no
// record of.
type TableNotFoundError struct {
	Table string
}

func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("storage: unknown table %q", e.Table)
}
