package archive

import "fmt"

// SchemaError reports a header that exists but cannot be interpreted:
// malformed JSON, missing required fields, or a major version this
// build does not understand. It routes to the recovery arbiter's
// unloadable-header decision.
type SchemaError struct {
	Path   string
	Reason string
	Err    error
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("archive header %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("archive header %s: %s", e.Path, e.Reason)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// ConsistencyError reports disagreement between a loaded header and
// the data file it describes, typically a byte size mismatch after an
// interrupted run. It routes to the arbiter's missized-data decision.
type ConsistencyError struct {
	Path     string
	Expected int64
	Actual   int64
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("archive data %s: size %d does not match recorded size %d",
		e.Path, e.Actual, e.Expected)
}
