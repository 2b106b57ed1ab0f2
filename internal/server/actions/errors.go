package actions

import "fmt"

// MutationError reports that the editing service rejected or could not
// perform a write. The message comes from the remote error.
type MutationError struct {
	Message string
}

func (e *MutationError) Error() string {
	return "mutation failed: " + e.Message
}

// QueryError reports that the query service could not be reached or
// returned an error.
type QueryError struct {
	Message string
}

func (e *QueryError) Error() string {
	return "query failed: " + e.Message
}

// RollbackError is the most severe failure: the source-removal step of a
// move failed AND the compensating removal of the just-created claim failed
// too, leaving a duplicate claim that needs manual cleanup.
type RollbackError struct {
	EntityID      string
	Cause         error
	RollbackCause error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollback failed, duplicate claim left on %s needs manual cleanup: remove failed (%v), rollback failed (%v)",
		e.EntityID, e.Cause, e.RollbackCause)
}

func (e *RollbackError) Unwrap() error { return e.Cause }
