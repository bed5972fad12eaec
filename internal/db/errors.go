package db

import "errors"

// ErrNoRowsAffected is returned by conditional UPDATE statements (status
// transitions, lease claims) whose WHERE clause matched zero rows, meaning
// the precondition the caller assumed no longer holds.
var ErrNoRowsAffected = errors.New("db: no rows affected")
