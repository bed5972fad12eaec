package queue

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsDuplicatePendingMatchesUniqueViolation(t *testing.T) {
	err := &pgconn.PgError{Code: "23505"}
	if !IsDuplicatePending(err) {
		t.Fatal("expected unique violation to be recognized as a duplicate pending insert")
	}
}

func TestIsDuplicatePendingRejectsOtherCodes(t *testing.T) {
	err := &pgconn.PgError{Code: "23503"}
	if IsDuplicatePending(err) {
		t.Fatal("expected a foreign-key violation not to be treated as a duplicate")
	}
}

func TestIsDuplicatePendingRejectsNonPgError(t *testing.T) {
	if IsDuplicatePending(errors.New("boom")) {
		t.Fatal("expected a plain error not to match")
	}
}
