package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestAdvisoryKey64Stable(t *testing.T) {
	a := AdvisoryKey64("item_bank", "block-v1:X+Y+Z+type@itembank+block@ib")
	b := AdvisoryKey64("item_bank", "block-v1:X+Y+Z+type@itembank+block@ib")
	c := AdvisoryKey64("selection", "block-v1:X+Y+Z+type@itembank+block@ib")
	if a != b {
		t.Fatalf("AdvisoryKey64 not stable: %d vs %d", a, b)
	}
	if a == c {
		t.Fatalf("AdvisoryKey64 namespaces collide: %d", a)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "idx_learner_selection_user_bank"}
	if !IsUniqueViolation(fmt.Errorf("insert: %w", pgErr), "") {
		t.Fatalf("wrapped pg error should match")
	}
	if !IsUniqueViolation(pgErr, "idx_learner_selection_user_bank") {
		t.Fatalf("constraint name should match")
	}
	if IsUniqueViolation(pgErr, "other_constraint") {
		t.Fatalf("different constraint should not match")
	}
	if !IsUniqueViolation(errors.New("UNIQUE constraint failed: learner_selection.user_id, learner_selection.item_bank_key"), "") {
		t.Fatalf("sqlite message should match")
	}
	if IsUniqueViolation(errors.New("connection reset"), "") {
		t.Fatalf("unrelated error should not match")
	}
	if IsUniqueViolation(nil, "") {
		t.Fatalf("nil should not match")
	}
}
