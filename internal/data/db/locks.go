package db

import (
	"errors"
	"hash/fnv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// AdvisoryXactLock takes a Postgres transaction-scoped advisory lock keyed by
// namespace:key. The lock is released on commit or rollback. Other dialects
// have no advisory locks and rely on in-process serialization instead.
func AdvisoryXactLock(tx *gorm.DB, namespace, key string) error {
	if tx == nil || namespace == "" || key == "" {
		return nil
	}
	if tx.Dialector == nil || tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SELECT pg_advisory_xact_lock(?)", AdvisoryKey64(namespace, key)).Error
}

func AdvisoryKey64(namespace, key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(namespace))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}

// IsUniqueViolation reports whether err is a unique-constraint failure.
// An empty constraint matches any unique violation.
func IsUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	constraint = strings.TrimSpace(constraint)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if constraint == "" {
			return true
		}
		return strings.EqualFold(strings.TrimSpace(pgErr.ConstraintName), constraint)
	}

	// Wrapped errors that lose type info, and SQLite.
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "sqlstate 23505") || strings.Contains(msg, "unique constraint failed") {
		if constraint == "" {
			return true
		}
		return strings.Contains(msg, strings.ToLower(constraint))
	}
	return false
}
