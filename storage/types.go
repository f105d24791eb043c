package storage

import (
	"database/sql"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested row does not exist.
	ErrNotFound = errors.New("storage: record not found")
)

type scanner interface {
	Scan(dest ...any) error
}

func nullBytes(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func int64OrZero(ni sql.NullInt64) int64 {
	if !ni.Valid {
		return 0
	}
	return ni.Int64
}

func nowUnixMilli() int64 {
	return time.Now().UnixMilli()
}
