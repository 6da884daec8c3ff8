package storage

import (
	"database/sql"
	"errors"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

func toNullFloat64(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func fromNullFloat64(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func toExport(d *exportData) *Export {
	return &Export{
		ID:               d.ID,
		SessionID:        d.SessionID,
		CreatedAt:        d.CreatedAt,
		Kind:             d.Kind,
		Path:             d.Path,
		Rows:             d.Rows,
		CollectionLength: fromNullFloat64(d.CollectionLength),
		Size:             d.Size,
	}
}
