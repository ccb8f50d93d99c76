package logging

import (
	"context"
	"database/sql"
	"fmt"
	"math"
)

// TblRecords is the name of the sql database table records are written to.
// Every value of a record is one row, numbered by idx.  SQLite stores NaN as
// NULL; ReadSQL turns it back into NaN.
const TblRecords = "records"

// SQLSink writes records to TblRecords.  Close does not close the database.
type SQLSink struct {
	db *sql.DB
}

func NewSQLSink(db *sql.DB) (*SQLSink, error) {
	s := "CREATE TABLE IF NOT EXISTS " + TblRecords + " (scope TEXT, metric TEXT, idx INTEGER, value REAL);"
	if _, err := db.Exec(s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSinkFailure, err)
	}
	return &SQLSink{db: db}, nil
}

func (s *SQLSink) Write(r Record) error {
	if err := r.check(); err != nil {
		return fmt.Errorf("%w: %w", ErrSinkFailure, err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSinkFailure, err)
	}
	defer tx.Rollback()

	q := "INSERT INTO " + TblRecords + " (scope,metric,idx,value) VALUES (?,?,?,?);"
	for i, v := range r.Values {
		if _, err := tx.Exec(q, r.Scope, r.Metric, i, v); err != nil {
			return fmt.Errorf("%w: %v/%v: %w", ErrSinkFailure, r.Scope, r.Metric, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrSinkFailure, err)
	}
	return nil
}

func (s *SQLSink) Close() error { return nil }

// ReadSQL loads every record written under scope.  An empty scope reads all
// records.
func ReadSQL(ctx context.Context, db *sql.DB, scope string) ([]Record, error) {
	q := "SELECT scope, metric, idx, value FROM " + TblRecords
	args := []any{}
	if scope != "" {
		q += " WHERE scope = ?"
		args = append(args, scope)
	}
	q += " ORDER BY rowid;"

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var sc, metric string
		var idx int
		var v sql.NullFloat64
		if err := rows.Scan(&sc, &metric, &idx, &v); err != nil {
			return nil, err
		}
		if !v.Valid {
			v.Float64 = math.NaN()
		}
		if idx == 0 || len(recs) == 0 || recs[len(recs)-1].Scope != sc || recs[len(recs)-1].Metric != metric {
			recs = append(recs, Record{Scope: sc, Metric: metric})
		}
		last := &recs[len(recs)-1]
		last.Values = append(last.Values, v.Float64)
	}
	return recs, rows.Err()
}
