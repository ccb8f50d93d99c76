package logging

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

var recs = []Record{
	{Scope: "c1/run/0", Metric: "goal", Values: []float64{1.0 / 3}},
	{Scope: "c1/run/0", Metric: "solution", Values: []float64{-420.9687, 1e-300, 6.02214076e23}},
	{Scope: "c1/aggregate", Metric: "convergence", Values: []float64{math.Pi, math.E, 0, -1.5e-12}},
	{Scope: "c1/aggregate", Metric: "empty"},
	{Scope: "c1/run/1", Metric: "goal", Values: []float64{math.Inf(1)}},
}

func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	s := NewTextSink(&buf)
	for _, r := range recs {
		require.NoError(t, s.Write(r))
	}
	require.NoError(t, s.Close())

	got, err := ReadAll(&buf)
	require.NoError(t, err)
	assert.Equal(t, recs, got)
}

func TestRoundTripPrecision(t *testing.T) {
	var buf bytes.Buffer
	s := NewTextSink(&buf, Precision(5))
	require.NoError(t, s.Write(recs[1]))
	require.NoError(t, s.Close())

	got, err := ReadAll(&buf)
	require.NoError(t, err)
	require.Len(t, got, 1)
	for i, v := range recs[1].Values {
		want, err := strconv.ParseFloat(strconv.FormatFloat(v, 'g', 5, 64), 64)
		require.NoError(t, err)
		assert.Equal(t, want, got[0].Values[i])
	}
}

func TestParseRecord(t *testing.T) {
	r, err := ParseRecord("a/b\tgoal\t1 2.5 -3e-7\n")
	require.NoError(t, err)
	assert.Equal(t, Record{Scope: "a/b", Metric: "goal", Values: []float64{1, 2.5, -3e-7}}, r)

	_, err = ParseRecord("no tabs here")
	assert.Error(t, err)
	_, err = ParseRecord("a\tb\t1 x")
	assert.Error(t, err)
}

func TestInvalidRecord(t *testing.T) {
	s := NewTextSink(&bytes.Buffer{})
	err := s.Write(Record{Scope: "a\tb", Metric: "goal"})
	assert.ErrorIs(t, err, ErrSinkFailure)

	for _, r := range []Record{{}, {Scope: "a"}, {Metric: "goal", Values: []float64{1}}} {
		if err := s.Write(r); !errors.Is(err, ErrSinkFailure) {
			t.Errorf("[FAIL] write %+v: want sink failure, got %v", r, err)
		}
	}
}

func TestReadAllBlankLines(t *testing.T) {
	got, err := ReadAll(bytes.NewBufferString("\na\tb\t1\n\r\n\t\t\n"))
	require.NoError(t, err)
	assert.Equal(t, []Record{{Scope: "a", Metric: "b", Values: []float64{1}}, {}}, got)
}

type failWriter struct {
	closed bool
}

var errDiskFull = errors.New("disk full")

func (w *failWriter) Write(p []byte) (int, error) { return 0, errDiskFull }

func (w *failWriter) Close() error {
	w.closed = true
	return nil
}

func TestSinkFailure(t *testing.T) {
	w := &failWriter{}
	s := NewTextSink(w)
	require.NoError(t, s.Write(recs[0]), "small writes are buffered")

	err := s.Close()
	assert.ErrorIs(t, err, ErrSinkFailure)
	assert.ErrorIs(t, err, errDiskFull)
	assert.True(t, w.closed)
}

func TestWithClosesOnError(t *testing.T) {
	w := &failWriter{}
	errStop := errors.New("stop")

	err := With(func() (*TextSink, error) { return NewTextSink(w), nil }, func(s *TextSink) error {
		if err := s.Write(recs[0]); err != nil {
			return err
		}
		return errStop
	})
	assert.ErrorIs(t, err, errStop)
	assert.ErrorIs(t, err, ErrSinkFailure, "flush failure on close must be reported")
	assert.True(t, w.closed)
}

func TestWithOpenFailure(t *testing.T) {
	called := false
	err := With(func() (*TextSink, error) {
		return Create(filepath.Join(t.TempDir(), "missing", "out.txt"))
	}, func(s *TextSink) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrSinkFailure)
	assert.False(t, called)
}

func TestCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	err := With(func() (*TextSink, error) { return Create(path) }, func(s *TextSink) error {
		for _, r := range recs {
			if err := s.Write(r); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	got, err := ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, recs, got)
}

func TestSQLSink(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	err = With(func() (*SQLSink, error) { return NewSQLSink(db) }, func(s *SQLSink) error {
		for _, r := range recs[:3] {
			if err := s.Write(r); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	got, err := ReadSQL(context.Background(), db, "")
	require.NoError(t, err)
	assert.Equal(t, recs[:3], got)

	got, err = ReadSQL(context.Background(), db, "c1/aggregate")
	require.NoError(t, err)
	assert.Equal(t, recs[2:3], got)
}

func TestSQLSinkNaN(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	s, err := NewSQLSink(db)
	require.NoError(t, err)
	require.NoError(t, s.Write(Record{Scope: "c1/run/2", Metric: "convergence", Values: []float64{1, math.NaN(), -2}}))
	assert.ErrorIs(t, s.Write(Record{Metric: "goal", Values: []float64{1}}), ErrSinkFailure)

	got, err := ReadSQL(context.Background(), db, "c1/run/2")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[0].Values, 3)
	assert.Equal(t, 1.0, got[0].Values[0])
	if !math.IsNaN(got[0].Values[1]) {
		t.Errorf("[FAIL] value 1: got %v, want NaN", got[0].Values[1])
	}
	assert.Equal(t, -2.0, got[0].Values[2])
}
