// Package logging writes optimization results as records to text or SQL
// sinks in a form that can be parsed back without loss.
package logging

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrSinkFailure wraps every error raised while writing to or closing a
// sink.
var ErrSinkFailure = errors.New("sink failure")

// Record is one named metric of a run or an aggregate.  Scope identifies
// what the record describes, e.g. "<collection>/run/3".  Scope and Metric
// must be non-empty and may not contain tabs or newlines.
type Record struct {
	Scope  string
	Metric string
	Values []float64
}

// Format renders r as a single line without the trailing newline: scope,
// metric and space separated values, separated by tabs.  prec is passed to
// strconv.FormatFloat; -1 gives the shortest representation that parses
// back to the identical value.
func (r Record) Format(prec int) string {
	var b strings.Builder
	b.WriteString(r.Scope)
	b.WriteByte('\t')
	b.WriteString(r.Metric)
	b.WriteByte('\t')
	for i, v := range r.Values {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', prec, 64))
	}
	return b.String()
}

func (r Record) String() string { return r.Format(-1) }

func (r Record) check() error {
	if r.Scope == "" || r.Metric == "" {
		return fmt.Errorf("record %q/%q: scope and metric must not be empty", r.Scope, r.Metric)
	}
	if strings.ContainsAny(r.Scope, "\t\n") || strings.ContainsAny(r.Metric, "\t\n") {
		return fmt.Errorf("record %q/%q: scope and metric must not contain tabs or newlines", r.Scope, r.Metric)
	}
	return nil
}

// ParseRecord parses a line produced by Record.Format.
func ParseRecord(line string) (Record, error) {
	fields := strings.SplitN(strings.TrimRight(line, "\r\n"), "\t", 3)
	if len(fields) != 3 {
		return Record{}, fmt.Errorf("malformed record %q: want 3 tab separated fields, got %v", line, len(fields))
	}

	r := Record{Scope: fields[0], Metric: fields[1]}
	for _, s := range strings.Fields(fields[2]) {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Record{}, fmt.Errorf("malformed record %q: %w", line, err)
		}
		r.Values = append(r.Values, v)
	}
	return r, nil
}

// ReadAll parses every line of r, skipping blank lines.
func ReadAll(r io.Reader) ([]Record, error) {
	var recs []Record
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for s.Scan() {
		if strings.TrimRight(s.Text(), "\r") == "" {
			continue
		}
		rec, err := ParseRecord(s.Text())
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
	return recs, s.Err()
}
