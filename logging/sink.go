package logging

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

// Sink receives records.  Close flushes pending output; a sink must not be
// used after Close.
type Sink interface {
	Write(r Record) error
	Close() error
}

type TextOption func(*TextSink)

// Precision sets the number of significant digits written for each value.
// The default, -1, writes the shortest lossless representation.
func Precision(prec int) TextOption {
	return func(s *TextSink) { s.prec = prec }
}

// TextSink writes one line per record to a buffered writer.
type TextSink struct {
	w    *bufio.Writer
	c    io.Closer
	prec int
}

// NewTextSink writes records to w.  If w is an io.Closer, it is closed by
// Close after flushing.
func NewTextSink(w io.Writer, opts ...TextOption) *TextSink {
	s := &TextSink{w: bufio.NewWriter(w), prec: -1}
	if c, ok := w.(io.Closer); ok {
		s.c = c
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens (truncating) the file at path as a text sink.
func Create(path string, opts ...TextOption) (*TextSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSinkFailure, err)
	}
	return NewTextSink(f, opts...), nil
}

func (s *TextSink) Write(r Record) error {
	if err := r.check(); err != nil {
		return fmt.Errorf("%w: %w", ErrSinkFailure, err)
	}
	if _, err := s.w.WriteString(r.Format(s.prec) + "\n"); err != nil {
		return fmt.Errorf("%w: %w", ErrSinkFailure, err)
	}
	return nil
}

func (s *TextSink) Close() error {
	err := s.w.Flush()
	if s.c != nil {
		err = errors.Join(err, s.c.Close())
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSinkFailure, err)
	}
	return nil
}

// With opens a sink, passes it to fn and closes it on every path.  The
// close error is joined with the error of fn.
func With[S Sink](open func() (S, error), fn func(S) error) (err error) {
	s, err := open()
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, s.Close())
	}()
	return fn(s)
}
