// Package history records observation vectors produced during an episode.
//
// A [History] owns a fixed column schema declared with a [Spec]. Records
// are appended once per step and cleared on reset; the schema survives
// resets. [Full] keeps every record in column-major storage so selecting
// columns never copies the others. [Empty] keeps the schema only.
package history

import (
	"fmt"

	"github.com/san-kum/gridgym/internal/dynamo"
)

type History interface {
	SetColumns(spec Spec)
	Columns() []string
	StructuredColumns() [][]string
	Reset()
	Append(record []float64) error
	Len() int
	Select(names ...string) (Frame, error)
}

// Frame is a set of named series. Series alias the history storage and
// must be treated as read-only.
type Frame struct {
	Names  []string
	Series [][]float64
}

func (f Frame) Len() int {
	if len(f.Series) == 0 {
		return 0
	}
	return len(f.Series[0])
}

type schema struct {
	spec  Spec
	names []string
	index map[string]int
}

func (s *schema) set(spec Spec) {
	s.spec = spec
	s.names = Flatten(spec)
	s.index = make(map[string]int, len(s.names))
	for i, n := range s.names {
		s.index[n] = i
	}
}

func (s *schema) Columns() []string { return s.names }

func (s *schema) StructuredColumns() [][]string { return Groups(s.spec) }

func (s *schema) check(record []float64) error {
	if len(record) != len(s.names) {
		return fmt.Errorf("%w: got %d values for %d columns", dynamo.ErrRecordLength, len(record), len(s.names))
	}
	return nil
}

func (s *schema) lookup(names []string) ([]int, error) {
	idx := make([]int, len(names))
	for i, n := range names {
		j, ok := s.index[n]
		if !ok {
			return nil, fmt.Errorf("%w: no column %q", dynamo.ErrUnknownVariable, n)
		}
		idx[i] = j
	}
	return idx, nil
}

type Full struct {
	schema
	cols [][]float64
	rows int
}

func NewFull() *Full { return &Full{} }

func (h *Full) SetColumns(spec Spec) {
	h.set(spec)
	h.Reset()
}

// Reset drops all records. Frames selected earlier keep their data.
func (h *Full) Reset() {
	h.cols = make([][]float64, len(h.names))
	h.rows = 0
}

func (h *Full) Append(record []float64) error {
	if err := h.check(record); err != nil {
		return err
	}
	for i, v := range record {
		h.cols[i] = append(h.cols[i], v)
	}
	h.rows++
	return nil
}

func (h *Full) Len() int { return h.rows }

func (h *Full) Select(names ...string) (Frame, error) {
	idx, err := h.lookup(names)
	if err != nil {
		return Frame{}, err
	}
	f := Frame{Names: append([]string(nil), names...), Series: make([][]float64, len(idx))}
	for i, j := range idx {
		f.Series[i] = h.cols[j][:h.rows:h.rows]
	}
	return f, nil
}

// Column returns the recorded values of one column.
func (h *Full) Column(name string) ([]float64, bool) {
	j, ok := h.index[name]
	if !ok {
		return nil, false
	}
	return h.cols[j][:h.rows:h.rows], true
}

// Row copies the i-th record.
func (h *Full) Row(i int) []float64 {
	if i < 0 || i >= h.rows {
		return nil
	}
	row := make([]float64, len(h.cols))
	for j := range h.cols {
		row[j] = h.cols[j][i]
	}
	return row
}

// Last copies the most recent record.
func (h *Full) Last() []float64 { return h.Row(h.rows - 1) }

// Empty validates records against the schema and discards them.
type Empty struct {
	schema
}

func NewEmpty() *Empty { return &Empty{} }

func (h *Empty) SetColumns(spec Spec) { h.set(spec) }

func (h *Empty) Reset() {}

func (h *Empty) Append(record []float64) error { return h.check(record) }

func (h *Empty) Len() int { return 0 }

func (h *Empty) Select(names ...string) (Frame, error) {
	if _, err := h.lookup(names); err != nil {
		return Frame{}, err
	}
	return Frame{Names: append([]string(nil), names...), Series: make([][]float64, len(names))}, nil
}

// New returns the history implementation registered under kind.
func New(kind string) (History, error) {
	switch kind {
	case "", "full":
		return NewFull(), nil
	case "empty", "none":
		return NewEmpty(), nil
	}
	return nil, fmt.Errorf("%w: unknown history %q", dynamo.ErrInvalidConfig, kind)
}
