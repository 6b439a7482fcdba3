// Package codeinput captures a fixed-length numeric code typed into
// independent cells, one digit per cell.
package codeinput

import "strings"

// Length is the number of cells in a Buffer.
const Length = 6

// Buffer holds one digit per cell and tracks which cell has focus.
// It is not safe for concurrent use; owners serialize access.
type Buffer struct {
	cells [Length]string
	focus int
}

func New() *Buffer { return &Buffer{} }

// SetDigit stores value in cell index. Only a single ASCII digit or the empty
// string is accepted; anything else (including an out-of-range index) is
// ignored without error. Accepting a digit moves focus to the next cell.
func (b *Buffer) SetDigit(index int, value string) {
	if index < 0 || index >= Length {
		return
	}
	if value != "" && !isDigit(value) {
		return
	}
	b.cells[index] = value
	if value != "" && index < Length-1 {
		b.focus = index + 1
	}
}

// HandleBackspace moves focus back one cell when cell index is already empty.
// The previous cell keeps its content.
func (b *Buffer) HandleBackspace(index int) {
	if index <= 0 || index >= Length {
		return
	}
	if b.cells[index] == "" {
		b.focus = index - 1
	}
}

// Assembled returns the six digits and true only when every cell is filled.
func (b *Buffer) Assembled() (string, bool) {
	var sb strings.Builder
	sb.Grow(Length)
	for _, c := range b.cells {
		if c == "" {
			return "", false
		}
		sb.WriteString(c)
	}
	return sb.String(), true
}

// Fill feeds code through SetDigit starting at cell 0.
func (b *Buffer) Fill(code string) {
	b.Clear()
	i := 0
	for _, r := range code {
		if i >= Length {
			return
		}
		s := string(r)
		if !isDigit(s) {
			continue
		}
		b.SetDigit(i, s)
		i++
	}
}

func (b *Buffer) Clear() {
	b.cells = [Length]string{}
	b.focus = 0
}

func (b *Buffer) Focus() int { return b.focus }

// Cells returns a copy of the cell values.
func (b *Buffer) Cells() []string {
	out := make([]string, Length)
	copy(out, b.cells[:])
	return out
}

func isDigit(s string) bool {
	return len(s) == 1 && s[0] >= '0' && s[0] <= '9'
}
