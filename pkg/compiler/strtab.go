package compiler

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"rvgen/pkg/ast"
)

// DataSection writes the string-constant part of the data section. It is
// called once, right after the data section header.
type DataSection interface {
	WriteDataSection(w io.Writer) error
}

// StringLabel is the data label of string-table entry index. String
// constants load their address through this label.
func StringLabel(index int) string {
	return fmt.Sprintf(".SC%d", index)
}

// StringTable holds the string literals of a program, addressed by index.
// Indexes come from the front end and may be sparse.
type StringTable struct {
	entries map[int]string
	next    int
}

func NewStringTable() *StringTable {
	return &StringTable{entries: make(map[int]string)}
}

// Add stores text after the highest index in use and returns its index.
func (t *StringTable) Add(text string) int {
	i := t.next
	t.entries[i] = text
	t.next = i + 1
	return i
}

// Put stores text at a fixed index. Storing the same text twice is fine;
// conflicting text is an error.
func (t *StringTable) Put(index int, text string) error {
	if index < 0 {
		return fmt.Errorf("string index %d is negative", index)
	}
	if old, ok := t.entries[index]; ok && old != text {
		return fmt.Errorf("string index %d already holds %q, cannot store %q", index, old, text)
	}
	t.entries[index] = text
	if index >= t.next {
		t.next = index + 1
	}
	return nil
}

// Lookup returns the text at index.
func (t *StringTable) Lookup(index int) (string, bool) {
	s, ok := t.entries[index]
	return s, ok
}

// Len is the number of entries stored.
func (t *StringTable) Len() int { return len(t.entries) }

// WriteDataSection emits one .string directive per stored entry, in index
// order. Unused indexes get no label.
func (t *StringTable) WriteDataSection(w io.Writer) error {
	for _, i := range slices.Sorted(maps.Keys(t.entries)) {
		if _, err := fmt.Fprintf(w, "%s:\t.string\t%s\n", StringLabel(i), quoteAsm(t.entries[i])); err != nil {
			return err
		}
	}
	return nil
}

// StringsFromTree builds the table from the String constants of root,
// keeping the indexes the front end assigned.
func StringsFromTree(root ast.Node) (*StringTable, error) {
	t := NewStringTable()
	var err error
	ast.Walk(root, func(n ast.Node) bool {
		c, ok := n.(*ast.Constant)
		if !ok || c.Type != ast.String || err != nil {
			return true
		}
		err = t.Put(c.Value, c.Text)
		return true
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// quoteAsm renders text as an assembler string literal.
func quoteAsm(text string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range text {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case 0:
			sb.WriteString(`\000`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
