package compiler

import "fmt"

// DefaultLabelBase is the first label id a generator hands out.
const DefaultLabelBase = 100

// LabelName is the assembly name of code label id.
func LabelName(id int) string {
	return fmt.Sprintf(".LL%d", id)
}

// Labels issues unique code label ids. Ids only grow and are never handed
// out twice. A Labels value belongs to one generator and is not safe for
// concurrent use.
type Labels struct {
	next   int
	issued []int
}

// NewLabels starts numbering at base. Id 0 means "no label" to the
// generator, so bases below 1 start at 1.
func NewLabels(base int) *Labels {
	if base < 1 {
		base = 1
	}
	return &Labels{next: base}
}

func (l *Labels) Next() int {
	id := l.next
	l.next++
	l.issued = append(l.issued, id)
	return id
}

// Issued returns every id handed out so far, in order.
func (l *Labels) Issued() []int {
	out := make([]int, len(l.issued))
	copy(out, l.issued)
	return out
}
