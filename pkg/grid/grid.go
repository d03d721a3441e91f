// Package grid maps linear text-buffer indexes to cell coordinates.
package grid

// GetGridCoords returns the column and row of cell index in a grid that is
// cols cells wide.
func GetGridCoords(index, cols int) (x, y int) {
	if cols <= 0 {
		return 0, 0
	}
	return index % cols, index / cols
}

// Wrap lays text out on a grid cols wide, breaking at newlines and at the
// right edge, and returns the lines. Tabs advance to the next multiple of
// four.
func Wrap(text string, cols int) []string {
	if cols <= 0 {
		return nil
	}
	var lines []string
	line := make([]rune, 0, cols)
	index := 0
	// wrapped is set right after a line broke at the edge, so that a
	// newline there does not add an empty line.
	wrapped := false
	flush := func() {
		lines = append(lines, string(line))
		line = line[:0]
		index = 0
	}
	for _, r := range text {
		if r == '\n' {
			if !wrapped {
				flush()
			}
			wrapped = false
			continue
		}
		wrapped = false
		switch r {
		case '\r':
			continue
		case '\t':
			for {
				line = append(line, ' ')
				index++
				if index%4 == 0 || index == cols {
					break
				}
			}
		default:
			line = append(line, r)
			index++
		}
		if x, _ := GetGridCoords(index, cols); x == 0 {
			flush()
			wrapped = true
		}
	}
	if len(line) > 0 {
		lines = append(lines, string(line))
	}
	return lines
}
