package search

import (
	"bufio"
	"strings"
)

// FlattenTables rewrites Markdown table rows ("| a | b |") into standalone
// paragraphs ("a b") and drops separator rows. Other lines are kept, and
// paragraph breaks are preserved. The result ends with a single newline.
func FlattenTables(md string) string {
	var b strings.Builder
	sc := bufio.NewScanner(strings.NewReader(md))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	blank := true // suppress a leading blank line
	para := func() {
		if !blank {
			b.WriteByte('\n')
			blank = true
		}
	}

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			para()
		case strings.HasPrefix(line, "|") && strings.HasSuffix(line, "|"):
			cells := tableCells(line)
			if len(cells) == 0 {
				continue
			}
			para()
			b.WriteString(strings.Join(cells, " "))
			b.WriteString("\n")
			blank = false
			para()
		default:
			b.WriteString(line)
			b.WriteByte('\n')
			blank = false
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// tableCells returns the non-empty cells of a row, or nil for a separator
// row such as "|---|:--:|".
func tableCells(line string) []string {
	cols := strings.Split(strings.Trim(line, "|"), "|")
	out := make([]string, 0, len(cols))
	sep := true
	for _, c := range cols {
		cell := strings.TrimSpace(c)
		if strings.Trim(cell, ":- ") != "" {
			sep = false
		}
		if cell != "" {
			out = append(out, cell)
		}
	}
	if sep {
		return nil
	}
	return out
}
