package utils

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/acarl005/stripansi"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/werf/logboek"
	"github.com/werf/logboek/pkg/types"
)

const (
	defaultTableWidth = 140
	minTableWidth     = 60
)

// Table renders rows into fixed-width columns sized by ratio of the total
// width. Cells longer than their column wrap onto continuation lines.
type Table struct {
	width        int
	columnsRatio []float64
	buf          *bytes.Buffer
}

func NewTable(columnsRatio ...float64) Table {
	return Table{
		columnsRatio: columnsRatio,
		buf:          bytes.NewBuffer(nil),
	}
}

func (t *Table) SetWidth(width int) {
	t.width = width
}

func (t *Table) Header(columns ...interface{}) {
	t.apply(columns...)
}

func (t *Table) Row(columns ...interface{}) {
	if len(columns) != len(t.columnsRatio) {
		panic(fmt.Sprintf("row has %d columns, table has %d", len(columns), len(t.columnsRatio)))
	}
	t.apply(columns...)
}

func (t *Table) apply(columns ...interface{}) {
	widths := t.getColumnsContentWidth()

	rowsCount := 0
	content := make([][]string, len(columns))
	for i, field := range columns {
		content[i] = fitValue(field, widths[i])
		if len(content[i]) > rowsCount {
			rowsCount = len(content[i])
		}
	}

	for rowNumber := 0; rowNumber < rowsCount; rowNumber++ {
		var row []string
		for i, lines := range content {
			if rowNumber < len(lines) {
				row = append(row, lines[rowNumber])
			} else {
				row = append(row, padValue("", widths[i]))
			}
		}

		t.buf.WriteString(strings.TrimRight(strings.Join(row, ""), " "))
		t.buf.WriteString("\n")
	}
}

func fitValue(field interface{}, columnWidth int) []string {
	var lines []string

	columnWidthWithoutSpaces := columnWidth - 1
	value := fmt.Sprintf("%v", field)
	result := logboek.FitText(value, types.FitTextOptions{Width: columnWidthWithoutSpaces})

	for _, line := range strings.Split(strings.TrimSuffix(result, "\n"), "\n") {
		lines = append(lines, padValue(line, columnWidth))
	}

	return lines
}

func runeLen(s string) int {
	return len([]rune(stripansi.Strip(s)))
}

func padValue(s string, n int) string {
	rest := n - runeLen(s)
	if rest < 0 {
		return s
	}

	return s + strings.Repeat(" ", rest)
}

func (t *Table) getColumnsContentWidth() []int {
	w := t.getWidth()

	var result []int
	var sum int
	for _, ratio := range t.columnsRatio {
		columnWidth := int(float64(w) * ratio)
		result = append(result, columnWidth)
		sum += columnWidth
	}

	if len(result) > 0 && w-sum > 0 {
		result[len(result)-1] += w - sum
	}

	return result
}

func (t *Table) getWidth() int {
	if t.width != 0 {
		return t.width
	}

	tw := terminalWidth()
	switch {
	case tw == 0:
		return defaultTableWidth
	case tw < minTableWidth:
		return minTableWidth
	default:
		return tw
	}
}

func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !terminal.IsTerminal(fd) {
		return 0
	}

	w, _, err := terminal.GetSize(fd)
	if err != nil {
		return 0
	}

	return w
}

// Lines returns the rendered table without the trailing newline.
func (t *Table) Lines() []string {
	return strings.Split(strings.TrimSuffix(t.buf.String(), "\n"), "\n")
}
