package utils

import (
	"strings"
	"testing"
)

func TestTableRows(t *testing.T) {
	table := NewTable(.25, .75)
	table.SetWidth(48)
	table.Header("NAME", "MESSAGE")
	table.Row("kube-bench", "ok")

	want := []string{
		"NAME        MESSAGE",
		"kube-bench  ok",
	}
	got := table.Lines()
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("unexpected table:\n%s", strings.Join(got, "\n"))
	}
}

func TestTableWrapsLongCells(t *testing.T) {
	const message = "Back-off restarting failed container kube-bench in pod"

	table := NewTable(.3, .7)
	table.SetWidth(30)
	table.Row("Warning", message)

	lines := table.Lines()
	if len(lines) < 2 {
		t.Fatalf("expected the message to wrap, got %q", lines)
	}

	var words []string
	for _, line := range lines {
		if runeLen(line) > 30 {
			t.Errorf("line %q exceeds the table width", line)
		}
		words = append(words, strings.Fields(line)...)
	}
	if got := strings.Join(words, " "); got != "Warning "+message {
		t.Errorf("wrapped content lost words: %q", got)
	}
}

func TestPadValueIgnoresEscapes(t *testing.T) {
	if got := padValue(GreenString("ok"), 4); runeLen(got) != 4 {
		t.Errorf("expected visible width 4, got %d", runeLen(got))
	}
}
