package main

import (
	"strings"
	"testing"
)

func TestRenderTableColoursStatusColumn(t *testing.T) {
	columns := []column{col("ID"), statusCol("Status"), numCol("Tries")}
	rows := [][]string{{"a1", "error", "3"}, {"b2", "never run", "0"}}

	plain := renderTable(columns, rows, false, "2 job(s)")
	if strings.Contains(plain, "\x1b[") {
		t.Fatalf("unexpected escape codes without colour: %q", plain)
	}
	for _, want := range []string{"STATUS", "error", "never run", "2 job(s)"} {
		if !strings.Contains(plain, want) {
			t.Fatalf("expected %q in table:\n%s", want, plain)
		}
	}

	colored := renderTable(columns, rows, true, "")
	if !strings.Contains(colored, ansiRed+"error"+ansiReset) {
		t.Fatalf("expected red error status:\n%q", colored)
	}
	if strings.Contains(colored, ansiRed+"never run") {
		t.Fatalf("non-status text should stay plain:\n%q", colored)
	}
	if renderTable(nil, rows, false, "") != "" {
		t.Fatal("expected empty output without columns")
	}
}
