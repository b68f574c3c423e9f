package progress

import (
	"bytes"
	"strings"
	"testing"
)

func TestLineReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, true)
	r.Start(2)
	r.Update(1, "a.md ok")
	r.Update(2, "b.md failed")
	r.Finish()

	want := "Exporting 2 files\n[1/2] a.md ok\n[2/2] b.md failed\nExport complete\n"
	if buf.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestTerminalReporterWritesToWriter(t *testing.T) {
	t.Setenv("CI", "")
	t.Setenv("GITHUB_ACTIONS", "")
	var buf bytes.Buffer
	r := NewReporter(&buf, false)
	if _, ok := r.(*TerminalReporter); !ok {
		t.Fatalf("expected terminal reporter, got %T", r)
	}
	r.Start(3)
	r.Update(1, "a.md")
	r.Finish()
	if !strings.Contains(buf.String(), "a.md") {
		t.Errorf("bar not written: %q", buf.String())
	}
}

func TestCISelectsLineReporter(t *testing.T) {
	t.Setenv("CI", "true")
	if _, ok := NewReporter(&bytes.Buffer{}, false).(*LineReporter); !ok {
		t.Error("expected line reporter in CI")
	}
}
