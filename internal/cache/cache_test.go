package cache

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ziadkadry99/examrender/internal/texmath"
)

func TestMemory(t *testing.T) {
	m := NewMemory()
	if _, ok := m.Get("x", texmath.Inline); ok {
		t.Fatal("empty cache returned a hit")
	}
	m.Put("x", texmath.Inline, "<math>x</math>")
	if v, ok := m.Get("x", texmath.Inline); !ok || v != "<math>x</math>" {
		t.Errorf("got %q, %v", v, ok)
	}
	if _, ok := m.Get("x", texmath.Display); ok {
		t.Error("display mode must be a separate entry")
	}
	if m.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", m.Len())
	}
}

func TestSQLiteMemory(t *testing.T) {
	s, err := OpenMemory(nil)
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	defer s.Close()

	s.Put("a", texmath.Display, "one")
	s.Put("a", texmath.Display, "two")
	if v, ok := s.Get("a", texmath.Display); !ok || v != "two" {
		t.Errorf("got %q, %v", v, ok)
	}
	if _, ok := s.Get("a", texmath.Inline); ok {
		t.Error("unexpected hit for inline mode")
	}
	n, err := s.Len()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 row, got %d", n)
	}
}

func TestSQLitePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "fragments.db")

	s, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	s.Put(`\alpha`, texmath.Inline, "<math><mi>α</mi></math>")
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if v, ok := reopened.Get(`\alpha`, texmath.Inline); !ok || v != "<math><mi>α</mi></math>" {
		t.Errorf("got %q, %v", v, ok)
	}
}

func TestSQLiteConcurrentPuts(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "fragments.db"), nil)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer s.Close()

	var mode string
	if err := s.db.QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode: got %q, want wal", mode)
	}
	var timeout int
	if err := s.db.QueryRow(`PRAGMA busy_timeout`).Scan(&timeout); err != nil {
		t.Fatal(err)
	}
	if timeout != 5000 {
		t.Errorf("busy_timeout: got %d, want 5000", timeout)
	}

	const workers, each = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				s.Put(fmt.Sprintf("x_%d^%d", w, i), texmath.Inline, "<math/>")
			}
		}(w)
	}
	wg.Wait()

	n, err := s.Len()
	if err != nil {
		t.Fatal(err)
	}
	if n != workers*each {
		t.Errorf("expected %d rows, got %d", workers*each, n)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	s, err := OpenMemory(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.migrate(); err != nil {
		t.Fatalf("second migrate() error: %v", err)
	}
}

func TestCachedCompilerWithSQLite(t *testing.T) {
	s, err := OpenMemory(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	var _ texmath.Cache = s
	var _ texmath.Cache = NewMemory()

	c := texmath.Cached(texmath.New(texmath.WithBackend(stubBackend{})), s)
	c.Compile("z", texmath.Inline)
	if v, ok := s.Get("z", texmath.Inline); !ok || v != "<math>z</math>" {
		t.Errorf("expected compiled fragment stored, got %q, %v", v, ok)
	}
}

type stubBackend struct{}

func (stubBackend) Convert(tex string, mode texmath.Mode) (string, error) {
	return "<math>" + tex + "</math>", nil
}
