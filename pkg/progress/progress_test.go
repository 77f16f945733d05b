package progress

import (
	"bytes"
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// exerciseStore checks the contract every Store implementation shares.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got, err := s.LoadResumeIndex(ctx); err != nil || got != 0 {
		t.Fatalf("LoadResumeIndex on empty store = %d, %v; want 0, nil", got, err)
	}

	for _, v := range []int{1, 2, 7, 0, 3} {
		if err := s.SaveResumeIndex(ctx, v); err != nil {
			t.Fatalf("SaveResumeIndex(%d): %v", v, err)
		}
		got, err := s.LoadResumeIndex(ctx)
		if err != nil {
			t.Fatalf("LoadResumeIndex: %v", err)
		}
		if got != v {
			t.Errorf("read after write = %d, want %d", got, v)
		}
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got, _ := s.LoadResumeIndex(ctx); got != 0 {
		t.Errorf("after Clear = %d, want 0", got)
	}
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestSQLite(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "progress.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestOpenSQLiteLogsPathOnce(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	path := filepath.Join(t.TempDir(), "tour.db")
	s, err := OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()

	if n := strings.Count(buf.String(), path); n != 1 {
		t.Errorf("path logged %d times, want 1:\n%s", n, buf.String())
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "progress.db")

	s, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := s.SaveResumeIndex(ctx, 4); err != nil {
		t.Fatalf("SaveResumeIndex: %v", err)
	}
	s.Close()

	s, err = OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if got, err := s.LoadResumeIndex(ctx); err != nil || got != 4 {
		t.Errorf("after reopen = %d, %v; want 4, nil", got, err)
	}
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("TOUR_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TOUR_TEST_DATABASE_URL not set")
	}
	p, err := OpenPostgres(context.Background(), dsn)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	defer p.Close()
	exerciseStore(t, p)
}
