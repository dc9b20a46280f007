package store_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"caseflow/internal/domain"
	"caseflow/internal/store"
)

func TestReadMissingFile(t *testing.T) {
	s := store.New(t.TempDir(), "engine.py")
	if _, err := s.Read("intake"); !errors.Is(err, domain.ErrFileNotFound) {
		t.Fatalf("expected file not found, got %v", err)
	}
}

func TestWriteIsAtomic(t *testing.T) {
	root := t.TempDir()
	s := store.New(root, "engine.py")
	if err := s.Create("intake", []byte("one\n")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Write("intake", []byte("two\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := s.Read("intake")
	if err != nil || string(got) != "two\n" {
		t.Fatalf("read: %q %v", got, err)
	}
	entries, err := os.ReadDir(filepath.Join(root, "intake"))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "engine.py" {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestCreateRefusesExisting(t *testing.T) {
	s := store.New(t.TempDir(), "engine.go")
	if err := s.Create("intake", []byte("package rules\n")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create("intake", []byte("package rules\n")); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
}

func TestAppIDValidation(t *testing.T) {
	s := store.New(t.TempDir(), "engine.py")
	for _, id := range []string{"", "..", "../etc", "a/b", ".caseflow"} {
		if err := s.Write(id, []byte("x")); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("%q: expected invalid argument, got %v", id, err)
		}
	}
}

func TestList(t *testing.T) {
	root := t.TempDir()
	s := store.New(root, "engine.py")
	for _, id := range []string{"zeta", "alpha"} {
		if err := s.Create(id, []byte("pass\n")); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, ".caseflow"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	ids, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff([]string{"alpha", "zeta"}, ids); diff != "" {
		t.Fatalf("ids (-want +got):\n%s", diff)
	}

	missing := store.New(filepath.Join(root, "nope"), "engine.py")
	ids, err = missing.List()
	if err != nil || len(ids) != 0 {
		t.Fatalf("missing root: %v %v", ids, err)
	}
}

func TestLockSerialises(t *testing.T) {
	s := store.New(t.TempDir(), "engine.py")
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.Lock("intake")
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Fatalf("expected 50, got %d", counter)
	}
}

func TestRemove(t *testing.T) {
	root := t.TempDir()
	s := store.New(root, "engine.py")
	if err := s.Create("intake", []byte("one\n")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Remove("intake"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if s.Exists("intake") {
		t.Fatal("source still present")
	}
	if _, err := os.Stat(filepath.Join(root, "intake")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("app directory left behind: %v", err)
	}
	if err := s.Remove("intake"); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}
