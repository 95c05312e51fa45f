package credstore

import (
	"bytes"
	"testing"
)

func TestSaveLoadPurge(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	blob, err := store.Load("clinic-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if blob != nil {
		t.Fatalf("expected empty blob for unknown tenant, got %q", blob)
	}

	if err := store.Save("clinic-1", []byte(`{"step":1}`)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	// Incremental saves during pairing overwrite the previous blob.
	if err := store.Save("clinic-1", []byte(`{"step":2}`)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	blob, err = store.Load("clinic-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !bytes.Equal(blob, []byte(`{"step":2}`)) {
		t.Fatalf("unexpected blob: %q", blob)
	}

	if err := store.Purge("clinic-1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	blob, err = store.Load("clinic-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if blob != nil {
		t.Fatalf("expected empty blob after purge, got %q", blob)
	}
}

func TestListSkipsEmptyNamespaces(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := store.Save("clinic-a", []byte("x")); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := store.Dir("clinic-empty"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	tenants, err := store.List()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(tenants) != 1 || tenants[0] != "clinic-a" {
		t.Fatalf("unexpected tenants: %v", tenants)
	}
}

func TestSanitizeTenantID(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for _, bad := range []string{"", "  ", "../escape", "a/b", `a\b`} {
		if err := store.Save(bad, []byte("x")); err == nil {
			t.Fatalf("expected error for tenant id %q", bad)
		}
	}
}
