package db

import (
	"context"
	"testing"

	"github.com/hpungsan/promptkeep/internal/config"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := Open(t.TempDir(), config.DefaultConfig())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestGet_Missing(t *testing.T) {
	b := newTestBackend(t)

	v, found, err := b.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found || v != nil {
		t.Errorf("Get() = %q, %v; want nil, false", v, found)
	}
}

func TestSetManyAndGet(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	err := b.SetMany(ctx, map[string][]byte{
		"a": []byte(`[1]`),
		"b": []byte(`"x"`),
	})
	if err != nil {
		t.Fatalf("SetMany() error = %v", err)
	}

	v, found, err := b.Get(ctx, "a")
	if err != nil || !found {
		t.Fatalf("Get(a) = %v, %v", found, err)
	}
	if string(v) != `[1]` {
		t.Errorf("Get(a) = %s, want [1]", v)
	}

	// overwrite
	if err := b.SetMany(ctx, map[string][]byte{"a": []byte(`[2]`)}); err != nil {
		t.Fatalf("SetMany() error = %v", err)
	}
	v, _, _ = b.Get(ctx, "a")
	if string(v) != `[2]` {
		t.Errorf("Get(a) after overwrite = %s, want [2]", v)
	}
}

func TestSetMany_CancelledContextWritesNothing(t *testing.T) {
	b := newTestBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := b.SetMany(ctx, map[string][]byte{"a": []byte(`1`)}); err == nil {
		t.Fatal("SetMany() error = nil, want error")
	}

	_, found, err := b.Get(context.Background(), "a")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Error("value written despite cancelled context")
	}
}

func TestRemove(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	if err := b.SetMany(ctx, map[string][]byte{"a": []byte(`1`)}); err != nil {
		t.Fatalf("SetMany() error = %v", err)
	}
	if err := b.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, found, _ := b.Get(ctx, "a"); found {
		t.Error("key still present after Remove")
	}
	if err := b.Remove(ctx, "a"); err != nil {
		t.Errorf("Remove() of missing key error = %v", err)
	}
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b1, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := b1.SetMany(ctx, map[string][]byte{"k": []byte(`"v"`)}); err != nil {
		t.Fatalf("SetMany() error = %v", err)
	}
	b1.Close()

	b2, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer b2.Close()

	v, found, err := b2.Get(ctx, "k")
	if err != nil || !found || string(v) != `"v"` {
		t.Errorf("Get(k) = %s, %v, %v", v, found, err)
	}
}
