// Package storetest exercises any store.ScenarioStore against the shared
// repository contract.
package storetest

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/signalsfoundry/scenario-resimulator/internal/store"
)

// Run checks put/get/delete semantics on a fresh store from newStore.
func Run(t *testing.T, newStore func(t *testing.T) store.ScenarioStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Get(ctx, "absent"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("Get(absent) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("PutThenGet", func(t *testing.T) {
		s := newStore(t)
		want := []byte("{UTF-8}\nx = 1\n~~|\n")
		if err := s.Put(ctx, "My_Scenario", want); err != nil {
			t.Fatalf("Put: %v", err)
		}
		got, err := s.Get(ctx, "My_Scenario")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get = %q, want %q", got, want)
		}
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, "k", []byte("first")); err != nil {
			t.Fatalf("Put first: %v", err)
		}
		if err := s.Put(ctx, "k", []byte("second")); err != nil {
			t.Fatalf("Put second: %v", err)
		}
		got, err := s.Get(ctx, "k")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(got) != "second" {
			t.Fatalf("Get = %q, want second", got)
		}
	})

	t.Run("KeysAreCaseSensitiveAndDistinct", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, "a", []byte("A")); err != nil {
			t.Fatalf("Put a: %v", err)
		}
		if err := s.Put(ctx, "b", []byte("B")); err != nil {
			t.Fatalf("Put b: %v", err)
		}
		got, err := s.Get(ctx, "a")
		if err != nil || string(got) != "A" {
			t.Fatalf("Get(a) = %q,%v, want A,nil", got, err)
		}
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, "gone", []byte("x")); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if err := s.Delete(ctx, "gone"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if err := s.Delete(ctx, "gone"); err != nil {
			t.Fatalf("second Delete: %v", err)
		}
		if err := s.Delete(ctx, "never-there"); err != nil {
			t.Fatalf("Delete(never-there): %v", err)
		}
		if _, err := s.Get(ctx, "gone"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("Get after Delete error = %v, want ErrNotFound", err)
		}
	})

	t.Run("RejectsEmptyKey", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, "", []byte("x")); !errors.Is(err, store.ErrInvalidKey) {
			t.Fatalf("Put(\"\") error = %v, want ErrInvalidKey", err)
		}
	})

	t.Run("StoredCopyIsIndependent", func(t *testing.T) {
		s := newStore(t)
		buf := []byte("original")
		if err := s.Put(ctx, "copy", buf); err != nil {
			t.Fatalf("Put: %v", err)
		}
		buf[0] = 'X'
		got, err := s.Get(ctx, "copy")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(got) != "original" {
			t.Fatalf("Get = %q, want original", got)
		}
	})
}
