package reconcile

import (
	"context"
	"os"
	"testing"

	"github.com/input-output-hk/cardano-txindexer/internal/store"
)

func TestUpdateBlockIndexWalksBackToHead(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "txindex-reconcile-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	s, err := store.New(&store.Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	// Seed a single-block chain: genesis is head.
	seed, err := s.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := seed.UpsertBlockLink("genesis", nil); err != nil {
		t.Fatalf("seed UpsertBlockLink() error = %v", err)
	}
	if err := seed.Commit(); err != nil {
		t.Fatalf("seed Commit() error = %v", err)
	}

	// chain: genesis <- b1 <- b2 <- b3 (b3 is the new tip)
	prevOf := map[string]string{"b3": "b2", "b2": "b1", "b1": "genesis"}
	getPrevious := func(ctx context.Context, hash string) (string, error) {
		prev, ok := prevOf[hash]
		if !ok {
			t.Fatalf("unexpected getPrevious(%s)", hash)
		}
		return prev, nil
	}

	txn, err := s.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := UpdateBlockIndex(context.Background(), txn, "b3", getPrevious); err != nil {
		t.Fatalf("UpdateBlockIndex() error = %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	head, ok, err := s.HeadOfChain()
	if err != nil || !ok {
		t.Fatalf("HeadOfChain() = (%s, %v, %v)", head, ok, err)
	}
	if head != "b3" {
		t.Errorf("HeadOfChain() = %s, want b3", head)
	}

	// Walking forward from genesis should reach b3.
	walk, err := s.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	defer walk.Rollback()

	cursor := "genesis"
	var visited []string
	for {
		visited = append(visited, cursor)
		next, err := walk.NextOf(cursor)
		if err != nil {
			t.Fatalf("NextOf(%s) error = %v", cursor, err)
		}
		if next == nil {
			break
		}
		cursor = *next
	}

	want := []string{"genesis", "b1", "b2", "b3"}
	if len(visited) != len(want) {
		t.Fatalf("forward walk = %v, want %v", visited, want)
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Errorf("forward walk[%d] = %s, want %s", i, visited[i], want[i])
		}
	}
}

func TestUpdateBlockIndexRerunIsNoOp(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "txindex-reconcile-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	s, err := store.New(&store.Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	seed, err := s.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := seed.UpsertBlockLink("h0", nil); err != nil {
		t.Fatalf("seed UpsertBlockLink() error = %v", err)
	}
	if err := seed.Commit(); err != nil {
		t.Fatalf("seed Commit() error = %v", err)
	}

	prevOf := map[string]string{"h2": "h1", "h1": "h0"}
	var fetches int
	getPrevious := func(ctx context.Context, hash string) (string, error) {
		fetches++
		return prevOf[hash], nil
	}

	for i := 0; i < 2; i++ {
		txn, err := s.Begin()
		if err != nil {
			t.Fatalf("Begin() error = %v", err)
		}
		if err := UpdateBlockIndex(context.Background(), txn, "h2", getPrevious); err != nil {
			t.Fatalf("UpdateBlockIndex() run %d error = %v", i, err)
		}
		if err := txn.Commit(); err != nil {
			t.Fatalf("Commit() run %d error = %v", i, err)
		}
	}

	// The second run sees h2 already at the head and never walks upstream.
	if fetches != 2 {
		t.Errorf("getPrevious called %d times, want 2 (second run should not fetch)", fetches)
	}

	check, err := s.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	defer check.Rollback()

	for hash, wantNext := range map[string]string{"h0": "h1", "h1": "h2"} {
		next, err := check.NextOf(hash)
		if err != nil {
			t.Fatalf("NextOf(%s) error = %v", hash, err)
		}
		if next == nil || *next != wantNext {
			t.Errorf("NextOf(%s) = %v, want %s", hash, next, wantNext)
		}
	}
	next, err := check.NextOf("h2")
	if err != nil {
		t.Fatalf("NextOf(h2) error = %v", err)
	}
	if next != nil {
		t.Errorf("NextOf(h2) = %v, want nil (chain head)", *next)
	}
}
