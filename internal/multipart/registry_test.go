package multipart

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestRegistryCapacity(t *testing.T) {
	r := NewRegistry(2)

	if err := r.Create("one"); err != nil {
		t.Fatalf("Create(one): %v", err)
	}
	if err := r.Create("two"); err != nil {
		t.Fatalf("Create(two): %v", err)
	}
	if err := r.Create("three"); !errors.Is(err, ErrCapacity) {
		t.Fatalf("Create at capacity = %v, want ErrCapacity", err)
	}

	// Removing one frees a slot.
	if _, ok := r.Remove("one"); !ok {
		t.Fatal("Remove(one) reported absent")
	}
	if err := r.Create("three"); err != nil {
		t.Fatalf("Create after Remove: %v", err)
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
}

func TestRegistryRemoveAbsent(t *testing.T) {
	r := NewRegistry(1)
	if _, ok := r.Remove("missing"); ok {
		t.Fatal("Remove reported an upload that was never created")
	}
	if r.Get("missing") != nil {
		t.Fatal("Get returned an upload that was never created")
	}
}

func TestAssembleSortsByPartNumber(t *testing.T) {
	r := NewRegistry(1)
	if err := r.Create("id"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	u := r.Get("id")
	u.PutPart(2, []byte("lo"))
	u.PutPart(1, []byte("hel"))

	if got := string(u.Assemble()); got != "hello" {
		t.Errorf("Assemble = %q, want %q", got, "hello")
	}
}

func TestPutPartOverwrites(t *testing.T) {
	r := NewRegistry(1)
	if err := r.Create("id"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	u := r.Get("id")
	u.PutPart(1, []byte("old"))
	u.PutPart(1, []byte("new"))

	if got := string(u.Assemble()); got != "new" {
		t.Errorf("Assemble = %q, want %q", got, "new")
	}
}

func TestConcurrentPutPart(t *testing.T) {
	r := NewRegistry(1)
	if err := r.Create("id"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	u := r.Get("id")

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			u.PutPart(int8(n), []byte(fmt.Sprintf("%02d", n)))
		}(i)
	}
	wg.Wait()

	got := string(u.Assemble())
	want := ""
	for i := 1; i <= 20; i++ {
		want += fmt.Sprintf("%02d", i)
	}
	if got != want {
		t.Errorf("Assemble = %q, want %q", got, want)
	}
}
