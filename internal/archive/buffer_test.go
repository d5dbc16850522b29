package archive

import (
	"fmt"
	"testing"
)

func rec(typ string) Record {
	return Record{Feed: "test", Type: typ}
}

func TestBuffer_FIFO(t *testing.T) {
	buf := NewBuffer(100)

	for i := 0; i < 5; i++ {
		if !buf.Push(rec(fmt.Sprint(i))) {
			t.Fatalf("Push(%d) returned false", i)
		}
	}

	got := buf.Drain(0)
	if len(got) != 5 {
		t.Fatalf("Drain returned %d records, want 5", len(got))
	}
	for i, r := range got {
		if r.Type != fmt.Sprint(i) {
			t.Errorf("record %d type = %s", i, r.Type)
		}
	}
	if buf.Len() != 0 {
		t.Errorf("Len() = %d, want 0", buf.Len())
	}
}

func TestBuffer_GrowsToLimit(t *testing.T) {
	buf := NewBuffer(1000)

	for i := 0; i < 500; i++ {
		buf.Push(rec(fmt.Sprint(i)))
	}

	stats := buf.Stats()
	if stats.Len != 500 || stats.Cap < 500 || stats.Cap > 1000 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Dropped != 0 {
		t.Errorf("Dropped = %d, want 0", stats.Dropped)
	}

	got := buf.Drain(0)
	for i, r := range got {
		if r.Type != fmt.Sprint(i) {
			t.Fatalf("record %d type = %s, order lost across growth", i, r.Type)
		}
	}
}

func TestBuffer_EvictsOldestWhenFull(t *testing.T) {
	buf := NewBuffer(3)

	for i := 0; i < 5; i++ {
		buf.Push(rec(fmt.Sprint(i)))
	}

	got := buf.Drain(0)
	want := []string{"2", "3", "4"}
	if len(got) != len(want) {
		t.Fatalf("Drain returned %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Type != want[i] {
			t.Errorf("record %d type = %s, want %s", i, got[i].Type, want[i])
		}
	}
	if buf.Stats().Dropped != 2 {
		t.Errorf("Dropped = %d, want 2", buf.Stats().Dropped)
	}
}

func TestBuffer_DrainPartialAndWrap(t *testing.T) {
	buf := NewBuffer(4)

	buf.Push(rec("a"))
	buf.Push(rec("b"))
	buf.Push(rec("c"))

	if got := buf.Drain(2); len(got) != 2 || got[0].Type != "a" || got[1].Type != "b" {
		t.Fatalf("Drain(2) = %+v", got)
	}

	buf.Push(rec("d"))
	buf.Push(rec("e"))
	buf.Push(rec("f"))

	got := buf.Drain(0)
	want := []string{"c", "d", "e", "f"}
	for i := range want {
		if got[i].Type != want[i] {
			t.Errorf("record %d type = %s, want %s", i, got[i].Type, want[i])
		}
	}
}

func TestBuffer_Close(t *testing.T) {
	buf := NewBuffer(10)
	buf.Push(rec("a"))
	buf.Close()

	if buf.Push(rec("b")) {
		t.Error("Push should return false after Close")
	}
	if got := buf.Drain(0); len(got) != 1 {
		t.Errorf("Drain after Close returned %d records, want 1", len(got))
	}
	if got := buf.Drain(0); got != nil {
		t.Errorf("Drain on empty buffer = %v, want nil", got)
	}
}

func TestBuffer_ReadySignal(t *testing.T) {
	buf := NewBuffer(10)

	select {
	case <-buf.Ready():
		t.Fatal("Ready signalled before any push")
	default:
	}

	buf.Push(rec("a"))
	buf.Push(rec("b"))

	select {
	case <-buf.Ready():
	default:
		t.Fatal("Ready not signalled after push")
	}
}

func TestNewBuffer_MinLimit(t *testing.T) {
	buf := NewBuffer(0)
	if buf.Stats().Limit != 1 {
		t.Errorf("Limit = %d, want 1", buf.Stats().Limit)
	}
}
