package usecases_test

import (
	"fmt"
	"testing"

	"github.com/samirrijal/patrolscan/internal/core/domain"
	"github.com/samirrijal/patrolscan/internal/core/usecases"
)

func messages(entries []domain.LogEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}

func TestLogBuffer_OldestFirst(t *testing.T) {
	buf := usecases.NewLogBuffer(5)
	for i := range 3 {
		buf.Append(domain.LogEntry{Message: fmt.Sprint(i), Severity: domain.SeverityInfo})
	}

	got := messages(buf.Entries())
	if fmt.Sprint(got) != "[0 1 2]" {
		t.Errorf("got %v", got)
	}
}

func TestLogBuffer_DropsOldestWhenFull(t *testing.T) {
	buf := usecases.NewLogBuffer(3)
	for i := range 7 {
		buf.Append(domain.LogEntry{Message: fmt.Sprint(i)})
	}

	got := messages(buf.Entries())
	if fmt.Sprint(got) != "[4 5 6]" {
		t.Errorf("got %v, want [4 5 6]", got)
	}
}

func TestLogBuffer_ExactlyFull(t *testing.T) {
	buf := usecases.NewLogBuffer(2)
	buf.Append(domain.LogEntry{Message: "a"})
	buf.Append(domain.LogEntry{Message: "b"})

	if got := messages(buf.Entries()); fmt.Sprint(got) != "[a b]" {
		t.Errorf("got %v", got)
	}
}

func TestLogBuffer_DefaultCapacity(t *testing.T) {
	buf := usecases.NewLogBuffer(0)
	for i := range usecases.DefaultLogCapacity + 10 {
		buf.Append(domain.LogEntry{Message: fmt.Sprint(i)})
	}

	got := buf.Entries()
	if len(got) != usecases.DefaultLogCapacity {
		t.Fatalf("expected %d entries, got %d", usecases.DefaultLogCapacity, len(got))
	}
	if got[0].Message != "10" {
		t.Errorf("oldest entry = %s, want 10", got[0].Message)
	}
}

func TestLogBuffer_EntriesIsCopy(t *testing.T) {
	buf := usecases.NewLogBuffer(2)
	buf.Append(domain.LogEntry{Message: "a"})

	got := buf.Entries()
	got[0].Message = "mutated"

	if buf.Entries()[0].Message != "a" {
		t.Error("buffer changed through returned slice")
	}
}
