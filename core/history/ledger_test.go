package history

import (
	"errors"
	"testing"
	"time"
)

func TestAppendMovesCursorToNewestTurn(t *testing.T) {
	ledger := NewLedger()
	if got := ledger.CurrentIndex(); got != -1 {
		t.Fatalf("expected empty ledger cursor -1, got %d", got)
	}

	for i := range 5 {
		index := ledger.Append(Turn{Query: "q"})
		if index != i {
			t.Fatalf("expected append to return %d, got %d", i, index)
		}
		if got := ledger.CurrentIndex(); got != ledger.Len()-1 {
			t.Fatalf("expected cursor %d after append, got %d", ledger.Len()-1, got)
		}
		// moving back must not stop the next append from resetting the cursor
		ledger.Previous()
	}
}

func TestSeekOutOfRangeKeepsCursor(t *testing.T) {
	ledger := NewLedger()
	ledger.Append(Turn{Query: "first"})
	ledger.Append(Turn{Query: "second"})

	for _, index := range []int{-2, -1, 2, 100} {
		if _, err := ledger.Seek(index); !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("expected ErrOutOfRange for %d, got %v", index, err)
		}
		if got := ledger.CurrentIndex(); got != 1 {
			t.Fatalf("expected cursor to stay at 1 after seeking %d, got %d", index, got)
		}
	}

	turn, err := ledger.Seek(0)
	if err != nil {
		t.Fatalf("expected seek to succeed, got %v", err)
	}
	if turn.Query != "first" || ledger.CurrentIndex() != 0 {
		t.Fatalf("expected seek to land on first turn, got %q at %d", turn.Query, ledger.CurrentIndex())
	}
}

func TestPreviousAndNextStayInBounds(t *testing.T) {
	ledger := NewLedger()
	if ledger.Previous() || ledger.Next() {
		t.Fatalf("expected no movement on empty ledger")
	}

	ledger.Append(Turn{Query: "a"})
	ledger.Append(Turn{Query: "b"})
	ledger.Append(Turn{Query: "c"})

	if ledger.Next() {
		t.Fatalf("expected next at newest turn to report false")
	}
	if !ledger.Previous() || !ledger.Previous() {
		t.Fatalf("expected two steps back to succeed")
	}
	if ledger.Previous() {
		t.Fatalf("expected previous at index 0 to report false")
	}
	if got := ledger.CurrentIndex(); got != 0 {
		t.Fatalf("expected cursor 0, got %d", got)
	}
	if !ledger.Next() {
		t.Fatalf("expected next to move forward")
	}
	current, ok := ledger.Current()
	if !ok || current.Query != "b" {
		t.Fatalf("expected current turn b, got %q (%v)", current.Query, ok)
	}
}

func TestReturnedTurnsAreCopies(t *testing.T) {
	ledger := NewLedger()
	original := Turn{Query: "weather", Screen: ScreenPayload{Format: "html", Data: []byte("<p>sun</p>")}, Timestamp: time.Now()}
	ledger.Append(original)

	original.Screen.Data[0] = 'X'
	stored, err := ledger.Get(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(stored.Screen.Data) != "<p>sun</p>" {
		t.Fatalf("expected ledger to keep its own copy, got %q", stored.Screen.Data)
	}

	stored.Screen.Data[0] = 'Y'
	again, _ := ledger.Get(0)
	if string(again.Screen.Data) != "<p>sun</p>" {
		t.Fatalf("expected callers to receive copies, got %q", again.Screen.Data)
	}
}

func TestQueryRecall(t *testing.T) {
	ledger := NewLedger()
	ledger.Append(Turn{Query: "one"})
	ledger.Append(Turn{Query: "two"})
	ledger.SetDraft("thr")

	if query, ok := ledger.RecallPrevious(); !ok || query != "two" {
		t.Fatalf("expected two, got %q (%v)", query, ok)
	}
	if query, ok := ledger.RecallPrevious(); !ok || query != "one" {
		t.Fatalf("expected one, got %q (%v)", query, ok)
	}
	if _, ok := ledger.RecallPrevious(); ok {
		t.Fatalf("expected no query before the oldest")
	}
	if query, ok := ledger.RecallNext(); !ok || query != "two" {
		t.Fatalf("expected two, got %q (%v)", query, ok)
	}
	if query, ok := ledger.RecallNext(); !ok || query != "thr" {
		t.Fatalf("expected draft, got %q (%v)", query, ok)
	}
	if _, ok := ledger.RecallNext(); ok {
		t.Fatalf("expected nothing past the draft")
	}
	if got := ledger.CurrentIndex(); got != 1 {
		t.Fatalf("expected recall to leave display cursor alone, got %d", got)
	}
}
