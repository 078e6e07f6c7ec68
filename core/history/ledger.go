package history

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jinzhu/copier"
)

var ErrOutOfRange = errors.New("history index out of range")

// Ledger is an append-only log of completed turns with a cursor marking the
// turn currently on display. A cursor of -1 means nothing from history is
// shown yet.
//
// Next to the display cursor the ledger keeps a recall cursor over past
// queries, used to bring earlier queries back into the input field. The two
// move independently.
type Ledger struct {
	mu     sync.RWMutex
	turns  []Turn
	cursor int

	recallHead int
	draft      string
}

func NewLedger() *Ledger {
	return &Ledger{cursor: -1}
}

// Append stores a copy of the turn and moves the cursor to it. It returns
// the index of the new turn.
func (l *Ledger) Append(turn Turn) int {
	stored := cloneTurn(turn)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.turns = append(l.turns, stored)
	l.cursor = len(l.turns) - 1
	l.recallHead = len(l.turns)
	return l.cursor
}

// Seek moves the cursor to index and returns the turn stored there.
func (l *Ledger) Seek(index int) (Turn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if index < 0 || index >= len(l.turns) {
		return Turn{}, fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, index, len(l.turns))
	}

	l.cursor = index
	return cloneTurn(l.turns[index]), nil
}

// Previous moves the cursor one turn back. It reports false, leaving the
// cursor untouched, when there is nothing before it.
func (l *Ledger) Previous() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cursor <= 0 {
		return false
	}
	l.cursor--
	return true
}

// Next moves the cursor one turn forward. It reports false, leaving the
// cursor untouched, when the cursor already points at the newest turn.
func (l *Ledger) Next() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cursor >= len(l.turns)-1 {
		return false
	}
	l.cursor++
	return true
}

func (l *Ledger) Get(index int) (Turn, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if index < 0 || index >= len(l.turns) {
		return Turn{}, fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, index, len(l.turns))
	}
	return cloneTurn(l.turns[index]), nil
}

// Current returns the turn under the cursor, false if the cursor is unset.
func (l *Ledger) Current() (Turn, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.cursor < 0 {
		return Turn{}, false
	}
	return cloneTurn(l.turns[l.cursor]), true
}

func (l *Ledger) CurrentIndex() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cursor
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// Turns returns a copy of every stored turn, oldest first.
func (l *Ledger) Turns() []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()

	turns := make([]Turn, 0, len(l.turns))
	for _, turn := range l.turns {
		turns = append(turns, cloneTurn(turn))
	}
	return turns
}

// SetDraft records what the user is currently typing and resets the recall
// cursor past the newest query.
func (l *Ledger) SetDraft(draft string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.draft = draft
	l.recallHead = len(l.turns)
}

// RecallPrevious returns the query before the recall cursor.
func (l *Ledger) RecallPrevious() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.recallHead <= 0 {
		return "", false
	}
	l.recallHead--
	return l.turns[l.recallHead].Query, true
}

// RecallNext returns the query after the recall cursor. Moving past the
// newest query returns the draft.
func (l *Ledger) RecallNext() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.recallHead >= len(l.turns) {
		return "", false
	}
	l.recallHead++
	if l.recallHead == len(l.turns) {
		return l.draft, true
	}
	return l.turns[l.recallHead].Query, true
}

func cloneTurn(turn Turn) Turn {
	var clone Turn
	if err := copier.CopyWithOption(&clone, &turn, copier.Option{DeepCopy: true}); err != nil {
		logger.Warn("failed to deep copy turn, falling back to shallow copy", "error", err)
		clone = turn
		clone.Screen.Data = append([]byte(nil), turn.Screen.Data...)
	}
	// copier walks exported fields only
	clone.Timestamp = turn.Timestamp
	return clone
}
