// Package history keeps a linear undo/redo log of image file transitions.
package history

import (
	"github.com/MeKo-Tech/pocrop/internal/geometry"
)

// Entry is one recorded transition from OldPath to NewPath.
type Entry interface {
	Paths() (oldPath, newPath string)
}

// ImageSwap records that the current image file changed.
type ImageSwap struct {
	OldPath string
	NewPath string
}

// Paths implements Entry.
func (e ImageSwap) Paths() (string, string) { return e.OldPath, e.NewPath }

// CanvasResize is an ImageSwap that also changed the canvas size.
type CanvasResize struct {
	OldPath   string
	NewPath   string
	OldCanvas geometry.Size
}

// Paths implements Entry.
func (e CanvasResize) Paths() (string, string) { return e.OldPath, e.NewPath }

// State describes what the caller must restore after Undo or Redo. Canvas
// is set only when undoing a CanvasResize.
type State struct {
	Path   string
	Canvas *geometry.Size
}

// ReleaseReason says why an entry left the history.
type ReleaseReason int

const (
	// Discarded entries were in the redo stack when a new entry was recorded.
	Discarded ReleaseReason = iota
	// Evicted entries fell off the bottom of a full history.
	Evicted
	// Cleared entries were removed by Clear.
	Cleared
)

func (r ReleaseReason) String() string {
	switch r {
	case Discarded:
		return "discarded"
	case Evicted:
		return "evicted"
	case Cleared:
		return "cleared"
	}
	return "unknown"
}

// ReleaseFunc is called once for each entry that is no longer reachable by
// undo or redo.
type ReleaseFunc func(e Entry, reason ReleaseReason)

// Option configures a History.
type Option func(*History)

// WithMaxDepth bounds the undo stack. Zero means unbounded.
func WithMaxDepth(n int) Option {
	return func(h *History) {
		if n > 0 {
			h.maxDepth = n
		}
	}
}

// WithRelease installs the release hook.
func WithRelease(fn ReleaseFunc) Option {
	return func(h *History) { h.release = fn }
}

// History is a two-stack undo/redo log. It is not safe for concurrent use.
type History struct {
	done     []Entry
	undone   []Entry
	maxDepth int
	release  ReleaseFunc
}

// New creates an empty history.
func New(opts ...Option) *History {
	h := &History{}
	for _, o := range opts {
		o(h)
	}
	return h
}

// RecordAndCommit pushes e and drops everything that could have been redone.
func (h *History) RecordAndCommit(e Entry) {
	for i := len(h.undone) - 1; i >= 0; i-- {
		h.releaseEntry(h.undone[i], Discarded)
	}
	h.undone = nil

	h.done = append(h.done, e)
	if h.maxDepth > 0 {
		for len(h.done) > h.maxDepth {
			oldest := h.done[0]
			h.done[0] = nil
			h.done = h.done[1:]
			h.releaseEntry(oldest, Evicted)
		}
	}
}

// Undo reverts the latest entry. ok is false when there is nothing to undo.
func (h *History) Undo() (State, bool) {
	if len(h.done) == 0 {
		return State{}, false
	}
	e := h.done[len(h.done)-1]
	h.done = h.done[:len(h.done)-1]
	h.undone = append(h.undone, e)

	oldPath, _ := e.Paths()
	st := State{Path: oldPath}
	if cr, ok := e.(CanvasResize); ok {
		size := cr.OldCanvas
		st.Canvas = &size
	}
	return st, true
}

// Redo re-applies the most recently undone entry.
func (h *History) Redo() (State, bool) {
	if len(h.undone) == 0 {
		return State{}, false
	}
	e := h.undone[len(h.undone)-1]
	h.undone = h.undone[:len(h.undone)-1]
	h.done = append(h.done, e)

	_, newPath := e.Paths()
	return State{Path: newPath}, true
}

// Clear empties both stacks, releasing every entry.
func (h *History) Clear() {
	for i := len(h.done) - 1; i >= 0; i-- {
		h.releaseEntry(h.done[i], Cleared)
	}
	for i := len(h.undone) - 1; i >= 0; i-- {
		h.releaseEntry(h.undone[i], Cleared)
	}
	h.done = nil
	h.undone = nil
}

// CanUndo reports whether Undo would do anything.
func (h *History) CanUndo() bool { return len(h.done) > 0 }

// CanRedo reports whether Redo would do anything.
func (h *History) CanRedo() bool { return len(h.undone) > 0 }

// Len returns the number of undoable entries.
func (h *History) Len() int { return len(h.done) }

// RedoLen returns the number of redoable entries.
func (h *History) RedoLen() int { return len(h.undone) }

func (h *History) releaseEntry(e Entry, reason ReleaseReason) {
	if h.release != nil {
		h.release(e, reason)
	}
}
