package tagstream

import (
	"bufio"
	"bytes"

	"github.com/benoitkugler/filterio/stream"
)

// maxStackDepth bounds how many ExecStream calls may be nested, mirror
// of userstream.maxNestLevel (kept as an independent constant here since
// this package must not import userstream, to keep the dependency
// direction the same as the teacher's own layering: lower-level
// plumbing packages never import the higher-level ones that use them).
const maxStackDepth = 32

// Stack lets a tag-stream reader suspend reading from its current
// source and switch to replaying a user-defined stream's recorded
// bytes, then resume exactly where it left off once the replayed
// stream runs out (spec.md §4.8 "Stream stack").
type Stack struct {
	frames []*bufio.Reader
}

// Push switches s onto data, remembering the reader s was previously
// using so Pop can restore it. It enforces the nesting limit with
// StreamNestingFull.
func (st *Stack) Push(s *Stream, data []byte) error {
	if len(st.frames) >= maxStackDepth {
		return stream.NewError(stream.StreamNestingFull, "stream nesting level is greater than %d", maxStackDepth)
	}
	st.frames = append(st.frames, s.r)
	s.r = bufio.NewReader(bytes.NewReader(data))
	return nil
}

// Pop restores the reader that was active before the most recent Push.
// It is a no-op if the stack is empty (EOF on the replayed stream is
// what normally drives this, not an explicit operator).
func (st *Stack) Pop(s *Stream) {
	n := len(st.frames)
	if n == 0 {
		return
	}
	s.r = st.frames[n-1]
	st.frames = st.frames[:n-1]
}

// Depth reports how many frames are currently pushed.
func (st *Stack) Depth() int { return len(st.frames) }
