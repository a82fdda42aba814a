package userstream

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/benoitkugler/filterio/stream"
)

// TestRecordAndReplay is scenario 7 of spec.md §8: BeginStream("foo"),
// ReadStream of 3 bytes, EndStream, then Exec("foo") replays exactly
// those 3 bytes.
func TestRecordAndReplay(t *testing.T) {
	c := NewCache()
	if err := c.BeginStream("foo"); err != nil {
		t.Fatal(err)
	}
	if err := c.ReadStream([]byte{0x41, 0x42, 0x43}); err != nil {
		t.Fatal(err)
	}
	if err := c.EndStream(); err != nil {
		t.Fatal(err)
	}

	var got []byte
	err := c.Exec("foo", func(r io.Reader) error {
		b, err := io.ReadAll(r)
		got = append(got, b...)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{0x41, 0x42, 0x43}) {
		t.Fatalf("got % x, want % x", got, []byte{0x41, 0x42, 0x43})
	}
}

func TestReadStreamAccumulatesAcrossCalls(t *testing.T) {
	c := NewCache()
	if err := c.BeginStream("multi"); err != nil {
		t.Fatal(err)
	}
	if err := c.ReadStream([]byte("ab")); err != nil {
		t.Fatal(err)
	}
	if err := c.ReadStream([]byte("cd")); err != nil {
		t.Fatal(err)
	}
	if err := c.EndStream(); err != nil {
		t.Fatal(err)
	}
	var got []byte
	if err := c.Exec("multi", func(r io.Reader) error {
		b, err := io.ReadAll(r)
		got = append(got, b...)
		return err
	}); err != nil {
		t.Fatal(err)
	}
	if string(got) != "abcd" {
		t.Fatalf("got %q, want %q", got, "abcd")
	}
}

func TestReadStreamOutsideBracketFails(t *testing.T) {
	c := NewCache()
	if err := c.ReadStream([]byte("x")); err == nil {
		t.Fatal("expected an error calling ReadStream outside a BeginStream/EndStream bracket")
	}
}

func TestEndStreamWithoutBeginFails(t *testing.T) {
	c := NewCache()
	if err := c.EndStream(); err == nil {
		t.Fatal("expected an error calling EndStream without a matching BeginStream")
	}
}

// TestBeginStreamRedefinitionReplacesPriorEntry matches the original's
// "redefinition just overwrites" behavior: a second BeginStream/EndStream
// under the same name discards the first recording entirely.
func TestBeginStreamRedefinitionReplacesPriorEntry(t *testing.T) {
	c := NewCache()
	if err := c.BeginStream("s"); err != nil {
		t.Fatal(err)
	}
	if err := c.ReadStream([]byte("old")); err != nil {
		t.Fatal(err)
	}
	if err := c.EndStream(); err != nil {
		t.Fatal(err)
	}

	if err := c.BeginStream("s"); err != nil {
		t.Fatal(err)
	}
	if err := c.ReadStream([]byte("new")); err != nil {
		t.Fatal(err)
	}
	if err := c.EndStream(); err != nil {
		t.Fatal(err)
	}

	var got []byte
	if err := c.Exec("s", func(r io.Reader) error {
		b, err := io.ReadAll(r)
		got = append(got, b...)
		return err
	}); err != nil {
		t.Fatal(err)
	}
	if string(got) != "new" {
		t.Fatalf("got %q, want %q (redefinition must fully replace the old recording)", got, "new")
	}
}

func TestExecUndefinedStream(t *testing.T) {
	c := NewCache()
	err := c.Exec("nope", func(io.Reader) error { return nil })
	se, ok := err.(*stream.Error)
	if !ok || se.Kind != stream.StreamUndefined {
		t.Fatalf("got %v, want StreamUndefined", err)
	}
}

// TestExecSelfRecursionRejected is property P4: a stream that, while
// executing, tries to Exec itself again is rejected with
// StreamCallingItself, and a normal (non-recursive) return afterward
// leaves is_running reset so the same stream can run again later.
func TestExecSelfRecursionRejected(t *testing.T) {
	c := NewCache()
	if err := c.BeginStream("rec"); err != nil {
		t.Fatal(err)
	}
	if err := c.ReadStream([]byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := c.EndStream(); err != nil {
		t.Fatal(err)
	}

	var innerErr error
	err := c.Exec("rec", func(io.Reader) error {
		innerErr = c.Exec("rec", func(io.Reader) error { return nil })
		return nil
	})
	if err != nil {
		t.Fatalf("outer Exec failed: %v", err)
	}
	se, ok := innerErr.(*stream.Error)
	if !ok || se.Kind != stream.StreamCallingItself {
		t.Fatalf("inner Exec = %v, want StreamCallingItself", innerErr)
	}

	// A later, non-nested Exec must succeed: is_running was reset after
	// the outer call returned normally.
	if err := c.Exec("rec", func(io.Reader) error { return nil }); err != nil {
		t.Fatalf("Exec after normal return should succeed, got %v", err)
	}
}

// TestExecNestingLimit drives 33 distinct streams into mutual nesting to
// exceed maxNestLevel (32), since direct self-recursion is rejected
// before the nesting counter is even consulted.
func TestExecNestingLimit(t *testing.T) {
	c := NewCache()
	names := make([]string, maxNestLevel+1)
	for i := range names {
		names[i] = fmt.Sprintf("n%d", i)
		if err := c.BeginStream(names[i]); err != nil {
			t.Fatal(err)
		}
		if err := c.ReadStream([]byte{byte(i)}); err != nil {
			t.Fatal(err)
		}
		if err := c.EndStream(); err != nil {
			t.Fatal(err)
		}
	}

	var run func(depth int) error
	var lastErr error
	run = func(depth int) error {
		if depth == len(names) {
			return nil
		}
		return c.Exec(names[depth], func(io.Reader) error {
			err := run(depth + 1)
			if err != nil {
				lastErr = err
			}
			return err
		})
	}
	err := run(0)
	se, ok := err.(*stream.Error)
	if !ok || se.Kind != stream.StreamNestingFull {
		t.Fatalf("got %v (lastErr=%v), want StreamNestingFull at nesting depth %d", err, lastErr, maxNestLevel)
	}
}

func TestBeginStreamWhileExecutingFails(t *testing.T) {
	c := NewCache()
	if err := c.BeginStream("s"); err != nil {
		t.Fatal(err)
	}
	if err := c.ReadStream([]byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := c.EndStream(); err != nil {
		t.Fatal(err)
	}

	var innerErr error
	err := c.Exec("s", func(io.Reader) error {
		innerErr = c.BeginStream("other")
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	se, ok := innerErr.(*stream.Error)
	if !ok || se.Kind != stream.StreamCallingItself {
		t.Fatalf("BeginStream while executing = %v, want StreamCallingItself", innerErr)
	}
}

// TestRemoveStreamUnknownIsSilent matches the fixed spec.md §4.5
// behavior: removing an unknown name never errors, but records a
// warning.
func TestRemoveStreamUnknownIsSilent(t *testing.T) {
	c := NewCache()
	if err := c.RemoveStream("ghost"); err != nil {
		t.Fatalf("RemoveStream on an unknown name must not error, got %v", err)
	}
	if len(c.Warnings) != 1 {
		t.Fatalf("expected exactly one warning, got %v", c.Warnings)
	}
}

// TestRemoveStreamRunningIsSilentAndKeepsEntry checks that removing a
// currently-running stream neither errors nor removes the entry, only
// warns.
func TestRemoveStreamRunningIsSilentAndKeepsEntry(t *testing.T) {
	c := NewCache()
	if err := c.BeginStream("live"); err != nil {
		t.Fatal(err)
	}
	if err := c.ReadStream([]byte("y")); err != nil {
		t.Fatal(err)
	}
	if err := c.EndStream(); err != nil {
		t.Fatal(err)
	}

	var removeErr error
	err := c.Exec("live", func(io.Reader) error {
		removeErr = c.RemoveStream("live")
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if removeErr != nil {
		t.Fatalf("RemoveStream on a running stream must not error, got %v", removeErr)
	}
	if !c.Has("live") {
		t.Fatal("RemoveStream must not remove an entry that was running at the time")
	}
}

func TestRemoveStreamThenExecIsUndefined(t *testing.T) {
	c := NewCache()
	if err := c.BeginStream("gone"); err != nil {
		t.Fatal(err)
	}
	if err := c.EndStream(); err != nil {
		t.Fatal(err)
	}
	if err := c.RemoveStream("gone"); err != nil {
		t.Fatal(err)
	}
	err := c.Exec("gone", func(io.Reader) error { return nil })
	se, ok := err.(*stream.Error)
	if !ok || se.Kind != stream.StreamUndefined {
		t.Fatalf("got %v, want StreamUndefined after removal", err)
	}
}

// TestReadStreamSpansMultipleBlocks records more than one blockSize's
// worth of bytes across several ReadStream calls of uneven length and
// checks that replay reproduces the exact byte sequence, exercising the
// block-list boundary (a block filling exactly, a block filling
// partway, and a ReadStream call whose bytes straddle two blocks).
func TestReadStreamSpansMultipleBlocks(t *testing.T) {
	c := NewCache()
	if err := c.BeginStream("big"); err != nil {
		t.Fatal(err)
	}
	var want []byte
	chunk := make([]byte, 777)
	for i := range chunk {
		chunk[i] = byte(i)
	}
	for i := 0; i < 5; i++ {
		if err := c.ReadStream(chunk); err != nil {
			t.Fatal(err)
		}
		want = append(want, chunk...)
	}
	if err := c.EndStream(); err != nil {
		t.Fatal(err)
	}
	if c.table[pjwHash("big")].total != len(want) {
		t.Fatalf("entry.total = %d, want %d", c.table[pjwHash("big")].total, len(want))
	}

	var got []byte
	if err := c.Exec("big", func(r io.Reader) error {
		b, err := io.ReadAll(r)
		got = append(got, b...)
		return err
	}); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("replayed %d bytes, want %d bytes matching the recording", len(got), len(want))
	}
}

func TestPJWHashIsDeterministicAndBucketed(t *testing.T) {
	for _, name := range []string{"", "a", "foo", "a much longer stream name than usual"} {
		h1 := pjwHash(name)
		h2 := pjwHash(name)
		if h1 != h2 {
			t.Fatalf("pjwHash(%q) not deterministic: %d != %d", name, h1, h2)
		}
		if h1 >= tableSize {
			t.Fatalf("pjwHash(%q) = %d, out of [0,%d) bucket range", name, h1, tableSize)
		}
	}
}
