package userstream

import (
	"io"

	"github.com/benoitkugler/filterio/stream"
)

// BeginStream starts recording a new user-defined stream under name.
// It fails with StreamCallingItself if a stream is currently executing
// (ExecStream never allows a nested BeginStream, matching
// user_stream_being_executed > 0 in the original), and silently
// replaces any existing stream of the same name, matching the
// original's "redefinition just overwrites" behavior.
func (c *Cache) BeginStream(name string) error {
	if c.nestLevel > 0 {
		return stream.NewError(stream.StreamCallingItself, "cannot define stream %q while a stream is executing", name)
	}
	if c.beingDefined != nil {
		return stream.NewError(stream.StreamCallingItself, "stream %q is already being defined", c.beingDefined.name)
	}
	bucket, found, prev := c.find(name)
	e := &entry{name: name}
	if found != nil {
		// Replace in place: unlink the old entry, keep the bucket chain
		// otherwise untouched.
		if prev == nil {
			c.table[bucket] = found.next
		} else {
			prev.next = found.next
		}
	}
	e.next = c.table[bucket]
	c.table[bucket] = e
	c.beingDefined = e
	return nil
}

// ReadStream appends b to the stream currently being defined. It is an
// error to call it outside a BeginStream/EndStream bracket.
func (c *Cache) ReadStream(b []byte) error {
	if c.beingDefined == nil {
		return stream.NewError(stream.IllegalDataLength, "ReadStream outside a BeginStream/EndStream bracket")
	}
	c.beingDefined.append(b)
	return nil
}

// EndStream finishes recording the stream started by BeginStream.
func (c *Cache) EndStream() error {
	if c.beingDefined == nil {
		return stream.NewError(stream.IllegalDataLength, "EndStream without a matching BeginStream")
	}
	c.beingDefined = nil
	return nil
}

// RemoveStream deletes a stream from the cache. Per spec.md §4.5 this
// never fails: an unknown name is removed silently (matching the
// original's "Undefined stream not removed" warning, which still
// returns success to the caller), and a currently-running stream is
// left in place with a warning recorded instead of being torn out from
// under its own replay.
func (c *Cache) RemoveStream(name string) error {
	bucket, found, prev := c.find(name)
	if found == nil {
		c.warn("RemoveStream: stream %q is not defined", name)
		return nil
	}
	if found.isRunning {
		c.warn("RemoveStream: cannot remove stream %q while it is running", name)
		return nil
	}
	if prev == nil {
		c.table[bucket] = found.next
	} else {
		prev.next = found.next
	}
	return nil
}

// Exec marks name as running and hands a reader over its recorded bytes
// to run, returning run's result. The reader walks the entry's block
// chain directly (see dataBlock) rather than flattening it into a
// single slice, so replaying a long recorded stream never copies its
// recorded bytes. It enforces the 32-deep nesting limit
// (StreamNestingFull) and rejects direct or indirect recursion into a
// stream already on the execution stack (StreamCallingItself), matching
// is_running in the original cache entry.
func (c *Cache) Exec(name string, run func(r io.Reader) error) error {
	_, found, _ := c.find(name)
	if found == nil {
		return stream.NewError(stream.StreamUndefined, "stream %q is not defined", name)
	}
	if found.isRunning {
		return stream.NewError(stream.StreamCallingItself, "stream %q is already executing", name)
	}
	if c.nestLevel >= maxNestLevel {
		return stream.NewError(stream.StreamNestingFull, "stream nesting level is greater than %d", maxNestLevel)
	}

	found.isRunning = true
	c.nestLevel++
	defer func() {
		c.nestLevel--
		found.isRunning = false
	}()

	return run(found.reader())
}

// Has reports whether name is currently defined in the cache.
func (c *Cache) Has(name string) bool {
	_, found, _ := c.find(name)
	return found != nil
}
