package stream

// Open wires a new Stream onto underlying using this Descriptor,
// mirroring the FilterDescriptor "init" call of spec.md §4.2: it either
// consumes an operand stream (here, always underlying) and a parameter
// dictionary, and returns a ready-to-use Stream positioned at
// StateOpen.
//
// dir selects which half of the codec to use: Input wires a decoder
// (requires Descriptor.Flags&Readable), Output wires an encoder
// (requires Flags&Writable). Requesting the unsupported direction is a
// TypeCheck error, matching the "direction-appropriate default ...
// fails with IOERROR" rule, reported here as a stream.Error so callers
// can distinguish it from a genuine I/O fault.
func (d *Descriptor) Open(dir Direction, underlying *Stream, params map[string]int) (*Stream, error) {
	if dir == Input && !d.readable() {
		return nil, NewError(TypeCheck, "filter %s has no decoder", d.Name)
	}
	if dir == Output && !d.writable() {
		return nil, NewError(TypeCheck, "filter %s has no encoder", d.Name)
	}

	s := &Stream{
		dir:    dir,
		state:  StateInit,
		vtable: d,
		gen:    nextGen(),
	}
	if underlying != nil {
		s.underlying = underlying
		s.underlyingGen = underlying.gen
	}

	if d.Init != nil {
		if err := d.Init(s, underlying, params); err != nil {
			return nil, err
		}
	}
	if s.buf == nil {
		// Codecs that don't need a custom buffer size get the default.
		const size = 1024
		s.buf = make([]byte, size+1)
		s.bufSize = size
	}
	if dir == Input {
		s.ptr, s.count = 1, 0
	} else {
		s.ptr, s.count = 0, s.bufSize
	}
	s.state = StateOpen
	return s, nil
}

// AllocateBuffer is the helper InitFuncs call to size a Stream's buffer.
// extra reserves additional bytes beyond the single push-back byte
// every Stream already carries; every codec in this module passes 0.
func (s *Stream) AllocateBuffer(size, extra int) {
	s.buf = make([]byte, size+1+extra)
	s.bufSize = size
}
