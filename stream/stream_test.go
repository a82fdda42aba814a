package stream

import (
	"bytes"
	"io"
	"math/rand"
	"testing"
)

func TestGetByteUngetByte(t *testing.T) {
	s := NewInputBytes([]byte("abc"))
	b, err := s.GetByte()
	if err != nil || b != 'a' {
		t.Fatalf("got (%q, %v), want ('a', nil)", b, err)
	}
	s.UngetByte(b)
	b2, err := s.GetByte()
	if err != nil || b2 != 'a' {
		t.Fatalf("after unget, got (%q, %v), want ('a', nil)", b2, err)
	}
	for _, want := range []byte("bc") {
		b, err := s.GetByte()
		if err != nil || b != want {
			t.Fatalf("got (%q, %v), want (%q, nil)", b, err, want)
		}
	}
	if _, err := s.GetByte(); err != io.EOF {
		t.Fatalf("expected io.EOF at end of stream, got %v", err)
	}
}

// TestEOFIsSticky checks invariant I3: once EOF has been observed,
// further reads keep reporting EOF without re-invoking Fill.
func TestEOFIsSticky(t *testing.T) {
	s := NewInputBytes(nil)
	for i := 0; i < 3; i++ {
		if _, err := s.GetByte(); err != io.EOF {
			t.Fatalf("call %d: got %v, want io.EOF", i, err)
		}
	}
	if s.State() != StateEOF {
		t.Fatalf("state = %v, want StateEOF", s.State())
	}
}

func TestPutByteFlushesOnFullBuffer(t *testing.T) {
	var buf bytes.Buffer
	s := NewOutputWriter(&buf)
	data := make([]byte, s.BufSize()*3+7)
	for i := range data {
		data[i] = byte(i)
	}
	if _, err := s.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(true); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), data) {
		t.Fatalf("round-tripped %d bytes, want %d", buf.Len(), len(data))
	}
}

// TestSequentialReadsDeliverEveryByte reads a byte-backed stream (whose
// Position is unsupported) in 97-byte chunks and checks that the bytes
// delivered add up to exactly the input length.
func TestSequentialReadsDeliverEveryByte(t *testing.T) {
	data := make([]byte, 5000)
	rand.Read(data)
	s := NewInputBytes(data)
	read := 0
	buf := make([]byte, 97)
	for {
		n, err := s.Read(buf)
		read += n
		if err != nil {
			break
		}
	}
	if read != len(data) {
		t.Fatalf("read %d bytes, want %d", read, len(data))
	}
}

func TestCloseImplicitDoesNotEmitTrailer(t *testing.T) {
	// A Null-flavored leaf output stream has no codec Close hook; an
	// implicit close must still flush buffered bytes without adding
	// anything extra (I4 only governs codecs that emit trailers, but a
	// raw leaf stream must never invent one either).
	var buf bytes.Buffer
	s := NewOutputWriter(&buf)
	_, _ = s.Write([]byte("hello"))
	if err := s.Close(false); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "hello" {
		t.Fatalf("got %q, want %q", buf.String(), "hello")
	}
}

func TestResetUnsupportedByDefault(t *testing.T) {
	s := NewInputBytes([]byte("x"))
	if err := s.Reset(); err != ErrUnsupported {
		t.Fatalf("got %v, want ErrUnsupported", err)
	}
	if _, err := s.Position(); err != ErrUnsupported {
		t.Fatalf("got %v, want ErrUnsupported", err)
	}
}

func TestDeferredErrorSurfacesOnNextFill(t *testing.T) {
	// A descriptor whose Fill delivers bytes once and defers an error
	// for the call after, mirroring ASCII85/ASCIIHex's discipline (P3).
	d := &Descriptor{
		Name:  "testDeferred",
		Flags: Readable,
		Fill: func(s *Stream) (int, error) {
			raw := s.RawBuffer()
			copy(raw[1:], "ok")
			s.DeferError(NewError(IOError, "boom"))
			return 2, nil
		},
	}
	in := NewInputBytes(nil)
	s, err := d.Open(Input, in, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := make([]byte, 2)
	n, err := s.Read(got)
	if err != nil || n != 2 || string(got) != "ok" {
		t.Fatalf("first Read = (%d, %v, %q), want (2, nil, \"ok\")", n, err, got)
	}
	_, err = s.Read(got)
	se, ok := err.(*Error)
	if !ok || se.Kind != IOError {
		t.Fatalf("second Read error = %v, want an IOError *Error", err)
	}
}

func TestCloseInvalidatesGeneration(t *testing.T) {
	under := NewInputBytes([]byte("xyz"))
	gen := under.Generation()
	under.Close(true)
	if under.Generation() == gen {
		t.Fatalf("generation unchanged after Close")
	}
}
