package filters

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/benoitkugler/filterio/stream"
)

func encodeWithDecriptor(t *testing.T, d *stream.Descriptor, raw []byte, params map[string]int) []byte {
	t.Helper()
	var buf bytes.Buffer
	sink := stream.NewOutputWriter(&buf)
	s, err := d.Open(stream.Output, sink, params)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Write(raw); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(true); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func decodeWithDescriptor(t *testing.T, d *stream.Descriptor, encoded []byte, params map[string]int) []byte {
	t.Helper()
	in := stream.NewInputBytes(encoded)
	s, err := d.Open(stream.Input, in, params)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close(false)
	var out bytes.Buffer
	buf := make([]byte, 4096)
	for {
		n, err := s.Read(buf)
		out.Write(buf[:n])
		if err != nil {
			break
		}
	}
	return out.Bytes()
}

// TestFlateRoundTrip exercises the Generic filter with the
// klauspost/compress-backed FlateDevice plugged in behind it (spec.md
// §4.3.6's plugin point), with no predictor.
func TestFlateRoundTrip(t *testing.T) {
	reg := newRegistry(t)
	dec, err := reg.Find(Flate)
	if err != nil {
		t.Fatal(err)
	}
	enc, err := reg.Find("FlateEncode")
	if err != nil {
		t.Fatal(err)
	}
	for range [30]int{} {
		raw := make([]byte, rand.Intn(5000))
		rand.Read(raw)
		encoded := encodeWithDecriptor(t, enc, raw, nil)
		got := decodeWithDescriptor(t, dec, encoded, nil)
		if !bytes.Equal(got, raw) {
			t.Fatalf("flate round-trip mismatch for %d random bytes", len(raw))
		}
	}
}

// TestFlateClosedExactlyOnce guards against the Generic filter's
// Transform being invoked twice with final=true on an explicit Close,
// which would hand zlib an empty second stream and corrupt the output
// (stream.Stream.Close must flush exactly once per explicit close).
func TestFlateClosedExactlyOnce(t *testing.T) {
	reg := newRegistry(t)
	enc, err := reg.Find("FlateEncode")
	if err != nil {
		t.Fatal(err)
	}
	dec, err := reg.Find(Flate)
	if err != nil {
		t.Fatal(err)
	}
	raw := []byte("repeated content repeated content repeated content")
	encoded := encodeWithDecriptor(t, enc, raw, nil)
	got := decodeWithDescriptor(t, dec, encoded, nil)
	if !bytes.Equal(got, raw) {
		t.Fatalf("got %q, want %q (likely a double-flush corrupting the zlib stream)", got, raw)
	}
}

func TestRC4RoundTrip(t *testing.T) {
	key := []byte("a secret document key")
	dec, enc := NewRC4Descriptors(key)
	for range [30]int{} {
		raw := make([]byte, rand.Intn(2000))
		rand.Read(raw)
		encoded := encodeWithDecriptor(t, enc, raw, nil)
		got := decodeWithDescriptor(t, dec, encoded, nil)
		if !bytes.Equal(got, raw) {
			t.Fatalf("RC4 round-trip mismatch for %d random bytes", len(raw))
		}
	}
}

func TestAESRoundTrip(t *testing.T) {
	key := make([]byte, 16)
	rand.Read(key)
	dec, enc := NewAESDescriptors(key)
	for range [30]int{} {
		raw := make([]byte, rand.Intn(2000))
		rand.Read(raw)
		encoded := encodeWithDecriptor(t, enc, raw, nil)
		got := decodeWithDescriptor(t, dec, encoded, nil)
		if !bytes.Equal(got, raw) {
			t.Fatalf("AES round-trip mismatch for %d random bytes", len(raw))
		}
	}
}

func TestAESRejectsTruncatedCiphertext(t *testing.T) {
	key := make([]byte, 16)
	dec, _ := NewAESDescriptors(key)
	in := stream.NewInputBytes([]byte("short"))
	s, err := dec.Open(stream.Input, in, nil)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 16)
	if _, err := s.Read(buf); err == nil {
		t.Fatalf("expected an error decrypting a ciphertext shorter than one AES block")
	}
}
