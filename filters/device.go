package filters

import "github.com/benoitkugler/filterio/stream"

// Device is the plugin seam of spec.md §4.3.6: the Generic filter
// delegates all real transformation work to a Device instead of
// hard-coding an algorithm, so codecs outside this core's scope (Flate,
// stream ciphers, ...) can be wired in without the Generic descriptor
// itself knowing anything about them.
type Device interface {
	// Open prepares the device for dir (Input decodes, Output encodes)
	// using the codec's parameter dictionary.
	Open(dir stream.Direction, params map[string]int) error
	// Transform processes in and returns the bytes it produces. final is
	// true on the last call: for an encoder, the one made by an explicit
	// close's flush; for a decoder, the one made once the underlying
	// stream reports EOF. A stateful device (a compressor, a padded block
	// cipher) then knows to flush or pad rather than wait for more input
	// that will never come.
	Transform(in []byte, final bool) ([]byte, error)
	// Close releases any resources the device holds open.
	Close() error
}
