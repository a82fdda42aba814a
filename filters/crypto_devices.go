package filters

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rc4"
	"io"

	"github.com/benoitkugler/filterio/stream"
)

// RC4Device wraps crypto/rc4 as a Device. RC4 is a pure stream cipher,
// so encoding and decoding are the same XOR-with-keystream operation;
// like the PDF RC4 security handler this core is modeled on, the key is
// per-document and supplied by the caller, not carried in the codec's
// integer parameter dictionary (spec.md's Generic parameters are plain
// ints; key material is bound into the Device at construction time
// instead, via NewRC4Descriptors).
type RC4Device struct {
	Key    []byte
	cipher *rc4.Cipher
}

func (d *RC4Device) Open(dir stream.Direction, params map[string]int) error {
	c, err := rc4.NewCipher(d.Key)
	if err != nil {
		return stream.NewError(stream.IOError, "RC4: %s", err)
	}
	d.cipher = c
	return nil
}

func (d *RC4Device) Transform(in []byte, final bool) ([]byte, error) {
	out := make([]byte, len(in))
	d.cipher.XORKeyStream(out, in)
	return out, nil
}

func (d *RC4Device) Close() error { return nil }

// NewRC4Descriptors builds a decoder/encoder pair bound to key, for
// registering under an application-chosen name (the standard registry
// only carries name-only RC4/AES entries, since a real key is never
// process-global).
func NewRC4Descriptors(key []byte) (decode, encode *stream.Descriptor) {
	factory := func() Device { return &RC4Device{Key: key} }
	return genericDecodeDescriptor(RC4, factory), genericEncodeDescriptor("RC4Encode", factory)
}

// AESDevice wraps crypto/aes in CBC mode with PKCS#7 padding, matching
// the AESV2/AESV3 convention of a random 16-byte IV prepended to the
// ciphertext (spec.md's Generic device seam, key bound at construction
// like RC4Device).
type AESDevice struct {
	Key []byte
	dir stream.Direction
	in  []byte // accumulated input; CBC needs the whole stream to locate the IV and strip padding
}

func (d *AESDevice) Open(dir stream.Direction, params map[string]int) error {
	d.dir = dir
	d.in = nil
	return nil
}

func (d *AESDevice) Transform(in []byte, final bool) ([]byte, error) {
	d.in = append(d.in, in...)
	if !final {
		return nil, nil
	}
	block, err := aes.NewCipher(d.Key)
	if err != nil {
		return nil, stream.NewError(stream.IOError, "AES: %s", err)
	}
	if d.dir == stream.Input {
		return aesDecrypt(block, d.in)
	}
	return aesEncrypt(block, d.in)
}

func (d *AESDevice) Close() error { return nil }

func aesDecrypt(block cipher.Block, data []byte) ([]byte, error) {
	if len(data) < aes.BlockSize || len(data)%aes.BlockSize != 0 {
		return nil, stream.NewError(stream.IllegalDataLength, "AESDecode: ciphertext is not a whole number of blocks")
	}
	iv := data[:aes.BlockSize]
	ct := data[aes.BlockSize:]
	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ct)
	return aesStripPKCS7(out)
}

func aesEncrypt(block cipher.Block, data []byte) ([]byte, error) {
	padded := aesAddPKCS7(data, aes.BlockSize)
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, stream.NewError(stream.IOError, "AESEncode: %s", err)
	}
	out := make([]byte, aes.BlockSize+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)
	return out, nil
}

func aesAddPKCS7(data []byte, blockSize int) []byte {
	pad := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+pad)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(pad)
	}
	return out
}

func aesStripPKCS7(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > len(data) || pad > aes.BlockSize {
		return nil, stream.NewError(stream.RangeCheck, "AESDecode: invalid PKCS#7 padding")
	}
	return data[:len(data)-pad], nil
}

// NewAESDescriptors mirrors NewRC4Descriptors for AES-CBC.
func NewAESDescriptors(key []byte) (decode, encode *stream.Descriptor) {
	factory := func() Device { return &AESDevice{Key: key} }
	return genericDecodeDescriptor(AES, factory), genericEncodeDescriptor("AESEncode", factory)
}
