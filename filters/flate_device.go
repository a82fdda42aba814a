package filters

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/benoitkugler/filterio/stream"
)

// FlateDevice adapts klauspost/compress's zlib-compatible codec to the
// Device seam (spec.md §4.3.6), plus the PNG/TIFF predictor
// postprocessing a PDF FlateDecode filter applies on top of raw
// inflate. The predictor itself needs the whole decompressed stream
// before it can reconstruct a row, so this device buffers its entire
// input and only produces output on the final Transform call.
type FlateDevice struct {
	dir    stream.Direction
	params flateParams
	in     bytes.Buffer
}

type flateParams struct {
	predictor, colors, bpc, columns int
}

func (d *FlateDevice) Open(dir stream.Direction, params map[string]int) error {
	d.dir = dir
	p := flateParams{colors: 1, bpc: 8, columns: 1}
	if v, ok := params["Predictor"]; ok {
		p.predictor = v
	}
	if v, ok := params["Colors"]; ok && v > 0 {
		p.colors = v
	}
	if v, ok := params["BitsPerComponent"]; ok {
		p.bpc = v
	}
	if v, ok := params["Columns"]; ok {
		p.columns = v
	}
	d.params = p
	return nil
}

func (d *FlateDevice) Transform(in []byte, final bool) ([]byte, error) {
	d.in.Write(in)
	if !final {
		return nil, nil
	}
	if d.dir == stream.Input {
		return d.decode()
	}
	return d.encode()
}

func (d *FlateDevice) decode() ([]byte, error) {
	rc, err := zlib.NewReader(bytes.NewReader(d.in.Bytes()))
	if err != nil {
		return nil, stream.NewError(stream.IOError, "FlateDecode: %s", err)
	}
	defer rc.Close()
	out, err := io.ReadAll(rc)
	if err != nil {
		return nil, stream.NewError(stream.IOError, "FlateDecode: %s", err)
	}
	return d.params.undoPredictor(out)
}

func (d *FlateDevice) encode() ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(d.in.Bytes()); err != nil {
		return nil, stream.NewError(stream.IOError, "FlateEncode: %s", err)
	}
	if err := w.Close(); err != nil {
		return nil, stream.NewError(stream.IOError, "FlateEncode: %s", err)
	}
	return buf.Bytes(), nil
}

func (d *FlateDevice) Close() error { return nil }

func (f flateParams) rowSize() int {
	return f.bpc * f.colors * f.columns / 8
}

// undoPredictor reverses the PNG (predictor 10-15) or TIFF (predictor
// 2) row prediction a FlateDecode stream may carry. Predictor 0 or 1
// means no prediction was applied.
func (f flateParams) undoPredictor(raw []byte) ([]byte, error) {
	if f.predictor == 0 || f.predictor == 1 {
		return raw, nil
	}

	bytesPerPixel := (f.bpc*f.colors + 7) / 8
	rowSize := f.rowSize()
	if f.predictor != 2 {
		rowSize++ // PNG rows carry a leading filter-type byte
	}

	r := bytes.NewReader(raw)
	cr := make([]byte, rowSize)
	pr := make([]byte, rowSize)
	var out []byte

	for {
		_, err := io.ReadFull(r, cr)
		if err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				return nil, stream.NewError(stream.IOError, "FlateDecode predictor: %s", err)
			}
			break
		}
		d, err := flateUnfilterRow(pr, cr, f.predictor, f.colors, bytesPerPixel)
		if err != nil {
			return nil, err
		}
		out = append(out, d...)
		pr, cr = cr, pr
	}
	return out, nil
}

func flateUnfilterRow(pr, cr []byte, predictor, colors, bytesPerPixel int) ([]byte, error) {
	if predictor == 2 {
		return flateUndoHorizontalDiff(cr, colors), nil
	}

	cdat := cr[1:]
	pdat := pr[1:]
	switch tag := cr[0]; tag {
	case 0:
	case 1:
		for i := bytesPerPixel; i < len(cdat); i++ {
			cdat[i] += cdat[i-bytesPerPixel]
		}
	case 2:
		for i, p := range pdat {
			cdat[i] += p
		}
	case 3:
		for i := 0; i < bytesPerPixel; i++ {
			cdat[i] += pdat[i] / 2
		}
		for i := bytesPerPixel; i < len(cdat); i++ {
			cdat[i] += uint8((int(cdat[i-bytesPerPixel]) + int(pdat[i])) / 2)
		}
	case 4:
		flateUnfilterPaeth(cdat, pdat, bytesPerPixel)
	default:
		return nil, stream.NewError(stream.RangeCheck, "FlateDecode predictor: unknown row filter tag %d", tag)
	}
	return cdat, nil
}

func flateUndoHorizontalDiff(row []byte, colors int) []byte {
	for i := 1; i < len(row)/colors; i++ {
		for j := 0; j < colors; j++ {
			row[i*colors+j] += row[(i-1)*colors+j]
		}
	}
	return row
}

func flateAbs32(x int32) int32 {
	m := x >> 31
	return (x ^ m) - m
}

func flateUnfilterPaeth(cdat, pdat []byte, bytesPerPixel int) {
	var a, b, c, pa, pb, pc int32
	for i := 0; i < bytesPerPixel; i++ {
		a, c = 0, 0
		for j := i; j < len(cdat); j += bytesPerPixel {
			b = int32(pdat[j])
			pa = flateAbs32(b - c)
			pb = flateAbs32(a - c)
			pc = flateAbs32(b - c + a - c)
			switch {
			case pa <= pb && pa <= pc:
			case pb <= pc:
				a = b
			default:
				a = c
			}
			a += int32(cdat[j])
			a &= 0xff
			cdat[j] = uint8(a)
			c = b
		}
	}
}
