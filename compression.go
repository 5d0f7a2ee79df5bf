package zarr

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/pierrec/lz4/v4"
	"github.com/qri-io/dataset/compression"
)

// Codec ids as written by numcodecs
const (
	CodecGZip = "gzip"
	CodecZstd = "zstd"
	CodecZlib = "zlib"
	CodecLZ4  = "lz4"
	CodecNone = ""
)

// CompressionMeta defines compression settings zarr-go understands
type CompressionMeta struct {
	ID      string `json:"id"`
	Cname   string `json:"cname,omitempty"`
	Clevel  int    `json:"clevel,omitempty"`
	Shuffle int    `json:"shuffle,omitempty"`
	Level   int    `json:"level,omitempty"`
}

// MarshalJSON writes null for an unset codec, as zarr expects.
func (m CompressionMeta) MarshalJSON() ([]byte, error) {
	if m.ID == CodecNone {
		return []byte("null"), nil
	}
	type plain CompressionMeta
	return json.Marshal(plain(m))
}

// Decompressor wraps a reader of a stored chunk with the configured codec.
// Closing the returned reader closes r as well, and r is closed when the
// codec cannot be set up.
func (m *CompressionMeta) Decompressor(r io.ReadCloser) (io.ReadCloser, error) {
	switch m.ID {
	case CodecNone:
		return r, nil
	case CodecGZip, CodecZstd:
		dr, err := compression.Decompressor(m.ID, r)
		if err != nil {
			r.Close()
			return nil, err
		}
		return &codecReader{ReadCloser: dr, src: r}, nil
	case CodecZlib:
		zr, err := zlib.NewReader(r)
		if err != nil {
			r.Close()
			return nil, err
		}
		return &codecReader{ReadCloser: zr, src: r}, nil
	case CodecLZ4:
		defer r.Close()
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		out, err := lz4Decode(data)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(out)), nil
	}
	r.Close()
	return nil, fmt.Errorf("%w compressor %q", ErrUnsupported, m.ID)
}

// codecReader closes the codec and then the stored chunk it reads from.
type codecReader struct {
	io.ReadCloser
	src io.Closer
}

func (c *codecReader) Close() error {
	err := c.ReadCloser.Close()
	if serr := c.src.Close(); err == nil {
		err = serr
	}
	return err
}

// Decode decompresses one whole stored chunk.
func (m *CompressionMeta) Decode(data []byte) ([]byte, error) {
	r, err := m.Decompressor(io.NopCloser(bytes.NewReader(data)))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Encode compresses one whole chunk for storage.
func (m *CompressionMeta) Encode(data []byte) ([]byte, error) {
	switch m.ID {
	case CodecNone:
		return data, nil
	case CodecLZ4:
		return lz4Encode(data)
	}

	buf := &bytes.Buffer{}
	var (
		w   io.WriteCloser
		err error
	)
	switch m.ID {
	case CodecGZip, CodecZstd:
		w, err = compression.Compressor(m.ID, buf)
	case CodecZlib:
		w = zlib.NewWriter(buf)
	default:
		err = fmt.Errorf("%w compressor %q", ErrUnsupported, m.ID)
	}
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// numcodecs frames an LZ4 block with its decoded length as a little-endian
// uint32 header.
func lz4Decode(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("lz4 chunk too short: %d bytes", len(data))
	}
	n := binary.LittleEndian.Uint32(data[:4])
	out := make([]byte, n)
	read, err := lz4.UncompressBlock(data[4:], out)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompression failed: %w", err)
	}
	return out[:read], nil
}

func lz4Encode(data []byte) ([]byte, error) {
	out := make([]byte, 4+lz4.CompressBlockBound(len(data)))
	binary.LittleEndian.PutUint32(out[:4], uint32(len(data)))
	var c lz4.Compressor
	n, err := c.CompressBlock(data, out[4:])
	if err != nil {
		return nil, fmt.Errorf("lz4 compression failed: %w", err)
	}
	if n == 0 {
		// incompressible input, store it as a single literal run
		return append(out[:4], lz4Literals(data)...), nil
	}
	return out[:4+n], nil
}

// lz4Literals builds a valid LZ4 block holding data as one literal-only
// sequence.
func lz4Literals(data []byte) []byte {
	n := len(data)
	block := make([]byte, 0, n+n/255+2)
	if n < 15 {
		block = append(block, byte(n<<4))
	} else {
		block = append(block, 0xF0)
		rest := n - 15
		for rest >= 255 {
			block = append(block, 255)
			rest -= 255
		}
		block = append(block, byte(rest))
	}
	return append(block, data...)
}
