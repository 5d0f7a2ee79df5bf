package zarr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// Version is the storage specification version this library reads and
	// writes.
	Version = 2
)

// Array is an N-dimensional chunked array living at a path of a Store.
// An Array is read-only after Open; concurrent Reads are safe as long as
// the underlying Store is.
type Array struct {
	path  Path
	store Store
	mode  PersistenceMode
	meta  *ArrayMeta
	attrs Attributes
}

// Create writes array metadata for a new array at path, replacing any
// existing array there.
func Create(store Store, path string, m *ArrayMeta) (*Array, error) {
	p, err := NewPath(path)
	if err != nil {
		return nil, err
	}
	if m.ZarrFormat == 0 {
		m.ZarrFormat = Version
	}
	if m.Order == "" {
		m.Order = "C"
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	if err := ValidateArrayMeta(data); err != nil {
		return nil, err
	}
	if err := store.Put(p.Join(string(MTArray)).String(), bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return &Array{
		path:  p,
		store: store,
		mode:  ModeWrite,
		meta:  m,
		attrs: Attributes{},
	}, nil
}

// Open loads the array metadata and attributes stored at path.
func Open(store Store, path string, mode PersistenceMode) (*Array, error) {
	p, err := NewPath(path)
	if err != nil {
		return nil, err
	}

	a := &Array{
		path:  p,
		store: store,
		mode:  mode,
	}

	data, err := readKey(store, p.Join(string(MTArray)).String())
	if err != nil {
		return nil, fmt.Errorf("opening array %q: %w", path, err)
	}
	if err := ValidateArrayMeta(data); err != nil {
		return nil, fmt.Errorf("opening array %q: %w", path, err)
	}
	a.meta = &ArrayMeta{}
	if err := json.Unmarshal(data, a.meta); err != nil {
		return nil, fmt.Errorf("opening array %q: %w", path, err)
	}
	if len(a.meta.Filters) > 0 {
		return nil, fmt.Errorf("opening array %q: %w filter %q", path, ErrUnsupported, a.meta.Filters[0].ID)
	}

	a.attrs, err = readAttributes(store, p)
	if err != nil {
		return nil, fmt.Errorf("opening array %q: %w", path, err)
	}
	return a, nil
}

// Info is a one line summary of the array for logs.
func (a *Array) Info() string {
	return fmt.Sprintf("<zarr.Array %s shape=%v chunks=%v grid=%v dtype=%s>",
		a.Path(), a.meta.Shape, a.meta.Chunks, GridShape(a.meta.Shape, a.meta.Chunks), a.meta.Dtype.Human())
}

func (a *Array) Path() string {
	return a.path.String()
}

// Meta returns the decoded .zarray document.
func (a *Array) Meta() *ArrayMeta { return a.meta }

// Shape returns the length of each dimension, outermost first.
func (a *Array) Shape() []int { return append([]int(nil), a.meta.Shape...) }

// Chunks returns the chunk length of each dimension.
func (a *Array) Chunks() []int { return append([]int(nil), a.meta.Chunks...) }

// Attributes returns the array's .zattrs, never nil.
func (a *Array) Attributes() Attributes { return a.attrs }

// SetAttributes replaces the array's .zattrs.
func (a *Array) SetAttributes(attrs Attributes) error {
	if a.mode == ModeRead {
		return fmt.Errorf("array %q is opened read-only", a.Path())
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	if err := a.store.Put(a.path.Join(string(MTAttributes)).String(), bytes.NewReader(data)); err != nil {
		return err
	}
	a.attrs = attrs
	return nil
}

// Read copies the window of the given shape starting at offset into dst,
// converting every element to float64. dst is filled in C order and must
// hold at least the product of shape elements. Chunks missing from the store
// read as the fill value.
func (a *Array) Read(dst []float64, shape, offset []int) error {
	if err := validateWindow(a.meta.Shape, shape, offset); err != nil {
		return err
	}
	n := 1
	for _, s := range shape {
		n *= s
	}
	if len(dst) < n {
		return fmt.Errorf("%w: destination holds %d elements, window needs %d", ErrInvalidWindow, len(dst), n)
	}
	if n == 0 {
		return nil
	}

	dt, err := a.meta.ElementType()
	if err != nil {
		return err
	}
	decode, err := dt.Decoder()
	if err != nil {
		return err
	}
	fill, err := a.meta.Fill()
	if err != nil {
		return err
	}
	chunkStrides, err := strides(a.meta.Chunks, a.meta.Order)
	if err != nil {
		return err
	}
	outStrides, _ := strides(shape, "C")
	size := dt.ByteSize

	for _, p := range projections(shape, offset, a.meta.Chunks) {
		chunk, err := a.readChunk(p.ChunkCoords, size)
		if err != nil {
			return err
		}
		eachIndex(p.Lens, func(idx []int) {
			ci, oi := 0, 0
			for d, i := range idx {
				ci += (p.ChunkSelection[d] + i) * chunkStrides[d]
				oi += (p.OutSelection[d] + i) * outStrides[d]
			}
			if chunk == nil {
				dst[oi] = fill
				return
			}
			dst[oi] = decode(chunk[ci*size : (ci+1)*size])
		})
	}
	return nil
}

// Write stores data, given in C order, as the full content of the array.
func (a *Array) Write(data []float64) error {
	if a.mode == ModeRead {
		return fmt.Errorf("array %q is opened read-only", a.Path())
	}
	if len(data) != a.meta.size() {
		return fmt.Errorf("%w: array holds %d elements, got %d", ErrInvalidWindow, a.meta.size(), len(data))
	}
	dt, err := a.meta.ElementType()
	if err != nil {
		return err
	}
	encode, err := dt.Encoder()
	if err != nil {
		return err
	}
	fill, err := a.meta.Fill()
	if err != nil {
		return err
	}
	chunkStrides, err := strides(a.meta.Chunks, a.meta.Order)
	if err != nil {
		return err
	}
	arrStrides, _ := strides(a.meta.Shape, "C")
	size := dt.ByteSize
	chunkLen := 1
	for _, c := range a.meta.Chunks {
		chunkLen *= c
	}

	origin := make([]int, len(a.meta.Shape))
	for _, p := range projections(a.meta.Shape, origin, a.meta.Chunks) {
		buf := make([]byte, chunkLen*size)
		for i := 0; i < chunkLen; i++ {
			encode(buf[i*size:(i+1)*size], fill)
		}
		eachIndex(p.Lens, func(idx []int) {
			ci, ai := 0, 0
			for d, i := range idx {
				ci += (p.ChunkSelection[d] + i) * chunkStrides[d]
				ai += (p.OutSelection[d] + i) * arrStrides[d]
			}
			encode(buf[ci*size:(ci+1)*size], data[ai])
		})
		enc, err := a.meta.Compressor.Encode(buf)
		if err != nil {
			return err
		}
		if err := a.store.Put(a.chunkPath(p.ChunkCoords).String(), bytes.NewReader(enc)); err != nil {
			return err
		}
	}
	return nil
}

// readChunk returns the decoded bytes of one chunk, or nil when the chunk
// has never been written.
func (a *Array) readChunk(coords []int, elemSize int) ([]byte, error) {
	f, err := a.openChunk(coords)
	if errors.Is(err, ErrNotfound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading chunk %s of %q: %w", ChunkKey(coords, a.meta.separator()), a.Path(), err)
	}
	want := elemSize
	for _, c := range a.meta.Chunks {
		want *= c
	}
	if len(data) < want {
		return nil, fmt.Errorf("chunk %s of %q holds %d bytes, expected %d",
			ChunkKey(coords, a.meta.separator()), a.Path(), len(data), want)
	}
	return data, nil
}

func (a *Array) openChunk(ch []int) (io.ReadCloser, error) {
	f, err := a.store.Get(a.chunkPath(ch).String())
	if err != nil {
		return nil, err
	}
	return a.meta.Compressor.Decompressor(f)
}

func (a *Array) chunkPath(ch []int) Path {
	return a.path.Join(ChunkKey(ch, a.meta.separator()))
}

// eachIndex calls fn for every index vector within lens, last dimension
// fastest. fn must not retain idx.
func eachIndex(lens []int, fn func(idx []int)) {
	for _, l := range lens {
		if l == 0 {
			return
		}
	}
	idx := make([]int, len(lens))
	for {
		fn(idx)
		d := len(idx) - 1
		for ; d >= 0; d-- {
			idx[d]++
			if idx[d] < lens[d] {
				break
			}
			idx[d] = 0
		}
		if d < 0 {
			return
		}
	}
}

func readKey(store Store, key string) ([]byte, error) {
	f, err := store.Get(key)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func readAttributes(store Store, p Path) (Attributes, error) {
	data, err := readKey(store, p.Join(string(MTAttributes)).String())
	if errors.Is(err, ErrNotfound) {
		return Attributes{}, nil
	}
	if err != nil {
		return nil, err
	}
	attrs := Attributes{}
	if err := json.Unmarshal(data, &attrs); err != nil {
		return nil, fmt.Errorf("decoding attributes: %w", err)
	}
	return attrs, nil
}

type PersistenceMode string

const (
	// Persistence mode:
	// ‘r’ means read only (must exist);
	ModeRead PersistenceMode = "r"
	//‘r+’ means read/write (must exist)
	ModeReadWrite PersistenceMode = "r+"
	// ‘a’ means read/write (create if doesn’t exist)
	ModeReadWriteCreate PersistenceMode = "a"
	// ‘w’ means create (overwrite if exists)
	ModeWrite PersistenceMode = "w"
	// ‘w-’ means create (fail if exists).
	ModeWriteFail PersistenceMode = "w-"
)

type Path []string

// NewPath normalizes a logical path: backslashes become forward slashes,
// leading and trailing slashes are stripped, and runs of slashes collapse.
// The root path is empty.
func NewPath(posix string) (Path, error) {
	posix = strings.ReplaceAll(posix, "\\", "/")
	var p Path
	for _, el := range strings.Split(posix, "/") {
		if el == "" {
			continue
		}
		if el == "." || el == ".." {
			return nil, fmt.Errorf("invalid path segment %q in %q", el, posix)
		}
		p = append(p, el)
	}
	return p, nil
}

func (p Path) String() string {
	return strings.Join(p, "/")
}

// Parent returns the path without its last element.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return nil
	}
	return p[:len(p)-1:len(p)-1]
}

// Base returns the last element, or "" for the root path.
func (p Path) Base() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

func (p Path) Join(elems ...string) Path {
	out := make(Path, 0, len(p)+len(elems))
	out = append(out, p...)
	return append(out, elems...)
}
