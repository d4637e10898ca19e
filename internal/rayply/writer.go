package rayply

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"math"
	"os"
)

// TimeSentinel is written in place of a timestamp when a session opened
// with TimesOptional appends a batch without a Times column.
const TimeSentinel = 0.0

// WriterOption configures a ChunkWriter session.
type WriterOption func(*ChunkWriter)

// TimesOptional allows batches without a Times column; the sentinel
// value is written instead. Without this option a missing Times column
// is a precondition violation.
func TimesOptional() WriterOption {
	return func(w *ChunkWriter) { w.timesOptional = true }
}

// ChunkWriter appends record batches to a cloud file in bounded-size
// chunks. The header is written at open with a placeholder count of
// zero; Close patches the true total in place.
type ChunkWriter struct {
	schema     Schema
	props      []Property
	recordSize int
	path       string

	f      *os.File
	bw     *bufio.Writer
	seeker io.WriteSeeker // nil when the destination cannot seek

	countOffset   int64
	count         int64
	timesOptional bool
	warnedClamp   bool
	closed        bool
	buf           []byte
}

// Create opens path for writing with the given record schema and writes
// the header. The returned session remembers the count-field offset for
// the patch at Close.
func Create(path string, schema Schema, opts ...WriterOption) (*ChunkWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("rayply: creating %s: %w", path, err)
	}
	w := newWriter(f, schema, path, opts...)
	w.f = f
	w.seeker = f
	if err := w.writeHeader(); err != nil {
		f.Close()
		return nil, fmt.Errorf("rayply: writing header to %s: %w", path, err)
	}
	return w, nil
}

// CreateRayCloud opens a ray cloud writer session.
func CreateRayCloud(path string, opts ...WriterOption) (*ChunkWriter, error) {
	return Create(path, SchemaRayCloud, opts...)
}

// CreatePointCloud opens a point cloud writer session.
func CreatePointCloud(path string, opts ...WriterOption) (*ChunkWriter, error) {
	return Create(path, SchemaPointCloud, opts...)
}

// CreateIntermediate opens a writer session for the pass-1 checkpoint
// layout (ray cloud plus normals).
func CreateIntermediate(path string, opts ...WriterOption) (*ChunkWriter, error) {
	return Create(path, SchemaIntermediate, opts...)
}

// CreateFinal opens a writer session for the output layout (ray cloud
// plus the variance decomposition).
func CreateFinal(path string, opts ...WriterOption) (*ChunkWriter, error) {
	return Create(path, SchemaFinal, opts...)
}

// NewChunkWriter writes to an arbitrary destination. If w does not
// implement io.WriteSeeker the count patch at Close is impossible and
// Close reports ErrNonSeekableOutput; the stream stays structurally
// valid but declares zero records.
func NewChunkWriter(w io.Writer, schema Schema, opts ...WriterOption) (*ChunkWriter, error) {
	cw := newWriter(w, schema, "<stream>", opts...)
	if ws, ok := w.(io.WriteSeeker); ok {
		cw.seeker = ws
	}
	if err := cw.writeHeader(); err != nil {
		return nil, fmt.Errorf("rayply: writing header: %w", err)
	}
	return cw, nil
}

func newWriter(w io.Writer, schema Schema, path string, opts ...WriterOption) *ChunkWriter {
	props := schema.properties()
	cw := &ChunkWriter{
		schema:     schema,
		props:      props,
		recordSize: props[len(props)-1].Offset + props[len(props)-1].Size,
		path:       path,
		bw:         bufio.NewWriterSize(w, 1<<16),
	}
	for _, opt := range opts {
		opt(cw)
	}
	return cw
}

func (w *ChunkWriter) writeHeader() error {
	off, err := writeHeader(w.bw, w.props)
	if err != nil {
		return err
	}
	w.countOffset = off
	return nil
}

// CountOffset returns the byte offset of the header's record-count
// field.
func (w *ChunkWriter) CountOffset() int64 { return w.countOffset }

// Count returns the number of records appended so far.
func (w *ChunkWriter) Count() int64 { return w.count }

// Path returns the destination path of the session.
func (w *ChunkWriter) Path() string { return w.path }

// AppendChunk serialises one batch of records and appends it. All
// non-nil columns must be equal length, and the schema's required
// columns must be present; violating either is a programmer error and
// panics. Out-of-range colour channels are clamped to [0,1] with at
// most one aggregated warning per session.
func (w *ChunkWriter) AppendChunk(b *Batch) error {
	if w.closed {
		return fmt.Errorf("rayply: %s: append after close", w.path)
	}
	w.checkColumns(b)

	n := b.Len()
	need := n * w.recordSize
	if cap(w.buf) < need {
		w.buf = make([]byte, need)
	}
	buf := w.buf[:need]

	clamped := false
	off := 0
	for i := 0; i < n; i++ {
		off = w.putCoord3(buf, off, b.Ends[i].X, b.Ends[i].Y, b.Ends[i].Z)
		if w.schema.hasOrigin() {
			off = w.putCoord3(buf, off, b.Starts[i].X, b.Starts[i].Y, b.Starts[i].Z)
		}
		c := b.Colors[i]
		buf[off] = colorByte(c.R, &clamped)
		buf[off+1] = colorByte(c.G, &clamped)
		buf[off+2] = colorByte(c.B, &clamped)
		buf[off+3] = colorByte(c.A, &clamped)
		off += 4
		t := TimeSentinel
		if b.Times != nil {
			t = b.Times[i]
		}
		binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(t))
		off += 8
		if w.schema.hasNormals() {
			nv := b.Normals[i]
			off = w.putCoord3(buf, off, nv.X, nv.Y, nv.Z)
		}
		if w.schema.hasVariances() {
			v := b.Variances[i]
			for _, val := range [5]float64{v.Range, v.Angular, v.AoI, v.MixedPixel, v.Total} {
				binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(val))
				off += 8
			}
		}
	}

	if clamped && !w.warnedClamp {
		w.warnedClamp = true
		log.Printf("rayply: %s: clamped out-of-range colour channels (warning suppressed for the rest of this session)", w.path)
	}
	if _, err := w.bw.Write(buf); err != nil {
		return fmt.Errorf("rayply: writing chunk to %s: %w", w.path, err)
	}
	w.count += int64(n)
	return nil
}

func (w *ChunkWriter) putCoord3(buf []byte, off int, x, y, z float64) int {
	for _, v := range [3]float64{x, y, z} {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(float32(v)))
		off += 4
	}
	return off
}

func colorByte(v float64, clamped *bool) byte {
	if v < 0 {
		*clamped = true
		return 0
	}
	if v > 1 {
		*clamped = true
		return 255
	}
	return byte(v*255 + 0.5)
}

// checkColumns enforces the AppendChunk preconditions. These are
// programmer errors, not recoverable faults.
func (w *ChunkWriter) checkColumns(b *Batch) {
	if !b.columnsEqual() {
		panic("rayply: batch columns must be equal length")
	}
	if b.Colors == nil {
		panic("rayply: batch missing colour column")
	}
	if b.Times == nil && !w.timesOptional {
		panic("rayply: batch missing time column (use TimesOptional for sentinel times)")
	}
	if w.schema.hasOrigin() && b.Starts == nil {
		panic("rayply: batch missing origin column for ray cloud schema")
	}
	if w.schema.hasNormals() && b.Normals == nil {
		panic("rayply: batch missing normals column for intermediate schema")
	}
	if w.schema.hasVariances() && b.Variances == nil {
		panic("rayply: batch missing variance column for final schema")
	}
}

// Close flushes buffered data, patches the header's record count, and
// returns the final count. When the destination cannot seek the patch
// is skipped and ErrNonSeekableOutput is returned: the file is
// structurally valid but its declared count (zero) is wrong, which
// downstream readers trusting the header must treat as suspect.
func (w *ChunkWriter) Close() (int64, error) {
	if w.closed {
		return w.count, fmt.Errorf("rayply: %s: already closed", w.path)
	}
	w.closed = true

	if err := w.bw.Flush(); err != nil {
		w.closeFile()
		return w.count, fmt.Errorf("rayply: flushing %s: %w", w.path, err)
	}
	if w.seeker == nil {
		return w.count, fmt.Errorf("rayply: %s: %w", w.path, ErrNonSeekableOutput)
	}
	if err := w.patchCount(); err != nil {
		w.closeFile()
		return w.count, err
	}
	if w.f != nil {
		if err := w.f.Close(); err != nil {
			return w.count, fmt.Errorf("rayply: closing %s: %w", w.path, err)
		}
	}
	return w.count, nil
}

func (w *ChunkWriter) patchCount() error {
	field := fmt.Sprintf("%0*d", countWidth, w.count)
	if len(field) != countWidth {
		return fmt.Errorf("rayply: %s: record count %d exceeds the %d-digit count field", w.path, w.count, countWidth)
	}
	if _, err := w.seeker.Seek(w.countOffset, io.SeekStart); err != nil {
		return fmt.Errorf("rayply: %s: %w", w.path, ErrNonSeekableOutput)
	}
	if _, err := w.seeker.Write([]byte(field)); err != nil {
		return fmt.Errorf("rayply: patching count in %s: %w", w.path, err)
	}
	return nil
}

// Abort releases the session without patching the count. The partial
// file is left on disk (cleanup is the caller's policy) with a declared
// count of zero.
func (w *ChunkWriter) Abort() {
	if w.closed {
		return
	}
	w.closed = true
	w.bw.Flush()
	w.closeFile()
}

func (w *ChunkWriter) closeFile() {
	if w.f != nil {
		w.f.Close()
	}
}

// WriteCloud writes a whole batch as one file in a single chunk, the
// convenience form for clouds known to fit in memory.
func WriteCloud(path string, schema Schema, b *Batch, opts ...WriterOption) (int64, error) {
	w, err := Create(path, schema, opts...)
	if err != nil {
		return 0, err
	}
	if err := w.AppendChunk(b); err != nil {
		w.closeFile()
		return 0, err
	}
	return w.Close()
}
