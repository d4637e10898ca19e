package rayply

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/banshee-data/raynoise/internal/geom"
)

// ReaderOption configures a ChunkReader session.
type ReaderOption func(*ChunkReader)

// ReadTimesOptional tolerates files without a time property; the
// batch's Times column is nil in that case.
func ReadTimesOptional() ReaderOption {
	return func(r *ChunkReader) { r.timesOptional = true }
}

// fieldRef locates one named property inside a record.
type fieldRef struct {
	off int
	typ ScalarType
	ok  bool
}

// Record is one decoded vertex. Optional fields are valid only when the
// corresponding Has flag is set.
type Record struct {
	Start    geom.Vec3
	End      geom.Vec3
	Time     float64
	Color    RGBA
	Normal   geom.Vec3
	Variance Variance

	HasOrigin   bool
	HasColor    bool
	HasTime     bool
	HasNormal   bool
	HasVariance bool
}

// ChunkReader reads a cloud file's records in bounded chunks, forward
// only. Reopen the file to restart the sequence.
type ChunkReader struct {
	f          *os.File
	br         *bufio.Reader
	hdr        *Header
	path       string
	recordSize int
	readCount  int64
	eof        bool

	timesOptional bool

	x, y, z                        fieldRef
	ox, oy, oz                     fieldRef
	red, green, blue, alpha        fieldRef
	timeF, nx, ny, nz              fieldRef
	vRange, vAngular, vAoI, vMixed fieldRef
	vTotal                         fieldRef
	hasOrigin, hasColor, hasTime   bool
	hasNormals, hasVariances       bool

	buf []byte
}

// Open opens path and parses its header, propagating header errors
// unchanged. The file must declare x, y, z and (unless
// ReadTimesOptional is given) time properties; origins, colours,
// normals and variances are surfaced when present. Unknown trailing
// properties are tolerated and skipped by offset.
func Open(path string, opts ...ReaderOption) (*ChunkReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rayply: opening %s: %w", path, err)
	}
	br := bufio.NewReaderSize(f, 1<<16)
	hdr, err := ParseHeader(br, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	r := &ChunkReader{
		f:          f,
		br:         br,
		hdr:        hdr,
		path:       path,
		recordSize: hdr.RecordSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.resolveFields(); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func (r *ChunkReader) resolveFields() error {
	ref := func(name string) fieldRef {
		p, ok := r.hdr.Property(name)
		if !ok {
			return fieldRef{}
		}
		return fieldRef{off: p.Offset, typ: p.Type, ok: true}
	}
	r.x, r.y, r.z = ref("x"), ref("y"), ref("z")
	if !r.x.ok || !r.y.ok || !r.z.ok {
		return headerErr(r.path, "missing x/y/z position properties", ErrNoFormat)
	}
	r.ox, r.oy, r.oz = ref("ox"), ref("oy"), ref("oz")
	r.hasOrigin = r.ox.ok && r.oy.ok && r.oz.ok
	r.red, r.green, r.blue, r.alpha = ref("red"), ref("green"), ref("blue"), ref("alpha")
	r.hasColor = r.red.ok && r.green.ok && r.blue.ok && r.alpha.ok
	r.timeF = ref("time")
	r.hasTime = r.timeF.ok
	if !r.hasTime && !r.timesOptional {
		return headerErr(r.path, "missing time property (cloud without timestamps needs the times-optional mode)", ErrNoFormat)
	}
	r.nx, r.ny, r.nz = ref("nx"), ref("ny"), ref("nz")
	r.hasNormals = r.nx.ok && r.ny.ok && r.nz.ok
	r.vRange = ref("range_variance")
	r.vAngular = ref("angular_variance")
	r.vAoI = ref("aoi_variance")
	r.vMixed = ref("mixed_pixel_variance")
	r.vTotal = ref("total_variance")
	r.hasVariances = r.vRange.ok && r.vAngular.ok && r.vAoI.ok && r.vMixed.ok && r.vTotal.ok
	return nil
}

// Header returns the parsed file header.
func (r *ChunkReader) Header() *Header { return r.hdr }

// Count returns the header's declared record count.
func (r *ChunkReader) Count() int64 { return r.hdr.Count }

// Path returns the file path the reader was opened on.
func (r *ChunkReader) Path() string { return r.path }

// Close releases the underlying file handle.
func (r *ChunkReader) Close() error { return r.f.Close() }

// ReadChunk returns up to maxRecords records starting at the current
// position, advancing by exactly the bytes consumed. At the end of the
// sequence it returns io.EOF. A file that ends mid-record is reported
// as an error; a file that ends on a record boundary before the
// declared count simply yields a short final chunk.
func (r *ChunkReader) ReadChunk(maxRecords int) (*Batch, error) {
	if maxRecords < 1 {
		panic("rayply: ReadChunk needs maxRecords >= 1")
	}
	remaining := r.hdr.Count - r.readCount
	if r.eof || remaining <= 0 {
		return nil, io.EOF
	}
	n := int64(maxRecords)
	if n > remaining {
		n = remaining
	}

	need := int(n) * r.recordSize
	if cap(r.buf) < need {
		r.buf = make([]byte, need)
	}
	buf := r.buf[:need]
	got, err := io.ReadFull(r.br, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("rayply: reading %s: %w", r.path, err)
	}
	if got%r.recordSize != 0 {
		return nil, fmt.Errorf("rayply: %s: truncated record after %d records", r.path, r.readCount+int64(got/r.recordSize))
	}
	whole := got / r.recordSize
	if whole == 0 {
		r.eof = true
		return nil, io.EOF
	}
	if whole < int(n) {
		r.eof = true
	}

	b := r.newBatch(whole)
	for i := 0; i < whole; i++ {
		rec := r.decodeRecord(buf[i*r.recordSize : (i+1)*r.recordSize])
		b.Ends[i] = rec.End
		if b.Starts != nil {
			b.Starts[i] = rec.Start
		}
		if b.Times != nil {
			b.Times[i] = rec.Time
		}
		if b.Colors != nil {
			b.Colors[i] = rec.Color
		}
		if b.Normals != nil {
			b.Normals[i] = rec.Normal
		}
		if b.Variances != nil {
			b.Variances[i] = rec.Variance
		}
	}
	r.readCount += int64(whole)
	return b, nil
}

// ForEachChunk invokes fn once per chunk, synchronously, in strict file
// order, covering every record exactly once. fn must not retain the
// batch; its backing storage is reused.
func (r *ChunkReader) ForEachChunk(maxRecords int, fn func(*Batch) error) error {
	for {
		b, err := r.ReadChunk(maxRecords)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
	}
}

// ReadRecordAt reads the i'th record without disturbing the chunk
// sequence position. It is a diagnostic utility; chunked streaming is
// the intended access path.
func (r *ChunkReader) ReadRecordAt(i int64) (Record, error) {
	if i < 0 || i >= r.hdr.Count {
		return Record{}, fmt.Errorf("rayply: %s: record %d of %d: %w", r.path, i, r.hdr.Count, ErrIndexOutOfRange)
	}
	buf := make([]byte, r.recordSize)
	if _, err := r.f.ReadAt(buf, r.hdr.HeaderSize+i*int64(r.recordSize)); err != nil {
		return Record{}, fmt.Errorf("rayply: reading record %d from %s: %w", i, r.path, err)
	}
	return r.decodeRecord(buf), nil
}

func (r *ChunkReader) newBatch(n int) *Batch {
	b := &Batch{Ends: make([]geom.Vec3, n)}
	if r.hasOrigin {
		b.Starts = make([]geom.Vec3, n)
	}
	if r.hasTime {
		b.Times = make([]float64, n)
	}
	if r.hasColor {
		b.Colors = make([]RGBA, n)
	}
	if r.hasNormals {
		b.Normals = make([]geom.Vec3, n)
	}
	if r.hasVariances {
		b.Variances = make([]Variance, n)
	}
	return b
}

func (r *ChunkReader) decodeRecord(buf []byte) Record {
	rec := Record{
		End: geom.Vec3{X: scalar(buf, r.x), Y: scalar(buf, r.y), Z: scalar(buf, r.z)},
	}
	if r.hasOrigin {
		rec.HasOrigin = true
		rec.Start = geom.Vec3{X: scalar(buf, r.ox), Y: scalar(buf, r.oy), Z: scalar(buf, r.oz)}
	}
	if r.hasColor {
		rec.HasColor = true
		rec.Color = RGBA{
			R: colorNorm(buf, r.red),
			G: colorNorm(buf, r.green),
			B: colorNorm(buf, r.blue),
			A: colorNorm(buf, r.alpha),
		}
	}
	if r.hasTime {
		rec.HasTime = true
		rec.Time = scalar(buf, r.timeF)
	}
	if r.hasNormals {
		rec.HasNormal = true
		rec.Normal = geom.Vec3{X: scalar(buf, r.nx), Y: scalar(buf, r.ny), Z: scalar(buf, r.nz)}
	}
	if r.hasVariances {
		rec.HasVariance = true
		rec.Variance = Variance{
			Range:      scalar(buf, r.vRange),
			Angular:    scalar(buf, r.vAngular),
			AoI:        scalar(buf, r.vAoI),
			MixedPixel: scalar(buf, r.vMixed),
			Total:      scalar(buf, r.vTotal),
		}
	}
	return rec
}

// scalar decodes one little-endian field as float64 regardless of its
// declared storage type, which is how readers stay tolerant of files
// written at the other coordinate width.
func scalar(buf []byte, f fieldRef) float64 {
	switch f.typ {
	case Int8:
		return float64(int8(buf[f.off]))
	case UInt8:
		return float64(buf[f.off])
	case Int16:
		return float64(int16(binary.LittleEndian.Uint16(buf[f.off:])))
	case UInt16:
		return float64(binary.LittleEndian.Uint16(buf[f.off:]))
	case Int32:
		return float64(int32(binary.LittleEndian.Uint32(buf[f.off:])))
	case UInt32:
		return float64(binary.LittleEndian.Uint32(buf[f.off:]))
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[f.off:])))
	default:
		return math.Float64frombits(binary.LittleEndian.Uint64(buf[f.off:]))
	}
}

// colorNorm decodes a colour channel to [0,1]: integer channels are
// divided by their byte range, float channels pass through.
func colorNorm(buf []byte, f fieldRef) float64 {
	v := scalar(buf, f)
	switch f.typ {
	case Float32, Float64:
		return v
	default:
		return v / 255
	}
}

// ReadAll loads an entire file through the chunked reader. Convenience
// for clouds known to fit in memory, such as test fixtures.
func ReadAll(path string, opts ...ReaderOption) (*Batch, error) {
	r, err := Open(path, opts...)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	all := &Batch{}
	err = r.ForEachChunk(1<<16, func(b *Batch) error {
		all.append(b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}
