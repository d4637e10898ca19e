package rayply

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/raynoise/internal/geom"
)

func geomVec(x, y, z float64) geom.Vec3 { return geom.Vec3{X: x, Y: y, Z: z} }

func writeTestCloud(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cloud.ply")
	if _, err := WriteCloud(path, SchemaRayCloud, testBatch(n)); err != nil {
		t.Fatalf("WriteCloud: %v", err)
	}
	return path
}

func TestForEachChunkCoversAllRecords(t *testing.T) {
	path := writeTestCloud(t, 23)

	for _, chunk := range []int{1, 4, 23, 1000} {
		t.Run(fmt.Sprintf("chunk=%d", chunk), func(t *testing.T) {
			r, err := Open(path)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer r.Close()

			var total int
			var lastTime float64
			err = r.ForEachChunk(chunk, func(b *Batch) error {
				if b.Len() > chunk {
					t.Errorf("batch of %d records exceeds chunk size %d", b.Len(), chunk)
				}
				for _, tm := range b.Times {
					if tm <= lastTime {
						t.Errorf("record order broken: time %v after %v", tm, lastTime)
					}
					lastTime = tm
				}
				total += b.Len()
				return nil
			})
			if err != nil {
				t.Fatalf("ForEachChunk: %v", err)
			}
			if total != 23 {
				t.Errorf("visited %d records, want 23", total)
			}
		})
	}
}

func TestForEachChunkStopsOnCallbackError(t *testing.T) {
	path := writeTestCloud(t, 10)
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	sentinel := errors.New("stop")
	calls := 0
	err = r.ForEachChunk(3, func(b *Batch) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("ForEachChunk error = %v, want sentinel", err)
	}
	if calls != 1 {
		t.Errorf("callback ran %d times after error, want 1", calls)
	}
}

func TestTruncatedRecord(t *testing.T) {
	path := writeTestCloud(t, 5)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Cut into the middle of the last record.
	if err := os.WriteFile(path, data[:len(data)-7], 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	err = r.ForEachChunk(100, func(*Batch) error { return nil })
	if err == nil {
		t.Fatal("expected truncated-record error")
	}
}

func TestShortFileOnRecordBoundary(t *testing.T) {
	path := writeTestCloud(t, 5)
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	recordSize := r.Header().RecordSize
	headerSize := r.Header().HeaderSize
	r.Close()

	// Drop the last two whole records without fixing the header count.
	if err := os.Truncate(path, headerSize+int64(3*recordSize)); err != nil {
		t.Fatal(err)
	}

	r, err = Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	total := 0
	if err := r.ForEachChunk(100, func(b *Batch) error { total += b.Len(); return nil }); err != nil {
		t.Fatalf("ForEachChunk: %v", err)
	}
	if total != 3 {
		t.Errorf("read %d records, want 3", total)
	}
}

func TestReadRecordAt(t *testing.T) {
	path := writeTestCloud(t, 9)
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	// Consume part of the stream first; random access must not disturb it.
	if _, err := r.ReadChunk(4); err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}

	rec, err := r.ReadRecordAt(7)
	if err != nil {
		t.Fatalf("ReadRecordAt: %v", err)
	}
	if rec.Time != 1007.5 {
		t.Errorf("record 7 time = %v, want 1007.5", rec.Time)
	}
	if !rec.HasOrigin || rec.Start.Z != 10 {
		t.Errorf("record 7 start = %v", rec.Start)
	}

	b, err := r.ReadChunk(100)
	if err != nil {
		t.Fatalf("ReadChunk after ReadRecordAt: %v", err)
	}
	if b.Len() != 5 || b.Times[0] != 1004.5 {
		t.Errorf("stream position disturbed: got %d records starting at time %v", b.Len(), b.Times[0])
	}

	if _, err := r.ReadRecordAt(9); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("ReadRecordAt(9) error = %v, want ErrIndexOutOfRange", err)
	}
	if _, err := r.ReadRecordAt(-1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("ReadRecordAt(-1) error = %v, want ErrIndexOutOfRange", err)
	}
}

// writeRawCloud writes a hand-built header plus packed float32 records.
func writeRawCloud(t *testing.T, header string, fields ...[]float32) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raw.ply")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := io.WriteString(f, header); err != nil {
		t.Fatal(err)
	}
	for _, rec := range fields {
		for _, v := range rec {
			if err := binary.Write(f, binary.LittleEndian, v); err != nil {
				t.Fatal(err)
			}
		}
	}
	return path
}

func TestUnknownTrailingPropertySkipped(t *testing.T) {
	header := "ply\n" +
		"format binary_little_endian 1.0\n" +
		"element vertex 2\n" +
		"property float x\n" +
		"property float y\n" +
		"property float z\n" +
		"property float time\n" +
		"property float reflectance\n" +
		"end_header\n"
	path := writeRawCloud(t, header,
		[]float32{1, 2, 3, 0.5, 99},
		[]float32{4, 5, 6, 0.75, 98},
	)

	b, err := ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if b.Len() != 2 {
		t.Fatalf("read %d records, want 2", b.Len())
	}
	if b.Ends[1].X != 4 || b.Ends[1].Z != 6 {
		t.Errorf("record 1 end = %v", b.Ends[1])
	}
	if b.Times[0] != 0.5 {
		t.Errorf("record 0 time = %v, want 0.5 (reflectance bytes misaligned the decode)", b.Times[0])
	}
	if b.Starts != nil || b.Colors != nil {
		t.Error("absent columns should be nil")
	}
}

func TestMissingPositionProperties(t *testing.T) {
	header := "ply\n" +
		"format binary_little_endian 1.0\n" +
		"element vertex 1\n" +
		"property float x\n" +
		"property float y\n" +
		"property double time\n" +
		"end_header\n"
	path := writeRawCloud(t, header)

	if _, err := Open(path); err == nil {
		t.Fatal("expected error for cloud without z")
	}
}

func TestMissingTimeProperty(t *testing.T) {
	header := "ply\n" +
		"format binary_little_endian 1.0\n" +
		"element vertex 1\n" +
		"property float x\n" +
		"property float y\n" +
		"property float z\n" +
		"end_header\n"
	path := writeRawCloud(t, header, []float32{1, 2, 3})

	if _, err := Open(path); err == nil {
		t.Fatal("expected error for cloud without timestamps")
	}

	r, err := Open(path, ReadTimesOptional())
	if err != nil {
		t.Fatalf("Open with ReadTimesOptional: %v", err)
	}
	defer r.Close()
	b, err := r.ReadChunk(10)
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	if b.Times != nil {
		t.Error("Times column should be nil for a timeless cloud")
	}
	if b.Ends[0] != (geomVec(1, 2, 3)) {
		t.Errorf("record 0 end = %v", b.Ends[0])
	}
}

func TestMixedScalarWidths(t *testing.T) {
	// Coordinates at double width with uchar colours, as another tool
	// might write them.
	header := "ply\n" +
		"format binary_little_endian 1.0\n" +
		"element vertex 1\n" +
		"property double x\n" +
		"property double y\n" +
		"property double z\n" +
		"property uchar red\n" +
		"property uchar green\n" +
		"property uchar blue\n" +
		"property uchar alpha\n" +
		"property double time\n" +
		"end_header\n"
	path := filepath.Join(t.TempDir(), "wide.ply")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(f, header); err != nil {
		t.Fatal(err)
	}
	for _, v := range []float64{1.25, -2.5, 3.75} {
		binary.Write(f, binary.LittleEndian, v)
	}
	f.Write([]byte{255, 128, 0, 51})
	binary.Write(f, binary.LittleEndian, math.Float64bits(7.5))
	f.Close()

	b, err := ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if b.Ends[0] != (geomVec(1.25, -2.5, 3.75)) {
		t.Errorf("end = %v", b.Ends[0])
	}
	if b.Colors[0].A != 51.0/255 {
		t.Errorf("alpha = %v, want %v", b.Colors[0].A, 51.0/255)
	}
	if b.Times[0] != 7.5 {
		t.Errorf("time = %v, want 7.5", b.Times[0])
	}
}
