package rayply

import (
	"github.com/banshee-data/raynoise/internal/geom"
)

// Coordinate and normal components are stored single-precision; times
// and variances double-precision. Widening coordinates to float64 is a
// build-time change (coordType), not a per-file option.
const coordType = Float32

// RGBA is a colour sample with channels normalised to [0,1]. By
// convention the alpha channel carries the normalised return intensity.
type RGBA struct {
	R, G, B, A float64
}

// Variance is the per-point positional uncertainty decomposition.
// Total is the sum of the four components, by construction.
type Variance struct {
	Range      float64
	Angular    float64
	AoI        float64
	MixedPixel float64
	Total      float64
}

// Batch is one chunk of records in column form. All non-nil columns
// must have equal length. Optional columns are nil when the schema or
// source file lacks them.
type Batch struct {
	Starts    []geom.Vec3 // sensor origins; nil for point clouds
	Ends      []geom.Vec3 // return positions
	Times     []float64
	Colors    []RGBA
	Normals   []geom.Vec3
	Variances []Variance
}

// Len returns the number of records in the batch.
func (b *Batch) Len() int { return len(b.Ends) }

// columnsEqual reports whether every non-nil column matches Len.
func (b *Batch) columnsEqual() bool {
	n := b.Len()
	check := func(m int, present bool) bool { return !present || m == n }
	return check(len(b.Starts), b.Starts != nil) &&
		check(len(b.Times), b.Times != nil) &&
		check(len(b.Colors), b.Colors != nil) &&
		check(len(b.Normals), b.Normals != nil) &&
		check(len(b.Variances), b.Variances != nil)
}

// append copies src's records onto b, used by the whole-file helpers.
func (b *Batch) append(src *Batch) {
	b.Ends = append(b.Ends, src.Ends...)
	if src.Starts != nil {
		b.Starts = append(b.Starts, src.Starts...)
	}
	if src.Times != nil {
		b.Times = append(b.Times, src.Times...)
	}
	if src.Colors != nil {
		b.Colors = append(b.Colors, src.Colors...)
	}
	if src.Normals != nil {
		b.Normals = append(b.Normals, src.Normals...)
	}
	if src.Variances != nil {
		b.Variances = append(b.Variances, src.Variances...)
	}
}

// Schema selects one of the fixed record layouts.
type Schema int

const (
	// SchemaPointCloud stores position, colour and time.
	SchemaPointCloud Schema = iota
	// SchemaRayCloud adds the sensor origin per sample.
	SchemaRayCloud
	// SchemaIntermediate is a ray cloud plus estimated surface normals,
	// the checkpoint between the two uncertainty passes.
	SchemaIntermediate
	// SchemaFinal is a ray cloud plus the variance decomposition.
	SchemaFinal
)

func (s Schema) hasOrigin() bool    { return s != SchemaPointCloud }
func (s Schema) hasNormals() bool   { return s == SchemaIntermediate }
func (s Schema) hasVariances() bool { return s == SchemaFinal }

// properties returns the schema's ordered property list with running
// offsets.
func (s Schema) properties() []Property {
	var props []Property
	size := 0
	add := func(name string, t ScalarType) {
		props = append(props, Property{Name: name, Type: t, Size: t.Size(), Offset: size})
		size += t.Size()
	}
	add("x", coordType)
	add("y", coordType)
	add("z", coordType)
	if s.hasOrigin() {
		add("ox", coordType)
		add("oy", coordType)
		add("oz", coordType)
	}
	add("red", UInt8)
	add("green", UInt8)
	add("blue", UInt8)
	add("alpha", UInt8)
	add("time", Float64)
	if s.hasNormals() {
		add("nx", coordType)
		add("ny", coordType)
		add("nz", coordType)
	}
	if s.hasVariances() {
		add("range_variance", Float64)
		add("angular_variance", Float64)
		add("aoi_variance", Float64)
		add("mixed_pixel_variance", Float64)
		add("total_variance", Float64)
	}
	return props
}
