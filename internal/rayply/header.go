package rayply

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ScalarType identifies a PLY scalar property type.
type ScalarType uint8

const (
	Int8 ScalarType = iota
	UInt8
	Int16
	UInt16
	Int32
	UInt32
	Float32
	Float64
)

// scalarTypes is the complete registry of standard PLY scalar type names.
// Any name outside this table fails the parse (ErrUnknownPropertyType)
// rather than being skipped: a skipped property of unknown size would
// invalidate every subsequent offset in the record.
var scalarTypes = map[string]ScalarType{
	"char": Int8, "int8": Int8,
	"uchar": UInt8, "uint8": UInt8,
	"short": Int16, "int16": Int16,
	"ushort": UInt16, "uint16": UInt16,
	"int": Int32, "int32": Int32,
	"uint": UInt32, "uint32": UInt32,
	"float": Float32, "float32": Float32,
	"double": Float64, "float64": Float64,
}

// Size returns the storage width of the scalar type in bytes.
func (t ScalarType) Size() int {
	switch t {
	case Int8, UInt8:
		return 1
	case Int16, UInt16:
		return 2
	case Int32, UInt32, Float32:
		return 4
	default:
		return 8
	}
}

// String returns the canonical PLY name for the type.
func (t ScalarType) String() string { return t.plyName() }

func (t ScalarType) plyName() string {
	switch t {
	case Int8:
		return "char"
	case UInt8:
		return "uchar"
	case Int16:
		return "short"
	case UInt16:
		return "ushort"
	case Int32:
		return "int"
	case UInt32:
		return "uint"
	case Float32:
		return "float"
	default:
		return "double"
	}
}

// Property describes one scalar field of a vertex record: its name,
// type, width, and cumulative byte offset within the record.
type Property struct {
	Name   string
	Type   ScalarType
	Size   int
	Offset int
}

// Header is the parsed description of a cloud file: declared record
// count, the ordered vertex properties, and the derived record size.
// Offsets are the running sum of preceding property sizes.
type Header struct {
	Count      int64
	Properties []Property
	RecordSize int

	// HeaderSize is the byte length of the text header; binary records
	// start at this offset.
	HeaderSize int64

	byName map[string]int
}

// Property returns the named vertex property, if declared.
func (h *Header) Property(name string) (Property, bool) {
	i, ok := h.byName[name]
	if !ok {
		return Property{}, false
	}
	return h.Properties[i], true
}

func (h *Header) index() {
	h.byName = make(map[string]int, len(h.Properties))
	for i, p := range h.Properties {
		h.byName[p.Name] = i
	}
}

// ParseHeader reads the text header from r, leaving r positioned at the
// first byte of binary vertex data. Only binary_little_endian files are
// accepted; ascii and big-endian formats fail with distinct errors.
// "list" properties (mesh face lists) are recognised and skipped; they
// occupy no bytes in vertex records. path is used in error messages only.
func ParseHeader(r *bufio.Reader, path string) (*Header, error) {
	line, n, err := readHeaderLine(r)
	if err != nil {
		return nil, headerErr(path, "reading magic", err)
	}
	if line != "ply" {
		return nil, headerErr(path, fmt.Sprintf("first line %q", line), ErrBadMagic)
	}

	h := &Header{HeaderSize: int64(n)}
	sawFormat := false
	inVertex := false
	for {
		line, n, err = readHeaderLine(r)
		if err != nil {
			return nil, headerErr(path, "header truncated before end_header", err)
		}
		h.HeaderSize += int64(n)
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "format":
			if len(fields) < 2 {
				return nil, headerErr(path, "malformed format line", ErrNoFormat)
			}
			switch fields[1] {
			case "binary_little_endian":
				sawFormat = true
			case "ascii":
				return nil, headerErr(path, "", ErrASCIIFormat)
			case "binary_big_endian":
				return nil, headerErr(path, "", ErrBigEndianFormat)
			default:
				return nil, headerErr(path, fmt.Sprintf("format %q", fields[1]), ErrNoFormat)
			}
		case "comment", "obj_info":
			// ignored
		case "element":
			if len(fields) >= 3 && fields[1] == "vertex" {
				n, perr := strconv.ParseInt(fields[2], 10, 64)
				if perr != nil || n < 0 {
					return nil, headerErr(path, fmt.Sprintf("vertex count %q", fields[2]), ErrNoFormat)
				}
				h.Count = n
				inVertex = true
			} else {
				// Faces and other elements follow the vertex data and are
				// outside this codec's scope; their property lines are ignored.
				inVertex = false
			}
		case "property":
			if !inVertex || len(fields) < 3 {
				continue
			}
			if fields[1] == "list" {
				// Mesh face lists are out of scope; a list property declares
				// no fixed bytes in the vertex record.
				continue
			}
			typ, ok := scalarTypes[fields[1]]
			if !ok {
				return nil, headerErr(path, fmt.Sprintf("property %q type %q", fields[2], fields[1]), ErrUnknownPropertyType)
			}
			h.Properties = append(h.Properties, Property{
				Name:   fields[2],
				Type:   typ,
				Size:   typ.Size(),
				Offset: h.RecordSize,
			})
			h.RecordSize += typ.Size()
		case "end_header":
			if !sawFormat {
				return nil, headerErr(path, "", ErrNoFormat)
			}
			h.index()
			return h, nil
		}
	}
}

// readHeaderLine reads one newline-terminated header line, returning
// the line with the trailing newline (and any carriage return) trimmed
// along with the raw byte count consumed.
func readHeaderLine(r *bufio.Reader) (string, int, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return "", 0, io.ErrUnexpectedEOF
		}
		return "", 0, err
	}
	return strings.TrimRight(line, "\r\n"), len(line), nil
}

// countWidth is the fixed width of the vertex-count field. The count is
// written zero-padded so that patching the true total at stream close
// overwrites the placeholder in place without shifting the data section.
const countWidth = 12

// writeHeader writes the header block for the given properties with a
// placeholder count of zero and returns the byte offset of the count
// field for later patching.
func writeHeader(w io.Writer, props []Property) (countOffset int64, err error) {
	var b strings.Builder
	b.WriteString("ply\n")
	b.WriteString("format binary_little_endian 1.0\n")
	b.WriteString("comment generated by raynoise\n")
	b.WriteString("element vertex ")
	countOffset = int64(b.Len())
	fmt.Fprintf(&b, "%0*d\n", countWidth, 0)
	for _, p := range props {
		fmt.Fprintf(&b, "property %s %s\n", p.Type.plyName(), p.Name)
	}
	b.WriteString("end_header\n")
	if _, err = io.WriteString(w, b.String()); err != nil {
		return 0, err
	}
	return countOffset, nil
}
