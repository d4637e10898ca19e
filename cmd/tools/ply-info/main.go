// Command ply-info prints the header of a binary cloud file and,
// optionally, one decoded record. Useful for checking what a pipeline
// stage actually wrote.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/raynoise/internal/rayply"
)

var (
	recordIdx = flag.Int64("record", -1, "Decode and print the record at this index")
)

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [-record N] <file.ply>\n", os.Args[0])
		os.Exit(1)
	}
	path := flag.Arg(0)

	r, err := rayply.Open(path, rayply.ReadTimesOptional())
	if err != nil {
		log.Fatalf("ply-info: %v", err)
	}
	defer r.Close()

	hdr := r.Header()
	fmt.Printf("%s\n", path)
	fmt.Printf("  format:      binary_little_endian 1.0\n")
	fmt.Printf("  vertices:    %d\n", hdr.Count)
	fmt.Printf("  record size: %d bytes\n", hdr.RecordSize)
	fmt.Printf("  data offset: %d\n", hdr.HeaderSize)
	fmt.Printf("  properties:\n")
	for _, p := range hdr.Properties {
		fmt.Printf("    %-24s %-8s offset %d\n", p.Name, p.Type, p.Offset)
	}

	if *recordIdx >= 0 {
		rec, err := r.ReadRecordAt(*recordIdx)
		if err != nil {
			log.Fatalf("ply-info: record %d: %v", *recordIdx, err)
		}
		fmt.Printf("  record %d:\n", *recordIdx)
		fmt.Printf("    end     (%g, %g, %g)\n", rec.End.X, rec.End.Y, rec.End.Z)
		if rec.HasOrigin {
			fmt.Printf("    start   (%g, %g, %g)\n", rec.Start.X, rec.Start.Y, rec.Start.Z)
		}
		if rec.HasColor {
			fmt.Printf("    color   (%.3f, %.3f, %.3f, %.3f)\n", rec.Color.R, rec.Color.G, rec.Color.B, rec.Color.A)
		}
		if rec.HasTime {
			fmt.Printf("    time    %g\n", rec.Time)
		}
		if rec.HasNormal {
			fmt.Printf("    normal  (%g, %g, %g)\n", rec.Normal.X, rec.Normal.Y, rec.Normal.Z)
		}
		if rec.HasVariance {
			v := rec.Variance
			fmt.Printf("    variance range=%g angular=%g aoi=%g mixed=%g total=%g\n",
				v.Range, v.Angular, v.AoI, v.MixedPixel, v.Total)
		}
	}
}
