// Command-line tool that assembles a Zarr product and lists its bands.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"

	zarr "github.com/qri-io/zarr-geo"
	"github.com/qri-io/zarr-geo/geocoding"
	"github.com/qri-io/zarr-geo/logging"
	"github.com/qri-io/zarr-geo/product"
)

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("v", false, "")

	// Path to a TOML configuration overriding the defaults.
	configFile = flag.String("config", "", "")
)

const helpMessage = `
zarrgeo assembles a Sentinel-2 Zarr product and prints its bands

Usage: zarrgeo [options] <path or bucket URL>

      -config     =string   TOML configuration file.
      -v          (flag)    Run in verbose mode.
  -h, -help       (flag)    Show help message

Bucket URLs look like file:///data/S2B_MSIL2A_20230815T102609.zarr.
`

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = func() { fmt.Print(helpMessage) }
	flag.Parse()

	if *showHelp || flag.NArg() != 1 {
		flag.Usage()
		os.Exit(0)
	}
	if *runVerbose {
		logging.SetLogMode(logging.DebugMode)
	}

	cfg := product.DefaultConfig()
	if *configFile != "" {
		var err error
		if cfg, err = product.LoadConfig(*configFile); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	cfg.Logging.SetLogger()
	defer logging.Shutdown()

	if err := run(flag.Arg(0), cfg); err != nil {
		logging.Errorf("%v", err)
		fmt.Fprintln(os.Stderr, err)
		logging.Shutdown()
		os.Exit(1)
	}
}

func run(location string, cfg product.Config) error {
	store, name, closeFn, err := openStore(location)
	if err != nil {
		return err
	}
	defer closeFn()

	p, err := product.Read(store, name, cfg)
	if err != nil {
		return err
	}
	printProduct(p)
	return nil
}

func openStore(location string) (zarr.Store, string, func(), error) {
	if strings.Contains(location, "://") {
		bs, err := zarr.OpenBucketStore(context.Background(), location)
		if err != nil {
			return nil, "", nil, err
		}
		name := location
		if i := strings.Index(name, "?"); i >= 0 {
			name = name[:i]
		}
		name = filepath.Base(strings.TrimRight(name, "/"))
		return bs, name, func() { bs.Close() }, nil
	}
	ls, err := zarr.NewLocalStore(location)
	if err != nil {
		return nil, "", nil, err
	}
	return ls, filepath.Base(filepath.Clean(location)), func() {}, nil
}

func printProduct(p *product.Product) {
	fmt.Printf("%s (%s)\n", p.Name, p.Type)
	if !p.Start.IsZero() {
		fmt.Printf("sensing %s to %s\n", p.Start.Format("2006-01-02T15:04:05Z07:00"), p.End.Format("2006-01-02T15:04:05Z07:00"))
	}
	if p.SceneGeoCoding != nil {
		fmt.Printf("scene %s\n", p.SceneGeoCoding.Shape())
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BAND\tSHAPE\tPIXELS\tGEOCODING\tCODING\tMASKS")
	for _, b := range p.Bands {
		coding := "-"
		if b.Coding != nil {
			coding = b.Coding.Name + " (" + b.Coding.Kind.String() + ")"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n", b.Name, b.SpatialShape,
			humanize.Comma(int64(b.SpatialShape.Pixels())), geoCodingKind(b.GeoCoding), coding, len(b.Masks))
	}
	w.Flush()

	if len(p.Auxiliary) > 0 {
		fmt.Printf("\n%d auxiliary arrays\n", len(p.Auxiliary))
	}
	if len(p.Problems) > 0 {
		fmt.Printf("\n%d problems:\n", len(p.Problems))
		for _, err := range p.Problems {
			fmt.Printf("  %v\n", err)
		}
	}
}

func geoCodingKind(gc geocoding.GeoCoding) string {
	switch g := gc.(type) {
	case *geocoding.UniformGrid:
		return fmt.Sprintf("%s %gm", g.CRS.Name, g.PixelSizeX)
	case *geocoding.PixelLookup:
		return fmt.Sprintf("lookup %.2fkm", g.ResolutionKm)
	}
	return "none"
}
