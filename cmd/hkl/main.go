package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"

	"github.com/stuwilkins/hkl/internal/detector"
	"github.com/stuwilkins/hkl/internal/geometry"
	"github.com/stuwilkins/hkl/internal/persist"
	"github.com/stuwilkins/hkl/internal/pseudo"
	"github.com/stuwilkins/hkl/internal/sample"
)

// Geometry files hold one "name value" line per axis after a "# type"
// header; angles are radians.
var CLI struct {
	Debug   bool      `help:"Enable debug logging."`
	Lattice []float64 `help:"Lattice a,b,c,alpha,beta,gamma (Å, radians)." sep:","`
	U       []float64 `help:"Sample orientation angles ux,uy,uz (radians)." sep:","`

	Types struct {
	} `cmd:"" help:"List the supported geometry types."`

	New struct {
		Type       string  `arg:"" help:"Geometry type, e.g. E4CV."`
		Wavelength float64 `help:"Source wavelength in Å." default:"1.54"`
	} `cmd:"" help:"Write a geometry file with every axis at zero."`

	Get struct {
		File   string `arg:"" help:"Geometry file, - for stdin."`
		Engine string `help:"Only compute this engine."`
	} `cmd:"" help:"Compute the pseudo-axes of a geometry."`

	Set struct {
		File   string             `arg:"" help:"Geometry file, - for stdin."`
		Engine string             `arg:"" help:"Engine to drive."`
		Values []float64          `arg:"" help:"Target pseudo-axis values."`
		Mode   string             `help:"Mode to select before solving."`
		Param  map[string]float64 `help:"Mode parameter, repeatable (name=value)."`
		All    bool               `help:"List every solution instead of writing the nearest."`
		Out    string             `help:"Write the new geometry here instead of stdout." type:"path"`
	} `cmd:"" help:"Solve for target pseudo-axes and write the nearest geometry."`

	Bench struct {
		Type   string    `arg:"" optional:"" help:"Geometry type." default:"E4CV"`
		Engine string    `help:"Engine to drive." default:"hkl"`
		Mode   string    `help:"Mode to select."`
		Target []float64 `help:"Target pseudo-axis values." sep:"," default:"0,0,1"`
		Start  []float64 `help:"Starting axis values (radians)." sep:","`
		N      int       `help:"Number of solves." default:"1000"`
	} `cmd:"" help:"Time repeated solves."`
}

func writeError(err error) {
	fmt.Fprintf(os.Stderr, "%s\n", err)
	os.Exit(1)
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("hkl"),
		kong.Description("diffractometer pseudo-axis calculator"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	level := slog.LevelWarn
	if CLI.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var err error
	switch ctx.Command() {
	case "types":
		err = typesCommand(os.Stdout)
	case "new <type>":
		err = newCommand(os.Stdout)
	case "get <file>":
		err = getCommand(os.Stdout, logger)
	case "set <file> <engine> <values>":
		err = setCommand(os.Stdout, logger)
	case "bench", "bench <type>":
		err = benchCommand(os.Stdout)
	default:
		err = fmt.Errorf("unknown command %q", ctx.Command())
	}
	if err != nil {
		writeError(err)
	}
}

func typesCommand(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, typ := range geometry.Types() {
		desc, err := geometry.Description(typ)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\n", typ, desc)
	}
	return tw.Flush()
}

func newCommand(w io.Writer) error {
	g, err := geometry.New(CLI.New.Type)
	if err != nil {
		return err
	}
	if CLI.New.Wavelength <= 0 {
		return fmt.Errorf("wavelength %v: %w", CLI.New.Wavelength, geometry.ErrRange)
	}
	g.Source.Wavelength = CLI.New.Wavelength
	return persist.WriteGeometry(w, g)
}

// buildSample applies the global lattice and orientation flags.
func buildSample() (*sample.Sample, error) {
	s := sample.New("cli")
	if len(CLI.Lattice) > 0 {
		if len(CLI.Lattice) != 6 {
			return nil, fmt.Errorf("lattice takes 6 values, got %d", len(CLI.Lattice))
		}
		p := CLI.Lattice
		lat, err := sample.NewLattice(p[0], p[1], p[2], p[3], p[4], p[5])
		if err != nil {
			return nil, err
		}
		if err := s.SetLattice(lat); err != nil {
			return nil, err
		}
	}
	if len(CLI.U) > 0 {
		if len(CLI.U) != 3 {
			return nil, fmt.Errorf("u takes 3 values, got %d", len(CLI.U))
		}
		s.SetU(CLI.U[0], CLI.U[1], CLI.U[2])
	}
	return s, nil
}

func loadList(path string, logger *slog.Logger) (*pseudo.EngineList, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	g, err := persist.ReadGeometry(r, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s, err := buildSample()
	if err != nil {
		return nil, err
	}
	return pseudo.NewEngineList(g, detector.New0D(), s)
}

func formatValues(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("%.6f", v)
	}
	return strings.Join(parts, " ")
}

func getCommand(w io.Writer, logger *slog.Logger) error {
	l, err := loadList(CLI.Get.File, logger)
	if err != nil {
		return err
	}
	if CLI.Get.Engine != "" {
		if _, err := l.Engine(CLI.Get.Engine); err != nil {
			return err
		}
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, e := range l.Engines() {
		if CLI.Get.Engine != "" && e.Name() != CLI.Get.Engine {
			continue
		}
		vals, err := e.Get()
		if err != nil {
			fmt.Fprintf(tw, "%s\t%s\terror: %v\n", e.Name(), e.Mode().Name(), err)
			continue
		}
		for i, p := range e.PseudoAxes() {
			fmt.Fprintf(tw, "%s\t%s\t%.6f\t%s\n", e.Name(), p.Name, vals[i], p.Unit)
		}
	}
	return tw.Flush()
}

func setCommand(w io.Writer, logger *slog.Logger) error {
	l, err := loadList(CLI.Set.File, logger)
	if err != nil {
		return err
	}
	e, err := l.Engine(CLI.Set.Engine)
	if err != nil {
		return err
	}
	if CLI.Set.Mode != "" {
		if err := e.SelectMode(CLI.Set.Mode); err != nil {
			return err
		}
	}
	names := make([]string, 0, len(CLI.Set.Param))
	for name := range CLI.Set.Param {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := e.SetParameter(name, CLI.Set.Param[name]); err != nil {
			return err
		}
	}
	// The file carries no reference state, so the start geometry is it.
	if err := e.Initialize(); err != nil {
		return err
	}

	if CLI.Set.All {
		list, err := e.Solve(CLI.Set.Values...)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "# %s\n", strings.Join(l.Geometry().AxisNames(), " "))
		for _, g := range list.Items() {
			fmt.Fprintln(w, formatValues(g.Values()))
		}
		return nil
	}

	list, err := e.Set(CLI.Set.Values...)
	if err != nil {
		return err
	}
	logger.Debug("solved", "engine", e.Name(), "mode", e.Mode().Name(), "solutions", list.Len())

	if CLI.Set.Out == "" {
		return persist.WriteGeometry(w, l.Geometry())
	}
	f, err := os.Create(CLI.Set.Out)
	if err != nil {
		return err
	}
	if err := persist.WriteGeometry(f, l.Geometry()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func benchCommand(w io.Writer) error {
	g, err := geometry.New(CLI.Bench.Type)
	if err != nil {
		return err
	}
	if len(CLI.Bench.Start) > 0 {
		if err := g.SetValues(CLI.Bench.Start...); err != nil {
			return err
		}
	}
	s, err := buildSample()
	if err != nil {
		return err
	}
	l, err := pseudo.NewEngineList(g, detector.New0D(), s)
	if err != nil {
		return err
	}
	e, err := l.Engine(CLI.Bench.Engine)
	if err != nil {
		return err
	}
	if CLI.Bench.Mode != "" {
		if err := e.SelectMode(CLI.Bench.Mode); err != nil {
			return err
		}
	}
	if err := e.Initialize(); err != nil {
		return err
	}

	var failed, solutions int
	start := time.Now()
	for i := 0; i < CLI.Bench.N; i++ {
		list, err := e.Solve(CLI.Bench.Target...)
		if err != nil {
			failed++
			continue
		}
		solutions += list.Len()
	}
	elapsed := time.Since(start)

	per := time.Duration(0)
	if CLI.Bench.N > 0 {
		per = elapsed / time.Duration(CLI.Bench.N)
	}
	fmt.Fprintf(w, "%s %s/%s: %d solves in %v (%v each), %d failed, %d solutions\n",
		g.Type, e.Name(), e.Mode().Name(), CLI.Bench.N, elapsed.Round(time.Microsecond), per, failed, solutions)
	return nil
}
