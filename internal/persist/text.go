// Package persist saves and restores diffractometer state: a line-oriented
// text form for a single geometry, a CBOR snapshot for a whole session and
// a directory of timestamped snapshot files.
package persist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"

	opt "github.com/repeale/fp-go/option"

	"github.com/stuwilkins/hkl/internal/geometry"
)

var (
	ErrMissingHeader  = errors.New("missing type header")
	ErrNoSnapshot     = errors.New("no snapshot found")
	ErrMalformedRange = errors.New("malformed range line")
)

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// WriteGeometry writes g as a "# type" header, a "# wavelength" line, one
// "# range name min max" (or "# range name none") line per axis and then
// one "name value" line per axis in geometry order. Values are radians
// written with full precision so reading them back is exact.
func WriteGeometry(w io.Writer, g *geometry.Geometry) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# type %s\n", g.Type)
	fmt.Fprintf(bw, "# wavelength %s\n", formatFloat(g.Source.Wavelength))
	for _, a := range g.Axes() {
		if r := a.Range(); opt.IsSome(r) {
			fmt.Fprintf(bw, "# range %s %s %s\n", a.Name, formatFloat(r.Value.Min), formatFloat(r.Value.Max))
		} else {
			fmt.Fprintf(bw, "# range %s none\n", a.Name)
		}
	}
	for _, a := range g.Axes() {
		fmt.Fprintf(bw, "%s %s\n", a.Name, formatFloat(a.Value()))
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing geometry: %w", err)
	}
	return nil
}

// ReadGeometry parses the text form written by WriteGeometry into a fresh
// geometry of the declared type. Malformed lines and unknown axes are
// skipped with a warning log; the remaining lines must name every axis.
// Axes without a range line keep the type's default range. A range line
// applies to values read after it.
func ReadGeometry(r io.Reader, logger *slog.Logger) (*geometry.Geometry, error) {
	scanner := bufio.NewScanner(r)
	var (
		g      *geometry.Geometry
		seen   = make(map[string]bool)
		lineNo int
	)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if rest, ok := strings.CutPrefix(line, "#"); ok {
			fields := strings.Fields(rest)
			if len(fields) == 0 {
				continue
			}
			if fields[0] == "range" {
				if g == nil {
					logger.Warn("skipping range before type header", "line", lineNo)
					continue
				}
				if err := applyRange(g, fields[1:]); err != nil {
					if errors.Is(err, geometry.ErrUnknownAxis) {
						logger.Warn("skipping range of unknown axis", "line", lineNo, "text", line)
						continue
					}
					return nil, fmt.Errorf("line %d: %w", lineNo, err)
				}
				continue
			}
			if len(fields) != 2 {
				continue
			}
			switch fields[0] {
			case "type":
				if g != nil {
					logger.Warn("ignoring repeated type header", "line", lineNo, "type", fields[1])
					continue
				}
				var err error
				if g, err = geometry.New(fields[1]); err != nil {
					return nil, err
				}
			case "wavelength":
				if g == nil {
					logger.Warn("skipping wavelength before type header", "line", lineNo)
					continue
				}
				wl, err := strconv.ParseFloat(fields[1], 64)
				if err != nil || wl <= 0 {
					logger.Warn("skipping invalid wavelength", "line", lineNo, "value", fields[1])
					continue
				}
				g.Source.Wavelength = wl
			}
			continue
		}

		if g == nil {
			return nil, fmt.Errorf("line %d before header: %w", lineNo, ErrMissingHeader)
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			logger.Warn("skipping malformed axis line", "line", lineNo, "text", line)
			continue
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			logger.Warn("skipping axis line with invalid value", "line", lineNo, "axis", fields[0], "error", err)
			continue
		}
		if err := g.SetAxisValue(fields[0], v); err != nil {
			if errors.Is(err, geometry.ErrUnknownAxis) {
				logger.Warn("skipping unknown axis", "line", lineNo, "axis", fields[0])
				continue
			}
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		seen[fields[0]] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading geometry: %w", err)
	}
	if g == nil {
		return nil, ErrMissingHeader
	}
	if len(seen) != g.Len() {
		return nil, fmt.Errorf("%s has %d axes, read %d: %w", g.Type, g.Len(), len(seen), geometry.ErrCountMismatch)
	}
	return g, nil
}

// applyRange handles the fields after "# range": a name followed by
// either "none" or min and max.
func applyRange(g *geometry.Geometry, fields []string) error {
	if len(fields) < 2 {
		return fmt.Errorf("range %v: %w", fields, ErrMalformedRange)
	}
	a, err := g.AxisRef(fields[0])
	if err != nil {
		return err
	}
	if len(fields) == 2 && fields[1] == "none" {
		a.ClearRange()
		return nil
	}
	if len(fields) != 3 {
		return fmt.Errorf("range %v: %w", fields, ErrMalformedRange)
	}
	lo, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return fmt.Errorf("range %s min: %w", fields[0], ErrMalformedRange)
	}
	hi, err := strconv.ParseFloat(fields[2], 64)
	if err != nil || math.IsNaN(lo) || math.IsNaN(hi) || lo > hi {
		return fmt.Errorf("range %s [%s, %s]: %w", fields[0], fields[1], fields[2], ErrMalformedRange)
	}
	a.SetRange(geometry.Range{Min: lo, Max: hi})
	return nil
}
