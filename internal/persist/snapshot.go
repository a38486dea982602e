package persist

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	opt "github.com/repeale/fp-go/option"

	"github.com/stuwilkins/hkl/internal/algebra"
	"github.com/stuwilkins/hkl/internal/detector"
	"github.com/stuwilkins/hkl/internal/geometry"
	"github.com/stuwilkins/hkl/internal/pseudo"
	"github.com/stuwilkins/hkl/internal/sample"
)

// SnapshotVersion is bumped whenever the encoded layout changes.
const SnapshotVersion = 1

// Snapshot is the serializable state of an engine list.
type Snapshot struct {
	Version  int           `cbor:"version"`
	SavedAt  time.Time     `cbor:"saved_at"`
	Geometry GeometryState `cbor:"geometry"`
	Detector DetectorState `cbor:"detector"`
	Sample   SampleState   `cbor:"sample"`
	Engines  []EngineState `cbor:"engines"`
}

type AxisState struct {
	Name  string          `cbor:"name"`
	Value float64         `cbor:"value"`
	Range *geometry.Range `cbor:"range,omitempty"`
}

type GeometryState struct {
	Type       string      `cbor:"type"`
	Wavelength float64     `cbor:"wavelength"`
	Axes       []AxisState `cbor:"axes"`
}

type DetectorState struct {
	Type   string `cbor:"type"`
	Holder int    `cbor:"holder"`
}

type ReflectionState struct {
	H      float64   `cbor:"h"`
	K      float64   `cbor:"k"`
	L      float64   `cbor:"l"`
	Values []float64 `cbor:"values"`
}

type SampleState struct {
	Name        string            `cbor:"name"`
	Lattice     [6]float64        `cbor:"lattice"`
	UAngles     [3]float64        `cbor:"u_angles"`
	U           algebra.Matrix    `cbor:"u"`
	Reflections []ReflectionState `cbor:"reflections,omitempty"`
}

type ParameterState struct {
	Name  string  `cbor:"name"`
	Value float64 `cbor:"value"`
}

// EngineState records the selected mode and its parameters. Initialization
// is not kept; restored engines start uninitialized.
type EngineState struct {
	Name       string           `cbor:"name"`
	Mode       string           `cbor:"mode"`
	Parameters []ParameterState `cbor:"parameters,omitempty"`
}

// Capture records the state of l.
func Capture(l *pseudo.EngineList, ts time.Time) Snapshot {
	g := l.Geometry()
	s := l.Sample()
	d := l.Detector()

	snap := Snapshot{
		Version: SnapshotVersion,
		SavedAt: ts.UTC(),
		Geometry: GeometryState{
			Type:       g.Type,
			Wavelength: g.Source.Wavelength,
		},
		Detector: DetectorState{Type: string(d.Type), Holder: d.Holder},
	}
	for _, a := range g.Axes() {
		st := AxisState{Name: a.Name, Value: a.Value()}
		if r := a.Range(); opt.IsSome(r) {
			rv := r.Value
			st.Range = &rv
		}
		snap.Geometry.Axes = append(snap.Geometry.Axes, st)
	}

	lat := s.Lattice()
	ux, uy, uz := s.UAngles()
	snap.Sample = SampleState{
		Name:    s.Name,
		Lattice: [6]float64{lat.A, lat.B, lat.C, lat.Alpha, lat.Beta, lat.Gamma},
		UAngles: [3]float64{ux, uy, uz},
		U:       s.U(),
	}
	for _, r := range s.Reflections() {
		snap.Sample.Reflections = append(snap.Sample.Reflections, ReflectionState{
			H: r.H, K: r.K, L: r.L, Values: r.Geometry.Values(),
		})
	}

	for _, e := range l.Engines() {
		st := EngineState{Name: e.Name(), Mode: e.Mode().Name()}
		for _, p := range e.Parameters() {
			st.Parameters = append(st.Parameters, ParameterState{Name: p.Name, Value: p.Value})
		}
		snap.Engines = append(snap.Engines, st)
	}
	return snap
}

// Restore builds a fresh engine list from the snapshot.
func (s Snapshot) Restore() (*pseudo.EngineList, error) {
	if s.Version != SnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d, want %d", s.Version, SnapshotVersion)
	}

	g, err := geometry.New(s.Geometry.Type)
	if err != nil {
		return nil, err
	}
	if s.Geometry.Wavelength > 0 {
		g.Source.Wavelength = s.Geometry.Wavelength
	}
	if len(s.Geometry.Axes) != g.Len() {
		return nil, fmt.Errorf("%s has %d axes, snapshot has %d: %w", g.Type, g.Len(), len(s.Geometry.Axes), geometry.ErrCountMismatch)
	}
	for _, st := range s.Geometry.Axes {
		a, err := g.AxisRef(st.Name)
		if err != nil {
			return nil, err
		}
		if st.Range != nil {
			a.SetRange(*st.Range)
		} else {
			a.ClearRange()
		}
		if err := a.SetValue(st.Value); err != nil {
			return nil, err
		}
	}

	d := detector.New0D()
	if s.Detector.Type != "" {
		d = detector.Detector{Type: detector.Type(s.Detector.Type), Holder: s.Detector.Holder}
	}
	if d.Type != detector.Type0D {
		return nil, fmt.Errorf("detector type %q: %w", d.Type, geometry.ErrUnknownType)
	}
	if d.Holder < 0 || d.Holder >= len(g.Holders()) {
		return nil, fmt.Errorf("detector holder %d of %d: %w", d.Holder, len(g.Holders()), geometry.ErrRange)
	}

	smp := sample.New(s.Sample.Name)
	lp := s.Sample.Lattice
	lat, err := sample.NewLattice(lp[0], lp[1], lp[2], lp[3], lp[4], lp[5])
	if err != nil {
		return nil, err
	}
	if err := smp.SetLattice(lat); err != nil {
		return nil, err
	}
	smp.SetU(s.Sample.UAngles[0], s.Sample.UAngles[1], s.Sample.UAngles[2])
	if err := smp.SetUMatrix(s.Sample.U); err != nil {
		return nil, err
	}
	for _, r := range s.Sample.Reflections {
		rg := g.Clone()
		if err := rg.SetValues(r.Values...); err != nil {
			return nil, fmt.Errorf("reflection (%g %g %g): %w", r.H, r.K, r.L, err)
		}
		smp.AddReflection(rg, d, r.H, r.K, r.L)
	}

	l, err := pseudo.NewEngineList(g, d, smp)
	if err != nil {
		return nil, err
	}
	for _, st := range s.Engines {
		e, err := l.Engine(st.Name)
		if err != nil {
			return nil, err
		}
		if err := e.SelectMode(st.Mode); err != nil {
			return nil, err
		}
		for _, p := range st.Parameters {
			if err := e.SetParameter(p.Name, p.Value); err != nil {
				return nil, err
			}
		}
	}
	return l, nil
}

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor encoder: %v", err))
	}
	return em
}

// Encode returns the canonical CBOR encoding of s; equal snapshots give
// equal bytes.
func Encode(s Snapshot) ([]byte, error) {
	data, err := encMode.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return data, nil
}

func Decode(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	return s, nil
}
