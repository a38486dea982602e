package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	opt "github.com/repeale/fp-go/option"

	"github.com/stuwilkins/hkl/internal/algebra"
	"github.com/stuwilkins/hkl/internal/geometry"
	"github.com/stuwilkins/hkl/internal/httputil"
	"github.com/stuwilkins/hkl/internal/metrics"
	"github.com/stuwilkins/hkl/internal/persist"
	"github.com/stuwilkins/hkl/internal/pseudo"
	"github.com/stuwilkins/hkl/internal/sample"
	"github.com/stuwilkins/hkl/internal/scan"
)

// maxBodyBytes caps request bodies; every request here is a handful of numbers.
const maxBodyBytes = 1 << 20

type handlers struct {
	deps   Deps
	logger *slog.Logger
}

// Response payloads. Angles are radians throughout.

type rangeView struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type axisView struct {
	Name  string     `json:"name"`
	Value float64    `json:"value"`
	Range *rangeView `json:"range,omitempty"`
}

type geometryView struct {
	Type       string     `json:"type"`
	Wavelength float64    `json:"wavelength"`
	Axes       []axisView `json:"axes"`
}

type paramView struct {
	Name  string     `json:"name"`
	Value float64    `json:"value"`
	Unit  string     `json:"unit,omitempty"`
	Range *rangeView `json:"range,omitempty"`
}

type engineView struct {
	Name        string      `json:"name"`
	Mode        string      `json:"mode"`
	Modes       []string    `json:"modes"`
	Initialized bool        `json:"initialized"`
	PseudoAxes  []paramView `json:"pseudo_axes"`
	Parameters  []paramView `json:"parameters"`
	Error       string      `json:"error,omitempty"`
}

type reflectionView struct {
	H      float64   `json:"h"`
	K      float64   `json:"k"`
	L      float64   `json:"l"`
	Values []float64 `json:"values"`
}

type sampleView struct {
	Name        string           `json:"name"`
	Lattice     [6]float64       `json:"lattice"`
	UAngles     [3]float64       `json:"u_angles"`
	U           algebra.Matrix   `json:"u"`
	UB          algebra.Matrix   `json:"ub"`
	Reflections []reflectionView `json:"reflections"`
}

type solutionsView struct {
	Engine    string      `json:"engine"`
	Mode      string      `json:"mode"`
	Targets   []float64   `json:"targets"`
	Solutions [][]float64 `json:"solutions"`
}

type scanPointView struct {
	Index     int       `json:"index"`
	Targets   []float64 `json:"targets"`
	Values    []float64 `json:"values,omitempty"`
	Solutions int       `json:"solutions"`
	Error     string    `json:"error,omitempty"`
}

func toRangeView(r opt.Option[geometry.Range]) *rangeView {
	if opt.IsNone(r) {
		return nil
	}
	return &rangeView{Min: r.Value.Min, Max: r.Value.Max}
}

func buildGeometryView(g *geometry.Geometry) geometryView {
	v := geometryView{Type: g.Type, Wavelength: g.Source.Wavelength}
	for _, a := range g.Axes() {
		v.Axes = append(v.Axes, axisView{Name: a.Name, Value: a.Value(), Range: toRangeView(a.Range())})
	}
	return v
}

func toParamViews(ps []pseudo.Parameter) []paramView {
	out := make([]paramView, 0, len(ps))
	for _, p := range ps {
		out = append(out, paramView{Name: p.Name, Value: p.Value, Unit: p.Unit, Range: toRangeView(p.Range)})
	}
	return out
}

// buildEngineView recomputes e. A failed computation is reported in the
// view and leaves the previous pseudo-axis values in place.
func buildEngineView(e *pseudo.Engine) engineView {
	v := engineView{
		Name:        e.Name(),
		Mode:        e.Mode().Name(),
		Modes:       e.Modes(),
		Initialized: e.Initialized(),
	}
	if _, err := e.Get(); err != nil {
		v.Error = err.Error()
	}
	v.PseudoAxes = toParamViews(e.PseudoAxes())
	v.Parameters = toParamViews(e.Parameters())
	return v
}

func buildSampleView(s *sample.Sample) sampleView {
	lat := s.Lattice()
	ux, uy, uz := s.UAngles()
	v := sampleView{
		Name:        s.Name,
		Lattice:     [6]float64{lat.A, lat.B, lat.C, lat.Alpha, lat.Beta, lat.Gamma},
		UAngles:     [3]float64{ux, uy, uz},
		U:           s.U(),
		UB:          s.UB(),
		Reflections: []reflectionView{},
	}
	for _, r := range s.Reflections() {
		v.Reflections = append(v.Reflections, reflectionView{H: r.H, K: r.K, L: r.L, Values: r.Geometry.Values()})
	}
	return v
}

func solutionValues(list *geometry.List) [][]float64 {
	out := make([][]float64, 0, list.Len())
	for _, g := range list.Items() {
		out = append(out, g.Values())
	}
	return out
}

// errStatus maps domain errors onto HTTP status codes.
func errStatus(err error) int {
	switch {
	case errors.Is(err, pseudo.ErrUnknownEngine),
		errors.Is(err, pseudo.ErrUnknownMode),
		errors.Is(err, pseudo.ErrUnknownParameter),
		errors.Is(err, geometry.ErrUnknownAxis),
		errors.Is(err, sample.ErrUnknownReflection),
		errors.Is(err, persist.ErrNoSnapshot):
		return http.StatusNotFound
	case errors.Is(err, geometry.ErrCountMismatch),
		errors.Is(err, geometry.ErrRange),
		errors.Is(err, geometry.ErrUnknownType),
		errors.Is(err, sample.ErrInvalidLattice),
		errors.Is(err, scan.ErrInvalidRequest),
		errors.Is(err, algebra.ErrDegenerate):
		return http.StatusBadRequest
	case errors.Is(err, pseudo.ErrNotInitialized):
		return http.StatusConflict
	case errors.Is(err, pseudo.ErrNoSolution):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *handlers) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := errStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	httputil.WriteError(w, status, err.Error())
}

// decodeBody decodes a JSON body into v, writing 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// GET /api/v1/geometry
func (h *handlers) getGeometry(w http.ResponseWriter, r *http.Request) {
	var v geometryView
	_ = h.deps.Session.View(func(l *pseudo.EngineList) error {
		v = buildGeometryView(l.Geometry())
		return nil
	})
	httputil.WriteJSON(w, http.StatusOK, v)
}

type geometryRequest struct {
	Wavelength *float64           `json:"wavelength,omitempty"`
	Values     []float64          `json:"values,omitempty"`
	Axes       map[string]float64 `json:"axes,omitempty"`
}

// PUT /api/v1/geometry
//
// Values replaces every axis in order; Axes sets axes by name afterwards.
// The update is all or nothing.
func (h *handlers) putGeometry(w http.ResponseWriter, r *http.Request) {
	var req geometryRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var v geometryView
	err := h.deps.Session.Do(func(l *pseudo.EngineList) error {
		g := l.Geometry()
		old, oldWl := g.Values(), g.Source.Wavelength
		if err := applyGeometry(g, req); err != nil {
			g.Source.Wavelength = oldWl
			_ = g.SetValues(old...)
			return err
		}
		v = buildGeometryView(g)
		return nil
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

func applyGeometry(g *geometry.Geometry, req geometryRequest) error {
	if req.Wavelength != nil {
		if *req.Wavelength <= 0 {
			return fmt.Errorf("wavelength %v: %w", *req.Wavelength, geometry.ErrRange)
		}
		g.Source.Wavelength = *req.Wavelength
	}
	if req.Values != nil {
		if err := g.SetValues(req.Values...); err != nil {
			return err
		}
	}
	names := make([]string, 0, len(req.Axes))
	for name := range req.Axes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := g.SetAxisValue(name, req.Axes[name]); err != nil {
			return err
		}
	}
	return nil
}

// GET /api/v1/geometry/text
func (h *handlers) getGeometryText(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	err := h.deps.Session.View(func(l *pseudo.EngineList) error {
		return persist.WriteGeometry(&buf, l.Geometry())
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// GET /api/v1/sample
func (h *handlers) getSample(w http.ResponseWriter, r *http.Request) {
	var v sampleView
	_ = h.deps.Session.View(func(l *pseudo.EngineList) error {
		v = buildSampleView(l.Sample())
		return nil
	})
	httputil.WriteJSON(w, http.StatusOK, v)
}

type sampleRequest struct {
	Lattice *[6]float64 `json:"lattice,omitempty"`
	U       *[3]float64 `json:"u,omitempty"`
}

// PUT /api/v1/sample
func (h *handlers) putSample(w http.ResponseWriter, r *http.Request) {
	var req sampleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var v sampleView
	err := h.deps.Session.Do(func(l *pseudo.EngineList) error {
		s := l.Sample()
		if req.Lattice != nil {
			p := *req.Lattice
			lat, err := sample.NewLattice(p[0], p[1], p[2], p[3], p[4], p[5])
			if err != nil {
				return err
			}
			if err := s.SetLattice(lat); err != nil {
				return err
			}
		}
		if req.U != nil {
			s.SetU(req.U[0], req.U[1], req.U[2])
		}
		v = buildSampleView(s)
		return nil
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

type reflectionRequest struct {
	H float64 `json:"h"`
	K float64 `json:"k"`
	L float64 `json:"l"`
}

// POST /api/v1/sample/reflections records hkl at the current geometry.
func (h *handlers) addReflection(w http.ResponseWriter, r *http.Request) {
	var req reflectionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var idx int
	_ = h.deps.Session.Do(func(l *pseudo.EngineList) error {
		idx = l.Sample().AddReflection(l.Geometry(), l.Detector(), req.H, req.K, req.L)
		return nil
	})
	httputil.WriteJSON(w, http.StatusCreated, map[string]int{"index": idx})
}

type ubRequest struct {
	Reflections [2]int `json:"reflections"`
}

// POST /api/v1/sample/ub orients the sample from two recorded reflections.
func (h *handlers) computeUB(w http.ResponseWriter, r *http.Request) {
	var req ubRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var v sampleView
	err := h.deps.Session.Do(func(l *pseudo.EngineList) error {
		s := l.Sample()
		if err := s.ComputeUBBusingLevy(req.Reflections[0], req.Reflections[1]); err != nil {
			return err
		}
		v = buildSampleView(s)
		return nil
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

// GET /api/v1/engines
func (h *handlers) listEngines(w http.ResponseWriter, r *http.Request) {
	var views []engineView
	_ = h.deps.Session.View(func(l *pseudo.EngineList) error {
		for _, e := range l.Engines() {
			views = append(views, buildEngineView(e))
		}
		return nil
	})
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"engines": views})
}

// engineDo runs fn on the engine named in the path with exclusive access,
// then responds with the engine's view.
func (h *handlers) engineDo(w http.ResponseWriter, r *http.Request, mutate bool, fn func(e *pseudo.Engine) error) {
	var v engineView
	run := h.deps.Session.View
	if mutate {
		run = h.deps.Session.Do
	}
	err := run(func(l *pseudo.EngineList) error {
		e, err := l.Engine(r.PathValue("name"))
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
		v = buildEngineView(e)
		return nil
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

// GET /api/v1/engines/{name}
func (h *handlers) getEngine(w http.ResponseWriter, r *http.Request) {
	h.engineDo(w, r, false, func(*pseudo.Engine) error { return nil })
}

type modeRequest struct {
	Mode string `json:"mode"`
}

// PUT /api/v1/engines/{name}/mode
func (h *handlers) selectMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.engineDo(w, r, true, func(e *pseudo.Engine) error {
		return e.SelectMode(req.Mode)
	})
}

type parametersRequest struct {
	Parameters map[string]float64 `json:"parameters"`
}

// PUT /api/v1/engines/{name}/parameters
//
// Parameters of the selected mode are set all or nothing.
func (h *handlers) setParameters(w http.ResponseWriter, r *http.Request) {
	var req parametersRequest
	if !decodeBody(w, r, &req) {
		return
	}
	names := make([]string, 0, len(req.Parameters))
	for name := range req.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)

	h.engineDo(w, r, true, func(e *pseudo.Engine) error {
		old := e.Parameters()
		for _, name := range names {
			if err := e.SetParameter(name, req.Parameters[name]); err != nil {
				for _, p := range old {
					_ = e.SetParameter(p.Name, p.Value)
				}
				return err
			}
		}
		return nil
	})
}

// POST /api/v1/engines/{name}/initialize
func (h *handlers) initialize(w http.ResponseWriter, r *http.Request) {
	h.engineDo(w, r, true, func(e *pseudo.Engine) error {
		return e.Initialize()
	})
}

type valuesRequest struct {
	Values []float64 `json:"values"`
}

// POST /api/v1/engines/{name}/set moves the geometry to the solution
// nearest the current one.
func (h *handlers) set(w http.ResponseWriter, r *http.Request) {
	var req valuesRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var resp struct {
		solutionsView
		Geometry geometryView `json:"geometry"`
	}
	err := h.deps.Session.Do(func(l *pseudo.EngineList) error {
		e, err := l.Engine(r.PathValue("name"))
		if err != nil {
			return err
		}
		mode := e.Mode().Name()
		list, err := e.Set(req.Values...)
		if err != nil {
			outcome := "error"
			if errors.Is(err, pseudo.ErrNoSolution) {
				outcome = "no_solution"
			}
			metrics.ObserveSet(e.Name(), mode, outcome, 0)
			return err
		}
		metrics.ObserveSet(e.Name(), mode, "ok", list.Len())
		resp.solutionsView = solutionsView{
			Engine:    e.Name(),
			Mode:      mode,
			Targets:   req.Values,
			Solutions: solutionValues(list),
		}
		resp.Geometry = buildGeometryView(l.Geometry())
		return nil
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// POST /api/v1/engines/{name}/solve lists every solution without moving.
func (h *handlers) solve(w http.ResponseWriter, r *http.Request) {
	var req valuesRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var resp solutionsView
	err := h.deps.Session.View(func(l *pseudo.EngineList) error {
		e, err := l.Engine(r.PathValue("name"))
		if err != nil {
			return err
		}
		list, err := e.Solve(req.Values...)
		if err != nil {
			return err
		}
		resp = solutionsView{
			Engine:    e.Name(),
			Mode:      e.Mode().Name(),
			Targets:   req.Values,
			Solutions: solutionValues(list),
		}
		return nil
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type scanRequest struct {
	Engine string    `json:"engine"`
	Mode   string    `json:"mode,omitempty"`
	From   []float64 `json:"from"`
	To     []float64 `json:"to"`
	Points int       `json:"points"`
}

// POST /api/v1/scan solves a straight trajectory on a copy of the session.
func (h *handlers) scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Points > h.deps.MaxScanPoints {
		httputil.WriteError(w, http.StatusBadRequest,
			fmt.Sprintf("too many points: %d exceeds limit of %d", req.Points, h.deps.MaxScanPoints),
			"max_points", h.deps.MaxScanPoints,
		)
		return
	}

	points, err := h.deps.Scans.Run(r.Context(), h.deps.Session.Clone(), scan.Request{
		Engine: req.Engine,
		Mode:   req.Mode,
		From:   req.From,
		To:     req.To,
		Points: req.Points,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	views := make([]scanPointView, len(points))
	for i, p := range points {
		views[i] = scanPointView{Index: p.Index, Targets: p.Targets, Values: p.Values, Solutions: p.Solutions}
		if p.Err != nil {
			views[i].Error = p.Err.Error()
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"engine": req.Engine,
		"points": views,
	})
}

// GET /api/v1/snapshots
func (h *handlers) listSnapshots(w http.ResponseWriter, r *http.Request) {
	times, err := h.deps.Store.List()
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	out := make([]string, len(times))
	for i, t := range times {
		out[i] = t.UTC().Format(time.RFC3339)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"snapshots": out})
}

// POST /api/v1/snapshots
func (h *handlers) saveSnapshot(w http.ResponseWriter, r *http.Request) {
	var snap persist.Snapshot
	_ = h.deps.Session.View(func(l *pseudo.EngineList) error {
		snap = persist.Capture(l, time.Now())
		return nil
	})
	path, err := h.deps.Store.Save(snap)
	if err != nil {
		metrics.IncSnapshots("save_error")
		h.writeErr(w, r, err)
		return
	}
	metrics.IncSnapshots("saved")
	h.logger.Info("snapshot saved", "path", path)
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{
		"path":     path,
		"saved_at": snap.SavedAt.Format(time.RFC3339),
	})
}

// POST /api/v1/snapshots/restore replaces the session with the newest
// snapshot. Restored engines must be initialized again.
func (h *handlers) restoreSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ts, err := h.deps.Store.LoadLatest()
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	l, err := snap.Restore()
	if err != nil {
		metrics.IncSnapshots("restore_error")
		h.writeErr(w, r, err)
		return
	}
	h.deps.Session.Replace(l)
	metrics.IncSnapshots("restored")
	h.logger.Info("snapshot restored", "saved_at", ts.Format(time.RFC3339))

	var v geometryView
	_ = h.deps.Session.View(func(l *pseudo.EngineList) error {
		v = buildGeometryView(l.Geometry())
		return nil
	})
	httputil.WriteJSON(w, http.StatusOK, v)
}
