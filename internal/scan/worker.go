// Package scan evaluates an engine along a straight trajectory of
// pseudo-axis targets using a fixed pool of workers.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/stuwilkins/hkl/internal/metrics"
	"github.com/stuwilkins/hkl/internal/pseudo"
)

var ErrInvalidRequest = errors.New("invalid scan request")

// Request describes a linear scan from From to To in Points steps.
type Request struct {
	Engine string
	Mode   string // empty keeps the engine's selected mode
	From   []float64
	To     []float64
	Points int
}

// Point is the outcome of one trajectory target. Values holds the axis
// values of the solution nearest the starting geometry.
type Point struct {
	Index     int
	Targets   []float64
	Values    []float64
	Solutions int
	Err       error
}

// Trajectory returns n evenly spaced targets from from to to inclusive.
func Trajectory(from, to []float64, n int) ([][]float64, error) {
	if n < 1 {
		return nil, fmt.Errorf("points = %d: %w", n, ErrInvalidRequest)
	}
	if len(from) != len(to) {
		return nil, fmt.Errorf("from has %d values, to has %d: %w", len(from), len(to), ErrInvalidRequest)
	}
	out := make([][]float64, n)
	for i := range out {
		t := 0.0
		if n > 1 {
			t = float64(i) / float64(n-1)
		}
		p := make([]float64, len(from))
		for j := range p {
			p[j] = from[j] + t*(to[j]-from[j])
		}
		out[i] = p
	}
	return out, nil
}

type scanJob struct {
	index   int
	targets []float64
}

// WorkerPool runs scan points in parallel, each on its own clone of the
// engine list.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

func (wp *WorkerPool) Workers() int { return wp.workers }

// Run solves every point of req starting from the state of l, which is
// not modified. Points come back in trajectory order; points that could
// not be solved carry their error. Cancelling ctx stops feeding new points
// and returns ctx.Err().
func (wp *WorkerPool) Run(ctx context.Context, l *pseudo.EngineList, req Request) ([]Point, error) {
	targets, err := Trajectory(req.From, req.To, req.Points)
	if err != nil {
		return nil, err
	}

	start := l.Clone()
	e, err := start.Engine(req.Engine)
	if err != nil {
		return nil, err
	}
	if req.Mode != "" && req.Mode != e.Mode().Name() {
		if err := e.SelectMode(req.Mode); err != nil {
			return nil, err
		}
		if err := e.Initialize(); err != nil {
			return nil, err
		}
	}

	jobs := make(chan scanJob, wp.workers*2)
	results := make(chan Point, wp.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				result := solvePoint(start.Clone(), req.Engine, job)
				select {
				case results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, t := range targets {
			select {
			case jobs <- scanJob{index: i, targets: t}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	points := make([]Point, len(targets))
	var okCount, errCount int
	for result := range results {
		points[result.Index] = result
		if result.Err != nil {
			errCount++
			wp.logger.Debug("scan point failed",
				"engine", req.Engine,
				"index", result.Index,
				"targets", result.Targets,
				"error", result.Err,
			)
			continue
		}
		okCount++
	}
	metrics.AddScanPoints(okCount, errCount)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wp.logger.Info("scan complete",
		"engine", req.Engine,
		"mode", e.Mode().Name(),
		"points", len(targets),
		"solved", okCount,
		"failed", errCount,
	)
	return points, nil
}

// solvePoint runs on a private clone, so engines never share state across
// goroutines.
func solvePoint(l *pseudo.EngineList, engine string, job scanJob) Point {
	p := Point{Index: job.index, Targets: job.targets}
	e, err := l.Engine(engine)
	if err != nil {
		p.Err = err
		return p
	}
	sols, err := e.Solve(job.targets...)
	if err != nil {
		p.Err = err
		return p
	}
	p.Values = sols.At(0).Values()
	p.Solutions = sols.Len()
	return p
}
