// Package detector describes where the detector sits in a geometry.
package detector

import (
	"github.com/golang/geo/r3"

	"github.com/stuwilkins/hkl/internal/geometry"
)

// Type tags the detector kind. Only point detectors are modelled.
type Type string

const Type0D Type = "0D"

// Detector is a point detector mounted on one holder of the geometry.
type Detector struct {
	Type   Type
	Holder int
}

// New0D returns a point detector on the standard detector holder.
func New0D() Detector {
	return Detector{Type: Type0D, Holder: geometry.DetectorHolder}
}

// Kf returns the outgoing wave vector seen by the detector.
func (d Detector) Kf(g *geometry.Geometry) r3.Vector {
	return g.Kf(d.Holder)
}

// ScatteringVector returns Q for the detector's position.
func (d Detector) ScatteringVector(g *geometry.Geometry) r3.Vector {
	return g.ScatteringVector(d.Holder)
}
