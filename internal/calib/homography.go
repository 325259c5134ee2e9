// Package calib maps pixel coordinates from the camera frame to metric
// pitch coordinates using a planar homography.
package calib

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/pitchdata/match.report/internal/pitch"
)

// CalibrationError indicates the supplied homography or reference points
// cannot produce a usable projection. It is fatal for pipeline construction.
type CalibrationError struct {
	Reason string
}

func (e *CalibrationError) Error() string {
	return "calibration error: " + e.Reason
}

// PixelPoint is a position in image coordinates.
type PixelPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Correspondence pairs a pixel location with its known pitch location.
type Correspondence struct {
	Pixel PixelPoint
	Pitch pitch.Point
}

// Homography projects pixel coordinates onto the pitch plane. It is
// immutable after construction; the inverse is computed once and cached.
type Homography struct {
	fwd *mat.Dense // 3x3, pixel -> pitch
	inv *mat.Dense // 3x3, pitch -> pixel
}

const minHomographyDet = 1e-9

// FromMatrix builds a Homography from a row-major 3x3 matrix. Returns a
// CalibrationError when the matrix is singular or contains non-finite values.
func FromMatrix(m [9]float64) (*Homography, error) {
	for i, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &CalibrationError{Reason: fmt.Sprintf("matrix element %d is not finite", i)}
		}
	}

	fwd := mat.NewDense(3, 3, m[:])
	det := mat.Det(fwd)
	if math.Abs(det) < minHomographyDet {
		return nil, &CalibrationError{Reason: fmt.Sprintf("matrix is singular (det=%g)", det)}
	}

	var inv mat.Dense
	if err := inv.Inverse(fwd); err != nil {
		return nil, &CalibrationError{Reason: "matrix is not invertible: " + err.Error()}
	}

	return &Homography{fwd: fwd, inv: &inv}, nil
}

// FromCorrespondences estimates a homography from at least four pixel/pitch
// point pairs using the direct linear transform, solved by SVD. Degenerate
// inputs return a CalibrationError: fewer than four pairs, or any three
// points collinear on either side. Three collinear points leave the DLT
// system rank-deficient even when a fourth point sits off the line.
func FromCorrespondences(pairs []Correspondence) (*Homography, error) {
	if len(pairs) < 4 {
		return nil, &CalibrationError{Reason: fmt.Sprintf("need at least 4 correspondences, got %d", len(pairs))}
	}

	src := make([]PixelPoint, len(pairs))
	dst := make([]pitch.Point, len(pairs))
	for i, p := range pairs {
		src[i] = p.Pixel
		dst[i] = p.Pitch
	}
	if pixelsDegenerate(src) {
		return nil, &CalibrationError{Reason: "three or more pixel reference points are collinear"}
	}
	if pitchDegenerate(dst) {
		return nil, &CalibrationError{Reason: "three or more pitch reference points are collinear"}
	}

	// Each correspondence contributes two rows of the DLT system A h = 0.
	a := mat.NewDense(2*len(pairs), 9, nil)
	for i, p := range pairs {
		sx, sy := p.Pixel.X, p.Pixel.Y
		dx, dy := p.Pitch.X, p.Pitch.Y
		a.SetRow(2*i, []float64{-sx, -sy, -1, 0, 0, 0, dx * sx, dx * sy, dx})
		a.SetRow(2*i+1, []float64{0, 0, 0, -sx, -sy, -1, dy * sx, dy * sy, dy})
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFullV); !ok {
		return nil, &CalibrationError{Reason: "SVD factorization failed"}
	}

	var v mat.Dense
	svd.VTo(&v)

	// The solution is the right singular vector for the smallest singular
	// value, i.e. the last column of V.
	h := make([]float64, 9)
	for i := 0; i < 9; i++ {
		h[i] = v.At(i, 8)
	}
	if math.Abs(h[8]) < 1e-12 {
		return nil, &CalibrationError{Reason: "degenerate solution (h33 near zero)"}
	}
	for i := range h {
		h[i] /= h[8]
	}

	var m [9]float64
	copy(m[:], h)
	return FromMatrix(m)
}

// Project maps a pixel point to pitch coordinates.
func (h *Homography) Project(p PixelPoint) (pitch.Point, error) {
	x, y, err := apply(h.fwd, p.X, p.Y)
	if err != nil {
		return pitch.Point{}, err
	}
	return pitch.Point{X: x, Y: y}, nil
}

// Unproject maps a pitch point back to pixel coordinates using the cached
// inverse.
func (h *Homography) Unproject(p pitch.Point) (PixelPoint, error) {
	x, y, err := apply(h.inv, p.X, p.Y)
	if err != nil {
		return PixelPoint{}, err
	}
	return PixelPoint{X: x, Y: y}, nil
}

func apply(m *mat.Dense, x, y float64) (float64, float64, error) {
	w := m.At(2, 0)*x + m.At(2, 1)*y + m.At(2, 2)
	if math.Abs(w) < 1e-12 {
		return 0, 0, &CalibrationError{Reason: "point maps to the plane at infinity"}
	}
	px := (m.At(0, 0)*x + m.At(0, 1)*y + m.At(0, 2)) / w
	py := (m.At(1, 0)*x + m.At(1, 1)*y + m.At(1, 2)) / w
	return px, py, nil
}

// pixelsDegenerate reports whether any three points lie on one line, using
// the cross product area test over all triples. Point counts are small, so
// the cubic scan is fine.
func pixelsDegenerate(pts []PixelPoint) bool {
	coords := make([][2]float64, len(pts))
	for i, p := range pts {
		coords[i] = [2]float64{p.X, p.Y}
	}
	return anyThreeCollinear(coords)
}

func pitchDegenerate(pts []pitch.Point) bool {
	coords := make([][2]float64, len(pts))
	for i, p := range pts {
		coords[i] = [2]float64{p.X, p.Y}
	}
	return anyThreeCollinear(coords)
}

func anyThreeCollinear(pts [][2]float64) bool {
	if len(pts) < 3 {
		return true
	}
	const eps = 1e-9
	for i := 0; i < len(pts)-2; i++ {
		for j := i + 1; j < len(pts)-1; j++ {
			bx := pts[j][0] - pts[i][0]
			by := pts[j][1] - pts[i][1]
			for k := j + 1; k < len(pts); k++ {
				cx := pts[k][0] - pts[i][0]
				cy := pts[k][1] - pts[i][1]
				if math.Abs(bx*cy-by*cx) <= eps {
					return true
				}
			}
		}
	}
	return false
}
