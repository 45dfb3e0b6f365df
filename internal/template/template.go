// Package template prepares template and query images into the searchable
// representation the matcher consumes: an edge field, a filled silhouette
// mask, polygon-simplified contour lines, and a sparse descriptor grid.
package template

import (
	"fmt"
	"image"
	"image/color"

	"chamfer-match/internal/edgefield"
	"chamfer-match/pkg/geometry"

	"gocv.io/x/gocv"
)

// Line is one simplified contour segment together with its polar equation.
type Line struct {
	Start  geometry.PointInt
	End    geometry.PointInt
	Length float64
	Rho    float64
	Theta  float64
}

// Descriptor is one grid probe: a template-local offset plus the distance and
// orientation sampled there when the template was built.
type Descriptor struct {
	Offset      image.Point
	Distance    float32
	Orientation float32
}

// BuildParams controls template and query preparation.
type BuildParams struct {
	Edge          edgefield.Params
	ApproxEpsilon float64 // Polygon simplification tolerance, in pixels
	GridRows      int     // Descriptor sampling grid rows
	GridCols      int     // Descriptor sampling grid columns
}

// DefaultBuildParams returns the standard preparation parameters.
func DefaultBuildParams() BuildParams {
	return BuildParams{
		Edge:          edgefield.DefaultParams(),
		ApproxEpsilon: 3.0,
		GridRows:      4,
		GridCols:      4,
	}
}

// ROIPair carries the two regions attached to a registered template: where it
// was extracted from its source image, and the query sub-region to restrict
// searches to. Either may be empty.
type ROIPair struct {
	Location geometry.RectInt
	QueryROI geometry.RectInt
}

// Template is the searchable representation of one template image at one
// scale. It is immutable after Build; Close releases its mats.
type Template struct {
	Field       *edgefield.Field
	Mask        gocv.Mat // CV_8U filled silhouette
	Lines       [][]Line
	Descriptors []Descriptor
	Location    geometry.RectInt // Where the template was cut from its source image
	QueryROI    geometry.RectInt // Search restriction; empty means whole image
}

// Close releases the template's mats.
func (t *Template) Close() {
	t.Field.Close()
	t.Mask.Close()
}

// Size returns the template dimensions as (cols, rows).
func (t *Template) Size() (int, int) {
	return t.Field.Size()
}

// Build prepares a template from an image. A template whose edge extraction
// yields no usable contours is degenerate and rejected with an error.
func Build(img gocv.Mat, p BuildParams) (*Template, error) {
	field, err := edgefield.Compute(img, p.Edge)
	if err != nil {
		return nil, fmt.Errorf("edge extraction: %w", err)
	}
	if len(field.EdgePoints) == 0 {
		field.Close()
		return nil, fmt.Errorf("degenerate template: no edge points")
	}

	lines, simplified := approximateContours(field.EdgePoints, p.ApproxEpsilon)
	mask := fillMask(simplified, field.Distance.Rows(), field.Distance.Cols())
	descriptors := sampleDescriptors(field, p.GridRows, p.GridCols)

	return &Template{
		Field:       field,
		Mask:        mask,
		Lines:       lines,
		Descriptors: descriptors,
	}, nil
}

// Query is the per-search counterpart of Template, computed fresh for every
// query image and replaced wholesale on the next search.
type Query struct {
	Field *edgefield.Field
	Mask  gocv.Mat
	Lines [][]Line
}

// Close releases the query's mats.
func (q *Query) Close() {
	q.Field.Close()
	q.Mask.Close()
}

// BuildQuery prepares a query image. A query without edges is not an error:
// it simply cannot match anything.
func BuildQuery(img gocv.Mat, p BuildParams) (*Query, error) {
	field, err := edgefield.Compute(img, p.Edge)
	if err != nil {
		return nil, fmt.Errorf("edge extraction: %w", err)
	}

	lines, simplified := approximateContours(field.EdgePoints, p.ApproxEpsilon)
	mask := fillMask(simplified, field.Distance.Rows(), field.Distance.Cols())

	return &Query{
		Field: field,
		Mask:  mask,
		Lines: lines,
	}, nil
}

// approximateContours simplifies every contour into a polygon and converts
// consecutive vertex pairs into polar line segments. It returns the segments
// and the simplified vertex sets used to build them.
func approximateContours(contours [][]image.Point, epsilon float64) ([][]Line, [][]image.Point) {
	lines := make([][]Line, 0, len(contours))
	simplified := make([][]image.Point, 0, len(contours))

	for _, contour := range contours {
		approx := edgefield.Simplify(contour, epsilon)

		segs := make([]Line, 0, len(approx))
		for j := 0; j+1 < len(approx); j++ {
			start := geometry.PointInt{X: approx[j].X, Y: approx[j].Y}
			end := geometry.PointInt{X: approx[j+1].X, Y: approx[j+1].Y}
			theta, rho, length := geometry.PolarLine(start, end)
			segs = append(segs, Line{
				Start:  start,
				End:    end,
				Length: length,
				Rho:    rho,
				Theta:  theta,
			})
		}

		lines = append(lines, segs)
		simplified = append(simplified, approx)
	}
	return lines, simplified
}

// fillMask draws every simplified contour filled into a binary silhouette.
func fillMask(contours [][]image.Point, rows, cols int) gocv.Mat {
	mask := gocv.Zeros(rows, cols, gocv.MatTypeCV8U)
	if len(contours) == 0 {
		return mask
	}

	pv := gocv.NewPointsVectorFromPoints(contours)
	defer pv.Close()

	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	for i := 0; i < pv.Size(); i++ {
		gocv.DrawContours(&mask, pv, i, white, -1)
	}
	return mask
}

// sampleDescriptors probes the template's own distance and orientation fields
// on an evenly spaced interior grid. The samples are fixed for the lifetime
// of the template and drive the cheap rejection cascade during search.
func sampleDescriptors(field *edgefield.Field, gridRows, gridCols int) []Descriptor {
	cols, rows := field.Size()

	descriptors := make([]Descriptor, 0, gridRows*gridCols)
	for r := 0; r < gridRows; r++ {
		y := (r + 1) * rows / (gridRows + 1)
		for c := 0; c < gridCols; c++ {
			x := (c + 1) * cols / (gridCols + 1)
			descriptors = append(descriptors, Descriptor{
				Offset:      image.Point{X: x, Y: y},
				Distance:    field.Distance.GetFloatAt(y, x),
				Orientation: field.Orientation.GetFloatAt(y, x),
			})
		}
	}
	return descriptors
}
