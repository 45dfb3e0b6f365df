// Package edgefield extracts the edge geometry of an image: a distance
// transform to the nearest edge, the orientation of that nearest edge at
// every pixel, and the ordered edge contours the two are derived from.
package edgefield

import (
	"fmt"
	"image"

	"chamfer-match/pkg/geometry"

	"gocv.io/x/gocv"
)

// Params controls edge extraction.
type Params struct {
	CannyThreshold   float64 // Lower hysteresis threshold; upper is 3x this value
	MinContourPoints int     // Contours with fewer points are discarded
}

// DefaultParams returns the standard extraction parameters.
func DefaultParams() Params {
	return Params{
		CannyThreshold:   50,
		MinContourPoints: 3,
	}
}

// Field holds the per-pixel edge geometry of one image.
//
// Distance and Orientation share the source image dimensions.
// EdgeOrientations is index-aligned with EdgePoints: EdgeOrientations[i][j]
// is the tangent orientation at EdgePoints[i][j], in radians.
type Field struct {
	Distance         gocv.Mat // CV_32F, distance to the nearest edge pixel
	Orientation      gocv.Mat // CV_32F, tangent orientation of the nearest edge
	EdgePoints       [][]image.Point
	EdgeOrientations [][]float32
}

// Close releases the underlying mats. The field must not be used afterwards.
func (f *Field) Close() {
	f.Distance.Close()
	f.Orientation.Close()
}

// Size returns the field dimensions as (cols, rows).
func (f *Field) Size() (int, int) {
	return f.Distance.Cols(), f.Distance.Rows()
}

// Compute extracts the edge field of an image. Color images are converted to
// grayscale first. The returned field owns its mats; callers must Close it.
func Compute(img gocv.Mat, p Params) (*Field, error) {
	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if img.Channels() == 3 {
		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	} else {
		img.CopyTo(&gray)
	}

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, float32(p.CannyThreshold), float32(3.0*p.CannyThreshold))

	// The distance transform measures the distance to the nearest zero pixel,
	// so the edge image is inverted before the transform.
	inverted := gocv.NewMat()
	defer inverted.Close()
	gocv.Threshold(edges, &inverted, 127, 255, gocv.ThresholdBinaryInv)

	dist := gocv.NewMat()
	labels := gocv.NewMat()
	defer labels.Close()
	gocv.DistanceTransform(inverted, &dist, &labels, gocv.DistL2, gocv.DistanceMask5, gocv.DistanceLabelPixel)

	contours := findContours(edges, p.MinContourPoints)
	orientations := contoursOrientation(contours)

	orientationMap := buildOrientationMap(labels, contours, orientations)

	return &Field{
		Distance:         dist,
		Orientation:      orientationMap,
		EdgePoints:       contours,
		EdgeOrientations: orientations,
	}, nil
}

// Simplify reduces a contour to a polygon approximation within epsilon.
func Simplify(contour []image.Point, epsilon float64) []image.Point {
	if len(contour) < 3 {
		return contour
	}

	pv := gocv.NewPointVectorFromPoints(contour)
	defer pv.Close()

	approx := gocv.ApproxPolyDP(pv, epsilon, true)
	defer approx.Close()

	pts := make([]image.Point, approx.Size())
	for i := 0; i < approx.Size(); i++ {
		pts[i] = approx.At(i)
	}
	return pts
}

// findContours extracts ordered edge contours from a binary edge image,
// discarding fragments too short to carry an orientation.
func findContours(edges gocv.Mat, minPoints int) [][]image.Point {
	found := gocv.FindContours(edges, gocv.RetrievalList, gocv.ChainApproxNone)
	defer found.Close()

	var contours [][]image.Point
	for i := 0; i < found.Size(); i++ {
		contour := found.At(i)
		if contour.Size() < minPoints {
			continue
		}

		pts := make([]image.Point, contour.Size())
		for j := 0; j < contour.Size(); j++ {
			pts[j] = contour.At(j)
		}
		contours = append(contours, pts)
	}
	return contours
}

// contoursOrientation computes the tangent orientation at every contour point
// from its previous and next neighbors. The first and last points inherit the
// orientation of their interior neighbor: a wrap-around difference on a noisy
// closed contour is unstable.
func contoursOrientation(contours [][]image.Point) [][]float32 {
	orientations := make([][]float32, len(contours))
	for i, contour := range contours {
		ori := make([]float32, len(contour))

		if len(contour) > 2 {
			for j := 1; j < len(contour)-1; j++ {
				theta, _, _ := geometry.PolarLine(
					geometry.PointInt{X: contour[j-1].X, Y: contour[j-1].Y},
					geometry.PointInt{X: contour[j+1].X, Y: contour[j+1].Y})
				ori[j] = float32(theta)
			}
			ori[0] = ori[1]
			ori[len(contour)-1] = ori[len(contour)-2]
		}
		// Under-determined contours keep orientation 0 by convention.

		orientations[i] = ori
	}
	return orientations
}

// contourIndex identifies one point within the contour set.
type contourIndex struct {
	contour int
	point   int
}

// buildOrientationMap maps every pixel to the orientation of its nearest edge
// point. The labels mat assigns each pixel the distance-transform label of its
// nearest edge pixel; reading the label at each contour point recovers the
// label -> (contour, point) correspondence.
func buildOrientationMap(labels gocv.Mat, contours [][]image.Point, orientations [][]float32) gocv.Mat {
	index := make(map[int32]contourIndex)
	for i, contour := range contours {
		for j, pt := range contour {
			index[labels.GetIntAt(pt.Y, pt.X)] = contourIndex{contour: i, point: j}
		}
	}

	rows, cols := labels.Rows(), labels.Cols()
	orientationMap := gocv.Zeros(rows, cols, gocv.MatTypeCV32F)
	if len(index) == 0 {
		return orientationMap
	}

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if idx, ok := index[labels.GetIntAt(y, x)]; ok {
				orientationMap.SetFloatAt(y, x, orientations[idx.contour][idx.point])
			}
		}
	}
	return orientationMap
}
