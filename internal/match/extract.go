package match

import (
	"math"
	"sort"

	"chamfer-match/internal/template"
	"chamfer-match/pkg/geometry"

	"gonum.org/v1/gonum/mat"
)

// maxPeakIterations bounds the peak-extraction loop. The greedy loop below
// could otherwise keep yielding near-threshold cells on a flat cost map; the
// cap trades exhaustiveness for bounded work.
const maxPeakIterations = 100

// extractDetections pulls detections out of a cost map: repeatedly find the
// global minimum cell, accept it if it is below the threshold, and overwrite
// it with the +Inf sentinel so the next iteration finds a different offset.
// Ties go to the first minimum in row-major scan order.
func extractDetections(costMap *mat.Dense, tpl *template.Template, scale, threshold float64) []Detection {
	if costMap == nil {
		return nil
	}
	tW, tH := tpl.Size()

	var detections []Detection
	for iteration := 0; iteration < maxPeakIterations; iteration++ {
		minVal, minY, minX := minCell(costMap)
		if !(minVal < threshold) {
			break
		}
		costMap.Set(minY, minX, math.Inf(1))

		detections = append(detections, Detection{
			Bounds: geometry.NewRectInt(minX, minY, tW, tH),
			Cost:   minVal,
			Scale:  scale,
		})
	}
	return detections
}

// minCell returns the smallest cell value and its position, scanning in
// row-major order so equal costs resolve to the first cell found.
func minCell(costMap *mat.Dense) (float64, int, int) {
	rows, cols := costMap.Dims()

	minVal := math.Inf(1)
	minY, minX := 0, 0
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if v := costMap.At(y, x); v < minVal {
				minVal = v
				minY, minX = y, x
			}
		}
	}
	return minVal, minY, minX
}

// sortByCost orders detections by strictly non-decreasing cost.
func sortByCost(detections []Detection) {
	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Cost < detections[j].Cost
	})
}
