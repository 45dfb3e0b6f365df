package match

import (
	"math"
	"runtime"
	"sync"

	"chamfer-match/internal/template"

	"gonum.org/v1/gonum/mat"
)

// computeMatchingMap evaluates the selected cost variant at every candidate
// offset and returns the cost map, sized (queryH-tplH+1) x (queryW-tplW+1).
// It returns nil when the query is smaller than the template in either
// dimension. Unevaluated cells keep the +Inf sentinel.
//
// Candidates go through two stages: the grid-descriptor rejection cascade
// marks offsets whose cheap probes disagree with the template, then the cost
// variant is evaluated for the survivors. Both stages are parallel over rows;
// each worker owns disjoint rows of the map and the rejection mask.
func (m *Matcher) computeMatchingMap(tpl *template.Template, o Options) *mat.Dense {
	qW, qH := m.query.Field.Size()
	tW, tH := tpl.Size()

	mapW := qW - tW + 1
	mapH := qH - tH + 1
	if mapW <= 0 || mapH <= 0 {
		return nil
	}

	data := make([]float64, mapH*mapW)
	for i := range data {
		data[i] = math.Inf(1)
	}
	costMap := mat.NewDense(mapH, mapW, data)

	startX, endX, startY, endY := m.searchBounds(tpl, mapW, mapH)
	if startX >= endX || startY >= endY {
		return costMap
	}

	xStep, yStep := o.XStep, o.YStep
	if xStep < 1 {
		xStep = 1
	}
	if yStep < 1 {
		yStep = 1
	}

	var candidateRows []int
	for y := startY; y < endY; y += yStep {
		candidateRows = append(candidateRows, y)
	}

	rejected := make([]bool, mapH*mapW)
	if m.rejection == GridDescriptors {
		qDist := m.query.Field.Distance
		qOri := m.query.Field.Orientation

		forEachRow(candidateRows, func(y int) {
			for x := startX; x < endX; x += xStep {
				matches := 0
				for _, d := range tpl.Descriptors {
					queryDist := qDist.GetFloatAt(y+d.Offset.Y, x+d.Offset.X)
					queryOri := qOri.GetFloatAt(y+d.Offset.Y, x+d.Offset.X)

					if absf(queryDist-d.Distance) < m.maxDescriptorDistance &&
						absf(queryOri-d.Orientation) < m.maxDescriptorOrientation {
						matches++
					}
				}
				if matches < m.minDescriptorMatches {
					rejected[y*mapW+x] = true
				}
			}
		})
	}

	forEachRow(candidateRows, func(y int) {
		for x := startX; x < endX; x += xStep {
			if rejected[y*mapW+x] {
				continue
			}
			costMap.Set(y, x, m.evaluateCost(tpl, x, y, o))
		}
	})

	return costMap
}

// searchBounds computes the candidate offset range: the template's query ROI
// when one is set (open-ended toward the far edge when only an origin is
// given), the single extraction location under pose verification, or the
// whole map otherwise. Bounds are clamped to valid offsets.
func (m *Matcher) searchBounds(tpl *template.Template, mapW, mapH int) (startX, endX, startY, endY int) {
	startX, startY = tpl.QueryROI.X, tpl.QueryROI.Y
	endX, endY = mapW, mapH
	if tpl.QueryROI.Width > 0 {
		endX = startX + tpl.QueryROI.Width
	}
	if tpl.QueryROI.Height > 0 {
		endY = startY + tpl.QueryROI.Height
	}

	if m.strategy == VerifyPose {
		startX, startY = tpl.Location.X, tpl.Location.Y
		endX, endY = startX+1, startY+1
	}

	if startX < 0 {
		startX = 0
	}
	if startY < 0 {
		startY = 0
	}
	if endX > mapW {
		endX = mapW
	}
	if endY > mapH {
		endY = mapH
	}
	return startX, endX, startY, endY
}

// evaluateCost dispatches on the matching mode.
func (m *Matcher) evaluateCost(tpl *template.Template, offX, offY int, o Options) float64 {
	switch m.mode {
	case EdgeMatching:
		return edgeCost(tpl, m.query, offX, offY, false, o)
	case EdgeForwardBackward:
		return edgeCost(tpl, m.query, offX, offY, true, o)
	case LineMatching:
		return lineCost(tpl, m.query, offX, offY, false, o)
	case LineForwardBackward:
		return lineCost(tpl, m.query, offX, offY, true, o)
	default:
		return fullFieldCost(tpl, m.query, offX, offY, m.mode, o)
	}
}

// forEachRow runs fn over the rows, striped across runtime.NumCPU workers.
// Rows are independent; workers share no state.
func forEachRow(rows []int, fn func(y int)) {
	numWorkers := runtime.NumCPU()
	if numWorkers > len(rows) {
		numWorkers = len(rows)
	}
	if numWorkers <= 1 {
		for _, y := range rows {
			fn(y)
		}
		return
	}

	rowsPerWorker := (len(rows) + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		start := w * rowsPerWorker
		end := start + rowsPerWorker
		if end > len(rows) {
			end = len(rows)
		}
		if start >= end {
			break
		}

		wg.Add(1)
		go func(rows []int) {
			defer wg.Done()
			for _, y := range rows {
				fn(y)
			}
		}(rows[start:end])
	}
	wg.Wait()
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
