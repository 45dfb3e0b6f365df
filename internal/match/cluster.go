package match

import (
	"sort"

	"chamfer-match/pkg/geometry"

	"gonum.org/v1/gonum/stat"
)

// DefaultOverlapThreshold is the IoU above which two detections are
// considered the same object.
const DefaultOverlapThreshold = 0.5

// GroupDetections merges overlapping detections into one representative per
// cluster. Clustering is single-link over bounding-box IoU: an unclustered
// detection overlapping any member of a cluster joins that cluster. Each
// cluster collapses to a detection at the mean position, cost and scale of
// its members, sized like its first member, with the majority template id
// (ties broken by first appearance).
//
// The function is pure: it does not reorder or modify the input.
func GroupDetections(detections []Detection, overlapThreshold float64) []Detection {
	if len(detections) == 0 {
		return nil
	}

	assigned := make([]bool, len(detections))
	grouped := make([]Detection, 0, len(detections))

	for i := range detections {
		if assigned[i] {
			continue
		}
		cluster := []Detection{detections[i]}
		assigned[i] = true

		// Transitive closure: keep absorbing until no detection overlaps
		// any cluster member.
		for grew := true; grew; {
			grew = false
			for j := range detections {
				if assigned[j] {
					continue
				}
				for _, member := range cluster {
					if member.Bounds.IoU(detections[j].Bounds) > overlapThreshold {
						cluster = append(cluster, detections[j])
						assigned[j] = true
						grew = true
						break
					}
				}
			}
		}

		grouped = append(grouped, collapseCluster(cluster))
	}
	return grouped
}

// collapseCluster reduces a cluster to its representative detection.
func collapseCluster(cluster []Detection) Detection {
	xs := make([]float64, len(cluster))
	ys := make([]float64, len(cluster))
	costs := make([]float64, len(cluster))
	scales := make([]float64, len(cluster))

	counts := make(map[int]int)
	var idOrder []int
	for i, d := range cluster {
		xs[i] = float64(d.Bounds.X)
		ys[i] = float64(d.Bounds.Y)
		costs[i] = d.Cost
		scales[i] = d.Scale

		if counts[d.TemplateID] == 0 {
			idOrder = append(idOrder, d.TemplateID)
		}
		counts[d.TemplateID]++
	}

	majorityID := idOrder[0]
	for _, id := range idOrder[1:] {
		if counts[id] > counts[majorityID] {
			majorityID = id
		}
	}

	return Detection{
		Bounds: geometry.NewRectInt(
			int(stat.Mean(xs, nil)),
			int(stat.Mean(ys, nil)),
			cluster[0].Bounds.Width,
			cluster[0].Bounds.Height),
		Cost:       stat.Mean(costs, nil),
		Scale:      stat.Mean(scales, nil),
		TemplateID: majorityID,
	}
}

// SuppressContained discards every detection whose bounding box lies strictly
// inside a larger detection's box. Overlap alone does not suppress; all four
// sides must be strictly contained. The largest-area detection always
// survives. The input is not modified.
func SuppressContained(detections []Detection) []Detection {
	byArea := make([]Detection, len(detections))
	copy(byArea, detections)
	sort.SliceStable(byArea, func(i, j int) bool {
		return byArea[i].Bounds.Area() < byArea[j].Bounds.Area()
	})

	var kept []Detection
	for i, d := range byArea {
		inside := false
		for j := i + 1; j < len(byArea) && !inside; j++ {
			if d.Bounds.StrictlyInside(byArea[j].Bounds) {
				inside = true
			}
		}
		if !inside {
			kept = append(kept, d)
		}
	}
	return kept
}
