package match

import (
	"image"
	"math"

	"chamfer-match/internal/template"
	"chamfer-match/pkg/geometry"

	"gocv.io/x/gocv"
)

// Every cost variant returns the accumulated weighted error divided by the
// number of sampled elements. Zero sampled elements is not a zero-cost match:
// the variants return +Inf so the candidate can never be accepted.

// edgeCost sums the query's nearest-edge distance (plus the weighted
// orientation error) over the template's edge points translated to the
// candidate offset. With forwardBackward set it adds the symmetric term over
// the query edge points that fall inside the candidate window, sampled
// against the template's own fields.
func edgeCost(tpl *template.Template, q *template.Query, offX, offY int, forwardBackward bool, o Options) float64 {
	qDist := q.Field.Distance
	qOri := q.Field.Orientation

	var cost float64
	elements := 0

	for i, contour := range tpl.Field.EdgePoints {
		for j, pt := range contour {
			x, y := pt.X+offX, pt.Y+offY
			d := float64(qDist.GetFloatAt(y, x))
			if o.UseOrientation {
				d += o.Lambda * geometry.MinAngleError(
					float64(tpl.Field.EdgeOrientations[i][j]),
					float64(qOri.GetFloatAt(y, x)), true)
			}
			cost += o.WeightForward * d
			elements++
		}
	}

	if forwardBackward {
		tW, tH := tpl.Size()
		tDist := tpl.Field.Distance
		tOri := tpl.Field.Orientation

		for i, contour := range q.Field.EdgePoints {
			for j, pt := range contour {
				if pt.X < offX || pt.X >= offX+tW || pt.Y < offY || pt.Y >= offY+tH {
					continue
				}
				x, y := pt.X-offX, pt.Y-offY
				d := float64(tDist.GetFloatAt(y, x))
				if o.UseOrientation {
					d += o.Lambda * geometry.MinAngleError(
						float64(q.Field.EdgeOrientations[i][j]),
						float64(tOri.GetFloatAt(y, x)), true)
				}
				cost += o.WeightBackward * d
				elements++
			}
		}
	}

	if elements == 0 {
		return math.Inf(1)
	}
	return cost / float64(elements)
}

// lineCost is the coarser variant of edgeCost: it samples along the
// rasterized simplified line segments instead of every raw edge pixel.
func lineCost(tpl *template.Template, q *template.Query, offX, offY int, forwardBackward bool, o Options) float64 {
	qDist := q.Field.Distance
	qOri := q.Field.Orientation
	tOri := tpl.Field.Orientation

	var cost float64
	elements := 0

	for _, segs := range tpl.Lines {
		for _, seg := range segs {
			for _, pt := range geometry.RasterizeLine(seg.Start, seg.End) {
				x, y := pt.X+offX, pt.Y+offY
				d := float64(qDist.GetFloatAt(y, x))
				if o.UseOrientation {
					d += o.Lambda * geometry.MinAngleError(
						float64(tOri.GetFloatAt(pt.Y, pt.X)),
						float64(qOri.GetFloatAt(y, x)), true)
				}
				cost += o.WeightForward * d
				elements++
			}
		}
	}

	if forwardBackward {
		tW, tH := tpl.Size()
		tDist := tpl.Field.Distance

		for _, segs := range q.Lines {
			for _, seg := range segs {
				for _, pt := range geometry.RasterizeLine(seg.Start, seg.End) {
					if pt.X < offX || pt.X >= offX+tW || pt.Y < offY || pt.Y >= offY+tH {
						continue
					}
					x, y := pt.X-offX, pt.Y-offY
					d := float64(tDist.GetFloatAt(y, x))
					if o.UseOrientation {
						d += o.Lambda * geometry.MinAngleError(
							float64(qOri.GetFloatAt(pt.Y, pt.X)),
							float64(tOri.GetFloatAt(y, x)), true)
					}
					cost += o.WeightBackward * d
					elements++
				}
			}
		}
	}

	if elements == 0 {
		return math.Inf(1)
	}
	return cost / float64(elements)
}

// fullFieldCost compares the dense distance (and optionally orientation)
// fields of the template and the offset query sub-window. In masked mode the
// comparison is restricted to the template silhouette, or the union of the
// template and query silhouettes for the symmetric sub-variant, and the sum
// is normalized by the masked pixel count.
func fullFieldCost(tpl *template.Template, q *template.Query, offX, offY int, mode Mode, o Options) float64 {
	tW, tH := tpl.Size()
	window := image.Rect(offX, offY, offX+tW, offY+tH)

	subDist := q.Field.Distance.Region(window)
	defer subDist.Close()
	subOri := q.Field.Orientation.Region(window)
	defer subOri.Close()

	if mode == FullMatching {
		var cost float64

		diffDist := gocv.NewMat()
		defer diffDist.Close()
		gocv.AbsDiff(subDist, tpl.Field.Distance, &diffDist)
		cost += gocv.Sum(diffDist).Val1

		if o.UseOrientation {
			diffOri := gocv.NewMat()
			defer diffOri.Close()
			gocv.AbsDiff(subOri, tpl.Field.Orientation, &diffOri)
			cost += o.Lambda * gocv.Sum(diffOri).Val1
		}

		elements := tW * tH
		if elements == 0 {
			return math.Inf(1)
		}
		return cost / float64(elements)
	}

	mask := gocv.NewMat()
	defer mask.Close()
	if mode == MaskForwardBackward {
		subMask := q.Mask.Region(window)
		defer subMask.Close()
		gocv.BitwiseOr(tpl.Mask, subMask, &mask)
	} else {
		tpl.Mask.CopyTo(&mask)
	}

	elements := gocv.CountNonZero(mask)
	if elements == 0 {
		return math.Inf(1)
	}

	var cost float64

	subDistMasked := gocv.NewMat()
	defer subDistMasked.Close()
	subDist.CopyToWithMask(&subDistMasked, mask)

	tplDistMasked := gocv.NewMat()
	defer tplDistMasked.Close()
	tpl.Field.Distance.CopyToWithMask(&tplDistMasked, mask)

	diffDist := gocv.NewMat()
	defer diffDist.Close()
	gocv.AbsDiff(subDistMasked, tplDistMasked, &diffDist)
	cost += gocv.Sum(diffDist).Val1

	if o.UseOrientation {
		subOriMasked := gocv.NewMat()
		defer subOriMasked.Close()
		subOri.CopyToWithMask(&subOriMasked, mask)

		tplOriMasked := gocv.NewMat()
		defer tplOriMasked.Close()
		tpl.Field.Orientation.CopyToWithMask(&tplOriMasked, mask)

		diffOri := gocv.NewMat()
		defer diffOri.Close()
		gocv.AbsDiff(subOriMasked, tplOriMasked, &diffOri)
		cost += o.Lambda * gocv.Sum(diffOri).Val1
	}

	return cost / float64(elements)
}
