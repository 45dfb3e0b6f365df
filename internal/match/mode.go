// Package match implements chamfer-distance template matching: a sliding
// window cost map over a query's edge field, a descriptor cascade that
// rejects candidate offsets cheaply before the cost is evaluated, iterative
// peak extraction, and detection clustering.
package match

import "chamfer-match/pkg/geometry"

// Mode selects the cost variant evaluated at each candidate offset.
type Mode int

const (
	// EdgeMatching sums the query's nearest-edge distance over every
	// template edge point.
	EdgeMatching Mode = iota
	// EdgeForwardBackward adds the symmetric term: query edge points
	// sampled against the template's distance field.
	EdgeForwardBackward
	// LineMatching samples along the rasterized simplified line segments
	// instead of every raw edge pixel.
	LineMatching
	// LineForwardBackward is the symmetric line variant.
	LineForwardBackward
	// FullMatching compares the dense distance fields over the whole window.
	FullMatching
	// MaskMatching restricts the dense comparison to the template silhouette.
	MaskMatching
	// MaskForwardBackward restricts it to the union of template and query
	// silhouettes.
	MaskForwardBackward
)

func (m Mode) String() string {
	switch m {
	case EdgeMatching:
		return "edge"
	case EdgeForwardBackward:
		return "edge-fb"
	case LineMatching:
		return "line"
	case LineForwardBackward:
		return "line-fb"
	case FullMatching:
		return "full"
	case MaskMatching:
		return "mask"
	case MaskForwardBackward:
		return "mask-fb"
	default:
		return "unknown"
	}
}

// Strategy selects where candidate offsets come from.
type Strategy int

const (
	// SearchTemplate slides the template over the query (optionally
	// restricted to the template's query ROI).
	SearchTemplate Strategy = iota
	// VerifyPose evaluates exactly one offset: the location the template
	// was extracted from. Single-location, single-scale by construction.
	VerifyPose
)

// Rejection selects the pruning step run before cost evaluation.
type Rejection int

const (
	// GridDescriptors rejects offsets whose sampled distance/orientation
	// probes disagree with the template's stored descriptors.
	GridDescriptors Rejection = iota
	// NoRejection scores every candidate offset.
	NoRejection
)

// Options configures one detection call.
type Options struct {
	UseOrientation    bool    // Add the orientation term to the cost
	DistanceThreshold float64 // Accept detections below this cost
	Lambda            float64 // Weight of the orientation term vs. distance
	WeightForward     float64 // Weight of the template-to-query term
	WeightBackward    float64 // Weight of the query-to-template term
	GroupDetections   bool    // Merge overlapping detections per template/scale
	NonMaxSuppression bool    // Drop detections contained in a larger one (multi-scale)
	XStep             int     // Candidate stride along x, in pixels
	YStep             int     // Candidate stride along y, in pixels
}

// DefaultOptions returns the standard detection options.
func DefaultOptions() Options {
	return Options{
		UseOrientation:    true,
		DistanceThreshold: 50,
		Lambda:            5,
		WeightForward:     1,
		WeightBackward:    1,
		GroupDetections:   true,
		XStep:             5,
		YStep:             5,
	}
}

// Detection is one located template instance. Lower cost means better match.
type Detection struct {
	Bounds     geometry.RectInt
	Cost       float64
	Scale      float64
	TemplateID int
}
