package match

import (
	"math"
	"testing"

	"chamfer-match/pkg/geometry"
)

func TestGroupDetectionsMergesOverlapping(t *testing.T) {
	detections := []Detection{
		{Bounds: geometry.NewRectInt(10, 10, 20, 20), Cost: 1, Scale: 1.0, TemplateID: 1},
		{Bounds: geometry.NewRectInt(12, 10, 20, 20), Cost: 3, Scale: 1.2, TemplateID: 1},
	}

	grouped := GroupDetections(detections, DefaultOverlapThreshold)
	if len(grouped) != 1 {
		t.Fatalf("%d clusters, want 1", len(grouped))
	}

	got := grouped[0]
	if got.Bounds != geometry.NewRectInt(11, 10, 20, 20) {
		t.Errorf("cluster bounds %+v, want the mean position with the first member's size", got.Bounds)
	}
	if math.Abs(got.Cost-2) > 1e-9 {
		t.Errorf("cluster cost = %v, want 2", got.Cost)
	}
	if math.Abs(got.Scale-1.1) > 1e-9 {
		t.Errorf("cluster scale = %v, want 1.1", got.Scale)
	}
}

func TestGroupDetectionsKeepsDisjoint(t *testing.T) {
	detections := []Detection{
		{Bounds: geometry.NewRectInt(0, 0, 10, 10), Cost: 1},
		{Bounds: geometry.NewRectInt(30, 30, 10, 10), Cost: 2},
	}

	grouped := GroupDetections(detections, DefaultOverlapThreshold)
	if len(grouped) != 2 {
		t.Fatalf("%d clusters for disjoint detections, want 2", len(grouped))
	}

	// Grouping singletons is idempotent.
	again := GroupDetections(grouped, DefaultOverlapThreshold)
	if len(again) != len(grouped) {
		t.Fatalf("regrouping changed the cluster count: %d vs %d", len(again), len(grouped))
	}
	for i := range again {
		if again[i] != grouped[i] {
			t.Errorf("regrouping changed cluster %d: %+v vs %+v", i, again[i], grouped[i])
		}
	}
}

func TestGroupDetectionsTransitive(t *testing.T) {
	// a overlaps b, b overlaps c, a and c barely overlap: one chain, one
	// cluster.
	detections := []Detection{
		{Bounds: geometry.NewRectInt(0, 0, 20, 20)},
		{Bounds: geometry.NewRectInt(4, 0, 20, 20)},
		{Bounds: geometry.NewRectInt(8, 0, 20, 20)},
	}

	if a, c := detections[0].Bounds, detections[2].Bounds; a.IoU(c) > DefaultOverlapThreshold {
		t.Fatalf("fixture invalid: endpoints overlap directly (IoU %v)", a.IoU(c))
	}

	grouped := GroupDetections(detections, DefaultOverlapThreshold)
	if len(grouped) != 1 {
		t.Fatalf("%d clusters for a transitive chain, want 1", len(grouped))
	}
}

func TestGroupDetectionsMajorityID(t *testing.T) {
	detections := []Detection{
		{Bounds: geometry.NewRectInt(10, 10, 20, 20), TemplateID: 3},
		{Bounds: geometry.NewRectInt(11, 10, 20, 20), TemplateID: 5},
		{Bounds: geometry.NewRectInt(12, 10, 20, 20), TemplateID: 5},
	}

	grouped := GroupDetections(detections, DefaultOverlapThreshold)
	if len(grouped) != 1 {
		t.Fatalf("%d clusters, want 1", len(grouped))
	}
	if grouped[0].TemplateID != 5 {
		t.Errorf("cluster id = %d, want majority id 5", grouped[0].TemplateID)
	}
}

func TestGroupDetectionsIDTieBreak(t *testing.T) {
	detections := []Detection{
		{Bounds: geometry.NewRectInt(10, 10, 20, 20), TemplateID: 9},
		{Bounds: geometry.NewRectInt(11, 10, 20, 20), TemplateID: 2},
	}

	grouped := GroupDetections(detections, DefaultOverlapThreshold)
	if len(grouped) != 1 {
		t.Fatalf("%d clusters, want 1", len(grouped))
	}
	if grouped[0].TemplateID != 9 {
		t.Errorf("tied vote resolved to id %d, want the first-seen id 9", grouped[0].TemplateID)
	}
}

func TestGroupDetectionsEmpty(t *testing.T) {
	if got := GroupDetections(nil, DefaultOverlapThreshold); got != nil {
		t.Errorf("GroupDetections(nil) = %v, want nil", got)
	}
}

func TestSuppressContained(t *testing.T) {
	outer := Detection{Bounds: geometry.NewRectInt(0, 0, 40, 40), Cost: 2}
	inner := Detection{Bounds: geometry.NewRectInt(10, 10, 10, 10), Cost: 1}
	partial := Detection{Bounds: geometry.NewRectInt(35, 35, 20, 20), Cost: 3}

	kept := SuppressContained([]Detection{inner, outer, partial})
	if len(kept) != 2 {
		t.Fatalf("%d detections kept, want 2", len(kept))
	}
	for _, d := range kept {
		if d.Bounds == inner.Bounds {
			t.Error("strictly contained detection survived suppression")
		}
	}
}

func TestSuppressContainedKeepsLargest(t *testing.T) {
	detections := []Detection{
		{Bounds: geometry.NewRectInt(5, 5, 10, 10)},
		{Bounds: geometry.NewRectInt(2, 2, 20, 20)},
		{Bounds: geometry.NewRectInt(0, 0, 40, 40)},
	}

	kept := SuppressContained(detections)
	if len(kept) != 1 {
		t.Fatalf("%d detections kept for nested boxes, want 1", len(kept))
	}
	if kept[0].Bounds != geometry.NewRectInt(0, 0, 40, 40) {
		t.Errorf("survivor %+v, want the largest box", kept[0].Bounds)
	}
}

func TestSuppressContainedEdgeTouching(t *testing.T) {
	// Sharing an edge is not strict containment; both survive.
	detections := []Detection{
		{Bounds: geometry.NewRectInt(0, 0, 20, 20)},
		{Bounds: geometry.NewRectInt(0, 5, 10, 10)},
	}

	if got := SuppressContained(detections); len(got) != 2 {
		t.Errorf("%d detections kept, want 2 for an edge-touching pair", len(got))
	}
}
