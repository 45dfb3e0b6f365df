package match

import (
	"fmt"

	"chamfer-match/internal/template"

	"gocv.io/x/gocv"
)

// Matcher is one matching session: the configured cost model, the template
// cache, and the edge field of the most recent query image.
//
// A Matcher is not safe for concurrent use; concurrent sessions should use
// independent instances. Template registration must be serialized against
// detection calls.
type Matcher struct {
	build template.BuildParams

	maxDescriptorDistance    float32 // Rejection tolerance on sampled distance
	maxDescriptorOrientation float32 // Rejection tolerance on sampled orientation
	minDescriptorMatches     int     // Probes that must agree or the offset is rejected

	mode      Mode
	strategy  Strategy
	rejection Rejection

	cache *template.Cache
	query *template.Query
}

// NewMatcher creates a matcher with the default configuration: edge matching,
// template search, grid-descriptor rejection, and a 0.5-2.0 scale sweep.
func NewMatcher() *Matcher {
	build := template.DefaultBuildParams()
	return &Matcher{
		build:                    build,
		maxDescriptorDistance:    10.0,
		maxDescriptorOrientation: 0.35,
		minDescriptorMatches:     5,
		mode:                     EdgeMatching,
		strategy:                 SearchTemplate,
		rejection:                GridDescriptors,
		cache:                    template.NewCache(build),
	}
}

// SetMode selects the cost variant.
func (m *Matcher) SetMode(mode Mode) { m.mode = mode }

// SetStrategy selects the search strategy.
func (m *Matcher) SetStrategy(s Strategy) { m.strategy = s }

// SetRejection selects the pruning step.
func (m *Matcher) SetRejection(r Rejection) { m.rejection = r }

// Cache exposes the template cache for inspection.
func (m *Matcher) Cache() *template.Cache { return m.cache }

// SetTemplates replaces the registered template set.
func (m *Matcher) SetTemplates(images map[int]gocv.Mat, rois map[int]template.ROIPair) error {
	return m.cache.SetTemplates(images, rois)
}

// SetScaleRange changes the scale sweep and rebuilds the cached scales.
func (m *Matcher) SetScaleRange(min, max, step float64) error {
	return m.cache.SetScaleRange(min, max, step)
}

// Save writes the registered template set to a binary store file.
func (m *Matcher) Save(path string) error { return m.cache.Save(path) }

// Load replaces the registered template set from a binary store file.
func (m *Matcher) Load(path string) error { return m.cache.Load(path) }

// Close releases the query state and every cached template.
func (m *Matcher) Close() {
	if m.query != nil {
		m.query.Close()
		m.query = nil
	}
	m.cache.Clear()
}

// prepareQuery replaces the session's query state with the new image's edge
// field. The previous query is released wholesale.
func (m *Matcher) prepareQuery(img gocv.Mat) error {
	q, err := template.BuildQuery(img, m.build)
	if err != nil {
		return fmt.Errorf("prepare query: %w", err)
	}
	if m.query != nil {
		m.query.Close()
	}
	m.query = q
	return nil
}

// Detect searches the query image for every registered template at scale 1.0
// and returns the detections sorted by ascending cost.
func (m *Matcher) Detect(img gocv.Mat, o Options) ([]Detection, error) {
	if err := m.prepareQuery(img); err != nil {
		return nil, err
	}

	var detections []Detection
	for _, id := range m.cache.IDs() {
		tpl := m.cache.Lookup(id)[1.0]
		if tpl == nil {
			continue
		}

		found := m.detectOne(tpl, 1.0, o)
		for i := range found {
			found[i].TemplateID = id
		}
		detections = append(detections, found...)
	}

	sortByCost(detections)
	return detections, nil
}

// DetectMultiScale searches the query image across every cached scale of
// every registered template. It is rejected under pose verification: that
// strategy evaluates one fixed location at the template's own scale.
func (m *Matcher) DetectMultiScale(img gocv.Mat, o Options) ([]Detection, error) {
	if m.strategy == VerifyPose {
		return nil, fmt.Errorf("multi-scale detection is not available with pose verification")
	}
	if err := m.prepareQuery(img); err != nil {
		return nil, err
	}

	var detections []Detection
	for _, id := range m.cache.IDs() {
		templates := m.cache.Lookup(id)
		for _, scale := range m.cache.Scales(id) {
			found := m.detectOne(templates[scale], scale, o)
			for i := range found {
				found[i].TemplateID = id
			}
			detections = append(detections, found...)
		}
	}

	if o.NonMaxSuppression {
		detections = SuppressContained(detections)
	}

	sortByCost(detections)
	return detections, nil
}

// detectOne runs the full pipeline for one template at one scale: cost map,
// peak extraction, optional overlap grouping.
func (m *Matcher) detectOne(tpl *template.Template, scale float64, o Options) []Detection {
	costMap := m.computeMatchingMap(tpl, o)

	detections := extractDetections(costMap, tpl, scale, o.DistanceThreshold)
	if o.GroupDetections {
		detections = GroupDetections(detections, DefaultOverlapThreshold)
	}
	sortByCost(detections)
	return detections
}
