package template

import (
	"fmt"
	"image"
	"log"
	"math"
	"sort"

	"gocv.io/x/gocv"
)

// Default scale sweep. Entries within one step of 1.0 are not rebuilt: they
// would be near-duplicates of the unscaled template.
const (
	DefaultScaleMin  = 0.5
	DefaultScaleMax  = 2.0
	DefaultScaleStep = 0.1
)

// Cache owns, per template id, the mapping from scale factor to prepared
// Template. The scale-1.0 entry is always present for every registered id;
// the remaining factors are rebuilt from the retained source image whenever
// the scale range changes.
//
// The cache is not safe for concurrent mutation; callers must serialize
// SetTemplates/SetScaleRange against searches.
type Cache struct {
	build BuildParams

	scaleMin  float64
	scaleMax  float64
	scaleStep float64

	images  map[int]gocv.Mat
	entries map[int]map[float64]*Template
}

// NewCache creates an empty cache with the default scale range.
func NewCache(build BuildParams) *Cache {
	return &Cache{
		build:     build,
		scaleMin:  DefaultScaleMin,
		scaleMax:  DefaultScaleMax,
		scaleStep: DefaultScaleStep,
		images:    make(map[int]gocv.Mat),
		entries:   make(map[int]map[float64]*Template),
	}
}

// SetTemplates replaces the cached template set. Every id in images must have
// a matching entry in rois; a count mismatch aborts before anything is
// replaced. A template whose geometry extraction fails is skipped with a
// logged error, so the result may cover only a subset of the requested ids.
func (c *Cache) SetTemplates(images map[int]gocv.Mat, rois map[int]ROIPair) error {
	if len(images) != len(rois) {
		return fmt.Errorf("template/roi count mismatch: %d templates, %d rois", len(images), len(rois))
	}
	for id := range images {
		if _, ok := rois[id]; !ok {
			return fmt.Errorf("template id %d has no roi entry", id)
		}
	}

	c.Clear()

	for _, id := range sortedIDs(images) {
		if err := c.register(id, images[id], rois[id]); err != nil {
			log.Printf("template %d skipped: %v", id, err)
		}
	}
	return nil
}

// register builds the scale-1.0 entry plus the scale sweep for one id.
func (c *Cache) register(id int, img gocv.Mat, roi ROIPair) error {
	base, err := Build(img, c.build)
	if err != nil {
		return err
	}
	base.Location = roi.Location
	base.QueryROI = roi.QueryROI

	c.images[id] = img.Clone()
	c.entries[id] = map[float64]*Template{1.0: base}
	c.buildScales(id)
	return nil
}

// SetScaleRange changes the scale sweep and rebuilds every non-1.0 entry of
// every cached id. Requires 0 < min <= max and step > 0.
func (c *Cache) SetScaleRange(min, max, step float64) error {
	if min <= 0 || max < min || step <= 0 {
		return fmt.Errorf("invalid scale range [%g, %g] step %g", min, max, step)
	}

	c.scaleMin = min
	c.scaleMax = max
	c.scaleStep = step

	for id, scales := range c.entries {
		for scale, tpl := range scales {
			if scale != 1.0 {
				tpl.Close()
				delete(scales, scale)
			}
		}
		c.buildScales(id)
	}
	return nil
}

// buildScales prepares the non-1.0 entries for one id from its source image.
func (c *Cache) buildScales(id int) {
	img, ok := c.images[id]
	if !ok {
		return
	}

	for _, scale := range c.scaleFactors() {
		scaled := gocv.NewMat()
		gocv.Resize(img, &scaled, image.Point{}, scale, scale, gocv.InterpolationLinear)

		tpl, err := Build(scaled, c.build)
		scaled.Close()
		if err != nil {
			log.Printf("template %d scale %.2f skipped: %v", id, scale, err)
			continue
		}
		c.entries[id][scale] = tpl
	}
}

// scaleFactors enumerates the sweep, excluding factors within one step of 1.0.
func (c *Cache) scaleFactors() []float64 {
	var factors []float64
	for s := c.scaleMin; s <= c.scaleMax+1e-9; s += c.scaleStep {
		scale := math.Round(s*1e6) / 1e6
		if math.Abs(scale-1.0) <= c.scaleStep+1e-9 {
			continue
		}
		factors = append(factors, scale)
	}
	return factors
}

// Lookup returns the scale -> Template mapping for an id, or nil when the id
// is not cached. Absence is a normal no-result condition, not an error.
func (c *Cache) Lookup(id int) map[float64]*Template {
	return c.entries[id]
}

// Image returns the retained source image for an id, or an empty Mat.
func (c *Cache) Image(id int) (gocv.Mat, bool) {
	img, ok := c.images[id]
	return img, ok
}

// IDs returns the cached template ids in ascending order.
func (c *Cache) IDs() []int {
	ids := make([]int, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Scales returns the cached scale factors for an id in ascending order.
func (c *Cache) Scales(id int) []float64 {
	scales := make([]float64, 0, len(c.entries[id]))
	for s := range c.entries[id] {
		scales = append(scales, s)
	}
	sort.Float64s(scales)
	return scales
}

// Clear releases every cached template and source image.
func (c *Cache) Clear() {
	for _, scales := range c.entries {
		for _, tpl := range scales {
			tpl.Close()
		}
	}
	for _, img := range c.images {
		img.Close()
	}
	c.entries = make(map[int]map[float64]*Template)
	c.images = make(map[int]gocv.Mat)
}

func sortedIDs(images map[int]gocv.Mat) []int {
	ids := make([]int, 0, len(images))
	for id := range images {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
