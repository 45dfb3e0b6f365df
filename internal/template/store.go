package template

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"os"

	"chamfer-match/pkg/geometry"

	"gocv.io/x/gocv"
)

// Binary template store layout, little-endian, fixed field order:
//
//	int32 templateCount
//	per template:
//	  int32 id
//	  int32 rows, int32 cols, int32 channels
//	  rows*cols*channels raw pixel bytes
//	  int32 x, y, width, height   (template location)
//	  int32 x, y, width, height   (query ROI)
//
// Only the source image and the two regions are stored; everything else is
// recomputed deterministically on load.

// maxStoreDimension bounds the per-axis image size a store record may claim.
// A header beyond it is malformed; allocating from it blindly could exhaust
// memory or overflow the pixel count.
const maxStoreDimension = 1 << 15

// Save writes the cached template set to path. An id without a scale-1.0
// entry or a retained source image is skipped with a logged error; the file
// simply ends up without that record.
func (c *Cache) Save(path string) error {
	type record struct {
		id  int
		img gocv.Mat
		tpl *Template
	}

	var records []record
	for _, id := range c.IDs() {
		img, hasImage := c.images[id]
		tpl := c.entries[id][1.0]
		if !hasImage || tpl == nil {
			log.Printf("save: template %d has no scale-1.0 entry or source image, skipping", id)
			continue
		}
		records = append(records, record{id: id, img: img, tpl: tpl})
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()

	if err := binary.Write(file, binary.LittleEndian, int32(len(records))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}

	for _, rec := range records {
		header := []int32{
			int32(rec.id),
			int32(rec.img.Rows()),
			int32(rec.img.Cols()),
			int32(rec.img.Channels()),
		}
		if err := binary.Write(file, binary.LittleEndian, header); err != nil {
			return fmt.Errorf("write template %d header: %w", rec.id, err)
		}
		if _, err := file.Write(rec.img.ToBytes()); err != nil {
			return fmt.Errorf("write template %d pixels: %w", rec.id, err)
		}

		regions := []int32{
			int32(rec.tpl.Location.X), int32(rec.tpl.Location.Y),
			int32(rec.tpl.Location.Width), int32(rec.tpl.Location.Height),
			int32(rec.tpl.QueryROI.X), int32(rec.tpl.QueryROI.Y),
			int32(rec.tpl.QueryROI.Width), int32(rec.tpl.QueryROI.Height),
		}
		if err := binary.Write(file, binary.LittleEndian, regions); err != nil {
			return fmt.Errorf("write template %d regions: %w", rec.id, err)
		}
	}
	return nil
}

// Load reads a template set from path and rebuilds the cache from it. The
// cache is only replaced after the whole file parses; a truncated or
// malformed file leaves the current template set untouched.
func (c *Cache) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	var count int32
	if err := binary.Read(file, binary.LittleEndian, &count); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	if count < 0 {
		return fmt.Errorf("invalid template count %d", count)
	}

	type record struct {
		id  int
		img gocv.Mat
		roi ROIPair
	}

	closeAll := func(records []record) {
		for _, rec := range records {
			rec.img.Close()
		}
	}

	var records []record
	for i := int32(0); i < count; i++ {
		var header [4]int32
		if err := binary.Read(file, binary.LittleEndian, &header); err != nil {
			closeAll(records)
			return fmt.Errorf("read template header: %w", err)
		}
		id, rows, cols, channels := int(header[0]), int(header[1]), int(header[2]), int(header[3])

		var matType gocv.MatType
		switch channels {
		case 1:
			matType = gocv.MatTypeCV8U
		case 3:
			matType = gocv.MatTypeCV8UC3
		default:
			closeAll(records)
			return fmt.Errorf("template %d: unsupported channel count %d", id, channels)
		}
		if rows <= 0 || cols <= 0 || rows > maxStoreDimension || cols > maxStoreDimension {
			closeAll(records)
			return fmt.Errorf("template %d: invalid size %dx%d", id, cols, rows)
		}

		pixels := make([]byte, rows*cols*channels)
		if _, err := io.ReadFull(file, pixels); err != nil {
			closeAll(records)
			return fmt.Errorf("read template %d pixels: %w", id, err)
		}

		img, err := gocv.NewMatFromBytes(rows, cols, matType, pixels)
		if err != nil {
			closeAll(records)
			return fmt.Errorf("decode template %d pixels: %w", id, err)
		}

		var regions [8]int32
		if err := binary.Read(file, binary.LittleEndian, &regions); err != nil {
			img.Close()
			closeAll(records)
			return fmt.Errorf("read template %d regions: %w", id, err)
		}

		records = append(records, record{
			id:  id,
			img: img,
			roi: ROIPair{
				Location: geometry.NewRectInt(int(regions[0]), int(regions[1]), int(regions[2]), int(regions[3])),
				QueryROI: geometry.NewRectInt(int(regions[4]), int(regions[5]), int(regions[6]), int(regions[7])),
			},
		})
	}

	c.Clear()
	for _, rec := range records {
		if err := c.register(rec.id, rec.img, rec.roi); err != nil {
			log.Printf("load: template %d skipped: %v", rec.id, err)
		}
		rec.img.Close()
	}
	return nil
}
