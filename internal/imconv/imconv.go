// Package imconv bridges decoded Go images into OpenCV mats for the
// matching pipeline.
package imconv

import (
	"fmt"
	"image"
	"os"
	"runtime"
	"sync"

	"gocv.io/x/gocv"
)

// ToMat copies an image.Image into a 3-channel BGR mat, splitting the rows
// across workers. The caller owns the returned mat.
func ToMat(img image.Image) (gocv.Mat, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return gocv.Mat{}, fmt.Errorf("empty image")
	}

	dst := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)

	stripe := (height + runtime.NumCPU() - 1) / runtime.NumCPU()

	var wg sync.WaitGroup
	for y0 := 0; y0 < height; y0 += stripe {
		y1 := y0 + stripe
		if y1 > height {
			y1 = height
		}

		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			for y := y0; y < y1; y++ {
				for x := 0; x < width; x++ {
					r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
					// Mats hold pixels in BGR channel order.
					dst.SetUCharAt(y, x*3, uint8(b>>8))
					dst.SetUCharAt(y, x*3+1, uint8(g>>8))
					dst.SetUCharAt(y, x*3+2, uint8(r>>8))
				}
			}
		}(y0, y1)
	}
	wg.Wait()

	return dst, nil
}

// LoadMat decodes an image file (any registered format) into a BGR mat.
// The caller owns the returned mat.
func LoadMat(path string) (gocv.Mat, error) {
	f, err := os.Open(path)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return ToMat(img)
}
