package template

import (
	"bytes"
	"encoding/binary"
	"image"
	"os"
	"path/filepath"
	"testing"

	"chamfer-match/pkg/geometry"

	"gocv.io/x/gocv"
)

func TestStoreRoundTrip(t *testing.T) {
	img := squareImage(50, 50, image.Rect(10, 10, 30, 30))
	defer img.Close()

	location := geometry.NewRectInt(5, 6, 50, 50)
	queryROI := geometry.NewRectInt(0, 0, 120, 0)

	original := NewCache(DefaultBuildParams())
	defer original.Clear()
	err := original.SetTemplates(
		map[int]gocv.Mat{3: img},
		map[int]ROIPair{3: {Location: location, QueryROI: queryROI}})
	if err != nil {
		t.Fatalf("SetTemplates: %v", err)
	}

	path := filepath.Join(t.TempDir(), "templates.bin")
	if err := original.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := NewCache(DefaultBuildParams())
	defer loaded.Clear()
	if err := loaded.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := loaded.IDs(); len(got) != 1 || got[0] != 3 {
		t.Fatalf("loaded ids = %v, want [3]", got)
	}

	// Pixel data survives bit-exact.
	srcImg, _ := original.Image(3)
	dstImg, ok := loaded.Image(3)
	if !ok {
		t.Fatal("loaded cache has no source image")
	}
	if !bytes.Equal(srcImg.ToBytes(), dstImg.ToBytes()) {
		t.Error("source image bytes differ after round-trip")
	}

	src := original.Lookup(3)[1.0]
	dst := loaded.Lookup(3)[1.0]
	if dst == nil {
		t.Fatal("loaded cache has no scale-1.0 entry")
	}

	if dst.Location != location {
		t.Errorf("location = %+v, want %+v", dst.Location, location)
	}
	if dst.QueryROI != queryROI {
		t.Errorf("query roi = %+v, want %+v", dst.QueryROI, queryROI)
	}

	// Geometry recomputes deterministically from identical pixels.
	if !bytes.Equal(src.Mask.ToBytes(), dst.Mask.ToBytes()) {
		t.Error("mask differs after round-trip")
	}
	if !bytes.Equal(src.Field.Distance.ToBytes(), dst.Field.Distance.ToBytes()) {
		t.Error("distance field differs after round-trip")
	}
	if len(src.Lines) != len(dst.Lines) {
		t.Fatalf("line set count %d vs %d", len(src.Lines), len(dst.Lines))
	}
	for i := range src.Lines {
		if len(src.Lines[i]) != len(dst.Lines[i]) {
			t.Errorf("contour %d: %d lines vs %d", i, len(src.Lines[i]), len(dst.Lines[i]))
			continue
		}
		for j := range src.Lines[i] {
			if src.Lines[i][j] != dst.Lines[i][j] {
				t.Errorf("line %d/%d differs: %+v vs %+v", i, j, src.Lines[i][j], dst.Lines[i][j])
			}
		}
	}
}

func TestLoadTruncatedFile(t *testing.T) {
	img := squareImage(50, 50, image.Rect(10, 10, 30, 30))
	defer img.Close()

	cache := NewCache(DefaultBuildParams())
	defer cache.Clear()
	err := cache.SetTemplates(map[int]gocv.Mat{1: img}, map[int]ROIPair{1: {}})
	if err != nil {
		t.Fatalf("SetTemplates: %v", err)
	}

	path := filepath.Join(t.TempDir(), "templates.bin")
	if err := cache.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	truncated := filepath.Join(t.TempDir(), "truncated.bin")
	if err := os.WriteFile(truncated, data[:len(data)/2], 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	// A malformed file must not disturb the current template set.
	if err := cache.Load(truncated); err == nil {
		t.Fatal("expected an error for a truncated store")
	}
	if got := cache.IDs(); len(got) != 1 || got[0] != 1 {
		t.Errorf("cache changed after failed load: ids = %v", got)
	}
}

func TestLoadRejectsOversizedHeader(t *testing.T) {
	// A record header may claim arbitrary dimensions; the pixel allocation
	// must be refused before it happens, not panic on it.
	for _, tt := range []struct {
		name       string
		rows, cols int32
	}{
		{"huge dimensions", 1 << 30, 1 << 30},
		{"overflowing product", 1<<31 - 1, 1<<31 - 1},
		{"negative rows", -1, 10},
	} {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			binary.Write(&buf, binary.LittleEndian, int32(1))
			binary.Write(&buf, binary.LittleEndian, []int32{1, tt.rows, tt.cols, 3})

			path := filepath.Join(t.TempDir(), "bad.bin")
			if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}

			cache := NewCache(DefaultBuildParams())
			if err := cache.Load(path); err == nil {
				t.Fatal("expected an error for an oversized record header")
			}
			if got := cache.IDs(); len(got) != 0 {
				t.Errorf("cache populated from a malformed store: ids = %v", got)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	cache := NewCache(DefaultBuildParams())
	if err := cache.Load(filepath.Join(t.TempDir(), "absent.bin")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
