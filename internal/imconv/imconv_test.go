package imconv

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"
)

func TestToMatChannelOrder(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	src.SetNRGBA(1, 0, color.NRGBA{B: 255, A: 255})

	mat, err := ToMat(src)
	if err != nil {
		t.Fatalf("ToMat: %v", err)
	}
	defer mat.Close()

	if mat.Rows() != 1 || mat.Cols() != 2 || mat.Channels() != 3 {
		t.Fatalf("mat is %dx%dx%d, want 2x1x3", mat.Cols(), mat.Rows(), mat.Channels())
	}

	// Red pixel lands in the third channel, blue in the first.
	if b, r := mat.GetUCharAt(0, 0), mat.GetUCharAt(0, 2); b != 0 || r != 255 {
		t.Errorf("red pixel stored as (b=%d, r=%d), want (0, 255)", b, r)
	}
	if b, r := mat.GetUCharAt(0, 3), mat.GetUCharAt(0, 5); b != 255 || r != 0 {
		t.Errorf("blue pixel stored as (b=%d, r=%d), want (255, 0)", b, r)
	}
}

func TestToMatNonZeroOrigin(t *testing.T) {
	src := image.NewNRGBA(image.Rect(5, 5, 8, 7))
	src.SetNRGBA(5, 5, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	mat, err := ToMat(src)
	if err != nil {
		t.Fatalf("ToMat: %v", err)
	}
	defer mat.Close()

	if mat.Rows() != 2 || mat.Cols() != 3 {
		t.Fatalf("mat is %dx%d, want 3x2", mat.Cols(), mat.Rows())
	}
	if v := mat.GetUCharAt(0, 0); v != 255 {
		t.Errorf("origin pixel = %d, want 255", v)
	}
}

func TestToMatEmptyImage(t *testing.T) {
	if _, err := ToMat(image.NewNRGBA(image.Rectangle{})); err == nil {
		t.Error("expected an error for an empty image")
	}
}

func TestLoadMatMissingFile(t *testing.T) {
	if _, err := LoadMat(filepath.Join(t.TempDir(), "absent.png")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
