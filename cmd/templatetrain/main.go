// Command templatetrain builds a template set from image files and saves it
// to a binary store, or loads an existing store and summarizes its contents.
package main

import (
	"flag"
	"fmt"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"chamfer-match/internal/imconv"
	"chamfer-match/internal/template"

	"gocv.io/x/gocv"
	_ "golang.org/x/image/tiff"
)

func main() {
	templatePaths := flag.String("templates", "", "Comma-separated template image paths")
	savePath := flag.String("save", "", "Write the template set to this store file")
	loadPath := flag.String("load", "", "Read a template set from this store file and summarize it")
	scaleMin := flag.Float64("scale-min", template.DefaultScaleMin, "Minimum scale factor")
	scaleMax := flag.Float64("scale-max", template.DefaultScaleMax, "Maximum scale factor")
	scaleStep := flag.Float64("scale-step", template.DefaultScaleStep, "Scale sweep step")
	flag.Parse()

	if *loadPath == "" && (*templatePaths == "" || *savePath == "") {
		fmt.Println("Usage: templatetrain -templates <path>[,<path>...] -save <store>")
		fmt.Println("       templatetrain -load <store>")
		os.Exit(1)
	}

	cache := template.NewCache(template.DefaultBuildParams())
	defer cache.Clear()

	if err := cache.SetScaleRange(*scaleMin, *scaleMax, *scaleStep); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid scale range: %v\n", err)
		os.Exit(1)
	}

	if *loadPath != "" {
		if err := cache.Load(*loadPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load store: %v\n", err)
			os.Exit(1)
		}
		summarize(cache)
		return
	}

	images := make(map[int]gocv.Mat)
	rois := make(map[int]template.ROIPair)
	for i, path := range strings.Split(*templatePaths, ",") {
		mat, err := imconv.LoadMat(strings.TrimSpace(path))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load template: %v\n", err)
			os.Exit(1)
		}
		images[i] = mat
		rois[i] = template.ROIPair{}
	}

	if err := cache.SetTemplates(images, rois); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build templates: %v\n", err)
		os.Exit(1)
	}
	for _, img := range images {
		img.Close()
	}
	summarize(cache)

	if err := cache.Save(*savePath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save store: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Saved template set to %s\n", *savePath)
}

func summarize(cache *template.Cache) {
	ids := cache.IDs()
	fmt.Printf("Template set: %d ids\n", len(ids))
	for _, id := range ids {
		scales := cache.Scales(id)
		tpl := cache.Lookup(id)[1.0]
		w, h := tpl.Size()
		fmt.Printf("  id %d: %dx%d, %d contours, %d line sets, %d scales %v\n",
			id, w, h, len(tpl.Field.EdgePoints), len(tpl.Lines), len(scales), scales)
	}
}
