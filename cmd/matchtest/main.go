// Command matchtest runs chamfer template matching of one or more template
// images against a query image and prints the ranked detections.
package main

import (
	"flag"
	"fmt"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"chamfer-match/internal/imconv"
	"chamfer-match/internal/match"
	"chamfer-match/internal/template"

	"gocv.io/x/gocv"
	_ "golang.org/x/image/tiff"
)

func main() {
	queryPath := flag.String("query", "", "Path to query image (TIFF, PNG, or JPEG)")
	templatePaths := flag.String("templates", "", "Comma-separated template image paths")
	mode := flag.String("mode", "edge", "Matching mode: edge, edge-fb, line, line-fb, full, mask, mask-fb")
	multiScale := flag.Bool("multiscale", false, "Sweep the cached scale range")
	threshold := flag.Float64("threshold", 50, "Accept detections below this cost")
	lambda := flag.Float64("lambda", 5, "Weight of the orientation term")
	noOrientation := flag.Bool("no-orientation", false, "Disable the orientation term")
	noGrouping := flag.Bool("no-grouping", false, "Disable overlap grouping")
	nms := flag.Bool("nms", false, "Suppress detections contained in a larger one (multiscale)")
	flag.Parse()

	if *queryPath == "" || *templatePaths == "" {
		fmt.Println("Usage: matchtest -query <path> -templates <path>[,<path>...] [-mode edge] [-multiscale]")
		os.Exit(1)
	}

	matcher := match.NewMatcher()
	defer matcher.Close()

	m, ok := parseMode(*mode)
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown mode: %s\n", *mode)
		os.Exit(1)
	}
	matcher.SetMode(m)

	// Register templates, id by position on the command line.
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
	if err := matcher.SetTemplates(images, rois); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to register templates: %v\n", err)
		os.Exit(1)
	}
	for _, img := range images {
		img.Close()
	}

	query, err := imconv.LoadMat(*queryPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load query: %v\n", err)
		os.Exit(1)
	}
	defer query.Close()
	fmt.Printf("Loaded query: %dx%d pixels, %d templates\n", query.Cols(), query.Rows(), len(images))

	opts := match.DefaultOptions()
	opts.DistanceThreshold = *threshold
	opts.Lambda = *lambda
	opts.UseOrientation = !*noOrientation
	opts.GroupDetections = !*noGrouping
	opts.NonMaxSuppression = *nms

	var detections []match.Detection
	if *multiScale {
		detections, err = matcher.DetectMultiScale(query, opts)
	} else {
		detections, err = matcher.Detect(query, opts)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Detection failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n%d detections:\n", len(detections))
	for i, d := range detections {
		fmt.Printf("%3d) template %d  cost %.3f  scale %.2f  box (%d,%d) %dx%d\n",
			i+1, d.TemplateID, d.Cost, d.Scale,
			d.Bounds.X, d.Bounds.Y, d.Bounds.Width, d.Bounds.Height)
	}
}

func parseMode(name string) (match.Mode, bool) {
	switch name {
	case "edge":
		return match.EdgeMatching, true
	case "edge-fb":
		return match.EdgeForwardBackward, true
	case "line":
		return match.LineMatching, true
	case "line-fb":
		return match.LineForwardBackward, true
	case "full":
		return match.FullMatching, true
	case "mask":
		return match.MaskMatching, true
	case "mask-fb":
		return match.MaskForwardBackward, true
	default:
		return 0, false
	}
}
