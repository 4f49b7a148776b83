package script

import (
	"fmt"
	"strings"

	"github.com/podvid/podvid/internal/types"
)

// CoverPrompt builds the image-generation prompt from the distinct
// characters appearing in the script, in first-appearance order.
func CoverPrompt(lines []types.Line, geo types.Geometry) string {
	var names []string
	seen := map[string]bool{}
	males, females := 0, 0
	for _, ln := range lines {
		id := ln.Character.ID
		if id == "" {
			id = ln.Character.Name
		}
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		names = append(names, ln.Character.Name)
		switch strings.ToUpper(ln.Character.Gender) {
		case "MALE":
			males++
		default:
			females++
		}
	}

	var gender string
	switch {
	case males > 0 && females > 0:
		gender = fmt.Sprintf("%d man/men and %d woman/women", males, females)
	case males > 0:
		gender = fmt.Sprintf("%d man/men", males)
	default:
		gender = fmt.Sprintf("%d woman/women", females)
	}

	aspect := "horizontal landscape orientation (16:9 aspect ratio)"
	composition := "The people are sitting side by side in a wide shot"
	if geo.Height > geo.Width {
		aspect = "vertical portrait orientation (9:16 aspect ratio)"
		composition = "The people are arranged vertically (one above the other), close-up faces stacked in portrait layout"
	}

	return fmt.Sprintf(
		"A photorealistic image in %s of %d people (%s) having a podcast conversation. "+
			"%s. Modern podcast studio with microphones. "+
			"Professional lighting, high quality, 4K, realistic human faces and expressions. "+
			"The atmosphere is friendly and engaging. "+
			"Names: %s.",
		aspect, len(names), gender, composition, strings.Join(names, ", "),
	)
}
