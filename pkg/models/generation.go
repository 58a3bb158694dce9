package models

// Resolution tiers of image generation
const (
	Resolution1K = "1K"
	Resolution2K = "2K"
	Resolution4K = "4K"

	DefaultResolution = Resolution1K
)

// Output formats of the optimize & convert step
const (
	FormatWebP = "webp"
	FormatJPEG = "jpeg"
	FormatPNG  = "png"

	DefaultFormat  = FormatWebP
	DefaultQuality = 85
)

// Reference image limits
const (
	MaxReferences       = 13
	MaxObjectReferences = 6
	MaxHumanReferences  = 5

	ReferenceObject = "object"
	ReferenceHuman  = "human"
	// style references only count against MaxReferences
	ReferenceStyle = "style"
)

// Dimensions is a width×height pair in pixels
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// AspectRatios lists the supported ratios in display order
var AspectRatios = []string{"1:1", "2:3", "3:2", "3:4", "4:3", "4:5", "5:4", "9:16", "16:9", "21:9"}

// baseDimensions are the 1K sizes; 2K and 4K scale them by 2 and 4
var baseDimensions = map[string]Dimensions{
	"1:1":  {1024, 1024},
	"2:3":  {832, 1248},
	"3:2":  {1248, 832},
	"3:4":  {864, 1184},
	"4:3":  {1184, 864},
	"4:5":  {896, 1152},
	"5:4":  {1152, 896},
	"9:16": {768, 1344},
	"16:9": {1344, 768},
	"21:9": {1536, 672},
}

// Resolutions lists the tiers in display order
var Resolutions = []string{Resolution1K, Resolution2K, Resolution4K}

var resolutionScale = map[string]int{
	Resolution1K: 1,
	Resolution2K: 2,
	Resolution4K: 4,
}

// Styles maps style tags to display labels
var Styles = map[string]string{
	"photorealistic": "Photorealistic",
	"digital-art":    "Digital Art",
	"illustration":   "Illustration",
	"anime":          "Anime",
	"watercolor":     "Watercolor",
	"oil-painting":   "Oil Painting",
	"3d-render":      "3D Render",
	"sketch":         "Pencil Sketch",
	"cinematic":      "Cinematic",
	"minimalist":     "Minimalist",
}

// Formats lists the output formats in display order
var Formats = []string{FormatWebP, FormatJPEG, FormatPNG}

// AspectRatioSupported reports whether ratio is in AspectRatios
func AspectRatioSupported(ratio string) bool {
	_, ok := baseDimensions[ratio]
	return ok
}

// StyleSupported reports whether style is in Styles
func StyleSupported(style string) bool {
	_, ok := Styles[style]
	return ok
}

// FormatSupported reports whether format is in Formats
func FormatSupported(format string) bool {
	switch format {
	case FormatWebP, FormatJPEG, FormatPNG:
		return true
	}
	return false
}

// DimensionsFor returns the pixel size of ratio at the given tier
func DimensionsFor(ratio, resolution string) (Dimensions, bool) {
	base, ok := baseDimensions[ratio]
	if !ok {
		return Dimensions{}, false
	}
	scale, ok := resolutionScale[resolution]
	if !ok {
		return Dimensions{}, false
	}
	return Dimensions{Width: base.Width * scale, Height: base.Height * scale}, true
}
