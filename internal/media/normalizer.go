// Package media prepares uploaded images before they are sent to a model.
package media

import (
	"fmt"

	"github.com/h2non/bimg"
)

// Normalizer converts uploaded images into a format every model backend
// accepts (PNG, JPEG or WebP) and downsizes anything larger than maxDimension
// on its longest side. It uses bimg (Go bindings for libvips), which requires
// libvips as a system dependency.
type Normalizer struct {
	maxDimension int
}

// NewNormalizer creates a Normalizer. A maxDimension <= 0 disables resizing.
func NewNormalizer(maxDimension int) *Normalizer {
	return &Normalizer{maxDimension: maxDimension}
}

// passthroughTypes are formats sent to the model as-is (when small enough).
var passthroughTypes = map[bimg.ImageType]string{
	bimg.PNG:  "image/png",
	bimg.JPEG: "image/jpeg",
	bimg.WEBP: "image/webp",
}

// Normalize returns the (possibly re-encoded) image bytes and their MIME type.
func (n *Normalizer) Normalize(data []byte, mimeType string) ([]byte, string, error) {
	img := bimg.NewImage(data)

	size, err := img.Size()
	if err != nil {
		return nil, "", fmt.Errorf("reading image size: %w", err)
	}

	imageType := bimg.DetermineImageType(data)
	outMIME, passthrough := passthroughTypes[imageType]

	opts := bimg.Options{}
	changed := false

	if n.maxDimension > 0 && (size.Width > n.maxDimension || size.Height > n.maxDimension) {
		// Setting only one side keeps the aspect ratio.
		if size.Width >= size.Height {
			opts.Width = n.maxDimension
		} else {
			opts.Height = n.maxDimension
		}
		changed = true
	}

	if !passthrough {
		opts.Type = bimg.PNG
		outMIME = "image/png"
		changed = true
	}

	if !changed {
		return data, outMIME, nil
	}

	opts.Interpretation = bimg.InterpretationSRGB
	out, err := img.Process(opts)
	if err != nil {
		return nil, "", fmt.Errorf("normalizing %s image: %w", mimeType, err)
	}
	return out, outMIME, nil
}
