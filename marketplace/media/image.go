// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package media

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
)

// IconSizes are the square sizes every app icon is stored in.
var IconSizes = []int{32, 48, 64, 128}

// MinIconSize is the smallest accepted edge of an uploaded icon.
const MinIconSize = 128

// Preview boxes in portrait orientation. Landscape images use them
// rotated.
var (
	ThumbnailBox   = image.Pt(100, 150)
	FullBox        = image.Pt(700, 1050)
	PreviewMinimum = image.Pt(320, 480)
)

// Image is a decoded still image.
type Image struct {
	image.Image
	// Format is "png" or "jpeg".
	Format string
}

// MimeType returns the content type of the source image.
func (img *Image) MimeType() string { return "image/" + img.Format }

// Size returns the pixel dimensions of the image.
func (img *Image) Size() image.Point { return img.Bounds().Size() }

// Decode decodes a PNG or JPEG image of at most maxPixels pixels. The
// dimensions are checked before the pixels are decoded.
func Decode(content []byte, maxPixels int) (*Image, error) {
	config, format, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil || (format != "png" && format != "jpeg") {
		return nil, ErrInvalidImage.New("Images must be either PNG or JPG.")
	}
	if config.Width <= 0 || config.Height <= 0 {
		return nil, ErrInvalidImage.New("Image is empty.")
	}
	if maxPixels > 0 && config.Width*config.Height > maxPixels {
		return nil, ErrInvalidImage.New("Image of %dx%d pixels is too large.", config.Width, config.Height)
	}
	if format == "png" && isAnimatedPNG(content) {
		return nil, ErrInvalidImage.New("Images cannot be animated.")
	}

	var decoded image.Image
	if format == "png" {
		decoded, err = png.Decode(bytes.NewReader(content))
	} else {
		decoded, err = jpeg.Decode(bytes.NewReader(content))
	}
	if err != nil {
		return nil, ErrInvalidImage.New("Image could not be decoded.")
	}
	return &Image{Image: decoded, Format: format}, nil
}

// isAnimatedPNG reports whether an animation control chunk precedes the
// image data.
func isAnimatedPNG(content []byte) bool {
	const signature = 8
	for pos := signature; pos+8 <= len(content); {
		length := int(binary.BigEndian.Uint32(content[pos:]))
		switch string(content[pos+4 : pos+8]) {
		case "acTL":
			return true
		case "IDAT", "IEND":
			return false
		}
		pos += 12 + length
	}
	return false
}

// CheckIcon verifies the dimensions of an uploaded icon.
func CheckIcon(img *Image) error {
	size := img.Size()
	if size.X != size.Y {
		return ErrInvalidImage.New("Icons must be square.")
	}
	if size.X < MinIconSize {
		return ErrInvalidImage.New("Icons must be at least %dpx by %dpx.", MinIconSize, MinIconSize)
	}
	return nil
}

// CheckPreview verifies the dimensions of a preview in either
// orientation.
func CheckPreview(img *Image) error {
	size := img.Size()
	portrait := size.X >= PreviewMinimum.X && size.Y >= PreviewMinimum.Y
	landscape := size.X >= PreviewMinimum.Y && size.Y >= PreviewMinimum.X
	if !portrait && !landscape {
		return ErrInvalidImage.New("App previews must be at least %dpx by %dpx.", PreviewMinimum.X, PreviewMinimum.Y)
	}
	return nil
}

// orient rotates a portrait box for landscape images.
func orient(box, size image.Point) image.Point {
	if size.X > size.Y {
		return image.Pt(box.Y, box.X)
	}
	return box
}

// Fit returns the largest size with the aspect ratio of size that fits in
// box. Images are never enlarged.
func Fit(size, box image.Point) image.Point {
	if size.X <= box.X && size.Y <= box.Y {
		return size
	}
	if size.X*box.Y > size.Y*box.X {
		return image.Pt(box.X, max(1, size.Y*box.X/size.X))
	}
	return image.Pt(max(1, size.X*box.Y/size.Y), box.Y)
}

// Resize scales src to fit in box.
func Resize(src image.Image, box image.Point) image.Image {
	size := Fit(src.Bounds().Size(), box)
	dst := image.NewNRGBA(image.Rectangle{Max: size})
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// EncodePNG encodes img with the best compression.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.BestCompression}
	if err := encoder.Encode(&buf, img); err != nil {
		return nil, Error.Wrap(err)
	}
	return buf.Bytes(), nil
}
