package loader

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"

	"fewshot/internal/services"
)

// Decoder turns one file into a fixed-size pixel vector.
type Decoder interface {
	Decode(ctx context.Context, path string) ([]float32, error)
}

// DecodeFunc adapts a function to the Decoder interface.
type DecodeFunc func(ctx context.Context, path string) ([]float32, error)

// Decode calls f.
func (f DecodeFunc) Decode(ctx context.Context, path string) ([]float32, error) {
	return f(ctx, path)
}

// ImageDecoder reads JPEG, PNG, GIF, BMP or TIFF files, resizes them to
// Width x Height with a Lanczos filter when needed and returns RGB values in
// height, width, channel order scaled to [0, 1].
type ImageDecoder struct {
	Width  int
	Height int
}

// NewImageDecoder returns a decoder producing width x height images.
func NewImageDecoder(width, height int) ImageDecoder {
	return ImageDecoder{Width: width, Height: height}
}

// Dim returns the length of every decoded vector.
func (d ImageDecoder) Dim() int {
	return d.Width * d.Height * 3
}

func (d ImageDecoder) Decode(ctx context.Context, path string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Width <= 0 || d.Height <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "loader", "decode",
			fmt.Sprintf("invalid target size %dx%d", d.Width, d.Height), nil)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrDecode, "loader", "open", path, err)
	}
	defer f.Close()

	img, err := imaging.Decode(f)
	if err != nil {
		return nil, services.Wrap(services.ErrDecode, "loader", "decode", path, err)
	}

	size := img.Bounds().Size()
	if size.X != d.Width || size.Y != d.Height {
		img = imaging.Resize(img, d.Width, d.Height, imaging.Lanczos)
	}
	return toRGB(img), nil
}

func toRGB(img image.Image) []float32 {
	nrgba := imaging.Clone(img)
	bounds := nrgba.Bounds()
	out := make([]float32, 0, bounds.Dx()*bounds.Dy()*3)
	for y := range bounds.Dy() {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+bounds.Dx()*4]
		for x := 0; x < len(row); x += 4 {
			out = append(out,
				float32(row[x])/255,
				float32(row[x+1])/255,
				float32(row[x+2])/255)
		}
	}
	return out
}
