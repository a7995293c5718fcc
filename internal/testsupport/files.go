package testsupport

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = 0x42
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WritePNG writes a solid-colour PNG of the given size.
func WritePNG(t testing.TB, path string, width, height int, fill color.Color) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, fill)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

// ClassColor is the fill used by WriteClassTree for every image of class idx.
// The red channel carries the class index so decoded pixels identify their class.
func ClassColor(idx int) color.NRGBA {
	return color.NRGBA{R: uint8(idx * 10 % 256), G: 128, B: 255, A: 255}
}

// WriteClassTree creates classes directories under root, each holding files
// 8x8 PNG images. It returns the class directory names in creation order.
func WriteClassTree(t testing.TB, root string, classes, files int) []string {
	t.Helper()

	names := make([]string, 0, classes)
	for c := range classes {
		name := fmt.Sprintf("n%08d", c)
		names = append(names, name)
		dir := filepath.Join(root, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
		for f := range files {
			WritePNG(t, filepath.Join(dir, fmt.Sprintf("img%03d.png", f)), 8, 8, ClassColor(c))
		}
	}
	return names
}
