package data

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Grid tiles NCHW images into one RGBA picture with cols columns, each
// tile upscaled by scale with nearest-neighbour sampling. One-channel
// images are drawn in grey; the first three channels of wider images map
// to red, green and blue.
func Grid(pixels []float32, n, channels, size, cols, scale int) (*image.RGBA, error) {
	if n <= 0 || cols <= 0 || scale <= 0 {
		return nil, fmt.Errorf("grid: n, cols and scale must be positive")
	}
	if len(pixels) != n*channels*size*size {
		return nil, fmt.Errorf("grid: got %d values, want %d", len(pixels), n*channels*size*size)
	}

	rows := (n + cols - 1) / cols
	tile := size * scale
	out := image.NewRGBA(image.Rect(0, 0, cols*tile, rows*tile))
	draw.Draw(out, out.Bounds(), image.Black, image.Point{}, draw.Src)

	plane := size * size
	for i := 0; i < n; i++ {
		src := image.NewRGBA(image.Rect(0, 0, size, size))
		img := pixels[i*channels*plane : (i+1)*channels*plane]
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				var rgb [3]uint8
				for c := 0; c < 3; c++ {
					ch := c
					if channels == 1 {
						ch = 0
					} else if ch >= channels {
						continue
					}
					rgb[c] = toByte(img[ch*plane+y*size+x])
				}
				src.SetRGBA(x, y, color.RGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 255})
			}
		}
		r, c := i/cols, i%cols
		dst := image.Rect(c*tile, r*tile, (c+1)*tile, (r+1)*tile)
		draw.NearestNeighbor.Scale(out, dst, src, src.Bounds(), draw.Src, nil)
	}
	return out, nil
}

func toByte(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	default:
		return uint8(v*255 + 0.5)
	}
}
