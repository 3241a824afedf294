package behavior

import (
	"context"
	"image/color"

	"github.com/examwatch/examwatch/internal/frame"
)

// SkinRegionLocator approximates face locations by grouping skin-toned
// pixels. The frame is cut into GridSize x GridSize cells; a cell counts as
// skin when most of its pixels fall inside the YCbCr skin range. 4-connected
// groups of skin cells with at least MinRegionCells cells and a height/width
// ratio within [MinAspect, MaxAspect] are reported as faces.
//
// It is a stand-in for a trained model and is only reliable on well lit,
// frontal frames.
type SkinRegionLocator struct {
	GridSize       int
	MinRegionCells int
	MinAspect      float64
	MaxAspect      float64
}

// NewSkinRegionLocator returns a locator with tuning suited to 640x480 webcam
// frames.
func NewSkinRegionLocator() *SkinRegionLocator {
	return &SkinRegionLocator{
		GridSize:       4,
		MinRegionCells: 12,
		MinAspect:      0.6,
		MaxAspect:      2.5,
	}
}

// isSkin applies the Chai and Ngan chroma bounds with a floor on luma to
// reject shadows.
func isSkin(r, g, b uint8) bool {
	y, cb, cr := color.RGBToYCbCr(r, g, b)
	return y > 40 && cb >= 77 && cb <= 127 && cr >= 133 && cr <= 173
}

// Locate implements FaceLocator.
func (l *SkinRegionLocator) Locate(_ context.Context, r *frame.Raster) ([]BoundingBox, error) {
	g := max(l.GridSize, 1)
	cols := (r.Width + g - 1) / g
	rows := (r.Height + g - 1) / g

	skin := make([]bool, rows*cols)
	for cy := range rows {
		for cx := range cols {
			skin[cy*cols+cx] = l.cellIsSkin(r, cx*g, cy*g, g)
		}
	}

	var faces []BoundingBox
	seen := make([]bool, rows*cols)
	queue := make([]int, 0, 64)

	for start := range skin {
		if !skin[start] || seen[start] {
			continue
		}

		minX, minY := cols, rows
		maxX, maxY := -1, -1
		cells := 0

		seen[start] = true
		queue = append(queue[:0], start)
		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			cells++

			cx, cy := idx%cols, idx/cols
			minX, maxX = min(minX, cx), max(maxX, cx)
			minY, maxY = min(minY, cy), max(maxY, cy)

			for _, n := range [4][2]int{{cx - 1, cy}, {cx + 1, cy}, {cx, cy - 1}, {cx, cy + 1}} {
				nx, ny := n[0], n[1]
				if nx < 0 || ny < 0 || nx >= cols || ny >= rows {
					continue
				}
				ni := ny*cols + nx
				if skin[ni] && !seen[ni] {
					seen[ni] = true
					queue = append(queue, ni)
				}
			}
		}

		if cells < l.MinRegionCells {
			continue
		}

		box := BoundingBox{
			X: minX * g,
			Y: minY * g,
			W: min((maxX+1)*g, r.Width) - minX*g,
			H: min((maxY+1)*g, r.Height) - minY*g,
		}
		aspect := float64(box.H) / float64(box.W)
		if aspect < l.MinAspect || aspect > l.MaxAspect {
			continue
		}
		faces = append(faces, box)
	}

	return faces, nil
}

func (l *SkinRegionLocator) cellIsSkin(r *frame.Raster, x0, y0, g int) bool {
	x1, y1 := min(x0+g, r.Width), min(y0+g, r.Height)
	total, hits := 0, 0
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			total++
			if isSkin(r.RGB(x, y)) {
				hits++
			}
		}
	}
	return hits*2 > total
}
