package conceal

import "math"

// Region is a normalized axis-aligned rectangle in [0,1] coordinates
// relative to the frame size. The origin is bottom-left with Y increasing
// upward (the convention used by vision frameworks the detectors come
// from); PixelRect performs the flip into raster space.
type Region struct {
	X, Y, W, H float64
}

// Valid reports whether the region has positive extent.
func (r Region) Valid() bool {
	return r.W > 0 && r.H > 0
}

// Area returns the region's area, or 0 for degenerate regions.
func (r Region) Area() float64 {
	if !r.Valid() {
		return 0
	}
	return r.W * r.H
}

// Intersect returns the intersection of two regions.
// A degenerate (empty) intersection has zero width and height.
func (r Region) Intersect(o Region) Region {
	x0 := math.Max(r.X, o.X)
	y0 := math.Max(r.Y, o.Y)
	x1 := math.Min(r.X+r.W, o.X+o.W)
	y1 := math.Min(r.Y+r.H, o.Y+o.H)
	if x1 <= x0 || y1 <= y0 {
		return Region{}
	}
	return Region{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// IoU returns the Intersection-over-Union overlap ratio of two regions.
// Degenerate intersections yield 0; a non-positive union yields 0.
func (r Region) IoU(o Region) float64 {
	inter := r.Intersect(o).Area()
	if inter <= 0 {
		return 0
	}
	union := r.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Expand grows the region symmetrically by the given fractions of its own
// width and height. Expand(0.4, 0.5) yields a region 40% wider and 50%
// taller, centered on the original.
func (r Region) Expand(wFrac, hFrac float64) Region {
	dw := r.W * wFrac
	dh := r.H * hFrac
	return Region{
		X: r.X - dw/2,
		Y: r.Y - dh/2,
		W: r.W + dw,
		H: r.H + dh,
	}
}

// Clamp clips the region to the unit square.
func (r Region) Clamp() Region {
	x0 := math.Max(r.X, 0)
	y0 := math.Max(r.Y, 0)
	x1 := math.Min(r.X+r.W, 1)
	y1 := math.Min(r.Y+r.H, 1)
	if x1 <= x0 || y1 <= y0 {
		return Region{}
	}
	return Region{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// PixelRect is a rectangle in raster coordinates (top-left origin,
// Y increasing downward).
type PixelRect struct {
	X, Y, W, H int
}

// Empty reports whether the rect has no area.
func (p PixelRect) Empty() bool {
	return p.W <= 0 || p.H <= 0
}

// PixelRect converts the normalized bottom-left-origin region into raster
// coordinates for a frame of the given dimensions, flipping the Y axis.
// The result is clipped to the frame bounds.
func (r Region) PixelRect(width, height int) PixelRect {
	c := r.Clamp()
	if !c.Valid() {
		return PixelRect{}
	}

	x := int(math.Round(c.X * float64(width)))
	w := int(math.Round(c.W * float64(width)))
	// Bottom-left origin: the region's top edge is at Y+H from the bottom.
	y := int(math.Round((1 - (c.Y + c.H)) * float64(height)))
	h := int(math.Round(c.H * float64(height)))

	if x < 0 {
		w += x
		x = 0
	}
	if y < 0 {
		h += y
		y = 0
	}
	if x+w > width {
		w = width - x
	}
	if y+h > height {
		h = height - y
	}
	if w <= 0 || h <= 0 {
		return PixelRect{}
	}
	return PixelRect{X: x, Y: y, W: w, H: h}
}
