package conceal

import "fmt"

// RendererConfig configures the built-in effect renderer.
type RendererConfig struct {
	// WidthMargin and HeightMargin expand each region before compositing
	// so the effect covers the whole face (forehead and chin), not just
	// the raw detection box. Defaults: 0.4 and 0.5.
	WidthMargin  float64
	HeightMargin float64

	// BlurRadius is the box blur radius in pixels for the luma plane.
	// 0 derives it from the region width.
	BlurRadius int

	// PixelBlock is the mosaic block size in pixels for the luma plane.
	// 0 derives it from the region width.
	PixelBlock int
}

// DefaultRendererConfig returns the default renderer configuration.
func DefaultRendererConfig() RendererConfig {
	return RendererConfig{
		WidthMargin:  0.4,
		HeightMargin: 0.5,
	}
}

// Renderer is the built-in pure-Go effect renderer for I420 frames.
// Effects are applied plane-wise: luma at full resolution, chroma at half.
type Renderer struct {
	config RendererConfig
}

// NewRenderer creates a renderer. Zero config fields take defaults.
func NewRenderer(config RendererConfig) *Renderer {
	def := DefaultRendererConfig()
	if config.WidthMargin <= 0 {
		config.WidthMargin = def.WidthMargin
	}
	if config.HeightMargin <= 0 {
		config.HeightMargin = def.HeightMargin
	}
	return &Renderer{config: config}
}

// Apply returns a copy of the frame with every assigned region concealed.
// The input frame is left untouched. Overlapping regions are composited
// independently in assignment order.
func (r *Renderer) Apply(frame *VideoFrame, assignments []EffectAssignment) (*VideoFrame, error) {
	if frame.Format != PixelFormatI420 {
		return nil, fmt.Errorf("renderer: unsupported pixel format %v", frame.Format)
	}
	if len(frame.Data) < 3 {
		return nil, fmt.Errorf("renderer: I420 frame has %d planes, want 3", len(frame.Data))
	}

	out := frame.Clone()
	for _, a := range assignments {
		if !a.Region.Valid() {
			continue
		}
		px := a.Region.
			Expand(r.config.WidthMargin, r.config.HeightMargin).
			PixelRect(frame.Width, frame.Height)
		if px.Empty() {
			continue
		}
		if err := r.applyOne(out, px, a.Kind); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Renderer) applyOne(frame *VideoFrame, px PixelRect, kind EffectKind) error {
	chroma := chromaRect(px, frame.Width/2, frame.Height/2)

	switch kind {
	case EffectBlur:
		radius := r.config.BlurRadius
		if radius <= 0 {
			radius = px.W / 8
		}
		if radius < 2 {
			radius = 2
		}
		boxBlurRegion(frame.Data[0], frame.Stride[0], px, radius)
		cr := radius / 2
		if cr < 1 {
			cr = 1
		}
		boxBlurRegion(frame.Data[1], frame.Stride[1], chroma, cr)
		boxBlurRegion(frame.Data[2], frame.Stride[2], chroma, cr)

	case EffectPixelate:
		block := r.config.PixelBlock
		if block <= 0 {
			block = px.W / 10
		}
		if block < 8 {
			block = 8
		}
		pixelateRegion(frame.Data[0], frame.Stride[0], px, block)
		cb := block / 2
		if cb < 4 {
			cb = 4
		}
		pixelateRegion(frame.Data[1], frame.Stride[1], chroma, cb)
		pixelateRegion(frame.Data[2], frame.Stride[2], chroma, cb)

	default:
		return fmt.Errorf("renderer: unknown effect %v", kind)
	}
	return nil
}

// chromaRect maps a luma-plane rect to the half-resolution chroma planes,
// covering every chroma sample the luma rect touches. The result is
// clipped to the chroma plane: with odd luma dimensions the last row and
// column have no chroma sample of their own.
func chromaRect(px PixelRect, width, height int) PixelRect {
	x := px.X / 2
	y := px.Y / 2
	w := (px.X+px.W+1)/2 - x
	h := (px.Y+px.H+1)/2 - y
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

// boxBlurRegion applies a separable box blur of the given radius to a
// rectangular window of one plane. The window is blurred in place; pixels
// outside it are untouched (the blur does not sample across the edge).
func boxBlurRegion(p []byte, stride int, r PixelRect, radius int) {
	if r.Empty() || radius < 1 {
		return
	}

	tmp := make([]byte, r.W*r.H)

	// Horizontal pass: plane -> tmp.
	for row := 0; row < r.H; row++ {
		src := p[(r.Y+row)*stride+r.X : (r.Y+row)*stride+r.X+r.W]
		dst := tmp[row*r.W : (row+1)*r.W]

		hi := radius
		if hi > r.W-1 {
			hi = r.W - 1
		}
		lo, sum := 0, 0
		for i := 0; i <= hi; i++ {
			sum += int(src[i])
		}
		for c := 0; c < r.W; c++ {
			n := hi - lo + 1
			dst[c] = byte((sum + n/2) / n)
			if c+radius+1 < r.W {
				sum += int(src[c+radius+1])
				hi++
			}
			if c-radius >= 0 {
				sum -= int(src[c-radius])
				lo++
			}
		}
	}

	// Vertical pass: tmp -> plane.
	for col := 0; col < r.W; col++ {
		hi := radius
		if hi > r.H-1 {
			hi = r.H - 1
		}
		lo, sum := 0, 0
		for i := 0; i <= hi; i++ {
			sum += int(tmp[i*r.W+col])
		}
		for row := 0; row < r.H; row++ {
			n := hi - lo + 1
			p[(r.Y+row)*stride+r.X+col] = byte((sum + n/2) / n)
			if row+radius+1 < r.H {
				sum += int(tmp[(row+radius+1)*r.W+col])
				hi++
			}
			if row-radius >= 0 {
				sum -= int(tmp[(row-radius)*r.W+col])
				lo++
			}
		}
	}
}

// pixelateRegion replaces each block of the window with its average value.
// Partial blocks at the right/bottom edges use their actual extent.
func pixelateRegion(p []byte, stride int, r PixelRect, block int) {
	if r.Empty() || block < 1 {
		return
	}

	for by := 0; by < r.H; by += block {
		bh := block
		if by+bh > r.H {
			bh = r.H - by
		}
		for bx := 0; bx < r.W; bx += block {
			bw := block
			if bx+bw > r.W {
				bw = r.W - bx
			}

			sum := 0
			for yy := 0; yy < bh; yy++ {
				row := p[(r.Y+by+yy)*stride+r.X+bx:]
				for xx := 0; xx < bw; xx++ {
					sum += int(row[xx])
				}
			}
			avg := byte((sum + bw*bh/2) / (bw * bh))

			for yy := 0; yy < bh; yy++ {
				row := p[(r.Y+by+yy)*stride+r.X+bx:]
				for xx := 0; xx < bw; xx++ {
					row[xx] = avg
				}
			}
		}
	}
}
