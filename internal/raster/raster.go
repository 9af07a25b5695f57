// Package raster implements the fixed-point RGBA compositing kernels the
// tile renderer uses to darken, tint and blend block sprites. Every kernel
// uses (x*a+128)>>8 as its divide-by-255 approximation; this is
// deliberate, not a shortcut, and must stay byte-exact for tests to be
// reproducible.
package raster

// Face tags, matching the blue channel of a UV-mask pixel.
const (
	FaceNone  = 0
	FaceLeft  = 1
	FaceRight = 2
	FaceUp    = 3
)

// Image is a row-major RGBA raster, 8 bits per channel, 32 bits per pixel.
type Image struct {
	Width, Height int
	Pix           []byte // len == Width*Height*4
}

// NewImage allocates a transparent image of the given size.
func NewImage(w, h int) *Image {
	return &Image{Width: w, Height: h, Pix: make([]byte, w*h*4)}
}

func (im *Image) at(x, y int) int { return (y*im.Width + x) * 4 }

// Get returns the r,g,b,a at x,y.
func (im *Image) Get(x, y int) (r, g, b, a byte) {
	i := im.at(x, y)
	return im.Pix[i], im.Pix[i+1], im.Pix[i+2], im.Pix[i+3]
}

// Set writes r,g,b,a at x,y.
func (im *Image) Set(x, y int, r, g, b, a byte) {
	i := im.at(x, y)
	im.Pix[i], im.Pix[i+1], im.Pix[i+2], im.Pix[i+3] = r, g, b, a
}

// mulDiv255 computes (x*a+128)>>8, the kernels' fixed-point approximation
// to x*a/255.
func mulDiv255(x, a byte) byte {
	return byte((uint16(x)*uint16(a) + 128) >> 8)
}

func assertSameSize(a, b *Image) {
	if a.Width != b.Width || a.Height != b.Height {
		panic("raster: mismatched image dimensions")
	}
}

// Multiply darkens block's RGB per-pixel by factorLeft/factorRight/factorUp
// depending on the face tag carried in uv's blue channel, wherever uv's
// alpha is non-zero.
func Multiply(block, uv *Image, factorLeft, factorRight, factorUp byte) {
	assertSameSize(block, uv)
	for y := 0; y < block.Height; y++ {
		for x := 0; x < block.Width; x++ {
			_, _, ub, ua := uv.Get(x, y)
			if ua == 0 {
				continue
			}
			factor := faceFactor(ub, factorLeft, factorRight, factorUp)
			r, g, b, a := block.Get(x, y)
			block.Set(x, y, mulDiv255(r, factor), mulDiv255(g, factor), mulDiv255(b, factor), a)
		}
	}
}

func faceFactor(face byte, left, right, up byte) byte {
	switch face {
	case FaceLeft:
		return left
	case FaceRight:
		return right
	case FaceUp:
		return up
	default:
		return 255
	}
}

// lerp implements the kernels' fixed-point linear interpolation:
// (x*(255-a) + y*a) >> 8.
func lerp(x, y, a byte) byte {
	return byte((uint16(x)*(255-uint16(a)) + uint16(y)*uint16(a)) >> 8)
}

// MultiplyCorners is like Multiply but the factor for each face is
// bilinearly interpolated across that face's four corner values using
// uv's red/green channels as (u,v).
func MultiplyCorners(block, uv *Image, cornersL, cornersR, cornersU [4]byte) {
	assertSameSize(block, uv)
	for y := 0; y < block.Height; y++ {
		for x := 0; x < block.Width; x++ {
			ur, ug, ub, ua := uv.Get(x, y)
			if ua == 0 {
				continue
			}
			var corners [4]byte
			switch ub {
			case FaceLeft:
				corners = cornersL
			case FaceRight:
				corners = cornersR
			case FaceUp:
				corners = cornersU
			default:
				continue
			}
			ab := lerp(corners[0], corners[1], ur)
			cd := lerp(corners[2], corners[3], ur)
			factor := lerp(ab, cd, ug)
			r, g, b, a := block.Get(x, y)
			block.Set(x, y, mulDiv255(r, factor), mulDiv255(g, factor), mulDiv255(b, factor), a)
		}
	}
}

// MultiplyExcept scalar-multiplies every face other than exceptFace.
func MultiplyExcept(block, uv *Image, exceptFace byte, factor byte) {
	assertSameSize(block, uv)
	for y := 0; y < block.Height; y++ {
		for x := 0; x < block.Width; x++ {
			_, _, ub, ua := uv.Get(x, y)
			if ua == 0 || ub == exceptFace {
				continue
			}
			r, g, b, a := block.Get(x, y)
			block.Set(x, y, mulDiv255(r, factor), mulDiv255(g, factor), mulDiv255(b, factor), a)
		}
	}
}

// MultiplyScalar uniformly darkens every non-transparent pixel of block,
// ignoring face tags.
func MultiplyScalar(block *Image, factor byte) {
	for y := 0; y < block.Height; y++ {
		for x := 0; x < block.Width; x++ {
			r, g, b, a := block.Get(x, y)
			if a == 0 {
				continue
			}
			block.Set(x, y, mulDiv255(r, factor), mulDiv255(g, factor), mulDiv255(b, factor), a)
		}
	}
}

// Color is an RGBA tint color.
type Color struct{ R, G, B, A byte }

func rgbaMultiply(p Color, c Color) Color {
	return Color{mulDiv255(p.R, c.R), mulDiv255(p.G, c.G), mulDiv255(p.B, c.B), mulDiv255(p.A, c.A)}
}

func alphaBlend(over, under Color) Color {
	if over.A == 255 {
		return over
	}
	if over.A == 0 {
		return under
	}
	inv := 255 - over.A
	return Color{
		mulDiv255(over.R, over.A) + mulDiv255(under.R, inv),
		mulDiv255(over.G, over.A) + mulDiv255(under.G, inv),
		mulDiv255(over.B, over.A) + mulDiv255(under.B, inv),
		over.A + mulDiv255(under.A, inv),
	}
}

// TintMasked tints block with color wherever mask's alpha is non-zero: the
// color is first modulated by the mask pixel, then alpha-blended over
// block. Modulating by the mask before blending avoids white halos at mask
// edges.
func TintMasked(block, mask *Image, color Color) {
	assertSameSize(block, mask)
	for y := 0; y < block.Height; y++ {
		for x := 0; x < block.Width; x++ {
			mr, mg, mb, ma := mask.Get(x, y)
			if ma == 0 {
				continue
			}
			tinted := rgbaMultiply(Color{mr, mg, mb, ma}, color)
			br, bg, bb, ba := block.Get(x, y)
			blended := alphaBlend(tinted, Color{br, bg, bb, ba})
			block.Set(x, y, blended.R, blended.G, blended.B, ba)
		}
	}
}

// Tint multiplies every non-zero-alpha pixel of block by color, with no
// mask.
func Tint(block *Image, color Color) {
	for y := 0; y < block.Height; y++ {
		for x := 0; x < block.Width; x++ {
			r, g, b, a := block.Get(x, y)
			if a == 0 {
				continue
			}
			block.Set(x, y, mulDiv255(r, color.R), mulDiv255(g, color.G), mulDiv255(b, color.B), a)
		}
	}
}

// TintHighContrast recolors block while preserving luminance: it computes
// the tint color's L=(10r+3g+b)/14, subtracts it from each of the color's
// channels, divides the delta by 3, and adds the signed delta to every
// painted pixel, clamping. Used by overlay render modes that need to
// inject chrominance without blowing out shading.
func TintHighContrast(block *Image, color Color) {
	l := (10*int(color.R) + 3*int(color.G) + int(color.B)) / 14
	dr := (int(color.R) - l) / 3
	dg := (int(color.G) - l) / 3
	db := (int(color.B) - l) / 3
	for y := 0; y < block.Height; y++ {
		for x := 0; x < block.Width; x++ {
			r, g, b, a := block.Get(x, y)
			if a == 0 {
				continue
			}
			nr := clamp255(int(r) + dr)
			ng := clamp255(int(g) + dg)
			nb := clamp255(int(b) + db)
			block.Set(x, y, nr, ng, nb, a)
		}
	}
}

func clamp255(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// BlendTop composites top over block (or block over top, whichever is
// shallower) using each pixel's UV alpha as a depth value. Used to draw a
// waterlogged top surface contributed by the voxel above.
func BlendTop(block, uv, top, topUV *Image) {
	assertSameSize(block, top)
	assertSameSize(block, uv)
	assertSameSize(block, topUV)
	for y := 0; y < block.Height; y++ {
		for x := 0; x < block.Width; x++ {
			_, _, _, depth := uv.Get(x, y)
			_, _, _, topDepth := topUV.Get(x, y)
			tr, tg, tb, ta := top.Get(x, y)
			br, bg, bb, ba := block.Get(x, y)
			if ta == 0 && topDepth == 0 {
				continue
			}
			if depth < topDepth {
				blended := alphaBlend(Color{tr, tg, tb, ta}, Color{br, bg, bb, ba})
				block.Set(x, y, blended.R, blended.G, blended.B, blended.A)
			} else {
				blended := alphaBlend(Color{br, bg, bb, ba}, Color{tr, tg, tb, ta})
				block.Set(x, y, blended.R, blended.G, blended.B, blended.A)
			}
		}
	}
}

// EdgeStrengths names the five edges a block can darken in ShadowEdges,
// indexed north, south, east, west, bottom.
type EdgeStrengths struct {
	North, South, East, West, Bottom byte
}

// genAlpha folds one candidate edge's contribution into alpha (by max, not
// overwrite — a corner pixel can be near two edges at once). Mirrors
// blockImageShadowEdges's genalpha lambda: a flat "strong" zone for the
// half of the threshold nearest the border, then a linear decay from
// "weak" down to 16 across the remaining half.
func genAlpha(alpha *byte, face, maskFace, edge byte, uv float64) {
	if edge == 0 || face != maskFace {
		return
	}
	e := int(edge)
	if e > 2 {
		e = 2
	}
	threshold := float64(1+e) / 16
	if uv >= threshold {
		return
	}
	strong, weak := 64.0, 32.0
	if edge > 2 {
		strong, weak = 128.0, 64.0
	}
	var a float64
	half := threshold / 2
	if uv < half {
		a = strong
	} else {
		frac := (uv - half) / half
		a = (1-frac)*weak + frac*16.0
	}
	if v := byte(a); v > *alpha {
		*alpha = v
	}
}

// ShadowEdges darkens pixels near a painted sprite's face borders to fake
// ambient occlusion between adjacent blocks, per edge strength in
// {0,1,2,3}. Every applicable border (up to four on the UP face, one
// shared by LEFT/RIGHT) contributes independently; the strongest
// contribution wins.
func ShadowEdges(block, uv *Image, edges EdgeStrengths) {
	assertSameSize(block, uv)
	for y := 0; y < block.Height; y++ {
		for x := 0; x < block.Width; x++ {
			ur, ug, ub, ua := uv.Get(x, y)
			if ua == 0 {
				continue
			}
			u := float64(ur) / 255
			v := float64(ug) / 255

			var alpha byte
			genAlpha(&alpha, ub, FaceUp, edges.North, v)
			genAlpha(&alpha, ub, FaceUp, edges.South, 1-v)
			genAlpha(&alpha, ub, FaceUp, edges.East, 1-u)
			genAlpha(&alpha, ub, FaceUp, edges.West, u)
			genAlpha(&alpha, ub, FaceLeft, edges.Bottom, 1-v)
			genAlpha(&alpha, ub, FaceRight, edges.Bottom, 1-v)
			if alpha == 0 {
				continue
			}
			r, g, b, a := block.Get(x, y)
			factor := 255 - alpha
			block.Set(x, y, mulDiv255(r, factor), mulDiv255(g, factor), mulDiv255(b, factor), a)
		}
	}
}
