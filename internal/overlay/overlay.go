// Package overlay draws detected hand skeletons onto camera frames.
package overlay

import (
	"image"
	"image/color"

	"github.com/ayusman/handpos/internal/detector"
	"gocv.io/x/gocv"
)

// Style controls how landmarks and connections are drawn.
type Style struct {
	LandmarkColor     color.RGBA
	LandmarkRadius    int
	LandmarkThickness int
	ConnectionColor   color.RGBA
	ConnectionWidth   int
}

// DefaultStyle matches MediaPipe's drawing_utils defaults: red landmark dots
// joined by light grey edges.
func DefaultStyle() Style {
	return Style{
		LandmarkColor:     color.RGBA{R: 255, A: 255},
		LandmarkRadius:    2,
		LandmarkThickness: 2,
		ConnectionColor:   color.RGBA{R: 224, G: 224, B: 224, A: 255},
		ConnectionWidth:   2,
	}
}

// PixelPoint maps a normalized landmark onto a cols x rows frame.
// Landmarks outside the unit square are reported as not drawable.
func PixelPoint(p detector.Point3D, cols, rows int) (image.Point, bool) {
	if p.X < 0 || p.X > 1 || p.Y < 0 || p.Y > 1 {
		return image.Point{}, false
	}

	x := int(p.X * float64(cols))
	y := int(p.Y * float64(rows))
	if x >= cols {
		x = cols - 1
	}
	if y >= rows {
		y = rows - 1
	}
	return image.Pt(x, y), true
}

// Draw renders every hand's connections and landmarks onto frame in place.
// Edges are drawn first so the landmark dots stay visible on top.
func Draw(frame *gocv.Mat, hands []detector.Hand, style Style) {
	if frame == nil || frame.Empty() {
		return
	}

	cols, rows := frame.Cols(), frame.Rows()

	for i := range hands {
		var points [detector.NumLandmarks]image.Point
		var visible [detector.NumLandmarks]bool
		for j, lm := range hands[i].Landmarks {
			points[j], visible[j] = PixelPoint(lm, cols, rows)
		}

		for _, c := range detector.Connections {
			if visible[c.From] && visible[c.To] {
				gocv.Line(frame, points[c.From], points[c.To], style.ConnectionColor, style.ConnectionWidth)
			}
		}

		for j := range points {
			if visible[j] {
				gocv.Circle(frame, points[j], style.LandmarkRadius, style.LandmarkColor, style.LandmarkThickness)
			}
		}
	}
}
