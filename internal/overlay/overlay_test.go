package overlay

import (
	"image"
	"testing"

	"github.com/ayusman/handpos/internal/detector"
	"gocv.io/x/gocv"
)

func TestPixelPoint(t *testing.T) {
	tests := []struct {
		name   string
		p      detector.Point3D
		want   image.Point
		wantOK bool
	}{
		{name: "origin", p: detector.Point3D{X: 0, Y: 0}, want: image.Pt(0, 0), wantOK: true},
		{name: "center", p: detector.Point3D{X: 0.5, Y: 0.5}, want: image.Pt(320, 240), wantOK: true},
		{name: "far corner clamps", p: detector.Point3D{X: 1, Y: 1}, want: image.Pt(639, 479), wantOK: true},
		{name: "depth ignored", p: detector.Point3D{X: 0.25, Y: 0.5, Z: -3}, want: image.Pt(160, 240), wantOK: true},
		{name: "left of frame", p: detector.Point3D{X: -0.01, Y: 0.5}},
		{name: "below frame", p: detector.Point3D{X: 0.5, Y: 1.2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PixelPoint(tt.p, 640, 480)
			if ok != tt.wantOK {
				t.Fatalf("PixelPoint() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("PixelPoint() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDraw(t *testing.T) {
	t.Run("marks landmark pixels", func(t *testing.T) {
		frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
		defer frame.Close()
		frame.SetTo(gocv.NewScalar(0, 0, 0, 0))

		hand := detector.OpenPalmLandmarks()
		Draw(&frame, []detector.Hand{hand}, DefaultStyle())

		for _, idx := range []int{detector.Wrist, detector.IndexTip, detector.PinkyTip} {
			pt, _ := PixelPoint(hand.Landmarks[idx], frame.Cols(), frame.Rows())
			px := frame.GetVecbAt(pt.Y, pt.X)
			// BGR: the landmark colour is red
			if px[2] == 0 {
				t.Errorf("landmark %d at %v not drawn: %v", idx, pt, px)
			}
		}
	})

	t.Run("no hands leaves frame untouched", func(t *testing.T) {
		frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
		defer frame.Close()
		frame.SetTo(gocv.NewScalar(0, 0, 0, 0))

		Draw(&frame, nil, DefaultStyle())

		gray := gocv.NewMat()
		defer gray.Close()
		if err := gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray); err != nil {
			t.Fatalf("CvtColor() error = %v", err)
		}
		if n := gocv.CountNonZero(gray); n != 0 {
			t.Errorf("expected untouched frame, %d pixels changed", n)
		}
	})

	t.Run("nil and empty frames are ignored", func(t *testing.T) {
		Draw(nil, []detector.Hand{detector.OpenPalmLandmarks()}, DefaultStyle())

		empty := gocv.NewMat()
		defer empty.Close()
		Draw(&empty, []detector.Hand{detector.OpenPalmLandmarks()}, DefaultStyle())
	})
}
