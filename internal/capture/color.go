package capture

import (
	"fmt"

	"gocv.io/x/gocv"
)

// ToRGB converts a camera frame from OpenCV's native BGR(A) channel order to
// the RGB order the landmark model expects. The source is left untouched and
// the caller owns the returned Mat.
func ToRGB(frame *gocv.Mat) (*gocv.Mat, error) {
	if frame == nil || frame.Empty() {
		return nil, ErrEmptyFrame
	}

	var code gocv.ColorConversionCode
	switch frame.Channels() {
	case 3:
		code = gocv.ColorBGRToRGB
	case 4:
		code = gocv.ColorBGRAToRGB
	default:
		return nil, fmt.Errorf("cannot convert %d channel frame to RGB", frame.Channels())
	}

	rgb := gocv.NewMat()
	if err := gocv.CvtColor(*frame, &rgb, code); err != nil {
		rgb.Close()
		return nil, fmt.Errorf("convert to RGB: %w", err)
	}
	if rgb.Empty() {
		rgb.Close()
		return nil, fmt.Errorf("color conversion produced an empty frame")
	}

	return &rgb, nil
}
