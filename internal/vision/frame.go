// Package vision holds the image side of guiding: grayscale frames, star
// detection and feature matching between two frames.
package vision

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// ErrEmptyFrame is returned when a decoded or captured image has no pixels.
var ErrEmptyFrame = errors.New("empty frame")

// Frame is a single-channel 8-bit image. It owns its Mat and must be closed
// by whoever captured it.
type Frame struct {
	mat gocv.Mat
}

// NewFrame takes ownership of m and converts it to grayscale if needed.
func NewFrame(m gocv.Mat) (*Frame, error) {
	if m.Empty() {
		m.Close()
		return nil, ErrEmptyFrame
	}
	var code gocv.ColorConversionCode
	switch m.Channels() {
	case 1:
		return &Frame{mat: m}, nil
	case 3:
		code = gocv.ColorBGRToGray
	case 4:
		code = gocv.ColorBGRAToGray
	default:
		n := m.Channels()
		m.Close()
		return nil, fmt.Errorf("unsupported channel count %d", n)
	}
	gray := gocv.NewMat()
	gocv.CvtColor(m, &gray, code)
	m.Close()
	if gray.Empty() {
		gray.Close()
		return nil, ErrEmptyFrame
	}
	return &Frame{mat: gray}, nil
}

// DecodeFrame decodes an encoded image (JPEG, PNG) straight to grayscale.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}
	m, err := gocv.IMDecode(data, gocv.IMReadGrayScale)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return NewFrame(m)
}

func (f *Frame) Width() int  { return f.mat.Cols() }
func (f *Frame) Height() int { return f.mat.Rows() }

// Mat exposes the underlying image. Callers must not close it.
func (f *Frame) Mat() gocv.Mat { return f.mat }

func (f *Frame) Close() error {
	return f.mat.Close()
}

// Rotated180 returns a new frame turned upside down. f is left untouched.
func (f *Frame) Rotated180() *Frame {
	dst := gocv.NewMat()
	gocv.Rotate(f.mat, &dst, gocv.Rotate180Clockwise)
	return &Frame{mat: dst}
}

// WriteJPEG saves the frame to path.
func (f *Frame) WriteJPEG(path string) error {
	if ok := gocv.IMWrite(path, f.mat); !ok {
		return fmt.Errorf("write %s failed", path)
	}
	return nil
}
