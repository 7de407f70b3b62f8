// Package frameconv converts assembled uvc.Frame buffers into RGB byte
// slices or stdlib images, without reaching back into stream state.
package frameconv

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/kevmo314/go-uvc"
)

func clamp(v int32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// ycbcrToRGB applies the BT.601 integer conversion, the same fixed-point
// coefficients used for YUYV/UYVY/NV12 below.
func ycbcrToRGB(y, cb, cr int32) (r, g, b byte) {
	c := y - 16
	d := cb - 128
	e := cr - 128

	r = clamp((298*c + 409*e + 128) >> 8)
	g = clamp((298*c - 100*d - 208*e + 128) >> 8)
	b = clamp((298*c + 516*d + 128) >> 8)
	return
}

// YUYVToRGB converts a YUYV (4:2:2, Y0 U Y1 V per 2 pixels) frame into a
// packed 24-bpp RGB buffer.
func YUYVToRGB(frame *uvc.Frame) ([]byte, error) {
	return packedToRGB(frame, func(b []byte, i int) (y0, u, y1, v byte) {
		return b[i], b[i+1], b[i+2], b[i+3]
	})
}

// UYVYToRGB converts a UYVY (4:2:2, U Y0 V Y1 per 2 pixels) frame into a
// packed 24-bpp RGB buffer.
func UYVYToRGB(frame *uvc.Frame) ([]byte, error) {
	return packedToRGB(frame, func(b []byte, i int) (y0, u, y1, v byte) {
		return b[i+1], b[i], b[i+3], b[i+2]
	})
}

func packedToRGB(frame *uvc.Frame, unpack func(b []byte, i int) (y0, u, y1, v byte)) ([]byte, error) {
	w, h := int(frame.Width), int(frame.Height)
	need := w * h * 2
	if len(frame.Data) < need {
		return nil, fmt.Errorf("frameconv: short frame: have %d bytes, need %d", len(frame.Data), need)
	}

	out := make([]byte, w*h*3)
	row := w * 2
	for y := 0; y < h; y++ {
		rowStart := y * row
		outRowStart := y * w * 3
		for x := 0; x < w; x += 2 {
			i := rowStart + x*2
			y0, u, y1, v := unpack(frame.Data, i)

			o := outRowStart + x*3
			r, g, b := ycbcrToRGB(int32(y0), int32(u), int32(v))
			out[o], out[o+1], out[o+2] = r, g, b

			if x+1 < w {
				r, g, b = ycbcrToRGB(int32(y1), int32(u), int32(v))
				out[o+3], out[o+4], out[o+5] = r, g, b
			}
		}
	}
	return out, nil
}

// NV12ToRGB converts an NV12 (8-bit Y plane, interleaved 2x2-subsampled
// UV plane) frame into a packed 24-bpp RGB buffer.
func NV12ToRGB(frame *uvc.Frame) ([]byte, error) {
	w, h := int(frame.Width), int(frame.Height)
	ySize := w * h
	need := ySize + ySize/2
	if len(frame.Data) < need {
		return nil, fmt.Errorf("frameconv: short frame: have %d bytes, need %d", len(frame.Data), need)
	}

	yPlane := frame.Data[:ySize]
	uvPlane := frame.Data[ySize:]

	out := make([]byte, w*h*3)
	for y := 0; y < h; y++ {
		uvRow := (y / 2) * w
		for x := 0; x < w; x++ {
			yy := int32(yPlane[y*w+x])
			uvIdx := uvRow + (x/2)*2
			u := int32(uvPlane[uvIdx])
			v := int32(uvPlane[uvIdx+1])

			o := (y*w + x) * 3
			r, g, b := ycbcrToRGB(yy, u, v)
			out[o], out[o+1], out[o+2] = r, g, b
		}
	}
	return out, nil
}

// DecodeMJPEG decodes a frame's compressed payload as a standard JPEG
// bitstream. UVC MJPEG payloads are ordinary JPEG frames, so this delegates
// to the stdlib decoder rather than hand-rolling one.
func DecodeMJPEG(frame *uvc.Frame) (image.Image, error) {
	return jpeg.Decode(bytes.NewReader(frame.Data))
}
