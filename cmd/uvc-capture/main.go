// Command uvc-capture opens a UVC camera, negotiates a format/size/fps,
// streams a fixed number of frames through a callback, and writes each one
// to disk as a PPM image.
package main

import (
	"flag"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/kevmo314/go-uvc"
	"github.com/kevmo314/go-uvc/frameconv"
)

func main() {
	vendorID := flag.Uint("vid", 0x046d, "vendor ID")
	productID := flag.Uint("pid", 0x08e5, "product ID")
	width := flag.Uint("width", 640, "frame width")
	height := flag.Uint("height", 480, "frame height")
	fps := flag.Int("fps", 30, "target frames per second (0 = first advertised interval)")
	count := flag.Int("count", 10, "number of frames to capture")
	outDir := flag.String("out", ".", "directory to write captured frames into")
	formatName := flag.String("format", "yuyv", "pixel format to request: yuyv, mjpeg, or nv12")
	flag.Parse()

	formatTag, err := parseFormat(*formatName)
	if err != nil {
		log.Fatal(err)
	}

	d, err := uvc.OpenDevice(uint16(*vendorID), uint16(*productID))
	if err != nil {
		log.Fatalf("opening %04x:%04x: %v", *vendorID, *productID, err)
	}
	defer d.Close()

	var ctrl uvc.StreamCtrl
	if err := d.GetStreamCtrlFormatSize(&ctrl, formatTag, uint16(*width), uint16(*height), *fps); err != nil {
		log.Fatalf("negotiating %dx%d %s: %v", *width, *height, *formatName, err)
	}

	stream, err := d.NewStream(&ctrl)
	if err != nil {
		log.Fatalf("creating stream: %v", err)
	}
	defer stream.Close()

	var written int32
	done := make(chan struct{})

	err = stream.Start(func(frame *uvc.Frame, _ any) {
		n := atomic.AddInt32(&written, 1)
		if err := saveFrame(*outDir, int(n), frame, formatTag); err != nil {
			log.Printf("frame %d: %v", n, err)
		} else {
			log.Printf("wrote frame %d (%dx%d, %d bytes)", n, frame.Width, frame.Height, len(frame.Data))
		}
		if int(n) >= *count {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	}, nil)
	if err != nil {
		log.Fatalf("starting stream: %v", err)
	}

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Printf("timed out waiting for %d frames, got %d", *count, written)
	}

	if err := stream.Stop(); err != nil {
		log.Fatalf("stopping stream: %v", err)
	}
}

func parseFormat(name string) (uvc.FormatTag, error) {
	switch name {
	case "yuyv":
		return uvc.FormatYUYV, nil
	case "mjpeg":
		return uvc.FormatMJPEG, nil
	case "nv12":
		return uvc.FormatNV12, nil
	default:
		return 0, fmt.Errorf("unknown format %q (want yuyv, mjpeg, or nv12)", name)
	}
}

// saveFrame writes frame as a binary PPM, converting to RGB first when the
// format isn't already displayable pixel-for-pixel.
func saveFrame(dir string, n int, frame *uvc.Frame, formatTag uvc.FormatTag) error {
	var rgb []byte
	var err error
	switch formatTag {
	case uvc.FormatYUYV:
		rgb, err = frameconv.YUYVToRGB(frame)
	case uvc.FormatNV12:
		rgb, err = frameconv.NV12ToRGB(frame)
	case uvc.FormatMJPEG:
		img, derr := frameconv.DecodeMJPEG(frame)
		if derr != nil {
			return derr
		}
		return writeImageAsPPM(filepath.Join(dir, fmt.Sprintf("frame-%04d.ppm", n)), img)
	default:
		return fmt.Errorf("no converter registered for format %v", formatTag)
	}
	if err != nil {
		return err
	}
	return writePPM(filepath.Join(dir, fmt.Sprintf("frame-%04d.ppm", n)), int(frame.Width), int(frame.Height), rgb)
}

func writePPM(path string, width, height int, rgb []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "P6\n%d %d\n255\n", width, height); err != nil {
		return err
	}
	_, err = f.Write(rgb)
	return err
}

// writeImageAsPPM flattens an arbitrary image.Image into a binary PPM,
// since DecodeMJPEG hands back a stdlib image rather than a raw RGB buffer.
func writeImageAsPPM(path string, img image.Image) error {
	b := img.Bounds()
	rgb := make([]byte, 0, b.Dx()*b.Dy()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			rgb = append(rgb, byte(r>>8), byte(g>>8), byte(bl>>8))
		}
	}
	return writePPM(path, b.Dx(), b.Dy(), rgb)
}
