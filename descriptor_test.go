package uvc

import (
	"encoding/binary"
	"testing"

	"github.com/kevmo314/go-uvc/usb"
)

// vcHeaderDescriptor builds a minimal VC_HEADER class-specific descriptor.
func vcHeaderDescriptor(bcdUVC uint16) []byte {
	d := make([]byte, 12)
	d[0] = 12
	d[1] = csInterface
	d[2] = vcHeader
	binary.LittleEndian.PutUint16(d[3:5], bcdUVC)
	return d
}

func vcInputTerminalDescriptor(terminalID uint8, terminalType uint16) []byte {
	d := make([]byte, 8)
	d[0] = 8
	d[1] = csInterface
	d[2] = vcInputTerminal
	d[3] = terminalID
	binary.LittleEndian.PutUint16(d[4:6], terminalType)
	return d
}

func vcProcessingUnitDescriptor(unitID uint8) []byte {
	d := make([]byte, 8)
	d[0] = 8
	d[1] = csInterface
	d[2] = vcProcessingUnit
	d[3] = unitID
	return d
}

// vsFormatUncompressedDescriptor builds a minimal VS_FORMAT_UNCOMPRESSED
// descriptor carrying the given FourCC-style GUID.
func vsFormatUncompressedDescriptor(formatIndex uint8, guid [16]byte) []byte {
	d := make([]byte, 27)
	d[0] = 27
	d[1] = csInterface
	d[2] = vsFormatUncompressed
	d[3] = formatIndex
	d[4] = 1 // bNumFrameDescriptors
	copy(d[5:21], guid[:])
	return d
}

// vsFrameUncompressedDescriptor builds a VS_FRAME_UNCOMPRESSED descriptor
// with a discrete interval list, per UVC 1.5 table 3-3's byte layout.
func vsFrameUncompressedDescriptor(frameIndex uint8, width, height uint16, maxBufSize uint32, intervals []uint32) []byte {
	n := 26 + 4*len(intervals)
	d := make([]byte, n)
	d[0] = uint8(n)
	d[1] = csInterface
	d[2] = vsFrameUncompressed
	d[3] = frameIndex
	binary.LittleEndian.PutUint16(d[5:7], width)
	binary.LittleEndian.PutUint16(d[7:9], height)
	binary.LittleEndian.PutUint32(d[17:21], maxBufSize)
	d[25] = uint8(len(intervals))
	pos := 26
	for _, iv := range intervals {
		binary.LittleEndian.PutUint32(d[pos:pos+4], iv)
		pos += 4
	}
	return d
}

// vsFormatFrameBasedDescriptor builds a minimal VS_FORMAT_FRAME_BASED
// descriptor; its GUID sits at the same payload offset as
// VS_FORMAT_UNCOMPRESSED's.
func vsFormatFrameBasedDescriptor(formatIndex uint8, guid [16]byte) []byte {
	d := make([]byte, 28)
	d[0] = 28
	d[1] = csInterface
	d[2] = vsFormatFrameBased
	d[3] = formatIndex
	d[4] = 1 // bNumFrameDescriptors
	copy(d[5:21], guid[:])
	return d
}

// vsFrameFrameBasedDescriptor builds a VS_FRAME_FRAME_BASED descriptor with
// a discrete interval list, per UVC 1.5 table 3-21's byte layout — which
// diverges from VS_FRAME_UNCOMPRESSED after height (dwMinBitRate/
// dwMaxBitRate/dwBytesPerLine in place of dwMaxVideoFrameBufferSize, and
// bFrameIntervalType four bytes earlier).
func vsFrameFrameBasedDescriptor(frameIndex uint8, width, height uint16, bytesPerLine uint32, intervals []uint32) []byte {
	n := 26 + 4*len(intervals)
	d := make([]byte, n)
	d[0] = uint8(n)
	d[1] = csInterface
	d[2] = vsFrameFrameBased
	d[3] = frameIndex
	binary.LittleEndian.PutUint16(d[5:7], width)
	binary.LittleEndian.PutUint16(d[7:9], height)
	binary.LittleEndian.PutUint32(d[22:26], bytesPerLine)
	d[21] = uint8(len(intervals))
	pos := 26
	for _, iv := range intervals {
		binary.LittleEndian.PutUint32(d[pos:pos+4], iv)
		pos += 4
	}
	return d
}

func concat(chunks ...[]byte) []byte {
	var out []byte
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

func TestBuildStreamingTree(t *testing.T) {
	controlExtra := concat(
		vcHeaderDescriptor(0x0110),
		vcInputTerminalDescriptor(1, ittCamera),
		vcProcessingUnitDescriptor(2),
	)

	guid := fourCC('Y', 'U', 'Y', '2')
	streamingExtra := concat(
		vsFormatUncompressedDescriptor(1, guid),
		vsFrameUncompressedDescriptor(1, 640, 480, 640*480*2, []uint32{333333, 666666}),
	)

	cfg := &usb.ConfigDescriptor{
		Interfaces: []usb.Interface{
			{AltSettings: []usb.InterfaceAltSetting{{
				InterfaceNumber: 0, InterfaceClass: ccVideo, InterfaceSubClass: scVideoControl, Extra: controlExtra,
			}}},
			{AltSettings: []usb.InterfaceAltSetting{{
				InterfaceNumber: 1, InterfaceClass: ccVideo, InterfaceSubClass: scVideoStreaming,
				Endpoints: []usb.Endpoint{{EndpointAddr: 0x81, MaxPacketSize: 1024}},
				Extra:     streamingExtra,
			}}},
		},
	}

	control, streaming, err := BuildStreamingTree(cfg, 0)
	if err != nil {
		t.Fatalf("BuildStreamingTree: %v", err)
	}

	if control.BcdUVC != 0x0110 {
		t.Errorf("BcdUVC = %#x, want 0x0110", control.BcdUVC)
	}
	if control.CameraTerminalID != 1 {
		t.Errorf("CameraTerminalID = %d, want 1", control.CameraTerminalID)
	}
	if control.ProcessingUnitID != 2 {
		t.Errorf("ProcessingUnitID = %d, want 2", control.ProcessingUnitID)
	}

	if len(streaming) != 1 {
		t.Fatalf("len(streaming) = %d, want 1", len(streaming))
	}
	si := streaming[0]
	if si.EndpointAddress != 0x81 {
		t.Errorf("EndpointAddress = %#x, want 0x81", si.EndpointAddress)
	}
	if len(si.Formats) != 1 {
		t.Fatalf("len(Formats) = %d, want 1", len(si.Formats))
	}
	fd := si.Formats[0]
	if fd.Tag != FormatYUYV {
		t.Errorf("format tag = %v, want FormatYUYV", fd.Tag)
	}
	if fd.Parent() != si {
		t.Error("FormatDescriptor.Parent() should point back to its StreamingInterface")
	}
	if len(fd.Frames) != 1 {
		t.Fatalf("len(Frames) = %d, want 1", len(fd.Frames))
	}
	fr := fd.Frames[0]
	if fr.Width != 640 || fr.Height != 480 {
		t.Errorf("frame dims = %dx%d, want 640x480", fr.Width, fr.Height)
	}
	if fr.MaxVideoFrameBufferSize != 640*480*2 {
		t.Errorf("MaxVideoFrameBufferSize = %d, want %d", fr.MaxVideoFrameBufferSize, 640*480*2)
	}
	if len(fr.Intervals) != 2 || fr.Intervals[0] != 333333 || fr.Intervals[1] != 666666 {
		t.Errorf("Intervals = %v, want [333333 666666]", fr.Intervals)
	}
	if fr.Parent() != fd {
		t.Error("FrameDescriptor.Parent() should point back to its FormatDescriptor")
	}
}

// TestBuildStreamingTreeFrameBased exercises the VS_FRAME_FRAME_BASED path,
// whose wire layout puts bFrameIntervalType at a different offset than
// VS_FRAME_UNCOMPRESSED/VS_FRAME_MJPEG (the interval list starts at the same
// offset in both).
func TestBuildStreamingTreeFrameBased(t *testing.T) {
	controlExtra := concat(
		vcHeaderDescriptor(0x0150),
		vcInputTerminalDescriptor(1, ittCamera),
		vcProcessingUnitDescriptor(2),
	)

	guid := fourCC('H', '2', '6', '4')
	streamingExtra := concat(
		vsFormatFrameBasedDescriptor(1, guid),
		vsFrameFrameBasedDescriptor(1, 1280, 720, 1280*2, []uint32{166667, 333333}),
	)

	cfg := &usb.ConfigDescriptor{
		Interfaces: []usb.Interface{
			{AltSettings: []usb.InterfaceAltSetting{{
				InterfaceNumber: 0, InterfaceClass: ccVideo, InterfaceSubClass: scVideoControl, Extra: controlExtra,
			}}},
			{AltSettings: []usb.InterfaceAltSetting{{
				InterfaceNumber: 1, InterfaceClass: ccVideo, InterfaceSubClass: scVideoStreaming,
				Endpoints: []usb.Endpoint{{EndpointAddr: 0x81, MaxPacketSize: 1024}},
				Extra:     streamingExtra,
			}}},
		},
	}

	_, streaming, err := BuildStreamingTree(cfg, 0)
	if err != nil {
		t.Fatalf("BuildStreamingTree: %v", err)
	}

	fd := streaming[0].Formats[0]
	if len(fd.Frames) != 1 {
		t.Fatalf("len(Frames) = %d, want 1", len(fd.Frames))
	}
	fr := fd.Frames[0]

	if fr.Width != 1280 || fr.Height != 720 {
		t.Errorf("frame dims = %dx%d, want 1280x720", fr.Width, fr.Height)
	}
	if want := uint32(1280 * 2 * 720); fr.MaxVideoFrameBufferSize != want {
		t.Errorf("MaxVideoFrameBufferSize = %d, want %d (bytesPerLine * height)", fr.MaxVideoFrameBufferSize, want)
	}
	if len(fr.Intervals) != 2 || fr.Intervals[0] != 166667 || fr.Intervals[1] != 333333 {
		t.Errorf("Intervals = %v, want [166667 333333]", fr.Intervals)
	}
}
