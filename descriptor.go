package uvc

import (
	"encoding/binary"

	"github.com/kevmo314/go-uvc/usb"
)

// Video class-specific descriptor constants (UVC 1.5 tables 3-5, 3-6, 3-18,
// 3-19), grounded on the teacher's cmd/browse-uvc constant block.
const (
	csInterface = 0x24

	vcHeader         = 0x01
	vcInputTerminal  = 0x02
	vcOutputTerminal = 0x03
	vcSelectorUnit   = 0x04
	vcProcessingUnit = 0x05

	vsInputHeader        = 0x01
	vsStillImageFrame    = 0x03
	vsFormatUncompressed = 0x04
	vsFrameUncompressed  = 0x05
	vsFormatMJPEG        = 0x06
	vsFrameMJPEG         = 0x07
	vsFormatFrameBased   = 0x10
	vsFrameFrameBased    = 0x11

	ittCamera = 0x0201

	scVideoControl   = 0x01
	scVideoStreaming = 0x02
	ccVideo          = 0x0E
)

// ControlInterface is the video-control interface's terminal/unit tree,
// giving the per-control accessor table (controls.go) the entity IDs its
// wIndex targets.
type ControlInterface struct {
	Number           uint8
	BcdUVC           uint16
	CameraTerminalID uint8
	ProcessingUnitID uint8
	SelectorUnitIDs  []uint8
	OutputTerminalID uint8
}

// FrameDescriptor is one VS_FRAME_* descriptor.
type FrameDescriptor struct {
	FrameIndex uint8
	Width      uint16
	Height     uint16

	MinFrameInterval  uint32
	MaxFrameInterval  uint32
	FrameIntervalStep uint32
	// Intervals is the discrete interval list; nil when Min/Max/Step form a
	// continuous range instead.
	Intervals []uint32

	MaxVideoFrameBufferSize uint32

	parent *FormatDescriptor
}

// Parent returns the format descriptor that owns this frame descriptor —
// the one upward pointer the descriptor tree needs (§9's "owned trees with
// weak upward links" guidance).
func (f *FrameDescriptor) Parent() *FormatDescriptor { return f.parent }

// FormatDescriptor is one VS_FORMAT_* descriptor together with its frames.
type FormatDescriptor struct {
	FormatIndex        uint8
	GUID               [16]byte
	Tag                FormatTag
	StillCaptureMethod uint8
	Frames             []*FrameDescriptor

	parent *StreamingInterface
}

func (f *FormatDescriptor) Parent() *StreamingInterface { return f.parent }

// StreamingInterface is one VideoStreaming interface, addressed by interface
// number, together with the formats it offers.
type StreamingInterface struct {
	Number          uint8
	EndpointAddress uint8
	Formats         []*FormatDescriptor
}

// BuildStreamingTree walks cfg's class-specific (CS_INTERFACE) descriptor
// bytes the way the teacher's cmd/browse-uvc's parseDescriptors does — by
// interface-number switch — but assembles the owned arena-style tree this
// package's negotiation and ring code consume, rather than printing as it
// goes.
func BuildStreamingTree(cfg *usb.ConfigDescriptor, ctrlIfNum uint8) (*ControlInterface, []*StreamingInterface, error) {
	var control *ControlInterface
	var streaming []*StreamingInterface

	for i := range cfg.Interfaces {
		if len(cfg.Interfaces[i].AltSettings) == 0 {
			continue
		}
		alt0 := cfg.Interfaces[i].AltSettings[0]
		if alt0.InterfaceClass != ccVideo {
			continue
		}

		switch alt0.InterfaceSubClass {
		case scVideoControl:
			ci := &ControlInterface{Number: alt0.InterfaceNumber}
			walkControlDescriptors(alt0.Extra, ci)
			control = ci

		case scVideoStreaming:
			si := &StreamingInterface{Number: alt0.InterfaceNumber}
			for _, ep := range alt0.Endpoints {
				if ep.IsInput() {
					si.EndpointAddress = ep.EndpointAddr
					break
				}
			}
			walkStreamingDescriptors(alt0.Extra, si)
			streaming = append(streaming, si)
		}
	}

	if control == nil {
		return nil, nil, newError(ErrInvalidDevice, "BuildStreamingTree", nil)
	}
	return control, streaming, nil
}

// forEachDescriptor walks a run of concatenated CS_INTERFACE descriptors.
// fn receives the subtype and the descriptor payload starting at
// bDescriptorSubtype (payload[0] == subtype, payload[1] is the field
// immediately following it on the wire).
func forEachDescriptor(data []byte, fn func(subtype uint8, payload []byte)) {
	pos := 0
	for pos+2 <= len(data) {
		length := int(data[pos])
		if length < 3 || pos+length > len(data) {
			break
		}
		if data[pos+1] == csInterface {
			subtype := data[pos+2]
			fn(subtype, data[pos+2:pos+length])
		}
		pos += length
	}
}

func walkControlDescriptors(data []byte, ci *ControlInterface) {
	forEachDescriptor(data, func(subtype uint8, d []byte) {
		switch subtype {
		case vcHeader:
			if len(d) >= 3 {
				ci.BcdUVC = binary.LittleEndian.Uint16(d[1:3])
			}
		case vcInputTerminal:
			if len(d) >= 4 {
				terminalID := d[1]
				terminalType := binary.LittleEndian.Uint16(d[2:4])
				if terminalType == ittCamera {
					ci.CameraTerminalID = terminalID
				}
			}
		case vcProcessingUnit:
			if len(d) >= 2 && ci.ProcessingUnitID == 0 {
				ci.ProcessingUnitID = d[1]
			}
		case vcSelectorUnit:
			if len(d) >= 2 {
				ci.SelectorUnitIDs = append(ci.SelectorUnitIDs, d[1])
			}
		case vcOutputTerminal:
			if len(d) >= 2 {
				ci.OutputTerminalID = d[1]
			}
		}
	})
}

func walkStreamingDescriptors(data []byte, si *StreamingInterface) {
	var current *FormatDescriptor

	forEachDescriptor(data, func(subtype uint8, d []byte) {
		switch subtype {
		case vsFormatUncompressed, vsFormatFrameBased:
			if len(d) >= 19 {
				var guid [16]byte
				copy(guid[:], d[3:19])
				fd := &FormatDescriptor{
					FormatIndex: d[1],
					GUID:        guid,
					Tag:         FormatForGUID(guid),
					parent:      si,
				}
				si.Formats = append(si.Formats, fd)
				current = fd
			}
		case vsFormatMJPEG:
			if len(d) >= 2 {
				fd := &FormatDescriptor{
					FormatIndex: d[1],
					GUID:        fourCC('M', 'J', 'P', 'G'),
					Tag:         FormatMJPEG,
					parent:      si,
				}
				si.Formats = append(si.Formats, fd)
				current = fd
			}
		case vsFrameUncompressed, vsFrameMJPEG:
			if current == nil || len(d) < 24 {
				return
			}
			current.Frames = append(current.Frames, parseFrameDescriptor(d, current))
		case vsFrameFrameBased:
			if current == nil || len(d) < 24 {
				return
			}
			current.Frames = append(current.Frames, parseFrameBasedFrameDescriptor(d, current))
		case vsStillImageFrame:
			if current != nil {
				current.StillCaptureMethod = 2
			}
		}
	})
}

// parseFrameDescriptor decodes a VS_FRAME_* descriptor payload (d[0] is
// bDescriptorSubtype; see UVC 1.5 table 3-3 for the uncompressed layout,
// which MJPEG frame descriptors share field-for-field up to the interval
// list). Frame-based frame descriptors use parseFrameBasedFrameDescriptor.
func parseFrameDescriptor(d []byte, parent *FormatDescriptor) *FrameDescriptor {
	fr := &FrameDescriptor{
		FrameIndex:              d[1],
		Width:                   binary.LittleEndian.Uint16(d[3:5]),
		Height:                  binary.LittleEndian.Uint16(d[5:7]),
		MaxVideoFrameBufferSize: binary.LittleEndian.Uint32(d[15:19]),
		parent:                  parent,
	}

	frameIntervalType := d[23]
	pos := 24
	if frameIntervalType == 0 {
		if pos+12 <= len(d) {
			fr.MinFrameInterval = binary.LittleEndian.Uint32(d[pos : pos+4])
			fr.MaxFrameInterval = binary.LittleEndian.Uint32(d[pos+4 : pos+8])
			fr.FrameIntervalStep = binary.LittleEndian.Uint32(d[pos+8 : pos+12])
		}
	} else {
		fr.Intervals = make([]uint32, 0, frameIntervalType)
		for i := 0; i < int(frameIntervalType); i++ {
			if pos+4 > len(d) {
				break
			}
			fr.Intervals = append(fr.Intervals, binary.LittleEndian.Uint32(d[pos:pos+4]))
			pos += 4
		}
	}

	return fr
}

// parseFrameBasedFrameDescriptor decodes a VS_FRAME_FRAME_BASED descriptor
// payload (UVC 1.5 table 3-21). Its layout diverges from the uncompressed/
// MJPEG frame descriptors after the bit rates: there is no
// dwMaxVideoFrameBufferSize, so dwDefaultFrameInterval and
// bFrameIntervalType are four bytes earlier here (bFrameIntervalType at
// payload offset 19, not 23), and dwBytesPerLine follows bFrameIntervalType
// at offsets 20-23 — so the interval list still starts at the same offset
// 24 either way. This format has no
// explicit max-frame-buffer-size field at all; MaxVideoFrameBufferSize is
// approximated from dwBytesPerLine * height when the device reports a
// non-zero stride, and left zero otherwise (e.g. most H.264 devices, which
// set dwBytesPerLine to 0 since it's only meaningful for uncompressed
// strides).
func parseFrameBasedFrameDescriptor(d []byte, parent *FormatDescriptor) *FrameDescriptor {
	fr := &FrameDescriptor{
		FrameIndex: d[1],
		Width:      binary.LittleEndian.Uint16(d[3:5]),
		Height:     binary.LittleEndian.Uint16(d[5:7]),
		parent:     parent,
	}

	if bytesPerLine := binary.LittleEndian.Uint32(d[20:24]); bytesPerLine > 0 {
		fr.MaxVideoFrameBufferSize = bytesPerLine * uint32(fr.Height)
	}

	frameIntervalType := d[19]
	pos := 24
	if frameIntervalType == 0 {
		if pos+12 <= len(d) {
			fr.MinFrameInterval = binary.LittleEndian.Uint32(d[pos : pos+4])
			fr.MaxFrameInterval = binary.LittleEndian.Uint32(d[pos+4 : pos+8])
			fr.FrameIntervalStep = binary.LittleEndian.Uint32(d[pos+8 : pos+12])
		}
	} else {
		fr.Intervals = make([]uint32, 0, frameIntervalType)
		for i := 0; i < int(frameIntervalType); i++ {
			if pos+4 > len(d) {
				break
			}
			fr.Intervals = append(fr.Intervals, binary.LittleEndian.Uint32(d[pos:pos+4]))
			pos += 4
		}
	}

	return fr
}
