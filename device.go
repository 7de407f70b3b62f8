package uvc

import (
	"log"
	"time"

	"github.com/kevmo314/go-uvc/usb"
)

// streamTransport is the slice of *usb.DeviceHandle this package actually
// calls. Stream tests substitute a fake implementation instead of opening a
// real device, per the mock-transport testing strategy this package's test
// files use for the payload state machine.
type streamTransport interface {
	ControlTransfer(requestType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error)
	ClaimInterface(iface uint8) error
	ReleaseInterface(iface uint8) error
	SetInterfaceAltSetting(iface, altSetting uint8) error
	NewAsyncTransferManager() (*usb.AsyncTransferManager, error)
}

// Device is an opened UVC camera: its control interface, the streaming
// interfaces it advertises, and the usb handle everything rides on.
type Device struct {
	usbDevice *usb.Device
	handle    streamTransport
	rawHandle *usb.DeviceHandle
	cfg       *usb.ConfigDescriptor

	controlInterfaceNumber uint8
	bcdUVC                 uint16
	control                *ControlInterface
	streaming              []*StreamingInterface

	// isIsight marks the Apple iSight quirk (§4.6): a payload without the
	// 12-byte iSight magic is pure image data, and a payload with it is a
	// header that carries no image data (see parsePayload).
	isIsight bool

	logger         *log.Logger
	controlTimeout time.Duration
}

var discardLogger = log.New(discardWriter{}, "", 0)

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// OpenDevice opens the first USB device matching vendorID:productID, claims
// its video-control interface, and parses its descriptor tree. The returned
// Device is ready for StreamCtrl negotiation (GetStreamCtrlFormatSize) and
// stream creation (NewStream).
func OpenDevice(vendorID, productID uint16, opts ...Option) (*Device, error) {
	rawHandle, err := usb.OpenDevice(vendorID, productID)
	if err != nil {
		return nil, wrapUSBError("OpenDevice", err)
	}

	d, err := newDeviceFromHandle(rawHandle, opts...)
	if err != nil {
		rawHandle.Close()
		return nil, err
	}
	return d, nil
}

func newDeviceFromHandle(handle *usb.DeviceHandle, opts ...Option) (*Device, error) {
	usbDev := handle.GetDevice()

	cfg, err := handle.ReadConfigDescriptor(0)
	if err != nil {
		return nil, wrapUSBError("OpenDevice", err)
	}

	control, streaming, err := findControlInterface(cfg)
	if err != nil {
		return nil, err
	}

	d := &Device{
		usbDevice:              usbDev,
		handle:                 handle,
		rawHandle:              handle,
		cfg:                    cfg,
		controlInterfaceNumber: control.Number,
		bcdUVC:                 control.BcdUVC,
		control:                control,
		streaming:              streaming,
		isIsight:               isIsightDevice(usbDev.Descriptor.VendorID, usbDev.Descriptor.ProductID),
		logger:                 discardLogger,
		controlTimeout:         controlTransferTimeout,
	}

	for _, opt := range opts {
		opt(d)
	}

	if err := handle.ClaimInterface(control.Number); err != nil {
		return nil, wrapUSBError("OpenDevice", err)
	}

	return d, nil
}

// findControlInterface finds the first video-control interface in cfg and
// builds the descriptor tree with BuildStreamingTree. Devices normally carry
// exactly one; no further candidate is tried.
func findControlInterface(cfg *usb.ConfigDescriptor) (*ControlInterface, []*StreamingInterface, error) {
	for i := range cfg.Interfaces {
		if len(cfg.Interfaces[i].AltSettings) == 0 {
			continue
		}
		alt0 := cfg.Interfaces[i].AltSettings[0]
		if alt0.InterfaceClass == ccVideo && alt0.InterfaceSubClass == scVideoControl {
			return BuildStreamingTree(cfg, alt0.InterfaceNumber)
		}
	}
	return nil, nil, newError(ErrInvalidDevice, "findControlInterface", nil)
}

// isIsightDevice reports whether vid:pid identifies an Apple iSight, the one
// device the payload parser special-cases (§4.6, §9).
func isIsightDevice(vendorID, productID uint16) bool {
	return vendorID == 0x05AC && (productID == 0x8501 || productID == 0x8502)
}

// Close releases the claimed control interface and the underlying usb
// handle. It does not stop any in-flight Stream; call Stream.Close first.
func (d *Device) Close() error {
	if d.rawHandle == nil {
		return nil
	}
	d.rawHandle.ReleaseInterface(d.controlInterfaceNumber)
	return d.rawHandle.Close()
}

// StreamingInterfaces returns the device's VideoStreaming interfaces, each
// with its advertised formats and frame sizes.
func (d *Device) StreamingInterfaces() []*StreamingInterface { return d.streaming }

// ControlInterface returns the device's parsed video-control entity tree.
func (d *Device) ControlInterface() *ControlInterface { return d.control }

// findFrameDescriptor looks up the frame descriptor for (bFormatIndex,
// bFrameIndex) across every streaming interface, used by QueryStreamCtrl's
// post-decode DwMaxVideoFrameSize fixup.
func (d *Device) findFrameDescriptor(bFormatIndex, bFrameIndex uint8) *FrameDescriptor {
	for _, si := range d.streaming {
		for _, fd := range si.Formats {
			if fd.FormatIndex != bFormatIndex {
				continue
			}
			for _, fr := range fd.Frames {
				if fr.FrameIndex == bFrameIndex {
					return fr
				}
			}
		}
	}
	return nil
}

// findStreamingInterfaceForFormat returns the streaming interface that owns
// the format descriptor matching bFormatIndex, and that descriptor itself.
func (d *Device) findStreamingInterfaceForFormat(bFormatIndex uint8) (*StreamingInterface, *FormatDescriptor) {
	for _, si := range d.streaming {
		for _, fd := range si.Formats {
			if fd.FormatIndex == bFormatIndex {
				return si, fd
			}
		}
	}
	return nil, nil
}
