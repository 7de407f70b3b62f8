package uvc

import (
	"encoding/binary"
	"time"
)

// Probe/commit control selectors and request codes, UVC 1.5 §4.3.1.1.
const (
	vsProbeControl  = 0x01
	vsCommitControl = 0x02

	reqSetCur  = 0x01
	reqGetCur  = 0x81
	reqGetMin  = 0x82
	reqGetMax  = 0x83
	reqGetRes  = 0x84
	reqGetLen  = 0x85
	reqGetInfo = 0x86
	reqGetDef  = 0x87
)

// CtrlOp is one of the eight probe/commit request verbs a stream-control
// query can issue.
type CtrlOp uint8

const (
	OpSetCur CtrlOp = iota
	OpGetCur
	OpGetMin
	OpGetMax
	OpGetRes
	OpGetDef
	OpGetLen
	OpGetInfo
)

func (op CtrlOp) request() uint8 {
	switch op {
	case OpSetCur:
		return reqSetCur
	case OpGetCur:
		return reqGetCur
	case OpGetMin:
		return reqGetMin
	case OpGetMax:
		return reqGetMax
	case OpGetRes:
		return reqGetRes
	case OpGetDef:
		return reqGetDef
	case OpGetLen:
		return reqGetLen
	case OpGetInfo:
		return reqGetInfo
	default:
		return reqGetCur
	}
}

// StreamCtrl is the UVC probe/commit control block (UVC 1.5 §4.3.1.1),
// serialised little-endian into 26 bytes for UVC <1.10 devices or 34 bytes
// for UVC >=1.10 devices.
type StreamCtrl struct {
	BmHint                  uint16
	BFormatIndex            uint8
	BFrameIndex             uint8
	DwFrameInterval         uint32
	WKeyFrameRate           uint16
	WPFrameRate             uint16
	WCompQuality            uint16
	WCompWindowSize         uint16
	WDelay                  uint16
	DwMaxVideoFrameSize     uint32
	DwMaxPayloadTransferSize uint32

	// UVC 1.1+ extension fields; zero and unused when the control
	// interface reports a revision below 0x0110.
	DwClockFrequency  uint32
	BmFramingInfo     uint8
	BPreferredVersion uint8
	BMinVersion       uint8
	BMaxVersion       uint8

	// BInterfaceNumber is not part of the wire payload; it addresses the
	// streaming interface the control targets (wIndex on the transfer).
	BInterfaceNumber uint8
}

func ctrlLength(bcdUVC uint16) int {
	if bcdUVC >= 0x0110 {
		return 34
	}
	return 26
}

// Marshal serialises c into a 26- or 34-byte buffer, per bcdUVC.
func (c *StreamCtrl) Marshal(bcdUVC uint16) []byte {
	buf := make([]byte, ctrlLength(bcdUVC))
	binary.LittleEndian.PutUint16(buf[0:2], c.BmHint)
	buf[2] = c.BFormatIndex
	buf[3] = c.BFrameIndex
	binary.LittleEndian.PutUint32(buf[4:8], c.DwFrameInterval)
	binary.LittleEndian.PutUint16(buf[8:10], c.WKeyFrameRate)
	binary.LittleEndian.PutUint16(buf[10:12], c.WPFrameRate)
	binary.LittleEndian.PutUint16(buf[12:14], c.WCompQuality)
	binary.LittleEndian.PutUint16(buf[14:16], c.WCompWindowSize)
	binary.LittleEndian.PutUint16(buf[16:18], c.WDelay)
	binary.LittleEndian.PutUint32(buf[18:22], c.DwMaxVideoFrameSize)
	binary.LittleEndian.PutUint32(buf[22:26], c.DwMaxPayloadTransferSize)

	if len(buf) == 34 {
		binary.LittleEndian.PutUint32(buf[26:30], c.DwClockFrequency)
		buf[30] = c.BmFramingInfo
		buf[31] = c.BPreferredVersion
		buf[32] = c.BMinVersion
		buf[33] = c.BMaxVersion
	}
	return buf
}

// Unmarshal decodes buf (as returned by a probe/commit GET) into c. Fields
// beyond len(buf) are left at their zero value — this is how encoding a
// 26-byte block and decoding it back is defined to round-trip "modulo the
// 34-byte extension".
func (c *StreamCtrl) Unmarshal(buf []byte) error {
	if len(buf) < 26 {
		return newError(ErrInvalidParam, "StreamCtrl.Unmarshal", nil)
	}
	c.BmHint = binary.LittleEndian.Uint16(buf[0:2])
	c.BFormatIndex = buf[2]
	c.BFrameIndex = buf[3]
	c.DwFrameInterval = binary.LittleEndian.Uint32(buf[4:8])
	c.WKeyFrameRate = binary.LittleEndian.Uint16(buf[8:10])
	c.WPFrameRate = binary.LittleEndian.Uint16(buf[10:12])
	c.WCompQuality = binary.LittleEndian.Uint16(buf[12:14])
	c.WCompWindowSize = binary.LittleEndian.Uint16(buf[14:16])
	c.WDelay = binary.LittleEndian.Uint16(buf[16:18])
	c.DwMaxVideoFrameSize = binary.LittleEndian.Uint32(buf[18:22])
	c.DwMaxPayloadTransferSize = binary.LittleEndian.Uint32(buf[22:26])

	if len(buf) >= 34 {
		c.DwClockFrequency = binary.LittleEndian.Uint32(buf[26:30])
		c.BmFramingInfo = buf[30]
		c.BPreferredVersion = buf[31]
		c.BMinVersion = buf[32]
		c.BMaxVersion = buf[33]
	}
	return nil
}

// QueryStreamCtrl issues a probe or commit control transfer. For SET_CUR,
// ctrl is serialised and sent; for any GET op, the transfer is issued and
// the response is decoded back into ctrl.
func (d *Device) QueryStreamCtrl(ctrl *StreamCtrl, probe bool, op CtrlOp) error {
	selector := uint16(vsCommitControl)
	if probe {
		selector = vsProbeControl
	}
	value := selector << 8
	index := uint16(ctrl.BInterfaceNumber)

	if op == OpSetCur {
		buf := ctrl.Marshal(d.bcdUVC)
		n, err := d.handle.ControlTransfer(0x21, op.request(), value, index, buf, d.controlTimeout)
		if err != nil {
			return wrapUSBError("QueryStreamCtrl", err)
		}
		if n <= 0 {
			return newError(ErrIO, "QueryStreamCtrl", nil)
		}
		return nil
	}

	buf := make([]byte, ctrlLength(d.bcdUVC))
	n, err := d.handle.ControlTransfer(0xA1, op.request(), value, index, buf, d.controlTimeout)
	if err != nil {
		return wrapUSBError("QueryStreamCtrl", err)
	}
	if n <= 0 {
		return newError(ErrIO, "QueryStreamCtrl", nil)
	}
	if err := ctrl.Unmarshal(buf[:n]); err != nil {
		return err
	}

	if ctrl.DwMaxVideoFrameSize == 0 {
		if fd := d.findFrameDescriptor(ctrl.BFormatIndex, ctrl.BFrameIndex); fd != nil {
			ctrl.DwMaxVideoFrameSize = fd.MaxVideoFrameBufferSize
		}
	}

	return nil
}

const controlTransferTimeout = 5 * time.Second

// probeStreamCtrl runs the two-step probe handshake (§4.4): send the
// candidate block, read back what the device will actually grant, and
// verify the fields that matter agree. It does not commit.
func (d *Device) probeStreamCtrl(ctrl *StreamCtrl) error {
	requested := *ctrl

	if err := d.QueryStreamCtrl(ctrl, true, OpSetCur); err != nil {
		return err
	}
	if err := d.QueryStreamCtrl(ctrl, true, OpGetCur); err != nil {
		return err
	}

	if ctrl.BFormatIndex != requested.BFormatIndex ||
		ctrl.BFrameIndex != requested.BFrameIndex ||
		ctrl.DwMaxPayloadTransferSize != requested.DwMaxPayloadTransferSize {
		return newError(ErrInvalidMode, "probeStreamCtrl", nil)
	}
	return nil
}
