package uvc

import "encoding/binary"

// unitKind selects which entity ID a control targets.
type unitKind uint8

const (
	unitCameraTerminal unitKind = iota
	unitProcessingUnit
	unitSelectorUnit
	unitStreamingInterface
)

// controlSpec names one control's wire shape: which entity it targets, its
// selector byte, payload width, and signedness. A single generic accessor
// pair (GetControl/SetControl) replaces the large family of hand-written
// per-control wrappers this table would otherwise require.
type controlSpec struct {
	name     string
	unit     unitKind
	selector uint8
	length   int
	signed   bool
}

// Camera terminal controls, CT_* selectors 0x01-0x11 (UVC 1.5 §4.2.2.1).
var (
	ctScanningMode        = controlSpec{"ScanningMode", unitCameraTerminal, 0x01, 1, false}
	ctAEMode              = controlSpec{"AutoExposureMode", unitCameraTerminal, 0x02, 1, false}
	ctAEPriority          = controlSpec{"AutoExposurePriority", unitCameraTerminal, 0x03, 1, false}
	ctExposureTimeAbs     = controlSpec{"ExposureTimeAbsolute", unitCameraTerminal, 0x04, 4, false}
	ctExposureTimeRel     = controlSpec{"ExposureTimeRelative", unitCameraTerminal, 0x05, 1, true}
	ctFocusAbs            = controlSpec{"FocusAbsolute", unitCameraTerminal, 0x06, 2, false}
	ctFocusRel            = controlSpec{"FocusRelative", unitCameraTerminal, 0x07, 2, true}
	ctFocusAuto           = controlSpec{"FocusAuto", unitCameraTerminal, 0x08, 1, false}
	ctIrisAbs             = controlSpec{"IrisAbsolute", unitCameraTerminal, 0x09, 2, false}
	ctIrisRel             = controlSpec{"IrisRelative", unitCameraTerminal, 0x0A, 1, true}
	ctZoomAbs             = controlSpec{"ZoomAbsolute", unitCameraTerminal, 0x0B, 2, false}
	ctZoomRel             = controlSpec{"ZoomRelative", unitCameraTerminal, 0x0C, 3, true}
	ctPanTiltAbs          = controlSpec{"PanTiltAbsolute", unitCameraTerminal, 0x0D, 8, false}
	ctPanTiltRel          = controlSpec{"PanTiltRelative", unitCameraTerminal, 0x0E, 4, true}
	ctRollAbs             = controlSpec{"RollAbsolute", unitCameraTerminal, 0x0F, 2, true}
	ctRollRel             = controlSpec{"RollRelative", unitCameraTerminal, 0x10, 2, true}
	ctPrivacy             = controlSpec{"Privacy", unitCameraTerminal, 0x11, 1, false}
)

// Processing unit controls, PU_* selectors 0x01-0x12 (UVC 1.5 §4.2.2.3).
var (
	puBacklightCompensation = controlSpec{"BacklightCompensation", unitProcessingUnit, 0x01, 2, false}
	puBrightness            = controlSpec{"Brightness", unitProcessingUnit, 0x02, 2, true}
	puContrast              = controlSpec{"Contrast", unitProcessingUnit, 0x03, 2, false}
	puGain                  = controlSpec{"Gain", unitProcessingUnit, 0x04, 2, false}
	puPowerLineFrequency    = controlSpec{"PowerLineFrequency", unitProcessingUnit, 0x05, 1, false}
	puHue                   = controlSpec{"Hue", unitProcessingUnit, 0x06, 2, true}
	puSaturation            = controlSpec{"Saturation", unitProcessingUnit, 0x07, 2, false}
	puSharpness             = controlSpec{"Sharpness", unitProcessingUnit, 0x08, 2, false}
	puGamma                 = controlSpec{"Gamma", unitProcessingUnit, 0x09, 2, false}
	puWhiteBalanceTempo     = controlSpec{"WhiteBalanceTemperature", unitProcessingUnit, 0x0A, 2, false}
	puWhiteBalanceTempoAuto = controlSpec{"WhiteBalanceTemperatureAuto", unitProcessingUnit, 0x0B, 1, false}
	puWhiteBalanceComp      = controlSpec{"WhiteBalanceComponent", unitProcessingUnit, 0x0C, 4, false}
	puWhiteBalanceCompAuto  = controlSpec{"WhiteBalanceComponentAuto", unitProcessingUnit, 0x0D, 1, false}
	puDigitalMultiplier     = controlSpec{"DigitalMultiplier", unitProcessingUnit, 0x0E, 2, false}
	puDigitalMultiplierLim  = controlSpec{"DigitalMultiplierLimit", unitProcessingUnit, 0x0F, 2, false}
	puAnalogVideoStandard   = controlSpec{"AnalogVideoStandard", unitProcessingUnit, 0x10, 1, false}
	puAnalogVideoLockStatus = controlSpec{"AnalogVideoLockStatus", unitProcessingUnit, 0x11, 1, false}
	puContrastAuto          = controlSpec{"ContrastAuto", unitProcessingUnit, 0x12, 1, false}
)

// Selector unit input-select control.
var suInputSelect = controlSpec{"InputSelect", unitSelectorUnit, 0x01, 1, false}

// VS_STILL_IMAGE_TRIGGER_CONTROL — method-2 still capture, issued against
// the streaming interface rather than a VC unit.
var vsStillImageTrigger = controlSpec{"StillImageTrigger", unitStreamingInterface, 0x05, 1, false}

func (d *Device) entityID(unit unitKind) uint8 {
	switch unit {
	case unitCameraTerminal:
		return d.control.CameraTerminalID
	case unitProcessingUnit:
		return d.control.ProcessingUnitID
	case unitSelectorUnit:
		if len(d.control.SelectorUnitIDs) > 0 {
			return d.control.SelectorUnitIDs[0]
		}
		return 0
	default:
		return 0
	}
}

// GetControl issues op (one of the probe/commit verbs, reused here for the
// GET_CUR/GET_MIN/GET_MAX/GET_RES/GET_DEF family) against spec's entity and
// decodes the result as a signed or unsigned integer of spec.length bytes.
func (d *Device) GetControl(spec controlSpec, op CtrlOp) (int32, error) {
	var index uint16
	if spec.unit == unitStreamingInterface {
		index = uint16(d.findStreamingInterfaceNumber())
	} else {
		index = uint16(d.entityID(spec.unit)) << 8
	}
	value := uint16(spec.selector) << 8

	buf := make([]byte, spec.length)
	n, err := d.handle.ControlTransfer(0xA1, op.request(), value, index, buf, d.controlTimeout)
	if err != nil {
		return 0, wrapUSBError("GetControl", err)
	}
	if n <= 0 {
		return 0, newError(ErrIO, "GetControl", nil)
	}
	return decodeControlValue(buf[:n], spec.signed), nil
}

// SetControl issues SET_CUR against spec's entity, encoding value into
// spec.length little-endian bytes.
func (d *Device) SetControl(spec controlSpec, value int32) error {
	var index uint16
	if spec.unit == unitStreamingInterface {
		index = uint16(d.findStreamingInterfaceNumber())
	} else {
		index = uint16(d.entityID(spec.unit)) << 8
	}
	wValue := uint16(spec.selector) << 8

	buf := encodeControlValue(value, spec.length)
	n, err := d.handle.ControlTransfer(0x21, reqSetCur, wValue, index, buf, d.controlTimeout)
	if err != nil {
		return wrapUSBError("SetControl", err)
	}
	if n <= 0 {
		return newError(ErrIO, "SetControl", nil)
	}
	return nil
}

func (d *Device) findStreamingInterfaceNumber() uint8 {
	if len(d.streaming) > 0 {
		return d.streaming[0].Number
	}
	return 0
}

func decodeControlValue(buf []byte, signed bool) int32 {
	var u uint32
	switch len(buf) {
	case 1:
		u = uint32(buf[0])
	case 2:
		u = uint32(binary.LittleEndian.Uint16(buf))
	case 3:
		u = uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16
	default:
		u = binary.LittleEndian.Uint32(buf)
	}
	if !signed {
		return int32(u)
	}
	switch len(buf) {
	case 1:
		return int32(int8(u))
	case 2:
		return int32(int16(u))
	case 3:
		if u&0x800000 != 0 {
			u |= 0xFF000000
		}
		return int32(u)
	default:
		return int32(u)
	}
}

func encodeControlValue(value int32, length int) []byte {
	buf := make([]byte, length)
	u := uint32(value)
	switch length {
	case 1:
		buf[0] = byte(u)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(u))
	case 3:
		buf[0] = byte(u)
		buf[1] = byte(u >> 8)
		buf[2] = byte(u >> 16)
	default:
		binary.LittleEndian.PutUint32(buf, u)
	}
	return buf
}

// Named wrapper methods: one-line calls into the generic pair, standing in
// for the 100+ hand-written per-control accessors a direct port would carry.

func (d *Device) GetBrightness() (int32, error)    { return d.GetControl(puBrightness, OpGetCur) }
func (d *Device) SetBrightness(v int32) error      { return d.SetControl(puBrightness, v) }
func (d *Device) GetContrast() (int32, error)       { return d.GetControl(puContrast, OpGetCur) }
func (d *Device) SetContrast(v int32) error          { return d.SetControl(puContrast, v) }
func (d *Device) GetSaturation() (int32, error)      { return d.GetControl(puSaturation, OpGetCur) }
func (d *Device) SetSaturation(v int32) error        { return d.SetControl(puSaturation, v) }
func (d *Device) GetSharpness() (int32, error)       { return d.GetControl(puSharpness, OpGetCur) }
func (d *Device) SetSharpness(v int32) error         { return d.SetControl(puSharpness, v) }
func (d *Device) GetGain() (int32, error)            { return d.GetControl(puGain, OpGetCur) }
func (d *Device) SetGain(v int32) error              { return d.SetControl(puGain, v) }
func (d *Device) GetWhiteBalanceTemperature() (int32, error) {
	return d.GetControl(puWhiteBalanceTempo, OpGetCur)
}
func (d *Device) SetWhiteBalanceTemperature(v int32) error {
	return d.SetControl(puWhiteBalanceTempo, v)
}
func (d *Device) GetWhiteBalanceTemperatureAuto() (int32, error) {
	return d.GetControl(puWhiteBalanceTempoAuto, OpGetCur)
}
func (d *Device) SetWhiteBalanceTemperatureAuto(v int32) error {
	return d.SetControl(puWhiteBalanceTempoAuto, v)
}

func (d *Device) GetAutoExposureMode() (int32, error) { return d.GetControl(ctAEMode, OpGetCur) }
func (d *Device) SetAutoExposureMode(v int32) error    { return d.SetControl(ctAEMode, v) }
func (d *Device) GetExposureTimeAbsolute() (int32, error) {
	return d.GetControl(ctExposureTimeAbs, OpGetCur)
}
func (d *Device) SetExposureTimeAbsolute(v int32) error {
	return d.SetControl(ctExposureTimeAbs, v)
}
func (d *Device) GetFocusAbsolute() (int32, error) { return d.GetControl(ctFocusAbs, OpGetCur) }
func (d *Device) SetFocusAbsolute(v int32) error    { return d.SetControl(ctFocusAbs, v) }
func (d *Device) GetFocusAuto() (int32, error)      { return d.GetControl(ctFocusAuto, OpGetCur) }
func (d *Device) SetFocusAuto(v int32) error         { return d.SetControl(ctFocusAuto, v) }
func (d *Device) GetZoomAbsolute() (int32, error)    { return d.GetControl(ctZoomAbs, OpGetCur) }
func (d *Device) SetZoomAbsolute(v int32) error       { return d.SetControl(ctZoomAbs, v) }
func (d *Device) GetPanTiltAbsolute() (int32, error) { return d.GetControl(ctPanTiltAbs, OpGetCur) }
func (d *Device) SetPanTiltAbsolute(v int32) error    { return d.SetControl(ctPanTiltAbs, v) }

// TriggerStillCapture issues VS_STILL_IMAGE_TRIGGER_CONTROL (method 2):
// interleaves a still image into the running video stream.
func (d *Device) TriggerStillCapture() error {
	return d.SetControl(vsStillImageTrigger, 1)
}
