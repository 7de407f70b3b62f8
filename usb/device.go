package usb

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DeviceDescriptor is the standard 18-byte USB device descriptor.
type DeviceDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	USBVersion        uint16
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize0    uint8
	VendorID          uint16
	ProductID         uint16
	DeviceVersion     uint16
	ManufacturerIndex uint8
	ProductIndex      uint8
	SerialNumberIndex uint8
	NumConfigurations uint8
}

// SuperSpeedEndpointCompanionDescriptor follows a USB 3.x bulk/iso/interrupt
// endpoint descriptor and carries burst/streaming capacity.
type SuperSpeedEndpointCompanionDescriptor struct {
	Length           uint8
	DescriptorType   uint8
	MaxBurst         uint8
	Attributes       uint8
	BytesPerInterval uint16
}

// InterfaceAssocDescriptor groups a run of interfaces into one logical
// function, used by composite devices (e.g. a UVC webcam with audio).
type InterfaceAssocDescriptor struct {
	Length           uint8
	DescriptorType   uint8
	FirstInterface   uint8
	InterfaceCount   uint8
	FunctionClass    uint8
	FunctionSubClass uint8
	FunctionProtocol uint8
	Function         uint8
}

// BOSDescriptor is the USB 3.x Binary Object Store header.
type BOSDescriptor struct {
	Length         uint8
	DescriptorType uint8
	TotalLength    uint16
	NumDeviceCaps  uint8
}

// DeviceCapabilityDescriptor is one entry of a BOS descriptor's capability list.
type DeviceCapabilityDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	DevCapabilityType uint8
}

// DeviceQualifierDescriptor describes how a device would behave at the other
// USB speed than the one it's currently operating at (USB 2.0 §9.6.2).
type DeviceQualifierDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	USBVersion        uint16
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize0    uint8
	NumConfigurations uint8
	Reserved          uint8
}

// Device represents an enumerated USB device, not yet opened.
type Device struct {
	Path         string
	Bus          uint8
	Address      uint8
	Descriptor   DeviceDescriptor
	sysfsStrings *SysfsStrings

	context *Context
	handle  *DeviceHandle
	mu      sync.RWMutex
}

// SysfsStrings holds string descriptors cached from sysfs at enumeration
// time, so callers don't need an open handle just to print a device's name.
type SysfsStrings struct {
	Manufacturer string
	Product      string
	Serial       string
}

// DeviceHandle is an open USB device, backed by a usbfs file descriptor.
type DeviceHandle struct {
	device        *Device
	fd            int
	claimedIfaces map[uint8]bool
	mu            sync.RWMutex
	closed        bool

	asyncManager *AsyncTransferManager
}

func (d *Device) loadDescriptor() error {
	sysfsPath := fmt.Sprintf("/sys/bus/usb/devices/%03d-%03d", d.Bus, d.Address)
	if d.loadFromSysfs(sysfsPath) == nil {
		return nil
	}

	file, err := os.Open(d.Path)
	if err != nil {
		return err
	}
	defer file.Close()

	buf := make([]byte, 18)
	n, err := file.Read(buf)
	if err != nil || n < 18 {
		return fmt.Errorf("failed to read device descriptor: %w", err)
	}

	d.Descriptor = DeviceDescriptor{
		Length:            buf[0],
		DescriptorType:    buf[1],
		USBVersion:        binary.LittleEndian.Uint16(buf[2:4]),
		DeviceClass:       buf[4],
		DeviceSubClass:    buf[5],
		DeviceProtocol:    buf[6],
		MaxPacketSize0:    buf[7],
		VendorID:          binary.LittleEndian.Uint16(buf[8:10]),
		ProductID:         binary.LittleEndian.Uint16(buf[10:12]),
		DeviceVersion:     binary.LittleEndian.Uint16(buf[12:14]),
		ManufacturerIndex: buf[14],
		ProductIndex:      buf[15],
		SerialNumberIndex: buf[16],
		NumConfigurations: buf[17],
	}

	return nil
}

func (d *Device) loadFromSysfs(sysfsPath string) error {
	readHex := func(path string) (uint16, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, err
		}
		var val uint16
		fmt.Sscanf(strings.TrimSpace(string(data)), "%x", &val)
		return val, nil
	}

	readDec := func(path string) (uint8, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, err
		}
		var val uint8
		fmt.Sscanf(strings.TrimSpace(string(data)), "%d", &val)
		return val, nil
	}

	vid, err := readHex(filepath.Join(sysfsPath, "idVendor"))
	if err != nil {
		return err
	}
	pid, err := readHex(filepath.Join(sysfsPath, "idProduct"))
	if err != nil {
		return err
	}
	bcdUSB, err := readHex(filepath.Join(sysfsPath, "bcdUSB"))
	if err != nil {
		return err
	}
	bcdDevice, err := readHex(filepath.Join(sysfsPath, "bcdDevice"))
	if err != nil {
		return err
	}
	devClass, err := readDec(filepath.Join(sysfsPath, "bDeviceClass"))
	if err != nil {
		return err
	}
	devSubClass, err := readDec(filepath.Join(sysfsPath, "bDeviceSubClass"))
	if err != nil {
		return err
	}
	devProtocol, err := readDec(filepath.Join(sysfsPath, "bDeviceProtocol"))
	if err != nil {
		return err
	}
	maxPacketSize, err := readDec(filepath.Join(sysfsPath, "bMaxPacketSize0"))
	if err != nil {
		return err
	}
	numConfigs, err := readDec(filepath.Join(sysfsPath, "bNumConfigurations"))
	if err != nil {
		return err
	}

	d.Descriptor = DeviceDescriptor{
		Length:            18,
		DescriptorType:    1,
		USBVersion:        bcdUSB,
		DeviceClass:       devClass,
		DeviceSubClass:    devSubClass,
		DeviceProtocol:    devProtocol,
		MaxPacketSize0:    maxPacketSize,
		VendorID:          vid,
		ProductID:         pid,
		DeviceVersion:     bcdDevice,
		ManufacturerIndex: 1,
		ProductIndex:      2,
		SerialNumberIndex: 3,
		NumConfigurations: numConfigs,
	}

	return nil
}

// Open claims the device's usbfs node for exclusive control-plane access.
func (d *Device) Open() (*DeviceHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle != nil && !d.handle.closed {
		return nil, ErrDeviceBusy
	}

	fd, err := unix.Open(d.Path, unix.O_RDWR, 0)
	if err != nil {
		if err == unix.EACCES {
			return nil, ErrPermissionDenied
		}
		return nil, fmt.Errorf("failed to open device: %w", err)
	}

	handle := &DeviceHandle{
		device:        d,
		fd:            fd,
		claimedIfaces: make(map[uint8]bool),
		closed:        false,
	}

	d.handle = handle
	return handle, nil
}

// Close releases any claimed interfaces and closes the underlying file
// descriptor. Managers returned by NewAsyncTransferManager are not recorded
// in asyncManager, so Close does not stop them.
func (h *DeviceHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}

	if h.asyncManager != nil {
		h.asyncManager.Close()
	}

	for iface := range h.claimedIfaces {
		h.releaseInterfaceInternal(iface)
	}

	err := unix.Close(h.fd)
	h.closed = true
	h.device.handle = nil

	return err
}

func (h *DeviceHandle) GetDescriptor() DeviceDescriptor {
	return h.device.Descriptor
}

func (h *DeviceHandle) ioctl(req uintptr, arg unsafe.Pointer) (int, error) {
	ret, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(h.fd), req, uintptr(arg))
	if errno != 0 {
		return 0, errnoToErr(errno)
	}
	return int(ret), nil
}

func (h *DeviceHandle) GetConfiguration() (int, error) {
	buf := make([]byte, 1)
	ctrl := usbCtrlRequest{
		RequestType: 0x80,
		Request:     ReqGetConfiguration,
		Length:      uint16(len(buf)),
		Data:        unsafe.Pointer(&buf[0]),
	}
	if _, err := h.ioctl(usbdevfsControl, unsafe.Pointer(&ctrl)); err != nil {
		return 0, err
	}
	return int(buf[0]), nil
}

func (h *DeviceHandle) SetConfiguration(config int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrDeviceNotFound
	}
	cfg := uint32(config)
	_, err := h.ioctl(usbdevfsSetConfiguration, unsafe.Pointer(&cfg))
	return err
}

func (h *DeviceHandle) ClaimInterface(iface uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrDeviceNotFound
	}
	if h.claimedIfaces[iface] {
		return nil
	}
	ifaceNum := uint32(iface)
	if _, err := h.ioctl(usbdevfsClaimInterface, unsafe.Pointer(&ifaceNum)); err != nil {
		return err
	}
	h.claimedIfaces[iface] = true
	return nil
}

func (h *DeviceHandle) ReleaseInterface(iface uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrDeviceNotFound
	}
	return h.releaseInterfaceInternal(iface)
}

func (h *DeviceHandle) releaseInterfaceInternal(iface uint8) error {
	if !h.claimedIfaces[iface] {
		return nil
	}
	ifaceNum := uint32(iface)
	if _, err := h.ioctl(usbdevfsReleaseInterface, unsafe.Pointer(&ifaceNum)); err != nil {
		return err
	}
	delete(h.claimedIfaces, iface)
	return nil
}

func (h *DeviceHandle) SetInterfaceAltSetting(iface uint8, altSetting uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrDeviceNotFound
	}
	if !h.claimedIfaces[iface] {
		return fmt.Errorf("interface %d not claimed", iface)
	}

	setIface := struct {
		Interface  uint32
		AltSetting uint32
	}{
		Interface:  uint32(iface),
		AltSetting: uint32(altSetting),
	}

	_, err := h.ioctl(usbdevfsSetInterface, unsafe.Pointer(&setIface))
	return err
}

func (h *DeviceHandle) ClearHalt(endpoint uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrDeviceNotFound
	}
	ep := uint32(endpoint)
	_, err := h.ioctl(usbdevfsClearHalt, unsafe.Pointer(&ep))
	return err
}

// DetachKernelDriver disconnects whatever kernel driver is bound to iface so
// this process can talk to it directly. Tries the newer DISCONNECT_CLAIM
// ioctl first, falling back to plain DISCONNECT on older kernels.
func (h *DeviceHandle) DetachKernelDriver(iface uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrDeviceNotFound
	}

	disconnectIface := struct {
		Interface uint32
		Flags     uint32
		Driver    [256]int8
	}{
		Interface: uint32(iface),
		Flags:     0x01, // USBDEVFS_DISCONNECT_CLAIM_IF_DRIVER
	}

	if _, err := h.ioctl(usbdevfsDisconnectClaim, unsafe.Pointer(&disconnectIface)); err == nil {
		return nil
	}

	ifaceNum := uint32(iface)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(h.fd), usbdevfsDisconnect, uintptr(unsafe.Pointer(&ifaceNum)))
	if errno != 0 {
		if errno == unix.ENODATA {
			return nil
		}
		return errnoToErr(errno)
	}
	return nil
}

func (h *DeviceHandle) AttachKernelDriver(iface uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrDeviceNotFound
	}

	ifaceNum := uint32(iface)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(h.fd), usbdevfsConnect, uintptr(unsafe.Pointer(&ifaceNum)))
	if errno != 0 {
		if errno == unix.ENODATA || errno == unix.EBUSY {
			return nil
		}
		return errnoToErr(errno)
	}
	return nil
}

// GetStatus gets device (requestType=0x80), interface (0x81), or endpoint (0x82) status.
func (h *DeviceHandle) GetStatus(requestType uint8, index uint16) (uint16, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0, ErrDeviceNotFound
	}

	buf := make([]byte, 2)
	ctrl := usbCtrlRequest{
		RequestType: requestType,
		Request:     ReqGetStatus,
		Index:       index,
		Length:      2,
		Data:        unsafe.Pointer(&buf[0]),
	}
	if _, err := h.ioctl(usbdevfsControl, unsafe.Pointer(&ctrl)); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf), nil
}

func (h *DeviceHandle) ClearFeature(requestType uint8, feature uint16, index uint16) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrDeviceNotFound
	}
	ctrl := usbCtrlRequest{RequestType: requestType, Request: ReqClearFeature, Value: feature, Index: index}
	_, err := h.ioctl(usbdevfsControl, unsafe.Pointer(&ctrl))
	return err
}

func (h *DeviceHandle) SetFeature(requestType uint8, feature uint16, index uint16) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrDeviceNotFound
	}
	ctrl := usbCtrlRequest{RequestType: requestType, Request: ReqSetFeature, Value: feature, Index: index}
	_, err := h.ioctl(usbdevfsControl, unsafe.Pointer(&ctrl))
	return err
}

func (h *DeviceHandle) GetInterface(iface uint8) (uint8, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0, ErrDeviceNotFound
	}

	buf := make([]byte, 1)
	ctrl := usbCtrlRequest{
		RequestType: 0x81,
		Request:     ReqGetInterface,
		Index:       uint16(iface),
		Length:      1,
		Data:        unsafe.Pointer(&buf[0]),
	}
	if _, err := h.ioctl(usbdevfsControl, unsafe.Pointer(&ctrl)); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (h *DeviceHandle) GetRawDescriptor(descType uint8, descIndex uint8, langID uint16, data []byte) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0, ErrDeviceNotFound
	}

	var dataPtr unsafe.Pointer
	if len(data) > 0 {
		dataPtr = unsafe.Pointer(&data[0])
	}
	ctrl := usbCtrlRequest{
		RequestType: 0x80,
		Request:     ReqGetDescriptor,
		Value:       (uint16(descType) << 8) | uint16(descIndex),
		Index:       langID,
		Length:      uint16(len(data)),
		Data:        dataPtr,
	}
	return h.ioctl(usbdevfsControl, unsafe.Pointer(&ctrl))
}

func (h *DeviceHandle) SetDescriptor(descType uint8, descIndex uint8, langID uint16, data []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrDeviceNotFound
	}

	var dataPtr unsafe.Pointer
	if len(data) > 0 {
		dataPtr = unsafe.Pointer(&data[0])
	}
	ctrl := usbCtrlRequest{
		RequestType: 0x00,
		Request:     ReqSetDescriptor,
		Value:       (uint16(descType) << 8) | uint16(descIndex),
		Index:       langID,
		Length:      uint16(len(data)),
		Data:        dataPtr,
	}
	_, err := h.ioctl(usbdevfsControl, unsafe.Pointer(&ctrl))
	return err
}

func (h *DeviceHandle) SynchFrame(endpoint uint8) (uint16, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0, ErrDeviceNotFound
	}

	buf := make([]byte, 2)
	ctrl := usbCtrlRequest{
		RequestType: 0x82,
		Request:     ReqSynchFrame,
		Index:       uint16(endpoint),
		Length:      2,
		Data:        unsafe.Pointer(&buf[0]),
	}
	if _, err := h.ioctl(usbdevfsControl, unsafe.Pointer(&ctrl)); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf), nil
}

func (h *DeviceHandle) GetCapabilities() (uint32, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0, ErrDeviceNotFound
	}
	var caps uint32
	_, err := h.ioctl(usbdevfsGetCapabilities, unsafe.Pointer(&caps))
	return caps, err
}

func (h *DeviceHandle) GetSpeed() (uint8, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0, ErrDeviceNotFound
	}
	var speed uint32
	_, err := h.ioctl(usbdevfsGetSpeed, unsafe.Pointer(&speed))
	return uint8(speed), err
}

func (h *DeviceHandle) AllocStreams(numStreams uint32, endpoints []uint8) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrDeviceNotFound
	}
	streams := struct {
		NumStreams uint32
		NumEps     uint32
		Eps        [30]uint8
	}{NumStreams: numStreams, NumEps: uint32(len(endpoints))}
	copy(streams.Eps[:], endpoints)
	_, err := h.ioctl(usbdevfsAllocStreams, unsafe.Pointer(&streams))
	return err
}

func (h *DeviceHandle) FreeStreams(endpoints []uint8) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrDeviceNotFound
	}
	streams := struct {
		NumEps uint32
		Eps    [30]uint8
	}{NumEps: uint32(len(endpoints))}
	copy(streams.Eps[:], endpoints)
	_, err := h.ioctl(usbdevfsFreeStreams, unsafe.Pointer(&streams))
	return err
}

func (h *DeviceHandle) ReadBOSDescriptor() (*BOSDescriptor, []DeviceCapabilityDescriptor, error) {
	buf := make([]byte, 5)
	n, err := h.GetRawDescriptor(DescriptorTypeBOS, 0, 0, buf)
	if err != nil || n < 5 {
		return nil, nil, fmt.Errorf("failed to read BOS descriptor: %w", err)
	}

	bos := &BOSDescriptor{
		Length:         buf[0],
		DescriptorType: buf[1],
		TotalLength:    binary.LittleEndian.Uint16(buf[2:4]),
		NumDeviceCaps:  buf[4],
	}

	fullBuf := make([]byte, bos.TotalLength)
	n, err = h.GetRawDescriptor(DescriptorTypeBOS, 0, 0, fullBuf)
	if err != nil || n < int(bos.TotalLength) {
		return nil, nil, fmt.Errorf("failed to read full BOS descriptor: %w", err)
	}

	caps := make([]DeviceCapabilityDescriptor, 0, bos.NumDeviceCaps)
	pos := 5
	for i := 0; i < int(bos.NumDeviceCaps) && pos < len(fullBuf); i++ {
		if pos+3 > len(fullBuf) {
			break
		}
		c := DeviceCapabilityDescriptor{
			Length:            fullBuf[pos],
			DescriptorType:    fullBuf[pos+1],
			DevCapabilityType: fullBuf[pos+2],
		}
		caps = append(caps, c)
		pos += int(c.Length)
	}

	return bos, caps, nil
}

func (h *DeviceHandle) ReadDeviceQualifierDescriptor() (*DeviceQualifierDescriptor, error) {
	buf := make([]byte, 10)
	n, err := h.GetRawDescriptor(DescriptorTypeDeviceQualifier, 0, 0, buf)
	if err != nil || n < 10 {
		return nil, fmt.Errorf("failed to read device qualifier: %w", err)
	}

	return &DeviceQualifierDescriptor{
		Length:            buf[0],
		DescriptorType:    buf[1],
		USBVersion:        binary.LittleEndian.Uint16(buf[2:4]),
		DeviceClass:       buf[4],
		DeviceSubClass:    buf[5],
		DeviceProtocol:    buf[6],
		MaxPacketSize0:    buf[7],
		NumConfigurations: buf[8],
		Reserved:          buf[9],
	}, nil
}

func (h *DeviceHandle) SetTestMode(testMode uint8) error {
	return h.SetFeature(0x00, FeatureDeviceTestMode, uint16(testMode)<<8)
}

func (h *DeviceHandle) GetDevice() *Device {
	return h.device
}

func (h *DeviceHandle) StringDescriptor(index uint8) (string, error) {
	if index == 0 {
		return "", nil
	}

	buf := make([]byte, 256)
	ctrl := usbCtrlRequest{
		RequestType: 0x80,
		Request:     ReqGetDescriptor,
		Value:       (uint16(DescriptorTypeString) << 8) | uint16(index),
		Index:       0x0409, // US English; matching the descriptor tree's own langID assumption
		Length:      uint16(len(buf)),
		Data:        unsafe.Pointer(&buf[0]),
	}
	if _, err := h.ioctl(usbdevfsControl, unsafe.Pointer(&ctrl)); err != nil {
		return "", err
	}

	if buf[0] < 2 {
		return "", fmt.Errorf("invalid string descriptor")
	}

	length := int(buf[0])
	if length > len(buf) {
		length = len(buf)
	}

	result := make([]uint16, 0, (length-2)/2)
	for i := 2; i < length; i += 2 {
		if i+1 < length {
			result = append(result, binary.LittleEndian.Uint16(buf[i:i+2]))
		}
	}

	return string(utf16ToRunes(result)), nil
}

func utf16ToRunes(u16 []uint16) []rune {
	runes := make([]rune, 0, len(u16))
	for _, v := range u16 {
		if v == 0 {
			break
		}
		runes = append(runes, rune(v))
	}
	return runes
}

// usbCtrlRequest mirrors struct usbdevfs_ctrltransfer.
type usbCtrlRequest struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
	Timeout     uint32
	Data        unsafe.Pointer
}
