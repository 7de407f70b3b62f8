package usb

import (
	"strconv"
	"strings"
	"sync"
)

// Context tracks enumerated devices, mirroring libusb_context's role without
// requiring cgo. It does not track async transfer managers.
type Context struct {
	mu      sync.RWMutex
	devices []*Device
}

func NewContext() (*Context, error) {
	return &Context{devices: make([]*Device, 0)}, nil
}

// GetDeviceList re-enumerates all USB devices visible via sysfs.
func (c *Context) GetDeviceList() ([]*Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	enumerator := NewSysfsEnumerator()
	sysfsDevices, err := enumerator.EnumerateDevices()
	if err != nil {
		return nil, err
	}

	devices := make([]*Device, 0, len(sysfsDevices))
	for _, sd := range sysfsDevices {
		d := sd.ToUSBDevice()
		d.context = c
		devices = append(devices, d)
	}

	c.devices = devices
	return devices, nil
}

// OpenDevice finds the first device matching vendorID:productID and opens it.
func (c *Context) OpenDevice(vendorID, productID uint16) (*DeviceHandle, error) {
	devices, err := c.GetDeviceList()
	if err != nil {
		return nil, err
	}
	for _, dev := range devices {
		if dev.Descriptor.VendorID == vendorID && dev.Descriptor.ProductID == productID {
			return dev.Open()
		}
	}
	return nil, ErrDeviceNotFound
}

func (c *Context) OpenDeviceWithPath(path string) (*DeviceHandle, error) {
	devices, err := c.GetDeviceList()
	if err != nil {
		return nil, err
	}
	for _, dev := range devices {
		if dev.Path == path {
			return dev.Open()
		}
	}
	return nil, ErrDeviceNotFound
}

// Close closes every device handle this context opened.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, dev := range c.devices {
		if dev.handle != nil {
			dev.handle.Close()
		}
	}
	c.devices = nil
	return nil
}

func GetVersion() string {
	return "1.0.0"
}

func GetCapabilities() map[string]bool {
	return map[string]bool{
		"has_capability":                true,
		"has_hotplug":                   false,
		"supports_detach_kernel_driver": true,
	}
}

// IsValidDevicePath reports whether path looks like a usbfs device node
// (/dev/bus/usb/BBB/DDD).
func IsValidDevicePath(path string) bool {
	if !strings.HasPrefix(path, "/dev/bus/usb/") {
		return false
	}
	parts := strings.Split(path, "/")
	if len(parts) != 6 {
		return false
	}
	busNum, err := strconv.Atoi(parts[4])
	if err != nil || busNum < 0 || busNum > 255 {
		return false
	}
	devNum, err := strconv.Atoi(parts[5])
	if err != nil || devNum < 0 || devNum > 255 {
		return false
	}
	return true
}

// DeviceList is a package-level convenience wrapping a throwaway Context, for
// callers that don't need to manage a Context's lifetime themselves.
func DeviceList() ([]*Device, error) {
	ctx, err := NewContext()
	if err != nil {
		return nil, err
	}
	return ctx.GetDeviceList()
}

// OpenDevice opens the first device matching vendorID:productID via a
// throwaway Context.
func OpenDevice(vendorID, productID uint16) (*DeviceHandle, error) {
	ctx, err := NewContext()
	if err != nil {
		return nil, err
	}
	return ctx.OpenDevice(vendorID, productID)
}
