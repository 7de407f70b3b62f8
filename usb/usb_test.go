package usb

import "testing"

func TestIsValidDevicePath(t *testing.T) {
	tests := []struct {
		name string
		path string
		want bool
	}{
		{"valid", "/dev/bus/usb/001/002", true},
		{"valid_high_numbers", "/dev/bus/usb/255/255", true},
		{"wrong_prefix", "/dev/usb/001/002", false},
		{"too_few_segments", "/dev/bus/usb/001", false},
		{"too_many_segments", "/dev/bus/usb/001/002/003", false},
		{"non_numeric_bus", "/dev/bus/usb/abc/002", false},
		{"non_numeric_device", "/dev/bus/usb/001/xyz", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidDevicePath(tt.path); got != tt.want {
				t.Errorf("IsValidDevicePath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestErrnoToErr(t *testing.T) {
	tests := []struct {
		name string
		errn func() error
		want error
	}{
		{"eagain_maps_to_timeout", func() error { return errnoToErr(11) }, ErrTimeout}, // EAGAIN == 11 on linux/amd64
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.errn(); got != tt.want {
				t.Errorf("errnoToErr() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetCapabilities(t *testing.T) {
	caps := GetCapabilities()
	if !caps["has_capability"] {
		t.Error("expected has_capability to be true")
	}
}

func TestGetVersion(t *testing.T) {
	if GetVersion() == "" {
		t.Error("GetVersion() returned empty string")
	}
}

func TestUSBIDDatabaseBasicEntries(t *testing.T) {
	if name := VendorName(0x046d); name == "" {
		t.Error("expected built-in Logitech vendor entry")
	}
	if name := ProductName(0x046d, 0x08e5); name == "" {
		t.Error("expected built-in C920 product entry")
	}
	if name := ClassName(0x0e); name != "Video" {
		t.Errorf("ClassName(0x0e) = %q, want Video", name)
	}
	if name := VendorName(0xffff); name != "" {
		t.Errorf("VendorName(unregistered) = %q, want empty", name)
	}
}

func TestTransferTypeValues(t *testing.T) {
	tests := []struct {
		name       string
		bmAttrs    uint8
		wantType   TransferType
	}{
		{"control", 0x00, TransferTypeControl},
		{"isochronous", 0x01, TransferTypeIsochronous},
		{"bulk", 0x02, TransferTypeBulk},
		{"interrupt", 0x03, TransferTypeInterrupt},
		{"isochronous_with_sync_bits", 0x05, TransferTypeIsochronous},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep := Endpoint{Attributes: tt.bmAttrs}
			if got := ep.GetTransferType(); got != tt.wantType {
				t.Errorf("GetTransferType() = %v, want %v", got, tt.wantType)
			}
		})
	}
}
