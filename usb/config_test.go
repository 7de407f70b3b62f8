package usb

import (
	"encoding/hex"
	"testing"
)

func TestConfigDescriptorUnmarshal(t *testing.T) {
	tests := []struct {
		name     string
		data     string // hex encoded
		wantErr  bool
		validate func(t *testing.T, c *ConfigDescriptor)
	}{
		{
			name: "simple_config_with_one_interface",
			data: "09022000010100c032" +
				"0904000002ff010000" +
				"0705810240000a" +
				"0705020240000a",
			validate: func(t *testing.T, c *ConfigDescriptor) {
				if c.NumInterfaces != 1 {
					t.Errorf("NumInterfaces = %d, want 1", c.NumInterfaces)
				}
				if c.ConfigurationValue != 1 {
					t.Errorf("ConfigurationValue = %d, want 1", c.ConfigurationValue)
				}
				if c.MaxPower != 0x32 {
					t.Errorf("MaxPower = %d, want 50 (100mA)", c.MaxPower)
				}
				if len(c.Interfaces) != 1 {
					t.Errorf("len(Interfaces) = %d, want 1", len(c.Interfaces))
				}
				if len(c.Interfaces[0].AltSettings) != 1 {
					t.Errorf("len(AltSettings) = %d, want 1", len(c.Interfaces[0].AltSettings))
				}
				alt := c.Interfaces[0].AltSettings[0]
				if alt.NumEndpoints != 2 {
					t.Errorf("NumEndpoints = %d, want 2", alt.NumEndpoints)
				}
				if len(alt.Endpoints) != 2 {
					t.Errorf("len(Endpoints) = %d, want 2", len(alt.Endpoints))
				}
				ep1 := alt.Endpoints[0]
				if ep1.EndpointAddr != 0x81 {
					t.Errorf("Endpoint[0].EndpointAddr = %02x, want 0x81", ep1.EndpointAddr)
				}
				if !ep1.IsInput() {
					t.Error("Endpoint[0] should be IN endpoint")
				}
				if ep1.GetTransferType() != TransferTypeBulk {
					t.Errorf("Endpoint[0] transfer type = %d, want bulk", ep1.GetTransferType())
				}
				ep2 := alt.Endpoints[1]
				if ep2.EndpointAddr != 0x02 {
					t.Errorf("Endpoint[1].EndpointAddr = %02x, want 0x02", ep2.EndpointAddr)
				}
				if !ep2.IsOutput() {
					t.Error("Endpoint[1] should be OUT endpoint")
				}
			},
		},
		{
			name: "config_with_multiple_alt_settings",
			data: "09023b00020100c032" +
				"09040000010e010000" +
				"0705830308000a" +
				"09040100000e020000" +
				"09040101010e020000" +
				"0705810500020001",
			validate: func(t *testing.T, c *ConfigDescriptor) {
				if c.NumInterfaces != 2 {
					t.Errorf("NumInterfaces = %d, want 2", c.NumInterfaces)
				}
				if len(c.Interfaces) != 2 {
					t.Errorf("len(Interfaces) = %d, want 2", len(c.Interfaces))
				}
				if len(c.Interfaces[0].AltSettings) != 1 {
					t.Errorf("Interface[0] AltSettings = %d, want 1", len(c.Interfaces[0].AltSettings))
				}
				if len(c.Interfaces[1].AltSettings) != 2 {
					t.Errorf("Interface[1] AltSettings = %d, want 2", len(c.Interfaces[1].AltSettings))
				}
				if len(c.Interfaces[1].AltSettings[0].Endpoints) != 0 {
					t.Errorf("Interface[1].AltSettings[0] endpoints = %d, want 0",
						len(c.Interfaces[1].AltSettings[0].Endpoints))
				}
				if len(c.Interfaces[1].AltSettings[1].Endpoints) != 1 {
					t.Errorf("Interface[1].AltSettings[1] endpoints = %d, want 1",
						len(c.Interfaces[1].AltSettings[1].Endpoints))
				}
				ep := c.Interfaces[1].AltSettings[1].Endpoints[0]
				if ep.GetTransferType() != TransferTypeIsochronous {
					t.Errorf("Endpoint transfer type = %d, want isochronous", ep.GetTransferType())
				}
			},
		},
		{
			name: "config_with_class_specific_descriptors",
			data: "09024300020100c032" +
				"0904000001030100" + "00" +
				"0921110100012234" +
				"0705810340000a" +
				"0904010002080650" + "00" +
				"0705820240000a" +
				"0705830240000a",
			validate: func(t *testing.T, c *ConfigDescriptor) {
				if len(c.Interfaces[0].AltSettings[0].Extra) == 0 {
					t.Error("Expected class-specific descriptor in Extra")
				}
				extra := c.Interfaces[0].AltSettings[0].Extra
				if len(extra) < 9 || extra[0] != 0x09 || extra[1] != 0x21 {
					t.Errorf("Invalid HID descriptor in Extra: %x", extra)
				}
			},
		},
		{
			name: "config_with_interface_association",
			data: "09024b00030100c032" +
				"080b00020e030000" +
				"0904000001ff0100" +
				"0705810308000a" +
				"0904010000ff0200" +
				"0904020001030100" +
				"0705820308000a",
			validate: func(t *testing.T, c *ConfigDescriptor) {
				if len(c.Extra) < 8 {
					t.Error("Expected IAD in config Extra")
				}
				if c.Extra[0] != 0x08 || c.Extra[1] != 0x0b {
					t.Errorf("Invalid IAD in Extra: %x", c.Extra)
				}
			},
		},
		{
			name: "config_with_superspeed_companion",
			data: "09022e00010100c032" +
				"0904000002ff010000" +
				"0705810240000a" +
				"063000000000" +
				"0705020240000a",
			validate: func(t *testing.T, c *ConfigDescriptor) {
				ep := c.Interfaces[0].AltSettings[0].Endpoints[0]
				if ep.SSCompanion == nil {
					t.Error("Expected SuperSpeed companion descriptor")
				}
				if ep.SSCompanion.DescriptorType != DescriptorTypeSuperSpeedEndpointComp {
					t.Errorf("Wrong companion descriptor type: %02x", ep.SSCompanion.DescriptorType)
				}
			},
		},
		{
			name:    "config_too_short",
			data:    "090220",
			wantErr: true,
		},
		{
			name:    "interface_descriptor_too_short",
			data:    "09022000010100c032" + "07040000000ff0",
			wantErr: true,
		},
		{
			name:    "endpoint_descriptor_too_short",
			data:    "09022000010100c032" + "0904000001ff010000" + "05058102ff",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := hex.DecodeString(tt.data)
			if err != nil {
				t.Fatalf("Failed to decode hex: %v", err)
			}

			c := &ConfigDescriptor{}
			err = c.Unmarshal(data)
			if (err != nil) != tt.wantErr {
				t.Errorf("Unmarshal() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, c)
			}
		})
	}
}

func TestConfigDescriptorHelpers(t *testing.T) {
	data, _ := hex.DecodeString(
		"09023b00020100c032" +
			"09040000010e010000" +
			"0705830308000a" +
			"09040100000e020000" +
			"09040101010e020000" +
			"0705810500020001")

	c := &ConfigDescriptor{}
	if err := c.Unmarshal(data); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}

	t.Run("GetInterface", func(t *testing.T) {
		if c.GetInterface(0) == nil {
			t.Error("GetInterface(0) returned nil")
		}
		if c.GetInterface(1) == nil {
			t.Error("GetInterface(1) returned nil")
		}
		if c.GetInterface(2) != nil {
			t.Error("GetInterface(2) should return nil")
		}
	})

	t.Run("GetInterfaceAltSetting", func(t *testing.T) {
		alt := c.GetInterfaceAltSetting(1, 0)
		if alt == nil {
			t.Error("GetInterfaceAltSetting(1, 0) returned nil")
		} else if alt.AlternateSetting != 0 {
			t.Errorf("Wrong alt setting: %d", alt.AlternateSetting)
		}

		alt = c.GetInterfaceAltSetting(1, 1)
		if alt == nil {
			t.Error("GetInterfaceAltSetting(1, 1) returned nil")
		} else if alt.AlternateSetting != 1 {
			t.Errorf("Wrong alt setting: %d", alt.AlternateSetting)
		}

		if c.GetInterfaceAltSetting(1, 2) != nil {
			t.Error("GetInterfaceAltSetting(1, 2) should return nil")
		}
	})

	t.Run("FindEndpoint", func(t *testing.T) {
		ep := c.FindEndpoint(0x83)
		if ep == nil {
			t.Error("FindEndpoint(0x83) returned nil")
		} else if ep.EndpointAddr != 0x83 {
			t.Errorf("Wrong endpoint: %02x", ep.EndpointAddr)
		}

		if c.FindEndpoint(0x81) == nil {
			t.Error("FindEndpoint(0x81) returned nil")
		}
		if c.FindEndpoint(0x99) != nil {
			t.Error("FindEndpoint(0x99) should return nil")
		}
	})
}

func TestEndpointHelpers(t *testing.T) {
	tests := []struct {
		name     string
		endpoint Endpoint
		wantIn   bool
		wantOut  bool
		wantNum  uint8
		wantType TransferType
	}{
		{
			name:     "bulk_in_ep1",
			endpoint: Endpoint{EndpointAddr: 0x81, Attributes: 0x02},
			wantIn:   true, wantNum: 1, wantType: TransferTypeBulk,
		},
		{
			name:     "bulk_out_ep2",
			endpoint: Endpoint{EndpointAddr: 0x02, Attributes: 0x02},
			wantOut:  true, wantNum: 2, wantType: TransferTypeBulk,
		},
		{
			name:     "interrupt_in_ep3",
			endpoint: Endpoint{EndpointAddr: 0x83, Attributes: 0x03},
			wantIn:   true, wantNum: 3, wantType: TransferTypeInterrupt,
		},
		{
			name:     "isochronous_out_ep4",
			endpoint: Endpoint{EndpointAddr: 0x04, Attributes: 0x01},
			wantOut:  true, wantNum: 4, wantType: TransferTypeIsochronous,
		},
		{
			name:     "control_ep0",
			endpoint: Endpoint{EndpointAddr: 0x00, Attributes: 0x00},
			wantOut:  true, wantNum: 0, wantType: TransferTypeControl,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.endpoint.IsInput(); got != tt.wantIn {
				t.Errorf("IsInput() = %v, want %v", got, tt.wantIn)
			}
			if got := tt.endpoint.IsOutput(); got != tt.wantOut {
				t.Errorf("IsOutput() = %v, want %v", got, tt.wantOut)
			}
			if got := tt.endpoint.GetEndpointNumber(); got != tt.wantNum {
				t.Errorf("GetEndpointNumber() = %d, want %d", got, tt.wantNum)
			}
			if got := tt.endpoint.GetTransferType(); got != tt.wantType {
				t.Errorf("GetTransferType() = %d, want %d", got, tt.wantType)
			}
		})
	}
}
