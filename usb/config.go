package usb

import (
	"encoding/binary"
	"fmt"
)

// ConfigDescriptor is a parsed USB configuration descriptor together with its
// full interface/endpoint tree, analogous to libusb's libusb_config_descriptor.
type ConfigDescriptor struct {
	Length             uint8
	DescriptorType     uint8
	TotalLength        uint16
	NumInterfaces      uint8
	ConfigurationValue uint8
	ConfigurationIndex uint8
	Attributes         uint8
	MaxPower           uint8

	Interfaces []Interface

	// Extra holds descriptors this parser doesn't interpret structurally —
	// notably the UVC class-specific (CS_INTERFACE) descriptors, which the
	// uvc package's own descriptor walker parses from each interface's Extra.
	Extra []byte
}

// Interface groups all alternate settings sharing one interface number.
type Interface struct {
	AltSettings []InterfaceAltSetting
}

// InterfaceAltSetting is one interface descriptor plus its endpoints.
type InterfaceAltSetting struct {
	Length            uint8
	DescriptorType    uint8
	InterfaceNumber   uint8
	AlternateSetting  uint8
	NumEndpoints      uint8
	InterfaceClass    uint8
	InterfaceSubClass uint8
	InterfaceProtocol uint8
	InterfaceIndex    uint8

	Endpoints []Endpoint
	Extra     []byte
}

// Endpoint is a parsed endpoint descriptor, with its SuperSpeed companion if present.
type Endpoint struct {
	Length         uint8
	DescriptorType uint8
	EndpointAddr   uint8
	Attributes     uint8
	MaxPacketSize  uint16
	Interval       uint8

	SSCompanion *SuperSpeedEndpointCompanionDescriptor
	Extra       []byte
}

// Unmarshal parses raw configuration descriptor bytes (as returned by
// GetRawDescriptor(DescriptorTypeConfig, ...)) into c.
func (c *ConfigDescriptor) Unmarshal(data []byte) error {
	if len(data) < 9 {
		return fmt.Errorf("config descriptor too short: %d bytes", len(data))
	}

	c.Length = data[0]
	c.DescriptorType = data[1]
	c.TotalLength = binary.LittleEndian.Uint16(data[2:4])
	c.NumInterfaces = data[4]
	c.ConfigurationValue = data[5]
	c.ConfigurationIndex = data[6]
	c.Attributes = data[7]
	c.MaxPower = data[8]

	interfaceMap := make(map[uint8]*Interface)

	var currentInterface *InterfaceAltSetting
	var currentEndpoints []Endpoint
	var extraBuffer []byte

	flush := func() {
		if currentInterface == nil {
			return
		}
		currentInterface.Endpoints = currentEndpoints
		currentInterface.Extra = extraBuffer

		if _, exists := interfaceMap[currentInterface.InterfaceNumber]; !exists {
			interfaceMap[currentInterface.InterfaceNumber] = &Interface{}
		}
		interfaceMap[currentInterface.InterfaceNumber].AltSettings = append(
			interfaceMap[currentInterface.InterfaceNumber].AltSettings, *currentInterface)

		extraBuffer = nil
		currentEndpoints = nil
	}

	pos := 9
	for pos < len(data) {
		if pos+2 > len(data) {
			break
		}

		length := int(data[pos])
		descType := data[pos+1]

		if length == 0 || pos+length > len(data) {
			break
		}

		switch descType {
		case DescriptorTypeInterface:
			flush()

			if length < 9 {
				return fmt.Errorf("interface descriptor too short: %d bytes", length)
			}

			iface := InterfaceAltSetting{
				Length:            data[pos],
				DescriptorType:    data[pos+1],
				InterfaceNumber:   data[pos+2],
				AlternateSetting:  data[pos+3],
				NumEndpoints:      data[pos+4],
				InterfaceClass:    data[pos+5],
				InterfaceSubClass: data[pos+6],
				InterfaceProtocol: data[pos+7],
				InterfaceIndex:    data[pos+8],
			}

			currentInterface = &iface
			currentEndpoints = make([]Endpoint, 0, iface.NumEndpoints)

		case DescriptorTypeEndpoint:
			if currentInterface == nil {
				c.Extra = append(c.Extra, data[pos:pos+length]...)
				break
			}
			if length < 7 {
				return fmt.Errorf("endpoint descriptor too short: %d bytes", length)
			}

			endpoint := Endpoint{
				Length:         data[pos],
				DescriptorType: data[pos+1],
				EndpointAddr:   data[pos+2],
				Attributes:     data[pos+3],
				MaxPacketSize:  binary.LittleEndian.Uint16(data[pos+4 : pos+6]),
				Interval:       data[pos+6],
			}

			nextPos := pos + length
			if nextPos+2 <= len(data) && data[nextPos+1] == DescriptorTypeSuperSpeedEndpointComp {
				companionLen := int(data[nextPos])
				if nextPos+companionLen <= len(data) && companionLen >= 6 {
					endpoint.SSCompanion = &SuperSpeedEndpointCompanionDescriptor{
						Length:           data[nextPos],
						DescriptorType:   data[nextPos+1],
						MaxBurst:         data[nextPos+2],
						Attributes:       data[nextPos+3],
						BytesPerInterval: binary.LittleEndian.Uint16(data[nextPos+4 : nextPos+6]),
					}
					pos = nextPos
					length = companionLen
				}
			}

			currentEndpoints = append(currentEndpoints, endpoint)

		case DescriptorTypeInterfaceAssociation:
			if currentInterface != nil {
				extraBuffer = append(extraBuffer, data[pos:pos+length]...)
			} else {
				c.Extra = append(c.Extra, data[pos:pos+length]...)
			}

		default:
			// Class-specific (e.g. UVC CS_INTERFACE/CS_ENDPOINT) or vendor-specific
			// descriptors are left opaque here; uvc.BuildStreamingTree re-walks Extra.
			if currentInterface != nil {
				extraBuffer = append(extraBuffer, data[pos:pos+length]...)
			} else {
				c.Extra = append(c.Extra, data[pos:pos+length]...)
			}
		}

		pos += length
	}

	flush()

	c.Interfaces = make([]Interface, 0, len(interfaceMap))
	for i := range uint8(255) {
		if iface, exists := interfaceMap[i]; exists {
			c.Interfaces = append(c.Interfaces, *iface)
		}
	}

	return nil
}

func (c *ConfigDescriptor) GetInterface(interfaceNumber uint8) *Interface {
	for i := range c.Interfaces {
		if len(c.Interfaces[i].AltSettings) > 0 &&
			c.Interfaces[i].AltSettings[0].InterfaceNumber == interfaceNumber {
			return &c.Interfaces[i]
		}
	}
	return nil
}

func (c *ConfigDescriptor) GetInterfaceAltSetting(interfaceNumber, altSetting uint8) *InterfaceAltSetting {
	iface := c.GetInterface(interfaceNumber)
	if iface == nil {
		return nil
	}
	for i := range iface.AltSettings {
		if iface.AltSettings[i].AlternateSetting == altSetting {
			return &iface.AltSettings[i]
		}
	}
	return nil
}

func (c *ConfigDescriptor) FindEndpoint(endpointAddress uint8) *Endpoint {
	for _, iface := range c.Interfaces {
		for _, altSetting := range iface.AltSettings {
			for i := range altSetting.Endpoints {
				if altSetting.Endpoints[i].EndpointAddr == endpointAddress {
					return &altSetting.Endpoints[i]
				}
			}
		}
	}
	return nil
}

func (e *Endpoint) IsInput() bool  { return (e.EndpointAddr & 0x80) != 0 }
func (e *Endpoint) IsOutput() bool { return (e.EndpointAddr & 0x80) == 0 }

func (e *Endpoint) GetEndpointNumber() uint8 { return e.EndpointAddr & 0x0f }

// GetTransferType returns the endpoint's transfer type from bmAttributes bits 0-1.
func (e *Endpoint) GetTransferType() TransferType {
	return TransferType(e.Attributes & 0x03)
}

// ReadConfigDescriptor fetches and parses configuration configIndex.
func (h *DeviceHandle) ReadConfigDescriptor(configIndex uint8) (*ConfigDescriptor, error) {
	// First read just the 9-byte header to learn TotalLength.
	head := make([]byte, 9)
	if _, err := h.GetRawDescriptor(DescriptorTypeConfig, configIndex, 0, head); err != nil {
		return nil, err
	}

	totalLength := binary.LittleEndian.Uint16(head[2:4])
	if totalLength < 9 {
		return nil, fmt.Errorf("invalid config descriptor total length: %d", totalLength)
	}

	full := make([]byte, totalLength)
	if _, err := h.GetRawDescriptor(DescriptorTypeConfig, configIndex, 0, full); err != nil {
		return nil, err
	}

	cfg := &ConfigDescriptor{}
	if err := cfg.Unmarshal(full); err != nil {
		return nil, err
	}
	return cfg, nil
}
