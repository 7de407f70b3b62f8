package uvc

import (
	"sort"
	"time"

	"github.com/kevmo314/go-uvc/usb"
)

const (
	maxIsoPacketsPerTransfer = 32
	transferTimeout          = 5 * time.Second
)

// transferRing is the armed set of asynchronous transfers a Stream submits
// and resubmits against one streaming endpoint (§4.5).
type transferRing struct {
	manager     *usb.AsyncTransferManager
	transfers   []*usb.AsyncTransfer
	isochronous bool
}

// armTransferRing selects the streaming altsetting/endpoint, allocates the
// transfer ring, and wires every transfer's completion callback to stream's
// completion hook, without submitting any of them.
func armTransferRing(stream *Stream) (*transferRing, error) {
	d := stream.device
	si := stream.streamingIface

	iface := d.cfg.GetInterface(si.Number)
	if iface == nil || len(iface.AltSettings) == 0 {
		return nil, newError(ErrInvalidMode, "armTransferRing", nil)
	}

	// Isochronous iff the interface has more than one altsetting (UVC 1.5
	// §2.4.3) — the caller's isochronous preference, if any, is not
	// consulted.
	isochronous := len(iface.AltSettings) > 1

	manager, err := d.rawHandle.NewAsyncTransferManager()
	if err != nil {
		return nil, wrapUSBError("armTransferRing", err)
	}

	ring := &transferRing{manager: manager, isochronous: isochronous}

	if isochronous {
		if err := ring.armIsochronous(d, iface, si, stream.ctrl.DwMaxPayloadTransferSize, stream.ctrl.DwMaxVideoFrameSize, stream.numTransferBufs); err != nil {
			manager.Close()
			return nil, err
		}
	} else {
		if err := d.rawHandle.SetInterfaceAltSetting(si.Number, 0); err != nil {
			manager.Close()
			return nil, wrapUSBError("armTransferRing", err)
		}
		ring.armBulk(si.EndpointAddress, int(stream.ctrl.DwMaxPayloadTransferSize), stream.numTransferBufs)
	}

	for _, t := range ring.transfers {
		t.SetUserData(stream)
		t.SetCallback(stream.completionHook)
	}
	return ring, nil
}

// endpointCapacity returns an endpoint's per-packet byte capacity: the
// SuperSpeed companion's wBytesPerInterval when present, else wMaxPacketSize
// decoded as (size & 0x7FF) * (((size>>11)&3)+1) per UVC 1.5 §2.4.3.
func endpointCapacity(ep *usb.Endpoint) int {
	if ep.SSCompanion != nil && ep.SSCompanion.BytesPerInterval > 0 {
		return int(ep.SSCompanion.BytesPerInterval)
	}
	size := ep.MaxPacketSize
	return int(size&0x7FF) * int(((size>>11)&3)+1)
}

func (ring *transferRing) armIsochronous(d *Device, iface *usb.Interface, si *StreamingInterface, configBpp, maxVideoFrameSize uint32, numTransfers int) error {
	alts := append([]usb.InterfaceAltSetting(nil), iface.AltSettings...)
	sort.Slice(alts, func(i, j int) bool { return alts[i].AlternateSetting < alts[j].AlternateSetting })

	var chosenAlt *usb.InterfaceAltSetting
	var epBpp int

	for i := range alts {
		alt := &alts[i]
		for j := range alt.Endpoints {
			ep := &alt.Endpoints[j]
			if !ep.IsInput() || ep.EndpointAddr != si.EndpointAddress {
				continue
			}
			capacity := endpointCapacity(ep)
			if capacity >= int(configBpp) {
				chosenAlt = alt
				epBpp = capacity
			}
		}
		if chosenAlt != nil {
			break
		}
	}

	if chosenAlt == nil {
		return newError(ErrInvalidMode, "armIsochronous", nil)
	}

	if err := d.rawHandle.SetInterfaceAltSetting(si.Number, chosenAlt.AlternateSetting); err != nil {
		return wrapUSBError("armIsochronous", err)
	}

	packetsPerTransfer := (int(maxVideoFrameSize) + epBpp - 1) / epBpp
	if packetsPerTransfer > maxIsoPacketsPerTransfer {
		packetsPerTransfer = maxIsoPacketsPerTransfer
	}
	if packetsPerTransfer < 1 {
		packetsPerTransfer = 1
	}
	totalTransferSize := packetsPerTransfer * epBpp

	ring.transfers = make([]*usb.AsyncTransfer, numTransfers)
	for i := 0; i < numTransfers; i++ {
		ring.transfers[i] = ring.manager.NewAsyncTransfer(si.EndpointAddress, usb.TransferTypeIsochronous, totalTransferSize, packetsPerTransfer)
	}
	return nil
}

func (ring *transferRing) armBulk(endpointAddr uint8, payloadSize, numTransfers int) {
	ring.transfers = make([]*usb.AsyncTransfer, numTransfers)
	for i := 0; i < numTransfers; i++ {
		ring.transfers[i] = ring.manager.NewAsyncTransfer(endpointAddr, usb.TransferTypeBulk, payloadSize, 0)
	}
}

// submitAll submits every transfer in the ring, best-effort: if the k-th
// submission fails, the remaining entries never got submitted and are
// dropped from the ring (step 7) so Stop's anyLive wait doesn't hang on
// slots that will never complete or be cancelled.
func (ring *transferRing) submitAll() error {
	submitted := 0
	for i, t := range ring.transfers {
		if err := t.Submit(); err != nil {
			for j := i; j < len(ring.transfers); j++ {
				ring.transfers[j] = nil
			}
			break
		}
		submitted++
	}
	if submitted == 0 {
		return newError(ErrIO, "submitAll", nil)
	}
	return nil
}

func (ring *transferRing) close() error {
	return ring.manager.Close()
}
