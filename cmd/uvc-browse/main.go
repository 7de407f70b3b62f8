// Command uvc-browse enumerates USB Video Class devices and prints each
// one's descriptor tree: streaming interfaces, the formats and frame sizes
// they advertise, and the video-control entities behind them.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/kevmo314/go-uvc"
	"github.com/kevmo314/go-uvc/usb"
)

func main() {
	vendorID := flag.Uint("vid", 0, "only list devices with this vendor ID (0 = any)")
	productID := flag.Uint("pid", 0, "only list devices with this product ID (0 = any)")
	flag.Parse()

	devices, err := usb.DeviceList()
	if err != nil {
		log.Fatalf("enumerating USB devices: %v", err)
	}

	found := 0
	for _, dev := range devices {
		desc := dev.Descriptor
		if *vendorID != 0 && uint(desc.VendorID) != *vendorID {
			continue
		}
		if *productID != 0 && uint(desc.ProductID) != *productID {
			continue
		}

		d, err := uvc.OpenDevice(desc.VendorID, desc.ProductID)
		if err != nil {
			continue // not a UVC device, or another process holds it
		}
		found++
		fmt.Printf("=== %04x:%04x %s (%s) ===\n", desc.VendorID, desc.ProductID,
			usb.ProductName(desc.VendorID, desc.ProductID), dev.Path)
		printDevice(d)
		d.Close()
	}

	if found == 0 {
		fmt.Println("no UVC devices found")
		os.Exit(1)
	}
}

func printDevice(d *uvc.Device) {
	ci := d.ControlInterface()
	fmt.Printf("  control interface %d, UVC %x.%02x\n", ci.Number, ci.BcdUVC>>8, ci.BcdUVC&0xff)
	fmt.Printf("    camera terminal %d, processing unit %d, selector units %v, output terminal %d\n",
		ci.CameraTerminalID, ci.ProcessingUnitID, ci.SelectorUnitIDs, ci.OutputTerminalID)

	for _, si := range d.StreamingInterfaces() {
		fmt.Printf("  streaming interface %d, endpoint %#02x\n", si.Number, si.EndpointAddress)
		for _, fd := range si.Formats {
			fmt.Printf("    format %d: %v\n", fd.FormatIndex, fd.Tag)
			for _, fr := range fd.Frames {
				printFrame(fr)
			}
		}
	}
}

func printFrame(fr *uvc.FrameDescriptor) {
	fmt.Printf("      frame %d: %dx%d, max buffer %d bytes", fr.FrameIndex, fr.Width, fr.Height, fr.MaxVideoFrameBufferSize)
	if len(fr.Intervals) > 0 {
		fmt.Printf(", fps options:")
		for _, iv := range fr.Intervals {
			if iv > 0 {
				fmt.Printf(" %d", 10_000_000/iv)
			}
		}
		fmt.Println()
	} else {
		fmt.Printf(", interval range %d-%d step %d\n", fr.MinFrameInterval, fr.MaxFrameInterval, fr.FrameIntervalStep)
	}
}
