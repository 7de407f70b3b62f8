package uvc

// GetStreamCtrlFormatSize walks the descriptor tree for a format descriptor
// matching formatTag and a frame descriptor matching (width, height), seeds
// ctrl from the device's reported maximums, selects a frame interval for
// fps, and runs probe negotiation on each candidate in turn until one is
// accepted; the commit is left to NewStream. fps == 0 accepts the first
// discrete interval a frame descriptor advertises.
//
// Returns ErrInvalidMode when no frame descriptor satisfies (formatTag, w,
// h, fps), or negotiation rejects every candidate.
func (d *Device) GetStreamCtrlFormatSize(ctrl *StreamCtrl, formatTag FormatTag, width, height uint16, fps int) error {
	for _, si := range d.streaming {
		for _, fd := range si.Formats {
			if !GUIDMatches(formatTag, fd.GUID) {
				continue
			}
			for _, fr := range fd.Frames {
				if fr.Width != width || fr.Height != height {
					continue
				}

				interval, ok := selectFrameInterval(fr, fps)
				if !ok {
					continue
				}

				if err := d.prepareCtrlCandidate(ctrl, si, fd, fr, interval); err != nil {
					continue
				}

				if err := d.probeStreamCtrl(ctrl); err == nil {
					return nil
				}
			}
		}
	}
	return newError(ErrInvalidMode, "GetStreamCtrlFormatSize", nil)
}

// selectFrameInterval implements §4.3's interval-selection rule: discrete
// lists are matched by exact fps (or the first entry when fps == 0);
// continuous ranges are matched by an interval within [min,max] that's an
// exact multiple of step away from min.
func selectFrameInterval(fr *FrameDescriptor, fps int) (uint32, bool) {
	if len(fr.Intervals) > 0 {
		if fps == 0 {
			return fr.Intervals[0], true
		}
		for _, iv := range fr.Intervals {
			if iv != 0 && 10_000_000/iv == uint32(fps) {
				return iv, true
			}
		}
		return 0, false
	}

	if fps == 0 {
		return fr.MinFrameInterval, true
	}
	iv := uint32(10_000_000 / fps)
	if iv < fr.MinFrameInterval || iv > fr.MaxFrameInterval {
		return 0, false
	}
	if fr.FrameIntervalStep != 0 && (iv-fr.MinFrameInterval)%fr.FrameIntervalStep != 0 {
		return 0, false
	}
	return iv, true
}

func (d *Device) prepareCtrlCandidate(ctrl *StreamCtrl, si *StreamingInterface, fd *FormatDescriptor, fr *FrameDescriptor, interval uint32) error {
	if err := d.handle.ClaimInterface(si.Number); err != nil {
		return wrapUSBError("GetStreamCtrlFormatSize", err)
	}

	ctrl.BInterfaceNumber = si.Number
	if err := d.QueryStreamCtrl(ctrl, true, OpGetMax); err != nil {
		return err
	}

	ctrl.BmHint = 1
	ctrl.BFormatIndex = fd.FormatIndex
	ctrl.BFrameIndex = fr.FrameIndex
	ctrl.DwFrameInterval = interval
	return nil
}
