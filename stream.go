package uvc

import (
	"sync"
	"time"

	"github.com/kevmo314/go-uvc/usb"
)

// metaBufSize is LIBUVC_XFER_META_BUF_SIZE: the cap on accumulated payload
// header metadata per frame.
const metaBufSize = 4096

// Frame is one assembled video frame, valid until the next call that
// populates the same Frame value (GetFrame reuses its buffer across calls).
type Frame struct {
	Format FormatTag
	Width  uint16
	Height uint16
	Step   int

	Data      []byte
	Metadata  []byte
	Sequence  uint32
	PTS       uint32
	CaptureTimeFinished time.Time
}

// FrameCallback is invoked by the callback worker with the most recently
// published frame, outside the stream's mutex. Frames published while a
// callback is still running are skipped; only the latest one is delivered.
type FrameCallback func(frame *Frame, userPtr any)

// Stream is one negotiated, armed video stream. Exactly one of the callback
// worker or the polling API (GetFrame) may be used for its lifetime — mixing
// them returns ErrCallbackExists.
type Stream struct {
	device         *Device
	streamingIface *StreamingInterface
	formatDesc     *FormatDescriptor
	frameDesc      *FrameDescriptor
	ctrl           StreamCtrl

	maxVideoFrameSize uint32
	numTransferBufs   int

	ring *transferRing

	mu      sync.Mutex
	cond    *sync.Cond
	running bool

	// Assembly state (§4.6), touched only by the completion/parser path
	// except across a swap, which happens under mu.
	seq      uint32
	fid      uint8
	pts      uint32
	lastSCR  uint32
	gotBytes uint32
	out      []byte
	metaOut      []byte
	metaGotBytes int

	// Published ("hold") state, touched under mu by the swap and read by
	// consumers.
	hold                 []byte
	holdBytes            uint32
	holdPTS              uint32
	holdLastSCR          uint32
	holdSeq              uint32
	metaHold             []byte
	metaHoldBytes        int
	captureTimeFinished  time.Time

	lastPolledSeq uint32
	lastCBSeq     uint32

	callback FrameCallback
	userPtr  any
	cbDone   chan struct{}
}

// NewStream commits ctrl (the "change mode" call, §4.4 step 3) against the
// streaming interface it names and returns a Stream ready for Start. It does
// not check whether another Stream on that interface is already running.
func (d *Device) NewStream(ctrl *StreamCtrl) (*Stream, error) {
	si, fd := d.findStreamingInterfaceForFormat(ctrl.BFormatIndex)
	if si == nil || fd == nil {
		return nil, newError(ErrInvalidMode, "NewStream", nil)
	}
	var frameDesc *FrameDescriptor
	for _, fr := range fd.Frames {
		if fr.FrameIndex == ctrl.BFrameIndex {
			frameDesc = fr
			break
		}
	}
	if frameDesc == nil {
		return nil, newError(ErrInvalidParam, "NewStream", nil)
	}

	if err := d.QueryStreamCtrl(ctrl, false, OpSetCur); err != nil {
		return nil, err
	}

	s := &Stream{
		device:            d,
		streamingIface:    si,
		formatDesc:        fd,
		frameDesc:         frameDesc,
		ctrl:              *ctrl,
		maxVideoFrameSize: ctrl.DwMaxVideoFrameSize,
		numTransferBufs:   defaultNumTransferBufs,
	}
	s.cond = sync.NewCond(&s.mu)
	s.out = make([]byte, ctrl.DwMaxVideoFrameSize)
	s.hold = make([]byte, ctrl.DwMaxVideoFrameSize)
	s.metaOut = make([]byte, metaBufSize)
	s.metaHold = make([]byte, metaBufSize)
	return s, nil
}

// Start arms the transfer ring and begins streaming (§4.5). If cb is
// non-nil, a callback worker goroutine delivers the most recently published
// frame each time it is free; otherwise consumers must poll with GetFrame.
func (s *Stream) Start(cb FrameCallback, userPtr any, opts ...StreamOption) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return newError(ErrBusy, "Start", nil)
	}
	if s.frameDesc == nil {
		s.mu.Unlock()
		return newError(ErrInvalidParam, "Start", nil)
	}
	if s.formatDesc.Tag == FormatUnknown {
		s.mu.Unlock()
		return newError(ErrNotSupported, "Start", nil)
	}
	s.mu.Unlock()

	cfg := newStreamConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	s.numTransferBufs = cfg.numTransferBufs

	ring, err := armTransferRing(s)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.running = true
	s.seq = 1
	s.fid = 0
	s.pts = 0
	s.lastSCR = 0
	s.gotBytes = 0
	s.metaGotBytes = 0
	s.ring = ring
	s.callback = cb
	s.userPtr = userPtr
	s.lastPolledSeq = 0
	s.lastCBSeq = 0
	s.mu.Unlock()

	if cb != nil {
		s.cbDone = make(chan struct{})
		go s.callbackWorker()
	}

	if err := ring.submitAll(); err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	}
	return nil
}

// completionHook is the transport completion callback (§4.12), invoked once
// per completed transfer by the async manager's reaper goroutine.
func (s *Stream) completionHook(t *usb.AsyncTransfer) {
	status := t.GetStatus()

	switch status {
	case usb.TransferCompleted:
		if pkts := t.GetPackets(); pkts != nil {
			// Each packet sits at the offset of its requested length within
			// the whole transfer buffer, so reslice GetBuffer up to its cap.
			buf := t.GetBuffer()
			buf = buf[:cap(buf)]
			off := 0
			for _, pkt := range pkts {
				if pkt.Status == 0 {
					s.parsePayload(buf[off : off+int(pkt.ActualLength)])
				}
				off += int(pkt.Length)
			}
		} else {
			s.parsePayload(t.GetBuffer()[:t.GetActualLength()])
		}
		s.resubmitOrRetire(t)

	case usb.TransferCancelled, usb.TransferError, usb.TransferNoDevice:
		s.retireTransfer(t)

	case usb.TransferTimedOut, usb.TransferStall, usb.TransferOverflow:
		s.device.logger.Printf("uvc: transfer %v, resubmitting", status)
		s.resubmitOrRetire(t)

	default:
		s.resubmitOrRetire(t)
	}
}

func (s *Stream) resubmitOrRetire(t *usb.AsyncTransfer) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	if !running {
		s.retireTransfer(t)
		return
	}

	if err := t.Submit(); err != nil {
		s.retireTransfer(t)
	}
}

func (s *Stream) retireTransfer(t *usb.AsyncTransfer) {
	s.mu.Lock()
	for i, candidate := range s.ring.transfers {
		if candidate == t {
			s.ring.transfers[i] = nil
			break
		}
	}
	s.cond.Broadcast()
	s.mu.Unlock()
}

// swapBuffers publishes the current assembly state as the new "hold" frame
// (§4.7). Called from the parser, which already runs single-threaded per
// stream, so the lock here serialises only against consumers.
func (s *Stream) swapBuffers() {
	s.mu.Lock()
	s.captureTimeFinished = time.Now()
	s.out, s.hold = s.hold, s.out
	s.holdBytes = s.gotBytes
	s.holdPTS = s.pts
	s.holdLastSCR = s.lastSCR
	s.holdSeq = s.seq

	s.metaOut, s.metaHold = s.metaHold, s.metaOut
	s.metaHoldBytes = s.metaGotBytes

	s.cond.Broadcast()

	s.seq++
	s.gotBytes = 0
	s.metaGotBytes = 0
	s.lastSCR = 0
	s.pts = 0
	s.mu.Unlock()
}

// populateFrame copies the current hold buffers into frame. Caller must hold
// s.mu.
func (s *Stream) populateFrame(frame *Frame) {
	frame.Format = s.formatDesc.Tag
	frame.Width = s.frameDesc.Width
	frame.Height = s.frameDesc.Height
	frame.Step = FrameStep(s.formatDesc.Tag, s.frameDesc.Width)

	if cap(frame.Data) < int(s.holdBytes) {
		frame.Data = make([]byte, s.holdBytes)
	} else {
		frame.Data = frame.Data[:s.holdBytes]
	}
	copy(frame.Data, s.hold[:s.holdBytes])

	if s.metaHoldBytes > 0 {
		if cap(frame.Metadata) < s.metaHoldBytes {
			frame.Metadata = make([]byte, s.metaHoldBytes)
		} else {
			frame.Metadata = frame.Metadata[:s.metaHoldBytes]
		}
		copy(frame.Metadata, s.metaHold[:s.metaHoldBytes])
	} else {
		frame.Metadata = frame.Metadata[:0]
	}

	frame.Sequence = s.holdSeq
	frame.PTS = s.holdPTS
	frame.CaptureTimeFinished = s.captureTimeFinished
}

// callbackWorker is the dedicated per-stream goroutine that drives the
// callback consumer mode (§4.8).
func (s *Stream) callbackWorker() {
	defer close(s.cbDone)
	var frame Frame
	for {
		s.mu.Lock()
		for s.running && s.lastCBSeq == s.holdSeq {
			s.cond.Wait()
		}
		if !s.running {
			s.mu.Unlock()
			return
		}
		s.lastCBSeq = s.holdSeq
		s.populateFrame(&frame)
		cb := s.callback
		userPtr := s.userPtr
		s.mu.Unlock()

		cb(&frame, userPtr)
	}
}

// GetFrame is the polling consumer API (§4.10). timeout < 0 means return
// immediately if no new frame is published; timeout == 0 waits indefinitely;
// timeout > 0 waits up to that duration.
func (s *Stream) GetFrame(frame *Frame, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return newError(ErrInvalidParam, "GetFrame", nil)
	}
	if s.callback != nil {
		return newError(ErrCallbackExists, "GetFrame", nil)
	}

	if s.lastPolledSeq < s.holdSeq {
		s.lastPolledSeq = s.holdSeq
		s.populateFrame(frame)
		return nil
	}

	if timeout < 0 {
		return nil
	}

	if timeout == 0 {
		for s.running && s.lastPolledSeq >= s.holdSeq {
			s.cond.Wait()
		}
	} else {
		deadline := time.Now().Add(timeout)
		for s.running && s.lastPolledSeq >= s.holdSeq {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return newError(ErrTimeout, "GetFrame", nil)
			}
			s.condWaitTimeout(remaining)
		}
	}

	if !s.running {
		return newError(ErrInvalidParam, "GetFrame", nil)
	}
	s.lastPolledSeq = s.holdSeq
	s.populateFrame(frame)
	return nil
}

// condWaitTimeout waits on s.cond, bounded by d, via a timer that broadcasts
// on expiry. Caller must hold s.mu; it is released and reacquired exactly as
// sync.Cond.Wait does.
func (s *Stream) condWaitTimeout(d time.Duration) {
	timer := time.AfterFunc(d, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer timer.Stop()
	s.cond.Wait()
}

// Stop halts streaming: it marks the stream not-running, cancels every live
// transfer, and waits for their completion hooks to retire them all (§4.11).
func (s *Stream) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return newError(ErrInvalidParam, "Stop", nil)
	}
	s.running = false

	for _, t := range s.ring.transfers {
		if t != nil {
			t.Cancel()
		}
	}
	s.cond.Broadcast()

	for anyLive(s.ring.transfers) {
		s.cond.Wait()
	}
	s.mu.Unlock()

	if s.cbDone != nil {
		<-s.cbDone
	}
	return nil
}

func anyLive(transfers []*usb.AsyncTransfer) bool {
	for _, t := range transfers {
		if t != nil {
			return true
		}
	}
	return false
}

// Close stops the stream if running, releases the streaming interface
// claim, and frees the transfer ring.
func (s *Stream) Close() error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	if running {
		if err := s.Stop(); err != nil {
			return err
		}
	}

	if s.ring != nil {
		s.ring.close()
	}
	if err := s.device.handle.ReleaseInterface(s.streamingIface.Number); err != nil {
		return wrapUSBError("Close", err)
	}
	return nil
}
