package uvc

import "encoding/binary"

// isightMagic is the 12-byte marker an Apple iSight prefixes its payload
// header with, at one of two possible offsets (§4.6, §9).
var isightMagic = [12]byte{0x11, 0x22, 0x33, 0x44, 0xDE, 0xAD, 0xBE, 0xEF, 0xDE, 0xAD, 0xFA, 0xCE}

func hasIsightMagic(payload []byte, offset int) bool {
	if offset+len(isightMagic) > len(payload) {
		return false
	}
	for i, b := range isightMagic {
		if payload[offset+i] != b {
			return false
		}
	}
	return true
}

const (
	headerBitFID = 1 << 0
	headerBitEOF = 1 << 1
	headerBitPTS = 1 << 2
	headerBitSCR = 1 << 3
	headerBitErr = 1 << 6
)

// parsePayload ingests one transport payload — a single bulk transfer's
// actual bytes, or a single isochronous packet's — advancing the stream's
// frame-assembly state machine and swapping buffers on EOF, FID toggle, or
// a full frame (§4.6). It is the sole writer of out/got_bytes/pts/last_scr/
// fid/meta_out/meta_got_bytes outside of start/stop.
func (s *Stream) parsePayload(payload []byte) {
	if len(payload) == 0 {
		return
	}

	var headerLen, dataLen int
	if s.device.isIsight && !hasIsightMagic(payload, 2) && !hasIsightMagic(payload, 3) {
		headerLen = 0
		dataLen = len(payload)
	} else {
		headerLen = int(payload[0])
		if s.device.isIsight {
			dataLen = 0
		} else {
			dataLen = len(payload) - headerLen
		}
	}

	if headerLen > len(payload) {
		return
	}

	if headerLen >= 2 {
		info := payload[1]
		if info&headerBitErr != 0 {
			return
		}

		fid := info & headerBitFID
		if fid != s.fid && s.gotBytes > 0 {
			s.swapBuffers()
		}
		s.fid = fid

		off := 2
		if info&headerBitPTS != 0 && off+4 <= headerLen {
			s.pts = binary.LittleEndian.Uint32(payload[off : off+4])
			off += 4
		}
		if info&headerBitSCR != 0 && off+6 <= headerLen {
			s.lastSCR = binary.LittleEndian.Uint32(payload[off : off+4])
			off += 6
		}
		if off < headerLen {
			s.appendMeta(payload[off:headerLen])
		}
	}

	if dataLen <= 0 {
		if headerLen >= 2 && payload[1]&headerBitEOF != 0 {
			s.swapBuffers()
		}
		return
	}

	data := payload[headerLen:]
	if len(data) > dataLen {
		data = data[:dataLen]
	}
	s.appendData(data)

	if (headerLen >= 2 && payload[1]&headerBitEOF != 0) || s.gotBytes == s.maxVideoFrameSize {
		s.swapBuffers()
	}
}

func (s *Stream) appendMeta(meta []byte) {
	room := len(s.metaOut) - s.metaGotBytes
	if room <= 0 {
		return
	}
	if len(meta) > room {
		meta = meta[:room]
	}
	copy(s.metaOut[s.metaGotBytes:], meta)
	s.metaGotBytes += len(meta)
}

func (s *Stream) appendData(data []byte) {
	room := int(s.maxVideoFrameSize) - int(s.gotBytes)
	if room <= 0 {
		return
	}
	if len(data) > room {
		data = data[:room]
	}
	if need := int(s.gotBytes) + len(data); need > len(s.out) {
		grown := make([]byte, need)
		copy(grown, s.out)
		s.out = grown
	}
	copy(s.out[s.gotBytes:], data)
	s.gotBytes += uint32(len(data))
}
