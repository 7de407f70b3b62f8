package uvc

// FormatTag is a symbolic identifier for a UVC frame format, standing in for
// the 16-byte GUID that actually appears on the wire in a format descriptor.
type FormatTag int

const (
	FormatUnknown FormatTag = iota
	FormatAny
	FormatUncompressed
	FormatCompressed
	FormatYUYV
	FormatUYVY
	FormatGRAY8
	FormatGRAY16
	FormatNV12
	FormatP010
	FormatMJPEG
	FormatH264
	FormatBGR
	FormatRGB
	FormatSGRBG8
	FormatSGBRG8
	FormatSRGGB8
	FormatSBGGR8
)

func (t FormatTag) String() string {
	if e, ok := formatByTag[t]; ok {
		return e.name
	}
	return "unknown"
}

type formatEntry struct {
	tag FormatTag
	name string
	isAbstract bool
	guid [16]byte
	// prefixOnly restricts guid_matches/format_for_guid to the first 4 bytes
	// (the FourCC) instead of the full 16. MJPEG devices are inconsistent
	// about the trailing bytes, so the FourCC alone is the only reliable part.
	prefixOnly bool
	children   []FormatTag
}

// commonGUIDTail is the fixed suffix every UVC FourCC-style format GUID
// shares: {subtype 0, MEDIASUBTYPE_BASE_GUID tail}.
var commonGUIDTail = [12]byte{0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xAA, 0x00, 0x38, 0x9B, 0x71}

func fourCC(a, b, c, d byte) [16]byte {
	var g [16]byte
	g[0], g[1], g[2], g[3] = a, b, c, d
	copy(g[4:], commonGUIDTail[:])
	return g
}

var (
	guidBGR = [16]byte{0x7D, 0xEB, 0x36, 0xE4, 0x4F, 0x52, 0xCE, 0x11, 0x9F, 0x53, 0x00, 0x20, 0xAF, 0x0B, 0xA7, 0x70}
	guidRGB = [16]byte{0x7E, 0xEB, 0x36, 0xE4, 0x4F, 0x52, 0xCE, 0x11, 0x9F, 0x53, 0x00, 0x20, 0xAF, 0x0B, 0xA7, 0x70}
)

// formatTable is the static, read-only format DAG: a flat array of records
// with child slices addressed by FormatTag rather than pointers, per the
// arena-style guidance for this descriptor graph.
var formatTable = []formatEntry{
	{tag: FormatUnknown, name: "unknown", isAbstract: true},
	{tag: FormatAny, name: "any", isAbstract: true, children: []FormatTag{FormatUncompressed, FormatCompressed}},
	{tag: FormatUncompressed, name: "uncompressed", isAbstract: true, children: []FormatTag{
		FormatYUYV, FormatUYVY, FormatGRAY8, FormatGRAY16, FormatNV12, FormatP010,
		FormatBGR, FormatRGB, FormatSGRBG8, FormatSGBRG8, FormatSRGGB8, FormatSBGGR8,
	}},
	{tag: FormatCompressed, name: "compressed", isAbstract: true, children: []FormatTag{FormatMJPEG, FormatH264}},
	{tag: FormatYUYV, name: "YUYV", guid: fourCC('Y', 'U', 'Y', '2')},
	{tag: FormatUYVY, name: "UYVY", guid: fourCC('U', 'Y', 'V', 'Y')},
	{tag: FormatGRAY8, name: "GRAY8", guid: fourCC('Y', '8', '0', '0')},
	{tag: FormatGRAY16, name: "GRAY16", guid: fourCC('Y', '1', '6', ' ')},
	{tag: FormatNV12, name: "NV12", guid: fourCC('N', 'V', '1', '2')},
	{tag: FormatP010, name: "P010", guid: fourCC('P', '0', '1', '0')},
	{tag: FormatMJPEG, name: "MJPEG", guid: fourCC('M', 'J', 'P', 'G'), prefixOnly: true},
	{tag: FormatH264, name: "H264", guid: fourCC('H', '2', '6', '4')},
	{tag: FormatBGR, name: "BGR", guid: guidBGR},
	{tag: FormatRGB, name: "RGB", guid: guidRGB},
	{tag: FormatSGRBG8, name: "SGRBG8", guid: fourCC('G', 'R', 'B', 'G')},
	{tag: FormatSGBRG8, name: "SGBRG8", guid: fourCC('G', 'B', 'R', 'G')},
	{tag: FormatSRGGB8, name: "SRGGB8", guid: fourCC('R', 'G', 'G', 'B')},
	{tag: FormatSBGGR8, name: "SBGGR8", guid: fourCC('B', 'A', '8', '1')},
}

var formatByTag = func() map[FormatTag]*formatEntry {
	m := make(map[FormatTag]*formatEntry, len(formatTable))
	for i := range formatTable {
		m[formatTable[i].tag] = &formatTable[i]
	}
	return m
}()

func guidEqual(e *formatEntry, guid [16]byte) bool {
	if e.prefixOnly {
		return e.guid[0] == guid[0] && e.guid[1] == guid[1] && e.guid[2] == guid[2] && e.guid[3] == guid[3]
	}
	return e.guid == guid
}

// GUIDMatches reports whether tag is guid itself (for a concrete entry) or
// transitively contains a child that is (for an abstract grouping like
// FormatAny or FormatUncompressed). Recursion terminates because the table
// is a DAG rooted at FormatAny.
func GUIDMatches(tag FormatTag, guid [16]byte) bool {
	e, ok := formatByTag[tag]
	if !ok {
		return false
	}
	if !e.isAbstract {
		return guidEqual(e, guid)
	}
	for _, child := range e.children {
		if GUIDMatches(child, guid) {
			return true
		}
	}
	return false
}

// FormatForGUID does a linear scan of the non-abstract table entries and
// returns the first matching tag, or FormatUnknown when none match.
func FormatForGUID(guid [16]byte) FormatTag {
	for i := range formatTable {
		e := &formatTable[i]
		if e.isAbstract {
			continue
		}
		if guidEqual(e, guid) {
			return e.tag
		}
	}
	return FormatUnknown
}

// FrameStep returns the delivered frame's row stride in bytes for the given
// format and width, per §4.9's format table: 0 for compressed/unknown
// formats, since the caller has no fixed stride to rely on.
func FrameStep(tag FormatTag, width uint16) int {
	switch tag {
	case FormatBGR, FormatRGB:
		return 3 * int(width)
	case FormatYUYV, FormatUYVY, FormatP010:
		return 2 * int(width)
	case FormatNV12:
		return int(width)
	default:
		return 0
	}
}
