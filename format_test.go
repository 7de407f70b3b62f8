package uvc

import "testing"

func TestGUIDMatchesConcrete(t *testing.T) {
	guid := fourCC('Y', 'U', 'Y', '2')
	if !GUIDMatches(FormatYUYV, guid) {
		t.Fatal("expected FormatYUYV to match its own GUID")
	}
	if GUIDMatches(FormatUYVY, guid) {
		t.Fatal("did not expect FormatUYVY to match YUYV's GUID")
	}
}

func TestGUIDMatchesAbstract(t *testing.T) {
	guid := fourCC('N', 'V', '1', '2')
	if !GUIDMatches(FormatUncompressed, guid) {
		t.Fatal("expected FormatUncompressed to transitively match NV12's GUID")
	}
	if !GUIDMatches(FormatAny, guid) {
		t.Fatal("expected FormatAny to transitively match NV12's GUID")
	}
	if GUIDMatches(FormatCompressed, guid) {
		t.Fatal("did not expect FormatCompressed to match an uncompressed GUID")
	}
}

func TestGUIDMatchesMJPEGPrefixOnly(t *testing.T) {
	guid := fourCC('M', 'J', 'P', 'G')
	guid[15] = 0xFF // tail byte differs from the table entry
	if !GUIDMatches(FormatMJPEG, guid) {
		t.Fatal("expected MJPEG prefix-only match to ignore the tail")
	}
}

func TestFormatForGUID(t *testing.T) {
	if tag := FormatForGUID(fourCC('Y', 'U', 'Y', '2')); tag != FormatYUYV {
		t.Fatalf("got %v, want FormatYUYV", tag)
	}
	if tag := FormatForGUID(fourCC('Z', 'Z', 'Z', 'Z')); tag != FormatUnknown {
		t.Fatalf("got %v, want FormatUnknown for an unrecognised GUID", tag)
	}
}

func TestFormatForGUIDInvariant(t *testing.T) {
	for _, e := range formatTable {
		if e.isAbstract {
			continue
		}
		tag := FormatForGUID(e.guid)
		if tag == FormatUnknown {
			continue
		}
		if !GUIDMatches(tag, e.guid) {
			t.Fatalf("format_for_guid(%v) = %v, but guid_matches(%v, guid) == false", e.guid, tag, tag)
		}
	}
}

func TestFrameStep(t *testing.T) {
	cases := []struct {
		tag   FormatTag
		width uint16
		want  int
	}{
		{FormatBGR, 640, 1920},
		{FormatRGB, 640, 1920},
		{FormatYUYV, 640, 1280},
		{FormatUYVY, 640, 1280},
		{FormatP010, 640, 1280},
		{FormatNV12, 640, 640},
		{FormatMJPEG, 640, 0},
		{FormatH264, 640, 0},
		{FormatUnknown, 640, 0},
	}
	for _, c := range cases {
		if got := FrameStep(c.tag, c.width); got != c.want {
			t.Errorf("FrameStep(%v, %d) = %d, want %d", c.tag, c.width, got, c.want)
		}
	}
}
