package uvc

import "testing"

func TestSelectFrameIntervalDiscrete(t *testing.T) {
	fr := &FrameDescriptor{Intervals: []uint32{333333, 666666, 1000000}}

	iv, ok := selectFrameInterval(fr, 30)
	if !ok || iv != 333333 {
		t.Fatalf("fps=30: got (%d, %v), want (333333, true)", iv, ok)
	}

	iv, ok = selectFrameInterval(fr, 15)
	if !ok || iv != 666666 {
		t.Fatalf("fps=15: got (%d, %v), want (666666, true)", iv, ok)
	}

	if _, ok := selectFrameInterval(fr, 7); ok {
		t.Fatal("fps=7 has no matching discrete interval and should reject")
	}
}

func TestSelectFrameIntervalDiscreteZeroFPS(t *testing.T) {
	fr := &FrameDescriptor{Intervals: []uint32{333333, 666666, 1000000}}
	iv, ok := selectFrameInterval(fr, 0)
	if !ok || iv != 333333 {
		t.Fatalf("fps=0 should accept the first discrete interval: got (%d, %v)", iv, ok)
	}
}

func TestSelectFrameIntervalContinuousAcceptance(t *testing.T) {
	fr := &FrameDescriptor{MinFrameInterval: 200000, MaxFrameInterval: 400000, FrameIntervalStep: 50000}

	iv, ok := selectFrameInterval(fr, 40) // iv = 250000, exact multiple of step from min
	if !ok || iv != 250000 {
		t.Fatalf("fps=40: got (%d, %v), want (250000, true)", iv, ok)
	}
}

func TestSelectFrameIntervalContinuousRejection(t *testing.T) {
	fr := &FrameDescriptor{MinFrameInterval: 200000, MaxFrameInterval: 400000, FrameIntervalStep: 50000}

	if _, ok := selectFrameInterval(fr, 43); ok { // iv ~= 232558, not a step multiple
		t.Fatal("fps=43 does not land on a step boundary and should reject")
	}
}

func TestSelectFrameIntervalContinuousOutOfRange(t *testing.T) {
	fr := &FrameDescriptor{MinFrameInterval: 200000, MaxFrameInterval: 400000, FrameIntervalStep: 50000}

	if _, ok := selectFrameInterval(fr, 1000); ok { // iv = 10000, below min
		t.Fatal("an interval below min should reject")
	}
}
