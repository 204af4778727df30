package drm_test

import (
	"testing"

	drm "github.com/NeowayLabs/drmdev"
)

func TestGetCap(t *testing.T) {
	file := openCard(t)

	for _, cap := range []struct {
		name string
		id   uint64
	}{
		{"DUMB_BUFFER", drm.CapDumbBuffer},
		{"VBLANK_HIGH_CRTC", drm.CapVBlankHighCRTC},
		{"DUMB_PREFERRED_DEPTH", drm.CapDumbPreferredDepth},
		{"PRIME", drm.CapPrime},
		{"TIMESTAMP_MONOTONIC", drm.CapTimestampMonotonic},
		{"CURSOR_WIDTH", drm.CapCursorWidth},
		{"CURSOR_HEIGHT", drm.CapCursorHeight},
	} {
		val, err := drm.GetCap(file, cap.id)
		if err != nil {
			t.Logf("cap %s not supported: %v", cap.name, err)
			continue
		}
		t.Logf("cap %s = %d", cap.name, val)
	}
}

func TestHasDumbBufferMatchesGetCap(t *testing.T) {
	file := openCard(t)

	val, err := drm.GetCap(file, drm.CapDumbBuffer)
	if err != nil {
		t.Skipf("DUMB_BUFFER cap not supported: %v", err)
	}
	if has := drm.HasDumbBuffer(file); has != (val != 0) {
		t.Errorf("HasDumbBuffer = %v but cap value is %d", has, val)
	}
}

func TestSetClientCap(t *testing.T) {
	file := openCard(t)

	err := drm.SetClientCap(file, drm.ClientCapUniversalPlanes, 1)
	if err != nil {
		t.Fatalf("universal planes refused: %v", err)
	}
	err = drm.SetClientCap(file, drm.ClientCapAtomic, 1)
	if err != nil {
		t.Skipf("atomic refused (legacy driver?): %v", err)
	}
}
