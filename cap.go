package drm

import (
	"os"
	"unsafe"

	"github.com/NeowayLabs/drmdev/ioctl"
)

type (
	capability struct {
		cap uint64
		val uint64
	}

	clientCap struct {
		cap uint64
		val uint64
	}
)

const (
	CapDumbBuffer = iota + 1
	CapVBlankHighCRTC
	CapDumbPreferredDepth
	CapDumbPreferShadow
	CapPrime
	CapTimestampMonotonic
	CapAsyncPageFlip
	CapCursorWidth
	CapCursorHeight

	CapAddFB2Modifiers   = 0x10
	CapPageFlipTarget    = 0x11
	CapCrtcInVBlankEvent = 0x12
	CapSyncobj           = 0x13
	CapSyncobjTimeline   = 0x14
)

// Client capabilities, set with SetClientCap to tell the kernel what
// this client can handle.
const (
	ClientCapStereo3D = iota + 1
	ClientCapUniversalPlanes
	ClientCapAtomic
	ClientCapAspectRatio
	ClientCapWritebackConnectors
)

func GetCap(file *os.File, capid uint64) (uint64, error) {
	cap := &capability{}
	cap.cap = capid
	err := ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLGetCap),
		uintptr(unsafe.Pointer(cap)))
	if err != nil {
		return 0, err
	}
	return cap.val, nil
}

func HasDumbBuffer(file *os.File) bool {
	val, err := GetCap(file, CapDumbBuffer)
	if err != nil {
		return false
	}
	return val != 0
}

// SetClientCap enables a client capability on the DRM fd. Atomic
// modesetting requires ClientCapAtomic and ClientCapUniversalPlanes;
// a kernel that refuses either cannot drive the mode.Device path.
func SetClientCap(file *os.File, capid, val uint64) error {
	cap := &clientCap{cap: capid, val: val}
	return ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLSetClientCap),
		uintptr(unsafe.Pointer(cap)))
}
