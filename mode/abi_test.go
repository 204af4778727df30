package mode

import (
	"testing"
	"unsafe"
)

// The ioctl request codes embed the argument struct size, so a wrong
// struct layout turns into a kernel ENOTTY at runtime. Pin the sizes
// and the resulting codes to the values from drm.h on 64-bit Linux.

func TestKernelStructSizes(t *testing.T) {
	for _, tc := range []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"drm_mode_card_res", unsafe.Sizeof(sysResources{}), 64},
		{"drm_mode_get_connector", unsafe.Sizeof(sysGetConnector{}), 80},
		{"drm_mode_get_encoder", unsafe.Sizeof(sysGetEncoder{}), 20},
		{"drm_mode_crtc", unsafe.Sizeof(sysCrtc{}), 104},
		{"drm_mode_get_plane_res", unsafe.Sizeof(sysGetPlaneRes{}), 16},
		{"drm_mode_get_plane", unsafe.Sizeof(sysGetPlane{}), 32},
		{"drm_mode_obj_get_properties", unsafe.Sizeof(sysObjGetProperties{}), 32},
		{"drm_mode_get_property", unsafe.Sizeof(sysGetProperty{}), 64},
		{"drm_mode_property_enum", unsafe.Sizeof(sysPropertyEnum{}), 40},
		{"drm_mode_create_blob", unsafe.Sizeof(sysCreateBlob{}), 16},
		{"drm_mode_destroy_blob", unsafe.Sizeof(sysDestroyBlob{}), 4},
		{"drm_mode_atomic", unsafe.Sizeof(sysAtomic{}), 56},
		{"drm_mode_modeinfo", unsafe.Sizeof(Info{}), 68},
		{"drm_event", unsafe.Sizeof(sysEvent{}), 8},
		{"drm_event_vblank", unsafe.Sizeof(sysEventVBlank{}), 32},
	} {
		if tc.got != tc.want {
			t.Errorf("sizeof(%s) = %d, want %d", tc.name, tc.got, tc.want)
		}
	}
}

func TestIOCTLCodes(t *testing.T) {
	for _, tc := range []struct {
		name string
		got  uint32
		want uint32
	}{
		{"DRM_IOCTL_MODE_GETRESOURCES", IOCTLModeResources, 0xc04064a0},
		{"DRM_IOCTL_MODE_GETCRTC", IOCTLModeGetCrtc, 0xc06864a1},
		{"DRM_IOCTL_MODE_GETENCODER", IOCTLModeGetEncoder, 0xc01464a6},
		{"DRM_IOCTL_MODE_GETCONNECTOR", IOCTLModeGetConnector, 0xc05064a7},
		{"DRM_IOCTL_MODE_GETPROPERTY", IOCTLModeGetProperty, 0xc04064aa},
		{"DRM_IOCTL_MODE_GETPLANERESOURCES", IOCTLModeGetPlaneResources, 0xc01064b5},
		{"DRM_IOCTL_MODE_GETPLANE", IOCTLModeGetPlane, 0xc02064b6},
		{"DRM_IOCTL_MODE_OBJ_GETPROPERTIES", IOCTLModeObjGetProperties, 0xc02064b9},
		{"DRM_IOCTL_MODE_ATOMIC", IOCTLModeAtomic, 0xc03864bc},
		{"DRM_IOCTL_MODE_CREATEPROPBLOB", IOCTLModeCreatePropBlob, 0xc01064bd},
		{"DRM_IOCTL_MODE_DESTROYPROPBLOB", IOCTLModeDestroyPropBlob, 0xc00464be},
	} {
		if tc.got != tc.want {
			t.Errorf("%s = %#08x, want %#08x", tc.name, tc.got, tc.want)
		}
	}
}
