package mode_test

import (
	"testing"

	drm "github.com/NeowayLabs/drmdev"
	"github.com/NeowayLabs/drmdev/mode"
)

// The tests below run against real hardware and skip when no DRM
// device with atomic modesetting is available.

func openDevice(t *testing.T) *mode.Device {
	t.Helper()
	file, err := drm.OpenCard(0)
	if err != nil {
		t.Skipf("no drm card available: %v", err)
	}
	dev, err := mode.NewDevice(file)
	if err != nil {
		file.Close()
		t.Skipf("atomic modesetting unavailable: %v", err)
	}
	t.Cleanup(func() {
		dev.Close()
		file.Close()
	})
	return dev
}

func TestEnumerate(t *testing.T) {
	dev := openDevice(t)

	t.Logf("Number of connectors: %d", len(dev.Connectors()))
	t.Logf("Number of encoders: %d", len(dev.Encoders()))
	t.Logf("Number of CRTCs: %d", len(dev.Crtcs()))
	t.Logf("Number of planes: %d", len(dev.Planes()))

	if len(dev.Crtcs()) == 0 || len(dev.Planes()) == 0 {
		t.Fatal("device has no crtcs or planes")
	}

	for _, conn := range dev.Connectors() {
		if len(conn.IDs) != len(conn.Info) {
			t.Fatalf("connector %d: %d property ids but %d descriptors",
				conn.ID, len(conn.IDs), len(conn.Info))
		}
		t.Logf("Connector %d: connection=%d modes=%d props=%d",
			conn.ID, conn.Connection, len(conn.Modes), len(conn.IDs))
	}

	for _, plane := range dev.Planes() {
		if plane.Type != mode.PlaneTypePrimary &&
			plane.Type != mode.PlaneTypeOverlay &&
			plane.Type != mode.PlaneTypeCursor {
			t.Fatalf("plane %d has bogus type %d", plane.ID, plane.Type)
		}
		t.Logf("Plane %d: type=%d crtcs=%#x formats=%d",
			plane.ID, plane.Type, plane.PossibleCrtcs, len(plane.Formats))
	}
}

func TestNameLookupRoundTrip(t *testing.T) {
	dev := openDevice(t)

	for _, crtc := range dev.Crtcs() {
		for i := range crtc.Info {
			name := crtc.Info[i].Name
			id, ok := crtc.Lookup(name)
			if !ok {
				t.Fatalf("crtc %d: property %q not found by its own name", crtc.ID, name)
			}
			if id != crtc.Info[i].ID {
				t.Fatalf("crtc %d: %q resolved to %d, descriptor says %d",
					crtc.ID, name, id, crtc.Info[i].ID)
			}
		}
	}
}

func TestConfigureAndTestOnlyModeset(t *testing.T) {
	dev := openDevice(t)

	pipe, err := dev.PickPipeline(nil)
	if err != nil {
		t.Skipf("no connected display: %v", err)
	}

	if dev.ModeBlobID() != 0 {
		t.Fatal("mode blob id nonzero before configure")
	}

	err = dev.Configure(pipe.Connector.ID, pipe.Encoder.ID, pipe.Crtc.ID, pipe.Mode)
	if err != nil {
		t.Fatalf("configure: %v", err)
	}

	if !dev.Configured() || dev.ModeBlobID() == 0 {
		t.Fatal("configure did not publish the selection")
	}
	if dev.Connector() != pipe.Connector || dev.Crtc() != pipe.Crtc {
		t.Fatal("selected objects are not the inventory entries")
	}

	req, err := dev.NewRequest()
	if err != nil {
		t.Fatalf("new request: %v", err)
	}

	flags := uint32(mode.AtomicTestOnly)
	if err := req.PutModesetProps(&flags); err != nil {
		req.Destroy()
		t.Fatalf("put modeset props: %v", err)
	}

	if err := req.Commit(flags, nil); err != nil {
		t.Fatalf("test-only modeset rejected: %v", err)
	}
}

func TestReconfigureReleasesOldBlob(t *testing.T) {
	dev := openDevice(t)

	pipe, err := dev.PickPipeline(nil)
	if err != nil {
		t.Skipf("no connected display: %v", err)
	}

	err = dev.Configure(pipe.Connector.ID, pipe.Encoder.ID, pipe.Crtc.ID, pipe.Mode)
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	first := dev.ModeBlobID()

	err = dev.Configure(pipe.Connector.ID, pipe.Encoder.ID, pipe.Crtc.ID, pipe.Mode)
	if err != nil {
		t.Fatalf("reconfigure: %v", err)
	}
	second := dev.ModeBlobID()

	if first == second {
		t.Fatalf("reconfigure kept blob %d instead of allocating a fresh one", first)
	}
	// Close destroys only the second blob; the first was already
	// released during reconfigure.
}
