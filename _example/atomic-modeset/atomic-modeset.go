// Atomic modesetting example: light up the first connected display
// through the atomic commit interface and flip a dumb framebuffer
// onto its primary plane.
package main

import (
	"fmt"
	"os"

	drm "github.com/NeowayLabs/drmdev"
	"github.com/NeowayLabs/drmdev/mode"
)

func main() {
	file, err := drm.OpenCard(0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())
		os.Exit(1)
	}
	defer file.Close()

	dev, err := mode.NewDevice(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())
		os.Exit(1)
	}
	defer dev.Close()

	pipe, err := dev.AutoConfigure()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())
		os.Exit(1)
	}

	m := pipe.Mode
	fmt.Printf("using connector %d, crtc %d, mode %dx%d\n",
		pipe.Connector.ID, pipe.Crtc.ID, m.Hdisplay, m.Vdisplay)

	fb, err := mode.NewDumbFramebuffer(file, m.Hdisplay, m.Vdisplay, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())
		os.Exit(1)
	}
	defer fb.Destroy()

	// solid gray
	for i := range fb.Data {
		fb.Data[i] = 0x80
	}

	var primary *mode.DevicePlane
	for _, plane := range dev.Planes() {
		if plane.Type == mode.PlaneTypePrimary &&
			plane.PossibleCrtcs&(1<<uint(pipe.Crtc.Index)) != 0 {
			primary = plane
			break
		}
	}
	if primary == nil {
		fmt.Fprintf(os.Stderr, "error: no primary plane for crtc %d\n", pipe.Crtc.ID)
		os.Exit(1)
	}

	dev.SetPageFlipHandler(func(ev mode.FlipEvent) {
		fmt.Printf("flip complete on crtc %d (seq %d): %v\n",
			ev.CrtcID, ev.Sequence, ev.Userdata)
	})

	req, err := dev.NewRequest()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())
		os.Exit(1)
	}

	flags := uint32(mode.PageFlipEvent)
	err = req.PutModesetProps(&flags)
	if err == nil {
		err = req.PutPlaneProperty(primary.ID, "FB_ID", uint64(fb.ID))
	}
	if err == nil {
		err = req.PutPlaneProperty(primary.ID, "CRTC_ID", uint64(pipe.Crtc.ID))
	}
	for _, p := range []struct {
		name  string
		value uint64
	}{
		{"SRC_X", 0},
		{"SRC_Y", 0},
		{"SRC_W", uint64(m.Hdisplay) << 16},
		{"SRC_H", uint64(m.Vdisplay) << 16},
		{"CRTC_X", 0},
		{"CRTC_Y", 0},
		{"CRTC_W", uint64(m.Hdisplay)},
		{"CRTC_H", uint64(m.Vdisplay)},
	} {
		if err == nil {
			err = req.PutPlaneProperty(primary.ID, p.name, p.value)
		}
	}
	if err != nil {
		req.Destroy()
		fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())
		os.Exit(1)
	}

	err = req.Commit(flags, "first frame")
	if err != nil {
		fmt.Fprintf(os.Stderr, "commit failed: %s\n", err.Error())
		os.Exit(1)
	}

	err = dev.HandleEvents()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())
		os.Exit(1)
	}
}
