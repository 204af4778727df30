package mode

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Event types read back from the DRM fd.
const (
	EventVBlank       = 0x01
	EventFlipComplete = 0x02
	EventCrtcSequence = 0x03
)

type (
	sysEvent struct {
		typ    uint32
		length uint32
	}

	sysEventVBlank struct {
		base     sysEvent
		userData uint64
		tvSec    uint32
		tvUsec   uint32
		sequence uint32
		crtcID   uint32
	}

	// FlipEvent reports a completed page flip: which CRTC flipped, the
	// vblank sequence and timestamp it flipped at, and the userdata
	// that was passed to the Commit that requested the event.
	FlipEvent struct {
		CrtcID   uint32
		Sequence uint32
		Sec      uint32
		Usec     uint32
		Userdata interface{}
	}

	PageFlipHandler func(FlipEvent)
)

// SetPageFlipHandler installs the handler invoked by HandleEvents for
// completed page flips. The handler is looked up when HandleEvents
// dispatches a flip, so it must be set before the event is handled.
func (d *Device) SetPageFlipHandler(h PageFlipHandler) {
	d.flipMu.Lock()
	d.flipHandler = h
	d.flipMu.Unlock()
}

// registerFlip stores userdata for a flip in flight and returns the
// token that rides through the kernel in drm_mode_atomic.user_data.
// Tokens start at 1; zero means "no event requested".
func (d *Device) registerFlip(userdata interface{}) uint64 {
	d.flipMu.Lock()
	defer d.flipMu.Unlock()
	d.nextToken++
	token := d.nextToken
	d.pending[token] = userdata
	return token
}

func (d *Device) dropFlip(token uint64) (interface{}, bool) {
	d.flipMu.Lock()
	defer d.flipMu.Unlock()
	userdata, ok := d.pending[token]
	delete(d.pending, token)
	return userdata, ok
}

// HandleEvents drains pending events from the DRM fd and dispatches
// page-flip completions to the installed handler. The embedder's event
// loop calls this when the fd polls readable; the read blocks if no
// event is pending.
func (d *Device) HandleEvents() error {
	buf := make([]byte, 1024)
	n, err := d.file.Read(buf)
	if err != nil {
		return fmt.Errorf("read drm events: %w", err)
	}
	return d.processEvents(buf[:n])
}

func (d *Device) processEvents(buf []byte) error {
	for len(buf) > 0 {
		if len(buf) < int(unsafe.Sizeof(sysEvent{})) {
			return fmt.Errorf("truncated drm event header: %w", unix.EINVAL)
		}
		ev := (*sysEvent)(unsafe.Pointer(&buf[0]))
		if ev.length < uint32(unsafe.Sizeof(sysEvent{})) || int(ev.length) > len(buf) {
			return fmt.Errorf("bad drm event length %d: %w", ev.length, unix.EINVAL)
		}

		if ev.typ == EventFlipComplete {
			if ev.length < uint32(unsafe.Sizeof(sysEventVBlank{})) {
				return fmt.Errorf("short flip event: %w", unix.EINVAL)
			}
			vb := (*sysEventVBlank)(unsafe.Pointer(&buf[0]))
			userdata, _ := d.dropFlip(vb.userData)

			d.flipMu.Lock()
			handler := d.flipHandler
			d.flipMu.Unlock()
			if handler != nil {
				handler(FlipEvent{
					CrtcID:   vb.crtcID,
					Sequence: vb.sequence,
					Sec:      vb.tvSec,
					Usec:     vb.tvUsec,
					Userdata: userdata,
				})
			}
		}

		buf = buf[ev.length:]
	}
	return nil
}
