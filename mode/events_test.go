package mode

import (
	"testing"
	"unsafe"
)

func flipEventBytes(token uint64, sequence, crtcID uint32) []byte {
	vb := sysEventVBlank{
		base: sysEvent{
			typ:    EventFlipComplete,
			length: uint32(unsafe.Sizeof(sysEventVBlank{})),
		},
		userData: token,
		sequence: sequence,
		crtcID:   crtcID,
	}
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&vb)), unsafe.Sizeof(vb))
	out := make([]byte, len(raw))
	copy(out, raw)
	return out
}

func TestFlipEventDeliversUserdata(t *testing.T) {
	d := newTestDevice()

	token := d.registerFlip("next-frame")

	var got []FlipEvent
	d.SetPageFlipHandler(func(ev FlipEvent) {
		got = append(got, ev)
	})

	err := d.processEvents(flipEventBytes(token, 7, 20))
	if err != nil {
		t.Fatalf("process events: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("handler called %d times, want 1", len(got))
	}
	ev := got[0]
	if ev.CrtcID != 20 || ev.Sequence != 7 {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Userdata != "next-frame" {
		t.Fatalf("userdata = %v", ev.Userdata)
	}

	if _, ok := d.dropFlip(token); ok {
		t.Fatal("flip still pending after delivery")
	}
}

func TestMultipleEventsInOneRead(t *testing.T) {
	d := newTestDevice()

	t1 := d.registerFlip(1)
	t2 := d.registerFlip(2)

	var got []FlipEvent
	d.SetPageFlipHandler(func(ev FlipEvent) {
		got = append(got, ev)
	})

	buf := append(flipEventBytes(t1, 1, 20), flipEventBytes(t2, 2, 21)...)
	if err := d.processEvents(buf); err != nil {
		t.Fatalf("process events: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("handler called %d times, want 2", len(got))
	}
	if got[0].Userdata != 1 || got[1].Userdata != 2 {
		t.Fatalf("events out of order: %+v", got)
	}
}

func TestUnknownEventsAreSkipped(t *testing.T) {
	d := newTestDevice()

	called := false
	d.SetPageFlipHandler(func(FlipEvent) { called = true })

	vb := flipEventBytes(0, 0, 0)
	ev := (*sysEvent)(unsafe.Pointer(&vb[0]))
	ev.typ = EventVBlank

	if err := d.processEvents(vb); err != nil {
		t.Fatalf("process events: %v", err)
	}
	if called {
		t.Fatal("vblank event dispatched as page flip")
	}
}

func TestTruncatedEventIsAnError(t *testing.T) {
	d := newTestDevice()

	buf := flipEventBytes(0, 0, 0)
	if err := d.processEvents(buf[:12]); err == nil {
		t.Fatal("truncated event accepted")
	}
	if err := d.processEvents(buf[:4]); err == nil {
		t.Fatal("truncated header accepted")
	}
}
