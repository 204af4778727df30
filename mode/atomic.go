package mode

import (
	"fmt"

	"golang.org/x/sys/unix"
)

type (
	propChange struct {
		prop  uint32
		value uint64
	}

	// AtomicRequest is a pending set of property changes against the
	// owning device. Creating a request takes the device lock; the
	// lock is released when the request is committed or destroyed, so
	// a request's lifetime and the lock tenure coincide and at most
	// one request per device exists at any instant.
	//
	// Changes are appended in call order. Duplicate properties are
	// not deduplicated; the kernel applies them in order and the last
	// write wins.
	AtomicRequest struct {
		dev *Device

		objs    []uint32 // object ids, first-use order
		changes map[uint32][]propChange

		committed bool
		destroyed bool
	}
)

// NewRequest creates an atomic request and locks the device until the
// request is committed or destroyed.
func (d *Device) NewRequest() (*AtomicRequest, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, fmt.Errorf("device is closed: %w", unix.EINVAL)
	}
	return &AtomicRequest{
		dev:     d,
		changes: make(map[uint32][]propChange),
	}, nil
}

// Destroy discards the pending set and unlocks the device. It is a
// no-op on a request that was already committed or destroyed.
func (r *AtomicRequest) Destroy() {
	if r.destroyed {
		return
	}
	r.finish()
}

func (r *AtomicRequest) finish() {
	r.destroyed = true
	r.objs = nil
	r.changes = nil
	r.dev.mu.Unlock()
}

func (r *AtomicRequest) usable() error {
	if r.destroyed {
		if r.committed {
			return fmt.Errorf("atomic request already committed: %w", unix.EINVAL)
		}
		return fmt.Errorf("atomic request already destroyed: %w", unix.EINVAL)
	}
	return nil
}

func (r *AtomicRequest) put(objID, propID uint32, value uint64) {
	if _, ok := r.changes[objID]; !ok {
		r.objs = append(r.objs, objID)
	}
	r.changes[objID] = append(r.changes[objID], propChange{propID, value})
}

// putNamed resolves name against the object's property set and appends
// the change. On an unknown name the pending set is left untouched.
func (r *AtomicRequest) putNamed(objID uint32, set *PropertySet, kind, name string, value uint64) error {
	id, ok := set.Lookup(name)
	if !ok {
		return fmt.Errorf("%s %d has no property %q: %w", kind, objID, name, unix.ENOENT)
	}
	r.put(objID, id, value)
	return nil
}

// PutConnectorProperty appends a change of the named property on the
// selected connector. Configure must have succeeded.
func (r *AtomicRequest) PutConnectorProperty(name string, value uint64) error {
	if err := r.usable(); err != nil {
		return err
	}
	d := r.dev
	if !d.configured {
		return fmt.Errorf("put connector property %q: device not configured: %w", name, unix.EINVAL)
	}
	conn := d.selConnector
	return r.putNamed(conn.ID, &conn.PropertySet, "connector", name, value)
}

// PutCrtcProperty appends a change of the named property on the
// selected CRTC. Configure must have succeeded.
func (r *AtomicRequest) PutCrtcProperty(name string, value uint64) error {
	if err := r.usable(); err != nil {
		return err
	}
	d := r.dev
	if !d.configured {
		return fmt.Errorf("put crtc property %q: device not configured: %w", name, unix.EINVAL)
	}
	crtc := d.selCrtc
	return r.putNamed(crtc.ID, &crtc.PropertySet, "crtc", name, value)
}

// PutPlaneProperty appends a change of the named property on an
// explicitly addressed plane.
func (r *AtomicRequest) PutPlaneProperty(planeID uint32, name string, value uint64) error {
	if err := r.usable(); err != nil {
		return err
	}
	for _, plane := range r.dev.planes {
		if plane.ID == planeID {
			return r.putNamed(planeID, &plane.PropertySet, "plane", name, value)
		}
	}
	return fmt.Errorf("unknown plane id %d: %w", planeID, unix.EINVAL)
}

// PutModesetProps appends the minimum property set that activates the
// selected pipeline: the connector's CRTC_ID, the CRTC's MODE_ID and
// ACTIVE. It also ORs AtomicAllowModeset into *flags since the kernel
// rejects mode changes without it.
func (r *AtomicRequest) PutModesetProps(flags *uint32) error {
	if err := r.usable(); err != nil {
		return err
	}
	d := r.dev
	if !d.configured {
		return fmt.Errorf("put modeset props: device not configured: %w", unix.EINVAL)
	}

	err := r.PutConnectorProperty("CRTC_ID", uint64(d.selCrtc.ID))
	if err != nil {
		return err
	}
	err = r.PutCrtcProperty("MODE_ID", uint64(d.modeBlobID))
	if err != nil {
		return err
	}
	err = r.PutCrtcProperty("ACTIVE", 1)
	if err != nil {
		return err
	}

	*flags |= AtomicAllowModeset
	return nil
}

// flatten lays the pending set out in the drm_mode_atomic wire shape:
// object ids in first-use order, a per-object change count, and the
// flattened property id and value arrays.
func (r *AtomicRequest) flatten() (objs, counts, props []uint32, values []uint64) {
	objs = r.objs
	counts = make([]uint32, 0, len(objs))
	for _, obj := range objs {
		changes := r.changes[obj]
		counts = append(counts, uint32(len(changes)))
		for _, ch := range changes {
			props = append(props, ch.prop)
			values = append(values, ch.value)
		}
	}
	return objs, counts, props, values
}

// Commit submits the request. The request is consumed whatever the
// outcome: on success and on failure alike the pending set is released
// and the device unlocked, and the kernel either applied the whole set
// or none of it.
//
// If flags contains PageFlipEvent, userdata is delivered to the
// device's page-flip handler when the flip completes (see
// SetPageFlipHandler and HandleEvents).
func (r *AtomicRequest) Commit(flags uint32, userdata interface{}) error {
	if err := r.usable(); err != nil {
		return err
	}
	d := r.dev

	objs, counts, props, values := r.flatten()

	var token uint64
	if flags&PageFlipEvent != 0 {
		token = d.registerFlip(userdata)
	}

	err := AtomicCommit(d.file, flags, objs, counts, props, values, token)
	if err != nil {
		if token != 0 {
			d.dropFlip(token)
		}
		r.finish()
		return err
	}

	r.committed = true
	r.finish()
	return nil
}
