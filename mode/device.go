package mode

import (
	"fmt"
	"os"
	"sync"

	drm "github.com/NeowayLabs/drmdev"
	"golang.org/x/sys/unix"
)

type (
	// PropertySet caches a mode object's properties: the kernel's
	// id/value pairs and, slot-by-slot, the descriptor for each id.
	// Name lookups scan the descriptors; property counts are small
	// (tens), a map buys nothing here.
	PropertySet struct {
		IDs    []uint32
		Values []uint64
		Info   []*Property
	}

	// DeviceConnector is a connector together with its cached
	// property set.
	DeviceConnector struct {
		*Connector
		PropertySet
	}

	DeviceEncoder struct {
		*Encoder
	}

	// DeviceCrtc is a CRTC with its cached property set. Index is the
	// CRTC's position in the kernel resource list; encoder
	// possible-CRTC masks are indexed by it.
	DeviceCrtc struct {
		*Crtc
		Index int
		PropertySet
	}

	// DevicePlane is a plane with its cached property set. Type holds
	// the value of the plane's "type" property (PlaneTypePrimary,
	// PlaneTypeOverlay or PlaneTypeCursor).
	DevicePlane struct {
		*Plane
		Type uint64
		PropertySet
	}

	// Device owns a DRM fd opened for atomic modesetting and the full
	// inventory of its mode objects. The inventory is built once and
	// is immutable afterwards; reads need no locking. The device
	// mutex serializes configuration and atomic requests: it is held
	// from NewRequest until the request is committed or destroyed, so
	// at most one request is ever alive per device.
	Device struct {
		file  *os.File
		owned bool

		mu sync.Mutex

		connectors []*DeviceConnector
		encoders   []*DeviceEncoder
		crtcs      []*DeviceCrtc
		planes     []*DevicePlane

		res      *Resources
		planeRes *PlaneResources

		closed       bool
		configured   bool
		selConnector *DeviceConnector
		selEncoder   *DeviceEncoder
		selCrtc      *DeviceCrtc
		selMode      *Info
		modeBlobID   uint32

		flipMu      sync.Mutex
		flipHandler PageFlipHandler
		pending     map[uint64]interface{}
		nextToken   uint64
	}
)

// Lookup returns the id of the property with the given name. The match
// is exact and case-sensitive.
func (s *PropertySet) Lookup(name string) (uint32, bool) {
	for i := range s.Info {
		if s.Info[i].Name == name {
			return s.IDs[i], true
		}
	}
	return 0, false
}

// Value returns the current value of the named property.
func (s *PropertySet) Value(name string) (uint64, bool) {
	for i := range s.Info {
		if s.Info[i].Name == name {
			return s.Values[i], true
		}
	}
	return 0, false
}

// NewDevice builds the inventory of an already-open DRM fd. The fd is
// not closed by Device.Close.
func NewDevice(file *os.File) (*Device, error) {
	return newDevice(file, false)
}

// NewDeviceFromPath opens a DRM node (e.g. /dev/dri/card0) and builds
// its inventory. The fd is owned by the device and closed by Close.
func NewDeviceFromPath(path string) (*Device, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	dev, err := newDevice(file, true)
	if err != nil {
		file.Close()
		return nil, err
	}
	return dev, nil
}

func newDevice(file *os.File, owned bool) (*Device, error) {
	// Atomic modesetting is mandatory here; a kernel that refuses
	// either capability cannot be driven by this device.
	err := drm.SetClientCap(file, drm.ClientCapUniversalPlanes, 1)
	if err != nil {
		return nil, fmt.Errorf("set universal planes client cap: %w", err)
	}
	err = drm.SetClientCap(file, drm.ClientCapAtomic, 1)
	if err != nil {
		return nil, fmt.Errorf("set atomic client cap: %w", err)
	}

	dev := &Device{
		file:    file,
		owned:   owned,
		pending: make(map[uint64]interface{}),
	}

	dev.res, err = GetResources(file)
	if err != nil {
		return nil, fmt.Errorf("get resources: %w", err)
	}
	dev.planeRes, err = GetPlaneResources(file)
	if err != nil {
		return nil, fmt.Errorf("get plane resources: %w", err)
	}

	for _, id := range dev.res.Connectors {
		conn, err := GetConnector(file, id)
		if err != nil {
			return nil, fmt.Errorf("get connector %d: %w", id, err)
		}
		props, err := fetchProperties(file, id, ObjectConnector)
		if err != nil {
			return nil, fmt.Errorf("connector %d properties: %w", id, err)
		}
		dev.connectors = append(dev.connectors, &DeviceConnector{
			Connector:   conn,
			PropertySet: *props,
		})
	}

	for _, id := range dev.res.Encoders {
		enc, err := GetEncoder(file, id)
		if err != nil {
			return nil, fmt.Errorf("get encoder %d: %w", id, err)
		}
		dev.encoders = append(dev.encoders, &DeviceEncoder{Encoder: enc})
	}

	for i, id := range dev.res.Crtcs {
		crtc, err := GetCrtc(file, id)
		if err != nil {
			return nil, fmt.Errorf("get crtc %d: %w", id, err)
		}
		props, err := fetchProperties(file, id, ObjectCrtc)
		if err != nil {
			return nil, fmt.Errorf("crtc %d properties: %w", id, err)
		}
		dev.crtcs = append(dev.crtcs, &DeviceCrtc{
			Crtc:        crtc,
			Index:       i,
			PropertySet: *props,
		})
	}

	for _, id := range dev.planeRes.Planes {
		plane, err := GetPlane(file, id)
		if err != nil {
			return nil, fmt.Errorf("get plane %d: %w", id, err)
		}
		props, err := fetchProperties(file, id, ObjectPlane)
		if err != nil {
			return nil, fmt.Errorf("plane %d properties: %w", id, err)
		}
		typ, _ := props.Value("type")
		dev.planes = append(dev.planes, &DevicePlane{
			Plane:       plane,
			Type:        typ,
			PropertySet: *props,
		})
	}

	return dev, nil
}

// fetchProperties builds the property set of one object: one ioctl for
// the id/value pairs, one per id for the descriptor.
func fetchProperties(file *os.File, objID, objType uint32) (*PropertySet, error) {
	oprops, err := ObjectGetProperties(file, objID, objType)
	if err != nil {
		return nil, err
	}
	set := &PropertySet{
		IDs:    oprops.Props,
		Values: oprops.Values,
		Info:   make([]*Property, 0, len(oprops.Props)),
	}
	for _, propid := range oprops.Props {
		info, err := GetProperty(file, propid)
		if err != nil {
			return nil, fmt.Errorf("property %d: %w", propid, err)
		}
		set.Info = append(set.Info, info)
	}
	return set, nil
}

// Connectors returns the device's connectors in kernel enumeration
// order. The returned slice is the inventory itself; callers must not
// modify it.
func (d *Device) Connectors() []*DeviceConnector {
	return d.connectors
}

func (d *Device) Encoders() []*DeviceEncoder {
	return d.encoders
}

func (d *Device) Crtcs() []*DeviceCrtc {
	return d.crtcs
}

func (d *Device) Planes() []*DevicePlane {
	return d.planes
}

// Configured reports whether a pipeline has been selected. Like the
// selection accessors below it reads without taking the device lock:
// the lock is held for the whole lifetime of an atomic request, and
// these reads must stay usable while a request is being built.
func (d *Device) Configured() bool {
	return d.configured
}

// Connector returns the selected connector, or nil before Configure
// succeeds. The returned pointer refers into the device inventory and
// stays valid until Close.
func (d *Device) Connector() *DeviceConnector {
	return d.selConnector
}

func (d *Device) Encoder() *DeviceEncoder {
	return d.selEncoder
}

func (d *Device) Crtc() *DeviceCrtc {
	return d.selCrtc
}

func (d *Device) Mode() *Info {
	return d.selMode
}

// ModeBlobID returns the id of the kernel blob holding the selected
// mode, zero before the first successful Configure.
func (d *Device) ModeBlobID() uint32 {
	return d.modeBlobID
}

// resolvePipeline validates a connector/encoder/crtc/mode tuple
// against the inventory and returns the inventory entries. The mode
// must be byte-identical to one of the connector's modes.
func (d *Device) resolvePipeline(connectorID, encoderID, crtcID uint32, mode *Info) (*DeviceConnector, *DeviceEncoder, *DeviceCrtc, *Info, error) {
	var (
		conn *DeviceConnector
		enc  *DeviceEncoder
		crtc *DeviceCrtc
	)

	for _, c := range d.connectors {
		if c.ID == connectorID {
			conn = c
			break
		}
	}
	if conn == nil {
		return nil, nil, nil, nil, fmt.Errorf("unknown connector id %d: %w", connectorID, unix.EINVAL)
	}

	for _, e := range d.encoders {
		if e.ID == encoderID {
			enc = e
			break
		}
	}
	if enc == nil {
		return nil, nil, nil, nil, fmt.Errorf("unknown encoder id %d: %w", encoderID, unix.EINVAL)
	}

	for _, c := range d.crtcs {
		if c.ID == crtcID {
			crtc = c
			break
		}
	}
	if crtc == nil {
		return nil, nil, nil, nil, fmt.Errorf("unknown crtc id %d: %w", crtcID, unix.EINVAL)
	}

	supported := false
	for _, id := range conn.Connector.Encoders {
		if id == encoderID {
			supported = true
			break
		}
	}
	if !supported {
		return nil, nil, nil, nil, fmt.Errorf("encoder %d cannot drive connector %d: %w", encoderID, connectorID, unix.EINVAL)
	}

	if enc.PossibleCrtcs&(1<<uint(crtc.Index)) == 0 {
		return nil, nil, nil, nil, fmt.Errorf("crtc %d cannot feed encoder %d: %w", crtcID, encoderID, unix.EINVAL)
	}

	var selMode *Info
	for i := range conn.Modes {
		if conn.Modes[i] == *mode {
			selMode = &conn.Modes[i]
			break
		}
	}
	if selMode == nil {
		return nil, nil, nil, nil, fmt.Errorf("mode %q not offered by connector %d: %w", cstr(mode.Name[:]), connectorID, unix.EINVAL)
	}

	return conn, enc, crtc, selMode, nil
}

// Configure selects the output pipeline: connector, encoder, CRTC and
// mode. The encoder must be listed by the connector and the CRTC must
// be set in the encoder's possible-CRTCs mask. On success the mode is
// uploaded as a kernel blob (replacing and releasing any previous
// one). On failure a previous configuration stays untouched.
func (d *Device) Configure(connectorID, encoderID, crtcID uint32, mode *Info) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	conn, enc, crtc, selMode, err := d.resolvePipeline(connectorID, encoderID, crtcID, mode)
	if err != nil {
		return err
	}

	blob, err := CreateModeBlob(d.file, selMode)
	if err != nil {
		return fmt.Errorf("create mode blob: %w", err)
	}

	old := d.modeBlobID
	d.modeBlobID = blob
	if old != 0 {
		// best effort; the new blob is already in place
		DestroyPropertyBlob(d.file, old)
	}

	d.selConnector = conn
	d.selEncoder = enc
	d.selCrtc = crtc
	d.selMode = selMode
	d.configured = true

	return nil
}

// Close releases the mode blob, if any, and closes the fd when the
// device owns it. Cached property ids are invalid afterwards.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	if d.modeBlobID != 0 {
		DestroyPropertyBlob(d.file, d.modeBlobID)
		d.modeBlobID = 0
	}
	d.configured = false
	d.selConnector = nil
	d.selEncoder = nil
	d.selCrtc = nil
	d.selMode = nil

	if d.owned {
		return d.file.Close()
	}
	return nil
}
