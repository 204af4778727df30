package mode

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Pipeline is a coherent connector/encoder/CRTC/mode tuple, ready to
// be passed to Device.Configure.
type Pipeline struct {
	Connector *DeviceConnector
	Encoder   *DeviceEncoder
	Crtc      *DeviceCrtc
	Mode      *Info
}

// PickPipeline walks the inventory and proposes a pipeline for the
// first connected connector that offers a mode and has an encoder
// with a reachable CRTC not in taken: the first such encoder, the
// first such CRTC, and the connector's preferred (first) mode.
// Connectors without a usable CRTC are passed over. taken marks CRTC
// ids already claimed for other outputs; pass nil for a
// single-display setup.
func (d *Device) PickPipeline(taken map[uint32]bool) (*Pipeline, error) {
	for _, conn := range d.connectors {
		if conn.Connection != Connected {
			continue
		}
		if len(conn.Modes) == 0 {
			continue
		}

		for _, encID := range conn.Connector.Encoders {
			enc := d.encoderByID(encID)
			if enc == nil {
				continue
			}
			for _, crtc := range d.crtcs {
				if enc.PossibleCrtcs&(1<<uint(crtc.Index)) == 0 {
					continue
				}
				if taken[crtc.ID] {
					continue
				}
				return &Pipeline{
					Connector: conn,
					Encoder:   enc,
					Crtc:      crtc,
					Mode:      &conn.Modes[0],
				}, nil
			}
		}
	}

	return nil, fmt.Errorf("no connected connector with a usable crtc: %w", unix.ENOENT)
}

// AutoConfigure picks a pipeline and configures the device with it.
func (d *Device) AutoConfigure() (*Pipeline, error) {
	pipe, err := d.PickPipeline(nil)
	if err != nil {
		return nil, err
	}
	err = d.Configure(pipe.Connector.ID, pipe.Encoder.ID, pipe.Crtc.ID, pipe.Mode)
	if err != nil {
		return nil, err
	}
	return pipe, nil
}

func (d *Device) encoderByID(id uint32) *DeviceEncoder {
	for _, enc := range d.encoders {
		if enc.ID == id {
			return enc
		}
	}
	return nil
}
