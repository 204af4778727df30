package mode

import (
	"fmt"
	"os"

	"launchpad.net/gommap"
)

// DumbFramebuffer is a kernel dumb buffer wrapped as a scanout
// framebuffer: created, registered with AddFB and memory-mapped in one
// step. ID is what a plane's FB_ID property takes; Data is the mapped
// pixel memory, zeroed on creation.
type DumbFramebuffer struct {
	FB   *FB
	ID   uint32
	Data []byte

	file *os.File
}

func NewDumbFramebuffer(file *os.File, width, height uint16, bpp uint32) (*DumbFramebuffer, error) {
	fb, err := CreateFB(file, width, height, bpp)
	if err != nil {
		return nil, fmt.Errorf("create dumb buffer: %w", err)
	}

	depth := uint8(24)
	id, err := AddFB(file, width, height, depth, uint8(bpp), fb.Pitch, fb.Handle)
	if err != nil {
		DestroyDumb(file, fb.Handle)
		return nil, fmt.Errorf("add framebuffer: %w", err)
	}

	offset, err := MapDumb(file, fb.Handle)
	if err != nil {
		RmFB(file, id)
		DestroyDumb(file, fb.Handle)
		return nil, fmt.Errorf("map dumb: %w", err)
	}

	mmap, err := gommap.MapAt(0, file.Fd(), int64(offset), int64(fb.Size),
		gommap.PROT_READ|gommap.PROT_WRITE, gommap.MAP_SHARED)
	if err != nil {
		RmFB(file, id)
		DestroyDumb(file, fb.Handle)
		return nil, fmt.Errorf("mmap framebuffer: %w", err)
	}

	for i := uint64(0); i < fb.Size; i++ {
		mmap[i] = 0
	}

	return &DumbFramebuffer{
		FB:   fb,
		ID:   id,
		Data: mmap,
		file: file,
	}, nil
}

// Destroy unmaps the pixel memory and releases the framebuffer and the
// underlying dumb buffer.
func (f *DumbFramebuffer) Destroy() error {
	err := gommap.MMap(f.Data).UnsafeUnmap()
	if err != nil {
		return fmt.Errorf("munmap framebuffer: %w", err)
	}
	f.Data = nil

	err = RmFB(f.file, f.ID)
	if err != nil {
		return fmt.Errorf("remove framebuffer: %w", err)
	}

	err = DestroyDumb(f.file, f.FB.Handle)
	if err != nil {
		return fmt.Errorf("destroy dumb buffer: %w", err)
	}
	return nil
}
