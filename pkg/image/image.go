// Package image maps the running process's main executable: its load address,
// its segment layout and the relocation slide applied by the loader.
package image

import (
	"fmt"
)

// SegmentID names one of the logical regions the address database may refer to.
type SegmentID int

const (
	// SegText is the executable code section (.text).
	SegText SegmentID = iota
	// SegRData is the read-only data section (.rdata).
	SegRData
	// SegData is the mutable data section (.data).
	SegData

	segmentCount
)

func (s SegmentID) String() string {
	switch s {
	case SegText:
		return "text"
	case SegRData:
		return "rdata"
	case SegData:
		return "data"
	}
	return fmt.Sprintf("segment(%d)", int(s))
}

// ParseSegment maps a database segment name to its id.
func ParseSegment(name string) (SegmentID, bool) {
	switch name {
	case "text", ".text":
		return SegText, true
	case "rdata", ".rdata":
		return SegRData, true
	case "data", ".data":
		return SegData, true
	}
	return 0, false
}

var sectionNames = map[string]SegmentID{
	".text":  SegText,
	".rdata": SegRData,
	".data":  SegData,
}

// Section is one section header of the image, as read from its load-time
// command list.
type Section struct {
	Name           string
	VirtualAddress uint32
}

// Image is the parsed layout of the main executable. Read-only after New.
type Image struct {
	base          uintptr
	preferredBase uintptr
	segments      [segmentCount]uintptr
}

// New builds the segment table from the image's section headers. The image
// must carry all three expected segments; a missing one means the binary is
// not a layout this engine can operate on, and there is no safe fallback.
func New(base, preferredBase uintptr, sections []Section) (*Image, error) {
	img := &Image{
		base:          base,
		preferredBase: preferredBase,
	}

	found := [segmentCount]bool{}
	for _, s := range sections {
		id, ok := sectionNames[s.Name]
		if !ok || found[id] {
			continue
		}
		img.segments[id] = uintptr(s.VirtualAddress)
		found[id] = true
	}

	for id := SegText; id < segmentCount; id++ {
		if !found[id] {
			return nil, fmt.Errorf("image is missing the %s segment", id)
		}
	}

	return img, nil
}

// Base returns the runtime load address of the image.
func (img *Image) Base() uintptr {
	return img.base
}

// PreferredBase returns the link-time base address of the image.
func (img *Image) PreferredBase() uintptr {
	return img.preferredBase
}

// Slide returns the relocation offset the loader applied to the image.
// Constant for the process lifetime, but never the same across runs.
func (img *Image) Slide() uintptr {
	return img.base - img.preferredBase
}

// Segment returns the unrelocated base offset of a segment, relative to the
// image's preferred load address.
func (img *Image) Segment(id SegmentID) (uintptr, bool) {
	if id < 0 || id >= segmentCount {
		return 0, false
	}
	return img.segments[id], true
}
