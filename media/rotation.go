package media

import (
	"strconv"
	"strings"

	"github.com/stevecastle/lkgquilt/ffmpeg"
)

// NetRotation combines the legacy "rotate" tag with the display matrix
// rotation iOS writes to side data. A non-zero side data rotation is
// subtracted from the tag rotation.
func NetRotation(s ffmpeg.Stream) int {
	rotation := 0
	if tag, ok := s.Tags["rotate"]; ok {
		if r, err := strconv.Atoi(strings.TrimSpace(tag)); err == nil {
			rotation = r
		}
	}
	if len(s.SideDataList) > 0 {
		if side := s.SideDataList[0].Rotation; side != 0 {
			rotation -= side
		}
	}
	return rotation
}

// NormalizeRotation maps any rotation in degrees into [0, 360).
func NormalizeRotation(r int) int {
	return ((r % 360) + 360) % 360
}

// SwapsDimensions reports whether a rotation turns the frame on its side.
// ffmpeg autorotates while decoding, so only the reported size changes.
func SwapsDimensions(rotation int) bool {
	switch NormalizeRotation(rotation) {
	case 90, 270:
		return true
	}
	return false
}
