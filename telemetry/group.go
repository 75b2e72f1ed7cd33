package telemetry

// DefaultKeep is the number of recent frames GroupFrames returns by default.
const DefaultKeep = 3

// GroupFrames splits buf into consecutive FrameSize runs from offset zero,
// drops runs that do not start with FrameMarker and a short trailing run,
// and returns the most recent keep of what is left, oldest first.
// keep <= 0 selects DefaultKeep.
//
// The returned slices alias buf.
func GroupFrames(buf []byte, keep int) [][]byte {
	if keep <= 0 {
		keep = DefaultKeep
	}

	var groups [][]byte
	for off := 0; off+FrameSize <= len(buf); off += FrameSize {
		group := buf[off : off+FrameSize]
		if group[0] != FrameMarker {
			continue
		}
		groups = append(groups, group)
	}

	if len(groups) > keep {
		groups = groups[len(groups)-keep:]
	}
	return groups
}
