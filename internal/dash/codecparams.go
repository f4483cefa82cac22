package dash

import "github.com/go-dash/dashdemux/internal/codec"

// codecParamsChanged implements the parameter-change detection in §4.3
// step 4: {codecs, width, height, framerate, scantype} for video,
// {codecs} for audio and subtitles. Codecs strings are compared with
// codec.Match for every media type.
func codecParamsChanged(oldRep, newRep *Representation) bool {
	if !codec.Match(oldRep.Codecs, newRep.Codecs) {
		return true
	}

	if oldRep.MediaType != MediaTypeVideo {
		return false
	}

	return oldRep.Width != newRep.Width ||
		oldRep.Height != newRep.Height ||
		oldRep.FrameRate != newRep.FrameRate ||
		oldRep.ScanType != newRep.ScanType
}
