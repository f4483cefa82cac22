// Package nesteddemux provides concrete container demultiplexers (MPEG-TS,
// fragmented MP4) satisfying dash.NestedDemuxer, the pluggable collaborator
// the top-level Demux opens over each Representation's byte stream. The
// container format itself is out of scope for this module's own protocol
// (it is parsed by the libraries below, not reimplemented); what lives here
// is the adapter between their APIs and dash.NestedDemuxer.
package nesteddemux

import (
	"fmt"
	"io"

	"github.com/go-dash/dashdemux/internal/codec"
	"github.com/go-dash/dashdemux/internal/dash"
)

// Factory selects a MPEG-TS or fMP4 demuxer for rep based on its mimeType,
// wired as a dash.NestedDemuxerFactory.
func Factory(r io.Reader, rep *dash.Representation) (dash.NestedDemuxer, error) {
	switch codec.ContainerForMimeType(rep.MimeType) {
	case codec.ContainerMPEGTS:
		return newMPEGTSDemuxer(r, rep)
	default:
		return newFMP4Demuxer(r, rep)
	}
}

func unsupportedCodec(rep *dash.Representation, container codec.Container) error {
	return fmt.Errorf("nesteddemux: representation %s: codecs %q not demuxable from %s", rep.ID, rep.Codecs, container)
}
