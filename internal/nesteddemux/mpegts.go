package nesteddemux

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/asticode/go-astits"

	"github.com/go-dash/dashdemux/internal/codec"
	"github.com/go-dash/dashdemux/internal/dash"
)

// mpegtsDemuxer drains one elementary stream out of a MPEG-TS Representation,
// identifying its PID from the first PMT and discarding every other PID
// (DASH Representations are single-track; a TS segment carrying more than
// one program is not expected here).
type mpegtsDemuxer struct {
	rep      *dash.Representation
	demuxer  *astits.Demuxer
	streamID uint8
	pid      uint16
	pidKnown bool
}

func newMPEGTSDemuxer(r io.Reader, rep *dash.Representation) (dash.NestedDemuxer, error) {
	streamID, ok := mpegtsStreamType(rep)
	if !ok {
		return nil, unsupportedCodec(rep, codec.ContainerMPEGTS)
	}

	return &mpegtsDemuxer{
		rep:      rep,
		demuxer:  astits.NewDemuxer(context.Background(), r),
		streamID: streamID,
	}, nil
}

func mpegtsStreamType(rep *dash.Representation) (uint8, bool) {
	switch rep.MediaType {
	case dash.MediaTypeVideo:
		v, ok := codec.ParseVideo(codec.NormalizeMPDCodec(rep.Codecs))
		if !ok {
			return 0, false
		}
		return v.MPEGTSStreamType(), v.MPEGTSStreamType() != 0
	case dash.MediaTypeAudio:
		a, ok := codec.ParseAudio(codec.NormalizeMPDCodec(rep.Codecs))
		if !ok {
			return 0, false
		}
		return a.MPEGTSStreamType(), a.MPEGTSStreamType() != 0
	default:
		return 0, false
	}
}

// ReadPacket pulls PES packets until it finds one on the stream's PID,
// learning that PID from the first PMT that names it if not already known.
func (m *mpegtsDemuxer) ReadPacket() (int64, int64, []byte, bool, error) {
	for {
		data, err := m.demuxer.NextData()
		if err != nil {
			if err == astits.ErrNoMorePackets {
				return 0, 0, nil, false, io.EOF
			}
			return 0, 0, nil, false, fmt.Errorf("mpegts: %w", err)
		}

		if data.PMT != nil && !m.pidKnown {
			for _, es := range data.PMT.ElementaryStreams {
				if uint8(es.StreamType) == m.streamID {
					m.pid = es.ElementaryPID
					m.pidKnown = true
					break
				}
			}
			continue
		}

		if data.PES == nil || !m.pidKnown || data.PID != m.pid {
			continue
		}

		pts, dts := pesTimestamps(data.PES)
		keyframe := m.rep.MediaType != dash.MediaTypeVideo || containsIDR(data.PES.Data)
		return pts, dts, data.PES.Data, keyframe, nil
	}
}

func (m *mpegtsDemuxer) Close() error {
	return nil
}

// pesTimestamps extracts PTS/DTS from a PES optional header. ClockReference
// base is already a 90kHz tick count, matching Clock90kHz directly.
func pesTimestamps(pes *astits.PESData) (pts, dts int64) {
	if pes.Header == nil || pes.Header.OptionalHeader == nil {
		return 0, 0
	}
	oh := pes.Header.OptionalHeader
	if oh.PTS != nil {
		pts = oh.PTS.Base
	}
	dts = pts
	if oh.DTS != nil {
		dts = oh.DTS.Base
	}
	return pts, dts
}

// containsIDR does a cheap Annex-B scan for an H.264/H.265 IDR NAL unit,
// enough to flag a PES packet as a random-access point without a full
// slice-header parse.
func containsIDR(payload []byte) bool {
	const startCode = "\x00\x00\x01"
	idx := 0
	for {
		i := bytes.Index(payload[idx:], []byte(startCode))
		if i < 0 {
			return false
		}
		pos := idx + i + 3
		if pos >= len(payload) {
			return false
		}
		nalType := payload[pos] & 0x1F
		h265Type := (payload[pos] >> 1) & 0x3F
		if nalType == 5 || (h265Type >= 16 && h265Type <= 23) {
			return true
		}
		idx = pos
	}
}
