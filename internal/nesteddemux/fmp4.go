package nesteddemux

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/abema/go-mp4"

	"github.com/go-dash/dashdemux/internal/codec"
	"github.com/go-dash/dashdemux/internal/dash"
)

// fmp4Demuxer walks the top-level box sequence of a CMAF fragment
// (moof, mdat, repeating) out of a Representation's byte stream. Box
// traversal at this level is plain ISO-BMFF box-header arithmetic; go-mp4
// is used to unmarshal the one box this module actually needs a field
// out of, tfdt's baseMediaDecodeTime.
type fmp4Demuxer struct {
	rep *dash.Representation
	r   io.Reader

	pendingTime int64
	haveTime    bool
	seenMoof    bool
}

func newFMP4Demuxer(r io.Reader, rep *dash.Representation) (dash.NestedDemuxer, error) {
	if rep.MediaType == dash.MediaTypeVideo {
		if v, ok := codec.ParseVideo(codec.NormalizeMPDCodec(rep.Codecs)); ok && !v.IsDemuxable() {
			return nil, unsupportedCodec(rep, codec.ContainerFMP4)
		}
	}
	return &fmp4Demuxer{rep: rep, r: r}, nil
}

// ReadPacket returns one mdat's payload per call, tagged with the PTS
// carried by the moof that precedes it (from its traf/tfdt), or the
// previous fragment's PTS plus one fragment duration if no tfdt is
// present.
func (f *fmp4Demuxer) ReadPacket() (int64, int64, []byte, bool, error) {
	for {
		boxType, body, err := readTopLevelBox(f.r)
		if err == io.EOF {
			return 0, 0, nil, false, io.EOF
		}
		if err != nil {
			return 0, 0, nil, false, fmt.Errorf("fmp4: %w", err)
		}

		switch boxType {
		case "moof":
			if t, ok := findTfdtTime(body); ok {
				f.pendingTime = rescaleToClock90kHz(int64(t), f.rep.FragmentTimescale)
				f.haveTime = true
			} else if f.seenMoof {
				dur := f.rep.FragmentDuration
				if f.rep.Scheme == dash.SchemeTimeline && len(f.rep.Timeline) > 0 {
					dur = f.rep.Timeline[0].Duration
				}
				f.pendingTime += rescaleToClock90kHz(int64(dur), f.rep.FragmentTimescale)
			}
			f.seenMoof = true

		case "mdat":
			pts := f.pendingTime
			keyframe := f.rep.MediaType != dash.MediaTypeVideo || !f.haveTime
			f.haveTime = false
			return pts, pts, body, keyframe, nil
		}
	}
}

func (f *fmp4Demuxer) Close() error { return nil }

// readTopLevelBox reads one ISO-BMFF box header (4-byte size, 4-byte
// fourcc, 64-bit largesize extension when size == 1) and returns its
// fourcc and body.
func readTopLevelBox(r io.Reader) (string, []byte, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return "", nil, io.EOF
		}
		return "", nil, err
	}

	size := uint64(binary.BigEndian.Uint32(header[0:4]))
	boxType := string(header[4:8])
	headerSize := uint64(8)

	if size == 1 {
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return "", nil, err
		}
		size = binary.BigEndian.Uint64(ext[:])
		headerSize = 16
	}
	if size < headerSize {
		return "", nil, fmt.Errorf("invalid box size %d for %q", size, boxType)
	}

	body := make([]byte, size-headerSize)
	if _, err := io.ReadFull(r, body); err != nil {
		return "", nil, err
	}
	return boxType, body, nil
}

// findTfdtTime walks a moof's children looking for traf/tfdt and
// unmarshals it with go-mp4 to read baseMediaDecodeTime.
func findTfdtTime(moofBody []byte) (uint64, bool) {
	rest := moofBody
	for len(rest) >= 8 {
		size := uint64(binary.BigEndian.Uint32(rest[0:4]))
		boxType := string(rest[4:8])
		if size < 8 || size > uint64(len(rest)) {
			return 0, false
		}
		body := rest[8:size]

		switch boxType {
		case "traf":
			if t, ok := findTfdtTime(body); ok {
				return t, true
			}
		case "tfdt":
			var tfdt mp4.Tfdt
			if _, err := mp4.Unmarshal(bytes.NewReader(rest[8:size]), size-8, &tfdt, mp4.Context{}); err != nil {
				return 0, false
			}
			if tfdt.Version == 1 {
				return tfdt.BaseMediaDecodeTimeV1, true
			}
			return uint64(tfdt.BaseMediaDecodeTimeV0), true
		}

		rest = rest[size:]
	}
	return 0, false
}

func rescaleToClock90kHz(t int64, timescale uint64) int64 {
	if timescale == 0 {
		return t
	}
	return t * dash.Clock90kHz / int64(timescale)
}
