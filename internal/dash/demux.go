package dash

import (
	"context"
	"io"
)

// Packet is one demuxed access unit, tagged with its source
// Representation and the per-packet side-data from §6.
type Packet struct {
	RepresentationID string
	MediaType        MediaType
	PTS              int64 // rescaled to Clock90kHz
	DTS              int64
	Data             []byte
	KeyFrame         bool

	SegNumber     uint64
	SegSize       int64
	FragTimescale uint64
	FragDuration  uint64
}

// NestedDemuxer is the contract a container demultiplexer (fMP4, MPEG-TS)
// must satisfy to be driven by Demux. ReadPacket returns io.EOF when the
// underlying Reader returns io.EOF; Demux then closes it and, unless the
// stream is a VOD Representation past its last segment, opens a new one
// over the same Reader on the next call. pts/dts are already
// rescaled to Clock90kHz by the implementation, which knows its own
// container's native timebase (MPEG-TS's is always 90kHz; fMP4's comes
// from the track's media timescale).
type NestedDemuxer interface {
	ReadPacket() (pts, dts int64, data []byte, keyframe bool, err error)
	Close() error
}

// NestedDemuxerFactory opens a NestedDemuxer reading from r for rep.
type NestedDemuxerFactory func(r io.Reader, rep *Representation) (NestedDemuxer, error)

type repStream struct {
	rep        *Representation
	reader     *Reader
	demux      NestedDemuxer
	discard    bool
	everOpened bool
}

// Demux opens one nested container demultiplexer per Representation, each
// reading through a Reader that appears to it as a seekless byte stream,
// and multiplexes packets across them in (cur_seq_no, cur_timestamp)
// order.
type Demux struct {
	mc      *Context
	factory NestedDemuxerFactory
	streams []*repStream
}

// NewDemux builds a Demux over every Representation in mc.
func NewDemux(mc *Context, factory NestedDemuxerFactory) *Demux {
	d := &Demux{mc: mc, factory: factory}
	for _, rep := range mc.Representations() {
		d.streams = append(d.streams, &repStream{rep: rep, reader: NewReader(mc, rep)})
	}
	return d
}

// SetDiscard toggles whether a Representation is read. Re-enabling a
// previously discarded stream catches its cur_seq_no up to the maximum
// across siblings before it is reopened, per §4.5 step 1.
func (d *Demux) SetDiscard(repID string, discard bool) {
	for _, s := range d.streams {
		if s.rep.ID != repID {
			continue
		}
		wasDiscarded := s.discard
		s.discard = discard

		if discard {
			if s.demux != nil {
				s.demux.Close()
				s.demux = nil
			}
			return
		}

		if wasDiscarded {
			if max := d.maxCurSeqNo(); s.rep.CurSeqNo < max {
				s.rep.CurSeqNo = max
			}
			s.reader = NewReader(d.mc, s.rep)
		}
		return
	}
}

func (d *Demux) maxCurSeqNo() uint64 {
	var max uint64
	for _, s := range d.streams {
		if s.rep.CurSeqNo > max {
			max = s.rep.CurSeqNo
		}
	}
	return max
}

// ReadPacket selects the Representation with the smallest
// (cur_seq_no, cur_timestamp) tuple, pulls one packet from its nested
// demux (whose PTS is already in Clock90kHz), records that PTS as the
// stream's CurTimestamp, and attaches per-packet metadata. On nested EOF
// it closes that nested demux and retries; a VOD stream past its last
// segment is then no longer selected. Returns io.EOF once no stream is
// left to select.
func (d *Demux) ReadPacket(ctx context.Context) (*Packet, error) {
	src := d.selectSource()
	if src == nil {
		return nil, io.EOF
	}

	if src.demux == nil {
		if err := d.openNested(ctx, src); err != nil {
			return nil, err
		}
	}

	pts, dts, data, keyframe, err := src.demux.ReadPacket()
	if err == io.EOF {
		src.demux.Close()
		src.demux = nil
		return d.ReadPacket(ctx)
	}
	if err != nil {
		return nil, &RepresentationError{RepresentationID: src.rep.ID, Err: err}
	}

	src.rep.CurTimestamp = pts

	return &Packet{
		RepresentationID: src.rep.ID,
		MediaType:        src.rep.MediaType,
		PTS:              pts,
		DTS:              dts,
		Data:             data,
		KeyFrame:         keyframe,
		SegNumber:        src.rep.CurSeqNo,
		SegSize:          src.rep.CurSegSize,
		FragTimescale:    src.rep.FragmentTimescale,
		FragDuration:     fragDurationFor(src.rep),
	}, nil
}

func (d *Demux) selectSource() *repStream {
	var best *repStream
	for _, s := range d.streams {
		if s.discard {
			continue
		}
		// A VOD stream whose nested demux was closed after its Reader ran
		// past the last segment has nothing more to produce.
		if s.demux == nil && !d.mc.IsLive && s.rep.CurSeqNo > s.rep.LastSeqNo {
			continue
		}
		if best == nil ||
			s.rep.CurSeqNo < best.rep.CurSeqNo ||
			(s.rep.CurSeqNo == best.rep.CurSeqNo && s.rep.CurTimestamp < best.rep.CurTimestamp) {
			best = s
		}
	}
	return best
}

func (d *Demux) openNested(ctx context.Context, s *repStream) error {
	if s.reader == nil {
		s.reader = NewReader(d.mc, s.rep)
	}
	s.reader.SetInterrupter(ContextInterrupter(ctx))

	demuxer, err := d.factory(readerAdapter{r: s.reader, ctx: ctx}, s.rep)
	if err != nil {
		return &RepresentationError{RepresentationID: s.rep.ID, Err: err}
	}
	s.demux = demuxer
	s.everOpened = true
	return nil
}

// readerAdapter binds a Reader's context-taking Read to the plain
// io.Reader contract the nested demuxer libraries expect.
type readerAdapter struct {
	r   *Reader
	ctx context.Context
}

func (a readerAdapter) Read(p []byte) (int, error) {
	return a.r.Read(a.ctx, p)
}

// Seek repositions every stream to the segment covering targetMS
// milliseconds into the presentation. VOD only; live returns
// ErrNotSupported. A single-file Representation is not repositioned
// within its resource: its Reader is recreated at its current fragment.
func (d *Demux) Seek(ctx context.Context, targetMS int64) error {
	if d.mc.IsLive {
		return ErrNotSupported
	}

	for _, s := range d.streams {
		d.seekStream(s, targetMS)
	}
	return nil
}

func (d *Demux) seekStream(s *repStream, targetMS int64) {
	rep := s.rep

	switch rep.Scheme {
	case SchemeTimeline:
		target := targetMS * int64(timescaleOrDefault(rep.FragmentTimescale)) / 1000
		rep.CurSeqNo = timelineSeekSegment(rep, target)

	case SchemeTemplateDuration:
		ts := timescaleOrDefault(rep.FragmentTimescale)
		dur := durationOrDefault(rep.FragmentDuration)
		n := int64(rep.FirstSeqNo) + (targetMS*int64(ts))/(int64(dur)*1000)
		if n < int64(rep.FirstSeqNo) {
			n = int64(rep.FirstSeqNo)
		}
		rep.CurSeqNo = uint64(n)

	case SchemeExplicitList:
		rep.CurSeqNo = rep.FirstSeqNo

	case SchemeSingleFile:
		// No seek within the resource: the new Reader and nested demux
		// start again from the beginning of the single fragment.
	}

	if s.demux != nil {
		s.demux.Close()
		s.demux = nil
	}
	s.reader = NewReader(d.mc, rep)
}

// timelineSeekSegment walks the timeline to find the segment target falls
// inside: the last one whose start time does not exceed target.
func timelineSeekSegment(rep *Representation, target int64) uint64 {
	var accumulated int64
	n := rep.FirstSeqNo

	for _, e := range rep.Timeline {
		if e.StartTime >= 0 {
			accumulated = e.StartTime
		}

		if e.Repeat == -1 {
			if e.Duration == 0 {
				return n
			}
			delta := target - accumulated
			k := floorDiv(delta, int64(e.Duration))
			if k < 0 {
				k = 0
			}
			return n + uint64(k)
		}

		count := uint64(e.Repeat) + 1
		for i := uint64(0); i < count; i++ {
			segStart := accumulated + int64(i)*int64(e.Duration)
			if segStart > target {
				if n+i == rep.FirstSeqNo {
					return rep.FirstSeqNo
				}
				return n + i - 1
			}
		}

		n += count
		accumulated += int64(count) * int64(e.Duration)
	}

	if n > rep.FirstSeqNo {
		return n - 1
	}
	return n
}

func fragDurationFor(rep *Representation) uint64 {
	if rep.Scheme == SchemeTimeline && len(rep.Timeline) > 0 {
		return rep.Timeline[0].Duration
	}
	return rep.FragmentDuration
}
