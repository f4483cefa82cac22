package dash

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/abema/go-mp4"
)

type readerState int

const (
	stateIdle readerState = iota
	stateInitPending
	stateInitDraining
	stateStreaming
	stateRestart
	stateRefreshing
	stateEOF
)

// Reader presents a single Representation as a gapless byte stream: init
// section, then each fragment in order, waiting/refreshing at the live
// edge, restartable after a manifest refresh. It has no seek operation,
// in any addressing mode; Demux.Seek repositions a stream by replacing
// its Reader.
type Reader struct {
	mc  *Context
	rep *Representation

	state readerState
	body  io.ReadCloser

	interrupter Interrupter
}

// NewReader returns a Reader for rep, idle and ready to produce bytes on
// the first call to Read.
func NewReader(mc *Context, rep *Representation) *Reader {
	return &Reader{mc: mc, rep: rep, state: stateIdle}
}

// SetInterrupter installs the cancellation callback polled at every
// blocking point. If unset, Read never self-interrupts (the caller's
// context is still honored by the transport).
func (r *Reader) SetInterrupter(i Interrupter) {
	r.interrupter = i
}

// Close releases any open input handle.
func (r *Reader) Close() error {
	r.closeBody()
	return nil
}

// Read implements the three-phase read operation from §4.4: remainder of
// init buffer, remainder of current media segment, then Restart and
// recurse. Returns io.EOF once a VOD Representation is exhausted.
func (r *Reader) Read(ctx context.Context, p []byte) (int, error) {
	for {
		if r.interrupter != nil && r.interrupter.Interrupted() {
			return 0, ErrInterrupted
		}

		switch r.state {
		case stateIdle:
			if err := r.enterIdle(ctx); err != nil {
				return 0, err
			}

		case stateInitPending:
			if err := r.loadInit(ctx); err != nil {
				return 0, err
			}
			r.state = stateInitDraining

		case stateInitDraining:
			if r.rep.Init.ReadOffset < len(r.rep.Init.Data) {
				n := copy(p, r.rep.Init.Data[r.rep.Init.ReadOffset:])
				r.rep.Init.ReadOffset += n
				return n, nil
			}
			if err := r.openFragment(ctx); err != nil {
				if err == io.EOF {
					r.state = stateEOF
					continue
				}
				return 0, err
			}
			r.state = stateStreaming

		case stateStreaming:
			n, err := r.readFragment(p)
			if n > 0 {
				return n, nil
			}
			if err == io.EOF {
				r.state = stateRestart
				continue
			}
			if err != nil {
				return 0, err
			}

		case stateRestart:
			r.closeBody()
			r.rep.CurSeqNo++
			r.state = stateIdle

		case stateRefreshing:
			if err := Refresh(ctx, r.mc, r.rep); err != nil {
				return 0, err
			}
			r.state = stateIdle

		case stateEOF:
			return 0, io.EOF
		}
	}
}

// enterIdle decides the next state from Idle: EOF (VOD exhausted),
// Refreshing (live, outran the schedule), Init-Pending (init not yet
// loaded), or straight to opening the current fragment.
func (r *Reader) enterIdle(ctx context.Context) error {
	if !r.mc.IsLive && r.rep.CurSeqNo > r.rep.LastSeqNo {
		r.state = stateEOF
		return nil
	}

	if r.mc.IsLive {
		max := MaxSegmentNumber(r.mc, r.rep, time.Now())
		if r.rep.CurSeqNo > max {
			r.state = stateRefreshing
			return nil
		}
	}

	if !r.rep.Init.Loaded && r.rep.Init.Fragment.URL != "" {
		r.state = stateInitPending
		return nil
	}

	if err := r.openFragment(ctx); err != nil {
		if err == io.EOF {
			r.state = stateEOF
			return nil
		}
		return err
	}
	r.state = stateStreaming
	return nil
}

// loadInit fetches the init section once per Representation, capped at
// maxInitSectionSize.
func (r *Reader) loadInit(ctx context.Context) error {
	if r.rep.Init.Loaded {
		return nil
	}

	data, err := fetchFragment(ctx, r.mc, r.rep.Init.Fragment, maxInitSectionSize)
	if err != nil {
		return &RepresentationError{RepresentationID: r.rep.ID, Err: err}
	}

	if looksLikeFMP4(r.rep.MimeType) && !sniffFtyp(data) {
		return &RepresentationError{
			RepresentationID: r.rep.ID,
			Err:              fmt.Errorf("%w: init section does not start with a ftyp box", ErrInvalidManifest),
		}
	}

	r.rep.Init.Data = data
	r.rep.Init.ReadOffset = 0
	r.rep.Init.Loaded = true
	return nil
}

func looksLikeFMP4(mimeType string) bool {
	return mimeType == "" || mimeType != "video/mp2t"
}

// sniffFtyp checks that an init section's first box is a ftyp, the one
// fixed point of an otherwise free-form CMAF initialization segment.
func sniffFtyp(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	size := binary.BigEndian.Uint32(data[0:4])
	if uint64(size) > uint64(len(data)) {
		return false
	}
	return mp4.BoxType{data[4], data[5], data[6], data[7]} == mp4.BoxTypeFtyp()
}

// openFragment resolves the current fragment's URL, opens it with a
// byte-range GET when its size is known, or measures it via Size
// otherwise. On transport failure: VOD advances past the broken fragment
// and retries; live leaves cur_seq_no untouched so a refresh can
// re-anchor it.
func (r *Reader) openFragment(ctx context.Context) error {
	frag, err := r.currentFragment()
	if err == io.EOF {
		return io.EOF
	}
	if err != nil {
		return err
	}

	size := frag.Length
	if size < 0 {
		if sz, serr := r.mc.Client.Size(ctx, frag.URL); serr == nil {
			size = sz
		}
	}

	body, err := r.mc.Client.Open(ctx, frag.URL, frag.Offset, frag.Length)
	if err != nil {
		wrapped := &RepresentationError{RepresentationID: r.rep.ID, Err: fmt.Errorf("%w: %v", ErrTransportFailed, err)}
		if r.mc.IsLive {
			return wrapped
		}
		slog.Warn("segment fetch failed, skipping", "representation", r.rep.ID, "seq", r.rep.CurSeqNo, "error", err)
		r.rep.CurSeqNo++
		return r.openFragment(ctx)
	}

	r.body = body
	r.rep.CurSegSize = size
	r.rep.CurSegOffset = 0
	return nil
}

// currentFragment resolves the Fragment for rep.CurSeqNo: an indexed
// lookup for explicit/single-file schemes, or a template expansion for
// timeline/duration schemes. It also advances CurTimestamp to the
// segment's 90 kHz-rescaled start time.
func (r *Reader) currentFragment() (Fragment, error) {
	switch r.rep.Scheme {
	case SchemeExplicitList, SchemeSingleFile:
		idx := r.rep.CurSeqNo - r.rep.FirstSeqNo
		if idx >= uint64(len(r.rep.Fragments)) {
			return Fragment{}, io.EOF
		}
		return r.rep.Fragments[idx], nil

	default:
		t := SegmentStartTime(r.mc, r.rep, r.rep.CurSeqNo)
		rawURL := ExpandTemplate(r.rep.URLTemplate, r.rep, r.rep.CurSeqNo, t)
		resolved, err := resolveReference(r.rep.BaseURL, rawURL)
		if err != nil {
			return Fragment{}, &RepresentationError{RepresentationID: r.rep.ID, Err: ErrInvalidManifest}
		}
		r.rep.CurTimestamp = rescaleToClock(t, r.rep.FragmentTimescale)
		return Fragment{URL: resolved, Offset: 0, Length: -1}, nil
	}
}

// readFragment drains the open fragment body into p.
func (r *Reader) readFragment(p []byte) (int, error) {
	if r.body == nil {
		return 0, io.EOF
	}

	n, err := r.body.Read(p)
	r.rep.CurSegOffset += int64(n)

	if err == io.EOF {
		r.closeBody()
		return n, io.EOF
	}
	if err != nil {
		r.closeBody()
		return n, &RepresentationError{RepresentationID: r.rep.ID, Err: fmt.Errorf("%w: %v", ErrTransportFailed, err)}
	}
	return n, nil
}

func (r *Reader) closeBody() {
	if r.body != nil {
		r.body.Close()
		r.body = nil
	}
}

// rescaleToClock rescales t (in ts timescale units) to Clock90kHz.
func rescaleToClock(t int64, ts uint64) int64 {
	if ts == 0 {
		return t
	}
	return t * Clock90kHz / int64(ts)
}

// fetchFragment reads frag's entire content, bounded at maxSize bytes.
func fetchFragment(ctx context.Context, mc *Context, frag Fragment, maxSize int64) ([]byte, error) {
	rc, err := mc.Client.Open(ctx, frag.URL, frag.Offset, frag.Length)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportFailed, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportFailed, err)
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("%w: init section exceeds %d bytes", ErrOutOfMemory, maxSize)
	}
	return data, nil
}
