// Package dash implements the manifest model, segment scheduler, refresher,
// and per-Representation byte-stream reader for MPEG-DASH presentations.
package dash

import (
	"time"

	"github.com/go-dash/dashdemux/internal/fetch"
)

// Clock90kHz is the fixed timescale every Representation's current
// timestamp is rescaled to, matching the nested container demuxers.
const Clock90kHz = 90000

// MediaType classifies a Representation by its content.
type MediaType int

const (
	MediaTypeVideo MediaType = iota
	MediaTypeAudio
	MediaTypeSubtitle
)

func (m MediaType) String() string {
	switch m {
	case MediaTypeVideo:
		return "video"
	case MediaTypeAudio:
		return "audio"
	case MediaTypeSubtitle:
		return "subtitle"
	default:
		return "unknown"
	}
}

// AddressingScheme identifies which of the three MPD segment-addressing
// mechanisms (or the single-file fallback) a Representation was resolved
// to. Exactly one is authoritative per Representation.
type AddressingScheme int

const (
	SchemeSingleFile AddressingScheme = iota
	SchemeExplicitList
	SchemeTimeline
	SchemeTemplateDuration
)

// Fragment is a byte range within a resource. Length −1 means "unknown,
// read to EOF of the resource."
type Fragment struct {
	URL    string
	Offset int64
	Length int64
}

// TimelineEntry is one <S> element from a SegmentTimeline: start_time < 0
// means "derive from the previous entry's end"; repeat == -1 means "extend
// to fill the Period"; repeat >= 0 means "repeat+1 contiguous segments".
type TimelineEntry struct {
	StartTime int64
	Repeat    int64
	Duration  uint64
}

// InitSection is the container-format bootstrap (e.g. fMP4 moov) that
// precedes a Representation's media fragments. Capped at 1 MiB; fetched
// once per Representation and cached in Data. Representations whose init
// URL+range+size are identical each fetch and hold their own copy; the
// buffer is not shared between them.
type InitSection struct {
	Fragment   Fragment
	Data       []byte
	Loaded     bool
	ReadOffset int // init_sec_buf_read_offset: how much of Data has been drained to the consumer
}

// Representation is one encoding of one media track, delivered as a
// sequence of segments addressed by exactly one of {Fragments, Timeline,
// template-with-duration}.
type Representation struct {
	ID        string
	MediaType MediaType

	// MimeType is the Representation's (or inherited AdaptationSet's)
	// raw mimeType attribute, e.g. "video/mp4" or "video/mp2t". The
	// nested demuxer factory switches on it to pick a container parser.
	MimeType string

	Codecs     string
	Language   string
	ScanType   string
	Width      int
	Height     int
	FrameRate  float64
	Bandwidth  uint64
	AudioRate  int

	// URLTemplate is the (unexpanded) media URL pattern, valid when
	// Scheme is SchemeTimeline or SchemeTemplateDuration.
	URLTemplate string

	BaseURL string

	FragmentDuration  uint64
	FragmentTimescale uint64
	StartNumber       uint64
	PresentationTimeOffset uint64

	Scheme AddressingScheme

	// Fragments holds the explicit segment list (SchemeExplicitList) or
	// the single resolved fragment (SchemeSingleFile).
	Fragments []Fragment

	// Timeline holds the SegmentTimeline entries (SchemeTimeline).
	Timeline []TimelineEntry

	Init InitSection

	FirstSeqNo uint64
	LastSeqNo  uint64
	CurSeqNo   uint64

	// CurTimestamp is the current fragment's start time rescaled to
	// Clock90kHz; updated by the Top-Level Demux after each packet.
	CurTimestamp int64

	// PeriodStart/PeriodDuration/MPDDuration snapshot the owning
	// Period's timing as observed when this Representation was admitted
	// (in seconds-scaled nanosecond Durations for precision).
	PeriodStart    time.Duration
	PeriodDuration time.Duration
	MPDDuration    time.Duration

	// CurSegSize/CurSegOffset track the open fragment during
	// Streaming; −1 size means unknown (read until EOF).
	CurSegSize   int64
	CurSegOffset int64
}

// ProgramInformation mirrors the MPD's <ProgramInformation> element,
// carried as metadata rather than consumed by the scheduler.
type ProgramInformation struct {
	Title     string
	Source    string
	Copyright string
}

// FetchOptions are the transport options captured from the outer caller at
// open and replayed on every segment fetch so authentication and session
// state persist across refreshes.
type FetchOptions struct {
	Headers   map[string]string
	Cookies   string
	UserAgent string
	Proxy     string
	Referer   string
	RWTimeout time.Duration
	ICY       bool
}

// Context is the presentation-global state of a parsed MPD (called
// "DASHContext"/"Manifest" in the source protocol; renamed here because
// "Manifest" collides with the MPD document it was parsed from).
type Context struct {
	MPDURL  string
	BaseURL string

	IsLive bool

	AvailabilityStartTime time.Time
	AvailabilityEndTime   time.Time
	PublishTime           time.Time

	MinimumUpdatePeriod      time.Duration
	SuggestedPresentationDelay time.Duration
	TimeShiftBufferDepth     time.Duration
	MinBufferTime            time.Duration
	MPDDuration              time.Duration

	PeriodID       string
	PeriodStart    time.Duration
	PeriodDuration time.Duration

	Videos    []*Representation
	Audios    []*Representation
	Subtitles []*Representation

	Info ProgramInformation

	FetchOptions FetchOptions

	// MaxURLSize grows dynamically as longer templated URLs are
	// observed; callers that preallocate URL buffers can consult it.
	MaxURLSize int

	UseTimelineSegmentOffsetCorrection bool
	FetchCompletedSegmentsOnly         bool

	Client fetch.Client
}

// BumpMaxURLSize grows MaxURLSize to at least n.
func (c *Context) BumpMaxURLSize(n int) {
	if n > c.MaxURLSize {
		c.MaxURLSize = n
	}
}

// Representations returns every Representation across all three media
// types, in video/audio/subtitle order.
func (c *Context) Representations() []*Representation {
	all := make([]*Representation, 0, len(c.Videos)+len(c.Audios)+len(c.Subtitles))
	all = append(all, c.Videos...)
	all = append(all, c.Audios...)
	all = append(all, c.Subtitles...)
	return all
}

// FindRepresentation returns the Representation with the given ID across
// all media types, or nil.
func (c *Context) FindRepresentation(id string) *Representation {
	for _, r := range c.Representations() {
		if r.ID == id {
			return r
		}
	}
	return nil
}
