package dash

import (
	"context"
	"errors"
	"testing"
	"time"
)

const liveManifestV1 = `<?xml version="1.0"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="dynamic" availabilityStartTime="2020-01-01T00:00:00Z" publishTime="2020-01-01T00:00:10Z">
  <Period id="p0" start="PT0S">
    <AdaptationSet mimeType="video/mp4" codecs="avc1.64001f">
      <SegmentTemplate initialization="init.mp4" media="seg-$Number$.m4s" startNumber="1" timescale="1000">
        <SegmentTimeline>
          <S t="0" d="1000" r="4"/>
        </SegmentTimeline>
      </SegmentTemplate>
      <Representation id="v1" bandwidth="500000" width="1280" height="720"/>
    </AdaptationSet>
  </Period>
</MPD>`

const liveManifestV2CodecChange = `<?xml version="1.0"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="dynamic" availabilityStartTime="2020-01-01T00:00:00Z" publishTime="2020-01-01T00:00:20Z">
  <Period id="p0" start="PT0S">
    <AdaptationSet mimeType="video/mp4" codecs="hev1.1.6.L93.B0">
      <SegmentTemplate initialization="init.mp4" media="seg-$Number$.m4s" startNumber="1" timescale="1000">
        <SegmentTimeline>
          <S t="0" d="1000" r="9"/>
        </SegmentTimeline>
      </SegmentTemplate>
      <Representation id="v1" bandwidth="500000" width="1280" height="720"/>
    </AdaptationSet>
  </Period>
</MPD>`

const liveManifestV2Extended = `<?xml version="1.0"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="dynamic" availabilityStartTime="2020-01-01T00:00:00Z" publishTime="2020-01-01T00:00:20Z">
  <Period id="p0" start="PT0S">
    <AdaptationSet mimeType="video/mp4" codecs="avc1.64001f">
      <SegmentTemplate initialization="init.mp4" media="seg-$Number$.m4s" startNumber="1" timescale="1000">
        <SegmentTimeline>
          <S t="0" d="1000" r="9"/>
        </SegmentTimeline>
      </SegmentTemplate>
      <Representation id="v1" bandwidth="500000" width="1280" height="720"/>
    </AdaptationSet>
  </Period>
</MPD>`

func TestRefresh_CodecChangeDetected(t *testing.T) {
	client := newMemClient()
	client.set("http://host/manifest.mpd", []byte(liveManifestV1))

	mc, err := Parse(context.Background(), client, "http://host/manifest.mpd", 0, 0)
	if err != nil {
		t.Fatalf("initial parse failed: %v", err)
	}

	client.set("http://host/manifest.mpd", []byte(liveManifestV2CodecChange))

	err = Refresh(context.Background(), mc, mc.Videos[0])
	var repErr *RepresentationError
	if !errors.As(err, &repErr) || !errors.Is(err, ErrInputChanged) {
		t.Fatalf("got %v, want a RepresentationError wrapping ErrInputChanged", err)
	}
}

func TestRefresh_ExtendsTimelineAndPreservesPosition(t *testing.T) {
	client := newMemClient()
	client.set("http://host/manifest.mpd", []byte(liveManifestV1))

	mc, err := Parse(context.Background(), client, "http://host/manifest.mpd", 0, 0)
	if err != nil {
		t.Fatalf("initial parse failed: %v", err)
	}
	rep := mc.Videos[0]
	rep.CurSeqNo = 3 // pretend playback has advanced to segment 3

	client.set("http://host/manifest.mpd", []byte(liveManifestV2Extended))

	if err := Refresh(context.Background(), mc, rep); err != nil {
		t.Fatalf("unexpected refresh error: %v", err)
	}

	// The new manifest's timeline covers the same segment 3 at the same
	// start time (t=2000 in timescale units); CurSeqNo should be
	// reconciled back to 3, not reset to FirstSeqNo.
	if rep.CurSeqNo != 3 {
		t.Errorf("CurSeqNo after refresh = %d, want 3", rep.CurSeqNo)
	}
	// The extended timeline's LastSeqNo should now be reachable (10
	// segments vs the original 5).
	if rep.LastSeqNo < 9 {
		t.Errorf("LastSeqNo after refresh = %d, want >= 9", rep.LastSeqNo)
	}
}

func TestRefresh_DoesNotRegressToEarlierPeriodOnFallback(t *testing.T) {
	// v1 has two Periods; both start after currentTimepoint so the initial
	// parse relies on selectPeriod's fallback and lands on p1 (the newest
	// Period, start=10).
	const multiPeriodV1 = `<?xml version="1.0"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="dynamic" availabilityStartTime="2020-01-01T00:00:00Z" publishTime="2020-01-01T00:00:10Z">
  <Period id="p0" start="PT5S">
    <AdaptationSet mimeType="video/mp4" codecs="avc1.64001f">
      <SegmentTemplate initialization="init.mp4" media="seg-$Number$.m4s" startNumber="1" timescale="1000">
        <SegmentTimeline><S t="0" d="1000" r="4"/></SegmentTimeline>
      </SegmentTemplate>
      <Representation id="v1" bandwidth="500000"/>
    </AdaptationSet>
  </Period>
  <Period id="p1" start="PT10S">
    <AdaptationSet mimeType="video/mp4" codecs="avc1.64001f">
      <SegmentTemplate initialization="init.mp4" media="seg-$Number$.m4s" startNumber="1" timescale="1000">
        <SegmentTimeline><S t="0" d="1000" r="4"/></SegmentTimeline>
      </SegmentTemplate>
      <Representation id="v1" bandwidth="500000"/>
    </AdaptationSet>
  </Period>
</MPD>`

	client := newMemClient()
	client.set("http://host/manifest.mpd", []byte(multiPeriodV1))

	mc, err := Parse(context.Background(), client, "http://host/manifest.mpd", 0, 0)
	if err != nil {
		t.Fatalf("initial parse failed: %v", err)
	}
	if mc.PeriodID != "p1" {
		t.Fatalf("initial PeriodID = %q, want p1 (fallback picks the newest Period)", mc.PeriodID)
	}

	// Republish the identical manifest; a refresh re-runs Parse with
	// currentTimepoint = mc.PeriodStart (10 s) plus the start time of v1's
	// current segment, i.e. at least 10, so selectPeriod's primary match
	// picks p1 (the latest Period starting at or before it). It must not
	// regress to p0 just because p0 sorts first in document order.
	client.set("http://host/manifest.mpd", []byte(multiPeriodV1))
	if err := Refresh(context.Background(), mc, mc.Videos[0]); err != nil {
		t.Fatalf("unexpected refresh error: %v", err)
	}
	if mc.PeriodID != "p1" {
		t.Errorf("PeriodID after refresh = %q, want p1 (must not regress to p0)", mc.PeriodID)
	}
}

func TestSpliceRepresentation_PeriodTransition(t *testing.T) {
	mc := &Context{PeriodStart: 0}
	newMC := &Context{PeriodStart: 10 * time.Second, PeriodDuration: 5 * time.Second}

	old := &Representation{
		ID: "v1", FirstSeqNo: 1, LastSeqNo: 5, CurSeqNo: 5,
		Scheme: SchemeTimeline, PeriodStart: 0,
		Init: InitSection{Loaded: true, Data: []byte("stale")},
	}
	newRep := &Representation{
		ID: "v1", FirstSeqNo: 100, LastSeqNo: 150, Scheme: SchemeTimeline,
		URLTemplate: "seg-$Number$.m4s", FragmentTimescale: 1000,
		Timeline: []TimelineEntry{{StartTime: 0, Repeat: -1, Duration: 1000}},
	}

	spliceRepresentation(mc, newMC, old, newRep)

	if old.FirstSeqNo != 100 || old.CurSeqNo != 100 {
		t.Errorf("expected a wholesale reset to the new Period's FirstSeqNo, got FirstSeqNo=%d CurSeqNo=%d", old.FirstSeqNo, old.CurSeqNo)
	}
	if old.PeriodStart != newMC.PeriodStart {
		t.Errorf("PeriodStart not transferred")
	}
	if old.Init.Loaded {
		t.Error("expected init section to be marked not-loaded across a Period transition")
	}
}

func TestSpliceRepresentation_TimelineContinuation(t *testing.T) {
	mc := &Context{UseTimelineSegmentOffsetCorrection: true}
	newMC := &Context{PeriodStart: 0, UseTimelineSegmentOffsetCorrection: true}

	old := &Representation{
		ID: "v1", FirstSeqNo: 1, LastSeqNo: 5, CurSeqNo: 3,
		Scheme: SchemeTimeline, PeriodStart: 0,
		Timeline: []TimelineEntry{{StartTime: 0, Repeat: -1, Duration: 1000}},
	}
	newRep := &Representation{
		ID: "v1", FirstSeqNo: 1, LastSeqNo: 20, Scheme: SchemeTimeline,
		Timeline: []TimelineEntry{{StartTime: 0, Repeat: -1, Duration: 1000}},
	}

	spliceRepresentation(mc, newMC, old, newRep)

	// old.CurSeqNo (3) starts at t=2000; N(new, 1999) should land back on
	// segment 3 since the new timeline has the same shape.
	if old.CurSeqNo != 3 {
		t.Errorf("CurSeqNo after continuation splice = %d, want 3", old.CurSeqNo)
	}
	if old.LastSeqNo != 20 {
		t.Errorf("LastSeqNo not updated from new manifest: got %d", old.LastSeqNo)
	}
}

func TestCurrentTimepoint_Timeline(t *testing.T) {
	mc := &Context{PeriodStart: 0, UseTimelineSegmentOffsetCorrection: true}
	rep := &Representation{
		FirstSeqNo: 1, CurSeqNo: 3, FragmentTimescale: 1000,
		Scheme:   SchemeTimeline,
		Timeline: []TimelineEntry{{StartTime: 0, Repeat: -1, Duration: 1000}},
	}
	// Segment 3's start time is 2000 (timescale units) -> 2 seconds.
	if got := currentTimepoint(mc, rep); got != 2 {
		t.Errorf("currentTimepoint = %d, want 2", got)
	}
}

func TestCurrentTimepoint_SingleFile(t *testing.T) {
	mc := &Context{}
	rep := &Representation{Scheme: SchemeSingleFile}
	if got := currentTimepoint(mc, rep); got != 0 {
		t.Errorf("currentTimepoint = %d, want 0", got)
	}
}
