package dash

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/beevik/etree"
)

const vodTimelineMPD = `<?xml version="1.0"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static" mediaPresentationDuration="PT4S">
  <Period id="p0" start="PT0S">
    <AdaptationSet mimeType="video/mp4" codecs="avc1.64001f">
      <SegmentTemplate initialization="init-$RepresentationID$.mp4" media="seg-$RepresentationID$-$Number$.m4s" startNumber="1" timescale="1000">
        <SegmentTimeline>
          <S t="0" d="1000" r="1"/>
          <S d="2000"/>
        </SegmentTimeline>
      </SegmentTemplate>
      <Representation id="v1" bandwidth="500000" width="1280" height="720"/>
    </AdaptationSet>
    <AdaptationSet mimeType="audio/mp4" codecs="mp4a.40.2">
      <SegmentTemplate initialization="init-$RepresentationID$.mp4" media="seg-$RepresentationID$-$Number$.m4s" startNumber="1" timescale="48000" duration="96000"/>
      <Representation id="a1" bandwidth="128000" audioSamplingRate="48000"/>
    </AdaptationSet>
  </Period>
</MPD>`

const vodExplicitListMPD = `<?xml version="1.0"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static">
  <Period id="p0">
    <AdaptationSet mimeType="video/mp2t" codecs="avc1.64001f">
      <Representation id="v1" bandwidth="800000">
        <BaseURL>video/</BaseURL>
        <SegmentList>
          <SegmentURL media="chunk1.ts"/>
          <SegmentURL media="chunk2.ts"/>
          <SegmentURL media="chunk3.ts"/>
        </SegmentList>
      </Representation>
    </AdaptationSet>
  </Period>
</MPD>`

const singleFileMPD = `<?xml version="1.0"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static">
  <Period id="p0">
    <AdaptationSet mimeType="video/mp4" codecs="avc1.64001f">
      <Representation id="v1" bandwidth="800000">
        <BaseURL>whole.mp4</BaseURL>
      </Representation>
    </AdaptationSet>
  </Period>
</MPD>`

func TestParse_TimelineAndDurationSchemes(t *testing.T) {
	client := newMemClient()
	client.set("http://host/path/manifest.mpd", []byte(vodTimelineMPD))

	mc, err := Parse(context.Background(), client, "http://host/path/manifest.mpd", 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(mc.Videos) != 1 || len(mc.Audios) != 1 {
		t.Fatalf("got %d videos, %d audios; want 1 each", len(mc.Videos), len(mc.Audios))
	}

	v := mc.Videos[0]
	if v.Scheme != SchemeTimeline {
		t.Errorf("video scheme = %v, want SchemeTimeline", v.Scheme)
	}
	if v.ID != "v1" || v.MimeType != "video/mp4" {
		t.Errorf("video id/mimeType = %q/%q", v.ID, v.MimeType)
	}
	if v.Width != 1280 || v.Height != 720 {
		t.Errorf("video geometry = %dx%d, want 1280x720", v.Width, v.Height)
	}
	// 2 segments of 1000 (r=1 -> 2 reps) + 1 of 2000 = 3 segments numbered from startNumber 1, so LastSeqNo = 1+3-1 = 3
	if v.LastSeqNo != 3 {
		t.Errorf("video LastSeqNo = %d, want 3", v.LastSeqNo)
	}
	if v.Init.Fragment.URL != "http://host/path/init-v1.mp4" {
		t.Errorf("video init URL = %q", v.Init.Fragment.URL)
	}

	a := mc.Audios[0]
	if a.Scheme != SchemeTemplateDuration {
		t.Errorf("audio scheme = %v, want SchemeTemplateDuration", a.Scheme)
	}
	if a.AudioRate != 48000 {
		t.Errorf("audio rate = %d, want 48000", a.AudioRate)
	}
}

func TestParse_ExplicitSegmentList(t *testing.T) {
	client := newMemClient()
	client.set("http://host/path/manifest.mpd", []byte(vodExplicitListMPD))

	mc, err := Parse(context.Background(), client, "http://host/path/manifest.mpd", 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v := mc.Videos[0]
	if v.Scheme != SchemeExplicitList {
		t.Fatalf("scheme = %v, want SchemeExplicitList", v.Scheme)
	}
	if len(v.Fragments) != 3 {
		t.Fatalf("got %d fragments, want 3", len(v.Fragments))
	}
	if v.Fragments[0].URL != "http://host/path/video/chunk1.ts" {
		t.Errorf("fragment 0 URL = %q", v.Fragments[0].URL)
	}
	if v.LastSeqNo != 2 {
		t.Errorf("LastSeqNo = %d, want 2", v.LastSeqNo)
	}
	if v.MimeType != "video/mp2t" {
		t.Errorf("mimeType = %q, want video/mp2t", v.MimeType)
	}
}

func TestParse_SingleFileFallback(t *testing.T) {
	client := newMemClient()
	client.set("http://host/path/manifest.mpd", []byte(singleFileMPD))

	mc, err := Parse(context.Background(), client, "http://host/path/manifest.mpd", 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v := mc.Videos[0]
	if v.Scheme != SchemeSingleFile {
		t.Fatalf("scheme = %v, want SchemeSingleFile", v.Scheme)
	}
	if len(v.Fragments) != 1 || v.Fragments[0].URL != "http://host/path/whole.mp4" {
		t.Fatalf("unexpected single-file fragment: %+v", v.Fragments)
	}
}

func TestParse_NoUsableRepresentationErrors(t *testing.T) {
	const empty = `<?xml version="1.0"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static">
  <Period id="p0">
    <AdaptationSet mimeType="application/ttml+xml" contentType="unknown-type">
      <Representation id="bad"/>
    </AdaptationSet>
  </Period>
</MPD>`

	client := newMemClient()
	client.set("http://host/manifest.mpd", []byte(empty))

	_, err := Parse(context.Background(), client, "http://host/manifest.mpd", 0, 0)
	if err == nil {
		t.Fatal("expected an error for a manifest with no usable Representation")
	}
}

func TestParse_MissingMPDRoot(t *testing.T) {
	client := newMemClient()
	client.set("http://host/manifest.mpd", []byte(`<NotMPD/>`))

	_, err := Parse(context.Background(), client, "http://host/manifest.mpd", 0, 0)
	if err == nil {
		t.Fatal("expected an error for a document missing the MPD root element")
	}
}

func TestParse_OversizedManifestRejected(t *testing.T) {
	big := make([]byte, maxManifestSize+1)
	for i := range big {
		big[i] = ' '
	}

	client := newMemClient()
	client.set("http://host/manifest.mpd", big)

	_, err := Parse(context.Background(), client, "http://host/manifest.mpd", 0, 0)
	if err == nil {
		t.Fatal("expected an error for an oversized manifest")
	}
}

func TestFindLastSegmentNumberOverride(t *testing.T) {
	const mpd = `<?xml version="1.0"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static">
  <Period id="p0">
    <AdaptationSet mimeType="video/mp4" codecs="avc1.64001f">
      <SupplementalProperty schemeIdUri="urn:something:last-segment-number" value="11"/>
      <SegmentTemplate initialization="init.mp4" media="seg-$Number$.m4s" startNumber="1" timescale="1000">
        <SegmentTimeline>
          <S t="0" d="1000" r="99"/>
        </SegmentTimeline>
      </SegmentTemplate>
      <Representation id="v1" bandwidth="500000"/>
    </AdaptationSet>
  </Period>
</MPD>`

	client := newMemClient()
	client.set("http://host/manifest.mpd", []byte(mpd))

	mc, err := Parse(context.Background(), client, "http://host/manifest.mpd", 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Override caps LastSeqNo at value-1, well below the 100-segment
	// timeline's natural max.
	if mc.Videos[0].LastSeqNo != 10 {
		t.Errorf("LastSeqNo = %d, want 10 (override value 11 minus 1)", mc.Videos[0].LastSeqNo)
	}
}

func TestSelectPeriod_PrimaryMatchPicksClosestBelow(t *testing.T) {
	mpd := buildMultiPeriodMPD("PT0S", "PT10S", "PT20S")
	root := parseMPDRoot(t, mpd)
	periods := root.FindElements("Period")

	p, err := selectPeriod(periods, 15, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := p.SelectAttrValue("id", ""); got != "p1" {
		t.Errorf("selected Period id = %q, want p1 (start=10, closest below 15)", got)
	}
}

func TestSelectPeriod_FallbackNeverRegressesBelowPrevPeriodStart(t *testing.T) {
	// All Periods start after currentTimepoint=0, so no primary match
	// exists and the fallback applies: p0=5, p1=10, p2=20.
	mpd := buildMultiPeriodMPD("PT5S", "PT10S", "PT20S")
	root := parseMPDRoot(t, mpd)
	periods := root.FindElements("Period")

	// A previously-seen period_start of 10 must exclude p0 (start=5) from
	// consideration even though it is nominally the earliest Period in the
	// document.
	p, err := selectPeriod(periods, 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := p.SelectAttrValue("id", ""); got != "p2" {
		t.Errorf("selected Period id = %q, want p2 (newest Period with start >= 10)", got)
	}
}

func TestSelectPeriod_FallbackErrorsWhenNoPeriodSatisfiesFloor(t *testing.T) {
	// p0=10, p1=20: no Period starts at or before currentTimepoint=0, so
	// the fallback applies; a prevPeriodStart of 100 excludes both.
	mpd := buildMultiPeriodMPD("PT10S", "PT20S")
	root := parseMPDRoot(t, mpd)
	periods := root.FindElements("Period")

	if _, err := selectPeriod(periods, 0, 100); err == nil {
		t.Fatal("expected an error when no Period start is >= prevPeriodStart")
	}
}

func TestParse_RefreshCarriesPeriodStartIntoNextParseCall(t *testing.T) {
	client := newMemClient()
	client.set("http://host/manifest.mpd", []byte(buildMultiPeriodMPD("PT5S", "PT10S", "PT20S")))

	// First parse has no prior Period (prevPeriodStart=0) and
	// currentTimepoint=0, which is below every Period's start, so it
	// exercises the fallback and lands on the newest Period with
	// start >= 0: p2 (start=20).
	mc, err := Parse(context.Background(), client, "http://host/manifest.mpd", 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mc.PeriodID != "p2" {
		t.Fatalf("initial PeriodID = %q, want p2", mc.PeriodID)
	}

	// A later Parse call threading mc.PeriodStart (20) as prevPeriodStart
	// must not regress to p0 or p1 even though currentTimepoint=0 again
	// falls below every Period's start.
	mc2, err := Parse(context.Background(), client, "http://host/manifest.mpd", 0, mc.PeriodStart)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mc2.PeriodID != "p2" {
		t.Fatalf("PeriodID = %q, want p2 (prevPeriodStart=20 excludes p0/p1)", mc2.PeriodID)
	}
}

func buildMultiPeriodMPD(starts ...string) string {
	var periods strings.Builder
	for i, s := range starts {
		periods.WriteString(`<Period id="p` + strconv.Itoa(i) + `" start="` + s + `">
    <AdaptationSet mimeType="video/mp4" codecs="avc1.64001f">
      <Representation id="v1" bandwidth="500000">
        <BaseURL>whole.mp4</BaseURL>
      </Representation>
    </AdaptationSet>
  </Period>
`)
	}
	return `<?xml version="1.0"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static">
  ` + periods.String() + `
</MPD>`
}

func parseMPDRoot(t *testing.T, mpd string) *etree.Element {
	t.Helper()
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes([]byte(mpd)); err != nil {
		t.Fatalf("reading fixture MPD: %v", err)
	}
	root := doc.Root()
	if root == nil {
		t.Fatal("fixture MPD has no root element")
	}
	return root
}

func TestParseByteRange(t *testing.T) {
	off, length, ok := parseByteRange("100-199")
	if !ok || off != 100 || length != 100 {
		t.Errorf("got off=%d length=%d ok=%v, want 100,100,true", off, length, ok)
	}
	if _, _, ok := parseByteRange("not-a-range"); ok {
		t.Error("expected malformed byte range to fail")
	}
	if _, _, ok := parseByteRange("200-100"); ok {
		t.Error("expected end < start to fail")
	}
}

func TestParseFrameRate(t *testing.T) {
	if got := parseFrameRate("30"); got != 30 {
		t.Errorf("got %v, want 30", got)
	}
	if got := parseFrameRate("30000/1001"); got < 29.97 || got > 29.98 {
		t.Errorf("got %v, want ~29.97", got)
	}
	if got := parseFrameRate("not-a-number"); got != 0 {
		t.Errorf("got %v, want 0 for malformed input", got)
	}
}
