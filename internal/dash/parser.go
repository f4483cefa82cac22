package dash

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/go-dash/dashdemux/internal/fetch"
)

const (
	maxManifestSize    = 50 * 1024   // §4.1: refuse manifests over 50 KiB buffered length
	maxInitSectionSize = 1024 * 1024 // §4.4: init section capped at 1 MiB
)

var errSkipRepresentation = errors.New("dash: representation has unrecognized media type")

// Parse fetches the MPD at mpdURL through client, parses it as an XML DOM,
// selects the Period whose start is <= currentTimepoint (seconds since
// availability start) and closest to it, and materializes every admitted
// Representation's segment-addressing scheme.
//
// prevPeriodStart is the start of the Period selected by the caller's prior
// Parse/Refresh call (0 for the first parse of a manifest). It floors the
// fallback Period selection used when no Period has started yet relative to
// currentTimepoint, so a refresh never regresses into a Period earlier than
// one already seen.
func Parse(ctx context.Context, client fetch.Client, mpdURL string, currentTimepoint uint32, prevPeriodStart time.Duration) (*Context, error) {
	data, err := fetchManifest(ctx, client, mpdURL)
	if err != nil {
		return nil, &ManifestError{URL: mpdURL, Err: err}
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, &ManifestError{URL: mpdURL, Err: fmt.Errorf("%w: %v", ErrInvalidManifest, err)}
	}

	root := doc.Root()
	if root == nil || root.Tag != "MPD" {
		return nil, &ManifestError{URL: mpdURL, Err: fmt.Errorf("%w: missing MPD root element", ErrInvalidManifest)}
	}

	mc := &Context{
		MPDURL:                             mpdURL,
		Client:                             client,
		MaxURLSize:                         len(mpdURL),
		UseTimelineSegmentOffsetCorrection: true,
		FetchCompletedSegmentsOnly:         true,
	}

	mc.IsLive = root.SelectAttrValue("type", "static") == "dynamic"

	if t, ok := ParseISOInstant(root.SelectAttrValue("availabilityStartTime", "")); ok {
		mc.AvailabilityStartTime = t
	}
	if t, ok := ParseISOInstant(root.SelectAttrValue("availabilityEndTime", "")); ok {
		mc.AvailabilityEndTime = t
	}
	if t, ok := ParseISOInstant(root.SelectAttrValue("publishTime", "")); ok {
		mc.PublishTime = t
	}
	if d, ok := parseOptionalDuration(root, "minimumUpdatePeriod"); ok {
		mc.MinimumUpdatePeriod = d
	}
	if d, ok := parseOptionalDuration(root, "suggestedPresentationDelay"); ok {
		mc.SuggestedPresentationDelay = d
	}
	if d, ok := parseOptionalDuration(root, "timeShiftBufferDepth"); ok {
		mc.TimeShiftBufferDepth = d
	}
	if d, ok := parseOptionalDuration(root, "minBufferTime"); ok {
		mc.MinBufferTime = d
	}
	if d, ok := parseOptionalDuration(root, "mediaPresentationDuration"); ok {
		mc.MPDDuration = d
	}

	if pi := root.SelectElement("ProgramInformation"); pi != nil {
		mc.Info = parseProgramInformation(pi)
	}

	mpdBaseURL := root.SelectElement("BaseURL")

	periods := root.FindElements("Period")
	if len(periods) == 0 {
		return nil, &ManifestError{URL: mpdURL, Err: fmt.Errorf("%w: no Period elements", ErrInvalidManifest)}
	}

	period, err := selectPeriod(periods, currentTimepoint, prevPeriodStart)
	if err != nil {
		return nil, &ManifestError{URL: mpdURL, Err: err}
	}

	periodStart, _ := parseOptionalDuration(period, "start")
	periodDuration, hasPeriodDuration := parseOptionalDuration(period, "duration")
	mc.PeriodID = period.SelectAttrValue("id", "")
	mc.PeriodStart = periodStart
	mc.PeriodDuration = periodDuration

	if periodStart > 0 && hasPeriodDuration {
		mc.MPDDuration = periodDuration
	}

	periodBaseURL := period.SelectElement("BaseURL")

	for _, as := range period.FindElements("AdaptationSet") {
		asBaseURL := as.SelectElement("BaseURL")
		asContentType := firstNonEmpty(as.SelectAttrValue("contentType", ""), mimeTypeToContentType(as.SelectAttrValue("mimeType", "")))
		lastSegNoOverride := findLastSegmentNumberOverride(as)

		for _, repEl := range as.FindElements("Representation") {
			rep, err := admitRepresentation(mc, mpdBaseURL, periodBaseURL, asBaseURL, as, period, repEl, asContentType)
			if err != nil {
				if errors.Is(err, errSkipRepresentation) {
					continue
				}
				return nil, err
			}

			if lastSegNoOverride > 0 {
				rep.LastSeqNo = lastSegNoOverride - 1
			}

			switch rep.MediaType {
			case MediaTypeVideo:
				mc.Videos = append(mc.Videos, rep)
			case MediaTypeAudio:
				mc.Audios = append(mc.Audios, rep)
			case MediaTypeSubtitle:
				mc.Subtitles = append(mc.Subtitles, rep)
			}
		}
	}

	if len(mc.Videos)+len(mc.Audios)+len(mc.Subtitles) == 0 {
		return nil, &ManifestError{URL: mpdURL, Period: mc.PeriodID, Err: fmt.Errorf("%w: no usable Representation", ErrInvalidManifest)}
	}

	return mc, nil
}

func fetchManifest(ctx context.Context, client fetch.Client, mpdURL string) ([]byte, error) {
	if err := fetch.ValidateScheme(mpdURL); err != nil {
		return nil, err
	}

	rc, err := client.Open(ctx, mpdURL, 0, -1)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportFailed, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxManifestSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportFailed, err)
	}
	if len(data) > maxManifestSize {
		return nil, fmt.Errorf("%w: manifest exceeds %d bytes", ErrOutOfMemory, maxManifestSize)
	}
	return data, nil
}

// selectPeriod picks the Period whose start is <= currentTimepoint and
// closest to it. Failing that - no Period has started yet relative to
// currentTimepoint - it falls back to the newest Period whose start is
// still >= prevPeriodStart, so the fallback never regresses into a Period
// earlier than one already seen.
func selectPeriod(periods []*etree.Element, currentTimepoint uint32, prevPeriodStart time.Duration) (*etree.Element, error) {
	var best *etree.Element
	var bestStart time.Duration = -1

	for _, p := range periods {
		start, _ := parseOptionalDuration(p, "start")
		if start.Seconds() <= float64(currentTimepoint) && start > bestStart {
			best = p
			bestStart = start
		}
	}
	if best != nil {
		return best, nil
	}

	best = nil
	bestStart = -1
	for _, p := range periods {
		start, _ := parseOptionalDuration(p, "start")
		if start < prevPeriodStart {
			continue
		}
		if best == nil || start > bestStart {
			best = p
			bestStart = start
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no suitable Period", ErrInvalidManifest)
	}
	return best, nil
}

func parseProgramInformation(pi *etree.Element) ProgramInformation {
	info := ProgramInformation{}
	if t := pi.SelectElement("Title"); t != nil {
		info.Title = t.Text()
	}
	if s := pi.SelectElement("Source"); s != nil {
		info.Source = s.Text()
	}
	if c := pi.SelectElement("Copyright"); c != nil {
		info.Copyright = c.Text()
	}
	return info
}

func admitRepresentation(mc *Context, mpdBaseURL, periodBaseURL, asBaseURL, as, period, repEl *etree.Element, asContentType string) (*Representation, error) {
	contentType := firstNonEmpty(
		repEl.SelectAttrValue("contentType", ""),
		mimeTypeToContentType(repEl.SelectAttrValue("mimeType", "")),
		contentComponentType(as),
		asContentType,
	)
	mediaType, ok := parseMediaType(contentType)
	if !ok {
		return nil, errSkipRepresentation
	}

	repBaseURL := repEl.SelectElement("BaseURL")
	chain := [4]*string{
		elementText(repBaseURL),
		elementText(asBaseURL),
		elementText(periodBaseURL),
		elementText(mpdBaseURL),
	}
	base, err := resolveBaseURL(chain, mc.MPDURL)
	if err != nil {
		return nil, err
	}

	rep := &Representation{
		ID:        repEl.SelectAttrValue("id", ""),
		MediaType: mediaType,
		MimeType: firstNonEmpty(
			repEl.SelectAttrValue("mimeType", ""),
			as.SelectAttrValue("mimeType", ""),
		),
		BaseURL:        base,
		Codecs:         firstNonEmpty(repEl.SelectAttrValue("codecs", ""), as.SelectAttrValue("codecs", "")),
		Language:       firstNonEmpty(repEl.SelectAttrValue("lang", ""), as.SelectAttrValue("lang", "")),
		ScanType:       firstNonEmpty(repEl.SelectAttrValue("scanType", ""), as.SelectAttrValue("scanType", "")),
		PeriodStart:    mc.PeriodStart,
		PeriodDuration: mc.PeriodDuration,
		MPDDuration:    mc.MPDDuration,
	}

	if v := repEl.SelectAttrValue("bandwidth", ""); v != "" {
		rep.Bandwidth, _ = strconv.ParseUint(v, 10, 64)
	}
	if v := firstNonEmpty(repEl.SelectAttrValue("width", ""), as.SelectAttrValue("width", "")); v != "" {
		rep.Width, _ = strconv.Atoi(v)
	}
	if v := firstNonEmpty(repEl.SelectAttrValue("height", ""), as.SelectAttrValue("height", "")); v != "" {
		rep.Height, _ = strconv.Atoi(v)
	}
	if v := firstNonEmpty(repEl.SelectAttrValue("frameRate", ""), as.SelectAttrValue("frameRate", "")); v != "" {
		rep.FrameRate = parseFrameRate(v)
	}
	if v := repEl.SelectAttrValue("audioSamplingRate", ""); v != "" {
		rep.AudioRate, _ = strconv.Atoi(v)
	}

	if err := resolveAddressing(mc, rep, repEl, as, period); err != nil {
		return nil, err
	}

	return rep, nil
}

// resolveAddressing implements the branch table in §4.1: Template+Timeline,
// Template+Duration, Explicit list, Single file, in that priority order.
func resolveAddressing(mc *Context, rep *Representation, repEl, as, period *etree.Element) error {
	levels := []*etree.Element{repEl, as, period}

	var timelineEl *etree.Element
	for _, lvl := range levels {
		st := lvl.SelectElement("SegmentTemplate")
		if st == nil {
			continue
		}
		if tl := st.SelectElement("SegmentTimeline"); tl != nil {
			timelineEl = tl
			break
		}
	}

	initVal, _ := findSegmentTemplateAttr(levels, "initialization")
	mediaVal, hasMedia := findSegmentTemplateAttr(levels, "media")
	durVal, hasDur := findSegmentTemplateAttr(levels, "duration")
	tsVal, hasTS := findSegmentTemplateAttr(levels, "timescale")
	ptoVal, _ := findSegmentTemplateAttr(levels, "presentationTimeOffset")
	startNumVal, hasStartNum := findSegmentTemplateAttr(levels, "startNumber")

	var startNumber uint64
	if hasStartNum {
		startNumber, _ = strconv.ParseUint(startNumVal, 10, 64)
	}

	var timescale uint64 = 1
	if hasTS {
		timescale, _ = strconv.ParseUint(tsVal, 10, 64)
	}

	var pto uint64
	if ptoVal != "" {
		pto, _ = strconv.ParseUint(ptoVal, 10, 64)
	}

	switch {
	case timelineEl != nil && hasMedia:
		rep.Scheme = SchemeTimeline
		rep.URLTemplate = mediaVal
		rep.FragmentTimescale = timescale
		rep.StartNumber = startNumber
		rep.PresentationTimeOffset = pto
		rep.FirstSeqNo = startNumber
		rep.Timeline = parseSegmentTimeline(timelineEl)
		if err := resolveInitSection(mc, rep, initVal); err != nil {
			return err
		}
		mc.BumpMaxURLSize(len(rep.URLTemplate) + 32)
		finalizeSchedule(mc, rep)
		return nil

	case hasMedia && hasDur:
		rep.Scheme = SchemeTemplateDuration
		rep.URLTemplate = mediaVal
		fragDur, _ := strconv.ParseUint(durVal, 10, 64)
		rep.FragmentDuration = fragDur
		rep.FragmentTimescale = timescale
		rep.StartNumber = startNumber
		rep.PresentationTimeOffset = pto
		rep.FirstSeqNo = startNumber
		if err := resolveInitSection(mc, rep, initVal); err != nil {
			return err
		}
		mc.BumpMaxURLSize(len(rep.URLTemplate) + 32)
		finalizeSchedule(mc, rep)
		return nil

	default:
		if sl := firstSegmentListLevel(levels); sl != nil {
			if err := resolveExplicitList(mc, rep, sl); err != nil {
				return err
			}
			finalizeSchedule(mc, rep)
			return nil
		}

		rep.Scheme = SchemeSingleFile
		rep.Fragments = []Fragment{{URL: rep.BaseURL, Offset: 0, Length: -1}}
		rep.FirstSeqNo = 0
		rep.LastSeqNo = 0
		finalizeSchedule(mc, rep)
		return nil
	}
}

// finalizeSchedule computes LastSeqNo (where not already fixed by the
// addressing scheme) and CurSeqNo via the scheduler, then clamps to the
// VOD invariant first <= cur <= last.
func finalizeSchedule(mc *Context, rep *Representation) {
	now := time.Now()

	switch rep.Scheme {
	case SchemeTimeline:
		rep.LastSeqNo = timelineMaxSegmentNumber(rep)
	case SchemeTemplateDuration:
		rep.LastSeqNo = MaxSegmentNumber(mc, rep, now)
	}

	rep.CurSeqNo = CurrentSegmentNumber(mc, rep, now)

	if !mc.IsLive {
		if rep.CurSeqNo < rep.FirstSeqNo {
			rep.CurSeqNo = rep.FirstSeqNo
		}
		if rep.CurSeqNo > rep.LastSeqNo {
			rep.CurSeqNo = rep.LastSeqNo
		}
	}
}

func resolveInitSection(mc *Context, rep *Representation, initVal string) error {
	if initVal == "" {
		return nil
	}
	expanded := ExpandTemplate(initVal, rep, 0, 0)
	initURL, err := resolveReference(rep.BaseURL, expanded)
	if err != nil {
		return &ManifestError{URL: mc.MPDURL, Period: mc.PeriodID, Err: ErrInvalidManifest}
	}
	rep.Init.Fragment = Fragment{URL: initURL, Offset: 0, Length: -1}
	mc.BumpMaxURLSize(len(initURL))
	return nil
}

func resolveExplicitList(mc *Context, rep *Representation, sl *etree.Element) error {
	rep.Scheme = SchemeExplicitList

	if initEl := sl.SelectElement("Initialization"); initEl != nil {
		if src := initEl.SelectAttrValue("sourceURL", ""); src != "" {
			initURL, err := resolveReference(rep.BaseURL, src)
			if err != nil {
				return &ManifestError{URL: mc.MPDURL, Period: mc.PeriodID, Err: ErrInvalidManifest}
			}
			rep.Init.Fragment = Fragment{URL: initURL, Offset: 0, Length: -1}
			mc.BumpMaxURLSize(len(initURL))
		}
	}

	var fragments []Fragment
	for _, su := range sl.SelectElements("SegmentURL") {
		media := su.SelectAttrValue("media", "")
		if media == "" {
			continue
		}
		mediaURL, err := resolveReference(rep.BaseURL, media)
		if err != nil {
			return &ManifestError{URL: mc.MPDURL, Period: mc.PeriodID, Err: ErrInvalidManifest}
		}

		frag := Fragment{URL: mediaURL, Offset: 0, Length: -1}
		if rng := su.SelectAttrValue("mediaRange", ""); rng != "" {
			if off, length, ok := parseByteRange(rng); ok {
				frag.Offset, frag.Length = off, length
			}
		}
		fragments = append(fragments, frag)
		mc.BumpMaxURLSize(len(mediaURL))
	}

	if len(fragments) == 0 {
		return &ManifestError{URL: mc.MPDURL, Period: mc.PeriodID, Err: fmt.Errorf("%w: empty SegmentList", ErrInvalidManifest)}
	}

	rep.Fragments = fragments
	if tl := sl.SelectElement("SegmentTimeline"); tl != nil {
		rep.Timeline = parseSegmentTimeline(tl)
	}
	rep.FirstSeqNo = 0
	rep.LastSeqNo = uint64(len(fragments)) - 1
	return nil
}

func parseSegmentTimeline(tl *etree.Element) []TimelineEntry {
	var entries []TimelineEntry
	for _, s := range tl.SelectElements("S") {
		e := TimelineEntry{StartTime: -1}
		if v := s.SelectAttrValue("t", ""); v != "" {
			if t, err := strconv.ParseInt(v, 10, 64); err == nil {
				e.StartTime = t
			}
		}
		if v := s.SelectAttrValue("r", ""); v != "" {
			if r, err := strconv.ParseInt(v, 10, 64); err == nil {
				e.Repeat = r
			}
		}
		if v := s.SelectAttrValue("d", ""); v != "" {
			if d, err := strconv.ParseUint(v, 10, 64); err == nil {
				e.Duration = d
			}
		}
		entries = append(entries, e)
	}
	return entries
}

func findSegmentTemplateAttr(levels []*etree.Element, attr string) (string, bool) {
	for _, lvl := range levels {
		st := lvl.SelectElement("SegmentTemplate")
		if st == nil {
			continue
		}
		if v := st.SelectAttrValue(attr, ""); v != "" {
			return v, true
		}
	}
	return "", false
}

func firstSegmentListLevel(levels []*etree.Element) *etree.Element {
	for _, lvl := range levels {
		if sl := lvl.SelectElement("SegmentList"); sl != nil && len(sl.SelectElements("SegmentURL")) > 0 {
			return sl
		}
	}
	return nil
}

func findLastSegmentNumberOverride(as *etree.Element) uint64 {
	for _, sp := range as.SelectElements("SupplementalProperty") {
		uri := sp.SelectAttrValue("schemeIdUri", "")
		if !strings.Contains(uri, "last-segment-number") {
			continue
		}
		if v := sp.SelectAttrValue("value", ""); v != "" {
			if n, err := strconv.ParseUint(v, 10, 64); err == nil {
				return n
			}
		}
	}
	return 0
}

func parseByteRange(s string) (offset, length int64, ok bool) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	start, err1 := strconv.ParseInt(parts[0], 10, 64)
	end, err2 := strconv.ParseInt(parts[1], 10, 64)
	if err1 != nil || err2 != nil || end < start {
		return 0, 0, false
	}
	return start, end - start + 1, true
}

func parseOptionalDuration(el *etree.Element, attr string) (time.Duration, bool) {
	v := el.SelectAttrValue(attr, "")
	if v == "" {
		return 0, false
	}
	d, ok := ParseISODuration(v)
	if !ok {
		slog.Warn("dash: malformed duration attribute, using 0", "attr", attr, "value", v)
	}
	return d, ok
}

func parseFrameRate(s string) float64 {
	if idx := strings.IndexByte(s, '/'); idx >= 0 {
		num, err1 := strconv.ParseFloat(s[:idx], 64)
		den, err2 := strconv.ParseFloat(s[idx+1:], 64)
		if err1 == nil && err2 == nil && den != 0 {
			return num / den
		}
		return 0
	}
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func mimeTypeToContentType(mime string) string {
	if idx := strings.IndexByte(mime, '/'); idx >= 0 {
		return mime[:idx]
	}
	return ""
}

func contentComponentType(as *etree.Element) string {
	if cc := as.SelectElement("ContentComponent"); cc != nil {
		return cc.SelectAttrValue("contentType", "")
	}
	return ""
}

func parseMediaType(ct string) (MediaType, bool) {
	switch strings.ToLower(ct) {
	case "video":
		return MediaTypeVideo, true
	case "audio":
		return MediaTypeAudio, true
	case "text", "application", "subtitle", "subtitles":
		return MediaTypeSubtitle, true
	default:
		return 0, false
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func elementText(el *etree.Element) *string {
	if el == nil {
		return nil
	}
	text := el.Text()
	return &text
}
