package dash

import "time"

// SegmentStartTime computes T(R, n): the start time of segment n in
// rep.Timeline's timescale units, by walking the timeline accumulating
// each entry's (repeat+1)*duration. A non-negative StartTime on an entry
// overrides the running accumulator (a declared discontinuity). A
// repeat == -1 entry extends to fill the Period; its contribution is
// computed analytically from the offset into it rather than by walking
// segment-by-segment.
//
// When the offset-correction toggle is enabled and n >= rep.FirstSeqNo,
// n is first rebased to be relative to FirstSeqNo.
func SegmentStartTime(ctx *Context, rep *Representation, n uint64) int64 {
	if ctx.UseTimelineSegmentOffsetCorrection && n >= rep.FirstSeqNo {
		n -= rep.FirstSeqNo
	}

	var accumulated int64
	var segIndex uint64

	for _, e := range rep.Timeline {
		if e.StartTime >= 0 {
			accumulated = e.StartTime
		}

		if e.Repeat == -1 {
			offset := n - segIndex
			return accumulated + int64(offset)*int64(e.Duration)
		}

		count := uint64(e.Repeat) + 1
		if n < segIndex+count {
			offset := n - segIndex
			return accumulated + int64(offset)*int64(e.Duration)
		}

		accumulated += int64(count) * int64(e.Duration)
		segIndex += count
	}

	return accumulated
}

// NextSegmentAt computes N(R, t): the number of the first segment whose
// timeline start time exceeds t, or −1 if the timeline never reaches it.
// When the offset-correction toggle is on, FirstSeqNo is added to the
// result.
func NextSegmentAt(ctx *Context, rep *Representation, t int64) int64 {
	var accumulated int64
	var segIndex int64

	for _, e := range rep.Timeline {
		if e.StartTime >= 0 {
			accumulated = e.StartTime
		}

		if e.Repeat == -1 {
			if e.Duration == 0 {
				return -1
			}
			delta := t - accumulated
			k := floorDiv(delta, int64(e.Duration)) + 1
			if k < 0 {
				k = 0
			}
			return applyOffsetCorrection(ctx, rep, segIndex+k)
		}

		count := int64(e.Repeat) + 1
		for i := int64(0); i < count; i++ {
			segStart := accumulated + i*int64(e.Duration)
			if segStart > t {
				return applyOffsetCorrection(ctx, rep, segIndex+i)
			}
		}

		accumulated += count * int64(e.Duration)
		segIndex += count
	}

	return -1
}

func applyOffsetCorrection(ctx *Context, rep *Representation, n int64) int64 {
	if ctx.UseTimelineSegmentOffsetCorrection {
		return n + int64(rep.FirstSeqNo)
	}
	return n
}

// liveEdgeLeadSeconds is the fixed 60-second lead the timeline branch of
// CurrentSegmentNumber holds behind the presumed live edge.
const liveEdgeLeadSeconds = 60

// CurrentSegmentNumber computes cur(R) per the rule table in §4.2.
func CurrentSegmentNumber(ctx *Context, rep *Representation, now time.Time) uint64 {
	if !ctx.IsLive {
		return rep.FirstSeqNo
	}

	switch rep.Scheme {
	case SchemeExplicitList, SchemeSingleFile:
		return rep.FirstSeqNo

	case SchemeTimeline:
		ts := timescaleOrDefault(rep.FragmentTimescale)
		elapsed := now.Sub(ctx.AvailabilityStartTime).Seconds()
		liveEdge := int64(elapsed * float64(ts))
		lead := int64(liveEdgeLeadSeconds * ts)
		n := NextSegmentAt(ctx, rep, liveEdge-lead)
		if n < 0 {
			return rep.FirstSeqNo
		}
		return uint64(n)

	case SchemeTemplateDuration:
		return currentTemplateDurationSegment(ctx, rep, now)

	default:
		return rep.FirstSeqNo
	}
}

func currentTemplateDurationSegment(ctx *Context, rep *Representation, now time.Time) uint64 {
	ts := timescaleOrDefault(rep.FragmentTimescale)
	dur := durationOrDefault(rep.FragmentDuration)
	// minBufSeconds is subtracted as a raw second count against a segment
	// index, matching the rule table's literal (mixed-unit) formula rather
	// than first converting min_buffer_time to a segment count.
	minBufSeconds := int64(ctx.MinBufferTime.Seconds())

	var n int64
	switch {
	case rep.PresentationTimeOffset != 0:
		elapsed := now.Sub(ctx.AvailabilityStartTime).Seconds()
		n = int64(elapsed*float64(ts)-float64(rep.PresentationTimeOffset)) / int64(dur)
		n -= minBufSeconds

	case ctx.AvailabilityStartTime.IsZero() && !ctx.PublishTime.IsZero():
		adjSeconds := ctx.PublishTime.Sub(time.Unix(0, 0)).Seconds() +
			dur - ctx.SuggestedPresentationDelay.Seconds()
		if ctx.MinBufferTime > 0 {
			n = int64(adjSeconds*float64(ts)) / int64(dur)
			n -= minBufSeconds
		} else {
			adjSeconds -= ctx.TimeShiftBufferDepth.Seconds()
			n = int64(adjSeconds*float64(ts)) / int64(dur)
		}

	default:
		elapsed := now.Sub(ctx.AvailabilityStartTime).Seconds() - ctx.SuggestedPresentationDelay.Seconds()
		n = int64(elapsed*float64(ts)) / int64(dur)
	}

	if ctx.FetchCompletedSegmentsOnly && ctx.TimeShiftBufferDepth == 0 && ctx.SuggestedPresentationDelay == 0 && n > 0 {
		n--
	}

	result := int64(rep.FirstSeqNo) + n
	if result < int64(rep.FirstSeqNo) {
		result = int64(rep.FirstSeqNo)
	}
	return uint64(result)
}

// MinSegmentNumber computes min(R): the oldest segment still inside the
// time-shift buffer for live template+duration Representations.
func MinSegmentNumber(ctx *Context, rep *Representation, now time.Time) uint64 {
	if !ctx.IsLive || rep.Scheme != SchemeTemplateDuration {
		return rep.FirstSeqNo
	}

	ts := timescaleOrDefault(rep.FragmentTimescale)
	dur := durationOrDefault(rep.FragmentDuration)
	elapsed := now.Sub(ctx.AvailabilityStartTime).Seconds() - ctx.TimeShiftBufferDepth.Seconds()
	n := int64(elapsed*float64(ts)) / int64(dur)

	if ctx.FetchCompletedSegmentsOnly && ctx.TimeShiftBufferDepth == 0 && ctx.SuggestedPresentationDelay == 0 && n > 0 {
		n--
	}
	if n < 0 {
		n = 0
	}
	return rep.FirstSeqNo + uint64(n)
}

// MaxSegmentNumber computes max(R) per the rule table in §4.2.
func MaxSegmentNumber(ctx *Context, rep *Representation, now time.Time) uint64 {
	switch rep.Scheme {
	case SchemeExplicitList:
		if len(rep.Fragments) == 0 {
			return rep.FirstSeqNo
		}
		return rep.FirstSeqNo + uint64(len(rep.Fragments)) - 1

	case SchemeSingleFile:
		return rep.FirstSeqNo

	case SchemeTimeline:
		return timelineMaxSegmentNumber(rep)

	case SchemeTemplateDuration:
		ts := timescaleOrDefault(rep.FragmentTimescale)
		dur := durationOrDefault(rep.FragmentDuration)

		if ctx.IsLive {
			elapsed := now.Sub(ctx.AvailabilityStartTime).Seconds()
			n := int64(elapsed*float64(ts)) / int64(dur)
			if ctx.FetchCompletedSegmentsOnly && ctx.TimeShiftBufferDepth == 0 && ctx.SuggestedPresentationDelay == 0 && n > 0 {
				n--
			}
			if n < 0 {
				n = 0
			}
			return rep.FirstSeqNo + uint64(n)
		}

		mpd := ctx.MPDDuration.Seconds()
		if rep.MPDDuration > 0 {
			mpd = rep.MPDDuration.Seconds()
		}
		n := int64(mpd*float64(ts)) / int64(dur)
		if n > 0 {
			n--
		}
		return rep.FirstSeqNo + uint64(n)

	default:
		return rep.FirstSeqNo
	}
}

func timelineMaxSegmentNumber(rep *Representation) uint64 {
	var total int64
	ts := timescaleOrDefault(rep.FragmentTimescale)

	for _, e := range rep.Timeline {
		if e.Repeat == -1 {
			segDurSeconds := float64(e.Duration) / float64(ts)
			if segDurSeconds <= 0 {
				continue
			}
			total += int64(rep.PeriodDuration.Seconds() / segDurSeconds)
			continue
		}
		total += e.Repeat + 1
	}

	if total == 0 {
		return rep.FirstSeqNo
	}
	return rep.FirstSeqNo + uint64(total) - 1
}

// floorDiv is integer division rounding toward negative infinity, unlike
// Go's native / which truncates toward zero. NextSegmentAt needs floor
// semantics to locate the correct repeating-entry index when t falls
// before the entry's own start.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func timescaleOrDefault(ts uint64) uint64 {
	if ts == 0 {
		return 1
	}
	return ts
}

func durationOrDefault(d uint64) float64 {
	if d == 0 {
		return 1
	}
	return float64(d)
}
