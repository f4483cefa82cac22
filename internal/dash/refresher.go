package dash

import (
	"context"
	"fmt"
	"log/slog"
)

// Refresh re-runs the parser against mc's MPD URL, reconciles the new
// Representation vectors against the retained ones by stable ID, and
// splices the refreshed timeline/fragments/init sections into the
// retained Representations in place, per the protocol in §4.3.
//
// Best-effort: on failure mc is left untouched and the error surfaces to
// the caller; the prior manifest state remains readable.
func Refresh(ctx context.Context, mc *Context, target *Representation) error {
	timepoint := currentTimepoint(mc, target)
	slog.Debug("refreshing manifest", "url", mc.MPDURL, "representation", target.ID, "timepoint", timepoint)

	newMC, err := Parse(ctx, mc.Client, mc.MPDURL, timepoint, mc.PeriodStart)
	if err != nil {
		slog.Warn("manifest refresh failed", "url", mc.MPDURL, "error", err)
		return err
	}
	newMC.FetchOptions = mc.FetchOptions

	for _, rep := range mc.Representations() {
		newRep := newMC.FindRepresentation(rep.ID)
		if newRep == nil {
			if rep == target {
				return &RepresentationError{
					RepresentationID: rep.ID,
					Err:              fmt.Errorf("%w: no matching representation after refresh", ErrInvalidManifest),
				}
			}
			continue
		}

		if codecParamsChanged(rep, newRep) {
			slog.Warn("codec parameters changed across refresh", "representation", rep.ID)
			return &RepresentationError{RepresentationID: rep.ID, Err: ErrInputChanged}
		}
	}

	for _, rep := range mc.Representations() {
		if newRep := newMC.FindRepresentation(rep.ID); newRep != nil {
			spliceRepresentation(mc, newMC, rep, newRep)
		}
	}

	mc.BaseURL = newMC.BaseURL
	mc.IsLive = newMC.IsLive
	mc.AvailabilityStartTime = newMC.AvailabilityStartTime
	mc.AvailabilityEndTime = newMC.AvailabilityEndTime
	mc.PublishTime = newMC.PublishTime
	mc.MinimumUpdatePeriod = newMC.MinimumUpdatePeriod
	mc.SuggestedPresentationDelay = newMC.SuggestedPresentationDelay
	mc.TimeShiftBufferDepth = newMC.TimeShiftBufferDepth
	mc.MinBufferTime = newMC.MinBufferTime
	mc.MPDDuration = newMC.MPDDuration
	mc.PeriodID = newMC.PeriodID
	mc.PeriodStart = newMC.PeriodStart
	mc.PeriodDuration = newMC.PeriodDuration
	mc.BumpMaxURLSize(newMC.MaxURLSize)

	return nil
}

// spliceRepresentation applies step 5 of the refresh protocol: a Period
// transition resets and transfers wholesale; otherwise the existing
// timeline continues, re-anchored by N(new, T(old, old.cur)-1).
func spliceRepresentation(mc, newMC *Context, old, newRep *Representation) {
	if newMC.PeriodStart > old.PeriodStart {
		slog.Info("period transition", "representation", old.ID, "from", old.PeriodStart, "to", newMC.PeriodStart)
		old.FirstSeqNo = newRep.FirstSeqNo
		old.LastSeqNo = newRep.LastSeqNo
		old.CurSeqNo = newRep.FirstSeqNo
		old.Timeline = newRep.Timeline
		old.Fragments = newRep.Fragments
		old.Scheme = newRep.Scheme
		old.URLTemplate = newRep.URLTemplate
		old.FragmentDuration = newRep.FragmentDuration
		old.FragmentTimescale = newRep.FragmentTimescale
		old.PeriodStart = newMC.PeriodStart
		old.PeriodDuration = newMC.PeriodDuration
		old.MPDDuration = newMC.MPDDuration
		old.Init.Fragment = newRep.Init.Fragment
		old.Init.Loaded = false
		old.Init.ReadOffset = 0
		return
	}

	oldTime := SegmentStartTime(mc, old, old.CurSeqNo)
	n := NextSegmentAt(newMC, newRep, oldTime-1)
	if n < 0 {
		return
	}

	old.CurSeqNo = uint64(n)
	old.Timeline = newRep.Timeline
	old.Fragments = newRep.Fragments
	old.FirstSeqNo = newRep.FirstSeqNo
	old.LastSeqNo = newRep.LastSeqNo
	old.FragmentDuration = newRep.FragmentDuration
	old.FragmentTimescale = newRep.FragmentTimescale
	old.URLTemplate = newRep.URLTemplate
}

// currentTimepoint computes get_curr_timepoint(target) per §4.3 step 2.
func currentTimepoint(mc *Context, target *Representation) uint32 {
	switch target.Scheme {
	case SchemeTimeline:
		ts := timescaleOrDefault(target.FragmentTimescale)
		t := SegmentStartTime(mc, target, target.CurSeqNo)
		return uint32(mc.PeriodStart.Seconds()) + uint32(t/int64(ts))

	case SchemeTemplateDuration:
		if !mc.IsLive {
			return 0
		}
		ts := timescaleOrDefault(target.FragmentTimescale)
		dur := durationOrDefault(target.FragmentDuration)
		return uint32(float64(target.FirstSeqNo) * dur / float64(ts))

	default:
		return 0
	}
}
