package dash

import "bytes"

// dashProfiles are the standard profile identifiers that strengthen a
// probe match beyond the bare "<MPD" literal.
var dashProfiles = [][]byte{
	[]byte("dash:profile:isoff-on-demand:2011"),
	[]byte("dash:profile:isoff-live:2011"),
	[]byte("dash:profile:isoff-main:2011"),
	[]byte("dash:profile:isoff-on-demand:2012"),
	[]byte("dash:profile:isoff-live:2012"),
	[]byte("dash:profile:isoff-main:2012"),
	[]byte("3GPP:PSS:profile:DASH1"),
}

// Probe reports whether buf looks like an MPD document. It checks only for
// the literal "<MPD"; ProbeStrong is the variant that also looks for one of
// the standard DASH profile identifiers.
func Probe(buf []byte) bool {
	return bytes.Contains(buf, []byte("<MPD"))
}

// ProbeStrong additionally requires a recognized DASH profile identifier,
// reducing false positives against unrelated XML documents that happen to
// contain "<MPD" in a comment or string literal.
func ProbeStrong(buf []byte) bool {
	if !Probe(buf) {
		return false
	}
	for _, p := range dashProfiles {
		if bytes.Contains(buf, p) {
			return true
		}
	}
	return false
}
