package dash

import (
	"net/url"
	"strings"
)

// resolveBaseURL walks a BaseURL chain innermost-to-outermost
// (Representation, AdaptationSet, Period, MPD); the first absolute
// (http/https) BaseURL encountered becomes the root, and every other
// entry processed after it is resolved relatively on top.
//
// chain[0] is Representation, chain[1] AdaptationSet, chain[2] Period,
// chain[3] MPD. A nil entry means no BaseURL was present at that level.
// mpdURL is the fallback root when no BaseURL is absolute anywhere in the
// chain: the MPD's own URL's directory.
func resolveBaseURL(chain [4]*string, mpdURL string) (string, error) {
	var resolved *url.URL
	rooted := false

	for i := 0; i < len(chain); i++ {
		seg := chain[i]
		if seg == nil || *seg == "" {
			continue
		}

		u, perr := url.Parse(*seg)
		if perr != nil {
			return "", &ManifestError{URL: mpdURL, Err: ErrInvalidManifest}
		}

		if u.IsAbs() {
			if !rooted {
				resolved = u
				rooted = true
			}
			continue
		}

		if resolved == nil {
			// No absolute root yet; resolve relative to the MPD's own
			// location. A later (outer) absolute BaseURL replaces this
			// result; later relative ones are resolved on top of it, and
			// it is the final result if no absolute BaseURL follows.
			base, berr := url.Parse(mpdURL)
			if berr != nil {
				return "", &ManifestError{URL: mpdURL, Err: ErrInvalidManifest}
			}
			resolved = base.ResolveReference(u)
			continue
		}

		resolved = resolved.ResolveReference(u)
	}

	if resolved == nil {
		base, berr := url.Parse(mpdURL)
		if berr != nil {
			return "", &ManifestError{URL: mpdURL, Err: ErrInvalidManifest}
		}
		resolved = directoryOf(base)
	}

	result := resolved.String()
	if !strings.HasSuffix(result, "/") && !strings.Contains(lastPathSegment(result), ".") {
		result += "/"
	}
	return result, nil
}

// directoryOf returns the directory (trailing-slash) URL containing u,
// used as the base when an MPD carries no BaseURL at all.
func directoryOf(u *url.URL) *url.URL {
	dir := *u
	if idx := strings.LastIndex(dir.Path, "/"); idx >= 0 {
		dir.Path = dir.Path[:idx+1]
	} else {
		dir.Path = "/"
	}
	dir.RawQuery = ""
	dir.Fragment = ""
	return &dir
}

func lastPathSegment(rawURL string) string {
	if idx := strings.LastIndex(rawURL, "/"); idx >= 0 {
		return rawURL[idx+1:]
	}
	return rawURL
}

// resolveReference resolves ref against base using standard RFC-3986
// relative-reference rules.
func resolveReference(base, ref string) (string, error) {
	if ref == "" {
		return base, nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}
