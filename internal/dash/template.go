package dash

import (
	"fmt"
	"strconv"
	"strings"
)

// ExpandTemplate substitutes $RepresentationID$, $Bandwidth$, $Number$, and
// $Time$ placeholders in tpl. $Number$ and $Time$ accept an optional
// "%0Nd" zero-padded width modifier; $$ yields a literal $. Expansion is a
// pure function of its inputs: the same (tpl, rep, n, t) always produces
// the same URL.
func ExpandTemplate(tpl string, rep *Representation, n uint64, t int64) string {
	var b strings.Builder
	b.Grow(len(tpl))

	for i := 0; i < len(tpl); {
		if tpl[i] != '$' {
			b.WriteByte(tpl[i])
			i++
			continue
		}

		// Look for the closing '$' of this placeholder.
		end := strings.IndexByte(tpl[i+1:], '$')
		if end < 0 {
			// No closing marker; emit the rest verbatim.
			b.WriteString(tpl[i:])
			break
		}
		end += i + 1
		token := tpl[i+1 : end]

		if token == "" {
			// "$$" -> literal $
			b.WriteByte('$')
			i = end + 1
			continue
		}

		name, format, ok := splitPlaceholder(token)
		if !ok {
			// Not a recognized placeholder; emit verbatim including markers.
			b.WriteString(tpl[i : end+1])
			i = end + 1
			continue
		}

		switch name {
		case "RepresentationID":
			b.WriteString(rep.ID)
		case "Bandwidth":
			b.WriteString(strconv.FormatUint(rep.Bandwidth, 10))
		case "Number":
			b.WriteString(formatPlaceholder(n, format))
		case "Time":
			b.WriteString(formatPlaceholder(uint64(t), format))
		default:
			b.WriteString(tpl[i : end+1])
		}
		i = end + 1
	}

	return b.String()
}

// splitPlaceholder splits "Number%05d" into ("Number", "%05d", true), or
// ("RepresentationID", "", true) when there is no width modifier.
func splitPlaceholder(token string) (name, format string, ok bool) {
	if idx := strings.IndexByte(token, '%'); idx >= 0 {
		return token[:idx], token[idx:], true
	}
	return token, "", true
}

// formatPlaceholder renders v using an optional "%0Nd"-style width
// modifier; an empty format renders v with no padding.
func formatPlaceholder(v uint64, format string) string {
	if format == "" {
		return strconv.FormatUint(v, 10)
	}
	if !strings.HasSuffix(format, "d") {
		return strconv.FormatUint(v, 10)
	}
	return fmt.Sprintf(format, v)
}
