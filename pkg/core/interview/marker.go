package interview

import (
	"regexp"
	"strings"
)

var (
	urlPattern      = regexp.MustCompile(`https?://\S+`)
	bracketPattern  = regexp.MustCompile(`\[[^\]]*\]`)
	emotePattern    = regexp.MustCompile(`\*[^*]+\*`)
	markdownPattern = regexp.MustCompile("[`_#]+")
	spacePattern    = regexp.MustCompile(`\s+`)
)

// ContainsMarker reports whether the reply carries the completion marker.
// Matching is case-insensitive; models occasionally change the casing.
func ContainsMarker(text, marker string) bool {
	if marker == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(marker))
}

// StripMarker removes every occurrence of the completion marker and returns
// the remaining text with whitespace normalized.
func StripMarker(text, marker string) string {
	if marker == "" {
		return text
	}
	lower := strings.ToLower(text)
	needle := strings.ToLower(marker)
	var b strings.Builder
	for {
		idx := strings.Index(lower, needle)
		if idx < 0 {
			b.WriteString(text)
			break
		}
		b.WriteString(text[:idx])
		text = text[idx+len(marker):]
		lower = lower[idx+len(needle):]
	}
	return collapseSpace(b.String())
}

// CleanForSpeech prepares interviewer text for synthesis: URLs, bracketed
// stage directions, *emotes* and markdown markup read terribly aloud.
func CleanForSpeech(text string) string {
	text = urlPattern.ReplaceAllString(text, "")
	text = bracketPattern.ReplaceAllString(text, "")
	text = emotePattern.ReplaceAllString(text, "")
	text = markdownPattern.ReplaceAllString(text, "")
	return collapseSpace(text)
}

// CleanForDisplay prepares interviewer text for the transcript and for
// display to the participant. Links stay; stage directions go.
func CleanForDisplay(text string) string {
	text = bracketPattern.ReplaceAllString(text, "")
	text = emotePattern.ReplaceAllString(text, "")
	return collapseSpace(text)
}

func collapseSpace(text string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(text, " "))
}
