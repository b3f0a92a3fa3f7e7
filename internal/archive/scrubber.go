package archive

import (
	"regexp"
	"strings"
)

// Scrub limits. Fenced code blocks longer than maxFenceChars are elided
// whole, runs of more than maxPathRun consecutive file-path lines collapse
// to a marker, and the scrubbed transcript keeps at most maxScrubbedChars
// of its tail.
const (
	maxFenceChars    = 500
	maxScrubbedChars = 50000
	maxPathRun       = 3
)

var (
	fenceRe    = regexp.MustCompile("(?s)```.*?```")
	dataURIRe  = regexp.MustCompile(`data:image/[A-Za-z0-9.+-]+;base64,[A-Za-z0-9+/=]+`)
	pathLineRe = regexp.MustCompile(`^\s*\.{0,2}/?(?:[\w.+@-]+/){2,}[\w.+@-]*\s*$`)
	blankRunRe = regexp.MustCompile(`\n{3,}`)
)

// Scrub rewrites a raw session transcript for long-term storage: oversized
// code fences and inline image data are elided, file listings collapse, blank
// runs shrink, and anything beyond the size cap is cut from the front so the
// most recent exchange survives.
func Scrub(content string) string {
	out := fenceRe.ReplaceAllStringFunc(content, func(block string) string {
		if len(block) <= maxFenceChars {
			return block
		}
		return "[code block removed]"
	})
	out = dataURIRe.ReplaceAllString(out, "[image removed]")
	out = collapsePathRuns(out)
	out = blankRunRe.ReplaceAllString(out, "\n\n")
	return tailRunes(out, maxScrubbedChars)
}

// collapsePathRuns replaces each run of more than maxPathRun consecutive
// file-path lines with a single marker. Pasted directory trees dominate raw
// transcripts and carry nothing the summary needs.
func collapsePathRuns(content string) string {
	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))

	run := 0
	flush := func() {
		if run > maxPathRun {
			out = out[:len(out)-run]
			out = append(out, "[file listing removed]")
		}
		run = 0
	}

	for _, line := range lines {
		if pathLineRe.MatchString(line) {
			out = append(out, line)
			run++
			continue
		}
		flush()
		out = append(out, line)
	}
	flush()

	return strings.Join(out, "\n")
}

// tailRunes keeps the last n runes of s.
func tailRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
