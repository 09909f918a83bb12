package retrieval

import (
	"regexp"
	"strconv"
	"strings"
)

// Line prefixes produced by the progress and print templates passed to yt-dlp.
const (
	markerPrefix      = "tubego:"
	downloadMarker    = markerPrefix + PhaseDownload + ":"
	postprocessMarker = markerPrefix + PhasePostprocess + ":"
	fileMarker        = markerPrefix + "file:"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

// parseProgress interprets a single output line. It recognises the tubego
// template markers and yt-dlp's default "[download]  42.0% of ..." lines.
func parseProgress(line string) (Progress, bool) {
	line = strings.TrimSpace(ansiPattern.ReplaceAllString(line, ""))
	switch {
	case strings.HasPrefix(line, downloadMarker):
		return Progress{Phase: PhaseDownload, Percent: parsePercent(strings.TrimPrefix(line, downloadMarker))}, true
	case strings.HasPrefix(line, postprocessMarker):
		return Progress{Phase: PhasePostprocess, Percent: -1}, true
	case strings.HasPrefix(line, "[download]"):
		fields := strings.Fields(strings.TrimPrefix(line, "[download]"))
		if len(fields) == 0 || !strings.HasSuffix(fields[0], "%") {
			return Progress{}, false
		}
		return Progress{Phase: PhaseDownload, Percent: parsePercent(fields[0])}, true
	case strings.HasPrefix(line, "[Merger]"), strings.HasPrefix(line, "[ExtractAudio]"), strings.HasPrefix(line, "[FixupM3u8]"):
		return Progress{Phase: PhasePostprocess, Percent: -1}, true
	default:
		return Progress{}, false
	}
}

func parsePercent(value string) float64 {
	value = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value), "%"))
	pct, err := strconv.ParseFloat(value, 64)
	if err != nil || pct < 0 {
		return -1
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// parseFilePath returns the final artifact path printed after the move stage.
func parseFilePath(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, fileMarker) {
		return "", false
	}
	path := strings.TrimSpace(strings.TrimPrefix(line, fileMarker))
	return path, path != ""
}

// parseDestination returns a file yt-dlp announces it is about to write,
// either a download target or a merge output.
func parseDestination(line string) (string, bool) {
	line = strings.TrimSpace(ansiPattern.ReplaceAllString(line, ""))
	if rest, ok := strings.CutPrefix(line, "[download] Destination:"); ok {
		path := strings.TrimSpace(rest)
		return path, path != ""
	}
	if rest, ok := strings.CutPrefix(line, "[Merger] Merging formats into"); ok {
		path := strings.Trim(strings.TrimSpace(rest), `"`)
		return path, path != ""
	}
	return "", false
}

// errorLine reports whether line is a yt-dlp error message worth surfacing.
func errorLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(ansiPattern.ReplaceAllString(line, "")), "ERROR:")
}
