package retrieval

import (
	"fmt"
	"strings"
)

// Quality presets understood by the pipeline.
const (
	QualityAsk   = "ask"
	QualityBest  = "best"
	QualityMax   = "max"
	Quality1080  = "1080"
	Quality720   = "720"
	Quality480   = "480"
	QualityAudio = "audio"
)

// DefaultRetryQuality is used when a task is retried without a recorded quality.
const DefaultRetryQuality = Quality720

var knownQualities = []string{QualityAsk, QualityBest, QualityMax, Quality1080, Quality720, Quality480, QualityAudio}

// Qualities lists every accepted preset.
func Qualities() []string {
	return append([]string(nil), knownQualities...)
}

// ParseQuality normalizes a preset name. "4k" and "max" map to best.
func ParseQuality(value string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	v = strings.TrimSuffix(v, "p")
	switch v {
	case QualityAsk, QualityBest, Quality1080, Quality720, Quality480, QualityAudio:
		return v, nil
	case QualityMax, "4k", "2160":
		return QualityBest, nil
	case "mp3":
		return QualityAudio, nil
	default:
		return "", fmt.Errorf("unsupported quality %q (expected one of %s)", value, strings.Join(knownQualities, ", "))
	}
}

// RequestFor converts a concrete preset into a retrieval request. The "ask"
// preset has no concrete request and must be resolved by the caller first.
func RequestFor(source, quality string) (Request, error) {
	q, err := ParseQuality(quality)
	if err != nil {
		return Request{}, err
	}
	switch q {
	case QualityAsk:
		return Request{}, fmt.Errorf("quality %q must be resolved before retrieval", quality)
	case QualityAudio:
		return Request{Source: source, Mode: ModeAudio, Quality: "192"}, nil
	default:
		return Request{Source: source, Mode: ModeVideo, Quality: q}, nil
	}
}
