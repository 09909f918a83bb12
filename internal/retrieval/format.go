package retrieval

import "fmt"

// FormatSelector returns the yt-dlp format expression for a request. Without
// ffmpeg the selector only picks pre-muxed files, since separate video and
// audio streams could not be merged.
func FormatSelector(mode Mode, quality string, hasFFmpeg bool) string {
	best := quality == QualityBest || quality == QualityMax
	if !hasFFmpeg {
		if mode == ModeAudio {
			return "bestaudio[ext=m4a]/bestaudio"
		}
		if best || quality == Quality1080 {
			return "best[ext=mp4]/best"
		}
		return fmt.Sprintf("best[height<=%s][ext=mp4]/best[ext=mp4]/best", quality)
	}

	if mode == ModeAudio {
		return "bestaudio/best"
	}
	if best {
		return "bestvideo+bestaudio/best"
	}
	return fmt.Sprintf("bestvideo[height<=%[1]s][ext=mp4]+bestaudio[ext=m4a]/best[height<=%[1]s][ext=mp4]/best", quality)
}
