package preflight

import (
	"fmt"
	"os/exec"
	"strings"

	"tubego/internal/config"
)

// Requirement defines an external binary tubego relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// BinaryStatus reports the availability of a binary.
type BinaryStatus struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Result converts the status into a preflight result. Missing optional
// binaries pass with a note.
func (s BinaryStatus) Result() Result {
	if s.Available {
		return Result{Name: s.Name, Passed: true, Detail: s.Command}
	}
	if s.Optional {
		return Result{Name: s.Name, Passed: true, Detail: s.Detail + " (optional)"}
	}
	return Result{Name: s.Name, Detail: s.Detail}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []BinaryStatus {
	results := make([]BinaryStatus, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := BinaryStatus{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch {
		case cmd == "":
			status.Detail = "command not configured"
		default:
			if path, err := exec.LookPath(cmd); err != nil {
				status.Detail = fmt.Sprintf("binary %q not found", cmd)
			} else {
				status.Command = path
				status.Available = true
			}
		}
		results = append(results, status)
	}
	return results
}

// CheckSystemDeps evaluates the binaries the retrieval tool needs.
func CheckSystemDeps(cfg *config.Config) []BinaryStatus {
	return CheckBinaries([]Requirement{
		{
			Name:        "yt-dlp",
			Command:     cfg.Retrieval.Binary,
			Description: "Required for downloads and metadata",
		},
		{
			Name:        "FFmpeg",
			Command:     cfg.Retrieval.FFmpegBinary,
			Description: "Required for merging streams and audio extraction",
		},
	})
}
