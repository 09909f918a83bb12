package preflight

import (
	"context"

	"tubego/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// The secondary Telegram identity is only checked when it is configured.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Archive directory", cfg.Paths.ArchiveDir),
	}

	for _, status := range CheckSystemDeps(cfg) {
		results = append(results, status.Result())
	}

	results = append(results, CheckTelegram(ctx, "Telegram primary", cfg.Telegram.BaseURL, cfg.Telegram.BotToken))
	if cfg.SecondaryConfigured() {
		results = append(results, CheckTelegram(ctx, "Telegram secondary", cfg.Telegram.Secondary.BaseURL, cfg.Telegram.Secondary.BotToken))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
