package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/worker-attendance/internal/constants"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Descriptor cache commands",
	Long:  `Commands for managing the local face descriptor cache used by the local identification strategy.`,
}

var cacheWarmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Compute face descriptors for every reference photo",
	Long: `Downloads every worker's reference photos, computes their face descriptors with
the embedding service and stores them in DESCRIPTOR_CACHE_PATH, so the first
identification at the kiosk does not have to. Descriptors of photos that no
longer belong to any worker are removed.

Example:
  attendance cache warm`,
	RunE: runCacheWarm,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheWarmCmd)

	cacheWarmCmd.Flags().Bool("json", false, "Output as JSON instead of progress bar")
}

// WarmCacheResult is the JSON output of cache warm.
type WarmCacheResult struct {
	Success    bool  `json:"success"`
	Workers    int   `json:"workers"`
	Photos     int   `json:"photos"`
	Usable     int   `json:"usable"`
	Cached     int   `json:"cached"`
	DurationMs int64 `json:"duration_ms"`
}

func runCacheWarm(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	startTime := time.Now()

	a, err := newApp()
	if err != nil {
		return err
	}
	if a.cfg.Identify.EmbeddingURL == "" {
		return errors.New("EMBEDDING_URL environment variable is required")
	}
	if a.cfg.Identify.DescriptorCachePath == "" {
		return errors.New("DESCRIPTOR_CACHE_PATH environment variable is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	local := a.localIdentifier()
	cache := a.descriptorCache()

	if !jsonOutput {
		fmt.Println("Fetching workers...")
	}
	workers, err := a.client.ListWorkers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list workers: %w", err)
	}

	photos := 0
	for i := range workers {
		photos += len(workers[i].Images)
	}
	if !jsonOutput {
		fmt.Printf("Found %d reference photos of %d workers (%d cached)\n\n", photos, len(workers), cache.Len())
	}

	// Create progress bar (only for non-JSON output)
	var bar *progressbar.ProgressBar
	if !jsonOutput && photos > 0 {
		bar = progressbar.NewOptions(photos,
			progressbar.OptionSetDescription("Computing descriptors"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("photos"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	usable, warmErr := local.Warm(ctx, workers, func(done, total int) {
		if bar != nil {
			bar.Add(1)
		}
		// Save periodically so an interrupted run keeps its progress.
		if done%constants.DescriptorSaveInterval == 0 {
			if err := cache.Save(); err != nil {
				a.log.WithError(err).Warn("failed to save descriptor cache")
			}
		}
	})

	if bar != nil {
		fmt.Println()
	}
	if err := cache.Save(); err != nil {
		return fmt.Errorf("failed to save descriptor cache: %w", err)
	}
	if warmErr != nil {
		return fmt.Errorf("cache warm interrupted after %d usable descriptors: %w", usable, warmErr)
	}

	result := WarmCacheResult{
		Success:    true,
		Workers:    len(workers),
		Photos:     photos,
		Usable:     usable,
		Cached:     cache.Len(),
		DurationMs: time.Since(startTime).Milliseconds(),
	}
	if jsonOutput {
		return outputJSON(result)
	}

	fmt.Printf("Done! %d of %d photos have a usable face (%d entries cached) in %s\n",
		usable, photos, result.Cached, time.Since(startTime).Round(time.Second))
	return nil
}
