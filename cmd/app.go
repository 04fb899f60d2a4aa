package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/kozaktomas/worker-attendance/internal/backend"
	"github.com/kozaktomas/worker-attendance/internal/camera"
	"github.com/kozaktomas/worker-attendance/internal/config"
	"github.com/kozaktomas/worker-attendance/internal/identify"
	"github.com/kozaktomas/worker-attendance/internal/logging"
	"github.com/kozaktomas/worker-attendance/internal/registry"
	"github.com/sirupsen/logrus"
)

// app holds the components shared by the commands.
type app struct {
	cfg    *config.Config
	log    *logrus.Logger
	client *backend.Client
	camera *camera.Manager
	cache  *identify.DescriptorCache
}

// newApp loads the configuration and connects the backend client and the camera.
func newApp() (*app, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log := logging.Default()

	client, err := backend.New(cfg.Backend.URL, cfg.Backend.Timeout,
		backend.WithLogger(log),
		backend.WithRateLimit(float64(cfg.Backend.RateLimit), cfg.Backend.RateBurst),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}

	cam := camera.NewManager(
		camera.NewDirPlatform(cfg.Camera.Dir, cfg.Camera.FacingModeOnly),
		camera.WithUserAgent(cfg.Camera.UserAgent),
		camera.WithLogger(log),
	)

	return &app{cfg: cfg, log: log, client: client, camera: cam}, nil
}

// descriptorCache loads the persisted descriptor cache once. A missing file is not an error.
func (a *app) descriptorCache() *identify.DescriptorCache {
	if a.cache != nil {
		return a.cache
	}
	a.cache = identify.NewDescriptorCache(a.cfg.Identify.DescriptorCachePath)
	if err := a.cache.Load(); err != nil {
		a.log.WithError(err).Warn("failed to load descriptor cache, starting empty")
	}
	return a.cache
}

// localIdentifier builds the on-device strategy regardless of IDENTIFY_STRATEGY.
func (a *app) localIdentifier() *identify.Local {
	extractor := identify.NewEmbeddingClient(a.cfg.Identify.EmbeddingURL, a.cfg.Identify.EmbeddingTimeout)
	local := identify.NewLocal(a.client, extractor, a.descriptorCache(), a.cfg.Identify.Threshold)
	local.SetLogger(a.log)
	if a.cfg.Identify.UseIndex() {
		local.EnableIndex()
	}
	return local
}

// identifier builds the configured identification strategy.
func (a *app) identifier() (identify.Identifier, error) {
	opts := identify.Options{
		Strategy:     a.cfg.Identify.Strategy,
		Threshold:    a.cfg.Identify.Threshold,
		MaxUploadDim: a.cfg.Camera.MaxUploadDimension,
	}
	if opts.Strategy == identify.StrategyLocal {
		return a.localIdentifier(), nil
	}
	return identify.New(a.client, opts)
}

func (a *app) registry() *registry.Registry {
	return registry.New(a.client, a.cfg.Camera.MaxUploadDimension, a.log)
}

// saveCache persists new descriptors, if any were computed.
func (a *app) saveCache() {
	if a.cache == nil || a.cfg.Identify.DescriptorCachePath == "" {
		return
	}
	if err := a.cache.Save(); err != nil {
		fmt.Printf("Warning: failed to save descriptor cache: %v\n", err)
	}
}

// close stops the camera and saves the descriptor cache.
func (a *app) close() {
	a.camera.Close()
	a.saveCache()
}

func confirmAction(prompt string) bool {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
