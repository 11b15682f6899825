package config

import (
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// SamplingOverrides is the on-disk shape of the sampling overrides file.
//
//	default: 1.0
//	routes:
//	  /api/demo/slow: 0.2
type SamplingOverrides struct {
	Default *float64           `yaml:"default"`
	Routes  map[string]float64 `yaml:"routes"`
}

func loadOverridesFile(path string) (*SamplingOverrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var overrides SamplingOverrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &overrides, nil
}

// SamplingWatcher hot-reloads the sampling overrides file and pushes changes
// to a callback, so sampling ratios can be tuned without a restart.
type SamplingWatcher struct {
	path     string
	onChange func(ratio float64, routes map[string]float64)
	fallback float64
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
}

// NewSamplingWatcher starts watching the overrides file. The callback runs
// once per successful reload with the new global ratio and route overrides;
// fallbackRatio is used when the file omits a default.
func NewSamplingWatcher(path string, fallbackRatio float64, logger *zap.Logger, onChange func(float64, map[string]float64)) (*SamplingWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsWatcher.Add(path); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	w := &SamplingWatcher{
		path:     path,
		onChange: onChange,
		fallback: fallbackRatio,
		logger:   logger,
		watcher:  fsWatcher,
		stopCh:   make(chan struct{}),
	}
	go w.watchLoop()

	logger.Info("sampling overrides hot reload enabled", zap.String("path", path))
	return w, nil
}

func (w *SamplingWatcher) watchLoop() {
	defer w.watcher.Close()

	// Editors often emit several events per save; debounce them.
	var debounce *time.Timer
	const debounceDelay = 500 * time.Millisecond

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("sampling watcher error", zap.Error(err))

		case <-w.stopCh:
			return
		}
	}
}

func (w *SamplingWatcher) reload() {
	overrides, err := loadOverridesFile(w.path)
	if err != nil {
		w.logger.Warn("failed to reload sampling overrides",
			zap.String("path", w.path),
			zap.Error(err),
		)
		return
	}

	ratio := w.fallback
	if overrides.Default != nil {
		ratio = *overrides.Default
	}
	w.onChange(ratio, overrides.Routes)

	w.logger.Info("sampling overrides reloaded",
		zap.Float64("default", ratio),
		zap.Int("route_overrides", len(overrides.Routes)),
	)
}

// Stop ends the watch loop.
func (w *SamplingWatcher) Stop() {
	close(w.stopCh)
}
