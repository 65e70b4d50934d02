// Package pprof provides self-profiling for long export runs. A Collector
// periodically snapshots the requested runtime profiles into timestamped
// files, and takes a final snapshot when stopped.
//
// Basic usage:
//
//	cfg := pprof.DefaultConfig()
//	cfg.OutputDir = "./pprof"
//
//	collector, err := pprof.NewCollector(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := collector.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer collector.Stop()
package pprof

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"sync"
	"time"
)

// ProfileType identifies a runtime profile.
type ProfileType string

const (
	ProfileCPU       ProfileType = "cpu"
	ProfileHeap      ProfileType = "heap"
	ProfileAllocs    ProfileType = "allocs"
	ProfileGoroutine ProfileType = "goroutine"
	ProfileBlock     ProfileType = "block"
	ProfileMutex     ProfileType = "mutex"
)

// ParseProfileTypes parses a comma-separated profile list such as
// "cpu,heap,goroutine".
func ParseProfileTypes(s string) ([]ProfileType, error) {
	var profiles []ProfileType
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pt := ProfileType(part)
		switch pt {
		case ProfileCPU, ProfileHeap, ProfileAllocs, ProfileGoroutine, ProfileBlock, ProfileMutex:
			profiles = append(profiles, pt)
		default:
			return nil, fmt.Errorf("unknown profile type: %q", part)
		}
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("no profile types given")
	}
	return profiles, nil
}

// Config configures a Collector.
type Config struct {
	// OutputDir is where snapshot files are written.
	OutputDir string

	// Profiles lists the profiles to collect.
	Profiles []ProfileType

	// Interval between periodic snapshots.
	Interval time.Duration

	// CPUDuration is how long each CPU profile snapshot records.
	CPUDuration time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		OutputDir:   "./pprof",
		Profiles:    []ProfileType{ProfileCPU, ProfileHeap, ProfileGoroutine},
		Interval:    30 * time.Second,
		CPUDuration: 10 * time.Second,
	}
}

func (c *Config) hasProfile(pt ProfileType) bool {
	for _, p := range c.Profiles {
		if p == pt {
			return true
		}
	}
	return false
}

// Collector periodically writes profile snapshots to files.
type Collector struct {
	config *Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
}

// NewCollector creates a Collector from the given config.
func NewCollector(cfg *Config) (*Collector, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if len(cfg.Profiles) == 0 {
		return nil, fmt.Errorf("no profile types configured")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("invalid snapshot interval: %v", cfg.Interval)
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create pprof output dir: %w", err)
	}
	return &Collector{config: cfg}, nil
}

// OutputDir returns where snapshots are written.
func (c *Collector) OutputDir() string {
	return c.config.OutputDir
}

// Start begins periodic snapshot collection.
func (c *Collector) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("collector already started")
	}
	c.started = true

	c.ctx, c.cancel = context.WithCancel(context.Background())

	if c.config.hasProfile(ProfileBlock) {
		runtime.SetBlockProfileRate(1)
	}
	if c.config.hasProfile(ProfileMutex) {
		runtime.SetMutexProfileFraction(1)
	}

	c.wg.Add(1)
	go c.collectLoop()
	return nil
}

// Stop halts collection, takes final snapshots of the non-CPU profiles and
// restores runtime profiling rates.
func (c *Collector) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	var firstErr error
	for _, pt := range c.config.Profiles {
		if pt == ProfileCPU {
			continue
		}
		if err := c.snapshot(pt); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	runtime.SetBlockProfileRate(0)
	runtime.SetMutexProfileFraction(0)
	return firstErr
}

func (c *Collector) collectLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	c.collectSnapshots()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.collectSnapshots()
		}
	}
}

func (c *Collector) collectSnapshots() {
	for _, pt := range c.config.Profiles {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		if pt == ProfileCPU {
			c.snapshotCPU()
			continue
		}
		c.snapshot(pt)
	}
}

func (c *Collector) snapshot(pt ProfileType) error {
	profile := pprof.Lookup(string(pt))
	if profile == nil {
		return fmt.Errorf("unknown runtime profile: %q", pt)
	}

	var buf bytes.Buffer
	if err := profile.WriteTo(&buf, 0); err != nil {
		return fmt.Errorf("failed to write %s profile: %w", pt, err)
	}
	return c.writeSnapshot(pt, buf.Bytes())
}

func (c *Collector) snapshotCPU() error {
	var buf bytes.Buffer
	if err := pprof.StartCPUProfile(&buf); err != nil {
		return fmt.Errorf("failed to start CPU profile: %w", err)
	}

	select {
	case <-c.ctx.Done():
	case <-time.After(c.config.CPUDuration):
	}
	pprof.StopCPUProfile()

	return c.writeSnapshot(ProfileCPU, buf.Bytes())
}

func (c *Collector) writeSnapshot(pt ProfileType, data []byte) error {
	name := fmt.Sprintf("%s_%s.pb.gz", pt, time.Now().Format("20060102_150405"))
	path := filepath.Join(c.config.OutputDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", path, err)
	}
	return nil
}
