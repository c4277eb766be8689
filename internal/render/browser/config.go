package browser

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
)

// Config holds the configuration for the browser pool and its instances.
type Config struct {
	// MinSize / MaxSize are each "auto" or a positive integer string.
	MinSize string
	MaxSize string

	WarmupURL       string
	WarmupTimeout   time.Duration
	ShutdownTimeout time.Duration

	// ScaleUsageThreshold is the usage ratio (1 - idle/current) at or above
	// which the pool spawns a new member on acquire.
	ScaleUsageThreshold float64
}

// DefaultConfig is used in tests to avoid constructing full Config structs.
func DefaultConfig() *Config {
	return &Config{
		MinSize:             "1",
		MaxSize:             "10",
		WarmupURL:           "about:blank",
		WarmupTimeout:       10 * time.Second,
		ShutdownTimeout:     30 * time.Second,
		ScaleUsageThreshold: 0.8,
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	minSize, maxSize := c.CalculateBounds()
	if minSize <= 0 {
		return fmt.Errorf("pool min_size must be positive")
	}
	if maxSize < minSize {
		return fmt.Errorf("pool max_size (%d) must be >= min_size (%d)", maxSize, minSize)
	}
	if c.WarmupURL == "" {
		return fmt.Errorf("warmup URL cannot be empty")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	if c.ScaleUsageThreshold <= 0 || c.ScaleUsageThreshold > 1 {
		return fmt.Errorf("scale usage threshold must be in (0, 1]")
	}
	return nil
}

// CalculateBounds resolves MinSize/MaxSize, auto-deriving from total system RAM
// using the same reserve-then-divide formula the teacher used for its single
// pool-size knob: (total RAM - 2GB reserved) / 500MB per instance.
func (c *Config) CalculateBounds() (minSize, maxSize int) {
	auto := calculateAutoPoolSize()

	maxSize = auto
	if c.MaxSize != "auto" && c.MaxSize != "" {
		if v, err := strconv.Atoi(c.MaxSize); err == nil && v > 0 {
			maxSize = v
		}
	}

	minSize = max(1, auto/4)
	if c.MinSize != "auto" && c.MinSize != "" {
		if v, err := strconv.Atoi(c.MinSize); err == nil && v > 0 {
			minSize = v
		}
	}

	if minSize > maxSize {
		minSize = maxSize
	}
	return minSize, maxSize
}

// calculateAutoPoolSize derives a pool size from total system RAM.
// Formula: (Total RAM - 2GB reserved) / 500MB per browser instance,
// clamped to [2, 50].
func calculateAutoPoolSize() int {
	v, err := mem.VirtualMemory()
	var totalRAMBytes int64
	if err != nil {
		totalRAMBytes = 8 * 1024 * 1024 * 1024 // 8GB fallback
	} else {
		totalRAMBytes = int64(v.Total)
	}

	reservedBytes := int64(2 * 1024 * 1024 * 1024)
	availableBytes := totalRAMBytes - reservedBytes
	instanceBytes := int64(500 * 1024 * 1024)

	poolSize := int(availableBytes / instanceBytes)
	if poolSize < 2 {
		poolSize = 2
	}
	if poolSize > 50 {
		poolSize = 50
	}
	return poolSize
}
