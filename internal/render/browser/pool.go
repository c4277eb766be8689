package browser

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Pool is the bounded, autoscaling collection of browser instances. idle is
// a bounded MPMC ring of healthy instances parked between renders;
// currentSize (all pool members, idle + checked-out) is protected
// independently by mu so acquire's scale-up decision never has to hold the
// ring's channel lock.
type Pool struct {
	cfg    *Config
	logger *zap.Logger

	idle chan *Instance

	mu          sync.RWMutex
	currentSize int
	minSize     int
	maxSize     int
	nextID      int

	idleCount       atomic.Int32
	activeCount     atomic.Int32
	temporaryActive atomic.Int32
	totalAcquired   atomic.Int64
	createdAt       time.Time
	shuttingDown    atomic.Bool
}

// NewPool builds a pool pre-warmed to minSize idle instances.
func NewPool(cfg *Config, logger *zap.Logger) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	minSize, maxSize := cfg.CalculateBounds()

	p := &Pool{
		cfg:       cfg,
		logger:    logger,
		idle:      make(chan *Instance, maxSize),
		minSize:   minSize,
		maxSize:   maxSize,
		createdAt: time.Now().UTC(),
	}

	for i := 0; i < minSize; i++ {
		inst, err := NewInstance(p.allocateID(), false, cfg, logger)
		if err != nil {
			p.Shutdown()
			return nil, err
		}
		p.currentSize++
		p.idle <- inst
		p.idleCount.Add(1)
	}

	logger.Info("browser pool initialized",
		zap.Int("min_size", minSize), zap.Int("max_size", maxSize))
	return p, nil
}

func (p *Pool) allocateID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	return id
}

// Acquire tries the idle ring first, drops any instance that fails its
// health probe, then considers scaling up before falling back to a
// temporary overflow instance. Every branch either returns an instance,
// spawns one, or (when the overflow spawn fails twice) returns
// ErrBrowserUnavailable, so Acquire always returns in bounded time.
func (p *Pool) Acquire() (*Instance, error) {
	if p.shuttingDown.Load() {
		return nil, ErrPoolShutdown
	}
	for {
		select {
		case inst := <-p.idle:
			p.idleCount.Add(-1)
			if inst.Probe() {
				p.checkout(inst)
				return inst, nil
			}
			p.dropPoolMember(inst)
			// fall through to scaling consideration on the next loop
			continue
		default:
		}

		if spawned, err := p.tryScaleUp(); err == nil && spawned != nil {
			p.checkout(spawned)
			return spawned, nil
		}

		// Overflow: pool is saturated (or the scale-up attempt failed).
		// Spawn a temporary instance not counted in currentSize.
		inst, err := NewInstance(-1, true, p.cfg, p.logger)
		if err != nil {
			// One retry before giving up: transient spawn failures (e.g. a
			// momentarily exhausted process table) are common enough to be
			// worth a single second attempt.
			inst, err = NewInstance(-1, true, p.cfg, p.logger)
			if err != nil {
				return nil, ErrBrowserUnavailable
			}
		}
		p.temporaryActive.Add(1)
		p.activeCount.Add(1)
		p.totalAcquired.Add(1)
		return inst, nil
	}
}

// tryScaleUp spawns a new pool member when usage = 1 - idle/current >= the
// configured threshold and current_size < max_size. It is a no-op (nil, nil)
// when neither condition holds, signalling the caller to overflow instead.
func (p *Pool) tryScaleUp() (*Instance, error) {
	p.mu.Lock()
	current := p.currentSize
	idle := int(p.idleCount.Load())
	if current >= p.maxSize {
		p.mu.Unlock()
		return nil, nil
	}
	usage := 1.0
	if current > 0 {
		usage = 1.0 - float64(idle)/float64(current)
	}
	if usage < p.cfg.ScaleUsageThreshold {
		p.mu.Unlock()
		return nil, nil
	}
	p.currentSize++
	id := p.nextID
	p.nextID++
	p.mu.Unlock()

	inst, err := NewInstance(id, false, p.cfg, p.logger)
	if err != nil {
		p.mu.Lock()
		p.currentSize--
		p.mu.Unlock()
		return nil, err
	}
	p.logger.Info("browser pool scaled up", zap.Int("instance_id", id), zap.Int("current_size", p.CurrentSize()))
	return inst, nil
}

func (p *Pool) checkout(inst *Instance) {
	inst.SetStatus(StatusActive)
	p.activeCount.Add(1)
	p.totalAcquired.Add(1)
}

// dropPoolMember closes an unhealthy instance and, if it was still a pool
// member, decrements currentSize.
func (p *Pool) dropPoolMember(inst *Instance) {
	inst.Close()
	if !inst.Temporary {
		p.mu.Lock()
		p.currentSize--
		p.mu.Unlock()
	}
}

// Release returns a healthy instance to the idle ring, or drops it. Unhealthy
// instances are always dropped. Healthy temporary (overflow) instances are
// always closed rather than kept, since they exist solely to absorb a burst
// above the pool's normal capacity. Healthy pool members are enqueued unless
// the pool is shutting down or the ring has no space.
func (p *Pool) Release(inst *Instance) {
	inst.IncrementRequests()
	inst.currentRequestID = ""
	p.activeCount.Add(-1)

	healthy := inst.Status() != StatusDead && inst.Probe()

	if inst.Temporary {
		p.temporaryActive.Add(-1)
		inst.Close()
		return
	}

	if !healthy || p.shuttingDown.Load() {
		p.dropPoolMember(inst)
		return
	}

	inst.SetStatus(StatusIdle)
	select {
	case p.idle <- inst:
		p.idleCount.Add(1)
	default:
		// Ring full: drop rather than block or leak.
		p.dropPoolMember(inst)
	}
}

// CurrentSize returns the number of pool members (idle + checked-out),
// excluding temporary overflow instances.
func (p *Pool) CurrentSize() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentSize
}

// Stats returns a point-in-time snapshot of the pool.
func (p *Pool) Stats() Stats {
	p.mu.RLock()
	current := p.currentSize
	p.mu.RUnlock()

	return Stats{
		CurrentSize:     current,
		MaxSize:         p.maxSize,
		MinSize:         p.minSize,
		IdleCount:       int(p.idleCount.Load()),
		ActiveCount:     int(p.activeCount.Load()),
		TotalAcquired:   p.totalAcquired.Load(),
		TemporaryActive: p.temporaryActive.Load(),
		Uptime:          time.Since(p.createdAt),
	}
}

// Shutdown closes every idle pool member. In-flight checked-out instances
// are the caller's responsibility to release first.
func (p *Pool) Shutdown() {
	p.shuttingDown.Store(true)
	for {
		select {
		case inst := <-p.idle:
			p.idleCount.Add(-1)
			inst.Close()
		default:
			return
		}
	}
}
