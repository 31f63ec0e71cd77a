// Package transport provides an in-memory duplex byte pipe used to back a
// mock BLE GATT link in tests, without touching real sockets or a real
// Bluetooth stack.
package transport

import (
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// NetworkCondition configures link behavior simulation for a Pipe.
// Use this to exercise session/reconnect behavior under adverse link
// conditions (a dropped notification, a slow write) without a real radio.
type NetworkCondition struct {
	// DropRate is the probability of dropping a write (0.0 - 1.0).
	DropRate float64

	// DelayMin is the minimum delay added to each write.
	DelayMin time.Duration

	// DelayMax is the maximum delay added to each write. Actual delay is
	// uniformly distributed between DelayMin and DelayMax.
	DelayMax time.Duration

	// DuplicateRate is the probability of delivering a write twice.
	DuplicateRate float64
}

// PipeConfig configures a Pipe.
type PipeConfig struct {
	// AutoProcess enables automatic delivery in a background goroutine.
	AutoProcess bool

	// ProcessInterval is how often the auto-processor checks for queued data.
	ProcessInterval time.Duration
}

// DefaultPipeConfig returns the default pipe configuration.
func DefaultPipeConfig() PipeConfig {
	return PipeConfig{
		AutoProcess:     true,
		ProcessInterval: 1 * time.Millisecond,
	}
}

// Pipe provides bidirectional in-memory byte-stream communication between
// two endpoints. It wraps pion's test.Bridge and adds link condition
// simulation, standing in for the host→device / device→host GATT
// characteristic pair in tests.
type Pipe struct {
	bridge *test.Bridge

	mu              sync.RWMutex
	condition       NetworkCondition
	closed          bool
	rng             *rand.Rand
	autoProcess     bool
	processInterval time.Duration
	stopCh          chan struct{}
	wg              sync.WaitGroup
}

// NewPipe creates a new bidirectional pipe with auto-processing enabled.
func NewPipe() *Pipe {
	return NewPipeWithConfig(DefaultPipeConfig())
}

// NewPipeWithConfig creates a pipe with the given configuration.
func NewPipeWithConfig(config PipeConfig) *Pipe {
	p := &Pipe{
		bridge:          test.NewBridge(),
		rng:             rand.New(rand.NewSource(1)),
		autoProcess:     config.AutoProcess,
		processInterval: config.ProcessInterval,
		stopCh:          make(chan struct{}),
	}

	if p.processInterval == 0 {
		p.processInterval = 1 * time.Millisecond
	}

	if p.autoProcess {
		p.startAutoProcess()
	}

	return p
}

func (p *Pipe) startAutoProcess() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.processInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.bridge.Tick()
			}
		}
	}()
}

// SetCondition configures link condition simulation. Applies to both
// directions.
func (p *Pipe) SetCondition(cond NetworkCondition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.condition = cond
}

// Condition returns the current link condition configuration.
func (p *Pipe) Condition() NetworkCondition {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.condition
}

// HostConn returns the connection representing the host side of the link
// (the side a DeviceSession writes commands to and reads notifications
// from).
func (p *Pipe) HostConn() net.Conn {
	return &condConn{Conn: p.bridge.GetConn0(), p: p}
}

// PeripheralConn returns the connection representing the simulated
// peripheral side of the link (what a fake device implementation drives).
func (p *Pipe) PeripheralConn() net.Conn {
	return &condConn{Conn: p.bridge.GetConn1(), p: p}
}

// Tick delivers one queued write in each direction, if available.
func (p *Pipe) Tick() int {
	return p.bridge.Tick()
}

// Process delivers all queued writes.
func (p *Pipe) Process() int {
	count := 0
	for {
		n := p.Tick()
		if n == 0 {
			break
		}
		count += n
	}
	return count
}

// Close closes both endpoints and stops auto-processing.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.autoProcess {
		close(p.stopCh)
	}
	p.mu.Unlock()

	p.wg.Wait()

	var first error
	if err := p.bridge.GetConn0().Close(); err != nil {
		first = err
	}
	if err := p.bridge.GetConn1().Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// condConn wraps one end of the bridge to apply NetworkCondition to writes
// flowing in that direction.
type condConn struct {
	net.Conn
	p *Pipe
}

func (c *condConn) Write(b []byte) (int, error) {
	c.p.mu.RLock()
	cond := c.p.condition
	rng := c.p.rng
	c.p.mu.RUnlock()

	if cond.DropRate > 0 && rng.Float64() < cond.DropRate {
		return len(b), nil
	}

	if cond.DelayMax > 0 {
		delay := cond.DelayMin
		if cond.DelayMax > cond.DelayMin {
			delay += time.Duration(rng.Int63n(int64(cond.DelayMax - cond.DelayMin)))
		}
		if delay > 0 {
			time.Sleep(delay)
		}
	}

	if cond.DuplicateRate > 0 && rng.Float64() < cond.DuplicateRate {
		if _, err := c.Conn.Write(b); err != nil {
			return 0, err
		}
	}

	return c.Conn.Write(b)
}
