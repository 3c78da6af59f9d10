package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/bryanchriswhite/pulsecore/internal/logger"
)

// ErrSidecarStopped is returned by Initial once the sidecar has given up.
var ErrSidecarStopped = errors.New("telemetry: sidecar stopped")

const (
	sidecarMaxRetries = 2
	sidecarRetryDelay = 2 * time.Second
	maxLineBytes      = 1 << 20
)

// sidecarLine is one line of sidecar output. Kind is "bootstrap" or
// "snapshot".
type sidecarLine struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Sidecar runs an external sampler that writes one JSON object per line
// on stdout. A crashed sampler is restarted a limited number of times.
type Sidecar struct {
	command    []string
	retryDelay time.Duration

	mu        sync.Mutex
	bootstrap *Bootstrap
	latest    Snapshot
	subs      map[int]func(Snapshot)
	nextID    int
	cancel    context.CancelFunc

	ready     chan struct{}
	readyOnce sync.Once
	stopped   chan struct{}
}

// NewSidecar prepares a sidecar for command (program and arguments).
func NewSidecar(command ...string) *Sidecar {
	return &Sidecar{
		command:    command,
		retryDelay: sidecarRetryDelay,
		latest:     EmptySnapshot(),
		subs:       make(map[int]func(Snapshot)),
		ready:      make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// Start launches the sampler in the background. Later calls are no-ops.
func (s *Sidecar) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
}

// Stop terminates the sampler.
func (s *Sidecar) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sidecar) run(ctx context.Context) {
	log := logger.WithComponent("telemetry")
	defer close(s.stopped)
	if len(s.command) == 0 {
		log.Warn().Msg("No telemetry command configured")
		return
	}

	for i := 0; ; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.retryDelay):
			}
		}
		if ctx.Err() != nil {
			return
		}

		log.Info().Str("command", s.command[0]).Int("attempt", i+1).Msg("Starting telemetry sidecar")
		cmd := exec.CommandContext(ctx, s.command[0], s.command[1:]...)
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			log.Error().Err(err).Msg("Failed to create sidecar stdout pipe")
			continue
		}
		if err := cmd.Start(); err != nil {
			log.Error().Err(err).Msg("Failed to start telemetry sidecar")
		} else {
			s.readOutput(stdout)
			err = cmd.Wait()
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("Telemetry sidecar exited")
		}

		if i >= sidecarMaxRetries-1 {
			log.Error().Msg("Telemetry sidecar failed repeatedly, giving up")
			return
		}
	}
}

func (s *Sidecar) readOutput(r io.Reader) {
	log := logger.WithComponent("telemetry")
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := s.handleLine(scanner.Bytes()); err != nil {
			log.Debug().Err(err).Msg("Skipping sidecar line")
		}
	}
	if err := scanner.Err(); err != nil {
		log.Debug().Err(err).Msg("Sidecar output ended")
	}
}

func (s *Sidecar) handleLine(b []byte) error {
	var line sidecarLine
	if err := json.Unmarshal(b, &line); err != nil {
		return fmt.Errorf("decode line: %w", err)
	}
	switch line.Kind {
	case "bootstrap":
		var boot Bootstrap
		if err := json.Unmarshal(line.Data, &boot); err != nil {
			return fmt.Errorf("decode bootstrap: %w", err)
		}
		s.mu.Lock()
		s.bootstrap = &boot
		if !boot.LatestSnapshot.Timestamp.IsZero() {
			s.latest = boot.LatestSnapshot
		}
		s.mu.Unlock()
		s.readyOnce.Do(func() { close(s.ready) })
	case "snapshot":
		var snap Snapshot
		if err := json.Unmarshal(line.Data, &snap); err != nil {
			return fmt.Errorf("decode snapshot: %w", err)
		}
		s.publish(snap)
	default:
		return fmt.Errorf("unknown kind %q", line.Kind)
	}
	return nil
}

func (s *Sidecar) publish(snap Snapshot) {
	s.mu.Lock()
	s.latest = snap
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

// Initial waits for the sampler's bootstrap line.
func (s *Sidecar) Initial(ctx context.Context) (Bootstrap, error) {
	select {
	case <-s.ready:
	case <-s.stopped:
		select {
		case <-s.ready:
		default:
			return Bootstrap{}, ErrSidecarStopped
		}
	case <-ctx.Done():
		return Bootstrap{}, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	boot := *s.bootstrap
	boot.LatestSnapshot = s.latest
	return boot, nil
}

func (s *Sidecar) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Static is a Source with a fixed bootstrap and no updates.
type Static struct {
	Bootstrap Bootstrap
	Err       error
}

func (s Static) Initial(context.Context) (Bootstrap, error) {
	if s.Err != nil {
		return Bootstrap{}, s.Err
	}
	return s.Bootstrap, nil
}

func (Static) Subscribe(func(Snapshot)) func() { return func() {} }
