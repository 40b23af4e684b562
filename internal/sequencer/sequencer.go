// Package sequencer implements the fail-safe transmission procedure:
// acquire the exclusive radio, key PTT, play audio, release — with a
// watchdog guaranteeing PTT is never left asserted regardless of how the
// procedure exits (spec.md §4.7).
package sequencer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vhfbalise/runner/internal/ptt"
)

// Sequencer serializes every transmission on a single process-wide mutex.
// Cross-process exclusivity is a separate concern, enforced by the PID
// lock (internal/runner).
type Sequencer struct {
	driver ptt.Driver
	log    zerolog.Logger

	txMu sync.Mutex
}

func New(driver ptt.Driver, log zerolog.Logger) *Sequencer {
	return &Sequencer{driver: driver, log: log}
}

// ErrLockTimeout is returned when the TX mutex could not be acquired
// within timeoutSeconds — the PTTError category from spec §7.
var ErrLockTimeout = fmt.Errorf("sequencer: timed out acquiring transmission lock")

// Transmit runs the five-step procedure from spec.md §4.7. The one
// invariant that matters: the PTT line is never left active after
// Transmit returns, on any exit path.
func (s *Sequencer) Transmit(ctx context.Context, audioPath string, leadMS, tailMS, timeoutSeconds int) error {
	if _, err := os.Stat(audioPath); err != nil {
		return fmt.Errorf("sequencer: audio file missing: %w", err)
	}

	timeout := time.Duration(timeoutSeconds) * time.Second
	if !s.acquire(timeout) {
		return ErrLockTimeout
	}
	defer s.txMu.Unlock()

	watchdogDone := make(chan struct{})
	watchdogFired := make(chan struct{})
	go s.watchdog(timeout, watchdogDone, watchdogFired)

	err := s.guardedTransmit(ctx, audioPath, leadMS, tailMS)

	// Disarm the watchdog and, regardless of what the guarded region did,
	// force the line inactive one more time — belt and suspenders against
	// any path that returned without going through the deferred Set(false)
	// inside guardedTransmit (spec §4.7 step 5: "on any path out of step
	// 4, set(false)").
	close(watchdogDone)
	if setErr := s.driver.Set(false); setErr != nil && err == nil {
		err = fmt.Errorf("sequencer: force ptt inactive after transmit: %w", setErr)
	}

	select {
	case <-watchdogFired:
		s.log.Error().Msg("watchdog forced PTT inactive: transmission exceeded timeout")
		if err == nil {
			err = fmt.Errorf("sequencer: transmission exceeded %s timeout, watchdog engaged", timeout)
		}
	default:
	}

	return err
}

// acquire takes the TX mutex, but gives up after timeout rather than
// blocking forever — spec §4.7 step 2: "failure to acquire -> PTTError".
func (s *Sequencer) acquire(timeout time.Duration) bool {
	acquired := make(chan struct{})
	go func() {
		s.txMu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return true
	case <-time.After(timeout):
		return false
	}
}

// watchdog unconditionally drives PTT inactive after timeout elapses,
// unless done is closed first. This is the backstop for a hung audio
// player or any other runaway step inside the guarded region.
func (s *Sequencer) watchdog(timeout time.Duration, done <-chan struct{}, fired chan<- struct{}) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return
	case <-timer.C:
		_ = s.driver.Set(false)
		close(fired)
	}
}

func (s *Sequencer) guardedTransmit(ctx context.Context, audioPath string, leadMS, tailMS int) (err error) {
	if setErr := s.driver.Set(true); setErr != nil {
		return fmt.Errorf("sequencer: key ptt: %w", setErr)
	}
	defer func() {
		if setErr := s.driver.Set(false); setErr != nil && err == nil {
			err = fmt.Errorf("sequencer: release ptt: %w", setErr)
		}
	}()

	time.Sleep(time.Duration(leadMS) * time.Millisecond)

	if playErr := playAudio(ctx, audioPath); playErr != nil {
		return fmt.Errorf("sequencer: play audio: %w", playErr)
	}

	time.Sleep(time.Duration(tailMS) * time.Millisecond)
	return nil
}

// playAudio spawns aplay and falls back to paplay on a non-zero exit,
// matching spec.md §6's "External processes aplay then paplay, each
// invoked with a single filename argument; success is exit-code 0." A
// package variable so tests can substitute a fake player without a real
// audio device.
var playAudio = func(ctx context.Context, audioPath string) error {
	if err := exec.CommandContext(ctx, "aplay", audioPath).Run(); err == nil {
		return nil
	}
	if err := exec.CommandContext(ctx, "paplay", audioPath).Run(); err != nil {
		return fmt.Errorf("both aplay and paplay failed: %w", err)
	}
	return nil
}
