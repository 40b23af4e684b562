package ptt

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// GPIODriver keys a real Push-To-Talk line through the Linux GPIO
// character-device ABI. Grounded on original_source/app/ptt/controller.py's
// GPIOPTTController: inactive_level = 1 - active_level, the line is
// requested already at the inactive level (never floating/active at
// startup), and Cleanup forces inactive before releasing the line.
//
// go-gpiocdev (sourced from doismellburning-samoyed's go.mod) targets the
// modern /dev/gpiochipN chardev interface rather than the deprecated
// /sys/class/gpio sysfs tree the original's RPi.GPIO binding used — sysfs
// GPIO has been removed from recent kernels entirely, so the chardev ABI
// is the only viable choice on current Raspberry Pi OS images.
type GPIODriver struct {
	chip         string
	offset       int
	activeLevel  int
	inactiveLevel int

	mu   sync.Mutex
	line *gpiocdev.Line
}

// NewGPIODriver requests the line at the inactive level immediately,
// matching the original's `initial=inactive_level` request — the pin is
// never left floating or active between process start and the first
// transmission.
func NewGPIODriver(chip string, offset, activeLevel int) (*GPIODriver, error) {
	inactive := 1 - activeLevel

	line, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsOutput(inactive),
		gpiocdev.WithConsumer("vhf-runnerd"),
	)
	if err != nil {
		return nil, fmt.Errorf("ptt: request gpio line %s:%d: %w", chip, offset, err)
	}

	return &GPIODriver{
		chip: chip, offset: offset,
		activeLevel: activeLevel, inactiveLevel: inactive,
		line: line,
	}, nil
}

func (d *GPIODriver) Set(active bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	level := d.inactiveLevel
	if active {
		level = d.activeLevel
	}
	if err := d.line.SetValue(level); err != nil {
		return fmt.Errorf("ptt: set gpio %s:%d to %d: %w", d.chip, d.offset, level, err)
	}
	return nil
}

// Cleanup forces the line inactive, then releases the chardev handle —
// the original's cleanup() calls set_ptt(False) before GPIO.cleanup(pin).
// Idempotent: calling Cleanup after the line has already been released
// is a no-op, not an error.
func (d *GPIODriver) Cleanup() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.line == nil {
		return nil
	}
	setErr := d.line.SetValue(d.inactiveLevel)
	closeErr := d.line.Close()
	d.line = nil

	if setErr != nil {
		return fmt.Errorf("ptt: force inactive during cleanup: %w", setErr)
	}
	if closeErr != nil {
		return fmt.Errorf("ptt: close gpio line: %w", closeErr)
	}
	return nil
}
