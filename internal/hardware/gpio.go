package hardware

import (
	"errors"
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"

	"drowsy-monitor/internal/logger"
)

var ErrNotInitialized = errors.New("gpio not initialized")

// line is the part of *gpiocdev.Line the monitor uses.
type line interface {
	SetValue(value int) error
	Value() (int, error)
	Close() error
}

// GPIO drives the buzzer and LED outputs and reads the push-button input on
// a single gpiochip.
type GPIO struct {
	logger *logger.Logger
	pins   Pins
	chip   *gpiocdev.Chip
	buzzer line
	led    line
	button line
	mu     sync.Mutex
}

func NewGPIO(pins Pins, l *logger.Logger) *GPIO {
	return &GPIO{
		logger: l.WithTag("GPIO"),
		pins:   pins,
	}
}

// Initialize requests the lines. Outputs start low; the button is an input
// with the internal pull-up enabled.
func (g *GPIO) Initialize() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.logger.Infof("Initializing %s", g.pins.Chip)

	chip, err := gpiocdev.NewChip(g.pins.Chip, gpiocdev.WithConsumer(consumerName))
	if err != nil {
		return fmt.Errorf("failed to open GPIO chip %s: %w", g.pins.Chip, err)
	}
	g.chip = chip

	buzzer, err := chip.RequestLine(g.pins.Buzzer, gpiocdev.AsOutput(0))
	if err != nil {
		g.closeLocked()
		return fmt.Errorf("failed to request buzzer line %d: %w", g.pins.Buzzer, err)
	}
	g.buzzer = buzzer
	g.logger.Infof("Configured buzzer: line=%d", g.pins.Buzzer)

	led, err := chip.RequestLine(g.pins.LED, gpiocdev.AsOutput(0))
	if err != nil {
		g.closeLocked()
		return fmt.Errorf("failed to request LED line %d: %w", g.pins.LED, err)
	}
	g.led = led
	g.logger.Infof("Configured LED: line=%d", g.pins.LED)

	button, err := chip.RequestLine(g.pins.Button, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		g.closeLocked()
		return fmt.Errorf("failed to request button line %d: %w", g.pins.Button, err)
	}
	g.button = button
	g.logger.Infof("Configured button: line=%d (pull-up)", g.pins.Button)

	return nil
}

func (g *GPIO) SetBuzzer(on bool) error {
	return g.set("buzzer", func() line { return g.buzzer }, on)
}

func (g *GPIO) SetLED(on bool) error {
	return g.set("LED", func() line { return g.led }, on)
}

// Level reads the raw button line; true is high (released).
func (g *GPIO) Level() (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.button == nil {
		return true, ErrNotInitialized
	}
	v, err := g.button.Value()
	if err != nil {
		return true, fmt.Errorf("failed to read button: %w", err)
	}
	return v != 0, nil
}

// Cleanup drives both outputs low and releases every line.
func (g *GPIO) Cleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.logger.Infof("Cleaning up GPIO")
	for _, out := range []line{g.buzzer, g.led} {
		if out != nil {
			_ = out.SetValue(0)
		}
	}
	g.closeLocked()
}

func (g *GPIO) set(name string, get func() line, on bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := get()
	if out == nil {
		return ErrNotInitialized
	}
	val := 0
	if on {
		val = 1
	}
	if err := out.SetValue(val); err != nil {
		return fmt.Errorf("failed to set %s=%v: %w", name, on, err)
	}
	g.logger.Debugf("Set %s=%v", name, on)
	return nil
}

func (g *GPIO) closeLocked() {
	for _, l := range []line{g.buzzer, g.led, g.button} {
		if l != nil {
			l.Close()
		}
	}
	g.buzzer, g.led, g.button = nil, nil, nil

	if g.chip != nil {
		g.chip.Close()
		g.chip = nil
	}
}
