package hardware

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"drowsy-monitor/internal/logger"
)

// bus is a write-only I2C target.
type bus interface {
	Write(p []byte) (int, error)
	Close() error
}

type i2cDevice struct {
	fd int
}

func openI2C(busNum int, addr uint16) (*i2cDevice, error) {
	path := fmt.Sprintf("/dev/i2c-%d", busNum)
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if err := unix.IoctlSetInt(fd, i2cSlave, int(addr)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to select I2C address 0x%02x: %w", addr, err)
	}
	return &i2cDevice{fd: fd}, nil
}

func (d *i2cDevice) Write(p []byte) (int, error) {
	return unix.Write(d.fd, p)
}

func (d *i2cDevice) Close() error {
	return unix.Close(d.fd)
}

// LCD is an HD44780 character display behind a PCF8574 I2C backpack,
// driven in 4-bit mode.
type LCD struct {
	logger *logger.Logger
	bus    bus
	cols   int
	rows   int
	sleep  func(time.Duration)
	mu     sync.Mutex
}

// OpenLCD opens the I2C bus and runs the controller init sequence.
func OpenLCD(busNum int, addr uint16, cols, rows int, l *logger.Logger) (*LCD, error) {
	dev, err := openI2C(busNum, addr)
	if err != nil {
		return nil, err
	}
	lcd := newLCD(dev, cols, rows, l)
	if err := lcd.init(); err != nil {
		dev.Close()
		return nil, err
	}
	lcd.logger.Infof("LCD %dx%d ready on i2c-%d@0x%02x", cols, rows, busNum, addr)
	return lcd, nil
}

func newLCD(b bus, cols, rows int, l *logger.Logger) *LCD {
	if rows > len(lcdRowOffsets) {
		rows = len(lcdRowOffsets)
	}
	return &LCD{
		logger: l.WithTag("LCD"),
		bus:    b,
		cols:   cols,
		rows:   rows,
		sleep:  time.Sleep,
	}
}

func (d *LCD) init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.sleep(50 * time.Millisecond)

	// reset into 8-bit mode three times, then switch to 4-bit
	for _, wait := range []time.Duration{4500 * time.Microsecond, 150 * time.Microsecond, 150 * time.Microsecond} {
		if err := d.writeNibble(0x30, 0); err != nil {
			return fmt.Errorf("lcd reset: %w", err)
		}
		d.sleep(wait)
	}
	if err := d.writeNibble(0x20, 0); err != nil {
		return fmt.Errorf("lcd 4-bit mode: %w", err)
	}

	for _, cmd := range []byte{lcdFunction4Bit, lcdDisplayOn, lcdClear, lcdEntryMode} {
		if err := d.command(cmd); err != nil {
			return fmt.Errorf("lcd init command 0x%02x: %w", cmd, err)
		}
	}
	return nil
}

// Write replaces the whole screen. Missing lines are blanked, long lines
// are cut at the display width.
func (d *LCD) Write(lines []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for row := 0; row < d.rows; row++ {
		text := ""
		if row < len(lines) {
			text = lines[row]
		}
		if err := d.command(lcdSetDDRAM | lcdRowOffsets[row]); err != nil {
			return fmt.Errorf("lcd row %d: %w", row, err)
		}
		for _, c := range []byte(fitLine(text, d.cols)) {
			if err := d.writeByte(c, pcfRS); err != nil {
				return fmt.Errorf("lcd row %d: %w", row, err)
			}
		}
	}
	return nil
}

// Close blanks the display and releases the bus.
func (d *LCD) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.command(lcdClear); err != nil {
		d.logger.Warnf("Failed to clear display: %v", err)
	}
	if _, err := d.bus.Write([]byte{0}); err != nil {
		d.logger.Warnf("Failed to switch backlight off: %v", err)
	}
	return d.bus.Close()
}

func (d *LCD) command(cmd byte) error {
	if err := d.writeByte(cmd, 0); err != nil {
		return err
	}
	if cmd == lcdClear {
		d.sleep(2 * time.Millisecond)
	}
	return nil
}

func (d *LCD) writeByte(b byte, mode byte) error {
	high := mode | (b & 0xF0) | pcfBacklight
	low := mode | ((b << 4) & 0xF0) | pcfBacklight
	_, err := d.bus.Write([]byte{high | pcfEnable, high, low | pcfEnable, low})
	return err
}

func (d *LCD) writeNibble(n byte, mode byte) error {
	v := mode | (n & 0xF0) | pcfBacklight
	_, err := d.bus.Write([]byte{v | pcfEnable, v})
	return err
}

// fitLine pads or truncates s to width; the controller ROM only has ASCII.
func fitLine(s string, width int) string {
	var b strings.Builder
	for _, r := range s {
		if b.Len() == width {
			break
		}
		if r < 0x20 || r > 0x7E {
			r = '?'
		}
		b.WriteRune(r)
	}
	for b.Len() < width {
		b.WriteByte(' ')
	}
	return b.String()
}
