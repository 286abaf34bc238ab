package hardware

const consumerName = "drowsy-monitor"

// Pins names the GPIO chip and line offsets the monitor drives.
type Pins struct {
	Chip   string
	Buzzer int
	LED    int
	Button int
}

// I2C character device ioctl
const i2cSlave = 0x0703

// PCF8574 backpack bit layout
const (
	pcfRS        = 0x01
	pcfEnable    = 0x04
	pcfBacklight = 0x08
)

// HD44780 instruction set
const (
	lcdClear        = 0x01
	lcdEntryMode    = 0x06 // increment, no shift
	lcdDisplayOn    = 0x0C // display on, cursor off, blink off
	lcdFunction4Bit = 0x28 // 4-bit bus, 2 lines, 5x8 font
	lcdSetDDRAM     = 0x80
)

var lcdRowOffsets = [4]byte{0x00, 0x40, 0x14, 0x54}
