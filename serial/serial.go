// Package serial opens the UART links to the remote receiver, the vision computer, the odometry
// board and the slave board.
package serial

import (
	"io"
	"time"

	"github.com/pkg/errors"
	ser "go.bug.st/serial"
)

// Parity describes a serial port parity setting.
type Parity int

const (
	// NoParity disables parity control (default).
	NoParity Parity = iota
	// OddParity enables odd-parity check.
	OddParity
	// EvenParity enables even-parity check.
	EvenParity
)

// Options to be passed to Open, closely mirrors go.bug.st/serial's Mode.
type Options struct {
	Path     string `mapstructure:"path" json:"path"`
	BaudRate int    `mapstructure:"baud_rate" json:"baud_rate"`
	DataBits int    `mapstructure:"data_bits" json:"data_bits"`
	Parity   Parity `mapstructure:"parity" json:"parity"`
	// ReadTimeout of zero blocks reads until data arrives or the port is closed.
	ReadTimeout time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
}

// Enabled reports whether a device path is configured.
func (o Options) Enabled() bool {
	return o.Path != ""
}

// Validate checks the options of an enabled link.
func (o Options) Validate(name string) error {
	if !o.Enabled() {
		return nil
	}
	if o.BaudRate <= 0 {
		return errors.Errorf("serial %s: baud_rate must be positive", name)
	}
	if o.DataBits != 0 && (o.DataBits < 5 || o.DataBits > 8) {
		return errors.Errorf("serial %s: data_bits must be between 5 and 8", name)
	}
	if o.Parity < NoParity || o.Parity > EvenParity {
		return errors.Errorf("serial %s: unknown parity %d", name, o.Parity)
	}
	return nil
}

// Open attempts to open a serial device. It's a variable so tests and the simulator can
// replace it.
var Open = func(options Options) (io.ReadWriteCloser, error) {
	dataBits := options.DataBits
	if dataBits == 0 {
		dataBits = 8
	}
	mode := &ser.Mode{
		BaudRate: options.BaudRate,
		Parity:   toParity(options.Parity),
		DataBits: dataBits,
		StopBits: ser.OneStopBit,
	}

	device, err := ser.Open(options.Path, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", options.Path)
	}
	if options.ReadTimeout > 0 {
		if err := device.SetReadTimeout(options.ReadTimeout); err != nil {
			return nil, errors.Wrapf(err, "setting read timeout on %s", options.Path)
		}
	}
	return device, nil
}

func toParity(p Parity) ser.Parity {
	switch p {
	case OddParity:
		return ser.OddParity
	case EvenParity:
		return ser.EvenParity
	default:
		return ser.NoParity
	}
}

// ListPorts returns the serial devices present on the system.
func ListPorts() ([]string, error) {
	return ser.GetPortsList()
}
