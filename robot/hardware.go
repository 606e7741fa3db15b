package robot

import (
	"io"

	"github.com/pkg/errors"

	"go.viam.com/hoopbot/components/board"
	"go.viam.com/hoopbot/components/board/genericlinux"
	"go.viam.com/hoopbot/components/motor/dji"
	"go.viam.com/hoopbot/config"
	"go.viam.com/hoopbot/logging"
	"go.viam.com/hoopbot/serial"
	"go.viam.com/hoopbot/utils"
)

// OpenHardware opens every link and line cfg names. Anything that fails to open is logged and
// left nil so New can start the rest of the robot without it.
func OpenHardware(cfg config.Config, logger logging.Logger) *Hardware {
	hw := &Hardware{}

	open := func(name string, opts serial.Options) io.ReadWriteCloser {
		if !opts.Enabled() {
			logger.Infow("serial link not configured", "link", name)
			return nil
		}
		port, err := serial.Open(opts)
		if err != nil {
			logger.Errorw("cannot open serial link", "link", name, "path", opts.Path, "error", err)
			return nil
		}
		hw.Closers = append(hw.Closers, port)
		return port
	}
	// reports go back over the remote link
	if port := open("remote", cfg.Serial.Remote); port != nil {
		hw.Remote, hw.Telemetry = port, port
	}
	if port := open("nuc", cfg.Serial.NUC); port != nil {
		hw.NUC = port
	}
	if port := open("odometry", cfg.Serial.Odometry); port != nil {
		hw.Odometry = port
	}
	if port := open("slave", cfg.Serial.Slave); port != nil {
		hw.Slave = port
	}

	if cfg.Pins.Dribble() {
		if err := openDribblePins(cfg.Pins, hw); err != nil {
			logger.Errorw("cannot open dribble lines", "error", err)
		}
	}
	if cfg.Pins.LED.Chip != "" {
		led, err := genericlinux.NewPin(cfg.Pins.LED, true)
		if err != nil {
			logger.Errorw("cannot open heartbeat led", "error", err)
		} else {
			hw.LED = led
			hw.Closers = append(hw.Closers, led)
		}
	}

	if cfg.CatchMotor.Interface != "" {
		m, err := dji.Open(cfg.CatchMotor, logger.Sublogger("catch_motor"))
		if err != nil {
			logger.Errorw("cannot open catch motor", "interface", cfg.CatchMotor.Interface, "error", err)
		} else {
			hw.CatchMotor = m
			hw.Closers = append(hw.Closers, m)
		}
	}
	return hw
}

// openDribblePins opens the dribble lines as a group; if any line fails none are kept.
func openDribblePins(pins config.PinsConfig, hw *Hardware) (err error) {
	var opened []*genericlinux.Pin
	guard := utils.NewGuard(func() {
		for _, p := range opened {
			//nolint:errcheck
			p.Close()
		}
	})
	defer guard.OnFail()

	line := func(cfg board.PinConfig, output bool, name string) *genericlinux.Pin {
		if err != nil {
			return nil
		}
		var p *genericlinux.Pin
		if p, err = genericlinux.NewPin(cfg, output); err != nil {
			err = errors.Wrap(err, name)
			return nil
		}
		opened = append(opened, p)
		return p
	}
	sensor := func(cfg config.SensorConfig, name string) board.Sensor {
		p := line(cfg.PinConfig, false, name)
		if p == nil {
			return board.Sensor{}
		}
		return board.Sensor{Pin: p, TouchedLevel: cfg.TouchedLevel}
	}

	clamp := line(pins.Clamp, true, "clamp")
	top := line(pins.Top, true, "top")
	push := line(pins.Push, true, "push")
	var presence [config.NumPresenceSensors]board.Sensor
	for i := range presence {
		if i < len(pins.Presence) {
			presence[i] = sensor(pins.Presence[i], "presence")
		}
	}
	out := sensor(pins.ProximityOut, "proximity_out")
	in := sensor(pins.ProximityIn, "proximity_in")
	if err != nil {
		return err
	}

	hw.Clamp, hw.Top, hw.Push = clamp, top, push
	hw.Presence = presence
	hw.ProximityOut, hw.ProximityIn = out, in
	for _, p := range opened {
		hw.Closers = append(hw.Closers, p)
	}
	guard.Success()
	return nil
}
