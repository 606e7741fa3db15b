// Package config defines the robot configuration and how it is loaded.
//
// Every field has a default taken from the competition robot, so a config file only needs to
// name what differs. Lists and maps in a file replace the default list or map as a whole; nested
// structs are merged field by field.
package config

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/hoopbot/components/board"
	"go.viam.com/hoopbot/components/motor/dji"
	"go.viam.com/hoopbot/components/slavelink"
	"go.viam.com/hoopbot/control"
	"go.viam.com/hoopbot/logging"
	"go.viam.com/hoopbot/navigation"
	"go.viam.com/hoopbot/pose"
	"go.viam.com/hoopbot/serial"
	"go.viam.com/hoopbot/services/chassis"
	"go.viam.com/hoopbot/services/dribble"
	"go.viam.com/hoopbot/services/orchestrator"
	"go.viam.com/hoopbot/services/shooter"
)

// NumPresenceSensors is how many photoelectric switches watch the dribble clamp.
const NumPresenceSensors = 3

// Config is the complete robot configuration.
type Config struct {
	LogLevel string `mapstructure:"log_level" json:"log_level"`

	Serial     SerialConfig `mapstructure:"serial" json:"serial"`
	Pins       PinsConfig   `mapstructure:"pins" json:"pins"`
	CatchMotor dji.Config   `mapstructure:"catch_motor" json:"catch_motor"`

	// Heartbeat is the minimum interval between LED toggles while remote frames arrive.
	Heartbeat time.Duration `mapstructure:"heartbeat" json:"heartbeat"`
	// SlavePeriod is how often the slave board state is published.
	SlavePeriod time.Duration `mapstructure:"slave_period" json:"slave_period"`

	Navigation   NavigationConfig    `mapstructure:"navigation" json:"navigation"`
	Chassis      chassis.Config      `mapstructure:"chassis" json:"chassis"`
	Dribble      dribble.Config      `mapstructure:"dribble" json:"dribble"`
	Shooter      shooter.Config      `mapstructure:"shooter" json:"shooter"`
	Orchestrator orchestrator.Config `mapstructure:"orchestrator" json:"orchestrator"`
}

// SerialConfig holds the UART links. A link without a path is not opened.
type SerialConfig struct {
	Remote   serial.Options `mapstructure:"remote" json:"remote"`
	NUC      serial.Options `mapstructure:"nuc" json:"nuc"`
	Odometry serial.Options `mapstructure:"odometry" json:"odometry"`
	Slave    serial.Options `mapstructure:"slave" json:"slave"`
}

// SensorConfig is a discrete switch on a GPIO line.
type SensorConfig struct {
	board.PinConfig `mapstructure:",squash"`
	// TouchedLevel is the line level read while the switch is triggered.
	TouchedLevel bool `mapstructure:"touched_level" json:"touched_level"`
}

// PinsConfig locates the dribble mechanism lines and the heartbeat LED.
type PinsConfig struct {
	Clamp board.PinConfig `mapstructure:"clamp" json:"clamp"`
	Top   board.PinConfig `mapstructure:"top" json:"top"`
	Push  board.PinConfig `mapstructure:"push" json:"push"`

	Presence     []SensorConfig `mapstructure:"presence" json:"presence"`
	ProximityOut SensorConfig   `mapstructure:"proximity_out" json:"proximity_out"`
	ProximityIn  SensorConfig   `mapstructure:"proximity_in" json:"proximity_in"`

	// LED is optional.
	LED board.PinConfig `mapstructure:"led" json:"led"`
}

// Dribble reports whether the dribble lines are configured at all.
func (p PinsConfig) Dribble() bool {
	return p.Clamp.Chip != ""
}

// Validate checks the dribble lines when any are configured.
func (p PinsConfig) Validate(path string) error {
	if !p.Dribble() {
		return nil
	}
	var errs error
	errs = multierr.Append(errs, p.Clamp.Validate(path+".clamp"))
	errs = multierr.Append(errs, p.Top.Validate(path+".top"))
	errs = multierr.Append(errs, p.Push.Validate(path+".push"))
	if len(p.Presence) != NumPresenceSensors {
		errs = multierr.Append(errs, errors.Errorf("%s: need %d presence sensors, got %d",
			path, NumPresenceSensors, len(p.Presence)))
	}
	for i, s := range p.Presence {
		errs = multierr.Append(errs, s.Validate(fmt.Sprintf("%s.presence[%d]", path, i)))
	}
	errs = multierr.Append(errs, p.ProximityOut.Validate(path+".proximity_out"))
	errs = multierr.Append(errs, p.ProximityIn.Validate(path+".proximity_in"))
	return errs
}

// NavigationConfig holds the channels of the navigation engine, keyed by point type name.
type NavigationConfig struct {
	Channels     map[string]navigation.ChannelConfig `mapstructure:"channels" json:"channels"`
	Compensation navigation.Compensation             `mapstructure:"compensation" json:"compensation"`
	Ring         navigation.RingConfig               `mapstructure:"ring" json:"ring"`
}

// ChannelMap returns the channels keyed by point type.
func (n NavigationConfig) ChannelMap() (map[navigation.PointType]navigation.ChannelConfig, error) {
	out := make(map[navigation.PointType]navigation.ChannelConfig, len(n.Channels))
	for name, ch := range n.Channels {
		pt, err := navigation.PointTypeFromString(name)
		if err != nil {
			return nil, err
		}
		out[pt] = ch
	}
	return out, nil
}

// Validate returns every problem with the navigation config combined.
func (n NavigationConfig) Validate(path string) error {
	var errs error
	if len(n.Channels) == 0 {
		errs = multierr.Append(errs, errors.Errorf("%s: no channels configured", path))
	}
	for name, ch := range n.Channels {
		chPath := path + ".channels." + name
		if _, err := navigation.PointTypeFromString(name); err != nil {
			errs = multierr.Append(errs, errors.Wrap(err, chPath))
		}
		errs = multierr.Append(errs, ch.Speed.Validate(chPath+".speed"))
		errs = multierr.Append(errs, ch.Angle.Validate(chPath+".angle"))
		if ch.DistanceDeadband < 0 || ch.AngleDeadband < 0 {
			errs = multierr.Append(errs, errors.Errorf("%s: deadbands must not be negative", chPath))
		}
	}
	if err := n.Ring.Validate(); err != nil {
		errs = multierr.Append(errs, errors.Wrap(err, path))
	}
	return errs
}

// Default returns the configuration the robot competed with. Serial paths, pins and the catch
// motor are left unset.
func Default() Config {
	flatSpeed := control.NewPIDConfig(3000, 1000, 0, 50000, control.PositionPID, 1.5, 0.1, 0)
	flatAngle := control.NewPIDConfig(500, 15, 0, 180, control.PositionPID, 1.5, 0.01, 0.5)
	flat := func(pt navigation.PointType) navigation.ChannelConfig {
		return navigation.ChannelConfig{
			Location:         pose.LocationNUC,
			Speed:            flatSpeed,
			Angle:            flatAngle,
			DistanceDeadband: 3,
			AngleDeadband:    0.5,
			Strategy:         navigation.DefaultStrategy(pt),
		}
	}

	return Config{
		LogLevel: "info",
		Serial: SerialConfig{
			Remote:   serial.Options{BaudRate: 115200},
			NUC:      serial.Options{BaudRate: 115200},
			Odometry: serial.Options{BaudRate: 115200},
			Slave:    serial.Options{BaudRate: 115200},
		},
		Heartbeat:   500 * time.Millisecond,
		SlavePeriod: slavelink.DefaultPeriod,
		Navigation: NavigationConfig{
			Channels: map[string]navigation.ChannelConfig{
				navigation.PointFlat.String(): flat(navigation.PointFlat),
				navigation.PointRing.String(): {
					Location:         pose.LocationNUC,
					Speed:            control.NewPIDConfig(500, 250, 0, 50000, control.PositionPID, 0.3, 0.1, 0),
					Angle:            control.NewPIDConfig(200, 8, 0, 500, control.PositionPID, 32, 0, 20),
					DistanceDeadband: 20,
					AngleDeadband:    0.5,
				},
				navigation.PointLoadBall.String(): {
					Location:         pose.LocationNUC,
					Speed:            control.NewPIDConfig(5000, 250, 0, 50000, control.PositionPID, 15, 5, 0),
					Angle:            control.NewPIDConfig(1000, 250, 0, 50000, control.PositionPID, 5, 0.5, 0),
					DistanceDeadband: 20,
					AngleDeadband:    0.5,
				},
				navigation.PointLinear.String():       flat(navigation.PointLinear),
				navigation.PointAxisSequence.String(): flat(navigation.PointAxisSequence),
			},
			Compensation: navigation.DefaultCompensation,
			Ring:         navigation.DefaultRingConfig(),
		},
		Chassis:      chassis.DefaultConfig(),
		Dribble:      dribble.DefaultConfig(),
		Shooter:      shooter.DefaultConfig(),
		Orchestrator: orchestrator.DefaultConfig(),
	}
}

// Validate returns every problem with the config combined.
func (c Config) Validate() error {
	var errs error
	if _, err := logging.LevelFromString(c.LogLevel); err != nil {
		errs = multierr.Append(errs, errors.Wrap(err, "log_level"))
	}
	errs = multierr.Append(errs, c.Serial.Remote.Validate("remote"))
	errs = multierr.Append(errs, c.Serial.NUC.Validate("nuc"))
	errs = multierr.Append(errs, c.Serial.Odometry.Validate("odometry"))
	errs = multierr.Append(errs, c.Serial.Slave.Validate("slave"))
	errs = multierr.Append(errs, c.Pins.Validate("pins"))
	if c.CatchMotor.Interface != "" {
		errs = multierr.Append(errs, c.CatchMotor.Validate("catch_motor"))
	}
	if c.Heartbeat < 0 {
		errs = multierr.Append(errs, errors.New("heartbeat must not be negative"))
	}
	if c.SlavePeriod <= 0 {
		errs = multierr.Append(errs, errors.New("slave_period must be positive"))
	}
	errs = multierr.Append(errs, c.Navigation.Validate("navigation"))
	errs = multierr.Append(errs, c.Chassis.Validate("chassis"))
	errs = multierr.Append(errs, c.Dribble.Validate("dribble"))
	errs = multierr.Append(errs, c.Shooter.Validate("shooter"))
	errs = multierr.Append(errs, c.Orchestrator.Validate("orchestrator"))
	return errs
}
