package config

import (
	"context"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"go.viam.com/hoopbot/control"
	"go.viam.com/hoopbot/logging"
	"go.viam.com/hoopbot/navigation"
	"go.viam.com/hoopbot/pose"
)

// EnvPrefix prefixes the environment variables that override scalar settings, e.g.
// HOOPBOT_SERIAL_REMOTE_PATH.
const EnvPrefix = "HOOPBOT"

func newViper(path string) *viper.Viper {
	v := viper.New()
	def := Default()
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("heartbeat", def.Heartbeat)
	v.SetDefault("slave_period", def.SlavePeriod)
	for name, opts := range map[string]struct {
		path string
		baud int
	}{
		"remote":   {def.Serial.Remote.Path, def.Serial.Remote.BaudRate},
		"nuc":      {def.Serial.NUC.Path, def.Serial.NUC.BaudRate},
		"odometry": {def.Serial.Odometry.Path, def.Serial.Odometry.BaudRate},
		"slave":    {def.Serial.Slave.Path, def.Serial.Slave.BaudRate},
	} {
		v.SetDefault("serial."+name+".path", opts.path)
		v.SetDefault("serial."+name+".baud_rate", opts.baud)
	}
	v.SetDefault("catch_motor.interface", def.CatchMotor.Interface)
	v.SetDefault("catch_motor.id", def.CatchMotor.ID)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	}
	return v
}

// Load reads the config file at path over Default, applies environment overrides and validates
// the result. An empty path loads the defaults.
func Load(path string) (Config, error) {
	v := newViper(path)
	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "reading config file %s", path)
		}
	}
	return decode(v)
}

func decode(v *viper.Viper) (Config, error) {
	cfg := Default()
	if err := v.Unmarshal(&cfg, viper.DecodeHook(DecodeHook()), func(dc *mapstructure.DecoderConfig) {
		dc.ZeroFields = true
	}); err != nil {
		return Config{}, errors.Wrap(err, "decoding config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var (
	locationType = reflect.TypeOf(pose.LocationType(0))
	pointType    = reflect.TypeOf(navigation.PointType(0))
	strategyType = reflect.TypeOf(navigation.Strategy(0))
	pidModeType  = reflect.TypeOf(control.PIDMode(0))
)

// DecodeHook decodes durations written as "100ms" and the named enums (location, point type,
// strategy, PID mode) written by name.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		enumHook,
	)
}

func enumHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String {
		return data, nil
	}
	s, ok := data.(string)
	if !ok {
		return data, nil
	}
	switch to {
	case locationType:
		return pose.LocationTypeFromString(s)
	case pointType:
		return navigation.PointTypeFromString(s)
	case strategyType:
		return navigation.StrategyFromString(s)
	case pidModeType:
		return control.PIDModeFromString(s)
	}
	return data, nil
}

// Watch reloads the config file at path whenever it changes and hands the result to onChange.
// Changes are never applied to a running robot; callers only report them. Watch returns when ctx
// is done.
func Watch(ctx context.Context, path string, logger logging.Logger, onChange func(Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating config watcher")
	}
	//nolint:errcheck
	defer watcher.Close()

	path = filepath.Clean(path)
	// editors replace files on save, so watch the directory
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return errors.Wrapf(err, "watching %s", path)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnw("config watcher error", "error", err)
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				logger.Warnw("changed config is invalid", "path", path, "error", err)
				continue
			}
			onChange(cfg)
		}
	}
}
