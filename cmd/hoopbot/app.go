package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/hoopbot/config"
	"go.viam.com/hoopbot/logging"
	"go.viam.com/hoopbot/robot"
	"go.viam.com/hoopbot/robot/sim"
	"go.viam.com/hoopbot/services/shooter"
	"go.viam.com/hoopbot/utils"
)

const (
	flagConfig   = "config"
	flagSim      = "sim"
	flagLogLevel = "log-level"
	flagWatch    = "watch"
	flagSample   = "sample"
)

func newApp(out io.Writer) *cli.App {
	configFlag := &cli.StringFlag{
		Name:    flagConfig,
		Aliases: []string{"c"},
		Usage:   "load configuration from `FILE`, defaults are used when empty",
		EnvVars: []string{config.EnvPrefix + "_CONFIG"},
	}
	return &cli.App{
		Name:            "hoopbot",
		Usage:           "run the basketball robot controller",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       out,
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "start the controllers and drive the robot",
				Flags: []cli.Flag{
					configFlag,
					&cli.BoolFlag{
						Name:  flagSim,
						Usage: "run against a simulated chassis instead of the serial links",
					},
					&cli.StringFlag{
						Name:  flagLogLevel,
						Usage: "override the configured log level",
					},
					&cli.BoolFlag{
						Name:  flagWatch,
						Value: true,
						Usage: "warn when the configuration file changes",
					},
				},
				Action: RunAction,
			},
			{
				Name:      "fit",
				Usage:     "fit a quadratic speed curve to calibration shots",
				UsageText: "hoopbot fit --sample 2000:12000 --sample 3000:13500 --sample 4000:16000",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:     flagSample,
						Required: true,
						Usage:    "calibration shot as `RADIUS:SPEED`, repeat for every shot",
					},
				},
				Action: FitAction,
			},
			{
				Name:   "config",
				Usage:  "print the effective configuration",
				Flags:  []cli.Flag{configFlag},
				Action: ConfigAction,
			},
		},
	}
}

// RunAction starts the robot and blocks until the context is done.
func RunAction(c *cli.Context) error {
	path := c.String(flagConfig)
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if lvl := c.String(flagLogLevel); lvl != "" {
		cfg.LogLevel = lvl
	}
	level, err := logging.LevelFromString(cfg.LogLevel)
	if err != nil {
		return err
	}

	logger := logging.NewLogger("hoopbot").WithFields("run_id", uuid.NewString())
	logger.SetLevel(level)
	logging.ReplaceGlobal(logger)

	var (
		hw        *robot.Hardware
		simulated *sim.Sim
	)
	if c.Bool(flagSim) {
		simulated = sim.New(sim.DefaultConfig(), nil, logger.Sublogger("sim"))
		hw = simulated.Hardware()
	} else {
		hw = robot.OpenHardware(cfg, logger.Sublogger("hardware"))
	}

	r, err := robot.New(c.Context, cfg, hw, nil, logger)
	if err != nil {
		if simulated != nil {
			err = multierr.Combine(err, simulated.Close())
		}
		return err
	}
	logger.Infow("robot started", "config", path, "sim", simulated != nil)

	var workers utils.StoppableWorkers
	if path != "" && c.Bool(flagWatch) {
		workers = utils.NewStoppableWorkersWithContext(c.Context, func(ctx context.Context) {
			err := config.Watch(ctx, path, logger.Sublogger("config"), func(config.Config) {
				logger.Warnw("configuration changed, restart required", "config", path)
			})
			if err != nil {
				logger.Errorw("cannot watch configuration", "config", path, "error", err)
			}
		})
	}

	<-c.Context.Done()
	logger.Info("shutting down")
	if workers != nil {
		workers.Stop()
	}
	err = r.Close(context.Background())
	if simulated != nil {
		err = multierr.Combine(err, simulated.Close())
	}
	return multierr.Combine(err, logger.Sync())
}

// FitAction prints the least squares speed curve through the given shots.
func FitAction(c *cli.Context) error {
	samples, err := parseSamples(c.StringSlice(flagSample))
	if err != nil {
		return err
	}
	q, err := shooter.FitQuadratic(samples)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "speed = %.6g*r^2 + %.6g*r + %.6g", q.A, q.B, q.C)
	for _, s := range samples {
		printf(c.App.Writer, "\tr=%-8.1f speed=%-10.1f fit=%-10.1f residual=%.1f",
			s.Radius, s.Speed, q.Speed(s.Radius), s.Speed-q.Speed(s.Radius))
	}
	return nil
}

func parseSamples(raw []string) ([]shooter.Sample, error) {
	samples := make([]shooter.Sample, 0, len(raw))
	for _, r := range raw {
		parts := strings.Split(r, ":")
		if len(parts) != 2 {
			return nil, errors.Errorf("sample %q is not RADIUS:SPEED", r)
		}
		radius, err := cast.ToFloat64E(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, errors.Wrapf(err, "sample %q radius", r)
		}
		speed, err := cast.ToFloat64E(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, errors.Wrapf(err, "sample %q speed", r)
		}
		samples = append(samples, shooter.Sample{Radius: radius, Speed: speed})
	}
	return samples, nil
}

// ConfigAction prints the configuration the robot would run with as JSON.
func ConfigAction(c *cli.Context) error {
	cfg, err := config.Load(c.String(flagConfig))
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", data)
	return nil
}

func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}
