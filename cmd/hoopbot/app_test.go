package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"
)

func run(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := newApp(&out).RunContext(ctx, append([]string{"hoopbot"}, args...))
	return out.String(), err
}

func TestFit(t *testing.T) {
	// speed = 0.001*r^2 - 2*r + 10000
	out, err := run(t, context.Background(),
		"fit", "--sample", "1000:9000", "--sample", "2000: 10000", "--sample", "3000:13000")
	test.That(t, err, test.ShouldBeNil)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	test.That(t, lines, test.ShouldHaveLength, 4)
	test.That(t, lines[0], test.ShouldEqual, "speed = 0.001*r^2 + -2*r + 10000")
	test.That(t, lines[2], test.ShouldContainSubstring, "r=2000.0")

	_, err = run(t, context.Background(), "fit", "--sample", "1000:9000", "--sample", "2000:10000")
	test.That(t, err, test.ShouldBeError)
	test.That(t, err.Error(), test.ShouldContainSubstring, "at least 3 samples")

	_, err = run(t, context.Background(), "fit", "--sample", "1000")
	test.That(t, err, test.ShouldBeError)
	test.That(t, err.Error(), test.ShouldContainSubstring, "RADIUS:SPEED")

	_, err = run(t, context.Background(), "fit", "--sample", "far:9000")
	test.That(t, err, test.ShouldBeError)
	test.That(t, err.Error(), test.ShouldContainSubstring, "radius")
}

func TestParseSamples(t *testing.T) {
	samples, err := parseSamples([]string{"1500:12000.5", " 2500 : 14000 "})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, samples, test.ShouldHaveLength, 2)
	test.That(t, samples[0].Radius, test.ShouldEqual, 1500.0)
	test.That(t, samples[0].Speed, test.ShouldEqual, 12000.5)
	test.That(t, samples[1].Radius, test.ShouldEqual, 2500.0)

	_, err = parseSamples([]string{"1500:fast"})
	test.That(t, err, test.ShouldBeError)
}

func TestConfig(t *testing.T) {
	out, err := run(t, context.Background(), "config")
	test.That(t, err, test.ShouldBeNil)
	var printed map[string]interface{}
	test.That(t, json.Unmarshal([]byte(out), &printed), test.ShouldBeNil)
	test.That(t, printed["log_level"], test.ShouldEqual, "info")

	path := filepath.Join(t.TempDir(), "hoopbot.yaml")
	test.That(t, os.WriteFile(path, []byte("log_level: debug\n"), 0o600), test.ShouldBeNil)
	out, err = run(t, context.Background(), "config", "--config", path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, json.Unmarshal([]byte(out), &printed), test.ShouldBeNil)
	test.That(t, printed["log_level"], test.ShouldEqual, "debug")

	_, err = run(t, context.Background(), "config", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	test.That(t, err, test.ShouldBeError)
}

func TestRunSim(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err := run(t, ctx, "run", "--sim", "--log-level", "warn")
	test.That(t, err, test.ShouldBeNil)
}

func TestRunBadLevel(t *testing.T) {
	_, err := run(t, context.Background(), "run", "--sim", "--log-level", "loud")
	test.That(t, err, test.ShouldBeError)
}

func TestRunWithoutHardware(t *testing.T) {
	// nothing is configured so no controller has anything to drive
	_, err := run(t, context.Background(), "run")
	test.That(t, err, test.ShouldBeError)
	test.That(t, err.Error(), test.ShouldContainSubstring, "no controller could be started")
}
