package pose

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"go.viam.com/hoopbot/logging"
)

// ParseOdometryLine parses an "x,y,yaw" line with x and y in metres.
func ParseOdometryLine(line string) (Pose, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 3 {
		return Pose{}, errors.Errorf("odometry line %q: expected 3 fields, got %d", line, len(fields))
	}
	var vals [3]float64
	for i, field := range fields {
		v, err := cast.ToFloat64E(strings.TrimSpace(field))
		if err != nil {
			return Pose{}, errors.Wrapf(err, "odometry line %q: field %d", line, i)
		}
		vals[i] = v
	}
	return Pose{X: 1000 * vals[0], Y: 1000 * vals[1], Yaw: vals[2]}, nil
}

// RunOdometryStream reads newline separated odometry lines from r into src until r is exhausted
// or ctx is done. Malformed lines are logged and skipped.
func RunOdometryStream(ctx context.Context, r io.Reader, src *Source, logger logging.Logger) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		p, err := ParseOdometryLine(line)
		if err != nil {
			logger.Debugw("skipping odometry line", "error", err)
			continue
		}
		src.Set(p)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "reading odometry stream")
	}
	return nil
}
