package navigation

import (
	"math"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"

	"go.viam.com/hoopbot/pose"
	"go.viam.com/hoopbot/utils"
)

// RingEntry pairs a shooting radius around the basket with the flywheel speed that scores from it.
type RingEntry struct {
	Radius float64 `mapstructure:"radius" json:"radius"`
	Speed  float64 `mapstructure:"speed" json:"speed"`
}

// RingConfig describes the basket, the radius table and the usable field along x.
type RingConfig struct {
	BasketX float64     `mapstructure:"basket_x" json:"basket_x"`
	BasketY float64     `mapstructure:"basket_y" json:"basket_y"`
	Table   []RingEntry `mapstructure:"table" json:"table"`
	MinX    float64     `mapstructure:"min_x" json:"min_x"`
	MaxX    float64     `mapstructure:"max_x" json:"max_x"`
}

// DefaultRingConfig returns the field measured at the last venue.
func DefaultRingConfig() RingConfig {
	return RingConfig{
		BasketX: 3608.3744,
		BasketY: 13459.3975,
		Table: []RingEntry{
			{2000, 13600}, {2100, 13450}, {2200, 13600}, {2400, 13800}, {2550, 14100}, {2700, 14300},
			{2850, 14500}, {3000, 14900}, {3400, 15400}, {3600, 15800}, {3900, 16300}, {4200, 17200},
			{4500, 17500}, {4800, 18200}, {5100, 18500}, {5400, 19300}, {5700, 19700}, {6000, 20200},
		},
		MinX: -7400,
		MaxX: 400,
	}
}

// Validate returns every problem with the config combined.
func (cfg RingConfig) Validate() error {
	var errs error
	if len(cfg.Table) == 0 {
		errs = multierr.Append(errs, errors.New("ring: table is empty"))
	}
	for i, e := range cfg.Table {
		if e.Radius <= 0 {
			errs = multierr.Append(errs, errors.Errorf("ring: table[%d] radius must be positive", i))
		}
		if i > 0 && e.Radius <= cfg.Table[i-1].Radius {
			errs = multierr.Append(errs, errors.Errorf("ring: table[%d] radius must increase", i))
		}
	}
	if cfg.MinX >= cfg.MaxX {
		errs = multierr.Append(errs, errors.Errorf("ring: min_x %v must be below max_x %v", cfg.MinX, cfg.MaxX))
	}
	return errs
}

// Ring projects shooting positions onto circles around the basket.
type Ring struct {
	cfg RingConfig
}

// NewRing validates cfg and returns a Ring.
func NewRing(cfg RingConfig) (*Ring, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Ring{cfg: cfg}, nil
}

// Len returns the number of table entries.
func (r *Ring) Len() int {
	return len(r.cfg.Table)
}

// Basket returns the basket position.
func (r *Ring) Basket() (x, y float64) {
	return r.cfg.BasketX, r.cfg.BasketY
}

// Entry returns table entry i, with i clamped into the table.
func (r *Ring) Entry(i int) RingEntry {
	return r.cfg.Table[r.Clamp(i)]
}

// SpeedAt returns the flywheel speed for entry i, with i clamped into the table.
func (r *Ring) SpeedAt(i int) float64 {
	return r.Entry(i).Speed
}

// Clamp limits i to a valid table index.
func (r *Ring) Clamp(i int) int {
	return lo.Clamp(i, 0, len(r.cfg.Table)-1)
}

// DistanceToBasket returns the planar distance from p to the basket.
func (r *Ring) DistanceToBasket(p pose.Pose) float64 {
	return p.DistanceTo(r.cfg.BasketX, r.cfg.BasketY)
}

// NearestIndex returns the index of the table radius closest to radius and the absolute
// difference to it. Ties go to the lower index.
func (r *Ring) NearestIndex(radius float64) (int, float64) {
	best := 0
	bestDiff := math.Abs(radius - r.cfg.Table[0].Radius)
	for i := 1; i < len(r.cfg.Table); i++ {
		if diff := math.Abs(radius - r.cfg.Table[i].Radius); diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	return best, bestDiff
}

// AimBearing returns the bearing in radians the robot must face at p to look at (x, y), using
// the field convention where 0 looks along +y and positive angles turn toward -x. ok is false
// when p coincides with the point.
func AimBearing(p pose.Pose, x, y float64) (bearing float64, ok bool) {
	dx, dy := x-p.X, y-p.Y
	if dx == 0 && dy == 0 {
		return 0, false
	}
	a := -math.Atan(dx / dy)
	if dy < 0 {
		if a > 0 {
			a -= math.Pi
		} else {
			a += math.Pi
		}
	}
	return a, true
}

// BasketBearing is AimBearing toward the basket.
func (r *Ring) BasketBearing(p pose.Pose) (float64, bool) {
	return AimBearing(p, r.cfg.BasketX, r.cfg.BasketY)
}

// Project returns the point on the circle of the given radius around the basket along the
// robot's bearing to the basket, facing the basket. The offset from p has magnitude
// |radius - distance to basket|.
func (r *Ring) Project(p pose.Pose, radius float64) Target {
	a, ok := r.BasketBearing(p)
	if !ok {
		return Target{X: p.X, Y: p.Y}
	}
	k := radius - r.DistanceToBasket(p)

	var ox, oy float64
	switch {
	case a >= 0 && a < math.Pi/2:
		ox, oy = k*math.Sin(a), -k*math.Cos(a)
	case a >= math.Pi/2 && a < math.Pi:
		ox, oy = k*math.Sin(math.Pi-a), k*math.Cos(math.Pi-a)
	case a >= -math.Pi && a < -math.Pi/2:
		ox, oy = -k*math.Sin(math.Pi-a), k*math.Cos(math.Pi-a)
	default:
		ox, oy = -k*math.Sin(-a), -k*math.Cos(-a)
	}
	return Target{X: p.X + ox, Y: p.Y + oy, Yaw: utils.RadToDeg(a)}
}

// InBounds reports whether t lies within the usable field along x.
func (r *Ring) InBounds(t Target) bool {
	return t.X >= r.cfg.MinX && t.X <= r.cfg.MaxX
}

// Resolve projects entry index (clamped into the table) and, while the projection falls outside
// the field, retries with the next smaller radius. It makes at most Len projections. When even
// index 0 is out of bounds it returns index 0 with inBounds false.
func (r *Ring) Resolve(p pose.Pose, index int) (resolved int, target Target, inBounds bool) {
	idx := r.Clamp(index)
	for attempt := 0; attempt < len(r.cfg.Table); attempt++ {
		target = r.Project(p, r.cfg.Table[idx].Radius)
		if r.InBounds(target) {
			return idx, target, true
		}
		if idx == 0 {
			break
		}
		idx--
	}
	return idx, target, false
}
