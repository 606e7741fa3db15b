// Package pose holds the externally supplied pose estimates the controllers steer by.
//
// Each location type has one Source with exactly one writer (the goroutine decoding that feed).
// Readers take snapshots through Get and never block. A snapshot is internally consistent, but
// snapshots of different sources, or of one source and a value derived from another, may come
// from different instants.
package pose

import (
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

// LocationType tags a pose source.
type LocationType int

// The known pose sources.
const (
	// LocationAction is the action/odometer wheel pose.
	LocationAction LocationType = iota
	// LocationNUC is the pose reported by the vision computer.
	LocationNUC
	// LocationOdometry is the pose parsed from the text odometry stream.
	LocationOdometry
)

var locationNames = map[LocationType]string{
	LocationAction:   "action",
	LocationNUC:      "nuc",
	LocationOdometry: "odometry",
}

func (lt LocationType) String() string {
	if name, ok := locationNames[lt]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the location type by name.
func (lt LocationType) MarshalText() ([]byte, error) {
	return []byte(lt.String()), nil
}

// LocationTypeFromString parses "action", "nuc" or "odometry".
func LocationTypeFromString(s string) (LocationType, error) {
	for lt, name := range locationNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return lt, nil
		}
	}
	return 0, errors.Errorf("unknown location type %q", s)
}

// Pose is a planar pose in millimetres and degrees.
type Pose struct {
	X   float64
	Y   float64
	Yaw float64
}

// DistanceTo returns the planar distance from the pose to (x, y).
func (p Pose) DistanceTo(x, y float64) float64 {
	return math.Hypot(x-p.X, y-p.Y)
}

// Reader is anything a pose snapshot can be taken from.
type Reader interface {
	Get() Pose
}

type stamped struct {
	pose Pose
	at   time.Time
}

// Source is a single-writer pose slot.
type Source struct {
	lt  LocationType
	clk clock.Clock
	val atomic.Pointer[stamped]
}

// NewSource returns a source at the origin that stamps updates with clk, or the wall clock when
// clk is nil.
func NewSource(lt LocationType, clk clock.Clock) *Source {
	if clk == nil {
		clk = clock.New()
	}
	s := &Source{lt: lt, clk: clk}
	s.val.Store(&stamped{})
	return s
}

// Type returns the location type of the source.
func (s *Source) Type() LocationType {
	return s.lt
}

// Set publishes a new pose. Only the feed that owns the source calls this.
func (s *Source) Set(p Pose) {
	s.val.Store(&stamped{pose: p, at: s.clk.Now()})
}

// Get returns the latest pose.
func (s *Source) Get() Pose {
	return s.val.Load().pose
}

// UpdatedAt returns when the pose was last set. It is zero until the first Set.
func (s *Source) UpdatedAt() time.Time {
	return s.val.Load().at
}

// Registry maps location types to their sources. It is built once at startup and is read-only
// afterwards, so lookups need no locking.
type Registry struct {
	sources map[LocationType]*Source
}

// NewRegistry creates a source for every given location type, all stamping with clk.
func NewRegistry(clk clock.Clock, types ...LocationType) *Registry {
	r := &Registry{sources: make(map[LocationType]*Source, len(types))}
	for _, lt := range types {
		r.sources[lt] = NewSource(lt, clk)
	}
	return r
}

// Source returns the source for lt.
func (r *Registry) Source(lt LocationType) (*Source, error) {
	src, ok := r.sources[lt]
	if !ok {
		return nil, errors.Errorf("no pose source registered for %s", lt)
	}
	return src, nil
}

// Get returns a snapshot of lt's pose and whether lt is registered.
func (r *Registry) Get(lt LocationType) (Pose, bool) {
	src, ok := r.sources[lt]
	if !ok {
		return Pose{}, false
	}
	return src.Get(), true
}
