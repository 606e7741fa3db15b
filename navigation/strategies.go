package navigation

import (
	"math"

	"go.viam.com/hoopbot/pose"
	"go.viam.com/hoopbot/utils"
)

// heading returns the world frame direction from (dx, dy) with distance dist. The sign of dy picks
// between acos and -acos, so dy == 0 maps to the lower half plane.
func heading(dx, dy, dist float64) float64 {
	ratio := dx / dist
	// Rounding can push |dx|/dist a hair past 1.
	ratio = math.Max(-1, math.Min(1, ratio))
	if dy > 0 {
		return math.Acos(ratio)
	}
	return -math.Acos(ratio)
}

// rotate drives the yaw toward targetYaw. It reports whether the yaw is within the deadband, in
// which case the output is zero and the integral is cleared.
func (ch *channel) rotate(currentYaw, targetYaw float64) (float64, bool) {
	delta := AngleTrans(currentYaw, targetYaw)
	if utils.CompareFloat(math.Abs(delta), ch.angDB) > 0 {
		return ch.angle.Compute(delta, 0), false
	}
	ch.angle.ResetIntegral()
	return 0, true
}

// translate drives the distance toward zero. It reports whether the position is within the
// deadband, in which case the output is zero and the integral is cleared.
func (ch *channel) translate(dx, dy float64) (moving, headingAngle float64, arrived bool) {
	dist := utils.Hypot(dx, dy)
	if dist > ch.distDB {
		return ch.speed.Compute(dist, 0), heading(dx, dy, dist), false
	}
	ch.speed.ResetIntegral()
	return 0, 0, true
}

func classify(xy, yaw bool) ArrivalState {
	switch {
	case xy && yaw:
		return Arrived
	case xy:
		return PositionArrivedYawPending
	default:
		return NotArrived
	}
}

func (ch *channel) solveDirect(current pose.Pose, target Target) Result {
	var res Result
	var arrivedXY, arrivedYaw bool
	res.MovingVelocity, res.HeadingAngle, arrivedXY = ch.translate(target.X-current.X, target.Y-current.Y)
	res.TurningVelocity, arrivedYaw = ch.rotate(current.Yaw, target.Yaw)
	res.Arrival = classify(arrivedXY, arrivedYaw)
	return res
}

// solveLinear aims the yaw loop at the direction of travel while translating and at the target
// yaw once the position is reached. Decompose drops the turn while NotArrived, so in practice the
// chassis translates first and then turns in place under PositionArrivedYawPending.
func (ch *channel) solveLinear(current pose.Pose, target Target) Result {
	var res Result
	var arrivedXY, arrivedYaw bool
	res.MovingVelocity, res.HeadingAngle, arrivedXY = ch.translate(target.X-current.X, target.Y-current.Y)
	yawTarget := target.Yaw
	if !arrivedXY {
		yawTarget = utils.RadToDeg(res.HeadingAngle)
	}
	res.TurningVelocity, arrivedYaw = ch.rotate(current.Yaw, yawTarget)
	res.Arrival = classify(arrivedXY, arrivedYaw)
	return res
}

// solveAxisSequence moves along x until within the deadband, then along y, then rotates. Each
// call re-checks x and y, so drifting out of the deadband during rotation restarts the sequence.
func (ch *channel) solveAxisSequence(current pose.Pose, target Target) Result {
	var res Result
	dx := target.X - current.X
	if utils.CompareFloat(math.Abs(dx), ch.distDB) > 0 {
		res.MovingVelocity = ch.speed.Compute(math.Abs(dx), 0)
		if dx > 0 {
			res.HeadingAngle = 0
		} else {
			res.HeadingAngle = math.Pi
		}
		return res
	}

	dy := target.Y - current.Y
	if utils.CompareFloat(math.Abs(dy), ch.distDB) > 0 {
		res.MovingVelocity = ch.speed.Compute(math.Abs(dy), 0)
		if dy > 0 {
			res.HeadingAngle = math.Pi / 2
		} else {
			res.HeadingAngle = -math.Pi / 2
		}
		return res
	}

	ch.speed.ResetIntegral()
	var arrivedYaw bool
	res.TurningVelocity, arrivedYaw = ch.rotate(current.Yaw, target.Yaw)
	if arrivedYaw {
		res.Arrival = Arrived
	}
	return res
}
