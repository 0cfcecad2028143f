package body

import "github.com/go-gl/mathgl/mgl64"

// Sleeping policy.
const (
	SleepLinearThreshold  = 0.05
	SleepAngularThreshold = 0.05
	TimeBeforeSleep       = 0.5
)

// TickSleep advances the sleep timer by dt and deactivates the body once it
// has stayed below the thresholds long enough. It reports whether the body
// went to sleep.
func (b *Body) TickSleep(dt float64) bool {
	if !b.AllowSleeping || !b.Moving() {
		b.SleepTimer = 0
		return false
	}
	if b.LinearVelocity.Len() >= SleepLinearThreshold || b.AngularVelocity.Len() >= SleepAngularThreshold {
		b.SleepTimer = 0
		return false
	}
	b.SleepTimer += dt
	if b.SleepTimer < TimeBeforeSleep {
		return false
	}
	b.sleep()
	return true
}

func (b *Body) sleep() {
	b.Active = false
	b.SleepTimer = 0
	b.LinearVelocity = mgl64.Vec3{}
	b.AngularVelocity = mgl64.Vec3{}
}

// Wake activates an added, non-static body.
func (b *Body) Wake() {
	if b.Added && b.Motion != Static {
		b.Active = true
		b.SleepTimer = 0
	}
}
