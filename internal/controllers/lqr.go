package controllers

import "github.com/go-gl/mathgl/mgl64"

// LQR applies a = -Kp (pos - target) - Kv vel on every axis.
type LQR struct {
	Kp, Kv float64
	Target mgl64.Vec3
}

func NewLQR(kp, kv float64, target mgl64.Vec3) *LQR {
	return &LQR{Kp: kp, Kv: kv, Target: target}
}

func (l *LQR) Name() string { return "lqr" }

func (l *LQR) Accel(pos, vel mgl64.Vec3, t float64) mgl64.Vec3 {
	return pos.Sub(l.Target).Mul(-l.Kp).Sub(vel.Mul(l.Kv))
}

// NewHoverLQR picks gains for natural frequency omega (rad/s) and damping
// ratio zeta of the double integrator.
func NewHoverLQR(target mgl64.Vec3, omega, zeta float64) *LQR {
	return NewLQR(omega*omega, 2*zeta*omega, target)
}
