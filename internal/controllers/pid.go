package controllers

import "github.com/go-gl/mathgl/mgl64"

type PID struct {
	Kp       float64
	Ki       float64
	Kd       float64
	Target   mgl64.Vec3
	integral mgl64.Vec3
	prevErr  mgl64.Vec3
	prevT    float64
	first    bool
}

func NewPID(kp, ki, kd float64, target mgl64.Vec3) *PID {
	return &PID{
		Kp:     kp,
		Ki:     ki,
		Kd:     kd,
		Target: target,
		first:  true,
	}
}

func (p *PID) Name() string { return "pid" }

// Accel ignores vel; the derivative term comes from successive errors.
func (p *PID) Accel(pos, vel mgl64.Vec3, t float64) mgl64.Vec3 {
	err := p.Target.Sub(pos)

	if p.first {
		p.prevErr = err
		p.prevT = t
		p.first = false
		return err.Mul(p.Kp)
	}

	dt := t - p.prevT
	if dt > 0 {
		p.integral = p.integral.Add(err.Mul(dt))
		derivative := err.Sub(p.prevErr).Mul(1 / dt)

		u := err.Mul(p.Kp).Add(p.integral.Mul(p.Ki)).Add(derivative.Mul(p.Kd))

		p.prevErr = err
		p.prevT = t

		return u
	}
	return err.Mul(p.Kp)
}

func (p *PID) Reset() {
	p.integral = mgl64.Vec3{}
	p.prevErr = mgl64.Vec3{}
	p.first = true
}
