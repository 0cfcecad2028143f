package controllers

import "github.com/go-gl/mathgl/mgl64"

type None struct{}

func NewNone() *None {
	return &None{}
}

func (n *None) Name() string { return "none" }

func (n *None) Accel(pos, vel mgl64.Vec3, t float64) mgl64.Vec3 {
	return mgl64.Vec3{}
}
