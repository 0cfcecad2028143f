// Package controllers steers dynamic bodies toward a target position.
//
// A [Controller] returns the acceleration it wants for one body. [Attach]
// turns that into an impulse before every step, adding a feedforward term
// that cancels gravity so gains only shape the error response:
//
//   - [PID]: proportional-integral-derivative on position error
//   - [LQR]: full-state feedback on position and velocity
//   - [None]: no control; the body falls
//
// # Usage
//
//	slot := &controllers.Slot{Controller: controllers.NewPID(25, 0.1, 10, mgl64.Vec3{0, 2, 0})}
//	controllers.Attach(sys, ball, slot, app.Fail)
package controllers
