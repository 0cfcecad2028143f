package sim

import (
	"context"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/rigidsim/internal/body"
)

var _ = Describe("Step scheduler", func() {
	var (
		w   *world
		ctx context.Context
	)

	step := func(n int, dt float64, collisionSteps int) {
		for i := 0; i < n; i++ {
			Expect(w.sys.Step(ctx, dt, collisionSteps)).To(Succeed())
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		w, err = newWorld(4, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("sphere dropped on a static plane", func() {
		var ball body.Handle

		BeforeEach(func() {
			_, err := w.floor(-1)
			Expect(err).NotTo(HaveOccurred())
			ball, err = w.ball(mgl64.Vec3{}, 0.3, body.Dynamic, nil)
			Expect(err).NotTo(HaveOccurred())
		})

		It("settles near the plane surface plus its radius", func() {
			step(50, 0.02, 1)
			Expect(w.bodies.Position(ball)[1]).To(BeNumerically("~", -0.7, 0.03))
		})

		It("stays within the band once settled", func() {
			step(50, 0.02, 1)
			for i := 0; i < 100; i++ {
				step(1, 0.02, 1)
				Expect(w.bodies.Position(ball)[1]).To(BeNumerically("~", -0.7, 0.03))
			}
		})

		It("reports the floor contact with an upward normal", func() {
			var normals []mgl64.Vec3
			w.sys.AddContactListener(ContactFuncs{Added: func(a, b body.Handle, c Contact) {
				if c.Involves(ball) {
					n := c.Normal
					if c.B != ball {
						n = n.Mul(-1)
					}
					normals = append(normals, n)
				}
			}})

			step(50, 0.02, 1)
			Expect(normals).NotTo(BeEmpty())
			Expect(normals[0].ApproxEqualThreshold(mgl64.Vec3{0, 1, 0}, 1e-9)).To(BeTrue())
			Expect(w.bodies.Position(ball)[0]).To(BeNumerically("~", 0, 1e-9))
		})
	})

	Describe("sensor flag", func() {
		var solid, sensor body.Handle

		BeforeEach(func() {
			_, err := w.floor(-1)
			Expect(err).NotTo(HaveOccurred())
			solid, err = w.ball(mgl64.Vec3{-2, 0, 0}, 0.3, body.Dynamic, nil)
			Expect(err).NotTo(HaveOccurred())
			sensor, err = w.ball(mgl64.Vec3{2, 0, 0}, 0.3, body.Dynamic, func(s *body.Settings) {
				s.IsSensor = true
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("lets a sensor fall through while a solid ball rests", func() {
			prev := w.bodies.Position(sensor)[1]
			sawOverlap := false
			w.sys.AddContactListener(ContactFuncs{Added: func(a, b body.Handle, c Contact) {
				if c.Involves(sensor) {
					Expect(c.Sensor).To(BeTrue())
					sawOverlap = true
				}
			}})

			for i := 0; i < 60; i++ {
				step(1, 0.02, 1)
				y := w.bodies.Position(sensor)[1]
				Expect(y).To(BeNumerically("<", prev))
				prev = y
			}

			Expect(prev).To(BeNumerically("<", -1.3))
			Expect(w.bodies.Position(solid)[1]).To(BeNumerically("~", -0.7, 0.03))
			Expect(sawOverlap).To(BeTrue())
		})

		It("is idempotent", func() {
			Expect(w.bodies.SetSensor(solid, true)).To(Succeed())
			once, err := w.bodies.Get(solid)
			Expect(err).NotTo(HaveOccurred())
			snapshot := *once

			Expect(w.bodies.SetSensor(solid, true)).To(Succeed())
			twice, _ := w.bodies.Get(solid)
			Expect(*twice).To(Equal(snapshot))
		})

		It("takes effect immediately on a resting body", func() {
			step(60, 0.02, 1)
			Expect(w.bodies.SetSensor(solid, true)).To(Succeed())
			Expect(w.bodies.ActivateBody(solid)).To(Succeed())
			step(30, 0.02, 1)
			Expect(w.bodies.Position(solid)[1]).To(BeNumerically("<", -1))
		})
	})

	Describe("kinematic body", func() {
		It("reaches its target after exactly T seconds regardless of dynamic bodies", func() {
			k, err := w.ball(mgl64.Vec3{0, 1, 0}, 0.4, body.Kinematic, nil)
			Expect(err).NotTo(HaveOccurred())
			for i := 0; i < 5; i++ {
				_, err := w.ball(mgl64.Vec3{float64(i) * 0.3, 2 + float64(i), 0}, 0.3, body.Dynamic, nil)
				Expect(err).NotTo(HaveOccurred())
			}

			target := mgl64.Vec3{0.5, 1.2, -0.3}
			Expect(w.bodies.MoveKinematic(k, target, mgl64.QuatIdent(), 0.4)).To(Succeed())
			step(20, 0.02, 2)

			p := w.bodies.Position(k)
			Expect(p.ApproxEqualThreshold(target, 1e-9)).To(BeTrue(), "got %v", p)
		})

		It("orbits when driven from a pre-physics tick", func() {
			k, err := w.ball(mgl64.Vec3{0.4, 0, 0}, 0.1, body.Kinematic, nil)
			Expect(err).NotTo(HaveOccurred())

			const radius, period = 0.4, 0.8
			w.sys.AddTickListener(TickFuncs{Pre: func(s *System, dt float64) {
				next := s.Time() + dt
				angle := 2 * math.Pi * next / period
				target := mgl64.Vec3{radius * math.Cos(angle), 0, radius * math.Sin(angle)}
				Expect(s.Bodies().MoveKinematic(k, target, mgl64.QuatIdent(), dt)).To(Succeed())
			}})

			step(40, 0.02, 1)
			p := w.bodies.Position(k)
			Expect(math.Hypot(p[0], p[2])).To(BeNumerically("~", radius, 1e-9))
		})
	})

	Describe("impulses", func() {
		It("pushes two balls into each other", func() {
			w2, err := newWorld(2, func(s *Settings) { s.Gravity = mgl64.Vec3{} })
			Expect(err).NotTo(HaveOccurred())
			w = w2

			mass := func(s *body.Settings) { s.MassOverride = body.Mass(2) }
			left, err := w.ball(mgl64.Vec3{1, 1, 0}, 1, body.Dynamic, mass)
			Expect(err).NotTo(HaveOccurred())
			right, err := w.ball(mgl64.Vec3{5, 1, 0}, 1, body.Dynamic, mass)
			Expect(err).NotTo(HaveOccurred())

			Expect(w.bodies.AddImpulse(right, mgl64.Vec3{-25, 0, 0}, nil)).To(Succeed())
			step(60, 1.0/60, 1)

			Expect(w.bodies.LinearVelocity(left)[0]).To(BeNumerically("<", 0))
			Expect(w.bodies.Position(right)[0] - w.bodies.Position(left)[0]).To(BeNumerically(">=", 1.99))
		})
	})
})
