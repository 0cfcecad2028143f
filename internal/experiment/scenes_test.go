package experiment

import (
	"context"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/rigidsim/internal/body"
)

var _ = Describe("Scenes", func() {
	var app *App

	load := func(name string) {
		sc, err := NewRegistry().Get(name)
		Expect(err).NotTo(HaveOccurred())
		app, err = New(sc, quietOptions())
		Expect(err).NotTo(HaveOccurred())
	}

	step := func(n int) {
		Expect(app.Run(context.Background(), n, nil)).To(Succeed())
	}

	y := func(name string) float64 {
		return app.Bodies().Position(app.MustHandle(name)).Y()
	}

	AfterEach(func() {
		if app != nil {
			app.Close()
		}
	})

	Describe("contact_response", func() {
		BeforeEach(func() { load("contact_response") })

		It("rests the ball on the box until E makes it a sensor", func() {
			step(100)
			Expect(y("ball")).To(BeNumerically("~", 0, 0.05))

			handled, err := app.Press("e")
			Expect(err).NotTo(HaveOccurred())
			Expect(handled).To(BeTrue())

			step(50)
			Expect(y("ball")).To(BeNumerically("<", -1))
		})
	})

	Describe("hover", func() {
		BeforeEach(func() { load("hover") })

		It("holds the ball at the target with PID", func() {
			Expect(app.Status()).To(Equal("controller: pid"))
			step(300)
			Expect(y("ball")).To(BeNumerically("~", HoverTarget.Y(), 0.02))
		})

		It("swaps controllers on key press", func() {
			_, err := app.Press("l")
			Expect(err).NotTo(HaveOccurred())
			Expect(app.Status()).To(Equal("controller: lqr"))
			step(300)
			Expect(y("ball")).To(BeNumerically("~", HoverTarget.Y(), 0.02))

			_, err = app.Press("n")
			Expect(err).NotTo(HaveOccurred())
			step(100)
			Expect(y("ball")).To(BeNumerically("<", 0))
		})
	})

	Describe("kinematics", func() {
		BeforeEach(func() { load("kinematics") })

		It("drives the kinematic ball around its orbit", func() {
			step(1)
			pos := app.Bodies().Position(app.MustHandle("kine_ball"))
			Expect(pos.X()).To(BeNumerically("~", 0, 1e-6))
			Expect(pos.Y()).To(BeNumerically("~", orbitRadius, 1e-6))

			// a quarter period later
			step(10)
			pos = app.Bodies().Position(app.MustHandle("kine_ball"))
			Expect(pos.X()).To(BeNumerically("~", orbitRadius, 1e-6))
			Expect(pos.Y()).To(BeNumerically("~", 0, 1e-6))
			Expect(app.Bodies().MotionKind(app.MustHandle("kine_ball"))).To(Equal(body.Kinematic))
		})
	})

	Describe("deactivation", func() {
		BeforeEach(func() { load("deactivation") })

		It("removes the support under a sleeping cube and E drops it", func() {
			cube := app.MustHandle("dynamic_cube")
			step(100)
			Expect(y("dynamic_cube")).To(BeNumerically("~", 1.5, 0.1))

			if app.Bodies().IsActive(cube) {
				Expect(app.Bodies().DeactivateBody(cube)).To(Succeed())
			}
			step(1)
			Expect(app.Bodies().IsAdded(app.MustHandle("support_cube"))).To(BeFalse())
			Expect(app.Status()).To(Equal("cube asleep, support removed"))

			hanging := y("dynamic_cube")
			step(25)
			Expect(y("dynamic_cube")).To(Equal(hanging))

			_, err := app.Press("e")
			Expect(err).NotTo(HaveOccurred())
			step(75)
			Expect(y("dynamic_cube")).To(BeNumerically("<", 0))
		})
	})

	Describe("sensor", func() {
		BeforeEach(func() { load("sensor") })

		It("removes the sensor once the walker reaches it", func() {
			step(1)
			Expect(app.Status()).To(Equal("sensor present"))

			toward := mgl64.Vec3{15, 0, -13}.Normalize().Mul(walkSpeed)
			Expect(app.Bodies().SetLinearVelocity(app.MustHandle("walker"), toward)).To(Succeed())

			step(100)
			Expect(app.Status()).To(Equal("sensor removed"))
		})

		It("binds the walk keys", func() {
			Expect(app.KeyNames()).To(Equal([]string{"a", "d", "s", "w", "x"}))
			_, err := app.Press("d")
			Expect(err).NotTo(HaveOccurred())
			v := app.Bodies().LinearVelocity(app.MustHandle("walker"))
			Expect(v.X()).To(BeNumerically("~", walkSpeed, 1e-9))
		})
	})

	Describe("broadphase", func() {
		BeforeEach(func() { load("broadphase") })

		It("reports the walker inside the ghost box but never the ground", func() {
			step(1)
			Expect(app.Status()).To(Equal("ghost box: empty"))

			_, err := app.Press("d")
			Expect(err).NotTo(HaveOccurred())
			step(25)
			_, err = app.Press("w")
			Expect(err).NotTo(HaveOccurred())
			step(25)

			pos := app.Bodies().Position(app.MustHandle("walker"))
			Expect(math.Abs(pos.X() - 3.5)).To(BeNumerically("<", 1e-6))
			Expect(app.Status()).To(Equal("ghost box: 1 hit(s)"))
		})
	})
})
