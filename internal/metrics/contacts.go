package metrics

import "github.com/san-kum/rigidsim/internal/sim"

// ContactCount is the mean number of touching pairs per step.
type ContactCount struct {
	name    string
	sum     int
	peak    int
	samples int
}

func NewContactCount() *ContactCount {
	return &ContactCount{name: "contacts"}
}

func (c *ContactCount) Name() string { return c.name }

func (c *ContactCount) Observe(s *sim.System) {
	n := s.Stats().Contacts
	c.sum += n
	c.peak = max(c.peak, n)
	c.samples++
}

func (c *ContactCount) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return float64(c.sum) / float64(c.samples)
}

// Peak is the largest contact count seen in one step.
func (c *ContactCount) Peak() int { return c.peak }

func (c *ContactCount) Reset() {
	c.sum = 0
	c.peak = 0
	c.samples = 0
}
