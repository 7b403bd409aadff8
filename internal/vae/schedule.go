package vae

// BetaSchedule is a linear warm-up of the KL weight.
//
// With warm-up n > 0, beta at iteration i < n is linspace(0, target, n)[i];
// from iteration n on it is the target. With n <= 0 beta is always the target.
type BetaSchedule struct {
	target    float64
	warmUp    int
	iteration int
	beta      float64
}

// NewBetaSchedule creates a schedule at iteration 0.
func NewBetaSchedule(target float64, warmUp int) *BetaSchedule {
	s := &BetaSchedule{target: target, warmUp: warmUp}
	s.beta = s.At(0)
	return s
}

// At returns beta for an iteration without changing the schedule.
func (s *BetaSchedule) At(iteration int) float64 {
	if s.warmUp <= 0 || iteration >= s.warmUp {
		return s.target
	}
	if s.warmUp == 1 {
		return 0
	}
	return s.target * float64(iteration) / float64(s.warmUp-1)
}

// Step advances one iteration and updates beta.
func (s *BetaSchedule) Step() {
	s.iteration++
	s.beta = s.At(s.iteration)
}

// SetIteration moves the schedule to iteration, for resuming from a checkpoint.
func (s *BetaSchedule) SetIteration(iteration int) {
	s.iteration = iteration
	s.beta = s.At(iteration)
}

// Beta returns the current coefficient.
func (s *BetaSchedule) Beta() float64 { return s.beta }

// Iteration returns the number of completed steps.
func (s *BetaSchedule) Iteration() int { return s.iteration }

// Target returns the coefficient reached after warm-up.
func (s *BetaSchedule) Target() float64 { return s.target }

// WarmUp returns the number of warm-up iterations.
func (s *BetaSchedule) WarmUp() int { return s.warmUp }
