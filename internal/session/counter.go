package session

import "time"

// rollPlan spreads the move from one quantity to another over duration in
// at most duration/floor ticks, never faster than one tick per floor.
func rollPlan(from, to int64, duration, floor time.Duration) (steps int64, interval time.Duration) {
	dist := to - from
	if dist < 0 {
		dist = -dist
	}
	if dist == 0 || duration <= 0 {
		return 0, 0
	}
	maxSteps := int64(duration / floor)
	if maxSteps < 1 {
		maxSteps = 1
	}
	steps = min(dist, maxSteps)
	interval = max(duration/time.Duration(steps), floor)
	return steps, interval
}

// rollValue is the displayed quantity after step i of n.
func rollValue(from, to, i, n int64) int64 {
	if i >= n {
		return to
	}
	return from + (to-from)*i/n
}

// startRollLocked animates the displayed quantity towards to, replacing any
// roll already running.
func (c *Controller) startRollLocked(from, to int64) {
	c.stopRollLocked()
	steps, interval := rollPlan(from, to, c.opts.CounterDuration, c.opts.CounterMinStep)
	if steps == 0 {
		c.displayed = to
		return
	}
	stop := make(chan struct{})
	c.rollStop = stop
	go c.roll(stop, from, to, steps, interval)
}

func (c *Controller) stopRollLocked() {
	if c.rollStop != nil {
		close(c.rollStop)
		c.rollStop = nil
	}
}

func (c *Controller) roll(stop <-chan struct{}, from, to, steps int64, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for i := int64(1); i <= steps; i++ {
		select {
		case <-stop:
			return
		case <-t.C:
		}
		c.mu.Lock()
		select {
		case <-stop:
			c.mu.Unlock()
			return
		default:
		}
		c.displayed = rollValue(from, to, i, steps)
		if i == steps {
			c.rollStop = nil
		}
		emit := c.changedLocked()
		c.mu.Unlock()
		emit()
	}
}
