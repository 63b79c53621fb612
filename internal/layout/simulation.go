package layout

import (
	"math"
	"time"

	"github.com/hylla/taskdeck/internal/domain"
)

// initialAngle is the golden angle used for phyllotaxis seeding.
var initialAngle = math.Pi * (3 - math.Sqrt(5))

const (
	initialRadius  = 10
	minTicks       = 10
	resolvePasses  = 2000
	overlapEpsilon = 1e-6
)

// Options tunes the force simulation. The zero value is not usable; start
// from DefaultOptions.
type Options struct {
	Charge            float64
	CenterStrength    float64
	CenterShift       float64
	Padding           float64
	CollideStrength   float64
	CollideIterations int
	AlphaDecay        float64
	AlphaMin          float64
	VelocityDecay     float64
	Budget            time.Duration
	MinMotion         float64
	// Now anchors urgency when sizing nodes.
	Now time.Time
}

// DefaultOptions returns the tuned defaults for task bubbles.
func DefaultOptions() Options {
	return Options{
		Charge:            -100,
		CenterStrength:    0.1,
		CenterShift:       0.15,
		Padding:           2,
		CollideStrength:   1,
		CollideIterations: 2,
		AlphaDecay:        0.01,
		AlphaMin:          0.001,
		VelocityDecay:     0.2,
		Budget:            2 * time.Second,
		MinMotion:         0.05,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.CollideIterations <= 0 {
		o.CollideIterations = def.CollideIterations
	}
	if o.CollideStrength <= 0 {
		o.CollideStrength = def.CollideStrength
	}
	if o.AlphaDecay <= 0 {
		o.AlphaDecay = def.AlphaDecay
	}
	if o.AlphaMin <= 0 {
		o.AlphaMin = def.AlphaMin
	}
	if o.VelocityDecay <= 0 || o.VelocityDecay >= 1 {
		o.VelocityDecay = def.VelocityDecay
	}
	if o.Budget <= 0 {
		o.Budget = def.Budget
	}
	if o.Padding < 0 {
		o.Padding = 0
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	return o
}

type body struct {
	task   domain.Task
	x, y   float64
	vx, vy float64
	r      float64
}

// Simulation owns node positions for one layout run.
type Simulation struct {
	width, height float64
	opts          Options
	bodies        []body
	alpha         float64
	motion        float64
	ticks         int
	frozen        bool
}

// NewSimulation seeds one body per task on a phyllotaxis spiral around the
// canvas center.
func NewSimulation(tasks []domain.Task, width, height float64, opts Options) *Simulation {
	opts = opts.withDefaults()
	s := &Simulation{
		width:  width,
		height: height,
		opts:   opts,
		bodies: make([]body, len(tasks)),
		alpha:  1,
	}
	cx, cy := width/2, height/2
	for i, task := range tasks {
		radius := initialRadius * math.Sqrt(0.5+float64(i))
		angle := float64(i) * initialAngle
		s.bodies[i] = body{
			task: task,
			x:    cx + radius*math.Cos(angle),
			y:    cy + radius*math.Sin(angle),
			r:    domain.NodeSize(task, opts.Now),
		}
	}
	s.clamp()
	return s
}

// Advance runs one step of the simulation scaled by dt. It is a no-op once
// the simulation is frozen.
func (s *Simulation) Advance(dt float64) {
	if s.frozen || len(s.bodies) == 0 {
		return
	}
	if dt <= 0 {
		dt = 1
	}
	s.alpha += (0 - s.alpha) * s.opts.AlphaDecay

	if len(s.bodies) > 1 {
		s.applyCharge()
	}
	s.applyCenterPull()
	s.applyCenterShift()
	for range s.opts.CollideIterations {
		s.applyCollide()
	}

	motion := 0.0
	keep := 1 - s.opts.VelocityDecay
	for i := range s.bodies {
		b := &s.bodies[i]
		b.vx *= keep
		b.vy *= keep
		b.x += b.vx * dt
		b.y += b.vy * dt
		motion = math.Max(motion, math.Hypot(b.vx*dt, b.vy*dt))
	}
	s.motion = motion
	s.ticks++
	s.clamp()
}

// applyCharge adds inverse-distance repulsion between every pair.
func (s *Simulation) applyCharge() {
	for i := range s.bodies {
		for j := i + 1; j < len(s.bodies); j++ {
			a, b := &s.bodies[i], &s.bodies[j]
			dx, dy := b.x-a.x, b.y-a.y
			if dx == 0 && dy == 0 {
				dx, dy = jiggle(i, j)
			}
			l2 := math.Max(dx*dx+dy*dy, 1)
			w := s.opts.Charge * s.alpha / l2
			a.vx += dx * w
			a.vy += dy * w
			b.vx -= dx * w
			b.vy -= dy * w
		}
	}
}

// applyCenterPull nudges every body toward the canvas center on each axis.
func (s *Simulation) applyCenterPull() {
	k := s.opts.CenterStrength * s.alpha
	if k == 0 {
		return
	}
	cx, cy := s.width/2, s.height/2
	for i := range s.bodies {
		b := &s.bodies[i]
		b.vx += (cx - b.x) * k
		b.vy += (cy - b.y) * k
	}
}

// applyCenterShift translates the whole set so its mean drifts to the center.
func (s *Simulation) applyCenterShift() {
	if s.opts.CenterShift == 0 {
		return
	}
	var sx, sy float64
	for _, b := range s.bodies {
		sx += b.x
		sy += b.y
	}
	n := float64(len(s.bodies))
	sx = (sx/n - s.width/2) * s.opts.CenterShift
	sy = (sy/n - s.height/2) * s.opts.CenterShift
	for i := range s.bodies {
		s.bodies[i].x -= sx
		s.bodies[i].y -= sy
	}
}

// applyCollide pushes apart bodies whose predicted positions overlap.
func (s *Simulation) applyCollide() {
	pad := s.opts.Padding
	for i := range s.bodies {
		for j := i + 1; j < len(s.bodies); j++ {
			a, b := &s.bodies[i], &s.bodies[j]
			minDist := a.r + b.r + pad
			dx := (a.x + a.vx) - (b.x + b.vx)
			dy := (a.y + a.vy) - (b.y + b.vy)
			l2 := dx*dx + dy*dy
			if l2 >= minDist*minDist {
				continue
			}
			if l2 == 0 {
				dx, dy = jiggle(i, j)
				l2 = dx*dx + dy*dy
			}
			l := math.Sqrt(l2)
			push := (minDist - l) / l * s.opts.CollideStrength
			dx *= push
			dy *= push
			ra, rb := a.r*a.r, b.r*b.r
			share := rb / (ra + rb)
			a.vx += dx * share
			a.vy += dy * share
			b.vx -= dx * (1 - share)
			b.vy -= dy * (1 - share)
		}
	}
}

// clamp keeps every circle inside the canvas.
func (s *Simulation) clamp() {
	for i := range s.bodies {
		b := &s.bodies[i]
		b.x = clampAxis(b.x, b.r, s.width)
		b.y = clampAxis(b.y, b.r, s.height)
	}
}

func clampAxis(v, r, limit float64) float64 {
	if limit <= 2*r {
		return limit / 2
	}
	return math.Max(r, math.Min(limit-r, v))
}

// jiggle returns a small deterministic offset for coincident bodies.
func jiggle(i, j int) (float64, float64) {
	angle := float64(i*31+j*17) * initialAngle
	return math.Cos(angle) * 1e-3, math.Sin(angle) * 1e-3
}

// Settled reports whether motion or energy has dropped enough to stop.
func (s *Simulation) Settled(minMotion float64) bool {
	if s.frozen || len(s.bodies) < 2 {
		return true
	}
	if s.alpha < s.opts.AlphaMin {
		return true
	}
	return s.ticks >= minTicks && s.motion < minMotion
}

// Freeze resolves any remaining overlap, clamps, and stops the simulation.
func (s *Simulation) Freeze() {
	if s.frozen {
		return
	}
	for i := range s.bodies {
		s.bodies[i].vx, s.bodies[i].vy = 0, 0
	}
	s.resolveOverlaps()
	s.clamp()
	s.frozen = true
}

// resolveOverlaps separates overlapping pairs directly along their center
// line until no pair overlaps or the pass limit is reached.
func (s *Simulation) resolveOverlaps() {
	pad := s.opts.Padding
	for pass := 0; pass < resolvePasses; pass++ {
		moved := false
		for i := range s.bodies {
			for j := i + 1; j < len(s.bodies); j++ {
				a, b := &s.bodies[i], &s.bodies[j]
				minDist := a.r + b.r + pad
				dx, dy := b.x-a.x, b.y-a.y
				dist := math.Hypot(dx, dy)
				if dist >= minDist-overlapEpsilon {
					continue
				}
				if dist == 0 {
					dx, dy = jiggle(i, j)
					dist = math.Hypot(dx, dy)
				}
				overlap := (minDist - dist) / 2
				ux, uy := dx/dist, dy/dist
				a.x -= ux * overlap
				a.y -= uy * overlap
				b.x += ux * overlap
				b.y += uy * overlap
				moved = true
			}
		}
		s.clamp()
		if !moved {
			return
		}
	}
}

// Nodes returns a copy of the current positions.
func (s *Simulation) Nodes() []Node {
	out := make([]Node, len(s.bodies))
	for i, b := range s.bodies {
		out[i] = Node{Task: b.task, X: b.x, Y: b.y, Radius: b.r}
	}
	return out
}

// Alpha returns the current simulation energy.
func (s *Simulation) Alpha() float64 { return s.alpha }

// Motion returns the largest displacement of the last step.
func (s *Simulation) Motion() float64 { return s.motion }

// Ticks returns the number of completed steps.
func (s *Simulation) Ticks() int { return s.ticks }

// Frozen reports whether positions are final.
func (s *Simulation) Frozen() bool { return s.frozen }
