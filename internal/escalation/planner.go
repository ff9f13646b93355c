package escalation

import (
	"time"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/config"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
)

// Planner assigns deadlines to the checks a transition arms.
type Planner struct {
	overdue      time.Duration
	delegateIdle time.Duration
}

func NewPlanner(cfg config.EscalationConfig) *Planner {
	return &Planner{overdue: cfg.OverdueWindow, delegateIdle: cfg.DelegateIdleWindow}
}

// Window returns how long an appeal may sit before a check of kind fires.
func (p *Planner) Window(kind domain.CheckKind) time.Duration {
	if kind == domain.CheckDelegateIdle {
		return p.delegateIdle
	}
	return p.overdue
}

// Plan stamps ArmedAt and DueAt on every check of out, counting from at.
func (p *Planner) Plan(out *domain.Outcome, at time.Time) {
	if out == nil {
		return
	}
	for i := range out.Checks {
		out.Checks[i].ArmedAt = at
		out.Checks[i].DueAt = at.Add(p.Window(out.Checks[i].Kind))
	}
}
