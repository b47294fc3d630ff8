package knowledge

import (
	"github.com/xiaot623/gogo/planner/internal/domain"
)

// RecordDecision appends d to the decision log, assigning the next id and
// the elapsed time since the run started. It never fails.
func (sc *SharedContext) RecordDecision(d domain.Decision) domain.Decision {
	now := sc.now()
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.nextDecisionID++
	d.ID = sc.nextDecisionID
	d.Timestamp = now
	d.ElapsedMs = now.Sub(sc.startedAt).Milliseconds()
	if len(d.Alternatives) > 0 {
		d.Alternatives = append([]domain.Alternative(nil), d.Alternatives...)
	}
	sc.decisions = append(sc.decisions, d)
	return d
}

// Decisions returns the decision log in completion order.
func (sc *SharedContext) Decisions() []domain.Decision {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return append([]domain.Decision(nil), sc.decisions...)
}

// DecisionsSince returns decisions with an id greater than afterID.
func (sc *SharedContext) DecisionsSince(afterID int64) []domain.Decision {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	var out []domain.Decision
	for _, d := range sc.decisions {
		if d.ID > afterID {
			out = append(out, d)
		}
	}
	return out
}

// SendMessage appends an inter-agent message to the communication log.
func (sc *SharedContext) SendMessage(from, to string, payload any) domain.Communication {
	msg := domain.Communication{
		From:      from,
		To:        to,
		Payload:   payload,
		Timestamp: sc.now(),
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.communications = append(sc.communications, msg)
	return msg
}

// Communications returns the communication log.
func (sc *SharedContext) Communications() []domain.Communication {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return append([]domain.Communication(nil), sc.communications...)
}

// MessagesFor returns messages addressed to the named agent.
func (sc *SharedContext) MessagesFor(to string) []domain.Communication {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	var out []domain.Communication
	for _, m := range sc.communications {
		if m.To == to {
			out = append(out, m)
		}
	}
	return out
}
