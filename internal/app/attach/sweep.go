package attach

import (
	"context"
	"time"

	"github.com/dkeye/parley/internal/domain"
)

// Run sweeps every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.log.Info().Dur("interval", m.interval).Msg("attachment sweeper started")
	for {
		select {
		case <-ctx.Done():
			m.log.Info().Msg("attachment sweeper stopped")
			return nil
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep removes expired attachments, deletes their blobs and prunes
// messages left with neither body nor attachments. An attachment leaves the
// set in the same step that schedules its delete, so no key is deleted twice.
func (m *Manager) Sweep(ctx context.Context) SweepResult {
	now := m.now()
	res := SweepResult{At: now}

	m.mu.Lock()
	var keys []string
	for k := range m.pending {
		keys = append(keys, k)
	}
	clear(m.pending)

	order := m.order[:0]
	for _, id := range m.order {
		msg := m.msgs[id]
		var expired int
		for _, a := range msg.Attachments {
			if a.Expired(now) {
				expired++
			}
		}
		if expired > 0 {
			active := make([]domain.Attachment, 0, len(msg.Attachments)-expired)
			for _, a := range msg.Attachments {
				if !a.Expired(now) {
					active = append(active, a)
					continue
				}
				res.Expired = append(res.Expired, a.ID)
				keys = append(keys, m.release([]domain.Attachment{a})...)
			}
			if len(active) == 0 {
				active = nil
			}
			msg.Attachments = active
		}
		if msg.Empty() {
			delete(m.msgs, id)
			res.Pruned = append(res.Pruned, id)
			continue
		}
		order = append(order, id)
	}
	m.order = order
	m.mu.Unlock()

	res.Deleted, res.Failed = m.deleteKeys(ctx, keys)
	if !res.Empty() {
		m.log.Info().
			Int("expired", len(res.Expired)).
			Int("pruned", len(res.Pruned)).
			Int("deleted", len(res.Deleted)).
			Int("failed", len(res.Failed)).
			Msg("sweep")
		m.notify(res)
	}
	return res
}

// Subscribe streams non-empty sweep results. Results are dropped for
// readers that fall behind.
func (m *Manager) Subscribe() (<-chan SweepResult, func()) {
	ch := make(chan SweepResult, 8)
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.subMu.Unlock()
	return ch, func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

func (m *Manager) notify(res SweepResult) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- res:
		default:
		}
	}
}
