package ledger

import "time"

// AppendRaw inserts a transaction into the in-memory store without adjusting
// the pair balance, the way a raw insert bypassing the Postgres trigger
// would. Test helper for exercising Recompute.
func AppendRaw(s Store, t Transaction) {
	if mem, ok := s.(*memoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now().UTC()
		}
		mem.txs = append(mem.txs, t)
	}
}

// Reminders returns the reminder rows recorded in the in-memory store. Test helper.
func Reminders(s Store) []Reminder {
	if mem, ok := s.(*memoryStore); ok {
		mem.mu.RLock()
		defer mem.mu.RUnlock()
		out := make([]Reminder, len(mem.reminders))
		copy(out, mem.reminders)
		return out
	}
	return nil
}
