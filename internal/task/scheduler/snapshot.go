package scheduler

import (
	"sort"

	"winova/internal/task/engine"
)

// Snapshot lists jobs ordered by next fire time, then id. If the engine is
// an *engine.Service its diagnostics are included.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	jobs := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j.info())
	}
	snap := Snapshot{
		Enabled:  s.cfg.Enabled,
		Running:  s.c != nil,
		Timezone: s.loc.String(),
	}
	eng := s.engine
	s.mu.Unlock()

	sort.Slice(jobs, func(a, b int) bool {
		if !jobs[a].NextFire.Equal(jobs[b].NextFire) {
			return jobs[a].NextFire.Before(jobs[b].NextFire)
		}
		return jobs[a].ID < jobs[b].ID
	})
	snap.Jobs = jobs

	if es, ok := eng.(*engine.Service); ok && es != nil {
		v := es.Snapshot()
		snap.Engine = &v
	}
	return snap
}
