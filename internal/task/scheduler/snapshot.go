package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
)

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	c := s.c
	loc := s.loc
	tasks := append([]*Task(nil), s.tasks...)
	ids := make([]cron.EntryID, len(tasks))
	for i, t := range tasks {
		ids[i] = t.entryID
	}
	s.mu.Unlock()

	if loc == nil {
		loc = s.loadLocation()
	}
	snap := Snapshot{Started: c != nil, Timezone: loc.String(), Tasks: make([]TaskInfo, 0, len(tasks))}
	for i, t := range tasks {
		ti := t.info()
		if !ti.LastTick.IsZero() {
			ti.LastTick = ti.LastTick.In(loc)
		}
		if c != nil && ids[i] != 0 {
			ti.NextTick = c.Entry(ids[i]).Next
		}
		snap.Tasks = append(snap.Tasks, ti)
	}
	return snap
}

// Info returns the snapshot of a single task.
func (s *Service) Info(name string) (TaskInfo, bool) {
	for _, ti := range s.Snapshot().Tasks {
		if ti.Name == name {
			return ti, true
		}
	}
	return TaskInfo{}, false
}

func (s *Service) loadLocation() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocationLocked()
}
