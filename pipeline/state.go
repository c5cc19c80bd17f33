package pipeline

import (
	"sort"
	"sync"
)

// runState is the only mutable object shared across workers of a run.
type runState struct {
	mu       sync.Mutex
	stage    Stage
	pageErrs map[int]*PageError
	warnings []string
}

func newRunState() *runState {
	return &runState{pageErrs: make(map[int]*PageError)}
}

func (s *runState) setStage(stage Stage) {
	s.mu.Lock()
	s.stage = stage
	s.mu.Unlock()
}

func (s *runState) currentStage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

// exclude records the first failure of a page and reports whether it was
// new.
func (s *runState) exclude(err *PageError) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pageErrs[err.Page]; ok {
		return false
	}
	s.pageErrs[err.Page] = err
	return true
}

func (s *runState) excluded(page int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pageErrs[page]
	return ok
}

func (s *runState) excludedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pageErrs)
}

// pageErrors returns collected page errors ordered by page.
func (s *runState) pageErrors() []*PageError {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*PageError, 0, len(s.pageErrs))
	for _, e := range s.pageErrs {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Page < out[j].Page })
	return out
}

func (s *runState) warn(msg string) {
	s.mu.Lock()
	s.warnings = append(s.warnings, msg)
	s.mu.Unlock()
}

func (s *runState) warningList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.warnings...)
}
