package api

import (
	"slices"
	"sync"

	"github.com/ashureev/studyhub/internal/domain"
)

// maxHeldSummaries bounds how many admins can hold an undismissed summary.
const maxHeldSummaries = 1024

// summaryStore holds the last payment summary per admin. When full, the
// least recently stored summary is dropped.
type summaryStore struct {
	mu      sync.Mutex
	max     int
	entries map[string]*domain.PaymentSummary
	order   []string
}

func newSummaryStore(max int) *summaryStore {
	return &summaryStore{
		max:     max,
		entries: make(map[string]*domain.PaymentSummary),
	}
}

func (s *summaryStore) Store(adminID string, summary *domain.PaymentSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[adminID]; ok {
		s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == adminID })
	}
	s.entries[adminID] = summary
	s.order = append(s.order, adminID)

	for len(s.order) > s.max {
		delete(s.entries, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *summaryStore) Load(adminID string) (*domain.PaymentSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary, ok := s.entries[adminID]
	return summary, ok
}

func (s *summaryStore) Delete(adminID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[adminID]; !ok {
		return
	}
	delete(s.entries, adminID)
	s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == adminID })
}

func (s *summaryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
