package catalog

import (
	"context"
	"sort"

	"github.com/ferrexpert/cotizador/internal/store"
)

// frequentCap bounds the picker cache to the top entries by usage.
const frequentCap = 10

// FrequentClients returns the persisted top-10 picker cache, most used first.
func (s *Service) FrequentClients() []FrequentClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FrequentClient, len(s.frequent))
	copy(out, s.frequent)
	return out
}

// BumpFrequent increments the usage counter for the given client, re-sorts
// the cache by usage descending, truncates it to the cap, and persists it.
// Called whenever a client is chosen through the picker.
func (s *Service) BumpFrequent(ctx context.Context, c Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := NormalizeRUT(c.Rut)
	found := false
	for i := range s.frequent {
		if NormalizeRUT(s.frequent[i].Rut) == key {
			s.frequent[i].Usos++
			found = true
			break
		}
	}
	if !found {
		s.frequent = append(s.frequent, FrequentClient{Client: c, Usos: 1})
	}

	sort.SliceStable(s.frequent, func(i, j int) bool {
		return s.frequent[i].Usos > s.frequent[j].Usos
	})
	if len(s.frequent) > frequentCap {
		s.frequent = s.frequent[:frequentCap]
	}
	return s.kv.SetJSON(ctx, store.KeyFrequentClients, s.frequent)
}
