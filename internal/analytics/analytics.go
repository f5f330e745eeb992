package analytics

import (
	"context"
	"time"

	"praetor/internal/storage"
)

type Service struct {
	store *storage.Store
}

func New(store *storage.Store) *Service {
	return &Service{store: store}
}

type Report struct {
	Total     int
	ByLevel   map[string]int
	Sanctions int
	ByPolicy  map[string]int
	TopUsers  []UserCount
}

type UserCount struct {
	UserID string
	Count  int
}

func (s *Service) Report(ctx context.Context, guildID string, since time.Time) (Report, error) {
	logs, err := s.store.ListAuditLogs(ctx, guildID, since)
	if err != nil {
		return Report{}, err
	}

	report := Report{ByLevel: make(map[string]int)}
	for _, log := range logs {
		report.Total++
		report.ByLevel[log.Level]++
	}

	byPolicy, err := s.store.CountSanctionsByPolicy(ctx, guildID, since)
	if err != nil {
		return Report{}, err
	}
	report.ByPolicy = byPolicy
	for _, n := range byPolicy {
		report.Sanctions += n
	}

	events, err := s.store.ListSanctionEvents(ctx, guildID, since)
	if err != nil {
		return Report{}, err
	}
	report.TopUsers = topUsers(events, 5)

	return report, nil
}

func topUsers(events []storage.SanctionEvent, limit int) []UserCount {
	perUser := make(map[string]int)
	for _, ev := range events {
		perUser[ev.UserID]++
	}

	counts := make([]UserCount, 0, len(perUser))
	for userID, n := range perUser {
		counts = append(counts, UserCount{UserID: userID, Count: n})
	}
	for i := 0; i < len(counts); i++ {
		for j := i + 1; j < len(counts); j++ {
			if counts[j].Count > counts[i].Count {
				counts[i], counts[j] = counts[j], counts[i]
			}
		}
	}
	if len(counts) > limit {
		counts = counts[:limit]
	}
	return counts
}
