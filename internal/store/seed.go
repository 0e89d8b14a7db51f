package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"actionflow/internal/action"
)

// Seed loads one sample item per action type when the store is empty.
// It is a no-op otherwise.
func Seed(ctx context.Context, s Store, now time.Time) error {
	existing, err := s.List(ctx, Filter{})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	items := []action.Item{
		{
			ID:          uuid.NewString(),
			Title:       "Send Q1 Financial Report",
			Description: "Include revenue metrics, growth projections, and market analysis",
			Type:        action.TypeEmail,
			Status:      action.StatusPending,
			Priority:    action.PriorityHigh,
			DueDate:     now.Add(24 * time.Hour),
			Metadata: map[string]any{
				action.MetaEmailTo:      []string{"john@company.com", "sarah@company.com", "board@company.com"},
				action.MetaEmailSubject: "Q1 Financial Report",
				action.MetaEmailBody:    "Please find attached the Q1 financial report with detailed analysis.",
			},
		},
		{
			ID:          uuid.NewString(),
			Title:       "Daily Team Standup",
			Description: "Engineering team daily sync meeting",
			Type:        action.TypeCalendar,
			Status:      action.StatusPending,
			Priority:    action.PriorityMedium,
			DueDate:     now.Add(time.Hour),
			Metadata: map[string]any{
				action.MetaCalendarEventDetails: map[string]any{
					"attendees":   []string{"dev-team@company.com", "john@company.com"},
					"startTime":   now.Add(time.Hour).Format(time.RFC3339),
					"duration":    30,
					"location":    "Conference Room B",
					"description": "Daily standup to discuss progress and blockers",
				},
			},
		},
		{
			ID:          uuid.NewString(),
			Title:       "Follow up with client about contract",
			Description: "Check on project delivery timeline and next steps",
			Type:        action.TypeReminder,
			Status:      action.StatusPending,
			Priority:    action.PriorityUrgent,
			DueDate:     now.Add(2 * time.Hour),
			Metadata: map[string]any{
				action.MetaReminderTime:    now.Add(2 * time.Hour).Format(time.RFC3339),
				action.MetaReminderMessage: "Time to follow up with the client!",
			},
		},
		{
			ID:          uuid.NewString(),
			Title:       "Review code pull requests",
			Description: "Check pending PRs and provide feedback",
			Type:        action.TypePriority,
			Status:      action.StatusPending,
			Priority:    action.PriorityHigh,
			DueDate:     now.Add(4 * time.Hour),
		},
	}

	for _, it := range items {
		if err := s.Create(ctx, it); err != nil {
			return err
		}
	}
	return nil
}
