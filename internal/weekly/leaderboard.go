package weekly

import (
	"sort"
	"time"

	"github.com/redrabbit14-cmyk/my-running-dash/internal/models"
)

// Leaderboard ranks runners by distance in the current week. Runners with the
// same distance share a rank (1, 2, 2, 4).
func Leaderboard(records []models.ActivityRecord, reference time.Time, opts Options) []models.LeaderboardEntry {
	ref := Midnight(reference)
	start, end := WeekWindow(ref, 0, opts.WeekStart)

	byRunner := make(map[string]*models.LeaderboardEntry)
	for _, r := range records {
		d := Midnight(r.Date.In(ref.Location()))
		if !inWindow(d, start, end) || d.After(ref) {
			continue
		}
		entry, ok := byRunner[r.Runner]
		if !ok {
			entry = &models.LeaderboardEntry{Runner: r.Runner}
			byRunner[r.Runner] = entry
		}
		entry.TotalDistanceKm += r.DistanceKm
		entry.RunCount++
	}

	board := make([]models.LeaderboardEntry, 0, len(byRunner))
	for _, entry := range byRunner {
		board = append(board, *entry)
	}
	sort.Slice(board, func(i, j int) bool {
		a, b := board[i], board[j]
		if a.TotalDistanceKm != b.TotalDistanceKm {
			return a.TotalDistanceKm > b.TotalDistanceKm
		}
		if a.RunCount != b.RunCount {
			return a.RunCount > b.RunCount
		}
		return a.Runner < b.Runner
	})

	for i := range board {
		if i > 0 && board[i].TotalDistanceKm == board[i-1].TotalDistanceKm {
			board[i].Rank = board[i-1].Rank
		} else {
			board[i].Rank = i + 1
		}
	}
	return board
}

// WeeklyTotals returns distance per week for the last n weeks, oldest first,
// for runner or for the crew when runner is empty.
func WeeklyTotals(records []models.ActivityRecord, runner string, reference time.Time, weeks int, opts Options) []models.WeekTotal {
	if weeks <= 0 {
		return nil
	}
	ref := Midnight(reference)

	totals := make([]models.WeekTotal, weeks)
	for i := range totals {
		start, _ := WeekWindow(ref, weeks-1-i, opts.WeekStart)
		totals[i] = models.WeekTotal{
			WeekStart: start,
			Label:     start.Format("Jan 02"),
		}
	}

	oldest := totals[0].WeekStart
	for _, r := range records {
		if runner != "" && r.Runner != runner {
			continue
		}
		d := Midnight(r.Date.In(ref.Location()))
		if d.Before(oldest) || d.After(ref) {
			continue
		}
		idx := weeks - 1
		for idx > 0 && d.Before(totals[idx].WeekStart) {
			idx--
		}
		totals[idx].TotalDistanceKm += r.DistanceKm
		totals[idx].RunCount++
	}
	return totals
}
