package models

import (
	"fmt"
	"sort"
	"strconv"
)

// VoteCount is the number of participants who picked a card.
type VoteCount struct {
	Value Card `json:"value"`
	Count int  `json:"count"`
}

// Summary aggregates the votes of a revealed round.
type Summary struct {
	Average    *float64    `json:"average"`
	Consensus  string      `json:"consensus"`
	Counts     []VoteCount `json:"counts"`
	TotalVotes int         `json:"total_votes"`
}

// Summarize computes the average of numeric cards, the consensus value and
// per-card counts. NoVote entries are ignored.
func Summarize(votes []Card) Summary {
	var (
		sum     int
		numeric int
		order   []Card
		counts  = make(map[Card]int)
	)

	for _, v := range votes {
		if v == NoVote {
			continue
		}
		if n, err := strconv.Atoi(string(v)); err == nil {
			sum += n
			numeric++
		}
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}

	summary := Summary{Counts: make([]VoteCount, 0, len(order))}
	for _, v := range order {
		summary.Counts = append(summary.Counts, VoteCount{Value: v, Count: counts[v]})
		summary.TotalVotes += counts[v]
	}
	sort.SliceStable(summary.Counts, func(i, j int) bool {
		a, aErr := strconv.Atoi(string(summary.Counts[i].Value))
		b, bErr := strconv.Atoi(string(summary.Counts[j].Value))
		switch {
		case aErr != nil && bErr != nil:
			return false
		case aErr != nil:
			return false
		case bErr != nil:
			return true
		}
		return a < b
	})

	if numeric > 0 {
		avg := float64(sum) / float64(numeric)
		summary.Average = &avg
	}

	switch len(order) {
	case 0:
	case 1:
		summary.Consensus = string(order[0])
	default:
		best := 0
		for _, c := range summary.Counts {
			if c.Count > best {
				best = c.Count
			}
		}
		var top []Card
		for _, c := range summary.Counts {
			if c.Count == best {
				top = append(top, c.Value)
			}
		}
		if len(top) == 1 {
			summary.Consensus = fmt.Sprintf("%s (%d/%d)", top[0], best, summary.TotalVotes)
		} else {
			summary.Consensus = "No consensus"
		}
	}

	return summary
}
