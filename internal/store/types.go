package store

// VoteStats is the aggregate tally across all recorded votes. Totals are
// computed from the vote records themselves, never from the denormalized
// per-session counters.
type VoteStats struct {
	CoffeeTotal int64 `json:"coffeeTotal"`
	TeaTotal    int64 `json:"teaTotal"`
	TotalVotes  int64 `json:"totalVotes"`
}
