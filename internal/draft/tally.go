package draft

// Tally is the per-team rollup of a session's match results.
type Tally struct {
	TeamAWins int `json:"team_a_wins"`
	TeamBWins int `json:"team_b_wins"`
	Ties      int `json:"ties"`
}

// Winner returns the side that won the draft, or TeamNone on a tie.
func (t Tally) Winner() TeamSide {
	switch {
	case t.TeamAWins > t.TeamBWins:
		return TeamA
	case t.TeamBWins > t.TeamAWins:
		return TeamB
	default:
		return TeamNone
	}
}

// WinPercent computes a side's share of the matches. Tied matches are
// excluded from the denominator unless countTies is set.
func (t Tally) WinPercent(side TeamSide, countTies bool) float64 {
	wins := 0
	switch side {
	case TeamA:
		wins = t.TeamAWins
	case TeamB:
		wins = t.TeamBWins
	}
	total := t.TeamAWins + t.TeamBWins
	if countTies {
		total += t.Ties
	}
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

// Tally rolls the recorded match results up into team scores. Each match with
// a winner counts one win for the winner's team; matches played to an equal
// nonzero score count as ties; unplayed matches count toward neither. The
// computation is pure: the same result snapshot always yields the same tally.
func (s *Session) Tally() Tally {
	var t Tally
	for _, res := range s.Results {
		if res.Winner != nil {
			switch s.TeamOf(*res.Winner) {
			case TeamA:
				t.TeamAWins++
			case TeamB:
				t.TeamBWins++
			}
			continue
		}
		if res.Played() {
			t.Ties++
		}
	}
	return t
}
