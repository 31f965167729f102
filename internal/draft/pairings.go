package draft

import "fmt"

// Rounds is the fixed number of rounds in a team draft.
const Rounds = 3

// GeneratePairings builds the round-robin schedule for two equally sized
// teams. Round 1 pairs the teams index-wise; each following round rotates
// team B left by one before re-pairing, so round r pairs teamA[i] with
// teamB[(i+r-1) mod n]. With 3 or 4 players per side this gives every team-A
// player a distinct opponent in each of the 3 rounds.
//
// Match numbers start at startMatch and grow strictly, one per pairing; the
// returned next number lets the caller continue the sequence later. The
// output is deterministic in the input order — shuffle the rosters first if
// unpredictability is wanted.
func GeneratePairings(teamA, teamB []string, startMatch int) (map[int][]Pairing, int, error) {
	if len(teamA) != len(teamB) {
		return nil, 0, &Error{Code: ErrUnbalancedTeams, Message: "teams must be of equal size"}
	}
	n := len(teamA)
	if n != 3 && n != 4 {
		return nil, 0, &Error{
			Code:    ErrUnsupportedPlayerCount,
			Message: fmt.Sprintf("%v players are not supported, must be 6 or 8", 2*n),
		}
	}
	rounds := make(map[int][]Pairing, Rounds)
	match := startMatch
	for r := 1; r <= Rounds; r++ {
		ps := make([]Pairing, 0, n)
		for i := range n {
			ps = append(ps, Pairing{
				Player:   teamA[i],
				Opponent: teamB[(i+r-1)%n],
				Match:    match,
			})
			match++
		}
		rounds[r] = ps
	}
	return rounds, match, nil
}
