// Package leaderboard turns player records into a ranked display list.
package leaderboard

import (
	"cmp"
	"slices"
	"time"

	"github.com/mcdev12/tapchain/go/internal/ledger"
)

// DefaultSize is how many entries the board shows.
const DefaultSize = 10

const pointsPerLevel = 1000

type Entry struct {
	Rank     int            `json:"rank"`
	Identity ledger.Address `json:"identity"`
	Score    uint64         `json:"score"`
	Games    uint64         `json:"games"`
}

// sorted returns a copy ordered by high score, highest first. Ties keep
// their input order.
func sorted(records []ledger.PlayerRecord) []ledger.PlayerRecord {
	out := slices.Clone(records)
	slices.SortStableFunc(out, func(a, b ledger.PlayerRecord) int {
		return cmp.Compare(b.HighScore, a.HighScore)
	})
	return out
}

// Project ranks records and keeps the top size entries. A size of zero or
// less means DefaultSize.
func Project(records []ledger.PlayerRecord, size int) []Entry {
	if size <= 0 {
		size = DefaultSize
	}
	ordered := sorted(records)
	if len(ordered) > size {
		ordered = ordered[:size]
	}

	entries := make([]Entry, len(ordered))
	for i, r := range ordered {
		entries[i] = Entry{
			Rank:     i + 1,
			Identity: r.Wallet,
			Score:    r.HighScore,
			Games:    r.TotalGames,
		}
	}
	return entries
}

// RankOf returns the 1-based rank of identity over all records, or false if
// it has no record.
func RankOf(records []ledger.PlayerRecord, identity ledger.Address) (int, bool) {
	for i, r := range sorted(records) {
		if r.Wallet == identity {
			return i + 1, true
		}
	}
	return 0, false
}

// PlayerStats is the "your stats" panel.
type PlayerStats struct {
	Identity    ledger.Address `json:"identity"`
	HighScore   uint64         `json:"highScore"`
	GamesPlayed uint64         `json:"gamesPlayed"`
	Level       uint64         `json:"level"`
	LastPlayed  time.Time      `json:"lastPlayed,omitzero"`
	// Rank is zero when the player is not on the ledger yet.
	Rank int `json:"rank"`
}

// Stats builds the stats of player, ranked against all records.
func Stats(player *ledger.PlayerRecord, records []ledger.PlayerRecord) PlayerStats {
	if player == nil {
		return PlayerStats{Level: 1}
	}
	rank, _ := RankOf(records, player.Wallet)
	return PlayerStats{
		Identity:    player.Wallet,
		HighScore:   player.HighScore,
		GamesPlayed: player.TotalGames,
		Level:       player.HighScore/pointsPerLevel + 1,
		LastPlayed:  player.LastPlayedAt(),
		Rank:        rank,
	}
}
