// internal/database/match.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MatchResult is one player's final line in a finished match.
type MatchResult struct {
	UserID uuid.UUID
	Score  int
	DidWin bool
}

// RecordMatchAndResults persists the final outcome of a match and its
// per-player results rows.
func RecordMatchAndResults(ctx context.Context, matchID, roomID uuid.UUID, results []MatchResult) error {
	if DB == nil {
		return nil
	}
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		upsertMatch := `
			INSERT INTO matches (id, room_id, status, end_time)
			VALUES ($1, $2, 'completed', NOW())
			ON CONFLICT (id) DO UPDATE SET status = 'completed', end_time = NOW()
		`
		if _, e := tx.Exec(ctx, upsertMatch, matchID, roomID); e != nil {
			return e
		}

		for _, r := range results {
			q := `
				INSERT INTO match_results (match_id, player_id, score, did_win)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (match_id, player_id)
				DO UPDATE SET score=$3, did_win=$4
			`
			if _, e := tx.Exec(ctx, q, matchID, r.UserID, r.Score, r.DidWin); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx upsert match or results: %w", err)
	}
	return nil
}

// StoreFinalMatchState updates the matches.final_state column with JSON
// containing each player's final board and the winner.
func StoreFinalMatchState(ctx context.Context, matchID uuid.UUID, finalSnapshot map[string]interface{}) error {
	if DB == nil {
		return nil
	}
	jsonData, err := json.Marshal(finalSnapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal final snapshot: %w", err)
	}
	q := `
		UPDATE matches
		SET final_state = $1
		WHERE id = $2
	`
	err = pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, e := tx.Exec(ctx, q, jsonData, matchID)
		return e
	})
	if err != nil {
		return fmt.Errorf("storing final match state in DB: %w", err)
	}
	return nil
}

// UpsertInitialMatchState stores the post-deal deck order and hands into
// matches.initial_state, for deterministic replay.
func UpsertInitialMatchState(matchID uuid.UUID, initialData interface{}) {
	ctx := context.Background()
	dataBytes, err := json.Marshal(initialData)
	if err != nil {
		log.Printf("failed to marshal initial match state for match %v: %v", matchID, err)
		return
	}
	if DB == nil {
		return
	}
	_ = pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			INSERT INTO matches (id, status, initial_state, start_time)
			VALUES ($1, 'in_progress', $2, NOW())
			ON CONFLICT (id)
			DO UPDATE SET initial_state = EXCLUDED.initial_state, status='in_progress'
		`
		_, e := tx.Exec(ctx, q, matchID, dataBytes)
		return e
	})
}
