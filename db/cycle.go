package db

import (
	"time"

	"github.com/aux-fm/auxio/models"
)

// GetCycle returns the live cycle singleton.
func (db *DB) GetCycle() (*models.Cycle, error) {
	cycle := &models.Cycle{}

	err := db.QueryRow(`
	SELECT number, reveal_time, previous_reveal_time, updated_at
	FROM cycles WHERE id = 1`).Scan(
		&cycle.Number, &cycle.RevealTime, &cycle.PreviousRevealTime, &cycle.UpdatedAt)

	if err != nil {
		return nil, err
	}

	return cycle, nil
}

// AdvanceCycle increments the cycle number and installs the new reveal
// time, retaining the prior reveal time for lateness computation. The
// read and write run in one transaction so a racing duplicate
// invocation cannot lose the previous_reveal_time chain.
func (db *DB) AdvanceCycle(reveal, now time.Time) (*models.Cycle, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	cycle := &models.Cycle{}
	err = tx.QueryRow(`
	SELECT number, reveal_time FROM cycles WHERE id = 1`).Scan(
		&cycle.Number, &cycle.PreviousRevealTime)
	if err != nil {
		return nil, err
	}

	cycle.Number++
	cycle.RevealTime = reveal
	cycle.UpdatedAt = now

	_, err = tx.Exec(`
	UPDATE cycles
	SET number = ?, reveal_time = ?, previous_reveal_time = ?, updated_at = ?
	WHERE id = 1`,
		cycle.Number, cycle.RevealTime, cycle.PreviousRevealTime, cycle.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return cycle, nil
}
