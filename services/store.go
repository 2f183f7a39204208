package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"evg-scoreboard/models"
	"evg-scoreboard/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Page is a skip/limit window over a reverse-chronological list.
type Page struct {
	Skip  int `json:"skip"`
	Limit int `json:"limit"`
}

const (
	defaultPageLimit = 100
	maxPageLimit     = 500
)

func (p Page) normalize() (Page, error) {
	if p.Skip < 0 {
		return p, &ValidationError{Field: "skip", Message: "must not be negative"}
	}
	if p.Limit < 0 {
		return p, &ValidationError{Field: "limit", Message: "must not be negative"}
	}
	if p.Limit == 0 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	return p, nil
}

// lockParticipant loads a participant inside tx, taking a row lock where the database supports one.
func lockParticipant(tx *gorm.DB, id uint) (*models.Participant, error) {
	q := tx
	if utils.IsPostgres(tx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var p models.Participant
	if err := q.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "participant", ID: id}
		}
		return nil, fmt.Errorf("load participant %d: %w", id, err)
	}
	return &p, nil
}

func participantExists(db *gorm.DB, id uint) error {
	var count int64
	if err := db.Model(&models.Participant{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("lookup participant %d: %w", id, err)
	}
	if count == 0 {
		return &NotFoundError{Resource: "participant", ID: id}
	}
	return nil
}

// readSnapshot runs fn in a read-only transaction that sees one consistent state.
// Postgres gets REPEATABLE READ; sqlite transactions are already serializable.
func readSnapshot(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	var opts []*sql.TxOptions
	if utils.IsPostgres(db) {
		opts = append(opts, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	}
	return db.WithContext(ctx).Transaction(fn, opts...)
}
