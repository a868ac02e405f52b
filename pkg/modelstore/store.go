package modelstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/CTAG07/Glossolalia/pkg/charmarkov"
)

// ErrModelNotFound is returned when a named model does not exist in the
// database.
var ErrModelNotFound = errors.New("modelstore: model not found")

// ModelInfo holds the metadata for a stored model: its database ID, its
// name, and the order it was trained at.
type ModelInfo struct {
	Id    int
	Name  string
	Order int
}

// SetupSchema initializes the necessary tables in the provided database.
// It is idempotent and safe to call on an already-initialized database.
func SetupSchema(db *sql.DB) error {
	const (
		schemaModels = `
CREATE TABLE IF NOT EXISTS charmarkov_models (
    model_id INTEGER PRIMARY KEY,
    model_name TEXT NOT NULL UNIQUE,
    model_order INTEGER NOT NULL
);
`
		schemaTransitions = `
CREATE TABLE IF NOT EXISTS charmarkov_transitions (
    model_id INTEGER NOT NULL,
    history TEXT NOT NULL,
    next_char TEXT NOT NULL,
    count INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (model_id, history, next_char)
);
`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaModels); err != nil {
		return fmt.Errorf("could not create models schema: %w", err)
	}
	if _, err = tx.Exec(schemaTransitions); err != nil {
		return fmt.Errorf("could not create transitions schema: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// Store reads and writes charmarkov models in a SQLite database. It holds
// the database connection and prepared SQL statements for the hot paths.
type Store struct {
	db                 *sql.DB
	stmtGetModel       *sql.Stmt
	stmtListModels     *sql.Stmt
	stmtAddModel       *sql.Stmt
	stmtGetTransitions *sql.Stmt
	stmtPrune          *sql.Stmt
	logger             *slog.Logger
}

// NewStore creates a Store over an initialized database, pre-compiling all
// necessary SQL statements. It returns an error if any preparation fails.
func NewStore(db *sql.DB) (*Store, error) {
	stmtGetModel, err := db.Prepare(`SELECT model_id, model_order FROM charmarkov_models WHERE model_name = ?;`)
	if err != nil {
		return nil, err
	}

	stmtListModels, err := db.Prepare(`SELECT model_id, model_name, model_order FROM charmarkov_models;`)
	if err != nil {
		return nil, err
	}

	stmtAddModel, err := db.Prepare(`INSERT INTO charmarkov_models (model_name, model_order) VALUES (?, ?) RETURNING model_id;`)
	if err != nil {
		return nil, err
	}

	stmtGetTransitions, err := db.Prepare(`SELECT history, next_char, count FROM charmarkov_transitions WHERE model_id = ?;`)
	if err != nil {
		return nil, err
	}

	stmtPrune, err := db.Prepare(`DELETE FROM charmarkov_transitions WHERE model_id = ? AND count < ?;`)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:                 db,
		stmtGetModel:       stmtGetModel,
		stmtListModels:     stmtListModels,
		stmtAddModel:       stmtAddModel,
		stmtGetTransitions: stmtGetTransitions,
		stmtPrune:          stmtPrune,
		logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// Close releases all prepared SQL statements held by the Store. It does
// not close the underlying database.
func (s *Store) Close() {
	_ = s.stmtGetModel.Close()
	_ = s.stmtListModels.Close()
	_ = s.stmtAddModel.Close()
	_ = s.stmtGetTransitions.Close()
	_ = s.stmtPrune.Close()
}

// SetLogger sets the logger for the Store. By default all logs are
// discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// GetInfo retrieves the metadata for a single stored model by name.
func (s *Store) GetInfo(ctx context.Context, name string) (ModelInfo, error) {
	info := ModelInfo{Name: name}
	err := s.stmtGetModel.QueryRowContext(ctx, name).Scan(&info.Id, &info.Order)
	if errors.Is(err, sql.ErrNoRows) {
		return ModelInfo{}, fmt.Errorf("%w: %q", ErrModelNotFound, name)
	}
	if err != nil {
		return ModelInfo{}, err
	}
	return info, nil
}

// List retrieves metadata for all models currently in the database.
func (s *Store) List(ctx context.Context) ([]ModelInfo, error) {
	rows, err := s.stmtListModels.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var models []ModelInfo
	for rows.Next() {
		var info ModelInfo
		if err = rows.Scan(&info.Id, &info.Name, &info.Order); err != nil {
			return nil, err
		}
		models = append(models, info)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return models, nil
}

// Save writes a model's raw counts under the given name. If the name is
// new, a model row is created; if it exists with the same order, the
// counts are merged (added), so saving two corpora under one name behaves
// like training on their concatenation minus the window across the seam.
// A name that exists with a different order is rejected. The entire
// operation is performed within a transaction.
func (s *Store) Save(ctx context.Context, name string, model *charmarkov.Model) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction for save: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	var modelID, storedOrder int
	err = tx.StmtContext(ctx, s.stmtGetModel).QueryRowContext(ctx, name).Scan(&modelID, &storedOrder)
	if errors.Is(err, sql.ErrNoRows) {
		storedOrder = model.Order()
		if err = tx.StmtContext(ctx, s.stmtAddModel).QueryRowContext(ctx, name, storedOrder).Scan(&modelID); err != nil {
			return fmt.Errorf("failed to insert model %q: %w", name, err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to query for model %q: %w", name, err)
	}
	if storedOrder != model.Order() {
		return fmt.Errorf("model %q is stored with order %d, cannot save order %d", name, storedOrder, model.Order())
	}

	stmtUpsert, err := tx.PrepareContext(ctx, `
		INSERT INTO charmarkov_transitions (model_id, history, next_char, count) VALUES (?, ?, ?, ?)
		ON CONFLICT(model_id, history, next_char) DO UPDATE SET count = count + excluded.count;
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare transition upsert statement: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtUpsert)

	var transitions int
	for history, successors := range model.Counts() {
		for char, count := range successors {
			if _, err = stmtUpsert.ExecContext(ctx, modelID, history, string(char), count); err != nil {
				return fmt.Errorf("failed to upsert transition (%q -> %q): %w", history, char, err)
			}
			transitions++
		}
	}

	s.logger.InfoContext(ctx, "Model saved",
		slog.String("model_name", name),
		slog.Int("model_id", modelID),
		slog.Int("model_order", storedOrder),
		slog.Int("transitions_written", transitions),
	)

	return tx.Commit()
}

// Load reads a stored model's counts and rebuilds a normalized model from
// them.
func (s *Store) Load(ctx context.Context, name string) (*charmarkov.Model, error) {
	info, err := s.GetInfo(ctx, name)
	if err != nil {
		return nil, err
	}

	rows, err := s.stmtGetTransitions.QueryContext(ctx, info.Id)
	if err != nil {
		return nil, fmt.Errorf("could not query transitions for %q: %w", name, err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	counts := make(map[string]map[rune]int)
	for rows.Next() {
		var history, charText string
		var count int
		if err = rows.Scan(&history, &charText, &count); err != nil {
			return nil, err
		}
		chars := []rune(charText)
		if len(chars) != 1 {
			return nil, fmt.Errorf("corrupt transition for %q: next_char %q is not a single character", name, charText)
		}
		row, ok := counts[history]
		if !ok {
			row = make(map[rune]int)
			counts[history] = row
		}
		row[chars[0]] = count
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	model, err := charmarkov.FromCounts(info.Order, counts)
	if err != nil {
		return nil, fmt.Errorf("could not rebuild model %q: %w", name, err)
	}

	s.logger.InfoContext(ctx, "Model loaded",
		slog.String("model_name", name),
		slog.Int("model_id", info.Id),
		slog.Int("histories", model.Len()),
	)

	return model, nil
}

// Delete removes a model and all of its transitions from the database.
// The operation is performed within a transaction.
func (s *Store) Delete(ctx context.Context, name string) error {
	info, err := s.GetInfo(ctx, name)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction for delete: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.ExecContext(ctx, "DELETE FROM charmarkov_transitions WHERE model_id = ?", info.Id); err != nil {
		return fmt.Errorf("failed to remove transitions for model %d: %w", info.Id, err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM charmarkov_models WHERE model_id = ?", info.Id); err != nil {
		return fmt.Errorf("failed to remove model %d: %w", info.Id, err)
	}

	s.logger.InfoContext(ctx, "Model removed",
		slog.String("model_name", name),
		slog.Int("model_id", info.Id),
	)

	return tx.Commit()
}

// Prune removes all transitions of a stored model observed fewer than
// minCount times. This reduces model size by dropping rare, often noisy
// transitions; the next Load re-normalizes over what survives.
func (s *Store) Prune(ctx context.Context, name string, minCount int) error {
	info, err := s.GetInfo(ctx, name)
	if err != nil {
		return err
	}

	res, err := s.stmtPrune.ExecContext(ctx, info.Id, minCount)
	if err != nil {
		return fmt.Errorf("could not prune model %q: %w", name, err)
	}
	rowsAffected, _ := res.RowsAffected()

	s.logger.InfoContext(ctx, "Model pruned",
		slog.String("model_name", name),
		slog.Int("model_id", info.Id),
		slog.Int("min_count", minCount),
		slog.Int64("transitions_removed", rowsAffected),
	)
	return nil
}
