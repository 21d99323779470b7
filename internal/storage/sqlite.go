//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"markovbrain/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveExperiment(ctx context.Context, e model.Experiment) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO experiments (experiment_id, schema_version, codec_version, task, seed, config, started_at, generations)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(experiment_id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			task = excluded.task,
			seed = excluded.seed,
			config = excluded.config,
			started_at = excluded.started_at,
			generations = excluded.generations
	`, e.ID, e.SchemaVersion, e.CodecVersion, e.Task, int64(e.Seed), e.Settings, e.StartedAt.UTC().Format(time.RFC3339Nano), e.Generations)
	return err
}

func (s *SQLiteStore) GetExperiment(ctx context.Context, id string) (model.Experiment, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.Experiment{}, false, err
	}

	row := db.QueryRowContext(ctx, `
		SELECT experiment_id, schema_version, codec_version, task, seed, config, started_at, generations
		FROM experiments WHERE experiment_id = ?`, id)
	e, err := scanExperiment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Experiment{}, false, nil
		}
		return model.Experiment{}, false, err
	}
	return e, true, nil
}

func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]model.Experiment, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT experiment_id, schema_version, codec_version, task, seed, config, started_at, generations
		FROM experiments ORDER BY started_at, experiment_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Experiment
	for rows.Next() {
		e, err := scanExperiment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row scanner) (model.Experiment, error) {
	var (
		e       model.Experiment
		seed    int64
		started string
	)
	if err := row.Scan(&e.ID, &e.SchemaVersion, &e.CodecVersion, &e.Task, &seed, &e.Settings, &started, &e.Generations); err != nil {
		return model.Experiment{}, err
	}
	if err := checkVersion(e.VersionedRecord); err != nil {
		return model.Experiment{}, fmt.Errorf("experiment %s: %w", e.ID, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return model.Experiment{}, fmt.Errorf("experiment %s: started_at: %w", e.ID, err)
	}
	e.Seed = uint32(seed)
	e.StartedAt = ts
	return e, nil
}

// SavePopulation replaces every organism row of the snapshot in one
// transaction.
func (s *SQLiteStore) SavePopulation(ctx context.Context, p model.PopulationSnapshot) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO populations (population_id, schema_version, codec_version, experiment_id, generation, seq)
		VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM populations))
		ON CONFLICT(population_id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			experiment_id = excluded.experiment_id,
			generation = excluded.generation,
			seq = excluded.seq
	`, p.ID, p.SchemaVersion, p.CodecVersion, p.ExperimentID, p.Generation)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM population WHERE population_id = ?`, p.ID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO population (population_id, idx, generation, fitness, genome, randomseed)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, org := range p.Organisms {
		if _, err := stmt.ExecContext(ctx, p.ID, i, p.Generation, org.Fitness, org.Genome, org.RNGState); err != nil {
			return fmt.Errorf("insert organism %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetPopulation(ctx context.Context, id string) (model.PopulationSnapshot, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.PopulationSnapshot{}, false, err
	}

	var p model.PopulationSnapshot
	err = db.QueryRowContext(ctx, `
		SELECT population_id, schema_version, codec_version, experiment_id, generation
		FROM populations WHERE population_id = ?`, id).
		Scan(&p.ID, &p.SchemaVersion, &p.CodecVersion, &p.ExperimentID, &p.Generation)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PopulationSnapshot{}, false, nil
		}
		return model.PopulationSnapshot{}, false, err
	}
	if err := checkVersion(p.VersionedRecord); err != nil {
		return model.PopulationSnapshot{}, false, fmt.Errorf("population %s: %w", id, err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT fitness, genome, randomseed FROM population
		WHERE population_id = ? ORDER BY idx`, id)
	if err != nil {
		return model.PopulationSnapshot{}, false, err
	}
	defer rows.Close()
	for rows.Next() {
		var org model.OrganismRecord
		if err := rows.Scan(&org.Fitness, &org.Genome, &org.RNGState); err != nil {
			return model.PopulationSnapshot{}, false, err
		}
		p.Organisms = append(p.Organisms, org)
	}
	if err := rows.Err(); err != nil {
		return model.PopulationSnapshot{}, false, err
	}
	return p, true, nil
}

func (s *SQLiteStore) LatestPopulation(ctx context.Context) (model.PopulationSnapshot, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.PopulationSnapshot{}, false, err
	}

	var id string
	err = db.QueryRowContext(ctx, `SELECT population_id FROM populations ORDER BY seq DESC LIMIT 1`).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PopulationSnapshot{}, false, nil
		}
		return model.PopulationSnapshot{}, false, err
	}
	return s.GetPopulation(ctx, id)
}

// SaveGenerationStats writes the mean row to avg_orgs and the best organism to
// max_orgs.
func (s *SQLiteStore) SaveGenerationStats(ctx context.Context, st model.GenerationStats) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO avg_orgs (experiment_id, generation, schema_version, codec_version, fitness, fitness_std, length, gates)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(experiment_id, generation) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			fitness = excluded.fitness,
			fitness_std = excluded.fitness_std,
			length = excluded.length,
			gates = excluded.gates
	`, st.ExperimentID, st.Generation, st.SchemaVersion, st.CodecVersion, st.MeanFitness, st.StdFitness, st.MeanLength, st.MeanGates)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO max_orgs (experiment_id, generation, fitness, length, gates, max_length, max_gates, genome, randomseed, datalog)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(experiment_id, generation) DO UPDATE SET
			fitness = excluded.fitness,
			length = excluded.length,
			gates = excluded.gates,
			max_length = excluded.max_length,
			max_gates = excluded.max_gates,
			genome = excluded.genome,
			randomseed = excluded.randomseed,
			datalog = excluded.datalog
	`, st.ExperimentID, st.Generation, st.MaxFitness, st.BestLength, st.BestGates, st.MaxLength, st.MaxGates, st.Best.Genome, st.Best.RNGState, st.BestDatalog)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetGenerationStats(ctx context.Context, experimentID string) ([]model.GenerationStats, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT a.generation, a.schema_version, a.codec_version, a.fitness, a.fitness_std, a.length, a.gates,
			m.fitness, m.length, m.gates, m.max_length, m.max_gates, m.genome, m.randomseed, m.datalog
		FROM avg_orgs a
		JOIN max_orgs m ON m.experiment_id = a.experiment_id AND m.generation = a.generation
		WHERE a.experiment_id = ?
		ORDER BY a.generation`, experimentID)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var out []model.GenerationStats
	for rows.Next() {
		st := model.GenerationStats{ExperimentID: experimentID}
		if err := rows.Scan(
			&st.Generation, &st.SchemaVersion, &st.CodecVersion,
			&st.MeanFitness, &st.StdFitness, &st.MeanLength, &st.MeanGates,
			&st.MaxFitness, &st.BestLength, &st.BestGates, &st.MaxLength, &st.MaxGates,
			&st.Best.Genome, &st.Best.RNGState, &st.BestDatalog,
		); err != nil {
			return nil, false, err
		}
		if err := checkVersion(st.VersionedRecord); err != nil {
			return nil, false, fmt.Errorf("generation %d: %w", st.Generation, err)
		}
		st.Best.Fitness = st.MaxFitness
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if len(out) == 0 {
		return nil, false, nil
	}
	return out, true, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS experiments (
			experiment_id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			task TEXT NOT NULL,
			seed INTEGER NOT NULL,
			config TEXT NOT NULL,
			started_at TEXT NOT NULL,
			generations INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS populations (
			population_id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			experiment_id TEXT NOT NULL,
			generation INTEGER NOT NULL,
			seq INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS population (
			population_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			generation INTEGER NOT NULL,
			fitness REAL NOT NULL,
			genome TEXT NOT NULL,
			randomseed TEXT NOT NULL,
			PRIMARY KEY (population_id, idx)
		);
		CREATE TABLE IF NOT EXISTS avg_orgs (
			experiment_id TEXT NOT NULL,
			generation INTEGER NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			fitness REAL NOT NULL,
			fitness_std REAL NOT NULL,
			length REAL NOT NULL,
			gates REAL NOT NULL,
			PRIMARY KEY (experiment_id, generation)
		);
		CREATE TABLE IF NOT EXISTS max_orgs (
			experiment_id TEXT NOT NULL,
			generation INTEGER NOT NULL,
			fitness REAL NOT NULL,
			length INTEGER NOT NULL,
			gates INTEGER NOT NULL,
			max_length REAL NOT NULL,
			max_gates REAL NOT NULL,
			genome TEXT NOT NULL,
			randomseed TEXT NOT NULL,
			datalog TEXT NOT NULL,
			PRIMARY KEY (experiment_id, generation)
		);
	`)
	return err
}
