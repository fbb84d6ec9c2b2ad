// Package Store 把分析结果持久化到 SQLite，作为跨次运行的历史语料
package Store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"ecg"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver.
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// Store 封装 SQLite 访问
type Store struct {
	db *sql.DB
}

// Open 打开或创建数据库并执行迁移
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite 单写者
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return s, nil
}

// Close 关闭数据库
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			label TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			record_date TEXT NOT NULL,
			classification TEXT NOT NULL,
			sample_rate REAL NOT NULL,
			mean_hr REAL NOT NULL,
			sdnn REAL NOT NULL,
			score INTEGER NOT NULL,
			summary TEXT NOT NULL,
			conditioned BLOB,
			peaks BLOB,
			saved_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_records_record_date ON records(record_date);`,
		`CREATE INDEX IF NOT EXISTS idx_records_run_id ON records(run_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// BeginRun 登记一次分析运行，返回运行 ID
func (s *Store) BeginRun(ctx context.Context, label string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, label) VALUES (?, ?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339Nano), label)
	if err != nil {
		return "", err
	}
	return id, nil
}

// SaveRecords 在一个事务里保存一批记录，同 ID 覆盖
func (s *Store) SaveRecords(ctx context.Context, runID string, records []ecg.AnalysisRecord) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO records
		 (id, run_id, record_date, classification, sample_rate, mean_hr, sdnn, score, summary, conditioned, peaks, saved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for i := range records {
		rec := &records[i]
		summary, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode %s: %w", rec.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			rec.ID, runID, rec.RecordDate, rec.Classification, rec.SampleRate,
			rec.HeartRate.Mean, rec.HRV.SDNN, rec.Health.Score,
			string(summary), encodeSamples(rec.Conditioned), encodePeaks(rec.Peaks), now,
		); err != nil {
			return fmt.Errorf("save %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	log.Printf("[STORE] saved %d records (run %s)", len(records), runID)
	return nil
}

// SaveRecord 保存单条记录
func (s *Store) SaveRecord(ctx context.Context, runID string, rec *ecg.AnalysisRecord) error {
	return s.SaveRecords(ctx, runID, []ecg.AnalysisRecord{*rec})
}

// LoadCorpus 按记录日期 (相同日期按 ID) 读出全部记录。
// withSignals 为 false 时不解压预处理信号，只恢复峰位置
func (s *Store) LoadCorpus(ctx context.Context, withSignals bool) ([]ecg.AnalysisRecord, error) {
	cols := `summary, peaks, NULL`
	if withSignals {
		cols = `summary, peaks, conditioned`
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+cols+` FROM records ORDER BY record_date, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	corpus := []ecg.AnalysisRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		corpus = append(corpus, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return corpus, nil
}

// LoadRecord 读出一条完整记录
func (s *Store) LoadRecord(ctx context.Context, id string) (*ecg.AnalysisRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT summary, peaks, conditioned FROM records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// Count 返回记录总数
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*ecg.AnalysisRecord, error) {
	var summary string
	var peaks, conditioned []byte
	if err := row.Scan(&summary, &peaks, &conditioned); err != nil {
		return nil, err
	}

	rec := &ecg.AnalysisRecord{}
	if err := json.Unmarshal([]byte(summary), rec); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	p, err := decodePeaks(peaks)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rec.ID, err)
	}
	rec.Peaks = ecg.PeakSet(p)
	if rec.Conditioned, err = decodeSamples(conditioned); err != nil {
		return nil, fmt.Errorf("%s: %w", rec.ID, err)
	}
	return rec, nil
}
