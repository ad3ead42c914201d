// Package backup takes encrypted snapshots of the SQLite database before
// migrations rewrite stored documents.
package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dupipcom/morpheus-sub002/internal/model"
	"github.com/dupipcom/morpheus-sub002/internal/store"
	_ "modernc.org/sqlite"
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

func (c S3Config) complete() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// Config selects where snapshots go. S3 wins when it is fully configured;
// otherwise snapshots are written under Dir.
type Config struct {
	S3         S3Config
	Dir        string
	Passphrase string
}

var ErrNotConfigured = errors.New("backup: no snapshot destination or passphrase configured")

// Snapshotter copies the live database, seals it and stores the result.
type Snapshotter struct {
	cfg       Config
	db        *sql.DB
	snapshots *store.SnapshotStore
	client    s3Client
	logger    *slog.Logger
	now       func() time.Time
}

func New(cfg Config, db *sql.DB, snapshots *store.SnapshotStore, logger *slog.Logger) *Snapshotter {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Snapshotter{
		cfg:       cfg,
		db:        db,
		snapshots: snapshots,
		logger:    logger.With("component", "backup"),
		now:       func() time.Time { return time.Now().UTC() },
	}
	if cfg.S3.complete() {
		s.client = newS3Client(cfg.S3)
	}
	return s
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Enabled reports whether Snapshot can run.
func (s *Snapshotter) Enabled() bool {
	return s.cfg.Passphrase != "" && (s.client != nil || s.cfg.Dir != "")
}

var unsafeLabel = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func (s *Snapshotter) objectName(label string) string {
	name := s.now().Format("2006-01-02T150405Z")
	if l := unsafeLabel.ReplaceAllString(label, "-"); l != "" {
		name += "-" + l
	}
	return name + ".db.enc"
}

// Snapshot checkpoints the WAL, copies the database with VACUUM INTO,
// seals the copy and stores it. The snapshot record is marked failed when
// any step after its creation fails.
func (s *Snapshotter) Snapshot(ctx context.Context, label string) (*model.Snapshot, error) {
	if !s.Enabled() {
		return nil, ErrNotConfigured
	}

	name := s.objectName(label)
	location := "snapshots/" + name
	if s.client == nil {
		location = filepath.Join(s.cfg.Dir, name)
	}
	rec, err := s.snapshots.Create(ctx, label, location)
	if err != nil {
		return nil, fmt.Errorf("create snapshot record: %w", err)
	}

	size, err := s.write(ctx, location)
	if err != nil {
		if markErr := s.snapshots.MarkFailed(ctx, rec.ID, err.Error()); markErr != nil {
			s.logger.Error("mark snapshot failed", "snapshot_id", rec.ID, "error", markErr)
		}
		return nil, err
	}
	if err := s.snapshots.MarkCompleted(ctx, rec.ID, size); err != nil {
		return nil, err
	}

	s.logger.Info("snapshot taken", "snapshot_id", rec.ID, "location", location, "size_bytes", size)
	return s.snapshots.Get(ctx, rec.ID)
}

func (s *Snapshotter) write(ctx context.Context, location string) (int64, error) {
	tmpDir, err := os.MkdirTemp("", "morpheus-snapshot-")
	if err != nil {
		return 0, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return 0, fmt.Errorf("wal checkpoint: %w", err)
	}
	copyPath := filepath.Join(tmpDir, "copy.db")
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", copyPath); err != nil {
		return 0, fmt.Errorf("copy database: %w", err)
	}

	plaintext, err := os.ReadFile(copyPath)
	if err != nil {
		return 0, fmt.Errorf("read database copy: %w", err)
	}
	sealed, err := Seal(plaintext, s.cfg.Passphrase)
	if err != nil {
		return 0, fmt.Errorf("encrypt: %w", err)
	}

	if s.client == nil {
		if err := os.MkdirAll(filepath.Dir(location), 0o700); err != nil {
			return 0, fmt.Errorf("create snapshot dir: %w", err)
		}
		if err := os.WriteFile(location, sealed, 0o600); err != nil {
			return 0, fmt.Errorf("write snapshot: %w", err)
		}
		return int64(len(sealed)), nil
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.S3.Bucket),
		Key:           aws.String(location),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
	})
	if err != nil {
		return 0, fmt.Errorf("upload to s3: %w", err)
	}
	return int64(len(sealed)), nil
}

// Fetch downloads snapshot id, decrypts it into dstPath and verifies the
// result is an intact SQLite database.
func (s *Snapshotter) Fetch(ctx context.Context, id int64, dstPath string) error {
	if !s.Enabled() {
		return ErrNotConfigured
	}
	rec, err := s.snapshots.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("snapshot %d not found", id)
	}
	if rec.Status != model.SnapshotStatusCompleted {
		return fmt.Errorf("snapshot %d is %s", id, rec.Status)
	}

	sealed, err := s.read(ctx, rec.Location)
	if err != nil {
		return err
	}
	plaintext, err := Open(sealed, s.cfg.Passphrase)
	if err != nil {
		return fmt.Errorf("decrypt snapshot %d: %w", id, err)
	}
	if err := os.WriteFile(dstPath, plaintext, 0o600); err != nil {
		return fmt.Errorf("write restored db: %w", err)
	}
	return checkIntegrity(ctx, dstPath)
}

func (s *Snapshotter) read(ctx context.Context, location string) ([]byte, error) {
	if s.client == nil {
		data, err := os.ReadFile(location)
		if err != nil {
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
		return data, nil
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.S3.Bucket),
		Key:    aws.String(location),
	})
	if err != nil {
		return nil, fmt.Errorf("download from s3: %w", err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3 object: %w", err)
	}
	return data, nil
}

func checkIntegrity(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open restored db: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// Cleanup deletes snapshots older than retention along with their stored
// objects. Object removal failures are logged, not returned.
func (s *Snapshotter) Cleanup(ctx context.Context, retention time.Duration) (int, error) {
	locations, err := s.snapshots.DeleteOlderThan(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("delete old snapshots: %w", err)
	}
	for _, loc := range locations {
		var err error
		if s.client == nil {
			err = os.Remove(loc)
			if errors.Is(err, os.ErrNotExist) {
				err = nil
			}
		} else {
			_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.cfg.S3.Bucket),
				Key:    aws.String(loc),
			})
		}
		if err != nil {
			s.logger.Warn("remove snapshot object", "location", loc, "error", err)
		}
	}
	return len(locations), nil
}
