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
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-co-op/gocron"
	_ "modernc.org/sqlite"
)

const (
	objectSuffix = ".db.enc"
	keyTimestamp = "2006-01-02T150405Z"
	runTimeout   = 10 * time.Minute
)

var ErrNotConfigured = errors.New("backup not configured")

// s3Client is the subset of the S3 API the manager uses, for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

type Config struct {
	S3         S3Config
	Passphrase string
	// Prefix is prepended to every object key, e.g. "ledger/".
	Prefix    string
	Interval  time.Duration
	Retention time.Duration
}

// Enabled reports whether there is enough configuration to upload.
func (c Config) Enabled() bool {
	return c.S3.Bucket != "" && c.S3.AccessKey != "" && c.S3.SecretKey != "" && c.Passphrase != ""
}

type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	LastKey    string     `json:"last_key,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Object describes one archived snapshot in the bucket.
type Object struct {
	Key          string    `json:"key"`
	SizeBytes    int64     `json:"size_bytes"`
	LastModified time.Time `json:"last_modified"`
}

// Manager archives encrypted snapshots of the ledger database to
// S3-compatible storage.
type Manager struct {
	cfg    Config
	db     *sql.DB
	client s3Client
	logger *slog.Logger
	now    func() time.Time

	scheduler *gocron.Scheduler

	// runMu serializes snapshots; mu guards status.
	runMu  sync.Mutex
	mu     sync.RWMutex
	status Status
}

func NewManager(cfg Config, db *sql.DB, logger *slog.Logger) *Manager {
	var client s3Client
	if cfg.Enabled() {
		client = newS3Client(cfg.S3)
	}
	return newManager(cfg, db, client, logger)
}

func newManager(cfg Config, db *sql.DB, client s3Client, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		cfg:       cfg,
		db:        db,
		client:    client,
		logger:    logger,
		now:       time.Now,
		scheduler: gocron.NewScheduler(time.UTC),
		status:    Status{State: StateDisabled},
	}
	if client != nil {
		m.status.State = StateIdle
	}
	return m
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

// Start schedules periodic snapshots followed by retention cleanup. The
// first run waits one interval. It is a no-op when backups are disabled.
func (m *Manager) Start() error {
	if m.client == nil {
		m.logger.Info("ledger backups disabled")
		return nil
	}
	_, err := m.scheduler.Every(m.cfg.Interval).WaitForSchedule().SingletonMode().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		if _, err := m.RunNow(ctx); err != nil {
			m.logger.Error("scheduled backup failed", "error", err)
			return
		}
		if _, err := m.Cleanup(ctx); err != nil {
			m.logger.Error("backup cleanup failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule backups: %w", err)
	}
	m.scheduler.StartAsync()
	m.logger.Info("ledger backups scheduled",
		"interval", m.cfg.Interval,
		"bucket", m.cfg.S3.Bucket,
		"retention", m.cfg.Retention,
	)
	return nil
}

func (m *Manager) Stop() {
	m.scheduler.Stop()
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

func (m *Manager) fail(prev Status, err error) error {
	prev.State = StateError
	prev.Error = err.Error()
	m.setStatus(prev)
	backupsTotal.WithLabelValues("error").Inc()
	return err
}

// RunNow snapshots the database, encrypts it and uploads it. It returns the
// uploaded object.
func (m *Manager) RunNow(ctx context.Context) (*Object, error) {
	if m.client == nil {
		return nil, ErrNotConfigured
	}

	m.runMu.Lock()
	defer m.runMu.Unlock()

	prev := m.Status()
	running := prev
	running.State = StateRunning
	running.Error = ""
	m.setStatus(running)

	snapshot, err := m.snapshot(ctx)
	if err != nil {
		return nil, m.fail(prev, err)
	}

	sealed, err := Seal(snapshot, m.cfg.Passphrase)
	if err != nil {
		return nil, m.fail(prev, fmt.Errorf("encrypt: %w", err))
	}

	now := m.now().UTC()
	key := m.cfg.Prefix + "ledger-" + now.Format(keyTimestamp) + objectSuffix
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.S3.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
	})
	if err != nil {
		return nil, m.fail(prev, fmt.Errorf("upload to s3: %w", err))
	}

	m.setStatus(Status{State: StateIdle, LastBackup: &now, LastKey: key})
	backupsTotal.WithLabelValues("ok").Inc()
	lastBackupTimestamp.Set(float64(now.Unix()))
	m.logger.Info("ledger backup uploaded", "key", key, "bytes", len(sealed))

	return &Object{Key: key, SizeBytes: int64(len(sealed)), LastModified: now}, nil
}

// snapshot writes a consistent copy of the database with VACUUM INTO and
// returns its bytes. Concurrent writers are not blocked.
func (m *Manager) snapshot(ctx context.Context) ([]byte, error) {
	dir, err := os.MkdirTemp("", "loyalty-backup-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "ledger.db")
	if _, err := m.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return nil, fmt.Errorf("snapshot database: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

// List returns archived snapshots under the prefix, newest first.
func (m *Manager) List(ctx context.Context) ([]Object, error) {
	if m.client == nil {
		return nil, ErrNotConfigured
	}

	var objects []Object
	p := s3.NewListObjectsV2Paginator(m.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(m.cfg.S3.Bucket),
		Prefix: aws.String(m.cfg.Prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list backups: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, objectSuffix) {
				continue
			}
			objects = append(objects, Object{
				Key:          key,
				SizeBytes:    aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})
	return objects, nil
}

// Cleanup deletes snapshots older than the retention period and returns
// how many were removed. Zero retention keeps everything.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	if m.client == nil || m.cfg.Retention <= 0 {
		return 0, nil
	}

	objects, err := m.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := m.now().Add(-m.cfg.Retention)
	deleted := 0
	for _, obj := range objects {
		if !obj.LastModified.Before(cutoff) {
			continue
		}
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.cfg.S3.Bucket),
			Key:    aws.String(obj.Key),
		}); err != nil {
			m.logger.Warn("failed to delete old backup", "key", obj.Key, "error", err)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		m.logger.Info("old ledger backups removed", "count", deleted)
	}
	return deleted, nil
}

// Fetch downloads and decrypts a snapshot, verifies it with an integrity
// check and writes it to dstPath. dstPath must not exist; restoring over a
// live database is the operator's job.
func (m *Manager) Fetch(ctx context.Context, key, dstPath string) error {
	if m.client == nil {
		return ErrNotConfigured
	}
	if _, err := os.Stat(dstPath); err == nil {
		return fmt.Errorf("restore target %s already exists", dstPath)
	}

	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.cfg.S3.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("download from s3: %w", err)
	}
	defer out.Body.Close()

	sealed, err := io.ReadAll(out.Body)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	plaintext, err := Open(sealed, m.cfg.Passphrase)
	if err != nil {
		return fmt.Errorf("decrypt backup: %w", err)
	}

	tmp := dstPath + ".partial"
	if err := os.WriteFile(tmp, plaintext, 0600); err != nil {
		return fmt.Errorf("write restored file: %w", err)
	}
	defer os.Remove(tmp)

	if err := checkIntegrity(ctx, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, dstPath); err != nil {
		return fmt.Errorf("move restored file: %w", err)
	}
	m.logger.Info("ledger backup restored", "key", key, "path", dstPath)
	return nil
}

func checkIntegrity(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
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
