package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dukerupert/gemloyalty/internal/database"
	"github.com/dukerupert/gemloyalty/internal/ledger"
	"github.com/dukerupert/gemloyalty/internal/store"
)

// mockS3Client implements s3Client in memory. Objects are stamped with the
// mock's clock.
type mockS3Client struct {
	mu       sync.Mutex
	objects  map[string][]byte
	modified map[string]time.Time
	now      func() time.Time
	putErr   error
}

func newMockS3(now func() time.Time) *mockS3Client {
	return &mockS3Client{
		objects:  make(map[string][]byte),
		modified: make(map[string]time.Time),
		now:      now,
	}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*input.Key] = data
	m.modified[*input.Key] = m.now()
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *input.Key)
	delete(m.modified, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3Client) ListObjectsV2(_ context.Context, input *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &s3.ListObjectsV2Output{}
	prefix := aws.ToString(input.Prefix)
	for key, data := range m.objects {
		if len(key) < len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(key),
			Size:         aws.Int64(int64(len(data))),
			LastModified: aws.Time(m.modified[key]),
		})
	}
	return out, nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testConfig = Config{
	S3:         S3Config{Bucket: "museum-backups", Region: "us-east-1", AccessKey: "key", SecretKey: "secret"},
	Passphrase: "correct horse battery staple",
	Prefix:     "ledger/",
	Interval:   time.Hour,
	Retention:  48 * time.Hour,
}

func setupManager(t *testing.T) (*Manager, *mockS3Client, *fakeClock, *ledger.Engine) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "loyalty.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	engine, err := ledger.NewEngine(db, ledger.DefaultConfig(), nil, quietLogger())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	clock := &fakeClock{t: time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)}
	client := newMockS3(clock.Now)
	m := newManager(testConfig, db, client, quietLogger())
	m.now = clock.Now
	return m, client, clock, engine
}

func TestSealOpen(t *testing.T) {
	plaintext := []byte("SQLite format 3\x00 ledger pages")

	sealed, err := Seal(plaintext, "pass")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Error("sealed output contains plaintext")
	}

	got, err := Open(sealed, "pass")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("open = %q, want %q", got, plaintext)
	}

	if _, err := Open(sealed, "wrong"); err == nil {
		t.Error("open with wrong passphrase succeeded")
	}
	if _, err := Open(sealed[:10], "pass"); !errors.Is(err, ErrCiphertextTooShort) {
		t.Errorf("open short input: err = %v, want ErrCiphertextTooShort", err)
	}

	again, err := Seal(plaintext, "pass")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Equal(again[:saltSize], sealed[:saltSize]) {
		t.Error("two seals share a salt")
	}
}

func TestManagerDisabled(t *testing.T) {
	m := NewManager(Config{S3: S3Config{Bucket: "b", AccessKey: "k", SecretKey: "s"}}, nil, quietLogger())
	if got := m.Status().State; got != StateDisabled {
		t.Errorf("state without passphrase = %q, want %q", got, StateDisabled)
	}
	if _, err := m.RunNow(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("RunNow err = %v, want ErrNotConfigured", err)
	}
	if _, err := m.List(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("List err = %v, want ErrNotConfigured", err)
	}
	if err := m.Start(); err != nil {
		t.Errorf("Start on disabled manager: %v", err)
	}
	m.Stop()
}

func TestRunNowAndFetch(t *testing.T) {
	m, client, _, engine := setupManager(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := engine.AwardSurveyCompletion(ctx, "visitor-1", "exhibit", fmt.Sprintf("survey-%d", i)); err != nil {
			t.Fatalf("award survey: %v", err)
		}
	}

	obj, err := m.RunNow(ctx)
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if obj.Key != "ledger/ledger-2026-03-01T020000Z.db.enc" {
		t.Errorf("key = %q", obj.Key)
	}
	if _, ok := client.objects[obj.Key]; !ok {
		t.Fatal("object not uploaded")
	}

	st := m.Status()
	if st.State != StateIdle || st.LastKey != obj.Key || st.LastBackup == nil {
		t.Errorf("status = %+v", st)
	}

	dst := filepath.Join(t.TempDir(), "restored.db")
	if err := m.Fetch(ctx, obj.Key, dst); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	restored, err := database.Open(dst)
	if err != nil {
		t.Fatalf("open restored: %v", err)
	}
	defer restored.Close()

	acct, err := store.NewAccountStore(restored).Get(ctx, "visitor-1")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if acct == nil {
		t.Fatal("account missing from restored snapshot")
	}
	if acct.Balance != 60 {
		t.Errorf("restored balance = %d, want 60", acct.Balance)
	}

	if err := m.Fetch(ctx, obj.Key, dst); err == nil {
		t.Error("Fetch over an existing file succeeded")
	}
}

func TestFetchWrongPassphrase(t *testing.T) {
	m, client, _, _ := setupManager(t)
	ctx := context.Background()

	obj, err := m.RunNow(ctx)
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}

	other := newManager(Config{S3: testConfig.S3, Passphrase: "not it"}, nil, client, quietLogger())
	if err := other.Fetch(ctx, obj.Key, filepath.Join(t.TempDir(), "x.db")); err == nil {
		t.Error("Fetch with wrong passphrase succeeded")
	}
}

func TestRunNowUploadFailure(t *testing.T) {
	m, client, _, _ := setupManager(t)
	client.putErr = errors.New("bucket unreachable")

	if _, err := m.RunNow(context.Background()); err == nil {
		t.Fatal("RunNow succeeded with failing upload")
	}
	st := m.Status()
	if st.State != StateError || st.Error == "" {
		t.Errorf("status = %+v, want error state", st)
	}

	client.putErr = nil
	if _, err := m.RunNow(context.Background()); err != nil {
		t.Fatalf("RunNow after recovery: %v", err)
	}
	if got := m.Status(); got.State != StateIdle || got.Error != "" {
		t.Errorf("status after recovery = %+v", got)
	}
}

func TestListAndCleanup(t *testing.T) {
	m, client, clock, _ := setupManager(t)
	ctx := context.Background()

	var keys []string
	for i := 0; i < 3; i++ {
		obj, err := m.RunNow(ctx)
		if err != nil {
			t.Fatalf("RunNow: %v", err)
		}
		keys = append(keys, obj.Key)
		clock.Advance(24 * time.Hour)
	}
	client.objects["ledger/notes.txt"] = []byte("not a backup")
	client.modified["ledger/notes.txt"] = time.Time{}

	list, err := m.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("List returned %d objects, want 3", len(list))
	}
	if list[0].Key != keys[2] {
		t.Errorf("newest = %q, want %q", list[0].Key, keys[2])
	}

	// Now 72h after the first upload; retention is 48h.
	deleted, err := m.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if _, ok := client.objects[keys[0]]; ok {
		t.Error("oldest backup survived cleanup")
	}
	if _, ok := client.objects["ledger/notes.txt"]; !ok {
		t.Error("cleanup removed a non-backup object")
	}
}
