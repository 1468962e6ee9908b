package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/batchgate/internal/config"
	"github.com/JonMunkholm/batchgate/internal/diagnostics"
	"github.com/JonMunkholm/batchgate/internal/remote"
	"github.com/JonMunkholm/batchgate/internal/validator"
)

var validHeader = strings.Join(validator.ExpectedHeaders(), ",")

func validRow(id string) string {
	return id + ",2024-01-01 10:00:00,1.0,2.5,3,4.125,5,6,7,8,9,9.9"
}

func validFile(ids ...string) string {
	lines := []string{validHeader}
	for _, id := range ids {
		lines = append(lines, validRow(id))
	}
	return strings.Join(lines, "\n") + "\n"
}

// fakeRemote serves files from memory.
type fakeRemote struct {
	mu        sync.Mutex
	connected bool
	files     map[string]string
	sizeErr   error
	fetchErr  error
	fetches   int
}

func newFakeRemote(files map[string]string) *fakeRemote {
	return &fakeRemote{connected: true, files: files}
}

func (f *fakeRemote) Connect(_ context.Context, host, _, _ string) error {
	if host == "bad" {
		return errors.New("connection refused")
	}
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeRemote) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeRemote) Host() string {
	if f.IsConnected() {
		return "fake:21"
	}
	return ""
}

func (f *fakeRemote) Close() error {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	return nil
}

func (f *fakeRemote) ListFiles(context.Context) ([]string, error) {
	if !f.IsConnected() {
		return nil, remote.ErrNotConnected
	}
	var names []string
	for n := range f.files {
		names = append(names, n)
	}
	return names, nil
}

func (f *fakeRemote) SearchFiles(ctx context.Context, keyword string) ([]string, error) {
	names, err := f.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	matched := remote.FilterNames(names, keyword)
	if len(matched) == 0 {
		return nil, remote.ErrNoMatch
	}
	return matched, nil
}

func (f *fakeRemote) Size(_ context.Context, name string) (int64, error) {
	if f.sizeErr != nil {
		return 0, f.sizeErr
	}
	content, ok := f.files[name]
	if !ok {
		return 0, errors.New("550 file not found")
	}
	return int64(len(content)), nil
}

func (f *fakeRemote) Fetch(_ context.Context, name string, maxBytes int64) ([]byte, error) {
	f.mu.Lock()
	f.fetches++
	f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	content := f.files[name]
	if maxBytes > 0 && int64(len(content)) > maxBytes {
		return nil, remote.ErrFileTooLarge
	}
	return []byte(content), nil
}

// memStore keeps saved files in memory.
type memStore struct {
	mu    sync.Mutex
	saved map[string][]byte
	err   error
}

func (m *memStore) Save(content []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	if m.saved == nil {
		m.saved = make(map[string][]byte)
	}
	name := fmt.Sprintf("MED_DATA_%d.csv", len(m.saved))
	m.saved[name] = append([]byte(nil), content...)
	return name, nil
}

func (m *memStore) List() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for n := range m.saved {
		names = append(names, n)
	}
	return names, nil
}

func (m *memStore) Read(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.saved[name]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return content, nil
}

// memSink records events and serves them back.
type memSink struct {
	mu     sync.Mutex
	events []diagnostics.Event
}

func (m *memSink) RecordRejection(_ context.Context, ev diagnostics.Event) error {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	return nil
}

func (m *memSink) Recent(_ context.Context, limit int) ([]diagnostics.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.events
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return append([]diagnostics.Event(nil), out...), nil
}

func (m *memSink) Count(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.events)), nil
}

func (m *memSink) messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var msgs []string
	for _, ev := range m.events {
		msgs = append(msgs, ev.Message)
	}
	return msgs
}

type testEnv struct {
	svc    *Service
	remote *fakeRemote
	store  *memStore
	sink   *memSink
}

func newTestEnv(t *testing.T, files map[string]string) *testEnv {
	t.Helper()
	env := &testEnv{
		remote: newFakeRemote(files),
		store:  &memStore{},
		sink:   &memSink{},
	}
	svc, err := NewService(Deps{
		Remote: env.remote,
		Store:  env.store,
		Sink:   env.sink,
		Log:    env.sink,
	}, config.DownloadConfig{MaxFileSize: 1 << 20, MaxConcurrent: 2, MaxWaitTime: time.Second})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	env.svc = svc
	return env
}

func TestNewService_RequiresDeps(t *testing.T) {
	if _, err := NewService(Deps{Store: &memStore{}}, config.DownloadConfig{}); err == nil {
		t.Error("expected error without remote client")
	}
	if _, err := NewService(Deps{Remote: newFakeRemote(nil)}, config.DownloadConfig{}); err == nil {
		t.Error("expected error without store")
	}
}

func TestDownload_Accepted(t *testing.T) {
	content := validFile("1", "2")
	env := newTestEnv(t, map[string]string{"batch.csv": content})

	res, err := env.svc.Download(context.Background(), "batch.csv")
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if !res.Accepted {
		t.Fatalf("Accepted = false, message %q", res.Message)
	}
	if res.Message != validator.ValidMessage {
		t.Errorf("Message = %q, want %q", res.Message, validator.ValidMessage)
	}
	if got := string(env.store.saved[res.StoredAs]); got != content {
		t.Errorf("stored content = %q, want %q", got, content)
	}
	if got := env.svc.Status(); got != StatusSuccess {
		t.Errorf("Status() = %q, want %q", got, StatusSuccess)
	}
	if msgs := env.sink.messages(); len(msgs) != 0 {
		t.Errorf("unexpected diagnostics: %v", msgs)
	}
}

func TestDownload_Rejected(t *testing.T) {
	content := validFile("1", "1")
	env := newTestEnv(t, map[string]string{"dup.csv": content})

	res, err := env.svc.Download(context.Background(), "dup.csv")
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if res.Accepted {
		t.Fatal("Accepted = true for duplicate batch")
	}
	if res.Message != "Duplicate batch_id 1 on row 3" {
		t.Errorf("Message = %q", res.Message)
	}
	if res.Code != "ROW002" {
		t.Errorf("Code = %q, want ROW002", res.Code)
	}
	if res.CorrelationID == "" {
		t.Error("CorrelationID is empty")
	}
	if len(env.store.saved) != 0 {
		t.Error("rejected file was stored")
	}
	if got := env.svc.Status(); got != StatusFailed {
		t.Errorf("Status() = %q, want %q", got, StatusFailed)
	}

	want := []string{"Validation failed for 'dup.csv': Duplicate batch_id 1 on row 3"}
	if got := env.sink.messages(); !reflect.DeepEqual(got, want) {
		t.Errorf("diagnostics = %v, want %v", got, want)
	}
	if env.sink.events[0].Kind != "duplicate_batch_id" {
		t.Errorf("event kind = %q", env.sink.events[0].Kind)
	}
}

func TestDownload_PreconditionFailures(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		files   map[string]string
		setup   func(*testEnv)
		wantErr error
		wantMsg string
	}{
		{
			name:    "not connected",
			file:    "a.csv",
			setup:   func(e *testEnv) { e.remote.Close() },
			wantErr: remote.ErrNotConnected,
		},
		{
			name:    "wrong extension",
			file:    "notes.txt",
			files:   map[string]string{"notes.txt": "x"},
			wantErr: ErrNotCSV,
			wantMsg: "Invalid file extension for 'notes.txt'. Only '.csv' files are allowed.",
		},
		{
			name:    "empty file",
			file:    "empty.csv",
			files:   map[string]string{"empty.csv": ""},
			wantErr: ErrEmptyFile,
			wantMsg: "File 'empty.csv' is empty (zero size).",
		},
		{
			name:    "size lookup fails",
			file:    "a.csv",
			setup:   func(e *testEnv) { e.remote.sizeErr = errors.New("550 no such file") },
			wantMsg: "Download size check error: 550 no such file",
		},
		{
			name:  "fetch fails",
			file:  "a.csv",
			files: map[string]string{"a.csv": "abc"},
			setup: func(e *testEnv) {
				e.remote.fetchErr = errors.New("connection reset")
			},
			wantMsg: "Download error: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.files)
			if tt.setup != nil {
				tt.setup(env)
			}

			res, err := env.svc.Download(context.Background(), tt.file)
			if err == nil {
				t.Fatalf("Download() = %+v, want error", res)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if got := env.svc.Status(); got != StatusFailed {
				t.Errorf("Status() = %q, want %q", got, StatusFailed)
			}

			msgs := env.sink.messages()
			if tt.wantMsg == "" {
				if len(msgs) != 0 {
					t.Errorf("diagnostics = %v, want none", msgs)
				}
				return
			}
			if len(msgs) != 1 || msgs[0] != tt.wantMsg {
				t.Errorf("diagnostics = %v, want [%s]", msgs, tt.wantMsg)
			}
		})
	}
}

func TestDownload_TooLarge(t *testing.T) {
	env := newTestEnv(t, map[string]string{"big.csv": strings.Repeat("x", 64)})
	env.svc.maxFileSize = 10

	_, err := env.svc.Download(context.Background(), "big.csv")
	if !errors.Is(err, remote.ErrFileTooLarge) {
		t.Errorf("error = %v, want ErrFileTooLarge", err)
	}
	if env.remote.fetches != 0 {
		t.Error("oversized file should not be fetched")
	}
}

func TestDownload_AttemptedOnce(t *testing.T) {
	env := newTestEnv(t, map[string]string{"batch.csv": validFile("1")})
	ctx := context.Background()

	if _, err := env.svc.Download(ctx, "batch.csv"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.Download(ctx, "batch.csv"); !errors.Is(err, ErrAlreadyAttempted) {
		t.Errorf("second Download error = %v, want ErrAlreadyAttempted", err)
	}
	if env.remote.fetches != 1 {
		t.Errorf("fetches = %d, want 1", env.remote.fetches)
	}
	if got := env.svc.Attempted(); !reflect.DeepEqual(got, []string{"batch.csv"}) {
		t.Errorf("Attempted() = %v", got)
	}

	env.svc.ResetAttempts()
	if got := env.svc.Attempted(); len(got) != 0 {
		t.Errorf("Attempted() after reset = %v", got)
	}
	if got := env.svc.Status(); got != StatusIdle {
		t.Errorf("Status() after reset = %q, want %q", got, StatusIdle)
	}
	if _, err := env.svc.Download(ctx, "batch.csv"); err != nil {
		t.Errorf("Download after reset error = %v", err)
	}
}

func TestDownload_FailedFilesAreAttempted(t *testing.T) {
	env := newTestEnv(t, map[string]string{"notes.txt": "x"})
	ctx := context.Background()

	env.svc.Download(ctx, "notes.txt")
	if _, err := env.svc.Download(ctx, "notes.txt"); !errors.Is(err, ErrAlreadyAttempted) {
		t.Errorf("error = %v, want ErrAlreadyAttempted", err)
	}
	if got := len(env.sink.messages()); got != 1 {
		t.Errorf("diagnostics recorded %d times, want 1", got)
	}
}

func TestDownload_NotConnectedIsNotAttempted(t *testing.T) {
	env := newTestEnv(t, map[string]string{"batch.csv": validFile("1")})
	env.remote.Close()

	env.svc.Download(context.Background(), "batch.csv")
	if got := env.svc.Attempted(); len(got) != 0 {
		t.Errorf("Attempted() = %v, want none", got)
	}
}

func TestDownload_BusyIsNotAttempted(t *testing.T) {
	env := newTestEnv(t, map[string]string{"batch.csv": validFile("1")})
	ctx := context.Background()
	env.svc.limiter = NewDownloadLimiter(1, 20*time.Millisecond)
	if err := env.svc.limiter.Acquire(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := env.svc.Download(ctx, "batch.csv"); !errors.Is(err, ErrTooManyDownloads) {
		t.Errorf("error = %v, want ErrTooManyDownloads", err)
	}
	if got := env.svc.Attempted(); len(got) != 0 {
		t.Errorf("Attempted() = %v, want none", got)
	}

	env.svc.limiter.Release()
	res, err := env.svc.Download(ctx, "batch.csv")
	if err != nil || !res.Accepted {
		t.Errorf("Download after release = %+v, %v, want accepted", res, err)
	}
}

func TestDownload_CancelledWaitIsNotAttempted(t *testing.T) {
	env := newTestEnv(t, map[string]string{"batch.csv": validFile("1")})
	env.svc.limiter = NewDownloadLimiter(1, time.Second)
	if err := env.svc.limiter.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer env.svc.limiter.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := env.svc.Download(ctx, "batch.csv"); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if got := env.svc.Attempted(); len(got) != 0 {
		t.Errorf("Attempted() = %v, want none", got)
	}
}

func TestDownload_ConcurrentDistinctFiles(t *testing.T) {
	files := make(map[string]string)
	for i := 0; i < 8; i++ {
		files[fmt.Sprintf("b%d.csv", i)] = validFile(fmt.Sprint(i))
	}
	env := newTestEnv(t, files)

	var wg sync.WaitGroup
	for name := range files {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			res, err := env.svc.Download(context.Background(), name)
			if err != nil || !res.Accepted {
				t.Errorf("Download(%s) = %+v, %v", name, res, err)
			}
		}(name)
	}
	wg.Wait()

	if got := len(env.store.saved); got != len(files) {
		t.Errorf("stored %d files, want %d", got, len(files))
	}
}

func TestService_Queries(t *testing.T) {
	env := newTestEnv(t, map[string]string{
		"alpha.csv": validFile("1"),
		"beta.csv":  validFile("1", "1"),
	})
	ctx := context.Background()

	got, err := env.svc.SearchFiles(ctx, "alp")
	if err != nil || !reflect.DeepEqual(got, []string{"alpha.csv"}) {
		t.Errorf("SearchFiles(alp) = %v, %v", got, err)
	}
	if _, err := env.svc.SearchFiles(ctx, "zzz"); !errors.Is(err, remote.ErrNoMatch) {
		t.Errorf("SearchFiles(zzz) error = %v, want ErrNoMatch", err)
	}
	all, err := env.svc.SearchFiles(ctx, "")
	if err != nil || len(all) != 2 {
		t.Errorf("SearchFiles(\"\") = %v, %v", all, err)
	}

	env.svc.Download(ctx, "alpha.csv")
	env.svc.Download(ctx, "beta.csv")

	valid, err := env.svc.ValidFiles()
	if err != nil || len(valid) != 1 {
		t.Errorf("ValidFiles() = %v, %v", valid, err)
	}
	logs, err := env.svc.ErrorLogs(ctx, 10)
	if err != nil || len(logs) != 1 {
		t.Errorf("ErrorLogs() = %v, %v", logs, err)
	}
	if n, err := env.svc.RejectionCount(ctx); err != nil || n != 1 {
		t.Errorf("RejectionCount() = %d, %v, want 1", n, err)
	}

	content, err := env.svc.ValidFile(valid[0])
	if err != nil || string(content) != validFile("1") {
		t.Errorf("ValidFile(%s) = %q, %v", valid[0], content, err)
	}
	if _, err := env.svc.ValidFile("missing.csv"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("ValidFile(missing) error = %v, want fs.ErrNotExist", err)
	}
	if got := env.svc.Host(); got != "fake:21" {
		t.Errorf("Host() = %q, want %q", got, "fake:21")
	}
}

func TestService_Connect(t *testing.T) {
	env := newTestEnv(t, nil)
	env.remote.Close()
	ctx := context.Background()

	if err := env.svc.Connect(ctx, "", "u", "p"); err == nil {
		t.Error("Connect with empty host should fail")
	}
	if err := env.svc.Connect(ctx, "bad", "u", "p"); err == nil {
		t.Error("Connect to bad host should fail")
	}
	if err := env.svc.Connect(ctx, "ftp.example.com", "u", "p"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !env.svc.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}
	env.svc.Disconnect()
	if env.svc.IsConnected() {
		t.Error("IsConnected() = true after Disconnect")
	}
}

func TestService_ErrorLogsWithoutLister(t *testing.T) {
	svc, err := NewService(Deps{Remote: newFakeRemote(nil), Store: &memStore{}}, config.DownloadConfig{})
	if err != nil {
		t.Fatal(err)
	}
	logs, err := svc.ErrorLogs(context.Background(), 5)
	if err != nil || logs != nil {
		t.Errorf("ErrorLogs() = %v, %v, want nil, nil", logs, err)
	}
	if n, err := svc.RejectionCount(context.Background()); err != nil || n != 0 {
		t.Errorf("RejectionCount() = %d, %v, want 0", n, err)
	}
}

func TestValidateContent(t *testing.T) {
	ok := ValidateContent([]byte(validFile("1")))
	if !ok.Accepted || ok.Message != validator.ValidMessage {
		t.Errorf("ValidateContent(valid) = %+v", ok)
	}

	bad := ValidateContent([]byte(validFile("7", "7")))
	want := ValidationReport{
		Message: "Duplicate batch_id 7 on row 3",
		Kind:    "duplicate_batch_id",
		Row:     3,
		Code:    "ROW002",
	}
	if bad != want {
		t.Errorf("ValidateContent(dup) = %+v, want %+v", bad, want)
	}
}

func TestRequestFields(t *testing.T) {
	ctx := ContextWithUserAgent(ContextWithClientIP(context.Background(), "10.0.0.5"), "curl/8")
	got := requestFields(ctx)
	want := []any{"client_ip", "10.0.0.5", "user_agent", "curl/8"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("requestFields() = %v, want %v", got, want)
	}
	if got := requestFields(context.Background()); len(got) != 0 {
		t.Errorf("requestFields(empty) = %v", got)
	}
}
