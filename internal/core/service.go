package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/batchgate/internal/config"
	"github.com/JonMunkholm/batchgate/internal/diagnostics"
	"github.com/JonMunkholm/batchgate/internal/logging"
)

// DefaultDownloadTimeout bounds one Download when the config leaves it unset.
const DefaultDownloadTimeout = 5 * time.Minute

// RemoteClient is the remote file server as the service uses it.
// *remote.Client satisfies it.
type RemoteClient interface {
	Connect(ctx context.Context, host, user, password string) error
	IsConnected() bool
	Host() string
	Close() error
	ListFiles(ctx context.Context) ([]string, error)
	SearchFiles(ctx context.Context, keyword string) ([]string, error)
	Size(ctx context.Context, name string) (int64, error)
	Fetch(ctx context.Context, name string, maxBytes int64) ([]byte, error)
}

// FileStore keeps accepted content. *storage.Store satisfies it.
type FileStore interface {
	Save(content []byte) (string, error)
	List() ([]string, error)
	Read(name string) ([]byte, error)
}

// Deps are the collaborators a Service is built from.
type Deps struct {
	Remote RemoteClient
	Store  FileStore

	// Sink records rejections. Nil discards them.
	Sink diagnostics.Sink

	// Log serves ErrorLogs. Nil means no history is available.
	Log diagnostics.Lister

	// Limiter bounds concurrent downloads. Nil builds one from the config.
	Limiter *DownloadLimiter
}

// Service runs the download-validate-store pipeline and the queries the
// front ends need. It is safe for concurrent use.
type Service struct {
	remote  RemoteClient
	store   FileStore
	sink    diagnostics.Sink
	log     diagnostics.Lister
	limiter *DownloadLimiter
	status  *DownloadStatus

	maxFileSize int64
	timeout     time.Duration

	mu        sync.Mutex
	attempted map[string]struct{}
}

// NewService creates a Service. Remote and Store are required.
func NewService(deps Deps, cfg config.DownloadConfig) (*Service, error) {
	if deps.Remote == nil {
		return nil, errors.New("remote client is required")
	}
	if deps.Store == nil {
		return nil, errors.New("file store is required")
	}

	sink := deps.Sink
	if sink == nil {
		sink = diagnostics.Discard
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = NewDownloadLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultDownloadTimeout
	}

	return &Service{
		remote:      deps.Remote,
		store:       deps.Store,
		sink:        sink,
		log:         deps.Log,
		limiter:     limiter,
		status:      NewDownloadStatus(),
		maxFileSize: cfg.MaxFileSize,
		timeout:     timeout,
		attempted:   make(map[string]struct{}),
	}, nil
}

// Connect opens (or replaces) the remote connection.
func (s *Service) Connect(ctx context.Context, host, user, password string) error {
	if host == "" {
		return errors.New("host is required")
	}
	if err := s.remote.Connect(ctx, host, user, password); err != nil {
		return fmt.Errorf("connect %s: %w", host, err)
	}
	logging.FromContext(ctx).Info("connected to file server", "host", host, "user", user)
	return nil
}

// Disconnect closes the remote connection, if any.
func (s *Service) Disconnect() error {
	return s.remote.Close()
}

// IsConnected reports whether a remote connection is open.
func (s *Service) IsConnected() bool {
	return s.remote.IsConnected()
}

// ListFiles returns every file name on the remote server.
func (s *Service) ListFiles(ctx context.Context) ([]string, error) {
	return s.remote.ListFiles(ctx)
}

// SearchFiles returns the remote names containing keyword. An empty
// keyword lists everything.
func (s *Service) SearchFiles(ctx context.Context, keyword string) ([]string, error) {
	if keyword == "" {
		return s.remote.ListFiles(ctx)
	}
	return s.remote.SearchFiles(ctx, keyword)
}

// Host returns the address of the open remote connection, or "".
func (s *Service) Host() string {
	return s.remote.Host()
}

// ValidFiles returns the names of stored, accepted files.
func (s *Service) ValidFiles() ([]string, error) {
	return s.store.List()
}

// ValidFile returns the content of one stored file.
func (s *Service) ValidFile(name string) ([]byte, error) {
	return s.store.Read(name)
}

// ErrorLogs returns up to limit recorded rejections, oldest first.
func (s *Service) ErrorLogs(ctx context.Context, limit int) ([]diagnostics.Event, error) {
	if s.log == nil {
		return nil, nil
	}
	return s.log.Recent(ctx, limit)
}

// RejectionCount returns how many rejections the error log holds. It is
// zero when the log cannot count.
func (s *Service) RejectionCount(ctx context.Context) (int64, error) {
	c, ok := s.log.(diagnostics.Counter)
	if !ok {
		return 0, nil
	}
	return c.Count(ctx)
}

// Status returns the text of the most recent download's status.
func (s *Service) Status() string {
	return s.status.Text()
}

// Limiter returns the download limiter, for status reporting and drain.
func (s *Service) Limiter() *DownloadLimiter {
	return s.limiter
}

// Attempted returns the names downloaded (or tried) in this session, sorted.
func (s *Service) Attempted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.attempted))
	for n := range s.attempted {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ResetAttempts forgets every attempted name so files can be tried again,
// and returns the status to Idle.
func (s *Service) ResetAttempts() {
	s.mu.Lock()
	s.attempted = make(map[string]struct{})
	s.mu.Unlock()
	s.status.Reset()
}

func (s *Service) wasAttempted(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.attempted[name]
	return ok
}

// markAttempted adds name to the attempted set. It returns false when
// name was already present.
func (s *Service) markAttempted(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attempted[name]; ok {
		return false
	}
	s.attempted[name] = struct{}{}
	return true
}
