package core

import "sync"

// Download status texts shown to users.
const (
	StatusIdle        = "Idle"
	StatusDownloading = "Downloading..."
	StatusSuccess     = "Download Success"
	StatusFailed      = "Download Failed!"
)

// Status change kinds accepted by ChangeStatus.
const (
	StatusKindStart   = "start"
	StatusKindSuccess = "success"
	StatusKindFailed  = "failed"
)

// DownloadStatus tracks the outcome of the most recent download.
type DownloadStatus struct {
	mu   sync.RWMutex
	text string
}

// NewDownloadStatus returns a status reading Idle.
func NewDownloadStatus() *DownloadStatus {
	return &DownloadStatus{text: StatusIdle}
}

// ChangeStatus moves to Downloading... for "start", Download Success for
// "success" and Download Failed! for anything else. It returns the new text.
func (s *DownloadStatus) ChangeStatus(kind string) string {
	var text string
	switch kind {
	case StatusKindStart:
		text = StatusDownloading
	case StatusKindSuccess:
		text = StatusSuccess
	default:
		text = StatusFailed
	}

	s.mu.Lock()
	s.text = text
	s.mu.Unlock()
	return text
}

// Text returns the current status text.
func (s *DownloadStatus) Text() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.text
}

// Reset returns the status to Idle.
func (s *DownloadStatus) Reset() {
	s.mu.Lock()
	s.text = StatusIdle
	s.mu.Unlock()
}
