package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/batchgate/internal/diagnostics"
	"github.com/JonMunkholm/batchgate/internal/logging"
	"github.com/JonMunkholm/batchgate/internal/remote"
	"github.com/JonMunkholm/batchgate/internal/validator"
)

var (
	// ErrAlreadyAttempted is returned for a name already tried this session.
	ErrAlreadyAttempted = errors.New("file already downloaded in this session")

	// ErrNotCSV is returned for names without a .csv extension.
	ErrNotCSV = errors.New("only .csv files are allowed")

	// ErrEmptyFile is returned when the remote file has zero size.
	ErrEmptyFile = errors.New("empty file")
)

// Rejection kinds recorded for failures outside the validator.
const (
	KindInvalidExtension = "invalid_extension"
	KindEmptyFile        = "empty_file"
	KindSizeCheck        = "size_check"
	KindDownload         = "download"
)

// DownloadResult describes a completed download attempt that reached
// validation.
type DownloadResult struct {
	FileName string        `json:"file_name"`
	Accepted bool          `json:"accepted"`
	StoredAs string        `json:"stored_as,omitempty"`
	Size     int           `json:"size"`
	Message  string        `json:"message"`
	Code     string        `json:"code,omitempty"`
	Duration time.Duration `json:"duration"`

	// CorrelationID identifies the recorded rejection, if any.
	CorrelationID string `json:"correlation_id,omitempty"`

	Rejection *validator.Rejection `json:"-"`
}

// Download fetches name from the remote server, validates it and stores it
// when accepted. A rejected file is not an error: the result carries the
// rejection. Errors are returned for everything that prevents validation.
//
// Every name is attempted at most once per session; see ResetAttempts.
func (s *Service) Download(ctx context.Context, name string) (*DownloadResult, error) {
	start := time.Now()
	log := logging.WithFields(ctx, append([]any{"file", name}, requestFields(ctx)...)...)

	s.status.ChangeStatus(StatusKindStart)

	if !s.remote.IsConnected() {
		s.status.ChangeStatus(StatusKindFailed)
		return nil, remote.ErrNotConnected
	}
	if s.wasAttempted(name) {
		return nil, s.alreadyAttempted(log, name)
	}

	// Names are marked only while a slot is held.
	if err := s.limiter.Acquire(ctx); err != nil {
		s.status.ChangeStatus(StatusKindFailed)
		return nil, err
	}
	defer s.limiter.Release()

	if !s.markAttempted(name) {
		return nil, s.alreadyAttempted(log, name)
	}

	// Diagnostics are written even if the caller goes away mid-transfer.
	recordCtx := context.WithoutCancel(ctx)

	if !strings.EqualFold(path.Ext(name), ".csv") {
		s.fail(recordCtx, name, KindInvalidExtension,
			fmt.Sprintf("Invalid file extension for '%s'. Only '.csv' files are allowed.", name))
		return nil, fmt.Errorf("%s: %w", name, ErrNotCSV)
	}

	dlCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	size, err := s.remote.Size(dlCtx, name)
	if err != nil {
		s.fail(recordCtx, name, KindSizeCheck, fmt.Sprintf("Download size check error: %v", err))
		return nil, err
	}
	if size == 0 {
		s.fail(recordCtx, name, KindEmptyFile, fmt.Sprintf("File '%s' is empty (zero size).", name))
		return nil, fmt.Errorf("%s: %w", name, ErrEmptyFile)
	}
	if s.maxFileSize > 0 && size > s.maxFileSize {
		err := fmt.Errorf("%s is %d bytes: %w", name, size, remote.ErrFileTooLarge)
		s.fail(recordCtx, name, KindDownload, fmt.Sprintf("Download error: %v", err))
		return nil, err
	}

	data, err := s.remote.Fetch(dlCtx, name, s.maxFileSize)
	if err != nil {
		s.fail(recordCtx, name, KindDownload, fmt.Sprintf("Download error: %v", err))
		return nil, err
	}

	result := &DownloadResult{FileName: name, Size: len(data)}

	if rej := validator.Check(string(data)); rej != nil {
		result.Message = rej.Message
		result.Rejection = rej
		result.Code = CodeFor(rej)
		id := s.fail(recordCtx, name, rej.Kind.String(),
			fmt.Sprintf("Validation failed for '%s': %s", name, rej.Message))
		result.CorrelationID = id.String()
		result.Duration = time.Since(start)
		return result, nil
	}

	stored, err := s.store.Save(data)
	if err != nil {
		s.fail(recordCtx, name, KindDownload, fmt.Sprintf("Download error: %v", err))
		return nil, err
	}

	s.status.ChangeStatus(StatusKindSuccess)
	result.Accepted = true
	result.StoredAs = stored
	result.Message = validator.ValidMessage
	result.Duration = time.Since(start)

	log.Info("file accepted",
		"stored_as", stored,
		"bytes", len(data),
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

func (s *Service) alreadyAttempted(log *slog.Logger, name string) error {
	s.status.ChangeStatus(StatusKindFailed)
	log.Warn("file already attempted")
	return fmt.Errorf("%s: %w", name, ErrAlreadyAttempted)
}

// fail marks the status failed and records message to the diagnostics sink.
// It returns the event's correlation ID.
func (s *Service) fail(ctx context.Context, name, kind, message string) uuid.UUID {
	s.status.ChangeStatus(StatusKindFailed)

	ev := diagnostics.NewEvent(name, kind, message)
	log := logging.WithFields(ctx, "file", name, "correlation_id", ev.ID.String())
	log.Warn(message, "kind", kind)

	if err := s.sink.RecordRejection(ctx, ev); err != nil {
		log.Error("record rejection failed", "error", err)
	}
	return ev.ID
}
