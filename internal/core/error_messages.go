package core

// error_messages.go maps technical errors to user-facing messages with
// support codes. Users quote the code; support looks it up here.
//
// # Validation (HDR, ROW, RDG)
//
//	HDR001 - Header row does not match the expected layout
//	ROW001 - A data row has missing or extra columns
//	ROW002 - A batch_id appears more than once
//	RDG001 - A reading is not a number
//	RDG002 - A reading exceeds 9.9
//	RDG003 - A reading has more than three decimals or a sign/exponent
//
// # Files (FILE)
//
//	FILE001 - File exceeds the download size limit
//	FILE002 - File could not be parsed as CSV text
//	FILE003 - File name does not end in .csv
//	FILE004 - File is empty on the server
//	FILE005 - Stored file name is not a bare file name
//	FILE006 - Stored file does not exist
//
// # Remote server (FTP)
//
//	FTP001 - No connection has been opened
//	FTP002 - No file name contains the search keyword
//	FTP003 - Server refused the connection
//	FTP004 - Login rejected (530)
//	FTP005 - File not available on the server (550)
//
// # Downloads (DL)
//
//	DL001 - File was already attempted in this session
//	DL002 - Every download slot is busy
//	DL003 - Request was cancelled
//	DL004 - Request timed out
//
// # Other
//
//	RATE001 - Too many requests
//	ERR000  - Anything else; check the logs for the technical error
//
// Lookup order: validator rejections by kind, then sentinel errors with
// errors.Is, then case-insensitive substring patterns. First match wins.

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/JonMunkholm/batchgate/internal/remote"
	"github.com/JonMunkholm/batchgate/internal/storage"
	"github.com/JonMunkholm/batchgate/internal/validator"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var kindMessages = map[validator.Kind]UserMessage{
	validator.HeaderMismatch: {
		Message: "The header row does not match the expected layout",
		Action:  "Use the header batch_id,timestamp,reading1,...,reading10",
		Code:    "HDR001",
	},
	validator.RowShapeError: {
		Message: "A row has missing or extra columns",
		Action:  "Make sure every row has exactly 12 fields",
		Code:    "ROW001",
	},
	validator.DuplicateBatchID: {
		Message: "A batch_id appears more than once",
		Action:  "Remove or renumber the duplicate rows",
		Code:    "ROW002",
	},
	validator.NonNumericReading: {
		Message: "A reading is not a number",
		Action:  "Readings must be plain decimal numbers",
		Code:    "RDG001",
	},
	validator.ReadingOutOfRange: {
		Message: "A reading exceeds the maximum of 9.9",
		Action:  "Check the instrument output for the reported row",
		Code:    "RDG002",
	},
	validator.ReadingFormatError: {
		Message: "A reading has an invalid decimal format",
		Action:  "Use at most three decimal places and no sign or exponent",
		Code:    "RDG003",
	},
	validator.MalformedInput: {
		Message: "The file could not be read as CSV text",
		Action:  "Save the file as UTF-8 comma-separated text",
		Code:    "FILE002",
	},
}

type sentinelMessage struct {
	err error
	msg UserMessage
}

var sentinelMessages = []sentinelMessage{
	{remote.ErrFileTooLarge, UserMessage{
		Message: "File exceeds the maximum download size",
		Action:  "Ask the sender to split the batch into smaller files",
		Code:    "FILE001",
	}},
	{ErrNotCSV, UserMessage{
		Message: "Only .csv files can be downloaded",
		Action:  "Pick a file ending in .csv",
		Code:    "FILE003",
	}},
	{ErrEmptyFile, UserMessage{
		Message: "The file on the server is empty",
		Action:  "Wait for the sender to upload the complete file",
		Code:    "FILE004",
	}},
	{storage.ErrInvalidName, UserMessage{
		Message: "That is not a valid stored file name",
		Action:  "Use a name from the valid files list",
		Code:    "FILE005",
	}},
	{fs.ErrNotExist, UserMessage{
		Message: "The stored file was not found",
		Action:  "Refresh the valid files list",
		Code:    "FILE006",
	}},
	{remote.ErrNotConnected, UserMessage{
		Message: "Not connected to the file server",
		Action:  "Connect to the server first",
		Code:    "FTP001",
	}},
	{remote.ErrNoMatch, UserMessage{
		Message: "No file matches the search",
		Action:  "Try a shorter keyword or list all files",
		Code:    "FTP002",
	}},
	{ErrAlreadyAttempted, UserMessage{
		Message: "This file was already downloaded in this session",
		Action:  "Reset the attempted files to try it again",
		Code:    "DL001",
	}},
	{ErrTooManyDownloads, UserMessage{
		Message: "Other downloads are still running",
		Action:  "Please wait a moment and try again",
		Code:    "DL002",
	}},
	{context.Canceled, UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "DL003",
	}},
	{context.DeadlineExceeded, UserMessage{
		Message: "Request timed out",
		Action:  "Check the server connection and try again",
		Code:    "DL004",
	}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "The file server refused the connection",
			Action:  "Check the host and port, then try again",
			Code:    "FTP003",
		},
	},
	{
		pattern: "530",
		msg: UserMessage{
			Message: "The file server rejected the login",
			Action:  "Check the user name and password",
			Code:    "FTP004",
		},
	},
	{
		pattern: "550",
		msg: UserMessage{
			Message: "The file is not available on the server",
			Action:  "Refresh the file list and pick an existing file",
			Code:    "FTP005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Check the server connection and try again",
			Code:    "DL004",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
// Example:
//
//	msg := MapError(validator.Check(content))
//	// msg.Code == "ROW002" for a duplicate batch_id
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var rej *validator.Rejection
	if errors.As(err, &rej) {
		if msg, ok := kindMessages[rej.Kind]; ok {
			return msg
		}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// CodeFor returns only the support code for err.
func CodeFor(err error) string {
	return MapError(err).Code
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err and wraps it. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
