// Package core provides the business logic for fetching and gating sensor
// batch files.
//
// This package holds the domain workflow independent of any transport. The
// HTTP server and the batchcheck CLI both drive it.
//
// # Download Pipeline
//
// [Service.Download] takes one remote file name through these steps:
//
//  1. Status moves to "Downloading..."
//  2. The remote connection must be open ([remote.ErrNotConnected])
//  3. The name must not have been attempted this session ([ErrAlreadyAttempted])
//  4. A slot is taken from the [DownloadLimiter] ([ErrTooManyDownloads])
//  5. The name must end in .csv ([ErrNotCSV])
//  6. The remote size must be non-zero ([ErrEmptyFile]) and within the limit
//  7. The content is fetched and checked by the validator
//  8. Accepted content is stored; rejections are recorded to diagnostics
//
// Every failure after step 3 is written to the diagnostics sink with a
// correlation ID, and the name stays attempted until [Service.ResetAttempts].
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - HDR001, ROW001-ROW002, RDG001-RDG003: validation rejections
//   - FILE001-FILE004: file size, encoding, extension, emptiness
//   - FTP001-FTP005: remote server connection and lookup
//   - DL001-DL004: download session, concurrency, cancellation
//   - ERR000: unknown error (check logs)
//
// # Maintenance
//
// [StartRetentionScheduler] purges database rejection records older than
// the configured retention period.
package core
