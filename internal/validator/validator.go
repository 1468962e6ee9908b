// Package validator decides whether a text blob is a well-formed reading
// batch file.
//
// A batch file is a CSV document whose first record is the fixed header
//
//	batch_id,timestamp,reading1,...,reading10
//
// followed by data rows of exactly twelve fields. Every batch_id is unique
// within the file and every reading is a non-negative decimal no greater
// than 9.9 with at most three fractional digits.
//
// Validation is single-pass and fail-fast: the first problem found is the
// only one reported. The package performs no I/O and keeps no state between
// calls, so Validate and Check are safe for concurrent use.
package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxReading is the largest accepted reading value.
const MaxReading = 9.9

// ReadingCount is the number of reading columns following batch_id and timestamp.
const ReadingCount = 10

// ValidMessage is the message returned for accepted content.
const ValidMessage = "Valid"

// readingFormat allows digits with an optional 1-3 digit fraction. No sign,
// no exponent, no grouping separators.
var readingFormat = regexp.MustCompile(`^[0-9]+(\.[0-9]{1,3})?$`)

// expectedHeaders is the required header row. Use ExpectedHeaders for a copy.
var expectedHeaders = buildHeaders()

func buildHeaders() []string {
	h := make([]string, 0, 2+ReadingCount)
	h = append(h, "batch_id", "timestamp")
	for i := 1; i <= ReadingCount; i++ {
		h = append(h, "reading"+strconv.Itoa(i))
	}
	return h
}

// ExpectedHeaders returns the header row a batch file must start with.
func ExpectedHeaders() []string {
	out := make([]string, len(expectedHeaders))
	copy(out, expectedHeaders)
	return out
}

// FieldCount is the number of fields every record must have.
func FieldCount() int {
	return len(expectedHeaders)
}

// Validate reports whether content is an acceptable batch file.
// The message is ValidMessage on success, otherwise the first failure found.
func Validate(content string) (bool, string) {
	if rej := Check(content); rej != nil {
		return false, rej.Message
	}
	return true, ValidMessage
}

// Check validates content and returns the first failure, or nil if the
// content is accepted.
//
// Content is split into lines at \r\n, \n, \r and the other Unicode line
// separators. A blank line is a record with no fields. A line that ends
// inside a quoted field continues on the next line.
func Check(content string) (rej *Rejection) {
	defer func() {
		if r := recover(); r != nil {
			rej = malformed(fmt.Errorf("%v", r))
		}
	}()

	if !utf8.ValidString(content) {
		return malformed(errors.New("invalid UTF-8 encoding"))
	}

	records := joinRecords(splitLines(content))
	if len(records) == 0 {
		return headerMismatch(nil)
	}

	header, err := parseRecord(records[0])
	if err != nil {
		return malformed(err)
	}
	if !headersMatch(header) {
		return headerMismatch(header)
	}

	seen := make(map[string]struct{})
	for i, text := range records[1:] {
		rowNum := i + 2
		row, err := parseRecord(text)
		if err != nil {
			return malformed(err)
		}
		if rej := checkRow(row, rowNum, seen); rej != nil {
			return rej
		}
	}
	return nil
}

func headersMatch(header []string) bool {
	if len(header) != len(expectedHeaders) {
		return false
	}
	for i, name := range expectedHeaders {
		if header[i] != name {
			return false
		}
	}
	return true
}

// checkRow runs the shape, uniqueness and reading checks on one data row.
func checkRow(row []string, rowNum int, seen map[string]struct{}) *Rejection {
	if len(row) != FieldCount() {
		return rowShape(rowNum, len(row))
	}

	batchID := row[0]
	if _, dup := seen[batchID]; dup {
		return duplicateBatch(rowNum, batchID)
	}
	seen[batchID] = struct{}{}

	for i, raw := range row[2:] {
		if rej := checkReading(raw, i+1, rowNum); rej != nil {
			return rej
		}
	}
	return nil
}

// checkReading applies the numeric, range and format checks in that order.
// A value that is both out of range and malformed is reported as out of range.
func checkReading(raw string, idx, rowNum int) *Rejection {
	value, ok := parseReading(raw)
	if !ok {
		return nonNumeric(idx, rowNum, raw)
	}
	if value > MaxReading {
		return outOfRange(idx, rowNum, value)
	}
	if !readingFormat.MatchString(raw) {
		return badFormat(idx, rowNum, raw)
	}
	return nil
}

// parseReading parses a reading the way a lenient float parser would:
// surrounding whitespace is ignored, single underscores between digits are
// digit separators and overflow yields an infinity. Hexadecimal floats are
// not numbers here.
func parseReading(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.ContainsAny(s, "xX") {
		return 0, false
	}
	if strings.Contains(s, "_") {
		if !digitSeparated(s) {
			return 0, false
		}
		s = strings.ReplaceAll(s, "_", "")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	return v, true
}

// digitSeparated reports whether every underscore in s sits between two
// ASCII digits.
func digitSeparated(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != '_' {
			continue
		}
		if i == 0 || i == len(s)-1 || !isDigit(s[i-1]) || !isDigit(s[i+1]) {
			return false
		}
	}
	return true
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
