package validator

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Kind classifies why content was rejected.
type Kind int

const (
	KindNone Kind = iota
	HeaderMismatch
	RowShapeError
	DuplicateBatchID
	NonNumericReading
	ReadingOutOfRange
	ReadingFormatError
	MalformedInput
)

func (k Kind) String() string {
	switch k {
	case HeaderMismatch:
		return "header_mismatch"
	case RowShapeError:
		return "row_shape"
	case DuplicateBatchID:
		return "duplicate_batch_id"
	case NonNumericReading:
		return "non_numeric_reading"
	case ReadingOutOfRange:
		return "reading_out_of_range"
	case ReadingFormatError:
		return "reading_format"
	case MalformedInput:
		return "malformed_input"
	default:
		return "none"
	}
}

// Rejection describes the first failure found in a batch file.
type Rejection struct {
	Kind    Kind
	Row     int    // 1-based record number; the header is row 1. Zero when not row-specific.
	Reading int    // 1-based reading index, zero when not a reading failure
	Value   string // offending raw text or rendered value
	Message string // human-readable reason
}

func (r *Rejection) Error() string {
	return r.Message
}

func headerMismatch(found []string) *Rejection {
	return &Rejection{
		Kind:    HeaderMismatch,
		Row:     1,
		Message: fmt.Sprintf("Incorrect or missing headers: %s", formatHeader(found)),
	}
}

// rowShape reports a record with the wrong field count. The message reads
// "missing columns" for short and long rows alike; Value holds the count.
func rowShape(rowNum, fields int) *Rejection {
	return &Rejection{
		Kind:    RowShapeError,
		Row:     rowNum,
		Value:   strconv.Itoa(fields),
		Message: fmt.Sprintf("Row %d has missing columns", rowNum),
	}
}

func duplicateBatch(rowNum int, batchID string) *Rejection {
	return &Rejection{
		Kind:    DuplicateBatchID,
		Row:     rowNum,
		Value:   batchID,
		Message: fmt.Sprintf("Duplicate batch_id %s on row %d", batchID, rowNum),
	}
}

func nonNumeric(idx, rowNum int, raw string) *Rejection {
	return &Rejection{
		Kind:    NonNumericReading,
		Row:     rowNum,
		Reading: idx,
		Value:   raw,
		Message: fmt.Sprintf("Non-numeric reading%d on row %d: %s", idx, rowNum, raw),
	}
}

func outOfRange(idx, rowNum int, value float64) *Rejection {
	v := formatValue(value)
	return &Rejection{
		Kind:    ReadingOutOfRange,
		Row:     rowNum,
		Reading: idx,
		Value:   v,
		Message: fmt.Sprintf("Value exceeds 9.9 in reading%d on row %d: %s", idx, rowNum, v),
	}
}

func badFormat(idx, rowNum int, raw string) *Rejection {
	return &Rejection{
		Kind:    ReadingFormatError,
		Row:     rowNum,
		Reading: idx,
		Value:   raw,
		Message: fmt.Sprintf("Invalid decimal format in reading%d on row %d: %s", idx, rowNum, raw),
	}
}

func malformed(err error) *Rejection {
	return &Rejection{
		Kind:    MalformedInput,
		Message: fmt.Sprintf("Malformed file error: %s", err.Error()),
	}
}

// formatHeader renders the header found for a mismatch message as a
// list literal, ['a', 'b'], or None when the content has no lines.
func formatHeader(found []string) string {
	if found == nil {
		return "None"
	}
	quoted := make([]string, len(found))
	for i, f := range found {
		quoted[i] = quoteField(f)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// quoteField quotes s with single quotes, or double quotes when s holds a
// single quote and no double quote. Control and non-printable characters
// are escaped.
func quoteField(s string) string {
	q := '\''
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		q = '"'
	}

	var b strings.Builder
	b.WriteRune(q)
	for _, r := range s {
		switch {
		case r == q || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\t':
			b.WriteString(`\t`)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case unicode.IsPrint(r):
			b.WriteRune(r)
		case r < 0x100:
			fmt.Fprintf(&b, `\x%02x`, r)
		case r < 0x10000:
			fmt.Fprintf(&b, `\u%04x`, r)
		default:
			fmt.Fprintf(&b, `\U%08x`, r)
		}
	}
	b.WriteRune(q)
	return b.String()
}

// formatValue renders a parsed reading with the shortest exact digits,
// keeping a ".0" on integral values so 10 prints as "10.0". Very large or
// very small magnitudes use exponent form.
func formatValue(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	abs := math.Abs(v)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
