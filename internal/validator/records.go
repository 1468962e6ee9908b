package validator

import (
	"encoding/csv"
	"io"
	"strings"
	"unicode/utf8"
)

// splitLines breaks s at every line boundary: \r\n, \n, \r, \v, \f, the
// file/group/record separators, NEL and the Unicode line and paragraph
// separators. A terminator at the very end does not start another line.
func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !isLineBreak(r) {
			i += size
			continue
		}
		lines = append(lines, s[start:i])
		i += size
		if r == '\r' && i < len(s) && s[i] == '\n' {
			i++
		}
		start = i
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}

// joinRecords groups lines into record texts. A line that ends inside a
// quoted field is joined to the next one without the line break. Blank
// lines outside a quoted field stay as empty records.
func joinRecords(lines []string) []string {
	records := make([]string, 0, len(lines))
	var (
		cur      strings.Builder
		open     bool
		inQuoted bool
	)
	for _, line := range lines {
		cur.WriteString(line)
		open = true
		inQuoted = endsQuoted(line, inQuoted)
		if inQuoted {
			continue
		}
		records = append(records, cur.String())
		cur.Reset()
		open = false
	}
	if open {
		// Unterminated quote: the field runs to the end of the input.
		records = append(records, cur.String())
	}
	return records
}

type quoteState int

const (
	fieldStart quoteState = iota
	unquotedField
	quotedField
	quoteInQuoted
)

// endsQuoted reports whether line ends inside a quoted field, given
// whether it started inside one. Quotes inside an unquoted field are
// literal; a doubled quote inside a quoted field is an escaped quote.
func endsQuoted(line string, startsQuoted bool) bool {
	state := fieldStart
	if startsQuoted {
		state = quotedField
	}
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch state {
		case fieldStart:
			switch c {
			case '"':
				state = quotedField
			case ',':
			default:
				state = unquotedField
			}
		case unquotedField:
			if c == ',' {
				state = fieldStart
			}
		case quotedField:
			if c == '"' {
				state = quoteInQuoted
			}
		case quoteInQuoted:
			switch c {
			case '"':
				state = quotedField
			case ',':
				state = fieldStart
			default:
				state = unquotedField
			}
		}
	}
	return state == quotedField
}

// parseRecord splits one record text into fields. An empty text is a
// record with no fields.
func parseRecord(text string) ([]string, error) {
	if text == "" {
		return []string{}, nil
	}

	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1 // shape is checked per row
	r.LazyQuotes = true

	fields, err := r.Read()
	if err == io.EOF {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return fields, nil
}
