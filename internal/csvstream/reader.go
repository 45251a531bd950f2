package csvstream

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrSourceUnreadable signals that the import source could not be opened.
var ErrSourceUnreadable = errors.New("source unreadable")

const sniffSampleSize = 4096

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var delimiterCandidates = []byte{',', ';', '\t', '|'}

// RowReader is a forward-only stream of header-keyed records over a
// delimited text file. It is consumable exactly once.
type RowReader struct {
	file    *os.File
	csv     *csv.Reader
	headers []string
	line    int
}

// Open opens a delimited file and prepares a RowReader. The field delimiter
// is sniffed from the first 4KB of content; when sniffing fails the reader
// falls back to comma and logs the fallback. A UTF-8 byte-order marker is
// stripped and header names are trimmed of surrounding whitespace.
func Open(path string, logger *logrus.Entry) (*RowReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}

	br := bufio.NewReaderSize(f, sniffSampleSize*2)
	if peek, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(peek, utf8BOM) {
		br.Discard(len(utf8BOM))
	}

	sample, _ := br.Peek(sniffSampleSize)
	delim, ok := SniffDelimiter(sample)
	if !ok && logger != nil {
		logger.WithField("path", path).Warn("Delimiter sniffing failed, falling back to comma")
	}

	cr := csv.NewReader(br)
	cr.Comma = rune(delim)
	cr.FieldsPerRecord = -1

	headers, err := cr.Read()
	if err != nil {
		f.Close()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty file", ErrSourceUnreadable)
		}
		return nil, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}

	return &RowReader{
		file:    f,
		csv:     cr,
		headers: headers,
		line:    1,
	}, nil
}

// Headers returns the normalized header names.
func (r *RowReader) Headers() []string {
	return r.headers
}

// Next returns the next record as a header-name to raw-value map along with
// its 1-based line number. io.EOF is the normal terminal condition.
func (r *RowReader) Next() (map[string]string, int, error) {
	record, err := r.csv.Read()
	if err != nil {
		return nil, 0, err
	}
	r.line++

	row := make(map[string]string, len(r.headers))
	for i, value := range record {
		if i < len(r.headers) {
			row[r.headers[i]] = value
		}
	}
	return row, r.line, nil
}

// Close releases the underlying file handle.
func (r *RowReader) Close() error {
	return r.file.Close()
}

// SniffDelimiter picks the most plausible field delimiter from a leading
// sample. A candidate qualifies when it appears the same non-zero number of
// times on each sampled line; ties go to the candidate with the most fields.
// Returns comma and false when no candidate qualifies.
func SniffDelimiter(sample []byte) (byte, bool) {
	lines := sampleLines(sample)
	if len(lines) == 0 {
		return ',', false
	}

	best := byte(0)
	bestCount := 0
	for _, cand := range delimiterCandidates {
		count := bytes.Count(lines[0], []byte{cand})
		if count == 0 {
			continue
		}
		consistent := true
		for _, line := range lines[1:] {
			if bytes.Count(line, []byte{cand}) != count {
				consistent = false
				break
			}
		}
		if consistent && count > bestCount {
			best = cand
			bestCount = count
		}
	}

	if best == 0 {
		return ',', false
	}
	return best, true
}

// sampleLines splits a sniff sample into complete lines, dropping the final
// fragment that may have been cut mid-line by the sample boundary.
func sampleLines(sample []byte) [][]byte {
	parts := bytes.Split(sample, []byte{'\n'})
	if len(parts) > 1 {
		parts = parts[:len(parts)-1]
	}
	lines := make([][]byte, 0, len(parts))
	for _, p := range parts {
		p = bytes.TrimSuffix(p, []byte{'\r'})
		if len(p) > 0 {
			lines = append(lines, p)
		}
	}
	return lines
}
