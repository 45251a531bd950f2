package csvstream

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "import.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.csv"), testLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnreadable)
}

func TestOpenEmptyFile(t *testing.T) {
	path := writeTempFile(t, "")
	_, err := Open(path, testLogger())
	assert.ErrorIs(t, err, ErrSourceUnreadable)
}

func TestReadCommaSeparated(t *testing.T) {
	path := writeTempFile(t, "SKU,Name,Price,Stock\nA-1,Widget,9.99,5\nB-2,Gadget,12.50,0\n")
	r, err := Open(path, testLogger())
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []string{"SKU", "Name", "Price", "Stock"}, r.Headers())

	row, line, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, 2, line)
	assert.Equal(t, "A-1", row["SKU"])
	assert.Equal(t, "9.99", row["Price"])

	row, line, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, 3, line)
	assert.Equal(t, "B-2", row["SKU"])

	_, _, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReadSemicolonSeparated(t *testing.T) {
	path := writeTempFile(t, "SKU;Name;Price;Stock\nA-1;Widget;9.99;5\n")
	r, err := Open(path, testLogger())
	require.NoError(t, err)
	defer r.Close()

	row, _, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "Widget", row["Name"])
}

func TestReadTabSeparated(t *testing.T) {
	path := writeTempFile(t, "SKU\tName\tPrice\tStock\nA-1\tWidget\t9.99\t5\n")
	r, err := Open(path, testLogger())
	require.NoError(t, err)
	defer r.Close()

	row, _, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "5", row["Stock"])
}

func TestBOMAndPaddedHeadersStripped(t *testing.T) {
	path := writeTempFile(t, "\xEF\xBB\xBF SKU , Name , Price , Stock \nA-1,Widget,9.99,5\n")
	r, err := Open(path, testLogger())
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []string{"SKU", "Name", "Price", "Stock"}, r.Headers())

	row, _, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "A-1", row["SKU"])
}

func TestShortRowOmitsTrailingColumns(t *testing.T) {
	path := writeTempFile(t, "SKU,Name,Price,Stock\nA-1,Widget\n")
	r, err := Open(path, testLogger())
	require.NoError(t, err)
	defer r.Close()

	row, _, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "Widget", row["Name"])
	_, ok := row["Price"]
	assert.False(t, ok)
}

func TestSniffDelimiter(t *testing.T) {
	tests := []struct {
		name   string
		sample string
		want   byte
		ok     bool
	}{
		{"comma", "a,b,c\n1,2,3\n", ',', true},
		{"semicolon", "a;b;c\n1;2;3\n", ';', true},
		{"pipe", "a|b|c\n1|2|3\n", '|', true},
		{"tab", "a\tb\tc\n1\t2\t3\n", '\t', true},
		{"inconsistent counts", "a;b\n1;2;3\n", ',', false},
		{"no delimiter", "justonecolumn\nvalue\n", ',', false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SniffDelimiter([]byte(tt.sample))
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}
