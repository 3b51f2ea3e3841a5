package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"github.com/vvka-141/stockimport/pkg/stockimport"
)

func readAll(t *testing.T, src stockimport.RowSource) ([]stockimport.Row, []error) {
	t.Helper()
	var rows []stockimport.Row
	var rowErrs []error
	for {
		row, err := src.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return rows, rowErrs
		}
		var readErr *stockimport.RowReadError
		if errors.As(err, &readErr) {
			rowErrs = append(rowErrs, err)
			continue
		}
		require.NoError(t, err)
		rows = append(rows, row)
	}
}

func TestCSVReader_SkipsHeaderAndNumbersLines(t *testing.T) {
	input := "date,name,code,recorded,close,adj,adj_ex\n" +
		"20240301,Toyota,7203,2024-03-01,3456,3456,3400\n" +
		"20240301,Sony,6758,2024-03-01,,,\n"

	r, err := NewCSVReader(strings.NewReader(input), DefaultOptions())
	require.NoError(t, err)

	rows, rowErrs := readAll(t, r)
	assert.Empty(t, rowErrs)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, "7203", rows[0].Fields[2])
	assert.Equal(t, 3, rows[1].Line)
	assert.Equal(t, []string{"20240301", "Sony", "6758", "2024-03-01", "", "", ""}, rows[1].Fields)
}

func TestCSVReader_WithoutHeader(t *testing.T) {
	opts := DefaultOptions()
	opts.HasHeader = false

	r, err := NewCSVReader(strings.NewReader("a,b\nc,d\n"), opts)
	require.NoError(t, err)

	rows, _ := readAll(t, r)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].Line)
}

func TestCSVReader_StripsBOM(t *testing.T) {
	opts := DefaultOptions()
	opts.HasHeader = false

	r, err := NewCSVReader(strings.NewReader("\ufeff1,2\n"), opts)
	require.NoError(t, err)

	rows, _ := readAll(t, r)
	require.Len(t, rows, 1)
	assert.Equal(t, "1", rows[0].Fields[0])
}

func TestCSVReader_VariableFieldCounts(t *testing.T) {
	r, err := NewCSVReader(strings.NewReader("h\n1,2,3\n1\n1,2,3,4,5,6,7,8\n"), DefaultOptions())
	require.NoError(t, err)

	rows, rowErrs := readAll(t, r)
	assert.Empty(t, rowErrs)
	assert.Len(t, rows, 3)
}

func TestCSVReader_MalformedLineIsRecoverable(t *testing.T) {
	input := "h\n1,a\"b,3\n4,5,6\n"

	r, err := NewCSVReader(strings.NewReader(input), DefaultOptions())
	require.NoError(t, err)

	rows, rowErrs := readAll(t, r)
	require.Len(t, rowErrs, 1)
	var readErr *stockimport.RowReadError
	require.ErrorAs(t, rowErrs[0], &readErr)
	assert.Equal(t, 2, readErr.Line)

	require.Len(t, rows, 1)
	assert.Equal(t, []string{"4", "5", "6"}, rows[0].Fields)
}

func TestCSVReader_LazyQuotes(t *testing.T) {
	opts := DefaultOptions()
	opts.LazyQuotes = true

	r, err := NewCSVReader(strings.NewReader("h\n1,a\"b,3\n"), opts)
	require.NoError(t, err)

	rows, rowErrs := readAll(t, r)
	assert.Empty(t, rowErrs)
	require.Len(t, rows, 1)
	assert.Equal(t, `a"b`, rows[0].Fields[1])
}

func TestCSVReader_Delimiter(t *testing.T) {
	opts := DefaultOptions()
	opts.Delimiter = '\t'

	r, err := NewCSVReader(strings.NewReader("h\n1\t2\n"), opts)
	require.NoError(t, err)

	rows, _ := readAll(t, r)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"1", "2"}, rows[0].Fields)
}

func TestCSVReader_ShiftJIS(t *testing.T) {
	utf8 := "日付,銘柄名,コード\n20240301,トヨタ自動車,7203\n"
	var encoded bytes.Buffer
	w := transform.NewWriter(&encoded, japanese.ShiftJIS.NewEncoder())
	_, err := w.Write([]byte(utf8))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	opts := DefaultOptions()
	opts.Encoding = "shift_jis"
	r, err := NewCSVReader(&encoded, opts)
	require.NoError(t, err)

	rows, _ := readAll(t, r)
	require.Len(t, rows, 1)
	assert.Equal(t, "トヨタ自動車", rows[0].Fields[1])
}

func TestCSVReader_ReadFailure(t *testing.T) {
	r, err := NewCSVReader(io.MultiReader(strings.NewReader("h\n1,2\n"), failingReader{}), DefaultOptions())
	require.NoError(t, err)

	row, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, row.Fields)

	_, err = r.Next(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, stockimport.ErrSourceUnavailable)
	assert.NotErrorIs(t, err, io.EOF)
}

func TestCSVReader_HonorsCancellation(t *testing.T) {
	r, err := NewCSVReader(strings.NewReader("h\n1,2\n"), DefaultOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLookupEncoding(t *testing.T) {
	for _, label := range []string{"", "UTF-8", "utf8"} {
		enc, err := LookupEncoding(label)
		require.NoError(t, err)
		assert.Nil(t, enc, label)
	}

	for _, label := range []string{"shift_jis", "Shift_JIS", "sjis", "cp932", "euc-jp", "eucjp", "windows-1252"} {
		enc, err := LookupEncoding(label)
		require.NoError(t, err, label)
		assert.NotNil(t, enc, label)
	}

	_, err := LookupEncoding("klingon")
	assert.ErrorIs(t, err, stockimport.ErrInvalidConfig)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection lost")
}
