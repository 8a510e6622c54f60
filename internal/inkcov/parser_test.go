package inkcov

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/printmanager/internal/docerr"
)

func TestParse_ClassifiesPages(t *testing.T) {
	out := []byte(
		" 0.00000  0.00000  0.00000  0.14231 CMYK OK\n" +
			" 0.20000  0.00000  0.00000  0.10000 CMYK OK\n" +
			" 0.00000  0.00000  0.05000  0.00000 CMYK OK\n" +
			" 0.00500  0.00500  0.00500  0.90000 CMYK OK\n")

	rep, err := Parse(out, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, rep.TotalPages)
	assert.Equal(t, []int{2, 3}, rep.ColorPages)
	assert.Equal(t, []int{1, 4}, rep.MonoPages)
	assert.False(t, rep.Fallback)
	require.NoError(t, rep.Validate())
}

func TestParse_ThresholdIsExclusive(t *testing.T) {
	rep, err := Parse([]byte("0.01 0.01 0.01 0.75\n0.0101 0 0 0\n"), 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, rep.MonoPages)
	assert.Equal(t, []int{2}, rep.ColorPages)
}

func TestParse_MagentaAndYellowAlsoCountAsColor(t *testing.T) {
	rep, err := Parse([]byte("0 0.02 0 0\n0 0 0.011 0\n0 0 0 1\n"), 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, rep.ColorPages)
	assert.Equal(t, []int{3}, rep.MonoPages)
}

func TestParse_TrailingBlankLinesIgnored(t *testing.T) {
	rep, err := Parse([]byte("0 0 0 0.5 CMYK OK\n0.3 0 0 0 CMYK OK\n\n   \n\n"), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.TotalPages)
	assert.Equal(t, []int{2}, rep.ColorPages)
	assert.Equal(t, []int{1}, rep.MonoPages)
}

func TestParse_ExtraWhitespaceAndTrailingFields(t *testing.T) {
	rep, err := Parse([]byte("\t0.00000    0.00000 \t 0.00000   0.30000   CMYK   OK  extra 42\r\n"), 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, rep.MonoPages)
}

func TestParse_InvalidRecordsKeepTheirPageNumber(t *testing.T) {
	out := []byte(
		"0 0 0 0.1\n" +
			"0.5 0.2\n" + // too few fields
			"0 0 1.7 0\n" + // out of range
			"0 0 x 0\n" + // not a number
			"0.4 0 0 0\n")

	rep, err := Parse(out, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, rep.TotalPages)
	assert.Equal(t, []int{1}, rep.MonoPages)
	assert.Equal(t, []int{5}, rep.ColorPages)
	require.NoError(t, rep.Validate())
}

func TestParse_NonRecordLinesDoNotShiftPages(t *testing.T) {
	out := []byte("GPL Ghostscript 10.02.1 (2023-11-01)\nProcessing pages 1 through 2.\nPage 1\n0 0 0 0.2\nPage 2\n0.5 0.5 0 0\n")
	rep, err := Parse(out, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.TotalPages)
	assert.Equal(t, []int{1}, rep.MonoPages)
	assert.Equal(t, []int{2}, rep.ColorPages)
}

func TestParse_NaNRejected(t *testing.T) {
	rep, err := Parse([]byte("NaN 0 0 0\n0 0 0 0\n"), 0)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, rep.MonoPages)
	assert.Empty(t, rep.ColorPages)
}

func TestParse_EmptyOutputFallsBackToAllMono(t *testing.T) {
	rep, err := Parse(nil, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.TotalPages)
	assert.Empty(t, rep.ColorPages)
	assert.Equal(t, []int{1, 2, 3}, rep.MonoPages)
	assert.True(t, rep.Fallback)
}

func TestParse_UnparsableOutputFallsBack(t *testing.T) {
	rep, err := Parse([]byte("Error: /undefined in --showpage--\n"), 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, rep.MonoPages)
	assert.True(t, rep.Fallback)
}

func TestParse_NonUTF8FallsBackOrFails(t *testing.T) {
	out := []byte{0xff, 0xfe, '0', ' ', '0', ' ', '0', ' ', '0', '\n'}

	_, err := Parse(out, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, docerr.ErrParse))

	rep, err := Parse(out, 1)
	require.NoError(t, err)
	assert.True(t, rep.Fallback)
}

func TestParse_NoOutputNoPageCount(t *testing.T) {
	_, err := Parse([]byte("\n\n"), 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, docerr.ErrParse))
}

func TestParse_FullyParsedOutputCoversEveryPageOnce(t *testing.T) {
	lines := []string{"0 0 0 0", "0.9 0 0 0", "0 0.011 0 0.2", "0.01 0 0 0", "0 0 0.5 0.5", "0 0 0 1"}
	var out []byte
	for _, l := range lines {
		out = append(out, l+" CMYK OK\n"...)
	}

	rep, err := Parse(out, 0)
	require.NoError(t, err)
	require.NoError(t, rep.Validate())
	assert.Equal(t, len(lines), rep.ColorCount()+rep.MonoCount())
	assert.Equal(t, len(lines), rep.TotalPages)
}

func TestAllMono(t *testing.T) {
	rep := AllMono(20)
	assert.Equal(t, 20, rep.MonoCount())
	assert.Equal(t, 1, rep.MonoPages[0])
	assert.Equal(t, 20, rep.MonoPages[19])
	require.NoError(t, rep.Validate())
}

func TestReport_ValidateRejectsOverlap(t *testing.T) {
	rep := Report{TotalPages: 2, ColorPages: []int{1}, MonoPages: []int{1}}
	assert.Error(t, rep.Validate())

	rep = Report{TotalPages: 2, ColorPages: []int{3}}
	assert.Error(t, rep.Validate())
}

func TestReport_CloneDoesNotAlias(t *testing.T) {
	rep := Report{TotalPages: 2, ColorPages: []int{1}, MonoPages: []int{2}}
	c := rep.Clone()
	c.ColorPages[0] = 99
	assert.Equal(t, 1, rep.ColorPages[0])
}
