package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/printmanager/internal/pdftest"
)

func TestPageList(t *testing.T) {
	assert.Equal(t, "-", pageList(nil))
	assert.Equal(t, "4", pageList([]int{4}))
	assert.Equal(t, "1-3,7", pageList([]int{1, 2, 3, 7}))
	assert.Equal(t, "2,4-5,9-11", pageList([]int{2, 4, 5, 9, 10, 11}))
}

func TestQuote_RequiresDocuments(t *testing.T) {
	err := newApp().Run([]string{"printcost", "quote"})
	assert.EqualError(t, err, "no documents given")
}

func TestQuote_NoAnalyze(t *testing.T) {
	doc, err := pdftest.Write(t.TempDir(), "a3.pdf", pdftest.Options{Pages: pdftest.Uniform(3, pdftest.A3)})
	require.NoError(t, err)
	require.NoError(t, newApp().Run([]string{"printcost", "quote", "--no-analyze", "--json", doc}))
}

func TestQuote_MissingFile(t *testing.T) {
	err := newApp().Run([]string{"printcost", "quote", "--no-analyze", "/nonexistent/doc.pdf"})
	assert.Error(t, err)
}
