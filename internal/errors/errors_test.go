package errors

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndexingErrorRecoverable(t *testing.T) {
	base := fmt.Errorf("boom")
	err := NewIndexingError("scan workspace", base).
		WithWorkspace("proj").
		WithRecoverable(true)

	assert.True(t, err.IsRecoverable())
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "proj")

	// recoverability survives wrapping
	var idxErr *IndexingError
	assert.ErrorAs(t, fmt.Errorf("build: %w", err), &idxErr)
	assert.True(t, idxErr.IsRecoverable())
}

func TestFileErrorClassification(t *testing.T) {
	notFound := NewFileError("read", "/tmp/gone.txt", os.ErrNotExist)
	assert.Equal(t, ErrorTypeFileNotFound, notFound.Type)
	assert.ErrorIs(t, notFound, os.ErrNotExist)
	assert.Contains(t, notFound.Error(), "/tmp/gone.txt")

	denied := NewFileError("walk", "/tmp/locked", os.ErrPermission)
	assert.Equal(t, ErrorTypePermission, denied.Type)
	assert.ErrorIs(t, denied, os.ErrPermission)
}

func TestSearchErrorUnwrap(t *testing.T) {
	base := fmt.Errorf("exit status 2")
	err := NewSearchError("needle", base)

	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "needle")
}
