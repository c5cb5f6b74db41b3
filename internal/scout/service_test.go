package scout

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcingdev/alibaba-visual-scout/internal/config"
	"github.com/sourcingdev/alibaba-visual-scout/internal/parse"
)

func newServiceUnderTest(t *testing.T) *Service {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	parser := parse.NewParser(parse.DefaultTables(), cfg.Scout.ParseAttempts, slog.Default())
	// nil session manager: these tests only exercise paths that must
	// return before any browser work starts
	return NewService(nil, cfg.Scout, DefaultTables(), parser, "", slog.Default())
}

func TestSearchByImage_MissingFileFailsBeforeBrowserUse(t *testing.T) {
	s := newServiceUnderTest(t)

	_, err := s.SearchByImage(context.Background(), "/nonexistent/shoe.jpg")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrImageNotFound)
	assert.Contains(t, err.Error(), "/nonexistent/shoe.jpg")
}

type capturingInput struct {
	files []playwright.InputFile
}

func (c *capturingInput) SetInputFiles(files interface{}, _ ...playwright.ElementHandleSetInputFilesOptions) error {
	typed, ok := files.([]playwright.InputFile)
	if !ok {
		return fmt.Errorf("unexpected files type %T", files)
	}
	c.files = typed
	return nil
}

// fileReceiver must stay satisfiable by the real element handle type.
var _ fileReceiver = (playwright.ElementHandle)(nil)

func TestSubmitFile_MimeFromExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.png")
	require.NoError(t, os.WriteFile(path, []byte{0x89, 0x50, 0x4e, 0x47}, 0o644))

	input := &capturingInput{}
	require.NoError(t, submitFile(input, path))

	require.Len(t, input.files, 1)
	assert.Equal(t, "sample.png", input.files[0].Name)
	assert.Equal(t, "image/png", input.files[0].MimeType)
	assert.Equal(t, []byte{0x89, 0x50, 0x4e, 0x47}, input.files[0].Buffer)
}

func TestSubmitFile_UnknownExtensionDefaultsToJPEG(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upload.bin")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	input := &capturingInput{}
	require.NoError(t, submitFile(input, path))

	require.Len(t, input.files, 1)
	assert.Equal(t, "image/jpeg", input.files[0].MimeType)
}
