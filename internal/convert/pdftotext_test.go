package convert

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRuntime implements container.Runtime.
type fakeRuntime struct {
	images map[string]bool
	output string
	err    error
	args   []string
	input  string
}

func (f *fakeRuntime) Name() string    { return "docker" }
func (f *fakeRuntime) Available() bool { return true }

func (f *fakeRuntime) ImageExists(image string) error {
	if f.images[image] {
		return nil
	}
	return errors.New("no such image")
}

func (f *fakeRuntime) Run(_ context.Context, _ string, args []string, stdin io.Reader, stdout io.Writer) error {
	f.args = args
	data, _ := io.ReadAll(stdin)
	f.input = string(data)
	if f.err != nil {
		return f.err
	}
	_, err := stdout.Write([]byte(f.output))
	return err
}

func TestNewPdftotextConverter(t *testing.T) {
	_, err := NewPdftotextConverter(&fakeRuntime{}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftotext image not available")

	c, err := NewPdftotextConverter(&fakeRuntime{images: map[string]bool{DefaultPDFImage: true}}, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultPDFImage, c.image)
}

func TestPdftotextConverter_Convert(t *testing.T) {
	pdf := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.7"), 0o644))

	rt := &fakeRuntime{images: map[string]bool{"poppler:24": true}, output: "Assessment: I10\n"}
	c, err := NewPdftotextConverter(rt, "poppler:24")
	require.NoError(t, err)

	text, err := c.Convert(context.Background(), pdf)
	require.NoError(t, err)
	assert.Equal(t, "Assessment: I10\n", text)
	assert.Equal(t, "%PDF-1.7", rt.input)
	assert.Contains(t, rt.args, "-layout")

	rt.output = ""
	_, err = c.Convert(context.Background(), pdf)
	assert.ErrorContains(t, err, "empty output")

	rt.err = errors.New("exit status 1")
	_, err = c.Convert(context.Background(), pdf)
	assert.ErrorContains(t, err, "exit status 1")

	_, err = c.Convert(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	assert.ErrorContains(t, err, "opening PDF")
}
