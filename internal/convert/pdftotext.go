// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/pdiddy/medcode/internal/container"
)

// DefaultPDFImage is a local image whose entrypoint is poppler's pdftotext.
const DefaultPDFImage = "pdftotext:latest"

// PdftotextConverter pipes PDFs through pdftotext in a container.
type PdftotextConverter struct {
	runtime container.Runtime
	image   string
}

// NewPdftotextConverter checks that image exists in rt.
func NewPdftotextConverter(rt container.Runtime, image string) (*PdftotextConverter, error) {
	if image == "" {
		image = DefaultPDFImage
	}
	if err := rt.ImageExists(image); err != nil {
		return nil, fmt.Errorf("pdftotext image not available in %s: %w", rt.Name(), err)
	}
	return &PdftotextConverter{runtime: rt, image: image}, nil
}

// Convert returns the text layer of the PDF at path, keeping the physical
// layout so section headers stay at line starts. Pages are separated by
// form feeds.
func (p *PdftotextConverter) Convert(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening PDF %s: %w", path, err)
	}
	defer f.Close()

	var out bytes.Buffer
	if err := p.runtime.Run(ctx, p.image, []string{"-layout", "-enc", "UTF-8", "-", "-"}, f, &out); err != nil {
		return "", fmt.Errorf("converting %s with pdftotext: %w", path, err)
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("pdftotext produced empty output for %s", path)
	}
	return out.String(), nil
}
