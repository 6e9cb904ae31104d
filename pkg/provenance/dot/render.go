package dot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/dukex/provtrack/pkg/provenance"
)

// Format is an output format of a drawing.
type Format string

const (
	FormatPNG Format = "png"
	FormatSVG Format = "svg"
	FormatDOT Format = "dot"
)

var contentTypes = map[Format]string{
	FormatPNG: "image/png",
	FormatSVG: "image/svg+xml",
	FormatDOT: "text/vnd.graphviz",
}

var (
	// ErrUnsupportedFormat is returned for formats other than png, svg and dot.
	ErrUnsupportedFormat = errors.New("unsupported drawing format")

	// ErrRenderFailed indicates the Graphviz binary is missing or failed.
	ErrRenderFailed = errors.New("graph rendering failed")
)

// ParseFormat validates a format name. An empty name selects png.
func ParseFormat(value string) (Format, error) {
	format := Format(strings.ToLower(strings.TrimSpace(value)))
	if format == "" {
		return FormatPNG, nil
	}

	if _, ok := contentTypes[format]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, value)
	}

	return format, nil
}

// Artifact is a rendered drawing in a temporary file. Close deletes it.
type Artifact struct {
	Path        string
	Format      Format
	ContentType string
}

// Close removes the temporary file.
func (a *Artifact) Close() error {
	err := os.Remove(a.Path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

// Renderer runs the Graphviz dot binary.
type Renderer struct {
	Binary string
}

// NewRenderer creates a renderer. An empty binary means "dot" from PATH.
func NewRenderer(binary string) *Renderer {
	if binary == "" {
		binary = "dot"
	}

	return &Renderer{Binary: binary}
}

// Render draws doc into a temporary file of the requested format.
func (r *Renderer) Render(ctx context.Context, doc *provenance.Document, format Format) (*Artifact, error) {
	contentType, ok := contentTypes[format]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	out, err := os.CreateTemp("", "provenance-*."+string(format))
	if err != nil {
		return nil, fmt.Errorf("failed to create drawing file: %w", err)
	}

	artifact := &Artifact{Path: out.Name(), Format: format, ContentType: contentType}
	source := Encode(doc)

	if format == FormatDOT {
		_, err = out.WriteString(source)
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}
	} else {
		_ = out.Close()
		err = r.run(ctx, source, format, artifact.Path)
	}

	if err != nil {
		_ = artifact.Close()

		return nil, err
	}

	return artifact, nil
}

func (r *Renderer) run(ctx context.Context, source string, format Format, target string) error {
	// #nosec G204 -- binary is operator configuration and the format is validated
	cmd := exec.CommandContext(ctx, r.Binary, "-T"+string(format), "-o", target)
	cmd.Stdin = strings.NewReader(source)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		return fmt.Errorf("%w: %s: %w: %s", ErrRenderFailed, r.Binary, err, strings.TrimSpace(stderr.String()))
	}

	return nil
}
