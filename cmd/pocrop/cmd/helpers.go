package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/pocrop/internal/config"
	"github.com/MeKo-Tech/pocrop/internal/editor"
	"github.com/MeKo-Tech/pocrop/internal/geometry"
	"github.com/spf13/cobra"
)

const (
	outputFormatJSON = "json"
	outputFormatText = "text"
)

func validateOutputFormat(format string) error {
	if format != outputFormatText && format != outputFormatJSON {
		return fmt.Errorf("invalid output format: %s (must be one of: %s, %s)", format, outputFormatText, outputFormatJSON)
	}
	return nil
}

// parsePoint reads "x,y".
func parsePoint(s string) (geometry.Point, error) {
	xs, ys, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return geometry.Point{}, fmt.Errorf("invalid point %q (expected x,y)", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	if err != nil {
		return geometry.Point{}, fmt.Errorf("invalid point %q: %w", s, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if err != nil {
		return geometry.Point{}, fmt.Errorf("invalid point %q: %w", s, err)
	}
	return geometry.Pt(x, y), nil
}

func parsePoints(args []string) ([]geometry.Point, error) {
	pts := make([]geometry.Point, 0, len(args))
	for _, a := range args {
		p, err := parsePoint(a)
		if err != nil {
			return nil, err
		}
		pts = append(pts, p)
	}
	return pts, nil
}

// parseQuad reads four points separated by semicolons or spaces.
func parseQuad(s string) (geometry.Quad, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == ' ' })
	pts, err := parsePoints(fields)
	if err != nil {
		return geometry.Quad{}, err
	}
	q, ok := geometry.QuadFromSlice(pts)
	if !ok {
		return geometry.Quad{}, errors.New("corners need exactly four points")
	}
	return q, nil
}

func formatQuad(q geometry.Quad) string {
	parts := make([]string, 4)
	for i, p := range q {
		parts[i] = fmt.Sprintf("%.1f,%.1f", p.X, p.Y)
	}
	return strings.Join(parts, ";")
}

func openSession(cfg *config.Config, path string, displayWidth float64) (*editor.Session, error) {
	var opts []editor.Option
	if displayWidth > 0 {
		opts = append(opts, editor.WithDisplayWidth(displayWidth))
	}
	sess, err := editor.Open(path, cfg.ToEditorConfig(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return sess, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// commandContext returns the command's context, which is nil when RunE is
// called directly.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
