package cmd

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/pocrop/internal/corners"
	"github.com/MeKo-Tech/pocrop/internal/geometry"
	"github.com/spf13/cobra"
)

// DetectOutput is the JSON form of a detection.
type DetectOutput struct {
	File       string             `json:"file"`
	Width      int                `json:"width"`
	Height     int                `json:"height"`
	Clusters   [][]geometry.Point `json:"clusters"`
	Centroids  []geometry.Point   `json:"centroids"`
	Rectangles []geometry.Quad    `json:"rectangles"`
	Seed       *geometry.Quad     `json:"seed,omitempty"`
	Quad       *geometry.Quad     `json:"quad,omitempty"`
}

var detectCmd = &cobra.Command{
	Use:   "detect <image>",
	Short: "Detect document corners in an image",
	Long: `Run corner and rectangle detection on an image and print the candidate
corners together with the quad that correction would start from: the
outermost cluster centroids, or else the largest rectangle.

Coordinates are in display space: image pixels unless --display-width is set.

Examples:
  pocrop detect photo.jpg
  pocrop detect photo.jpg --format json
  pocrop detect scan.pdf --max-corners 200`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		format, _ := cmd.Flags().GetString("format")
		if err := validateOutputFormat(format); err != nil {
			return err
		}
		displayWidth, _ := cmd.Flags().GetFloat64("display-width")
		if cmd.Flags().Changed("max-corners") {
			cfg.Corners.MaxCorners, _ = cmd.Flags().GetInt("max-corners")
		}
		if cmd.Flags().Changed("threshold") {
			cfg.Corners.Threshold, _ = cmd.Flags().GetFloat64("threshold")
		}

		sess, err := openSession(cfg, args[0], displayWidth)
		if err != nil {
			return err
		}
		defer sess.Close()

		det, err := sess.DetectCorners(commandContext(cmd))
		if err != nil && !errors.Is(err, corners.ErrInsufficientCorners) && !errors.Is(err, corners.ErrTooManyCorners) {
			return fmt.Errorf("corner detection failed: %w", err)
		}

		size := sess.ImageSize()
		out := DetectOutput{
			File:       args[0],
			Width:      int(size.Width),
			Height:     int(size.Height),
			Clusters:   make([][]geometry.Point, 0, len(det.Clusters)),
			Centroids:  det.Centroids,
			Rectangles: det.Rectangles,
		}
		for _, c := range det.Clusters {
			out.Clusters = append(out.Clusters, c)
		}
		if out.Centroids == nil {
			out.Centroids = []geometry.Point{}
		}
		if out.Rectangles == nil {
			out.Rectangles = []geometry.Quad{}
		}
		if det.HasSeed {
			out.Seed = &det.Seed
			out.Quad = &det.Seed
		} else if q, ok := corners.MainRectangle(det.Rectangles); ok {
			out.Quad = &q
		}

		if format == outputFormatJSON {
			return writeJSON(cmd.OutOrStdout(), out)
		}

		w := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(w, "File: %s (%dx%d)\n", out.File, out.Width, out.Height)
		_, _ = fmt.Fprintf(w, "Corner clusters: %d\n", len(out.Clusters))
		for i, c := range out.Centroids {
			_, _ = fmt.Fprintf(w, "  %d: %.1f,%.1f (%d points)\n", i+1, c.X, c.Y, len(out.Clusters[i]))
		}
		_, _ = fmt.Fprintf(w, "Rectangles: %d\n", len(out.Rectangles))
		for i, r := range out.Rectangles {
			_, _ = fmt.Fprintf(w, "  %d: %s\n", i+1, formatQuad(r))
		}
		if out.Quad != nil {
			_, _ = fmt.Fprintf(w, "Corners: %s\n", formatQuad(*out.Quad))
		} else {
			_, _ = fmt.Fprintln(w, "Corners: none found")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(detectCmd)
	detectCmd.Flags().StringP("format", "f", outputFormatText, "output format (text, json)")
	detectCmd.Flags().Float64("display-width", 0, "report coordinates for a display this wide")
	detectCmd.Flags().Int("max-corners", 0, "override corners.max_corners")
	detectCmd.Flags().Float64("threshold", 0, "override corners.threshold (0-255 on the normalised response)")
}
