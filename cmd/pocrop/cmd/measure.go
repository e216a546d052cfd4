package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/pocrop/internal/imageio"
	"github.com/MeKo-Tech/pocrop/internal/measurement"
	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
)

var measureCmd = &cobra.Command{
	Use:   "measure",
	Short: "Create, calibrate and render measurements",
	Long: `Work with measurement records: JSON or YAML files holding rulers, angles,
guide lines and strokes together with the calibrated scale.

Points are given as x,y in image pixels.

Examples:
  pocrop measure distance 10,10 110,10 --record page.json
  pocrop measure calibrate "21 cm" --record page.json --index 0
  pocrop measure angle 10,0 0,0 0,10 --record page.json
  pocrop measure show --record page.json
  pocrop measure render page.jpg --record page.json -o overlay.png`,
}

var measureDistanceCmd = &cobra.Command{
	Use:          "distance <x1,y1> <x2,y2>",
	Short:        "Measure the distance between two points",
	Args:         cobra.ExactArgs(2),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		pts, err := parsePoints(args)
		if err != nil {
			return err
		}
		record, _ := cmd.Flags().GetString("record")
		c, err := loadRecord(record)
		if err != nil {
			return err
		}
		i := c.AddDistance(pts[0], pts[1])
		if cal, _ := cmd.Flags().GetString("calibration"); cal != "" {
			if !c.CalibrateDistance(i, cal) {
				return fmt.Errorf("invalid calibration %q (expected \"<length> [units]\")", cal)
			}
		}
		if err := saveRecord(c, record); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), c.Distances[i].Label())
		return nil
	},
}

var measureAngleCmd = &cobra.Command{
	Use:          "angle <x1,y1> <vertex x,y> <x3,y3>",
	Short:        "Measure the angle at a vertex",
	Args:         cobra.ExactArgs(3),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		pts, err := parsePoints(args)
		if err != nil {
			return err
		}
		record, _ := cmd.Flags().GetString("record")
		c, err := loadRecord(record)
		if err != nil {
			return err
		}
		i := c.AddAngle(pts[0], pts[1], pts[2])
		if err := saveRecord(c, record); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), c.Angles[i].Label())
		return nil
	},
}

var measureCalibrateCmd = &cobra.Command{
	Use:   "calibrate <length [units]>",
	Short: "Set the scale from a known length",
	Long: `Set the record's scale so that a ruler (--index) or a pixel length
(--pixel-length) equals the given real-world length. The units are
optional and default to the current units.`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		record, _ := cmd.Flags().GetString("record")
		if record == "" {
			return errors.New("--record is required")
		}
		c, err := loadRecord(record)
		if err != nil {
			return err
		}
		input := strings.Join(args, " ")

		var ok bool
		switch {
		case cmd.Flags().Changed("index"):
			i, _ := cmd.Flags().GetInt("index")
			if i < 0 || i >= len(c.Distances) {
				return fmt.Errorf("distance index %d out of range (record has %d)", i, len(c.Distances))
			}
			ok = c.CalibrateDistance(i, input)
		case cmd.Flags().Changed("pixel-length"):
			px, _ := cmd.Flags().GetFloat64("pixel-length")
			ok = c.Calibrate(px, input)
		default:
			return errors.New("one of --index or --pixel-length is required")
		}
		if !ok {
			return fmt.Errorf("calibration not applied: %q", input)
		}
		if err := saveRecord(c, record); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Scale: %s\n", c.GlobalScale())
		return nil
	},
}

var measureShowCmd = &cobra.Command{
	Use:          "show",
	Short:        "Print the measurements of a record",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		record, _ := cmd.Flags().GetString("record")
		if record == "" {
			return errors.New("--record is required")
		}
		c, err := measurement.LoadFile(record)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		w := cmd.OutOrStdout()
		switch format {
		case outputFormatText:
			_, _ = fmt.Fprintf(w, "Scale: %s\n", c.GlobalScale())
			for _, l := range c.Labels() {
				_, _ = fmt.Fprintln(w, l)
			}
			_, _ = fmt.Fprintf(w, "Guide lines: %d horizontal, %d vertical\n",
				len(c.HorizontalLines), len(c.VerticalLines))
			return nil
		case string(measurement.FormatJSON), string(measurement.FormatYAML):
		case "":
			format = string(GetConfig().RecordFormat())
		default:
			return fmt.Errorf("invalid output format: %s (must be one of: text, json, yaml)", format)
		}
		data, err := c.ToRecord().Marshal(measurement.Format(format))
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		if err == nil && !strings.HasSuffix(string(data), "\n") {
			_, err = fmt.Fprintln(w)
		}
		return err
	},
}

var measureRenderCmd = &cobra.Command{
	Use:          "render <image>",
	Short:        "Draw the measurements of a record onto an image",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		record, _ := cmd.Flags().GetString("record")
		if record == "" {
			return errors.New("--record is required")
		}
		c, err := measurement.LoadFile(record)
		if err != nil {
			return err
		}
		img, _, err := imageio.Load(args[0])
		if err != nil {
			return err
		}

		cfg := GetConfig()
		opts := cfg.Measurement.Render
		if cmd.Flags().Changed("no-labels") {
			noLabels, _ := cmd.Flags().GetBool("no-labels")
			opts.Labels = !noLabels
		}
		canvas := imaging.Clone(img)
		measurement.Render(canvas, c, opts)

		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			base := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			output = filepath.Join(filepath.Dir(args[0]), base+"_measured.png")
		}
		if err := imageio.Export(canvas, output, imageio.SaveOptions{Quality: cfg.Output.Quality}); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Rendered %d measurements -> %s\n", c.Len(), output)
		return nil
	},
}

// loadRecord reads path, or starts an empty collection when path is empty
// or does not exist yet.
func loadRecord(path string) (*measurement.Collection, error) {
	if path == "" {
		return measurement.NewCollection(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return measurement.NewCollection(), nil
	}
	return measurement.LoadFile(path)
}

func saveRecord(c *measurement.Collection, path string) error {
	if path == "" {
		return nil
	}
	return c.SaveFile(path)
}

func init() {
	rootCmd.AddCommand(measureCmd)
	measureCmd.AddCommand(measureDistanceCmd, measureAngleCmd, measureCalibrateCmd, measureShowCmd, measureRenderCmd)

	measureCmd.PersistentFlags().String("record", "", "measurement record file (.json, .yaml)")
	measureDistanceCmd.Flags().String("calibration", "", "calibrate the new ruler to this length, e.g. \"10 cm\"")
	measureCalibrateCmd.Flags().Int("index", 0, "ruler to calibrate against")
	measureCalibrateCmd.Flags().Float64("pixel-length", 0, "pixel length to calibrate against")
	measureShowCmd.Flags().StringP("format", "f", outputFormatText, "output format (text, json, yaml; empty uses measurement.record_format)")
	measureRenderCmd.Flags().StringP("output", "o", "", "output image (default: <image>_measured.png)")
	measureRenderCmd.Flags().Bool("no-labels", false, "draw shapes without text labels")
}
