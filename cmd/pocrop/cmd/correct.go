package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/pocrop/internal/config"
	"github.com/MeKo-Tech/pocrop/internal/editor"
	"github.com/MeKo-Tech/pocrop/internal/filters"
	"github.com/MeKo-Tech/pocrop/internal/imageio"
	"github.com/spf13/cobra"
)

var correctCmd = &cobra.Command{
	Use:   "correct <image>",
	Short: "Straighten a photographed document",
	Long: `Warp the quadrilateral given by four corners to an upright rectangle with
the chosen aspect ratio. Without --corners the corners are detected.

Aspect ratios: square, letter-portrait, letter-landscape, a4-portrait,
a4-landscape, us-dollar-bill-portrait, us-dollar-bill-landscape, custom.

Examples:
  pocrop correct photo.jpg
  pocrop correct photo.jpg --ratio a4-landscape -o page.png
  pocrop correct photo.jpg --corners "12,30;410,22;420,580;8,590" --ratio square
  pocrop correct bill.jpg --ratio custom --custom-width 156 --custom-height 66
  pocrop correct photo.jpg --filter auto_levels --filter grayscale --package page.mcm`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		applyPerspectiveFlags(cmd, cfg)
		spec, err := cfg.PerspectiveSpec()
		if err != nil {
			return err
		}

		displayWidth, _ := cmd.Flags().GetFloat64("display-width")
		sess, err := openSession(cfg, args[0], displayWidth)
		if err != nil {
			return err
		}
		defer sess.Close()
		ctx := commandContext(cmd)

		if cornersFlag, _ := cmd.Flags().GetString("corners"); cornersFlag != "" {
			q, err := parseQuad(cornersFlag)
			if err != nil {
				return err
			}
			sess.SetQuad(q)
		} else {
			q, err := sess.SeedCorners(ctx)
			if err != nil {
				return fmt.Errorf("corner detection failed: %w", err)
			}
			slog.Info("Using detected corners", "corners", formatQuad(q))
		}

		if err := sess.Correct(ctx, spec); err != nil {
			return fmt.Errorf("perspective correction failed: %w", err)
		}
		if err := applyFilterFlags(cmd, sess); err != nil {
			return err
		}

		output, opts, err := exportTarget(cmd, cfg, args[0], "_corrected")
		if err != nil {
			return err
		}
		if err := sess.Export(output, opts); err != nil {
			return err
		}
		size := sess.ImageSize()
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Corrected %s -> %s (%dx%d, %s)\n",
			args[0], output, int(size.Width), int(size.Height), spec.Ratio)

		return savePackageFlag(cmd, sess)
	},
}

func applyPerspectiveFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("ratio") {
		cfg.Perspective.AspectRatio, _ = cmd.Flags().GetString("ratio")
	}
	if cmd.Flags().Changed("custom-width") {
		cfg.Perspective.CustomWidth, _ = cmd.Flags().GetFloat64("custom-width")
	}
	if cmd.Flags().Changed("custom-height") {
		cfg.Perspective.CustomHeight, _ = cmd.Flags().GetFloat64("custom-height")
	}
	if cmd.Flags().Changed("best-fit") {
		cfg.Warp.BestFit, _ = cmd.Flags().GetBool("best-fit")
	}
}

func applyFilterFlags(cmd *cobra.Command, sess *editor.Session) error {
	names, _ := cmd.Flags().GetStringSlice("filter")
	for _, name := range names {
		f, err := filters.Parse(name)
		if err != nil {
			return err
		}
		if err := sess.ApplyFilter(commandContext(cmd), f); err != nil {
			return fmt.Errorf("filter %s failed: %w", f, err)
		}
	}
	return nil
}

// exportTarget resolves the output path and save options. Without an
// explicit --format the format follows the output extension.
func exportTarget(cmd *cobra.Command, cfg *config.Config, input, suffix string) (string, imageio.SaveOptions, error) {
	if cmd.Flags().Changed("format") {
		cfg.Output.Format, _ = cmd.Flags().GetString("format")
	}
	if cmd.Flags().Changed("quality") {
		cfg.Output.Quality, _ = cmd.Flags().GetInt("quality")
	}
	if cmd.Flags().Changed("width") {
		cfg.Output.Width, _ = cmd.Flags().GetInt("width")
	}
	if cmd.Flags().Changed("height") {
		cfg.Output.Height, _ = cmd.Flags().GetInt("height")
	}
	if cmd.Flags().Changed("keep-aspect") {
		cfg.Output.MaintainAspectRatio, _ = cmd.Flags().GetBool("keep-aspect")
	}
	f, err := imageio.ParseFormat(cfg.Output.Format)
	if err != nil {
		return "", imageio.SaveOptions{}, err
	}
	opts := cfg.ToSaveOptions()

	output, _ := cmd.Flags().GetString("output")
	switch {
	case output == "":
		base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
		output = filepath.Join(filepath.Dir(input), base+suffix+"."+string(f))
	case !cmd.Flags().Changed("format"):
		if pf, err := imageio.FormatForPath(output); err == nil {
			opts.Format = pf
		}
	}
	return output, opts, nil
}

func savePackageFlag(cmd *cobra.Command, sess *editor.Session) error {
	pkg, _ := cmd.Flags().GetString("package")
	if pkg == "" {
		return nil
	}
	return writePackage(cmd, sess, pkg)
}

// writePackage saves sess to pkg with the measurements of --record.
func writePackage(cmd *cobra.Command, sess *editor.Session, pkg string) error {
	if record, _ := cmd.Flags().GetString("record"); record != "" {
		if err := sess.Measurements().LoadInto(record); err != nil {
			return err
		}
	}
	notes, _ := cmd.Flags().GetString("notes")
	if err := sess.SavePackage(pkg, notes); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Saved package %s (%d measurements)\n", pkg, sess.Measurements().Len())
	return nil
}

func addExportFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "", "output file (default: derived from the input name)")
	cmd.Flags().String("format", string(imageio.JPEG), "output format (jpg, png, bmp, tiff, gif, pdf)")
	cmd.Flags().Int("quality", imageio.DefaultJPEGQuality, "JPEG quality (1-100)")
	cmd.Flags().Int("width", 0, "resize the output to this width")
	cmd.Flags().Int("height", 0, "resize the output to this height")
	cmd.Flags().Bool("keep-aspect", true, "keep the aspect ratio when resizing the output")
	cmd.Flags().StringSlice("filter", nil, "filters to apply before export, in order")
	cmd.Flags().String("package", "", "also save an .mcm package")
	cmd.Flags().String("record", "", "measurement record (JSON or YAML) to store in the package")
	cmd.Flags().String("notes", "", "package notes")
	cmd.Flags().Float64("display-width", 0, "interpret coordinates for a display this wide")
}

func init() {
	rootCmd.AddCommand(correctCmd)
	addExportFlags(correctCmd)
	correctCmd.Flags().String("corners", "", "corners as \"x,y;x,y;x,y;x,y\" (default: detect)")
	correctCmd.Flags().String("ratio", "", "target aspect ratio (default from perspective.aspect_ratio)")
	correctCmd.Flags().Float64("custom-width", 0, "width for --ratio custom")
	correctCmd.Flags().Float64("custom-height", 0, "height for --ratio custom")
	correctCmd.Flags().Bool("best-fit", true, "keep the whole warped image; false crops to the corrected rectangle")
}
