package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/pocrop/internal/filters"
	"github.com/MeKo-Tech/pocrop/internal/geometry"
	"github.com/spf13/cobra"
)

var filterCmd = &cobra.Command{
	Use:   "filter <image> [filter...]",
	Short: "Apply image filters",
	Long: `Apply filters to an image in the order given. Crop and resize run first.

Run with --list to see the available filters.

Examples:
  pocrop filter page.jpg auto_levels grayscale
  pocrop filter page.jpg rotate_cw -o rotated.png
  pocrop filter page.jpg --crop 10,10,400,300 --resize 800x600
  pocrop filter --list`,
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if list, _ := cmd.Flags().GetBool("list"); list {
			for _, f := range filters.All() {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		}
		if len(args) == 0 {
			return errors.New("no input file provided")
		}

		names := args[1:]
		for _, name := range names {
			if _, err := filters.Parse(name); err != nil {
				return err
			}
		}

		cfg := GetConfig()
		displayWidth, _ := cmd.Flags().GetFloat64("display-width")
		sess, err := openSession(cfg, args[0], displayWidth)
		if err != nil {
			return err
		}
		defer sess.Close()
		ctx := commandContext(cmd)

		if cropFlag, _ := cmd.Flags().GetString("crop"); cropFlag != "" {
			box, err := parseBox(cropFlag)
			if err != nil {
				return err
			}
			if err := sess.Crop(ctx, box); err != nil {
				return fmt.Errorf("crop failed: %w", err)
			}
		}
		if resizeFlag, _ := cmd.Flags().GetString("resize"); resizeFlag != "" {
			w, h, err := parseSize(resizeFlag)
			if err != nil {
				return err
			}
			if err := sess.Resize(ctx, w, h); err != nil {
				return fmt.Errorf("resize failed: %w", err)
			}
		}
		for _, name := range names {
			f, _ := filters.Parse(name)
			if err := sess.ApplyFilter(ctx, f); err != nil {
				return fmt.Errorf("filter %s failed: %w", f, err)
			}
		}
		if err := applyFilterFlags(cmd, sess); err != nil {
			return err
		}

		output, opts, err := exportTarget(cmd, cfg, args[0], "_filtered")
		if err != nil {
			return err
		}
		if err := sess.Export(output, opts); err != nil {
			return err
		}
		size := sess.ImageSize()
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Filtered %s -> %s (%dx%d)\n",
			args[0], output, int(size.Width), int(size.Height))
		return savePackageFlag(cmd, sess)
	},
}

// parseBox reads "x1,y1,x2,y2".
func parseBox(s string) (geometry.Box, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return geometry.Box{}, fmt.Errorf("invalid rectangle %q (expected x1,y1,x2,y2)", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geometry.Box{}, fmt.Errorf("invalid rectangle %q: %w", s, err)
		}
		v[i] = f
	}
	return geometry.NewBox(v[0], v[1], v[2], v[3]), nil
}

// parseSize reads "WxH".
func parseSize(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid size %q (expected WxH)", s)
	}
	w, err := strconv.Atoi(strings.TrimSpace(ws))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	h, err := strconv.Atoi(strings.TrimSpace(hs))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid size %q: dimensions must be positive", s)
	}
	return w, h, nil
}

func init() {
	rootCmd.AddCommand(filterCmd)
	addExportFlags(filterCmd)
	filterCmd.Flags().Bool("list", false, "list available filters")
	filterCmd.Flags().String("crop", "", "crop to x1,y1,x2,y2 (display coordinates)")
	filterCmd.Flags().String("resize", "", "resize to WxH pixels")
}
