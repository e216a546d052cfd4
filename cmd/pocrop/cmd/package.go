package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/pocrop/internal/measurement"
	"github.com/MeKo-Tech/pocrop/internal/project"
	"github.com/spf13/cobra"
)

var packageCmd = &cobra.Command{
	Use:   "package",
	Short: "Create and inspect .mcm measurement packages",
	Long: `An .mcm package is a zip archive with the image (image.jpg), the
measurement record (measurements.json) and metadata (metadata.json).

Examples:
  pocrop package create page.jpg --record page.json -o page.mcm
  pocrop package info page.mcm
  pocrop package extract page.mcm --dir out/`,
}

var packageCreateCmd = &cobra.Command{
	Use:          "create <image>",
	Short:        "Bundle an image and its measurements",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + project.Extension
		}

		sess, err := openSession(GetConfig(), args[0], 0)
		if err != nil {
			return err
		}
		defer sess.Close()
		return writePackage(cmd, sess, output)
	},
}

// PackageInfo is the JSON form of package info.
type PackageInfo struct {
	File             string    `json:"file"`
	ProjectID        string    `json:"project_id"`
	FormatVersion    int       `json:"format_version"`
	CreationDate     time.Time `json:"creation_date"`
	OriginalFilename string    `json:"original_filename,omitempty"`
	Notes            string    `json:"notes,omitempty"`
	HasImage         bool      `json:"has_image"`
	Scale            string    `json:"scale"`
	Labels           []string  `json:"labels"`
}

var packageInfoCmd = &cobra.Command{
	Use:          "info <package>",
	Short:        "Show package metadata and measurements",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if err := validateOutputFormat(format); err != nil {
			return err
		}
		pkg, err := project.Load(args[0], GetConfig().TempDir)
		if err != nil {
			return err
		}
		if pkg.ImagePath != "" {
			_ = os.Remove(pkg.ImagePath)
		}

		info := PackageInfo{
			File:             args[0],
			ProjectID:        pkg.Metadata.ProjectID,
			FormatVersion:    pkg.Metadata.FormatVersion,
			CreationDate:     pkg.Metadata.CreationDate,
			OriginalFilename: pkg.Metadata.OriginalFilename,
			Notes:            pkg.Metadata.Notes,
			HasImage:         pkg.ImagePath != "",
			Scale:            pkg.Measurements.GlobalScale().String(),
			Labels:           pkg.Measurements.Labels(),
		}
		if info.Labels == nil {
			info.Labels = []string{}
		}
		if format == outputFormatJSON {
			return writeJSON(cmd.OutOrStdout(), info)
		}

		w := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(w, "Package: %s\n", info.File)
		_, _ = fmt.Fprintf(w, "Project ID: %s\n", info.ProjectID)
		_, _ = fmt.Fprintf(w, "Format version: %d\n", info.FormatVersion)
		if !info.CreationDate.IsZero() {
			_, _ = fmt.Fprintf(w, "Created: %s\n", info.CreationDate.Format(time.RFC3339))
		}
		if info.OriginalFilename != "" {
			_, _ = fmt.Fprintf(w, "Original file: %s\n", info.OriginalFilename)
		}
		if info.Notes != "" {
			_, _ = fmt.Fprintf(w, "Notes: %s\n", info.Notes)
		}
		_, _ = fmt.Fprintf(w, "Image: %t\n", info.HasImage)
		_, _ = fmt.Fprintf(w, "Scale: %s\n", info.Scale)
		_, _ = fmt.Fprintf(w, "Measurements: %d\n", len(info.Labels))
		for _, l := range info.Labels {
			_, _ = fmt.Fprintf(w, "  %s\n", l)
		}
		return nil
	},
}

var packageExtractCmd = &cobra.Command{
	Use:          "extract <package>",
	Short:        "Unpack image, measurements and metadata into a directory",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = strings.TrimSuffix(args[0], filepath.Ext(args[0]))
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}

		pkg, err := project.Load(args[0], dir)
		if err != nil {
			return err
		}
		var written []string
		if pkg.ImagePath != "" {
			target := filepath.Join(dir, project.ImageFile)
			if err := os.Rename(pkg.ImagePath, target); err != nil {
				_ = os.Remove(pkg.ImagePath)
				return fmt.Errorf("failed to write %s: %w", target, err)
			}
			written = append(written, target)
		}

		ext := ".json"
		if GetConfig().RecordFormat() == measurement.FormatYAML {
			ext = ".yaml"
		}
		recordPath := filepath.Join(dir, strings.TrimSuffix(project.MeasurementsFile, ".json")+ext)
		if err := pkg.Measurements.SaveFile(recordPath); err != nil {
			return err
		}
		written = append(written, recordPath)

		metaJSON, err := json.MarshalIndent(pkg.Metadata, "", "  ")
		if err != nil {
			return err
		}
		metaPath := filepath.Join(dir, project.MetadataFile)
		if err := os.WriteFile(metaPath, metaJSON, 0o600); err != nil {
			return fmt.Errorf("failed to write %s: %w", metaPath, err)
		}
		written = append(written, metaPath)

		for _, p := range written {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(packageCmd)
	packageCmd.AddCommand(packageCreateCmd, packageInfoCmd, packageExtractCmd)

	packageCreateCmd.Flags().StringP("output", "o", "", "package file (default: <image>.mcm)")
	packageCreateCmd.Flags().String("record", "", "measurement record (JSON or YAML) to include")
	packageCreateCmd.Flags().String("notes", "", "package notes")

	packageInfoCmd.Flags().StringP("format", "f", outputFormatText, "output format (text, json)")
	packageExtractCmd.Flags().String("dir", "", "target directory (default: package name without extension)")
}
