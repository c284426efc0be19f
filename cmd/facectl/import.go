package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"face-attendance-go/internal/core/models"
	"face-attendance-go/internal/gallery"
	"face-attendance-go/internal/recognition"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Register every photo of a directory",
	Long: `Walk a directory of photos named <name>.jpg or <name>_<anything>.jpg and
register one reference face per name. Persons missing from the roster are
created unless --create=false. The first photo of a name that registers
successfully wins; later photos of the same name are skipped.

Examples:
  facectl import ./students
  facectl import ./students --create=false --role teacher`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().Bool("create", true, "Create persons that are not in the roster")
	importCmd.Flags().String("role", "student", "Role of created persons")
}

type importStats struct {
	registered, skipped, failed, created int
	errors                              []string
}

func runImport(cmd *cobra.Command, args []string) error {
	create, _ := cmd.Flags().GetBool("create")
	role, _ := cmd.Flags().GetString("role")

	files, err := photoFiles(args[0])
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no photos found in %s", args[0])
	}

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Registering faces"),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
	)

	var stats importStats
	done := make(map[string]bool)
	for _, path := range files {
		_ = bar.Add(1)

		name := gallery.LabelFromFile(path)
		if !gallery.ValidLabel(name) || done[name] {
			stats.skipped++
			continue
		}

		person, err := a.Repo.GetPersonByName(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to look up %s: %w", name, err)
		}
		if person == nil {
			if !create {
				stats.skipped++
				continue
			}
			person = &models.Person{Name: name, Role: role}
			if err := a.Repo.CreatePerson(ctx, person); err != nil {
				return fmt.Errorf("failed to create %s: %w", name, err)
			}
			stats.created++
		}

		data, err := os.ReadFile(path)
		if err != nil {
			stats.fail(path, err)
			continue
		}
		img, err := recognition.Decode(data)
		if err != nil {
			stats.fail(path, err)
			continue
		}
		if _, err := a.Enroller.EnrollImage(ctx, person, img); err != nil {
			stats.fail(path, err)
			continue
		}
		done[name] = true
		stats.registered++
	}
	_ = bar.Finish()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nRegistered: %d, created persons: %d, skipped: %d, failed: %d\n",
		stats.registered, stats.created, stats.skipped, stats.failed)
	for _, e := range stats.errors {
		fmt.Fprintf(out, "  %s\n", e)
	}
	return nil
}

func (s *importStats) fail(path string, err error) {
	s.failed++
	s.errors = append(s.errors, fmt.Sprintf("%s: %v", filepath.Base(path), err))
}

// photoFiles lists the image files directly inside dir, sorted by name.
func photoFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png", ".bmp", ".webp":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
