package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register <person-id> <photo>",
	Short: "Register the largest face of a photo as reference for a person",
	Long: `Detect faces in the photo, take the largest one and store it in the
gallery as <name>_<id>.jpg. The detection confidence must reach
gallery.register_min_confidence.

Examples:
  facectl register 7 ~/photos/alice.jpg`,
	Args: cobra.ExactArgs(2),
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)
}

func runRegister(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid person id %q", args[0])
	}
	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read photo: %w", err)
	}

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	reg, err := a.Enroller.Enroll(context.Background(), uint(id), data)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(reg)
}
