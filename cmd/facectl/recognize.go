package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"face-attendance-go/internal/attendance"
	"face-attendance-go/internal/video"

	"github.com/spf13/cobra"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <file>",
	Short: "Recognize faces in an image or video and record attendance",
	Long: `Run the same recognition flow as the HTTP API on a local file. Files with
a video extension (.mp4, .avi, .mov, .mkv, .webm) are sampled frame by frame;
everything else is treated as an image. Zero-valued flags use the configured
defaults.

Examples:
  facectl recognize class.jpg --min-confidence 0.7
  facectl recognize entrance.mp4 --policy exhaustive --max-frames 60`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().Float64("min-confidence", 0, "Minimum confidence to record attendance")
	recognizeCmd.Flags().String("policy", "", "Video policy: first_match or exhaustive")
	recognizeCmd.Flags().Int("frame-interval", 0, "Process every n-th video frame")
	recognizeCmd.Flags().Int("max-frames", 0, "Maximum video frames to process")
	recognizeCmd.Flags().Duration("timeout", 0, "Video processing time budget")
	recognizeCmd.Flags().String("lang", "", "Message language")
}

func isVideo(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".avi", ".mov", ".mkv", ".webm":
		return true
	}
	return false
}

func runRecognize(cmd *cobra.Command, args []string) error {
	minConf, _ := cmd.Flags().GetFloat64("min-confidence")
	policyFlag, _ := cmd.Flags().GetString("policy")
	interval, _ := cmd.Flags().GetInt("frame-interval")
	maxFrames, _ := cmd.Flags().GetInt("max-frames")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	lang, _ := cmd.Flags().GetString("lang")

	var policy video.Policy
	if policyFlag != "" {
		p, err := video.ParsePolicy(policyFlag)
		if err != nil {
			return err
		}
		policy = p
	}

	path := args[0]
	if _, err := os.Stat(path); err != nil {
		return err
	}

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	var result any
	if isVideo(path) {
		result, err = a.Attendance.RecognizeVideo(ctx, path, attendance.VideoOptions{
			MinConfidence: minConf,
			FrameInterval: interval,
			MaxFrames:     maxFrames,
			Timeout:       timeout,
			Policy:        policy,
			Lang:          lang,
		})
	} else {
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return fmt.Errorf("failed to read image: %w", rerr)
		}
		result, err = a.Attendance.RecognizeImage(ctx, data, attendance.ImageOptions{
			MinConfidence: minConf,
			Lang:          lang,
		})
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
