package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/media-dedup/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>...",
	Short: "Fingerprint media, report duplicates and add it to the corpus",
	Long: `Ingest one or more images, videos or frame directories.

Each path becomes one corpus item. Images yield a single frame, videos are
sampled with ffmpeg (FRAMES_FPS, default 5 per second) and directories are
read as an ordered frame sequence. Every item is compared against the whole
corpus and then appended to it, whether it is a duplicate or not.

Examples:
  # Ingest a video
  media-dedup ingest clip.mp4

  # Ingest several files and print JSON summaries
  media-dedup ingest a.jpg b.jpg --json

  # Decide on blended hash and embedding scores
  media-dedup ingest clip.mp4 --mode blended --threshold 85`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var checkCmd = &cobra.Command{
	Use:   "check <path>...",
	Short: "Report the best corpus match without storing anything",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(checkCmd)

	for _, c := range []*cobra.Command{ingestCmd, checkCmd} {
		c.Flags().Bool("json", false, "Output summaries as JSON")
		c.Flags().String("name", "", "Item name to record (only with a single path; defaults to the file name)")
		addMatchFlags(c)
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	return runItems(cmd, args, "Ingesting", func(a *app, name, path string) (*ingest.Summary, error) {
		return a.pipeline.Ingest(cmd.Context(), name, path)
	})
}

func runCheck(cmd *cobra.Command, args []string) error {
	return runItems(cmd, args, "Checking", func(a *app, name, path string) (*ingest.Summary, error) {
		return a.pipeline.CheckFile(cmd.Context(), name, path)
	})
}

func runItems(cmd *cobra.Command, paths []string, action string,
	run func(a *app, name, path string) (*ingest.Summary, error)) error {
	jsonOutput := mustGetBool(cmd, "json")
	name := mustGetString(cmd, "name")
	if name != "" && len(paths) > 1 {
		return fmt.Errorf("--name can only be used with a single path")
	}

	a, err := openApp(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	var bar *progressbar.ProgressBar
	if !jsonOutput && len(paths) > 1 {
		bar = progressbar.NewOptions(len(paths),
			progressbar.OptionSetDescription(action),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("items"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
			progressbar.OptionSetWriter(os.Stderr),
		)
	}

	var summaries []*ingest.Summary
	var failed int
	for _, path := range paths {
		itemName := name
		if itemName == "" {
			itemName = filepath.Base(path)
		}
		s, err := run(a, itemName, path)
		if bar != nil {
			bar.Add(1)
		}
		if err != nil {
			failed++
			logger.Error("item failed", "path", path, "error", err)
			continue
		}
		summaries = append(summaries, s)
	}
	if bar != nil {
		bar.Finish()
		fmt.Fprintln(os.Stderr)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(summaries); err != nil {
			return fmt.Errorf("encoding summaries: %w", err)
		}
	} else {
		printSummaries(cmd.OutOrStdout(), summaries)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d items failed", failed, len(paths))
	}
	return nil
}

func printSummaries(out io.Writer, summaries []*ingest.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tFRAMES\tDUPLICATE\tBEST MATCH\tEMBEDDING\tPHASH\tDHASH\tHIST\tALIGNED")
	for _, s := range summaries {
		if s.BestMatch == nil {
			fmt.Fprintf(w, "%s\t%d\t%v\t-\t-\t-\t-\t-\t-\n", s.Filename, s.Frames, s.Duplicate)
			continue
		}
		b := s.BestMatch
		fmt.Fprintf(w, "%s\t%d\t%v\t%s\t%.2f%%\t%.2f%%\t%.2f%%\t%.2f%%\t%d\n",
			s.Filename, s.Frames, s.Duplicate, b.MatchedVideo,
			b.AIMatchPercent, b.PHashPercent, b.DHashPercent, b.HistPercent, b.AlignedFrames)
	}
	w.Flush()
}
