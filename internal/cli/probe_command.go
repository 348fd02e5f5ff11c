package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"playsync.dev/internal/playback"
)

func newProbeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe <uri>",
		Short: "Inspect a media URI without playing it",
		Long:  "Opens the URI, resolves stream metadata and track names, prints them, and disposes the session.",
		Args:  cobra.ExactArgs(1),
		RunE:  runProbeE,
	}

	cmd.Flags().Bool("json", false, "Emit machine-readable JSON")

	return cmd
}

// probeResult is the JSON shape of a probe.
type probeResult struct {
	URI      string       `json:"uri"`
	Duration string       `json:"duration"`
	Live     bool         `json:"live"`
	Width    int          `json:"width"`
	Height   int          `json:"height"`
	Rotation int          `json:"rotation"`
	Tracks   []probeTrack `json:"tracks"`
}

type probeTrack struct {
	ID          int    `json:"id"`
	Type        string `json:"type"`
	DisplayName string `json:"display_name"`
	Selected    bool   `json:"selected"`
}

func runProbeE(cmd *cobra.Command, args []string) error {
	cli := cliFromContext(cmd.Context())
	if cli == nil {
		return fmt.Errorf("CLI instance not found in context")
	}
	uri := args[0]

	cfg, err := loadAndValidateConfig(cmd, cli)
	if err != nil {
		return err
	}
	cfg.AutoPlay = false

	setupLogging(cfg, cmd.ErrOrStderr())

	controller := playback.New(cli.factory, cli.surfaces)
	defer controller.Dispose()

	if err := controller.Initialize(cmd.Context(), uri, cfg); err != nil {
		cmd.PrintErrf("Error: %v\n", err)
		return err
	}

	snap := controller.Snapshot()

	result := probeResult{
		URI:      uri,
		Duration: snap.Duration.String(),
		Live:     snap.IsLive,
		Width:    snap.FrameSize.Width,
		Height:   snap.FrameSize.Height,
		Rotation: snap.RotationCorrection,
	}
	for _, desc := range snap.Tracks {
		result.Tracks = append(result.Tracks, probeTrack{
			ID:          desc.ID,
			Type:        desc.Type.String(),
			DisplayName: desc.DisplayName,
			Selected:    desc.Selected,
		})
	}

	jsonOut, _ := cmd.Flags().GetBool("json")
	if jsonOut || !cli.isInteractiveTerminal(int(os.Stdout.Fd())) {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal probe result: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("%s\n", uri)
	cmd.Printf("  duration: %s\n", result.Duration)
	cmd.Printf("  live:     %v\n", result.Live)
	cmd.Printf("  frame:    %dx%d (rotation %d)\n", result.Width, result.Height, result.Rotation)

	if len(result.Tracks) > 0 {
		cmd.Println("  tracks:")
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 4, 4, 2, ' ', 0)
		fmt.Fprintln(w, "    ID\tTYPE\tNAME\tSELECTED")
		for _, track := range result.Tracks {
			selected := ""
			if track.Selected {
				selected = "*"
			}
			fmt.Fprintf(w, "    %d\t%s\t%s\t%s\n", track.ID, track.Type, track.DisplayName, selected)
		}
		w.Flush()
	}

	return nil
}
