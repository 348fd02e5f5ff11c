package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"playsync.dev/internal/captions"
	"playsync.dev/internal/fs"
	"playsync.dev/internal/state"
	"playsync.dev/internal/tracking"
)

func newPlayCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play <uri>",
		Short: "Play a media URI to completion",
		Long:  "Opens the URI, plays it, and prints state transitions until playback completes or fails.",
		Args:  cobra.ExactArgs(1),
		RunE:  runPlayE,
	}

	cmd.Flags().String("volume", "", "Playback volume (0.0 to 1.0)")
	cmd.Flags().Float64("speed", 0, "Playback speed multiplier")
	cmd.Flags().Bool("loop", false, "Loop at end of media")
	cmd.Flags().Bool("fast-seek", false, "Key-frame aligned seeks")
	cmd.Flags().Duration("seek", 0, "Seek to this position after initialization")
	cmd.Flags().Duration("timeout", 0, "Give up after this long (0 = duration plus a grace period)")
	cmd.Flags().String("captions", "", "Path to an SRT or WebVTT caption file")
	cmd.Flags().Duration("caption-offset", 0, "Caption timing offset")

	return cmd
}

func runPlayE(cmd *cobra.Command, args []string) error {
	cli := cliFromContext(cmd.Context())
	if cli == nil {
		return fmt.Errorf("CLI instance not found in context")
	}
	uri := args[0]

	cfg, err := loadAndValidateConfig(cmd, cli)
	if err != nil {
		return err
	}
	if err := applyVolumeFlag(cmd, cfg); err != nil {
		return err
	}
	if speed, _ := cmd.Flags().GetFloat64("speed"); speed > 0 {
		cfg.PlaybackSpeed = speed
	}
	if loop, _ := cmd.Flags().GetBool("loop"); loop {
		cfg.Looping = true
	}
	if fastSeek, _ := cmd.Flags().GetBool("fast-seek"); fastSeek {
		cfg.FastSeek = true
	}
	cfg.AutoPlay = true

	setupLogging(cfg, cmd.ErrOrStderr())
	cli.initializeTracking(cfg)

	sessionID, controller, err := cli.sessions.Create()
	if err != nil {
		return fmt.Errorf("failed to create playback session: %w", err)
	}
	defer cli.sessions.Dispose(sessionID)

	if cli.trackingDB != nil {
		recorder, err := tracking.NewRecorder(cli.trackingDB, sessionID, uri, cfg.Engine)
		if err != nil {
			slog.Warn("failed to create history recorder", "error", err)
		} else {
			recorder.Attach(controller)
			defer func() {
				if err := recorder.Close(); err != nil {
					slog.Warn("failed to close history recorder", "error", err)
				}
			}()
		}
	}

	// Terminal observation: completion or a recorded error ends the wait.
	done := make(chan state.Snapshot, 1)
	unsub := controller.Subscribe(func(snap state.Snapshot) {
		if snap.IsCompleted || snap.ErrorDescription != "" {
			select {
			case done <- snap:
			default:
			}
		}
	})
	defer unsub()

	if err := controller.Initialize(cmd.Context(), uri, cfg); err != nil {
		cmd.PrintErrf("Error: %v\n", err)
		return err
	}

	snap := controller.Snapshot()
	cmd.Printf("playing %s\n", uri)
	cmd.Printf("  duration: %s  live: %v  frame: %dx%d\n",
		snap.Duration, snap.IsLive, snap.FrameSize.Width, snap.FrameSize.Height)

	if captionPath, _ := cmd.Flags().GetString("captions"); captionPath != "" {
		cues, err := captions.LoadFile(fs.NewDefaultFactory().Production(), captionPath)
		if err != nil {
			cmd.PrintErrf("Error loading captions: %v\n", err)
			return err
		}
		controller.SetCaptions(cues)
		if offset, _ := cmd.Flags().GetDuration("caption-offset"); offset != 0 {
			controller.SetCaptionOffset(offset)
		}
		cmd.Printf("  captions: %s (%d cues)\n", captionPath, len(cues))
	}

	if seek, _ := cmd.Flags().GetDuration("seek"); seek > 0 {
		if err := controller.SeekTo(seek); err != nil {
			cmd.PrintErrf("Error seeking: %v\n", err)
			return err
		}
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout <= 0 {
		if snap.Duration > 0 {
			grace := time.Duration(float64(snap.Duration)/cfg.PlaybackSpeed) + 5*time.Second
			timeout = grace
		} else {
			timeout = time.Minute
		}
	}

	select {
	case final := <-done:
		if final.ErrorDescription != "" {
			cmd.PrintErrf("playback failed: %s\n", final.ErrorDescription)
			return fmt.Errorf("playback failed: %s", final.ErrorDescription)
		}
		cmd.Printf("completed at %s\n", final.Position)
		return nil
	case <-time.After(timeout):
		cmd.PrintErrf("timed out after %s\n", timeout)
		return fmt.Errorf("playback timed out after %s", timeout)
	case <-cmd.Context().Done():
		return cmd.Context().Err()
	}
}
