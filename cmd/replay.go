package cmd

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/controller"
	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/profiler"
	"github.com/nvr-ai/go-detect/tracker"
	"github.com/nvr-ai/go-detect/util"
)

func newReplayCommand(opts *Options) *cobra.Command {
	var framesDir string

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay dumped network outputs through detection and tracking",
		Long: "Replay reads frame-<n>.bin dumps of raw network outputs, in frame order,\n" +
			"and prints one line every time the primary subject changes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.LoadConfig()
			if err != nil {
				return err
			}
			return runReplay(cmd, cfg, framesDir)
		},
	}
	cmd.Flags().StringVar(&framesDir, "frames", "", "Directory of frame-<n>.bin dumps")
	_ = cmd.MarkFlagRequired("frames")
	return cmd
}

func runReplay(cmd *cobra.Command, cfg config.Config, framesDir string) error {
	pipeline, err := detector.NewPipeline(cfg.Detector)
	if err != nil {
		return err
	}
	trk, err := tracker.New(cfg.TrackerConfig())
	if err != nil {
		return err
	}
	relevant, err := cfg.RelevantClassIndices()
	if err != nil {
		return err
	}

	frames, err := util.LoadDirectoryFrames(framesDir, cfg.Detector)
	if err != nil {
		return errors.Wrap(err, "loading frames")
	}
	log.WithFields(log.Fields{"frames": len(frames), "dir": framesDir}).Info("replay started")

	prof := profiler.NewStageProfiler(cfg.ProfilerSamples)
	ctrl := controller.New(controller.PipelineDetector{Pipeline: pipeline}, trk, controller.Options{
		RelevantClasses: relevant,
		Profiler:        prof,
	})

	out := cmd.OutOrStdout()
	for _, f := range frames {
		if err := cmd.Context().Err(); err != nil {
			return err
		}

		decision, err := ctrl.Process(controller.Frame{ID: f.Frame, Layers: f.Layers})
		if err != nil {
			return err
		}
		if decision.Changed {
			printDecision(out, pipeline.Classes(), decision)
		}
	}

	for _, stage := range prof.Stages() {
		stats, _ := prof.Stats(stage)
		log.WithField("stage", stage).Info(stats.String())
	}
	return nil
}

func printDecision(w io.Writer, classes *detector.ClassSet, d controller.Decision) {
	if d.Subject == nil {
		fmt.Fprintf(w, "frame %d: subject lost\n", d.FrameID)
		return
	}

	rect := d.Subject.Box.ToRect()
	fmt.Fprintf(w, "frame %d: subject %s at (%d, %d), (%d, %d)",
		d.FrameID, d.Subject.ID, rect.X1, rect.Y1, rect.X2, rect.Y2)
	if det := d.Subject.Detection; det != nil {
		name, err := classes.Name(det.Class)
		if err != nil {
			name = fmt.Sprint(det.Class)
		}
		fmt.Fprintf(w, " %s (score %.3f)", name, det.Score.Float32())
		if det.Rotation != nil {
			angles := det.Rotation.EulerAngles().Degrees()
			fmt.Fprintf(w, " yaw %.0f pitch %.0f roll %.0f", angles.Yaw, angles.Pitch, angles.Roll)
		}
	}
	fmt.Fprintln(w)
}
