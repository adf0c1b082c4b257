package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kikiluvv/quotereel/internal/config"
	"github.com/kikiluvv/quotereel/internal/gui"
	"github.com/kikiluvv/quotereel/internal/logging"
	"github.com/kikiluvv/quotereel/internal/pipeline"
	"github.com/kikiluvv/quotereel/internal/reel"
	"github.com/kikiluvv/quotereel/internal/tui"
	"github.com/kikiluvv/quotereel/pkg/util"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "quotereel",
	Short:        "quotereel - quote reel generator",
	Long:         "Turns a handful of images or a short video plus a caption into a vertical quote reel.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(verbose)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./quotereel.yaml or ~/.quotereel/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(studioCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(stillCmd)
	rootCmd.AddCommand(presetsCmd)
	rootCmd.AddCommand(configCmd)
}

// Source flags shared by generate, studio and preview.
var (
	imagePaths []string
	videoPath  string
	caption    string
)

func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&imagePaths, "image", "i", nil, "image file, repeatable (positional args are images too)")
	cmd.Flags().StringVar(&videoPath, "video", "", "video file (at most 30s and 100MB)")
	cmd.Flags().StringVarP(&caption, "caption", "c", "", "quote text")
}

var generateFlags struct {
	duration   time.Duration
	transition string
	quality    string
	alignment  string
	position   string
	family     string
	color      string
	fontScale  int
	offsetX    int
	offsetY    int
	bold       bool
	italic     bool
	underline  bool
	shadow     bool
	noText     bool
	outDir     string
}

var generateCmd = &cobra.Command{
	Use:   "generate [images...]",
	Short: "Render a reel from images or a video",
	Example: `  quotereel generate a.jpg b.jpg c.jpg -c "Stay hungry" --transition zoom
  quotereel generate --video clip.mp4 -c "Keep going" --quality 4k`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		if generateFlags.outDir != "" {
			cfg.OutputDir = generateFlags.outDir
		}

		app, err := newApp(cfg, log.Logger)
		if err != nil {
			return err
		}
		defer app.close()

		mode, err := app.load(cmd.Context(), append(imagePaths, args...), videoPath)
		if err != nil {
			return err
		}
		app.session.SetCaption(caption)
		if err := applyGenerateFlags(cmd, app.session); err != nil {
			return err
		}

		if _, err := app.session.StartGeneration(cmd.Context(), mode); err != nil {
			return userError(err)
		}

		var st pipeline.Status
		if logging.IsTerminal(os.Stdout) {
			st, err = tui.RunProgress(cmd.Context(), app.session)
		} else {
			st, err = follow(cmd.Context(), app.session)
		}
		if err != nil {
			return err
		}

		switch st.State {
		case pipeline.StateComplete:
			fmt.Fprintln(cmd.OutOrStdout(), st.Artifact)
			return nil
		case pipeline.StateError:
			return userError(st.Err)
		}
		lg := logging.WithComponent("cli")
		lg.Warn().Msg("generation canceled")
		return reel.ErrCanceled
	},
}

func init() {
	addSourceFlags(generateCmd)
	f := generateCmd.Flags()
	f.DurationVarP(&generateFlags.duration, "duration", "d", 0, "time per image (300ms to 5s)")
	f.StringVarP(&generateFlags.transition, "transition", "t", "", "transition: default, fade, slide, zoom or none")
	f.StringVarP(&generateFlags.quality, "quality", "q", "", "output quality: 1080p or 4k")
	f.StringVar(&generateFlags.alignment, "align", "", "text alignment: left, center or right")
	f.StringVar(&generateFlags.position, "position", "", "text position: top, center or bottom")
	f.StringVar(&generateFlags.family, "font", "", "font family")
	f.StringVar(&generateFlags.color, "color", "", "text color as #RRGGBB")
	f.IntVar(&generateFlags.fontScale, "font-scale", 0, "font size scale in percent (50 to 150)")
	f.IntVar(&generateFlags.offsetX, "offset-x", 0, "horizontal text offset in percent (-50 to 50)")
	f.IntVar(&generateFlags.offsetY, "offset-y", 0, "vertical text offset in percent (-50 to 50)")
	f.BoolVar(&generateFlags.bold, "bold", false, "bold text")
	f.BoolVar(&generateFlags.italic, "italic", false, "italic text")
	f.BoolVar(&generateFlags.underline, "underline", false, "underline text")
	f.BoolVar(&generateFlags.shadow, "shadow", true, "draw a text shadow")
	f.BoolVar(&generateFlags.noText, "no-text", false, "render without the caption")
	f.StringVarP(&generateFlags.outDir, "out", "o", "", "output directory (overrides output_dir)")
}

// applyGenerateFlags layers explicitly set flags over the configured defaults.
func applyGenerateFlags(cmd *cobra.Command, session *pipeline.Session) error {
	f := cmd.Flags()
	g := generateFlags

	rs := session.ReelSettings()
	if f.Changed("duration") {
		rs = rs.WithDuration(g.duration)
	}
	if f.Changed("transition") {
		t, err := reel.ParseTransition(g.transition)
		if err != nil {
			return err
		}
		rs = rs.WithTransition(t)
	}
	if f.Changed("quality") {
		q, err := reel.ParseQuality(g.quality)
		if err != nil {
			return err
		}
		rs = rs.WithQuality(q)
	}
	if err := session.UpdateReelSettings(rs); err != nil {
		return userError(err)
	}

	ts := session.TextSettings()
	if f.Changed("align") {
		a, err := reel.ParseAlignment(g.alignment)
		if err != nil {
			return err
		}
		ts = ts.WithAlignment(a)
	}
	if f.Changed("position") {
		p, err := reel.ParsePosition(g.position)
		if err != nil {
			return err
		}
		ts = ts.WithPosition(p)
	}
	if f.Changed("font") {
		ts = ts.WithFamily(g.family)
	}
	if f.Changed("color") {
		ts = ts.WithColor(g.color)
	}
	if f.Changed("font-scale") {
		ts = ts.WithFontScale(g.fontScale)
	}
	if f.Changed("offset-x") || f.Changed("offset-y") {
		x, y := ts.OffsetX, ts.OffsetY
		if f.Changed("offset-x") {
			x = g.offsetX
		}
		if f.Changed("offset-y") {
			y = g.offsetY
		}
		ts = ts.WithOffset(x, y)
	}
	if f.Changed("bold") {
		ts.Bold = g.bold
	}
	if f.Changed("italic") {
		ts.Italic = g.italic
	}
	if f.Changed("underline") {
		ts.Underline = g.underline
	}
	if f.Changed("shadow") {
		ts.Shadow = g.shadow
	}
	if f.Changed("no-text") {
		ts.ShowText = !g.noText
	}
	if err := session.UpdateTextSettings(ts); err != nil {
		return userError(err)
	}
	return nil
}

// follow logs progress of the running job until it ends. An interrupt
// cancels the job and waits for it to unwind.
func follow(ctx context.Context, session *pipeline.Session) (pipeline.Status, error) {
	updates, unsubscribe := session.Subscribe()
	defer unsubscribe()

	logger := logging.WithComponent("cli")
	lastDecile := -1
	for {
		select {
		case <-ctx.Done():
			session.CancelGeneration()
			return session.Status(), nil
		case st := <-updates:
			if st.State != pipeline.StateRunning {
				return st, nil
			}
			if d := st.Progress / 10; d != lastDecile {
				lastDecile = d
				logger.Info().
					Int("progress", st.Progress).
					Int("frame", st.Frames).
					Int("total", st.Total).
					Msg("generating")
			}
		}
	}
}

// userError unwraps validation failures to their message.
func userError(err error) error {
	var v *reel.ValidationError
	if errors.As(err, &v) {
		return errors.New(v.Msg)
	}
	return err
}

var studioCmd = &cobra.Command{
	Use:   "studio [images...]",
	Short: "Edit and generate a reel in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		app, err := newApp(cfg, log.Logger)
		if err != nil {
			return err
		}
		defer app.close()

		if _, err := app.load(cmd.Context(), append(imagePaths, args...), videoPath); err != nil {
			return err
		}
		app.session.SetCaption(caption)
		return tui.RunStudio(cmd.Context(), app.session)
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview [images...]",
	Short: "Open the live preview window",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		app, err := newApp(cfg, log.Logger)
		if err != nil {
			return err
		}

		if _, err := app.load(cmd.Context(), append(imagePaths, args...), videoPath); err != nil {
			app.close()
			return err
		}
		app.session.SetCaption(caption)

		// the window tears the session down when it closes
		gui.Run(cmd.Context(), log.Logger, app.session, gui.Options{Fonts: app.fonts.List()})
		return nil
	},
}

var (
	stillAt  string
	stillOut string
)

var stillCmd = &cobra.Command{
	Use:   "still [images...]",
	Short: "Render a single frame of the reel to PNG",
	Example: `  quotereel still a.jpg b.jpg -c "Stay hungry" --at 2.9 -o frame.png
  quotereel still --video clip.mp4 --at 00:00:04.5`,
	RunE: func(cmd *cobra.Command, args []string) error {
		at, err := util.ParseTimestamp(stillAt)
		if err != nil {
			return err
		}

		cfg := config.FromContext(cmd.Context())
		app, err := newApp(cfg, log.Logger)
		if err != nil {
			return err
		}
		defer app.close()

		mode, err := app.load(cmd.Context(), append(imagePaths, args...), videoPath)
		if err != nil {
			return err
		}
		app.session.SetCaption(caption)

		if err := app.still(cmd.Context(), mode, at, stillOut); err != nil {
			return userError(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), stillOut)
		return nil
	},
}

func init() {
	addSourceFlags(studioCmd)
	addSourceFlags(previewCmd)
	addSourceFlags(stillCmd)
	stillCmd.Flags().StringVar(&stillAt, "at", "0", "timestamp (seconds, MM:SS or HH:MM:SS.mmm)")
	stillCmd.Flags().StringVarP(&stillOut, "out", "o", "still.png", "output PNG path")
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List output quality presets and transitions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"Quality", "Resolution", "Bitrate", "FPS"})
		for _, p := range reel.Presets {
			t.AppendRow(table.Row{p.Tier, fmt.Sprintf("%dx%d", p.Width, p.Height), p.BitrateLabel(), p.FPS})
		}
		t.Render()

		durations := make([]string, len(reel.Durations))
		for i, d := range reel.Durations {
			durations[i] = d.String()
		}
		transitions := make([]string, len(reel.Transitions))
		for i, tr := range reel.Transitions {
			transitions[i] = string(tr)
		}

		o := table.NewWriter()
		o.SetOutputMirror(cmd.OutOrStdout())
		o.SetStyle(table.StyleRounded)
		o.AppendRow(table.Row{"Transitions", strings.Join(transitions, ", ")})
		o.AppendRow(table.Row{"Durations", strings.Join(durations, ", ")})
		o.Render()
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configFormat string

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		data, err := cfg.Marshal("config." + configFormat)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configForce bool

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default config file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigPath()
		if len(args) == 1 {
			path = args[0]
		}
		if util.FileExists(path) && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		lg := logging.WithComponent("cli")
		lg.Info().Str("path", path).Msg("config written")
		return nil
	},
}

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "yaml", "output format: yaml or toml")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
