package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/osvaldoandrade/collageq/internal/advisor"
	"github.com/osvaldoandrade/collageq/internal/poller"
	"github.com/osvaldoandrade/collageq/internal/session"
	"github.com/osvaldoandrade/collageq/internal/upload"
	"github.com/osvaldoandrade/collageq/pkg/client"
	"github.com/osvaldoandrade/collageq/pkg/config"
	"github.com/osvaldoandrade/collageq/pkg/domain"
)

type ui struct {
	title func(a ...any) string
	ok    func(a ...any) string
	info  func(a ...any) string
	warn  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

type profile struct {
	BaseURL   string `yaml:"baseUrl"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	OutputDir string `yaml:"outputDir"`
}

type cliConfig struct {
	CurrentProfile string             `yaml:"currentProfile"`
	Profiles       map[string]profile `yaml:"profiles"`
}

func main() {
	baseURL := getenv("COLLAGEQ_BASE_URL", "http://localhost:8000")
	username := getenv("COLLAGEQ_USERNAME", "")
	password := os.Getenv("COLLAGEQ_PASSWORD")
	outputDir := getenv("COLLAGEQ_OUTPUT_DIR", "")
	profileName := getenv("COLLAGEQ_PROFILE", "")
	ui := newUI()

	root := &cobra.Command{
		Use:   "collageq",
		Short: "collageQ CLI",
		Long:  "collageQ CLI for submitting photo collages and tracking their generation.",
	}
	root.SetHelpTemplate(helpTemplate(ui))
	root.SilenceUsage = true

	root.PersistentFlags().StringVar(&baseURL, "base-url", baseURL, "Backend base URL")
	root.PersistentFlags().StringVar(&username, "username", username, "Basic auth username")
	root.PersistentFlags().StringVar(&password, "password", password, "Basic auth password")
	root.PersistentFlags().StringVar(&outputDir, "output-dir", outputDir, "Default download directory")
	root.PersistentFlags().StringVar(&profileName, "profile", profileName, "Config profile")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, _, _ := loadConfig()
		active := resolveProfileName(profileName, cfg)
		prof := cfg.Profiles[active]

		flags := cmd.Flags()
		if !flags.Changed("base-url") {
			if v := strings.TrimSpace(os.Getenv("COLLAGEQ_BASE_URL")); v != "" {
				baseURL = v
			} else if prof.BaseURL != "" {
				baseURL = prof.BaseURL
			} else {
				baseURL = tuningConfig().BaseURL
			}
		}
		if !flags.Changed("username") {
			if v := strings.TrimSpace(os.Getenv("COLLAGEQ_USERNAME")); v != "" {
				username = v
			} else if prof.Username != "" {
				username = prof.Username
			} else {
				username = tuningConfig().Username
			}
		}
		if !flags.Changed("password") {
			if v := os.Getenv("COLLAGEQ_PASSWORD"); v != "" {
				password = v
			} else if prof.Password != "" {
				password = prof.Password
			} else {
				password = tuningConfig().Password
			}
		}
		if !flags.Changed("output-dir") {
			if v := strings.TrimSpace(os.Getenv("COLLAGEQ_OUTPUT_DIR")); v != "" {
				outputDir = v
			} else if prof.OutputDir != "" {
				outputDir = prof.OutputDir
			}
		}
		if !flags.Changed("profile") && profileName == "" && active != "" {
			profileName = active
		}
		return nil
	}

	root.AddCommand(initCmd(&profileName, ui))
	root.AddCommand(authCmd(&profileName, ui))
	root.AddCommand(createCmd(&baseURL, &username, &password, ui))
	root.AddCommand(statusCmd(&baseURL, &username, &password, ui))
	root.AddCommand(watchCmd(&baseURL, &username, &password, ui))
	root.AddCommand(downloadCmd(&baseURL, &username, &password, &outputDir, ui))
	root.AddCommand(gridCmd(&baseURL, &username, &password, ui))
	root.AddCommand(overlapsCmd(&baseURL, &username, &password, ui))
	root.AddCommand(jobsCmd(&baseURL, &username, &password, ui))
	root.AddCommand(cleanupCmd(&baseURL, &username, &password, ui))
	root.AddCommand(healthCmd(&baseURL, &username, &password, ui))

	if err := root.Execute(); err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.RateLimited && apiErr.RetryAfter > 0 {
			fmt.Fprintf(os.Stderr, "%s %s (retry in %s)\n", ui.err("[ERROR]"), apiErr.Message, apiErr.RetryAfter)
		} else {
			fmt.Fprintln(os.Stderr, ui.err("[ERROR]"), err.Error())
		}
		os.Exit(1)
	}
}

func initCmd(profileName *string, ui *ui) *cobra.Command {
	var (
		baseURL   string
		username  string
		password  string
		outputDir string
		noPrompt  bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize CLI config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[active]

			if baseURL == "" {
				baseURL = prof.BaseURL
			}
			if baseURL == "" {
				baseURL = tuningConfig().BaseURL
			}
			if username == "" {
				username = prof.Username
			}
			if outputDir == "" {
				outputDir = prof.OutputDir
			}

			if !noPrompt {
				reader := bufio.NewReader(os.Stdin)
				baseURL = prompt(reader, "Backend URL", baseURL)
				username = prompt(reader, "Username (optional)", username)
				if username != "" && password == "" {
					p, err := promptSecret("Password")
					if err != nil {
						return err
					}
					password = p
				}
				outputDir = prompt(reader, "Download directory (optional)", outputDir)
			}

			prof.BaseURL = strings.TrimSpace(baseURL)
			prof.Username = strings.TrimSpace(username)
			if password != "" {
				prof.Password = password
			}
			prof.OutputDir = strings.TrimSpace(outputDir)

			if cfg.Profiles == nil {
				cfg.Profiles = map[string]profile{}
			}
			cfg.Profiles[active] = prof
			if cfg.CurrentProfile == "" || *profileName != "" {
				cfg.CurrentProfile = active
			}

			if err := saveConfig(cfg, cfgPath); err != nil {
				return err
			}
			fmt.Printf("%s Initialized profile '%s' at %s\n", ui.ok("[OK]"), active, cfgPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Backend base URL")
	cmd.Flags().StringVar(&username, "username", "", "Basic auth username")
	cmd.Flags().StringVar(&password, "password", "", "Basic auth password")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Default download directory")
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "Disable interactive prompts")
	return cmd
}

func authCmd(profileName *string, ui *ui) *cobra.Command {
	auth := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored credentials",
	}

	var (
		username string
		password string
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Store basic auth credentials in config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" && password == "" {
				return errors.New("provide --username and/or --password")
			}
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[active]
			if username != "" {
				prof.Username = strings.TrimSpace(username)
			}
			if password == "" && username != "" {
				p, err := promptSecret("Password")
				if err != nil {
					return err
				}
				password = p
			}
			if password != "" {
				prof.Password = password
			}
			if cfg.Profiles == nil {
				cfg.Profiles = map[string]profile{}
			}
			cfg.Profiles[active] = prof
			if cfg.CurrentProfile == "" || *profileName != "" {
				cfg.CurrentProfile = active
			}
			if err := saveConfig(cfg, cfgPath); err != nil {
				return err
			}
			fmt.Printf("%s Credentials updated for '%s'\n", ui.ok("[OK]"), active)
			return nil
		},
	}
	set.Flags().StringVar(&username, "username", "", "Basic auth username")
	set.Flags().StringVar(&password, "password", "", "Basic auth password")

	show := &cobra.Command{
		Use:   "show",
		Short: "Show stored credentials (masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[active]
			fmt.Printf("%s Profile: %s\n", ui.title("collageq"), active)
			fmt.Printf("%s Base URL:  %s\n", ui.info("•"), emptyOr(prof.BaseURL, "<unset>"))
			fmt.Printf("%s Username:  %s\n", ui.info("•"), emptyOr(prof.Username, "<unset>"))
			fmt.Printf("%s Password:  %s\n", ui.info("•"), maskToken(prof.Password))
			fmt.Printf("%s Downloads: %s\n", ui.info("•"), emptyOr(prof.OutputDir, "<cwd>"))
			return nil
		},
	}

	clear := &cobra.Command{
		Use:   "clear",
		Short: "Clear stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[active]
			prof.Username = ""
			prof.Password = ""
			cfg.Profiles[active] = prof
			if err := saveConfig(cfg, cfgPath); err != nil {
				return err
			}
			fmt.Printf("%s Credentials cleared for '%s'\n", ui.ok("[OK]"), active)
			return nil
		},
	}

	auth.AddCommand(set, show, clear)
	return auth
}

func createCmd(baseURL, username, password *string, ui *ui) *cobra.Command {
	var (
		cfgFlags     collageFlags
		watch        bool
		output       string
		applyRemove  bool
		pollInterval time.Duration
	)
	cmd := &cobra.Command{
		Use:     "create <image>...",
		Short:   "Submit images as a collage job",
		Example: "collageq create photos/one.jpg photos/two.jpg --layout grid --watch --output collage.jpg",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newAPIClient(*baseURL, *username, *password)
			if err != nil {
				return err
			}
			cfg := cfgFlags.config()

			set := upload.NewSet(upload.LimitsFromConfig(tuningConfig()), nil, nil)
			defer set.CloseAll()
			if err := stageFiles(set, args, ui); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if applyRemove {
				adv := advisor.New(cli, set, nil)
				report, err := adv.GridAdvice(ctx, cfg)
				if err != nil {
					return err
				}
				if opt, ok := advisor.RemoveOption(report); ok {
					app, err := adv.ApplyGridOption(opt)
					if err != nil {
						return err
					}
					fmt.Printf("%s Removed %d image(s) for a perfect %dx%d grid\n",
						ui.info("[INFO]"), app.Removed, opt.Columns, opt.Rows)
				} else {
					fmt.Printf("%s No remove suggestion from the backend; submitting all %d images\n",
						ui.info("[INFO]"), set.Count())
				}
			}

			sess := session.New(cli, set, pollConfig(pollInterval), nil, nil)

			spin := newSpinner(" Submitting collage job...")
			spin.Start()
			job, err := sess.Submit(ctx, cfg)
			spin.Stop()
			if err != nil {
				return err
			}
			fmt.Printf("%s Job created: %s\n", ui.ok("[OK]"), job.ID)

			if output != "" {
				watch = true
			}
			if !watch {
				fmt.Printf("%s Track it with: collageq watch %s\n", ui.dim("hint"), job.ID)
				return nil
			}

			bar := newWatchBar()
			final, err := sess.Watch(ctx, func(u poller.Update) {
				if u.Err == nil {
					_ = bar.Set(u.Job.Progress)
				}
			})
			_ = bar.Clear()
			if errors.Is(err, context.Canceled) {
				fmt.Println(ui.warn("[WARN]"), "Stopped watching; the job keeps running on the backend")
				return nil
			}
			if err != nil {
				return err
			}
			if final.Status == domain.StatusFailed {
				return fmt.Errorf("collage generation failed: %s", final.Error)
			}
			fmt.Printf("%s Collage ready: %s\n", ui.ok("[OK]"), final.OutputFile)

			if output == "" {
				fmt.Printf("%s Download it with: collageq download %s\n", ui.dim("hint"), final.ID)
				return nil
			}
			art, err := sess.Download(ctx)
			if err != nil {
				return err
			}
			path, err := writeArtifact(art, output, "")
			if err != nil {
				return err
			}
			fmt.Printf("%s Saved %s (%s)\n", ui.ok("[OK]"), path, humanize.Bytes(uint64(len(art.Data))))
			return nil
		},
	}
	cfgFlags.register(cmd)
	cmd.Flags().BoolVar(&watch, "watch", false, "Poll until the job finishes")
	cmd.Flags().StringVar(&output, "output", "", "Write the finished collage here (implies --watch)")
	cmd.Flags().BoolVar(&applyRemove, "apply-remove", false, "Drop images per the backend's grid advice before submitting")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 0, "Status poll interval (0 = configured default)")
	return cmd
}

func statusCmd(baseURL, username, password *string, ui *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job's current state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newAPIClient(*baseURL, *username, *password)
			if err != nil {
				return err
			}
			spin := newSpinner(" Fetching status...")
			spin.Start()
			job, err := cli.Status(context.Background(), args[0])
			spin.Stop()
			if err != nil {
				return err
			}
			printJob(ui, job)
			return nil
		},
	}
}

func watchCmd(baseURL, username, password *string, ui *ui) *cobra.Command {
	var pollInterval time.Duration
	cmd := &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Poll a job until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newAPIClient(*baseURL, *username, *password)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			job, err := cli.Status(ctx, args[0])
			if err != nil {
				return err
			}
			if job.Status.Terminal() {
				printJob(ui, job)
				if job.Status == domain.StatusFailed {
					return fmt.Errorf("collage generation failed: %s", job.Error)
				}
				return nil
			}

			bar := newWatchBar()
			_ = bar.Set(job.Progress)
			w := poller.New(job, cli.Status, pollConfig(pollInterval), nil, func(u poller.Update) {
				if u.Err == nil {
					_ = bar.Set(u.Job.Progress)
				}
			})
			final, err := w.Watch(ctx)
			_ = bar.Clear()
			if errors.Is(err, context.Canceled) {
				fmt.Println(ui.warn("[WARN]"), "Stopped watching; the job keeps running on the backend")
				return nil
			}
			if err != nil {
				return err
			}
			printJob(ui, final)
			if final.Status == domain.StatusFailed {
				return fmt.Errorf("collage generation failed: %s", final.Error)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 0, "Status poll interval (0 = configured default)")
	return cmd
}

func downloadCmd(baseURL, username, password, outputDir *string, ui *ui) *cobra.Command {
	var (
		output string
		format string
	)
	cmd := &cobra.Command{
		Use:   "download <job-id>",
		Short: "Download a finished collage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newAPIClient(*baseURL, *username, *password)
			if err != nil {
				return err
			}
			spin := newSpinner(" Downloading collage...")
			spin.Start()
			art, err := cli.Download(context.Background(), args[0], domain.OutputFormat(format))
			spin.Stop()
			if err != nil {
				return err
			}
			path, err := writeArtifact(art, output, *outputDir)
			if err != nil {
				return err
			}
			fmt.Printf("%s Saved %s (%s)\n", ui.ok("[OK]"), path, humanize.Bytes(uint64(len(art.Data))))
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "Target path or directory")
	cmd.Flags().StringVar(&format, "format", "", "Filename extension hint: jpeg|png")
	return cmd
}

func gridCmd(baseURL, username, password *string, ui *ui) *cobra.Command {
	var (
		count    int
		widthIn  float64
		heightIn float64
		dpi      int
		widthPx  int
		heightPx int
		spacing  int
	)
	cmd := &cobra.Command{
		Use:     "grid",
		Short:   "Ask the backend for perfect-grid advice",
		Example: "collageq grid --count 10 --width 16 --height 20",
		RunE: func(cmd *cobra.Command, args []string) error {
			if count <= 0 {
				return errors.New("--count is required")
			}
			cli, err := newAPIClient(*baseURL, *username, *password)
			if err != nil {
				return err
			}
			q := domain.GridQuery{
				ImageCount:   count,
				WidthInches:  widthIn,
				HeightInches: heightIn,
				DPI:          dpi,
				WidthPx:      widthPx,
				HeightPx:     heightPx,
				Spacing:      spacing,
			}
			spin := newSpinner(" Optimizing grid...")
			spin.Start()
			report, err := cli.OptimizeGrid(context.Background(), q)
			spin.Stop()
			if err != nil {
				return err
			}
			renderGridReport(ui, report)
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "Number of images")
	cmd.Flags().Float64Var(&widthIn, "width", 16, "Canvas width in inches")
	cmd.Flags().Float64Var(&heightIn, "height", 20, "Canvas height in inches")
	cmd.Flags().IntVar(&dpi, "dpi", 150, "Canvas resolution in DPI")
	cmd.Flags().IntVar(&widthPx, "width-px", 0, "Canvas width in pixels (overrides physical size)")
	cmd.Flags().IntVar(&heightPx, "height-px", 0, "Canvas height in pixels (overrides physical size)")
	cmd.Flags().IntVar(&spacing, "spacing", 10, "Spacing between images in pixels")
	return cmd
}

func overlapsCmd(baseURL, username, password *string, ui *ui) *cobra.Command {
	var (
		cfgFlags collageFlags
		apply    bool
	)
	cmd := &cobra.Command{
		Use:     "overlaps <image>...",
		Short:   "Predict overlapping images on the canvas",
		Example: "collageq overlaps photos/*.jpg --layout random --apply",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newAPIClient(*baseURL, *username, *password)
			if err != nil {
				return err
			}
			cfg := cfgFlags.config()

			set := upload.NewSet(upload.LimitsFromConfig(tuningConfig()), nil, nil)
			defer set.CloseAll()
			if err := stageFiles(set, args, ui); err != nil {
				return err
			}

			adv := advisor.New(cli, set, nil)
			spin := newSpinner(" Analyzing overlaps...")
			spin.Start()
			report, err := adv.OverlapAdvice(context.Background(), cfg)
			spin.Stop()
			if err != nil {
				return err
			}

			if !report.HasOverlaps {
				fmt.Printf("%s No overlaps predicted for %d image(s)\n", ui.ok("[OK]"), set.Count())
				return nil
			}
			fmt.Printf("%s %d overlap(s) predicted\n", ui.warn("[WARN]"), report.OverlapCount)
			for _, p := range report.Pairs {
				fmt.Printf("%s %s and %s overlap by %.0f%%\n", ui.info("•"), p.FileA, p.FileB, p.OverlapPct)
			}
			if report.Recommendation != "" {
				fmt.Printf("%s %s\n", ui.info("[INFO]"), report.Recommendation)
			}
			if !apply || len(report.SuggestedRemovals) == 0 {
				return nil
			}

			removed, err := adv.ApplyOverlapRemovals(report)
			if err != nil {
				return err
			}
			fmt.Printf("%s Dropped %d image(s); %d remain:\n", ui.ok("[OK]"), removed, set.Count())
			for _, f := range set.Files() {
				fmt.Printf("%s %s (%s)\n", ui.dim("  -"), f.Name, humanize.Bytes(uint64(f.Size)))
			}
			return nil
		},
	}
	cfgFlags.register(cmd)
	cmd.Flags().BoolVar(&apply, "apply", false, "Drop the suggested images from the set")
	return cmd
}

func jobsCmd(baseURL, username, password *string, ui *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List tracked jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newAPIClient(*baseURL, *username, *password)
			if err != nil {
				return err
			}
			spin := newSpinner(" Listing jobs...")
			spin.Start()
			list, err := cli.ListJobs(context.Background())
			spin.Stop()
			if err != nil {
				return err
			}
			if list.Total == 0 {
				fmt.Printf("%s No jobs tracked\n", ui.info("[INFO]"))
				return nil
			}
			for _, job := range list.Jobs {
				fmt.Printf("%s %s  %3d%%  %d file(s)  %s\n",
					statusBadge(ui, job.Status), job.ID, job.Progress, job.FileCount, humanize.Time(job.CreatedAt))
			}
			fmt.Printf("%s %d job(s)\n", ui.dim("total"), list.Total)
			return nil
		},
	}
}

func cleanupCmd(baseURL, username, password *string, ui *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup <job-id>",
		Short: "Release backend resources for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newAPIClient(*baseURL, *username, *password)
			if err != nil {
				return err
			}
			spin := newSpinner(" Cleaning up...")
			spin.Start()
			msg, err := cli.Cleanup(context.Background(), args[0])
			spin.Stop()
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", ui.ok("[OK]"), msg)
			return nil
		},
	}
}

func healthCmd(baseURL, username, password *string, ui *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newAPIClient(*baseURL, *username, *password)
			if err != nil {
				return err
			}
			spin := newSpinner(" Checking backend...")
			spin.Start()
			report, err := cli.Health(context.Background())
			spin.Stop()
			if err != nil {
				return err
			}
			badge := ui.ok("[OK]")
			if report.Status != "ok" {
				badge = ui.warn("[WARN]")
			}
			fmt.Printf("%s %s %s is %s (%d job(s) tracked)\n",
				badge, report.Service, report.Version, report.Status, report.Jobs)
			return nil
		},
	}
}

type collageFlags struct {
	layout         string
	spacing        int
	background     string
	widthInches    float64
	heightInches   float64
	dpi            int
	widthPx        int
	heightPx       int
	preserveAspect bool
	shadow         bool
	format         string
}

func (f *collageFlags) register(cmd *cobra.Command) {
	def := domain.DefaultCollageConfig()
	cmd.Flags().StringVar(&f.layout, "layout", string(def.Layout), "Layout style: masonry|grid|random|spiral")
	cmd.Flags().IntVar(&f.spacing, "spacing", def.Spacing, "Spacing between images in pixels")
	cmd.Flags().StringVar(&f.background, "background", def.Background, "Background color (#RRGGBB or #RRGGBBAA)")
	cmd.Flags().Float64Var(&f.widthInches, "width", def.WidthInches, "Canvas width in inches")
	cmd.Flags().Float64Var(&f.heightInches, "height", def.HeightInches, "Canvas height in inches")
	cmd.Flags().IntVar(&f.dpi, "dpi", def.DPI, "Canvas resolution in DPI")
	cmd.Flags().IntVar(&f.widthPx, "width-px", 0, "Canvas width in pixels (overrides physical size)")
	cmd.Flags().IntVar(&f.heightPx, "height-px", 0, "Canvas height in pixels (overrides physical size)")
	cmd.Flags().BoolVar(&f.preserveAspect, "preserve-aspect", def.PreserveAspect, "Keep image aspect ratios")
	cmd.Flags().BoolVar(&f.shadow, "shadow", def.Shadow, "Draw drop shadows")
	cmd.Flags().StringVar(&f.format, "format", string(def.Format), "Output format: jpeg|png")
}

func (f *collageFlags) config() domain.CollageConfig {
	cfg := domain.DefaultCollageConfig()
	cfg.Layout = domain.LayoutStyle(f.layout)
	cfg.Spacing = f.spacing
	cfg.Background = f.background
	cfg.WidthInches = f.widthInches
	cfg.HeightInches = f.heightInches
	cfg.DPI = f.dpi
	cfg.WidthPx = f.widthPx
	cfg.HeightPx = f.heightPx
	cfg.PreserveAspect = f.preserveAspect
	cfg.Shadow = f.shadow
	cfg.Format = domain.OutputFormat(f.format)
	if cfg.PixelCanvas() {
		cfg.WidthInches, cfg.HeightInches, cfg.DPI = 0, 0, 0
	}
	return cfg
}

func newAPIClient(baseURL, username, password string) (*client.Client, error) {
	return client.NewClient(client.Options{
		BaseURL:        baseURL,
		Username:       username,
		Password:       password,
		RequestTimeout: time.Duration(tuningConfig().RequestTimeoutSeconds) * time.Second,
	})
}

var (
	tuningOnce sync.Once
	tuning     *config.Config
)

// tuningConfig loads backend tuning (request timeout, poll cadence, backoff)
// once per process. COLLAGEQ_CONFIG_PATH names the same optional yaml file
// the stub server reads; an unreadable file falls back to defaults.
func tuningConfig() *config.Config {
	tuningOnce.Do(func() {
		cfg, err := config.LoadConfigOptional(os.Getenv("COLLAGEQ_CONFIG_PATH"))
		if err != nil {
			fmt.Fprintln(os.Stderr, "[WARN] ignoring config:", err)
			cfg, _ = config.LoadConfigOptional("")
		}
		tuning = cfg
	})
	return tuning
}

func pollConfig(interval time.Duration) poller.Config {
	cfg := poller.FromConfig(tuningConfig())
	if interval > 0 {
		cfg.Interval = interval
	}
	return cfg
}

func newSpinner(suffix string) *spinner.Spinner {
	spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
	spin.Suffix = suffix
	return spin
}

func newWatchBar() *progressbar.ProgressBar {
	return progressbar.NewOptions(100,
		progressbar.OptionSetDescription("Generating collage"),
		progressbar.OptionSetWidth(18),
		progressbar.OptionClearOnFinish(),
	)
}

func stageFiles(set *upload.Set, paths []string, ui *ui) error {
	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription("Staging images"),
		progressbar.OptionSetWidth(18),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	for _, path := range paths {
		if _, err := set.Add(path); err != nil {
			_ = bar.Clear()
			return err
		}
		_ = bar.Add(1)
	}
	fmt.Printf("%s %d image(s) staged (%s)\n", ui.info("[INFO]"), set.Count(), humanize.Bytes(uint64(set.TotalSize())))
	return nil
}

func printJob(ui *ui, job domain.Job) {
	fmt.Printf("%s Job %s\n", statusBadge(ui, job.Status), job.ID)
	fmt.Printf("%s Status:   %s\n", ui.info("•"), job.Status)
	fmt.Printf("%s Progress: %d%%\n", ui.info("•"), job.Progress)
	if job.FileCount > 0 {
		fmt.Printf("%s Files:    %d\n", ui.info("•"), job.FileCount)
	}
	if !job.CreatedAt.IsZero() {
		fmt.Printf("%s Created:  %s\n", ui.info("•"), humanize.Time(job.CreatedAt))
	}
	if job.Message != "" {
		fmt.Printf("%s Message:  %s\n", ui.info("•"), job.Message)
	}
	if job.OutputFile != "" {
		fmt.Printf("%s Output:   %s\n", ui.info("•"), job.OutputFile)
	}
	if job.Error != "" {
		fmt.Printf("%s Error:    %s\n", ui.err("•"), job.Error)
	}
}

func statusBadge(ui *ui, s domain.JobStatus) string {
	switch s {
	case domain.StatusCompleted:
		return ui.ok("DONE")
	case domain.StatusFailed:
		return ui.err("FAIL")
	case domain.StatusProcessing:
		return ui.info("WORK")
	default:
		return ui.dim("WAIT")
	}
}

func renderGridReport(ui *ui, report domain.GridReport) {
	cur := report.CurrentGrid
	shape := "not perfect"
	if cur.IsPerfect {
		shape = "perfect"
	}
	fmt.Printf("%s Canvas %dx%dpx, current grid %dx%d holding %d image(s) (%s)\n",
		ui.title("grid"), report.Canvas.WidthPx, report.Canvas.HeightPx,
		cur.Columns, cur.Rows, cur.TotalImages, shape)
	if report.ClosestPerfectGrid != nil {
		fmt.Printf("%s %s\n", ui.ok("closest"), describeGridOption(*report.ClosestPerfectGrid))
	}
	for _, alt := range report.Alternatives {
		fmt.Printf("%s %s\n", ui.info("    alt"), describeGridOption(alt))
	}
}

func describeGridOption(opt domain.GridOption) string {
	switch opt.Type {
	case domain.GridActionPerfect:
		return fmt.Sprintf("%dx%d already fits %d image(s) perfectly", opt.Columns, opt.Rows, opt.TotalImages)
	case domain.GridActionAdd:
		return fmt.Sprintf("add %d image(s) for a %dx%d grid of %d", opt.ImagesNeeded, opt.Columns, opt.Rows, opt.TotalImages)
	default:
		return fmt.Sprintf("remove %d image(s) for a %dx%d grid of %d", opt.ImagesToRemove, opt.Columns, opt.Rows, opt.TotalImages)
	}
}

func writeArtifact(art *client.Artifact, explicit, defaultDir string) (string, error) {
	path := strings.TrimSpace(explicit)
	switch {
	case path == "" && defaultDir != "":
		path = filepath.Join(defaultDir, art.Filename)
	case path == "":
		path = art.Filename
	default:
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			path = filepath.Join(path, art.Filename)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	if err := os.WriteFile(path, art.Data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func helpTemplate(ui *ui) string {
	title := ui.title("collageq")
	return fmt.Sprintf(`%s — CLI for collageQ

Usage:
  {{.UseLine}}

Commands:
{{range .Commands}}{{if (or .IsAvailableCommand .IsAdditionalHelpTopicCommand)}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

Flags:
  {{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

Global Flags:
  {{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

Config:
  %s

Examples:
  collageq init
  collageq create photos/one.jpg photos/two.jpg --layout grid --watch
  collageq grid --count 10 --width 16 --height 20
  collageq overlaps photos/one.jpg photos/two.jpg --layout random --apply
  collageq download 4f1f4703 --output ./collages
  collageq jobs

`, title, configPath())
}

func configPath() string {
	if v := strings.TrimSpace(os.Getenv("COLLAGEQ_CONFIG_DIR")); v != "" {
		return filepath.Join(v, "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".collageq", "config.yaml")
}

func loadConfig() (cliConfig, string, error) {
	path := configPath()
	var cfg cliConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cliConfig{Profiles: map[string]profile{}}, path, nil
		}
		return cfg, path, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, path, err
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]profile{}
	}
	return cfg, path, nil
}

func saveConfig(cfg cliConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func resolveProfileName(flag string, cfg cliConfig) string {
	if strings.TrimSpace(flag) != "" {
		return strings.TrimSpace(flag)
	}
	if v := strings.TrimSpace(os.Getenv("COLLAGEQ_PROFILE")); v != "" {
		return v
	}
	if cfg.CurrentProfile != "" {
		return cfg.CurrentProfile
	}
	return "default"
}

func prompt(r *bufio.Reader, label, def string) string {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, _ := r.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

func promptSecret(label string) (string, error) {
	fmt.Printf("%s: ", label)
	b, err := termReadPassword()
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func termReadPassword() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		return []byte(strings.TrimSpace(line)), err
	}
	return term.ReadPassword(fd)
}

func maskToken(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "<unset>"
	}
	if len(v) <= 8 {
		return "****"
	}
	return v[:4] + "..." + v[len(v)-4:]
}

func emptyOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
