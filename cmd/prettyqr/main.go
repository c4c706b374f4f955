package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"prettyqr/internal/engine/qr"
	"prettyqr/internal/engine/render"
	"prettyqr/internal/engine/studio"
	"prettyqr/internal/pkg/logger"
	"prettyqr/internal/platform/config"
)

var version = "v0.1.0"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "prettyqr",
		Short:         "Styled QR code generator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	// --- render command ------------------------------------------------------
	var ro renderOptions
	renderCmd := &cobra.Command{
		Use:   "render [payload]",
		Short: "Render a QR code to a PNG or SVG file",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnv(configPath, ro.backend)
			if err != nil {
				return err
			}
			return runRender(cmd, env, ro, args)
		},
	}
	f := renderCmd.Flags()
	f.StringVar(&ro.fg, "fg", studio.DefaultModuleColor, "Module color")
	f.StringVar(&ro.bg, "bg", studio.DefaultBackgroundColor, "Background color")
	f.BoolVar(&ro.transparent, "transparent", true, "Transparent background")
	f.IntVar(&ro.size, "size", studio.DefaultPixelSize, "Image size in pixels")
	f.StringVarP(&ro.format, "format", "f", "png", "Output format: png or svg")
	f.StringVar(&ro.backend, "backend", "", "QR backend: skip2, rsc or yeqown")
	f.StringVar(&ro.requestPath, "request", "", "YAML file with request fields")
	f.StringVarP(&ro.out, "out", "o", "", "Output path (default qr-code.png or qr-code.svg)")
	root.AddCommand(renderCmd)

	// --- studio command ------------------------------------------------------
	var studioBackend string
	studioCmd := &cobra.Command{
		Use:   "studio",
		Short: "Edit a QR code interactively with a live terminal preview",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnv(configPath, studioBackend)
			if err != nil {
				return err
			}
			return runStudio(env)
		},
	}
	studioCmd.Flags().StringVar(&studioBackend, "backend", "", "QR backend: skip2, rsc or yeqown")
	root.AddCommand(studioCmd)

	// --- version command -----------------------------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "prettyqr %s (backends: %v)\n", version, qr.Backends())
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// env is what every command needs to build a pipeline.
type env struct {
	encoder  *render.Encoder
	settings studio.Settings
}

func loadEnv(configPath, backendName string) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	// Interactive use logs to stderr as text, warnings only by default.
	if cfg.Logging.Level == "info" {
		cfg.Logging.Level = "warn"
	}
	logger.Init(cfg.Logging)
	if cfg.Logging.Output != "file" {
		log.Logger = logger.New(os.Stderr, "text").Level(logger.ParseLevel(cfg.Logging.Level))
	}
	zerolog.SetGlobalLevel(logger.ParseLevel(cfg.Logging.Level))

	if backendName == "" {
		backendName = cfg.Studio.Backend
	}
	backend, err := qr.New(backendName)
	if err != nil {
		return nil, err
	}
	settings, err := studio.SettingsFromConfig(cfg.Studio)
	if err != nil {
		return nil, err
	}

	return &env{encoder: render.NewEncoder(backend), settings: settings}, nil
}
