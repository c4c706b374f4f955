package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"prettyqr/internal/engine/studio"
)

type renderOptions struct {
	fg          string
	bg          string
	transparent bool
	size        int
	format      string
	backend     string
	requestPath string
	out         string
}

// loadPatch reads a partial request from a YAML file.
func loadPatch(path string) (studio.Patch, error) {
	var patch studio.Patch
	data, err := os.ReadFile(path)
	if err != nil {
		return patch, errors.Wrap(err, "read request file")
	}
	if err := yaml.Unmarshal(data, &patch); err != nil {
		return patch, errors.Wrapf(err, "parse request file %s", path)
	}
	return patch, nil
}

// buildPatch layers the request file, then explicitly set flags, then the
// positional payload.
func buildPatch(cmd *cobra.Command, ro renderOptions, args []string) (studio.Patch, error) {
	var patch studio.Patch
	if ro.requestPath != "" {
		p, err := loadPatch(ro.requestPath)
		if err != nil {
			return patch, err
		}
		patch = p
	}

	flags := cmd.Flags()
	if flags.Changed("fg") {
		patch.ModuleColor = &ro.fg
	}
	if flags.Changed("bg") {
		patch.BackgroundColor = &ro.bg
	}
	if flags.Changed("transparent") {
		patch.TransparentBackground = &ro.transparent
	}
	if flags.Changed("size") {
		patch.PixelSize = &ro.size
	}
	if len(args) > 0 {
		payload := strings.Join(args, " ")
		patch.Payload = &payload
	}
	return patch, nil
}

func runRender(cmd *cobra.Command, e *env, ro renderOptions, args []string) error {
	format, err := studio.ParseFormat(ro.format)
	if err != nil {
		return err
	}
	patch, err := buildPatch(cmd, ro, args)
	if err != nil {
		return err
	}

	p := studio.New(e.encoder, e.settings)
	defer p.Close()
	p.Update(patch)

	dl, err := p.Export(format)
	if err != nil {
		return err
	}

	out := ro.out
	if out == "" {
		out = dl.FileName
	}
	if err := os.WriteFile(out, dl.Data, 0o644); err != nil {
		return errors.Wrap(err, "write output")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes, %s)\n", out, len(dl.Data), dl.Fingerprint[:12])
	return nil
}
