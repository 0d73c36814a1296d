// main.go: eunoe command - tee stdin into a managed log file
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

// eunoe reads lines from standard input and writes each one as an entry
// into a rotated, aged log file.
//
// Usage:
//
//	myservice 2>&1 | eunoe --path /var/log/myservice/myservice.log --retention 30d
//	myservice 2>&1 | eunoe --config /etc/myservice/logging.yaml
//
// With --config the file is watched, and changes to rotate_every,
// compress_after, retention and level apply to the running process.
// Flags override values from the file.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/agilira/eunoe"
	"github.com/agilira/eunoe/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdin).Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "eunoe: %v\n", err)
		return 1
	}
	return 0
}

// newApp builds the CLI reading entries from in
func newApp(in io.Reader) *cli.Command {
	return &cli.Command{
		Name:      "eunoe",
		Usage:     "write stdin lines into a rotated, compressed, aged log file",
		UsageText: "eunoe [options] < input",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML or JSON configuration file, watched for changes"},
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "active log file (default: <exe dir>/../log/<exe>.log)"},
			&cli.StringFlag{Name: "rotate-every", Usage: "rotation span, e.g. 1d, 6h, 15m, or off"},
			&cli.StringFlag{Name: "compress-after", Usage: "age at which rotated files are gzipped, or off"},
			&cli.StringFlag{Name: "retention", Usage: "age at which rotated files are deleted, or never"},
			&cli.StringFlag{Name: "format", Usage: "text or json"},
			&cli.StringFlag{Name: "level", Usage: "minimum level: debug, info, warn or error"},
			&cli.StringFlag{Name: "source", Value: "stdin", Usage: "source tag of the entries"},
		},
		// run reports errors and picks the exit code; cli must not os.Exit
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return serve(ctx, cmd, in)
		},
	}
}

func serve(ctx context.Context, cmd *cli.Command, in io.Reader) error {
	configPath := cmd.String("config")

	file, err := loadFile(configPath, cmd)
	if err != nil {
		return err
	}
	opts, err := file.Options()
	if err != nil {
		return err
	}
	if opts.Path == "" {
		if opts.Path, err = config.DefaultPath(); err != nil {
			return err
		}
	}
	level, err := file.LevelValue()
	if err != nil {
		return err
	}

	b, err := eunoe.New(opts)
	if err != nil {
		return err
	}
	defer b.Close()

	lv := new(slog.LevelVar)
	lv.Set(level)
	logger := slog.New(eunoe.NewHandler(b, &eunoe.HandlerOptions{
		Level:  lv,
		Source: cmd.String("source"),
	}))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if configPath != "" {
		w, err := config.Watch(configPath, func(f *config.File, err error) {
			if err == nil {
				overrideFlags(f, cmd)
				err = f.Apply(b)
			}
			if err != nil {
				logger.Error("config reload failed", "source", "eunoe.config", "error", err)
				return
			}
			if l, err := f.LevelValue(); err == nil {
				lv.Set(l)
			}
			logger.Info("config reloaded", "source", "eunoe.config", "path", configPath)
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return w.Run(ctx) })
	}

	g.Go(func() error {
		defer cancel() // input exhausted: stop the watcher too
		return pump(ctx, in, logger)
	})

	return g.Wait()
}

// loadFile reads the configuration file, if any, and applies flag overrides
func loadFile(path string, cmd *cli.Command) (*config.File, error) {
	file := &config.File{}
	if path != "" {
		f, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		file = f
	}
	overrideFlags(file, cmd)
	return file, file.Validate()
}

func overrideFlags(f *config.File, cmd *cli.Command) {
	set := func(flag string, dst *string) {
		if cmd.IsSet(flag) {
			*dst = cmd.String(flag)
		}
	}
	set("path", &f.Path)
	set("rotate-every", &f.RotateEvery)
	set("compress-after", &f.CompressAfter)
	set("retention", &f.Retention)
	set("format", &f.Format)
	set("level", &f.Level)
}

// pump logs every line of r at info level until r is exhausted or ctx ends
func pump(ctx context.Context, r io.Reader, logger *slog.Logger) error {
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					if err != nil {
						return fmt.Errorf("read input: %w", err)
					}
				default:
				}
				return nil
			}
			logger.Info(line)
		}
	}
}
