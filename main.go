package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"helmetvision/internal/config"
	"helmetvision/internal/logger"
	"helmetvision/internal/report"
	"helmetvision/internal/ui"
	"helmetvision/processing/capture"
	"helmetvision/processing/detector"
	"helmetvision/processing/live"
	"helmetvision/processing/still"
)

func main() {
	app := &cli.App{
		Name:  "helmetvision",
		Usage: "detect riders with and without helmets in images and live video",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultConfigPath,
				Usage:   "path to the JSON config file",
			},
			&cli.StringFlag{
				Name:  "api-base-url",
				Usage: "inference service base URL",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "trace, debug, info, warn or error",
			},
		},
		Action: runGUI,
		Commands: []*cli.Command{
			{
				Name:      "predict",
				Usage:     "send one image to the inference service and print the result",
				ArgsUsage: "FILE",
				Action:    runPredict,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type deps struct {
	cfg *config.Config
	log *logrus.Logger
	det detector.Predictor
}

func setup(c *cli.Context) (*deps, error) {
	cfg, err := config.LoadConfigFile(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("api-base-url") {
		cfg.OverrideAPIBaseURL(c.String("api-base-url"))
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	level := cfg.GetLogLevel()
	if c.IsSet("log-level") {
		level = c.String("log-level")
	}
	log := logger.New(level, cfg.GetLogFile())

	det, err := detector.New(cfg, logger.Component(log, "detector"))
	if err != nil {
		return nil, err
	}

	log.WithFields(logger.Fields{
		"api":       cfg.GetAPIBaseURL(),
		"transport": cfg.GetTransport(),
	}).Info("inference client ready")

	return &deps{cfg: cfg, log: log, det: det}, nil
}

func (d *deps) close() {
	if c, ok := d.det.(io.Closer); ok {
		if err := c.Close(); err != nil {
			d.log.WithError(err).Warn("detector close failed")
		}
	}
}

func runGUI(c *cli.Context) error {
	d, err := setup(c)
	if err != nil {
		return err
	}
	defer d.close()

	cfg := d.cfg

	proc := live.NewProcessor(
		d.det,
		func() (capture.VideoStreamer, error) { return capture.NewStreamer(cfg) },
		live.Options{
			Interval:       cfg.GetLiveInterval(),
			JPEGQuality:    cfg.GetJPEGQuality(),
			RequestTimeout: cfg.GetRequestTimeout(),
			DiscardStale:   cfg.GetDiscardStale(),
		},
		logger.Component(d.log, "live"),
	)

	flow := still.NewFlow(d.det, logger.Component(d.log, "still"))

	app := ui.CreateApp(cfg, flow, proc, logger.Component(d.log, "ui"))
	app.Run()

	return app.Shutdown()
}

func runPredict(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("predict: missing FILE", 2)
	}

	d, err := setup(c)
	if err != nil {
		return err
	}
	defer d.close()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, detector.MaxImageBytes+1))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	flow := still.NewFlow(d.det, logger.Component(d.log, "still"))
	err = flow.SelectFile(still.File{
		Name:     filepath.Base(path),
		MIMEType: detector.SniffMIME(data),
		Size:     int64(len(data)),
		Data:     data,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	if err := flow.Predict(ctx); err != nil {
		return err
	}

	return report.Write(os.Stdout, flow.Snapshot().Result)
}
