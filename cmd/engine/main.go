// Package main launches the audience-participation performance engine.
package main

import (
	"fmt"
	"os"
	goruntime "runtime"

	joonix "github.com/joonix/log"
	"github.com/sirupsen/logrus"
	"github.com/tutti-live/tutti/cmd/engine/flags"
	"github.com/tutti-live/tutti/node"
	"github.com/tutti-live/tutti/runtime/version"
	"github.com/urfave/cli/v2"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var log = logrus.WithField("prefix", "main")

func startNode(ctx *cli.Context) error {
	engine, err := node.New(ctx)
	if err != nil {
		return err
	}
	engine.Start()
	return nil
}

func main() {
	app := cli.App{}
	app.Name = "tutti"
	app.Usage = "real-time consensus engine for audience-participatory performances"
	app.Version = version.GetVersion()
	app.Flags = flags.Flags
	app.Action = startNode
	app.Before = func(ctx *cli.Context) error {
		switch format := ctx.String(flags.LogFormatFlag.Name); format {
		case "text":
			formatter := new(prefixed.TextFormatter)
			formatter.TimestampFormat = "2006-01-02 15:04:05"
			formatter.FullTimestamp = true
			logrus.SetFormatter(formatter)
		case "fluentd":
			logrus.SetFormatter(joonix.NewFormatter())
		case "json":
			logrus.SetFormatter(&logrus.JSONFormatter{})
		default:
			return fmt.Errorf("unknown log format %s", format)
		}

		level, err := logrus.ParseLevel(ctx.String(flags.VerbosityFlag.Name))
		if err != nil {
			return err
		}
		logrus.SetLevel(level)

		goruntime.GOMAXPROCS(goruntime.NumCPU())
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}
