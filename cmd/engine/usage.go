// This code was adapted from https://github.com/ethereum/go-ethereum/blob/master/cmd/geth/usage.go
package main

import (
	"io"
	"sort"

	"github.com/tutti-live/tutti/cmd/engine/flags"
	"github.com/urfave/cli/v2"
)

var appHelpTemplate = `NAME:
   {{.App.Name}} - {{.App.Usage}}
USAGE:
   {{.App.HelpName}} [options]{{if .App.Commands}} command [command options]{{end}} {{if .App.ArgsUsage}}{{.App.ArgsUsage}}{{else}}[arguments...]{{end}}
   {{if .App.Version}}
AUTHOR:
   {{range .App.Authors}}{{ . }}{{end}}
   {{end}}{{if .App.Commands}}
GLOBAL OPTIONS:
   {{range .App.Commands}}{{join .Names ", "}}{{ "\t" }}{{.Usage}}
   {{end}}{{end}}{{if .FlagGroups}}
{{range .FlagGroups}}{{.Name}} OPTIONS:
   {{range .Flags}}{{.}}
   {{end}}
{{end}}{{end}}{{if .App.Copyright }}
COPYRIGHT:
   {{.App.Copyright}}
VERSION:
   {{.App.Version}}
   {{end}}{{if len .App.Authors}}
   {{end}}
`

type flagGroup struct {
	Name  string
	Flags []cli.Flag
}

var appHelpFlagGroups = []flagGroup{
	{
		Name: "session",
		Flags: []cli.Flag{
			flags.SessionNameFlag,
			flags.GenreFlag,
			flags.ConfigFileFlag,
			flags.MaxParticipantsFlag,
			flags.AllowAudienceInputFlag,
			flags.AllowPerformerOverrideFlag,
		},
	},
	{
		Name: "consensus",
		Flags: []cli.Flag{
			flags.ConsensusIntervalFlag,
			flags.BatchIntervalFlag,
			flags.TemporalWindowFlag,
			flags.TemporalDecayFlag,
			flags.SpatialAlphaFlag,
			flags.SpatialDecayFlag,
			flags.TemporalBetaFlag,
			flags.ConsensusGammaFlag,
			flags.ClusterThresholdFlag,
			flags.SmoothingFactorFlag,
			flags.OutlierThresholdFlag,
		},
	},
	{
		Name: "ingress",
		Flags: []cli.Flag{
			flags.InputRateLimitFlag,
			flags.MaxInputsPerClientFlag,
		},
	},
	{
		Name: "transport",
		Flags: []cli.Flag{
			flags.WSAddrFlag,
			flags.AllowedOriginFlag,
			flags.MonitoringAddrFlag,
			flags.AuthTimeoutFlag,
			flags.PerformerSecretFlag,
		},
	},
	{
		Name: "sink",
		Flags: []cli.Flag{
			flags.OSCEnabledFlag,
			flags.OSCHostFlag,
			flags.OSCPortFlag,
		},
	},
	{
		Name: "log",
		Flags: []cli.Flag{
			flags.VerbosityFlag,
			flags.LogFormatFlag,
		},
	},
}

func init() {
	cli.AppHelpTemplate = appHelpTemplate

	type helpData struct {
		App        interface{}
		FlagGroups []flagGroup
	}

	originalHelpPrinter := cli.HelpPrinter
	cli.HelpPrinter = func(w io.Writer, tmpl string, data interface{}) {
		if tmpl == appHelpTemplate {
			for _, group := range appHelpFlagGroups {
				sort.Sort(cli.FlagsByName(group.Flags))
			}
			originalHelpPrinter(w, tmpl, helpData{data, appHelpFlagGroups})
		} else {
			originalHelpPrinter(w, tmpl, data)
		}
	}
}
