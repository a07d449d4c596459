package main

import (
	"fmt"
	"os"

	"github.com/achilleasa/framebatch/cmd"
	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "framebatch"
	app.Usage = "render animation frames from a parametrized scene template"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
		cli.StringFlag{
			Name:  "config, c",
			Usage: "job file; the built-in water animation job is used when omitted",
		},
		cli.StringFlag{
			Name:  "overrides",
			Usage: "optional file merged on top of the job file",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "render",
			Usage: "render every frame of the job",
			Description: `
For each frame the scene template is copied to the working file and every
placeholder is replaced by the frame index. The working file is parsed, the
queried mesh fragments are appended to the static scene and the result is
rendered until the halt deadline. The engine output is then moved to
<out-dir>/<prefix>_<frame>.png.`,
			Flags:  cmd.JobFlags,
			Action: cmd.RenderBatch,
		},
		{
			Name:      "frame",
			Usage:     "render a single frame",
			ArgsUsage: "frame_index",
			Flags:     cmd.JobFlags,
			Action:    cmd.RenderFrame,
		},
		{
			Name:      "describe",
			Usage:     "print the render description of a frame without rendering it",
			ArgsUsage: "frame_index",
			Flags: append([]cli.Flag{
				cli.StringFlag{
					Name:  "out, o",
					Usage: "write the description to this file instead of stdout",
				},
			}, cmd.JobFlags...),
			Action: cmd.DescribeFrame,
		},
		{
			Name:   "plan",
			Usage:  "list the frames of the job and their destinations",
			Flags:  cmd.JobFlags,
			Action: cmd.PlanBatch,
		},
		{
			Name:   "inspect",
			Usage:  "list the property namespaces defined by the scene template",
			Flags:  cmd.JobFlags,
			Action: cmd.InspectTemplate,
		},
	}

	if err := app.Run(os.Args); err != nil {
		if _, ok := err.(cli.ExitCoder); !ok {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}
}
