package cmd

import (
	"github.com/achilleasa/framebatch/config"
	"github.com/achilleasa/framebatch/log"
	"github.com/urfave/cli"
)

var logger = log.New("framebatch")

func setupLogging(ctx *cli.Context, job *config.Job) {
	if job != nil {
		if level, err := log.ParseLevel(job.Log.Level); err == nil {
			log.SetLevel(level)
		} else {
			logger.Warningf("ignoring log level: %v", err)
		}
	}

	if ctx.GlobalBool("v") {
		log.SetLevel(log.Info)
	}

	if ctx.GlobalBool("vv") {
		log.SetLevel(log.Debug)
	}
}
