package cmd

import (
	"fmt"

	"github.com/achilleasa/framebatch/props"
	"github.com/achilleasa/framebatch/scene"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// Pre-parse the template for the first frame and display the property
// namespaces it defines.
func InspectTemplate(ctx *cli.Context) error {
	job, err := loadJob(ctx)
	if err != nil {
		return err
	}

	tpl, err := newTemplate(job)
	if err != nil {
		return err
	}

	opts := tpl.Options()
	err = scene.PrepareWorkingFile(opts.Path, opts.WorkingPath, opts.Marker, scene.FrameParameter(job.Frames.First))
	if err != nil {
		return err
	}
	prelim, err := tpl.PreParse()
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(ctx.App.Writer)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Set", "Namespace", "Keys"})
	appendNamespaces(table, "scene", prelim.Scene)
	appendNamespaces(table, "config", prelim.Config)

	var missing int
	for _, key := range job.Template.Fragments {
		if _, ok := prelim.Get(key); !ok {
			logger.Warningf("queried fragment %s is not defined by the template", key)
			missing++
		}
	}
	table.SetFooter([]string{"", "MISSING FRAGMENTS", fmt.Sprintf("%d", missing)})

	table.Render()
	return nil
}

func appendNamespaces(table *tablewriter.Table, set string, p *props.Properties) {
	if p == nil {
		return
	}
	for _, ns := range p.Namespaces() {
		table.Append([]string{set, ns.Name, fmt.Sprintf("%d", ns.Count)})
	}
}
