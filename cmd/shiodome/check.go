package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/alanbriolat/shiodome"
	"github.com/alanbriolat/shiodome/internal/config"
)

func checkConfig(w io.Writer, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s: OK\n\n", path)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PLATFORM\tENABLED\tINTERVAL\tCHANNEL\tFILTERS\tOUTPUT")
	for _, family := range shiodome.Platforms {
		enabled := "no"
		if cfg.Enabled(family) {
			enabled = "yes"
		}
		for _, source := range cfg.Sources(family) {
			out := source.OutPath
			if out == "" {
				out = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				family, enabled, cfg.Interval(family), source, strings.Join(source.Filters, " | "), out)
		}
	}
	return tw.Flush()
}
