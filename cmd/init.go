package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"
	"github.com/tarungka/couchstream/internal/settings"
)

type options struct {
	configPath string
	// false when --config was not given and the default file is absent
	configRequired bool
	version        bool
}

func initFlags(args []string) (options, error) {
	var opts options

	f := flag.NewFlagSet("couchstream", flag.ContinueOnError)
	f.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: couchstream [flags]")
		fmt.Fprintln(os.Stderr, f.FlagUsages())
	}

	f.StringVarP(&opts.configPath, "config", "c", settings.DefaultConfigFile, "path to the config file (toml, yaml or json)")
	f.BoolVar(&opts.version, "version", false, "show current version of the build")

	if err := f.Parse(args); err != nil {
		return opts, err
	}

	opts.configRequired = f.Changed("config")
	return opts, nil
}

// configFile returns the file to load, or "" to configure from the
// environment alone.
func (o options) configFile() string {
	if o.configRequired {
		return o.configPath
	}
	if _, err := os.Stat(o.configPath); err != nil {
		return ""
	}
	return o.configPath
}
