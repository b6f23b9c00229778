/*
Copyright © 2026 the Impex authors.
This file is part of Impex.

Impex is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Impex is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Impex.  If not, see <http://www.gnu.org/licenses/>.
*/

package impexutil

import (
	"fmt"
	"os"

	"github.com/lnashier/viper"
	log "github.com/sirupsen/logrus"
	"github.com/spacedata/impex"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to Impex.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel sets the logging verbosity: debug, info, warning or error.`,
			defaultVal: "warning",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "providers",
			usage: `
              providers specifies a TOML file of named provider definitions.
              When Provider.ServerURL is not set, the definition matching
              Provider.Name is used.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Provider.Name",
			usage: `
              Provider.Name tags the provider in inventories, cache keys and logs.`,
			defaultVal: "amda",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Provider.ServerURL",
			usage: `
              Provider.ServerURL is the base URL of the provider's endpoint
              scripts, for example http://amda.irap.omp.eu/php/rest.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Provider.Capabilities",
			usage: `
              Provider.Capabilities lists the endpoints the provider serves:
              auth, obstree, timetablelist, cataloglist, parameterlist,
              gettimetable, getcatalog, getparameter, getstatus, isalive.`,
			defaultVal: []string{"obstree", "getparameter"},
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Provider.MaxChunkDays",
			usage: `
              Provider.MaxChunkDays caps the duration of one fetch window,
              in days.`,
			defaultVal: impex.DefaultMaxChunkDays,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Provider.OutputFormat",
			usage: `
              Provider.OutputFormat selects the payload container requested
              from the provider, CDF or ASCII.`,
			defaultVal: "CDF",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Provider.UserID",
			usage: `
              Provider.UserID is the account name used for user-scoped and
              restricted requests.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Provider.Password",
			usage: `
              Provider.Password is the account password used for user-scoped
              and restricted requests.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Provider.ProxyURL",
			usage: `
              Provider.ProxyURL, when set, routes chunk fetches through a
              remote proxy holding pre-computed products.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Provider.CacheDir",
			usage: `
              Provider.CacheDir, when set, adds an on-disk layer to the
              chunk cache.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "start",
			usage: `
              start is the beginning of the requested time range (inclusive),
              for example 2009-01-01 or 2009-01-01T12:00:00.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{getCmd.Flags()},
		},
		{
			name: "stop",
			usage: `
              stop is the end of the requested time range (exclusive).`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{getCmd.Flags()},
		},
		{
			name: "output",
			shorthand: "o",
			usage: `
              output is the file the retrieved data is written to as
              tab-separated text. Empty prints a summary to standard output.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{getCmd.Flags()},
		},
		{
			name: "dataset",
			usage: `
              dataset restricts the parameter listing to one dataset.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{listCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("IMPEX")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(aliveCmd)
	Root.AddCommand(listCmd)
	Root.AddCommand(getCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("impex: problem reading configuration file: %v", err)
		}
	}
	level, err := log.ParseLevel(Cfg.GetString("LogLevel"))
	if err != nil {
		return fmt.Errorf("impex: parsing LogLevel: %v", err)
	}
	log.SetLevel(level)
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "impex",
	Short: "A client for Impex time-series data services.",
	Long: `Impex retrieves time-series scientific measurements from Impex web
services. Use the subcommands specified below to browse provider inventories
and download data.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'IMPEX_var' where 'var' is
the name of the variable to be set.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of Impex.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Impex v%s\n", impex.Version)
	},
	DisableAutoGenTag: true,
}

var aliveCmd = &cobra.Command{
	Use:   "alive",
	Short: "Check whether the provider answers requests.",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newProvider(Cfg)
		if err != nil {
			return err
		}
		if !p.IsServerUp() {
			return fmt.Errorf("impex: provider %s is not answering", p.Name())
		}
		fmt.Printf("%s is up\n", p.Name())
		return nil
	},
	DisableAutoGenTag: true,
}

var listCmd = &cobra.Command{
	Use:   "list [datasets|parameters|timetables|catalogs]",
	Short: "List the provider's products.",
	Long: `list prints the products of the given kind from the provider's
inventory, one identifier and display name per line.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newProvider(Cfg)
		if err != nil {
			return err
		}
		if err := p.UpdateInventory(); err != nil {
			return err
		}
		var nodes []*impex.Node
		switch args[0] {
		case "datasets":
			nodes = p.ListDatasets()
		case "parameters":
			nodes = p.ListParameters(Cfg.GetString("dataset"))
		case "timetables":
			nodes = p.ListTimetables()
		case "catalogs":
			nodes = p.ListCatalogs()
		default:
			return fmt.Errorf("impex: unknown product kind %q", args[0])
		}
		for _, n := range nodes {
			fmt.Printf("%s\t%s\n", n.UID, n.Name)
		}
		return nil
	},
	DisableAutoGenTag: true,
}

var getCmd = &cobra.Command{
	Use:   "get [product]",
	Short: "Retrieve a product.",
	Long: `get downloads the named product. Parameters and datasets need the
--start and --stop flags; timetables and catalogs ignore them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newProvider(Cfg)
		if err != nil {
			return err
		}
		if err := p.UpdateInventory(); err != nil {
			return err
		}
		start, stop, err := parseTimes(Cfg.GetString("start"), Cfg.GetString("stop"))
		if err != nil {
			return err
		}
		result, err := p.GetData(args[0], start, stop)
		if err != nil {
			return err
		}
		if result == nil {
			fmt.Println("no data")
			return nil
		}

		out := os.Stdout
		if f := Cfg.GetString("output"); f != "" {
			out, err = os.Create(os.ExpandEnv(f))
			if err != nil {
				return fmt.Errorf("impex: creating output file: %v", err)
			}
			defer out.Close()
		}
		return writeProduct(out, result)
	},
	DisableAutoGenTag: true,
}
