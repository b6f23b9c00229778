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
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/lnashier/viper"
	"github.com/spacedata/impex"
	"github.com/spf13/cast"
)

// endpointNames maps the capability names accepted in configuration to
// endpoints.
var endpointNames = map[string]impex.Endpoint{
	"auth":          impex.EndpointAuth,
	"obstree":       impex.EndpointObsTree,
	"timetablelist": impex.EndpointListTimetables,
	"cataloglist":   impex.EndpointListCatalogs,
	"parameterlist": impex.EndpointListParameters,
	"gettimetable":  impex.EndpointGetTimetable,
	"getcatalog":    impex.EndpointGetCatalog,
	"getparameter":  impex.EndpointGetParameter,
	"getstatus":     impex.EndpointGetStatus,
	"isalive":       impex.EndpointIsAlive,
}

// parseCapabilities converts capability names to endpoints.
func parseCapabilities(names []string) ([]impex.Endpoint, error) {
	var out []impex.Endpoint
	for _, name := range names {
		e, ok := endpointNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("impex: unknown capability %q", name)
		}
		out = append(out, e)
	}
	return out, nil
}

// ProviderDef is one entry of a TOML providers file.
type ProviderDef struct {
	ServerURL    string
	Capabilities []string
	MaxChunkDays int
	OutputFormat string
	RootElement  string
	ProxyURL     string
	CacheDir     string
}

// LoadProviders reads a TOML file of named provider definitions, for example:
//
//	[amda]
//	ServerURL = "http://amda.irap.omp.eu/php/rest"
//	Capabilities = ["obstree", "getparameter", "timetablelist"]
func LoadProviders(path string) (map[string]ProviderDef, error) {
	defs := make(map[string]ProviderDef)
	if _, err := toml.DecodeFile(os.ExpandEnv(path), &defs); err != nil {
		return nil, fmt.Errorf("impex: reading providers file %s: %v", path, err)
	}
	return defs, nil
}

// ProviderConfig unmarshals a viper configuration for one provider,
// falling back to the providers file for fields the flags leave unset.
func ProviderConfig(cfg *viper.Viper) (impex.Config, error) {
	c := impex.Config{
		Name:         cfg.GetString("Provider.Name"),
		ServerURL:    os.ExpandEnv(cfg.GetString("Provider.ServerURL")),
		MaxChunkDays: cfg.GetInt("Provider.MaxChunkDays"),
		OutputFormat: cfg.GetString("Provider.OutputFormat"),
		ProxyURL:     os.ExpandEnv(cfg.GetString("Provider.ProxyURL")),
		CacheDir:     os.ExpandEnv(cfg.GetString("Provider.CacheDir")),
		Credentials: impex.Credentials{
			UserID:   cfg.GetString("Provider.UserID"),
			Password: cfg.GetString("Provider.Password"),
		},
	}
	capabilities, err := parseCapabilities(cast.ToStringSlice(cfg.Get("Provider.Capabilities")))
	if err != nil {
		return c, err
	}
	c.Capabilities = capabilities

	if c.ServerURL == "" {
		if path := cfg.GetString("providers"); path != "" {
			defs, err := LoadProviders(path)
			if err != nil {
				return c, err
			}
			def, ok := defs[c.Name]
			if !ok {
				return c, fmt.Errorf("impex: provider %s not in providers file", c.Name)
			}
			c.ServerURL = def.ServerURL
			c.NameMapping.RootElement = def.RootElement
			if len(def.Capabilities) > 0 {
				if c.Capabilities, err = parseCapabilities(def.Capabilities); err != nil {
					return c, err
				}
			}
			if def.MaxChunkDays > 0 {
				c.MaxChunkDays = def.MaxChunkDays
			}
			if def.OutputFormat != "" {
				c.OutputFormat = def.OutputFormat
			}
			if def.ProxyURL != "" {
				c.ProxyURL = def.ProxyURL
			}
			if def.CacheDir != "" {
				c.CacheDir = os.ExpandEnv(def.CacheDir)
			}
		}
	}
	if c.ServerURL == "" {
		return c, fmt.Errorf("impex: you need to specify the provider server URL " +
			"in the 'Provider.ServerURL' configuration variable")
	}
	return c, nil
}

// newProvider builds a provider with a fresh registry from the
// configuration.
func newProvider(cfg *viper.Viper) (*impex.Provider, error) {
	c, err := ProviderConfig(cfg)
	if err != nil {
		return nil, err
	}
	return impex.NewProvider(c, impex.NewRegistry()), nil
}

// timeLayouts are the formats accepted for the --start and --stop flags.
var timeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseTimeFlag(name, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("impex: you need to specify the --%s flag", name)
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("impex: unrecognized --%s value %q", name, s)
}

// parseTimes parses the start and stop flags and checks their ordering.
func parseTimes(start, stop string) (time.Time, time.Time, error) {
	startT, err := parseTimeFlag("start", start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	stopT, err := parseTimeFlag("stop", stop)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !startT.Before(stopT) {
		return time.Time{}, time.Time{}, fmt.Errorf("impex: start %v is not before stop %v", startT, stopT)
	}
	return startT, stopT, nil
}

// writeProduct writes a retrieval result as tab-separated text.
func writeProduct(w io.Writer, result impex.Product) error {
	switch r := result.(type) {
	case *impex.Variable:
		return writeVariable(w, r)
	case *impex.Dataset:
		names := make([]string, 0, len(r.Variables))
		for name := range r.Variables {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if _, err := fmt.Fprintf(w, "# variable: %s\n", name); err != nil {
				return err
			}
			if r.Variables[name] == nil {
				continue
			}
			if err := writeVariable(w, r.Variables[name]); err != nil {
				return err
			}
		}
		return nil
	case *impex.TimeTable:
		for _, tr := range r.Ranges {
			if _, err := fmt.Fprintf(w, "%s\t%s\n",
				tr.Start.Format(time.RFC3339), tr.Stop.Format(time.RFC3339)); err != nil {
				return err
			}
		}
		return nil
	case *impex.Catalog:
		for _, ev := range r.Events {
			if _, err := fmt.Fprintf(w, "%s\t%s\t%v\n",
				ev.Start.Format(time.RFC3339), ev.Stop.Format(time.RFC3339), ev.Meta); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("impex: cannot write result of type %T", result)
}

func writeVariable(w io.Writer, v *impex.Variable) error {
	if _, err := fmt.Fprintf(w, "# %s\ttime\t%s\n", v.Name, strings.Join(v.Columns, "\t")); err != nil {
		return err
	}
	width := 0
	if v.Len() > 0 {
		width = len(v.Values.Elements) / v.Len()
	}
	for i, t := range v.Time {
		row := make([]string, width)
		for j := 0; j < width; j++ {
			row[j] = fmt.Sprintf("%g", v.Values.Elements[i*width+j])
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\n", t.Format(time.RFC3339), strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return nil
}
