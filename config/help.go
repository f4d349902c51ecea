package config

import (
	"flag"
	"fmt"
	"os"
	"reflect"
	"strings"
	"text/tabwriter"
)

const HelpMessage = `
hust-run drives a device's mock location along a running route.

Usage:
  hustrun -mode <mode> [-config-path config.yaml] [flags]

Modes:
  run       recover open sessions, load or generate the route, log in,
            connect and run it; serves the control API while running
  generate  build a route from a seed (file, loop or out_and_back) and save it
  history   print recorded sessions and statistics as JSON
  recover   finalize sessions left open by a crash as ABORTED
  token     print a bearer token for the control API

Flags:
`

func PrintHelp() {
	if HelpMessage != "" {
		fmt.Printf("%s", HelpMessage)
	}
	flag.PrintDefaults()
}

var secretHints = []string{"PASSWORD", "SECRET", "KEY", "TOKEN"}

// PrintConfig prints every env-tagged setting. Secrets are masked.
func PrintConfig(cfg *Config) {
	w := tabwriter.NewWriter(os.Stderr, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "MODE\t%s\n", cfg.Mode)
	printStruct(w, reflect.ValueOf(*cfg))
	w.Flush()
}

func printStruct(w *tabwriter.Writer, v reflect.Value) {
	t := v.Type()
	for i := range t.NumField() {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		name, ok := field.Tag.Lookup("env")
		if !ok {
			if v.Field(i).Kind() == reflect.Struct {
				printStruct(w, v.Field(i))
			}
			continue
		}

		fmt.Fprintf(w, "%s\t%s\n", name, mask(name, fmt.Sprint(v.Field(i).Interface())))
	}
}

func mask(name, value string) string {
	if value == "" {
		return value
	}
	for _, hint := range secretHints {
		if strings.Contains(name, hint) {
			return "********"
		}
	}
	return value
}
