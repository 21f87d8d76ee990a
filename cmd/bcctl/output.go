package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

var stdout io.Writer = os.Stdout

// printer is the text renderer handed to each command.
type printer struct {
	w *tabwriter.Writer
}

func (p *printer) kv(key string, value any) {
	fmt.Fprintf(p.w, "%s:\t%v\n", key, value)
}

func (p *printer) row(cols ...any) {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprint(c)
	}
	fmt.Fprintln(p.w, strings.Join(parts, "\t"))
}

func (p *printer) blank() { fmt.Fprintln(p.w) }

// render writes v in the selected --format. text delegates to the callback.
func render(v any, text func(*printer)) error {
	switch outputFormat {
	case formatJSON:
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		// Round-trip through JSON so YAML keys follow the json tags.
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(b, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	default:
		p := &printer{w: tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)}
		text(p)
		return p.w.Flush()
	}
}

func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:12]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
