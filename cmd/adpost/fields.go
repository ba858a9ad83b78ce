package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/vbonduro/adpost/internal/fields"
)

// printRegistry writes one row per field, grouped by section.
func printRegistry(w io.Writer, reg *fields.Registry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "SECTION\tFIELD\tKIND\tREQUIRED\tRULE\tOPTIONS\n")
	for _, sec := range reg.Sections() {
		for _, def := range sec.Fields {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%d\n",
				sec.Title, def.Name, def.Kind, def.Required, describeRule(def), len(def.Options))
		}
	}
	return tw.Flush()
}

func describeRule(def *fields.Definition) string {
	var parts []string
	if def.MinLength > 0 {
		parts = append(parts, fmt.Sprintf("min %d", def.MinLength))
	}
	if def.MaxLength > 0 {
		parts = append(parts, fmt.Sprintf("max %d", def.MaxLength))
	}
	if def.MinItems > 0 {
		parts = append(parts, fmt.Sprintf("min %d files", def.MinItems))
	}
	if def.MaxItems > 0 {
		parts = append(parts, fmt.Sprintf("max %d files", def.MaxItems))
	}
	if p := def.Pattern(); p != "" {
		parts = append(parts, p)
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}
