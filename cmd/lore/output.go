package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/ersonp/lore-state/internal/domain/entities"
)

var (
	heading = color.New(color.Bold).SprintFunc()
	dim     = color.New(color.Faint).SprintFunc()
	warn    = color.New(color.FgYellow).SprintFunc()
)

// checkFormat validates an output format flag.
func checkFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q, valid formats: %s", format, strings.Join(validFormats, ", "))
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// shortID abbreviates a UUID for table output.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func formatAttributes(attrs []*entities.Attribute) string {
	if len(attrs) == 0 {
		return dim("(no attributes)")
	}
	var b strings.Builder
	for _, a := range attrs {
		fmt.Fprintf(&b, "  %-20s %s %s\n", a.Key, a.Value.String(), dim(cycleRange(a.StartCycle, a.EndCycle)))
	}
	return strings.TrimRight(b.String(), "\n")
}

// cycleRange renders a validity range such as "[3, 7)" or "[3, now)".
func cycleRange(start int, end *int) string {
	if end == nil {
		return fmt.Sprintf("[%d, now)", start)
	}
	return fmt.Sprintf("[%d, %d)", start, *end)
}

func entityName(e *entities.Entity) string {
	if e == nil {
		return "unknown"
	}
	return e.Name
}
