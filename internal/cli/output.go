package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/TimurManjosov/mockflow/internal/store"
	"github.com/TimurManjosov/mockflow/internal/workflow"
)

// OutputFormat specifies the output format for CLI commands
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// PrintScenarios outputs scenarios in the specified format
func PrintScenarios(w io.Writer, scenarios []store.Scenario, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(w, map[string][]store.Scenario{"scenarios": scenarios})
	case FormatYAML:
		return printYAML(w, scenarios)
	case FormatTable:
		table := tablewriter.NewWriter(w)
		table.Header("ID", "Name", "Description", "Updated At")
		for _, s := range scenarios {
			table.Append(s.ID, s.Name, truncate(s.Description, 40), s.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return table.Render()
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintTransitions outputs transitions in the specified format
func PrintTransitions(w io.Writer, transitions []store.Transition, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(w, map[string][]store.Transition{"transitions": transitions})
	case FormatYAML:
		return printYAML(w, transitions)
	case FormatTable:
		table := tablewriter.NewWriter(w)
		table.Header("ID", "Method", "Path", "Name", "Guards", "Effects", "Status")
		for _, t := range transitions {
			guards := len(t.Conditions.Fields) + len(t.Conditions.List)
			status := t.Response.Status
			if status == 0 {
				status = 200
			}
			table.Append(
				t.ID,
				t.Method,
				t.Path,
				truncate(t.Name, 30),
				strconv.Itoa(guards),
				strconv.Itoa(t.Effects.Len()),
				strconv.Itoa(status),
			)
		}
		return table.Render()
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintSimulation outputs a simulate result. The table form lists the routing
// trace followed by the response.
func PrintSimulation(w io.Writer, res *workflow.SimulateResult, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(w, res)
	case FormatYAML:
		return printYAML(w, res)
	case FormatTable:
		if res.Trace != nil {
			table := tablewriter.NewWriter(w)
			table.Header("Transition", "Stage", "Path", "Route", "Guard", "Selected")
			for _, c := range res.Trace.Candidates {
				guard := "-"
				if c.ConditionsPassed != nil {
					guard = strconv.FormatBool(*c.ConditionsPassed)
				}
				selected := ""
				if c.TransitionID == res.Trace.MatchedID {
					selected = "*"
				}
				table.Append(c.TransitionID, string(c.Stage), c.Path, strconv.FormatBool(c.RouteMatched), guard, selected)
			}
			if err := table.Render(); err != nil {
				return err
			}
		}
		if res.Response == nil {
			return nil
		}
		fmt.Fprintf(w, "status: %d (persisted: %t)\n", res.Response.Status, res.Persisted)
		return printJSON(w, res.Response.Body)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintDocument outputs a state document. Tables have no table form; JSON is
// used instead.
func PrintDocument(w io.Writer, doc *store.Document, format OutputFormat) error {
	if format == FormatYAML {
		return printYAML(w, doc)
	}
	return printJSON(w, doc)
}

func printJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func printYAML(w io.Writer, data any) error {
	encoder := yaml.NewEncoder(w)
	defer encoder.Close()
	encoder.SetIndent(2)
	return encoder.Encode(data)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}
