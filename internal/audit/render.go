package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aymerick/raymond"
	"github.com/mattn/go-runewidth"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Format selects a report rendering.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatTOML     Format = "toml"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON, FormatYAML, FormatTOML, FormatMarkdown:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	case "yml":
		return FormatYAML, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unsupported format %q (use text, json, yaml, toml or markdown)", s)
	}
}

// Render writes r to w in format f.
func Render(w io.Writer, r *Report, f Format) error {
	switch f {
	case FormatText, "":
		return renderText(w, r)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case FormatTOML:
		return toml.NewEncoder(w).Encode(r)
	case FormatMarkdown:
		return renderMarkdown(w, r)
	default:
		return fmt.Errorf("unsupported format %q", f)
	}
}

// Title returns the heading for a kind, e.g. "Unregistered Data File".
func (k Kind) Title() string {
	return cases.Title(language.English).String(strings.ReplaceAll(string(k), "-", " "))
}

func groupByKind(findings []Finding) map[Kind][]Finding {
	groups := make(map[Kind][]Finding)
	for _, f := range findings {
		groups[f.Kind] = append(groups[f.Kind], f)
	}
	return groups
}

func renderText(w io.Writer, r *Report) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Registry audit: %s\n", r.Root)
	fmt.Fprintf(&b, "Scanned %d manifests, %d indexes, %d data files, %d module files\n",
		r.Summary.Manifests, r.Summary.Indexes, r.Summary.DataFiles, r.Summary.ModuleFiles)

	groups := groupByKind(r.Findings)
	for _, kind := range Kinds {
		fs := groups[kind]
		if len(fs) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s (%d)\n", kind.Title(), len(fs))

		regWidth, pathWidth := 0, 0
		for _, f := range fs {
			regWidth = max(regWidth, runewidth.StringWidth(f.Registry))
			pathWidth = max(pathWidth, runewidth.StringWidth(f.Path))
		}
		for _, f := range fs {
			line := "  "
			if regWidth > 0 {
				line += runewidth.FillRight(f.Registry, regWidth) + "  "
			}
			line += runewidth.FillRight(f.Path, pathWidth)
			if f.Detail != "" {
				line += "  " + f.Detail
			}
			if f.Fixed {
				line += "  [fixed]"
			}
			b.WriteString(strings.TrimRight(line, " ") + "\n")
		}
	}

	switch {
	case r.Summary.Findings == 0:
		b.WriteString("\nRegistries are in sync.\n")
	case r.Summary.Remaining == 0:
		fmt.Fprintf(&b, "\n%d findings, all fixed.\n", r.Summary.Findings)
	default:
		fmt.Fprintf(&b, "\n%d findings, %d fixed, %d remaining.\n", r.Summary.Findings, r.Summary.Fixed, r.Summary.Remaining)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

const markdownTemplate = `# Registry audit

Root: ` + "`{{{root}}}`" + `

| Manifests | Indexes | Data files | Module files | Findings | Fixed | Remaining |
|---|---|---|---|---|---|---|
| {{summary.manifests}} | {{summary.indexes}} | {{summary.data_files}} | {{summary.module_files}} | {{summary.findings}} | {{summary.fixed}} | {{summary.remaining}} |
{{#each groups}}

## {{title}} ({{count}})

| Registry | Path | Detail | Fixed |
|---|---|---|---|
{{#each findings}}
| {{{registry}}} | {{{path}}} | {{{detail}}} | {{#if fixed}}yes{{else}}no{{/if}} |
{{/each}}
{{/each}}
{{#unless groups}}

Registries are in sync.
{{/unless}}
`

func renderMarkdown(w io.Writer, r *Report) error {
	byKind := groupByKind(r.Findings)
	var groups []map[string]interface{}
	for _, kind := range Kinds {
		fs := byKind[kind]
		if len(fs) == 0 {
			continue
		}
		rows := make([]map[string]interface{}, 0, len(fs))
		for _, f := range fs {
			rows = append(rows, map[string]interface{}{
				"registry": f.Registry,
				"path":     f.Path,
				"detail":   strings.ReplaceAll(f.Detail, "|", `\|`),
				"fixed":    f.Fixed,
			})
		}
		groups = append(groups, map[string]interface{}{
			"title":    kind.Title(),
			"count":    len(fs),
			"findings": rows,
		})
	}

	ctx := map[string]interface{}{
		"root": r.Root,
		"summary": map[string]interface{}{
			"manifests":    r.Summary.Manifests,
			"indexes":      r.Summary.Indexes,
			"data_files":   r.Summary.DataFiles,
			"module_files": r.Summary.ModuleFiles,
			"findings":     r.Summary.Findings,
			"fixed":        r.Summary.Fixed,
			"remaining":    r.Summary.Remaining,
		},
		"groups": groups,
	}

	out, err := raymond.Render(markdownTemplate, ctx)
	if err != nil {
		return fmt.Errorf("failed to render markdown report: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}
