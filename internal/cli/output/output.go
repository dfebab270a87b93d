package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/charmbracelet/lipgloss"
	"github.com/goccy/go-yaml"
)

// Format selects how values are rendered
type Format string

const (
	Text Format = "text"
	JSON Format = "json"
	YAML Format = "yaml"
)

// Formats lists the accepted format names
var Formats = []Format{Text, JSON, YAML}

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", s)
}

// styles used by the text format
type styles struct {
	key     lipgloss.Style
	null    lipgloss.Style
	ok      lipgloss.Style
	failure lipgloss.Style
	levels  map[string]lipgloss.Style
	dim     lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	level := func(color string) lipgloss.Style {
		return r.NewStyle().Bold(true).Foreground(lipgloss.Color(color))
	}
	return styles{
		key:     r.NewStyle().Foreground(lipgloss.Color("44")),
		null:    r.NewStyle().Foreground(lipgloss.Color("241")).Italic(true),
		ok:      r.NewStyle().Foreground(lipgloss.Color("114")),
		failure: r.NewStyle().Foreground(lipgloss.Color("203")).Bold(true),
		dim:     r.NewStyle().Foreground(lipgloss.Color("245")),
		levels: map[string]lipgloss.Style{
			"debug": level("245"),
			"info":  level("44"),
			"log":   level("250"),
			"warn":  level("214"),
			"error": level("203"),
			"fatal": level("196"),
			"panic": level("196"),
		},
	}
}

// Printer renders command results. Colors are used only when w is a
// terminal.
type Printer struct {
	w      io.Writer
	format Format
	styles styles
	docs   int
}

// New creates a printer for w
func New(w io.Writer, format Format) *Printer {
	if format == "" {
		format = Text
	}
	return &Printer{
		w:      w,
		format: format,
		styles: newStyles(lipgloss.NewRenderer(w)),
	}
}

// Format returns the printer's format
func (p *Printer) Format() Format {
	return p.format
}

// Print renders one value
func (p *Printer) Print(v any) error {
	generic, err := normalize(v)
	if err != nil {
		return err
	}

	switch p.format {
	case JSON:
		data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		_, err = fmt.Fprintf(p.w, "%s\n", data)
		return err

	case YAML:
		return p.yamlDoc(generic)

	default:
		var buf bytes.Buffer
		p.text(&buf, generic, 0)
		_, err := p.w.Write(buf.Bytes())
		return err
	}
}

// Stream renders one message from a WebSocket stream. Text output turns
// console and log lines into "LEVEL message".
func (p *Printer) Stream(data []byte) error {
	switch p.format {
	case JSON:
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			buf.Reset()
			buf.Write(data)
		}
		buf.WriteByte('\n')
		_, err := p.w.Write(buf.Bytes())
		return err

	case YAML:
		generic, err := normalize(json.RawMessage(data))
		if err != nil {
			return err
		}
		return p.yamlDoc(generic)
	}

	generic, err := normalize(json.RawMessage(data))
	if err != nil {
		_, err = fmt.Fprintf(p.w, "%s\n", data)
		return err
	}
	if line, ok := generic.(map[string]any); ok {
		level, _ := line["level"].(string)
		message, hasMessage := line["message"].(string)
		if level != "" && hasMessage {
			_, err := fmt.Fprintf(p.w, "%s %s\n", p.level(level), message)
			return err
		}
	}
	var buf bytes.Buffer
	p.text(&buf, generic, 0)
	_, err = p.w.Write(buf.Bytes())
	return err
}

// Outcome renders a call result: the value on success, the error text
// otherwise. It reports whether the call succeeded.
func (p *Printer) Outcome(success bool, value json.RawMessage, errText *string) (bool, error) {
	if p.format != Text {
		return success, p.Print(map[string]any{
			"success": success,
			"value":   value,
			"error":   errText,
		})
	}
	if !success {
		msg := "call failed"
		if errText != nil {
			msg = *errText
		}
		_, err := fmt.Fprintf(p.w, "%s %s\n", p.styles.failure.Render("error:"), msg)
		return false, err
	}
	if len(value) == 0 {
		value = json.RawMessage("null")
	}
	return true, p.Print(value)
}

// Done prints a short confirmation in text mode and nothing otherwise
func (p *Printer) Done(format string, args ...any) error {
	if p.format != Text {
		return nil
	}
	_, err := fmt.Fprintf(p.w, "%s %s\n", p.styles.ok.Render("✓"), fmt.Sprintf(format, args...))
	return err
}

func (p *Printer) level(level string) string {
	label := strings.ToUpper(level)
	style, ok := p.styles.levels[strings.ToLower(level)]
	if !ok {
		style = p.styles.dim
	}
	return style.Render(fmt.Sprintf("%-5s", label))
}

func (p *Printer) yamlDoc(v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	if p.docs > 0 {
		if _, err := io.WriteString(p.w, "---\n"); err != nil {
			return err
		}
	}
	p.docs++
	_, err = p.w.Write(data)
	return err
}

// ============================================================================
// Text rendering
// ============================================================================

func (p *Printer) text(buf *bytes.Buffer, v any, indent int) {
	pad := strings.Repeat("  ", indent)
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := val[k]
			if isContainer(child) && !isEmpty(child) {
				fmt.Fprintf(buf, "%s%s:\n", pad, p.styles.key.Render(k))
				p.text(buf, child, indent+1)
				continue
			}
			fmt.Fprintf(buf, "%s%s: %s\n", pad, p.styles.key.Render(k), p.scalar(child))
		}

	case []any:
		for i, item := range val {
			p.text(buf, item, indent)
			if indent == 0 && isContainer(item) && i < len(val)-1 {
				buf.WriteByte('\n')
			}
		}

	default:
		fmt.Fprintf(buf, "%s%s\n", pad, p.scalar(val))
	}
}

func (p *Printer) scalar(v any) string {
	switch val := v.(type) {
	case nil:
		return p.styles.null.Render("null")
	case string:
		return val
	case map[string]any:
		return "{}"
	case []any:
		return "[]"
	default:
		return fmt.Sprint(val)
	}
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case map[string]any:
		return len(val) == 0
	case []any:
		return len(val) == 0
	}
	return false
}

// normalize turns v into maps, slices and scalars through its JSON form.
// Integral numbers become int64 so YAML and text show them without a
// fraction.
func normalize(v any) (any, error) {
	var data []byte
	switch val := v.(type) {
	case json.RawMessage:
		data = val
	case []byte:
		data = val
	default:
		var err error
		if data, err = sonic.Marshal(v); err != nil {
			return nil, fmt.Errorf("encode value: %w", err)
		}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return numbers(generic), nil
}

func numbers(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			val[k] = numbers(child)
		}
		return val
	case []any:
		for i, child := range val {
			val[i] = numbers(child)
		}
		return val
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	default:
		return val
	}
}
