package framer

import (
	"encoding/json"
	"strings"

	"github.com/GriffinCanCode/debugbridge/internal/shared/id"
)

const (
	// DefaultIPC is the function the sandbox exposes for calling into the host
	DefaultIPC = "window.__TAURI_INTERNALS__.invoke"

	// DefaultCallbackCommand is the host command that receives outcomes
	DefaultCallbackCommand = "plugin:debug-bridge|eval_callback"

	// DefaultConsoleCommand is the host command that receives console lines
	DefaultConsoleCommand = "plugin:debug-bridge|console_callback"
)

// Config names the sandbox side of the callback channel
type Config struct {
	IPC             string `envconfig:"IPC" default:"window.__TAURI_INTERNALS__.invoke"`
	CallbackCommand string `envconfig:"CALLBACK_COMMAND" default:"plugin:debug-bridge|eval_callback"`
}

// DefaultConfig returns the callback channel used by the stock host plugin
func DefaultConfig() Config {
	return Config{
		IPC:             DefaultIPC,
		CallbackCommand: DefaultCallbackCommand,
	}
}

// Framer wraps caller code so that it reports its outcome through the
// sandbox's single callback primitive. Framing is a pure function of the
// call id and the code: the same pair always yields the same bytes.
type Framer struct {
	cfg Config
}

// New creates a framer. Empty config fields fall back to the defaults.
func New(cfg Config) *Framer {
	if cfg.IPC == "" {
		cfg.IPC = DefaultIPC
	}
	if cfg.CallbackCommand == "" {
		cfg.CallbackCommand = DefaultCallbackCommand
	}
	return &Framer{cfg: cfg}
}

// Config returns the effective callback configuration
func (f *Framer) Config() Config {
	return f.cfg
}

// Frame returns the wrapped code for one call.
//
// The wrapper runs the body inside an async function and awaits it, so a
// returned promise settles before the outcome is reported. The outcome is
// built inside a try/catch and handed to the callback from a single site
// after it, which makes exactly one callback per frame. Results are passed
// through JSON so values the IPC layer cannot carry fail inside the try
// instead of silently losing the callback.
func (f *Framer) Frame(callID id.CallID, code string) string {
	idLit := quote(string(callID))

	var b strings.Builder
	b.Grow(len(code) + 640)

	b.WriteString("(async () => {\n")
	b.WriteString("  let __outcome;\n")
	b.WriteString("  try {\n")
	b.WriteString("    const __value = await (async () => {\n")
	b.WriteString(Body(code))
	b.WriteString("\n    })();\n")
	b.WriteString("    const __json = JSON.stringify(__value);\n")
	b.WriteString("    __outcome = { id: ")
	b.WriteString(idLit)
	b.WriteString(", success: true, value: __json === undefined ? null : JSON.parse(__json), error: null };\n")
	b.WriteString("  } catch (__e) {\n")
	b.WriteString("    __outcome = { id: ")
	b.WriteString(idLit)
	b.WriteString(", success: false, value: null, error: String(__e) };\n")
	b.WriteString("  }\n")
	b.WriteString("  await ")
	b.WriteString(f.cfg.IPC)
	b.WriteString("(")
	b.WriteString(quote(f.cfg.CallbackCommand))
	b.WriteString(", __outcome);\n")
	b.WriteString("})()")

	return b.String()
}

// Body returns the function body for code: bare expressions gain an
// implicit return, everything else is passed through unchanged.
func Body(code string) string {
	if !IsExpression(code) {
		return code
	}
	expr := strings.TrimRight(strings.TrimSpace(code), "; \t")
	return "return (" + expr + "\n);"
}

// statementKeywords introduce code that cannot follow "return (".
var statementKeywords = []string{
	"async function",
	"return",
	"const",
	"let",
	"var",
	"if",
	"for",
	"while",
	"do",
	"switch",
	"throw",
	"try",
	"class",
	"function",
}

// IsExpression reports whether code should be treated as a bare expression.
//
// This is a convenience for one-liners such as "document.title", not a
// parser. Multi-line code is never treated as an expression; snippets with
// more than one statement must return their own value.
func IsExpression(code string) bool {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" || strings.ContainsAny(trimmed, "\r\n") {
		return false
	}
	for _, kw := range statementKeywords {
		if startsWithKeyword(trimmed, kw) {
			return false
		}
	}
	return true
}

// startsWithKeyword matches kw as a whole word, so "document" does not
// match "do" and "letter" does not match "let".
func startsWithKeyword(s, kw string) bool {
	if !strings.HasPrefix(s, kw) {
		return false
	}
	if len(s) == len(kw) {
		return true
	}
	return !isIdentChar(s[len(kw)])
}

func isIdentChar(c byte) bool {
	return c == '_' || c == '$' ||
		('a' <= c && c <= 'z') ||
		('A' <= c && c <= 'Z') ||
		('0' <= c && c <= '9') ||
		c >= 0x80
}

// quote renders s as a JavaScript string literal. JSON string syntax is a
// subset of JavaScript's once U+2028 and U+2029 are escaped, which
// encoding/json does by default.
func quote(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}
