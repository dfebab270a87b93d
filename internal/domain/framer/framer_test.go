package framer

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/debugbridge/internal/shared/id"
)

func TestIsExpression(t *testing.T) {
	tests := []struct {
		name string
		code string
		want bool
	}{
		{"arithmetic", "1 + 1", true},
		{"property access", "document.title", true},
		{"identifier starting with keyword", "document.querySelectorAll('a').length", true},
		{"identifier starting with let", "letters.length", true},
		{"trailing semicolon", "document.title;", true},
		{"if statement", "if (true) { return 1 }", false},
		{"if without space", "if(x) return 1", false},
		{"explicit return", "return 42", false},
		{"bare return", "return;", false},
		{"const declaration", "const x = 1", false},
		{"let declaration", "let x = 1", false},
		{"var declaration", "var x = 1", false},
		{"for loop", "for (const a of b) {}", false},
		{"while loop", "while(true) {}", false},
		{"do loop", "do { x++ } while (x < 3)", false},
		{"switch", "switch (x) {}", false},
		{"throw", "throw new Error('x')", false},
		{"try block", "try{ a() } catch (e) {}", false},
		{"class", "class A {}", false},
		{"function", "function f() {}", false},
		{"async function", "async function f() {}", false},
		{"multi line expression", "1 +\n1", false},
		{"multi line statements", "const a = 1;\nreturn a;", false},
		{"empty", "   ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsExpression(tt.code))
		})
	}
}

func TestBody(t *testing.T) {
	assert.Equal(t, "return (1 + 1\n);", Body("1 + 1"))
	assert.Equal(t, "return (document.title\n);", Body("  document.title;  "))

	stmt := "if (true) { return 1 }"
	assert.Equal(t, stmt, Body(stmt))

	multi := "const a = 1;\nreturn a"
	assert.Equal(t, multi, Body(multi))
}

func TestFrameIsDeterministic(t *testing.T) {
	f := New(DefaultConfig())
	callID := id.NewCallID()

	first := f.Frame(callID, "document.title")
	second := f.Frame(callID, "document.title")

	assert.Equal(t, first, second)
	assert.Contains(t, first, `"`+callID.String()+`"`)
	assert.Contains(t, first, `window.__TAURI_INTERNALS__.invoke("plugin:debug-bridge|eval_callback", __outcome)`)
	assert.Equal(t, 1, strings.Count(first, DefaultIPC+"("), "callback must have a single call site")
}

func TestFrameEscapesCallbackCommand(t *testing.T) {
	f := New(Config{IPC: "host.call", CallbackCommand: `cb'"</script>`})
	framed := f.Frame(id.CallID("call_1"), "1")

	assert.Contains(t, framed, "host.call(")
	assert.NotContains(t, framed, "</script>")
}

// runFramed executes framed code in a bare goja runtime with a recording IPC
func runFramed(t *testing.T, code string) []map[string]any {
	t.Helper()

	vm := goja.New()
	var calls []map[string]any

	ipc := func(call goja.FunctionCall) goja.Value {
		payload := call.Argument(1).Export()
		data, err := json.Marshal(payload)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(data, &decoded))
		decoded["__command"] = call.Argument(0).String()
		calls = append(calls, decoded)

		promise, resolve, _ := vm.NewPromise()
		_ = resolve(goja.Undefined())
		return vm.ToValue(promise)
	}

	require.NoError(t, vm.Set("ipc", ipc))

	f := New(Config{IPC: "ipc", CallbackCommand: DefaultCallbackCommand})
	_, err := vm.RunString(f.Frame(id.CallID("call_test"), code))
	require.NoError(t, err)

	return calls
}

func TestFramedCodeReportsExactlyOnce(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		success   bool
		value     any
		errSubstr string
	}{
		{"expression", "1 + 1", true, float64(2), ""},
		{"string expression", "'Demo'", true, "Demo", ""},
		{"statement with return", "if (true) { return 1 }", true, float64(1), ""},
		{"no return yields null", "const a = 1;\na + 1;", true, nil, ""},
		{"awaited promise", "const v = await Promise.resolve(7);\nreturn v * 2;", true, float64(14), ""},
		{"throw", "throw new Error('x')", false, nil, "x"},
		{"rejected promise", "return await Promise.reject(new Error('nope'))", false, nil, "nope"},
		{"throw non error", "throw null", false, nil, "null"},
		{"object value", "({a: [1, 2]})", true, map[string]any{"a": []any{float64(1), float64(2)}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := runFramed(t, tt.code)
			require.Len(t, calls, 1)

			got := calls[0]
			assert.Equal(t, DefaultCallbackCommand, got["__command"])
			assert.Equal(t, "call_test", got["id"])
			assert.Equal(t, tt.success, got["success"])
			if tt.success {
				assert.Equal(t, tt.value, got["value"])
				assert.Nil(t, got["error"])
			} else {
				assert.Nil(t, got["value"])
				assert.Contains(t, got["error"], tt.errSubstr)
			}
		})
	}
}

func TestFramedCodeUnserializableValue(t *testing.T) {
	calls := runFramed(t, "const a = {};\na.self = a;\nreturn a;")
	require.Len(t, calls, 1)
	assert.Equal(t, false, calls[0]["success"])
}
