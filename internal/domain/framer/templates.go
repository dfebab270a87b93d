package framer

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Selector forms accepted by Click and Fill
const (
	RefPrefix   = "@"
	XPathPrefix = "xpath="

	// RefAttribute marks elements that received a ref in the last snapshot
	RefAttribute = "data-debug-ref"
)

var (
	ErrEmptySelector = errors.New("selector is empty")
	ErrInvalidRef    = errors.New("invalid element ref")
	ErrEmptyCommand  = errors.New("command is empty")
	ErrInvalidArgs   = errors.New("invoke args are not valid JSON")

	refPattern = regexp.MustCompile(`^e[0-9]+$`)
)

// Locate returns a JavaScript statement that binds the target element to
// `el`, or throws when nothing matches.
func Locate(selector string) (string, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return "", ErrEmptySelector
	}

	switch {
	case strings.HasPrefix(selector, RefPrefix):
		ref := strings.TrimPrefix(selector, RefPrefix)
		if !refPattern.MatchString(ref) {
			return "", fmt.Errorf("%w: %q", ErrInvalidRef, selector)
		}
		return fmt.Sprintf(
			"const el = document.querySelector(%s);\nif (!el) throw new Error(%s);",
			quote(fmt.Sprintf(`[%s="%s"]`, RefAttribute, ref)),
			quote("Ref not found: "+selector),
		), nil

	case strings.HasPrefix(selector, XPathPrefix):
		expr := strings.TrimSpace(strings.TrimPrefix(selector, XPathPrefix))
		if expr == "" {
			return "", ErrEmptySelector
		}
		return fmt.Sprintf(
			"const el = document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;\nif (!el) throw new Error(%s);",
			quote(expr),
			quote("Element not found: "+selector),
		), nil

	default:
		return fmt.Sprintf(
			"const el = document.querySelector(%s);\nif (!el) throw new Error(%s);",
			quote(selector),
			quote("Element not found: "+selector),
		), nil
	}
}

// Click returns code that scrolls to and clicks the selected element
func Click(selector string) (string, error) {
	locate, err := Locate(selector)
	if err != nil {
		return "", err
	}
	return locate + `
el.scrollIntoView({block: 'center'});
el.click();
return true;`, nil
}

// Fill returns code that focuses the selected element, sets its value and
// fires bubbling input and change events
func Fill(selector, text string) (string, error) {
	locate, err := Locate(selector)
	if err != nil {
		return "", err
	}
	return locate + `
el.scrollIntoView({block: 'center'});
el.focus();
el.value = ` + quote(text) + `;
el.dispatchEvent(new Event('input', {bubbles: true}));
el.dispatchEvent(new Event('change', {bubbles: true}));
return true;`, nil
}

// Invoke returns code that calls an application command over the sandbox
// IPC and returns its result. Empty args become an empty object.
func (f *Framer) Invoke(command string, args json.RawMessage) (string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "", ErrEmptyCommand
	}
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if !json.Valid(args) {
		return "", ErrInvalidArgs
	}
	return fmt.Sprintf("const __args = %s;\nreturn await %s(%s, __args);", string(args), f.cfg.IPC, quote(command)), nil
}

// Snapshot returns the accessibility walker as injectable code
func Snapshot() string {
	return snapshotJS
}

// Screenshot returns code that renders the document into a PNG data URL
func Screenshot() string {
	return screenshotJS
}

const snapshotJS = `
return (() => {
  let refCounter = 0;

  const INTERACTIVE_TAGS = new Set([
    'A', 'BUTTON', 'INPUT', 'SELECT', 'TEXTAREA', 'DETAILS',
    'SUMMARY', 'LABEL', 'OPTION'
  ]);

  const INTERACTIVE_ROLES = new Set([
    'button', 'link', 'textbox', 'checkbox', 'radio', 'combobox',
    'listbox', 'menuitem', 'tab', 'switch', 'slider', 'spinbutton',
    'searchbox', 'option', 'menuitemcheckbox', 'menuitemradio',
    'treeitem'
  ]);

  const SKIPPED_TAGS = new Set(['script', 'style', 'noscript', 'template']);

  for (const stale of document.querySelectorAll('[data-debug-ref]')) {
    stale.removeAttribute('data-debug-ref');
  }

  function isInteractive(el) {
    if (INTERACTIVE_TAGS.has(el.tagName)) return true;
    const role = el.getAttribute('role');
    if (role && INTERACTIVE_ROLES.has(role)) return true;
    if (el.getAttribute('tabindex') !== null) return true;
    if (el.onclick || el.getAttribute('onclick')) return true;
    return false;
  }

  function isVisible(el) {
    if (el === document.body || el === document.documentElement) return true;
    const style = window.getComputedStyle(el);
    return style.display !== 'none' &&
      style.visibility !== 'hidden' &&
      style.opacity !== '0' &&
      el.offsetParent !== null;
  }

  function directText(el) {
    let text = '';
    for (const child of el.childNodes) {
      if (child.nodeType === Node.TEXT_NODE) {
        const t = child.textContent.trim();
        if (t) text += (text ? ' ' : '') + t;
      }
    }
    return text || null;
  }

  function walk(el) {
    if (el.nodeType !== Node.ELEMENT_NODE) return null;
    const tag = el.tagName.toLowerCase();
    if (SKIPPED_TAGS.has(tag)) return null;
    if (!isVisible(el)) return null;

    const interactive = isInteractive(el);
    let ref = null;
    if (interactive) {
      ref = 'e' + (++refCounter);
      el.setAttribute('data-debug-ref', ref);
    }

    const children = [];
    for (const child of el.children) {
      const node = walk(child);
      if (node) children.push(node);
    }

    const text = directText(el);
    const role = el.getAttribute('role');
    if (!interactive && !text && children.length <= 1 && !role) {
      return children[0] || null;
    }

    const node = { tag: tag, interactive: interactive };
    if (ref) node.ref = ref;
    if (role) node.role = role;
    if (text) node.text = text;

    const name = el.getAttribute('aria-label') || el.getAttribute('name') || el.getAttribute('placeholder');
    if (name) node.name = name;

    if (el.value !== undefined && el.value !== null && el.value !== '') {
      node.value = String(el.value);
    }

    if (children.length > 0) node.children = children;
    return node;
  }

  const tree = walk(document.body);
  return {
    title: document.title,
    url: window.location.href,
    elements: tree ? (tree.children || [tree]) : [],
  };
})();`

const screenshotJS = `
return await new Promise((resolve, reject) => {
  try {
    const canvas = document.createElement('canvas');
    canvas.width = window.innerWidth * window.devicePixelRatio;
    canvas.height = window.innerHeight * window.devicePixelRatio;
    const ctx = canvas.getContext('2d');
    if (!ctx) throw new Error('canvas 2d context unavailable');
    ctx.scale(window.devicePixelRatio, window.devicePixelRatio);

    const data = new XMLSerializer().serializeToString(document.documentElement);
    const svg = '<svg xmlns="http://www.w3.org/2000/svg" width="' + window.innerWidth +
      '" height="' + window.innerHeight + '"><foreignObject width="100%" height="100%">' +
      data + '</foreignObject></svg>';
    const img = new Image();
    const url = URL.createObjectURL(new Blob([svg], {type: 'image/svg+xml;charset=utf-8'}));
    img.onload = () => {
      ctx.drawImage(img, 0, 0);
      URL.revokeObjectURL(url);
      resolve(canvas.toDataURL('image/png'));
    };
    img.onerror = (e) => reject(new Error('screenshot capture failed: ' + e));
    img.src = url;
  } catch (e) {
    reject(e);
  }
});`

// ConsoleHook returns code that forwards console output and uncaught errors
// to the host's console command. Installing it twice is a no-op.
func (f *Framer) ConsoleHook() string {
	return fmt.Sprintf(consoleHookJS, f.cfg.IPC, quote(DefaultConsoleCommand))
}

const consoleHookJS = `(() => {
  if (window.__debugBridgeConsole) return;
  window.__debugBridgeConsole = true;

  const format = (v) => {
    if (typeof v === 'string') return v;
    if (v instanceof Error) return v.stack || String(v);
    try { return JSON.stringify(v); } catch (_) { return String(v); }
  };
  const send = (level, args) => {
    try {
      Promise.resolve(%[1]s(%[2]s, { level: level, message: args.map(format).join(' ') })).catch(() => {});
    } catch (_) {}
  };

  for (const level of ['log', 'info', 'warn', 'error', 'debug']) {
    const original = console[level];
    console[level] = function (...args) {
      send(level, args);
      if (original) return original.apply(console, args);
    };
  }

  window.addEventListener('error', (e) => send('error', [e.message]));
  window.addEventListener('unhandledrejection', (e) => send('error', ['Unhandled rejection: ' + format(e.reason)]));
})();`
