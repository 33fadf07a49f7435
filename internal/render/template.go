package render

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/cache"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/logging"
)

var (
	condPattern  = regexp.MustCompile(`(?s)\{\{#if\s+([\p{L}0-9_.]+)\s*\}\}(.*?)\{\{/if\}\}`)
	varPattern   = regexp.MustCompile(`\{\{\s*([\p{L}0-9_.]+)\s*\}\}`)
	blankPattern = regexp.MustCompile(`\n[ \t]*\n([ \t]*\n)+`)
)

// Engine expands template fragments. Only two constructs are supported:
// {{ name }} substitutes the string form of name (missing resolves to the
// empty string), and {{#if name}}...{{/if}} keeps its body iff name is a
// non-blank, non-"—" string. Outputs are cached by (path, value fingerprint).
type Engine struct {
	root      string
	overrides map[string]string
	cache     *cache.TTLCache[string, string]
	logger    logging.Logger
}

// NewEngine builds an engine reading fragments under root. An empty root
// serves only the built-in fragments.
func NewEngine(root string, logger logging.Logger) *Engine {
	out, err := cache.NewTTLCache[string, string](256, 10*time.Minute, nil)
	if err != nil {
		out = nil
	}
	return &Engine{
		root:      root,
		overrides: make(map[string]string),
		cache:     out,
		logger:    logging.OrNop(logger),
	}
}

// Register installs an in-memory fragment under rel, shadowing both the
// file tree and the built-in set.
func (e *Engine) Register(rel, tpl string) {
	e.overrides[rel] = tpl
}

// Render expands the fragment at rel with params. An unknown fragment
// renders to the empty string.
func (e *Engine) Render(rel string, params map[string]string) string {
	key := rel + "\x00" + fingerprint(params)
	if e.cache != nil {
		if out, ok := e.cache.Get(key); ok {
			return out
		}
	}
	out := RenderString(e.load(rel), params)
	if e.cache != nil {
		e.cache.Set(key, out)
	}
	return out
}

func (e *Engine) load(rel string) string {
	if tpl, ok := e.overrides[rel]; ok {
		return tpl
	}
	if e.root != "" {
		raw, err := os.ReadFile(filepath.Join(e.root, filepath.FromSlash(rel)))
		if err == nil {
			return string(raw)
		}
		if !os.IsNotExist(err) {
			e.logger.Warn("template %s unreadable: %v", rel, err)
		}
	}
	return builtinTemplates[rel]
}

// RenderString expands tpl against params: conditionals first, then
// variable substitution, then blank-line collapse.
func RenderString(tpl string, params map[string]string) string {
	if tpl == "" {
		return ""
	}
	out := condPattern.ReplaceAllStringFunc(tpl, func(m string) string {
		parts := condPattern.FindStringSubmatch(m)
		if truthyParam(params[parts[1]]) {
			return parts[2]
		}
		return ""
	})
	out = varPattern.ReplaceAllStringFunc(out, func(m string) string {
		parts := varPattern.FindStringSubmatch(m)
		return params[parts[1]]
	})
	out = blankPattern.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

func truthyParam(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && v != "—"
}

func fingerprint(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := fnv.New64a()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(params[k]))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
