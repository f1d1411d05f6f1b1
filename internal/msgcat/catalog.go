// Package msgcat holds the user-facing message templates. Defaults are embedded and
// an optional directory of YAML files can override individual keys.
package msgcat

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"

	yaml "gopkg.in/yaml.v3"
)

const defaultFile = "messages.en.yaml"

//go:embed messages.en.yaml
var defaultFiles embed.FS

// Catalog maps dotted keys ("error.illegal_move") to text/template sources.
type Catalog struct {
	mu        sync.RWMutex
	templates map[string]string
	parsed    map[string]*template.Template
}

// New loads the embedded messages, then overrides from dir when it is set.
func New(overrideDir string) (*Catalog, error) {
	c := &Catalog{templates: map[string]string{}, parsed: map[string]*template.Template{}}
	raw, err := fs.ReadFile(defaultFiles, defaultFile)
	if err != nil {
		return nil, fmt.Errorf("read embedded messages: %w", err)
	}
	flat, err := flattenYAML(raw)
	if err != nil {
		return nil, fmt.Errorf("parse embedded messages: %w", err)
	}
	c.merge(flat)

	if dir := strings.TrimSpace(overrideDir); dir != "" {
		if err := c.applyDir(dir); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Default is the embedded catalog without overrides.
func Default() *Catalog {
	c, err := New("")
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) merge(flat map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range flat {
		c.templates[k] = v
		delete(c.parsed, k)
	}
}

func (c *Catalog) applyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read message dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	owner := map[string]string{}
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		flat, err := flattenYAML(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		for k := range flat {
			if prev, ok := owner[k]; ok {
				return fmt.Errorf("duplicate override key %q in %s and %s", k, prev, name)
			}
			owner[k] = name
		}
		c.merge(flat)
	}
	return nil
}

func flattenYAML(raw []byte) (map[string]string, error) {
	var root map[string]any
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, err
	}
	out := map[string]string{}
	if err := flatten(root, "", out); err != nil {
		return nil, err
	}
	return out, nil
}

func flatten(node any, prefix string, out map[string]string) error {
	switch v := node.(type) {
	case map[string]any:
		for k, child := range v {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if err := flatten(child, key, out); err != nil {
				return err
			}
		}
	case string:
		if prefix == "" {
			return errors.New("string value without key")
		}
		out[prefix] = v
	case nil:
	default:
		return fmt.Errorf("unsupported value at %s: %T", prefix, v)
	}
	return nil
}

// Render executes the template stored under key. Unknown keys and missing fields are errors.
func (c *Catalog) Render(key string, data any) (string, error) {
	key = strings.TrimSpace(key)
	tpl, err := c.lookup(key)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := tpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s: %w", key, err)
	}
	return b.String(), nil
}

// Text is Render with a fallback: on any error it returns fallback.
func (c *Catalog) Text(key string, data any, fallback string) string {
	if c == nil {
		return fallback
	}
	out, err := c.Render(key, data)
	if err != nil || strings.TrimSpace(out) == "" {
		return fallback
	}
	return out
}

// Has reports whether key exists.
func (c *Catalog) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.templates[key]
	return ok
}

func (c *Catalog) lookup(key string) (*template.Template, error) {
	c.mu.RLock()
	tpl, ok := c.parsed[key]
	src, known := c.templates[key]
	c.mu.RUnlock()
	if ok {
		return tpl, nil
	}
	if !known || strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("template not found: %s", key)
	}
	tpl, err := template.New(key).Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", key, err)
	}
	c.mu.Lock()
	c.parsed[key] = tpl
	c.mu.Unlock()
	return tpl, nil
}
