// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package intent

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
)

// BuiltinCatalog returns the fixed catalog used when no catalog document is
// configured or the configured one cannot be read.
func BuiltinCatalog() []Definition {
	return []Definition{
		{
			Name:        "greeting",
			Description: "User greets the assistant",
			Patterns:    []string{"hello", "hi there", "good morning", "good afternoon", "good evening", "hey"},
			Action:      "respond_greeting",
		},
		{
			Name:        "create_task",
			Description: "Create a new task or to-do item",
			Patterns:    []string{"create a task", "add a task", "new task", "remind me to", "add to my list", "todo"},
			Entities:    []string{"title", "date", "priority"},
			Action:      "task_create",
		},
		{
			Name:                 "schedule_event",
			Description:          "Schedule a calendar event or meeting",
			Patterns:             []string{"schedule", "book a meeting", "set up a meeting", "add to calendar", "calendar event"},
			Entities:             []string{"title", "date", "time", "participants"},
			Action:               "calendar_create_event",
			RequiresConfirmation: true,
		},
		{
			Name:        "send_message",
			Description: "Send a message to someone",
			Patterns:    []string{"send a message", "message", "tell", "let them know", "dm"},
			Entities:    []string{"recipient", "content"},
			Action:      "message_send",
		},
		{
			Name:        "list_tasks",
			Description: "List open tasks",
			Patterns:    []string{"list my tasks", "show my tasks", "what's on my list", "my todos", "pending tasks"},
			Action:      "task_list",
		},
		{
			Name:        "check_calendar",
			Description: "Check upcoming calendar events",
			Patterns:    []string{"what's on my calendar", "my schedule", "upcoming events", "am i free", "check calendar"},
			Entities:    []string{"date"},
			Action:      "calendar_list_events",
		},
		{
			Name:        "help",
			Description: "User asks what the assistant can do",
			Patterns:    []string{"help", "what can you do", "how do i", "how does this work"},
			Action:      "respond_help",
		},
		{
			Name:        "gratitude",
			Description: "User thanks the assistant",
			Patterns:    []string{"thank you", "thanks", "appreciate it", "great job"},
			Action:      "respond_acknowledge",
		},
	}
}

// catalogDoc is the TOML document shape of a catalog file.
type catalogDoc struct {
	Intents []Definition `toml:"intents"`
}

// Catalog is the ordered set of intent definitions. Declaration order is
// significant: the matcher takes the first hit.
type Catalog struct {
	mu   sync.RWMutex
	defs []Definition
	path string
	log  *zap.Logger
}

// NewCatalog builds an in-memory catalog from the given definitions.
func NewCatalog(defs []Definition) *Catalog {
	return &Catalog{defs: defs, log: zap.NewNop()}
}

// LoadCatalog reads the catalog document at path. An empty path, a missing
// file, or a malformed document all fall back to the built-in catalog; the
// catalog load never fails.
func LoadCatalog(path string, log *zap.Logger) *Catalog {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Catalog{path: path, log: log.Named("catalog")}

	defs, err := readCatalogFile(path)
	if err != nil {
		if path != "" {
			c.log.Warn("catalog unusable, using built-in", zap.String("path", path), zap.Error(err))
		}
		c.defs = BuiltinCatalog()
		return c
	}
	c.defs = defs
	c.log.Info("catalog loaded", zap.String("path", path), zap.Int("intents", len(defs)))
	return c
}

func readCatalogFile(path string) ([]Definition, error) {
	if path == "" {
		return nil, os.ErrNotExist
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc catalogDoc
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(doc.Intents) == 0 {
		return nil, fmt.Errorf("catalog has no intents")
	}
	for _, d := range doc.Intents {
		if d.Name == "" {
			return nil, fmt.Errorf("catalog entry missing name")
		}
	}
	return doc.Intents, nil
}

// Definitions returns a snapshot of the catalog in declaration order.
func (c *Catalog) Definitions() []Definition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Find returns the definition with the given name.
func (c *Catalog) Find(name string) (Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, d := range c.defs {
		if d.Name == name {
			return d, true
		}
	}
	return Definition{}, false
}

// Len returns the number of definitions.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.defs)
}

// AppendPatterns adds new trigger patterns to the named intent, skipping
// duplicates. Existing patterns are never removed. Returns the number of
// patterns actually added; unknown intents add nothing.
func (c *Catalog) AppendPatterns(intentName string, patterns []string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.defs {
		if c.defs[i].Name != intentName {
			continue
		}
		existing := make(map[string]struct{}, len(c.defs[i].Patterns))
		for _, p := range c.defs[i].Patterns {
			existing[strings.ToLower(p)] = struct{}{}
		}

		added := 0
		for _, p := range patterns {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if _, dup := existing[strings.ToLower(p)]; dup {
				continue
			}
			c.defs[i].Patterns = append(c.defs[i].Patterns, p)
			existing[strings.ToLower(p)] = struct{}{}
			added++
		}
		return added
	}
	return 0
}

// Save writes the catalog document back to its path. The write is atomic:
// a temp file in the same directory is renamed over the original. A catalog
// without a path is in-memory only and Save is a no-op.
func (c *Catalog) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.path == "" {
		return nil
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(catalogDoc{Intents: c.defs}); err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create catalog dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".catalog-*")
	if err != nil {
		return fmt.Errorf("create temp catalog: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close catalog: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("replace catalog: %w", err)
	}
	return nil
}

// Reload re-reads the catalog document, replacing the in-memory set. A
// failed read keeps the current definitions.
func (c *Catalog) Reload() error {
	defs, err := readCatalogFile(c.path)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.defs = defs
	c.mu.Unlock()
	c.log.Info("catalog reloaded", zap.Int("intents", len(defs)))
	return nil
}
