package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Context remembers the conversation the CLI last worked with, so `thread`
// and `send` can omit the counterparty argument.
type Context struct {
	// CounterpartyID is the last selected counterparty.
	CounterpartyID string `yaml:"counterparty,omitempty"`
	// CounterpartyName is the display name (for display only).
	CounterpartyName string `yaml:"counterparty_name,omitempty"`
	// ConversationID is the persistent conversation id, once known.
	ConversationID string `yaml:"conversation_id,omitempty"`
	// UpdatedAt is when the context was last modified.
	UpdatedAt time.Time `yaml:"updated_at,omitempty"`
}

// IsEmpty returns true if no counterparty is selected.
func (c *Context) IsEmpty() bool {
	return c.CounterpartyID == ""
}

// Select records a counterparty. The conversation id is reset unless the
// counterparty is unchanged.
func (c *Context) Select(counterpartyID, name string) {
	if c.CounterpartyID != counterpartyID {
		c.ConversationID = ""
	}
	c.CounterpartyID = counterpartyID
	c.CounterpartyName = name
	c.UpdatedAt = time.Now()
}

// AdoptConversation records the persistent id of the selected conversation.
func (c *Context) AdoptConversation(id string) {
	if id == "" || id == c.ConversationID {
		return
	}
	c.ConversationID = id
	c.UpdatedAt = time.Now()
}

// Clear removes all context.
func (c *Context) Clear() {
	c.CounterpartyID = ""
	c.CounterpartyName = ""
	c.ConversationID = ""
	c.UpdatedAt = time.Now()
}

// String returns a human-readable representation of the context.
func (c *Context) String() string {
	if c.IsEmpty() {
		return "(none)"
	}
	name := c.CounterpartyName
	if name == "" {
		name = c.CounterpartyID
	}
	if c.ConversationID != "" {
		return fmt.Sprintf("%s (conversation %s)", name, c.ConversationID)
	}
	return name
}

// ContextStore manages loading and saving context.
type ContextStore struct {
	path string
	mu   sync.RWMutex
}

// NewContextStore creates a new context store.
// If path is empty, uses <ConfigDir>/context.yaml.
func NewContextStore(path string) *ContextStore {
	if path == "" {
		path = filepath.Join(ConfigDir(), "context.yaml")
	}
	return &ContextStore{path: path}
}

// Path returns the context file path.
func (s *ContextStore) Path() string {
	return s.path
}

// Load reads the context from disk.
// Returns an empty context if the file doesn't exist.
func (s *ContextStore) Load() (*Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := &Context{}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ctx, nil
		}
		return nil, fmt.Errorf("failed to read context file: %w", err)
	}

	if err := yaml.Unmarshal(data, ctx); err != nil {
		return nil, fmt.Errorf("failed to parse context file: %w", err)
	}

	return ctx, nil
}

// Save writes the context to disk.
func (s *ContextStore) Save(ctx *Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create context directory: %w", err)
	}

	data, err := yaml.Marshal(ctx)
	if err != nil {
		return fmt.Errorf("failed to serialize context: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write context file: %w", err)
	}

	return nil
}

// Clear removes the context file.
func (s *ContextStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove context file: %w", err)
	}
	return nil
}
