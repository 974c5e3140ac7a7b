// Package skills implements the Skill Registry & Logger (spec.md §4.9):
// an in-memory dictionary of reusable skill descriptions, upserted by
// id, plus an append-only newline-delimited log of every registry
// interaction. Grounded on the teacher's internal/common/logger's
// O_APPEND|O_CREATE file-handling idiom and julianknutsen-gascity's
// github.com/gofrs/flock for safe concurrent append.
package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/kandev/mc-agent-core/internal/clock"
	"github.com/kandev/mc-agent-core/internal/gameclient"
	"github.com/kandev/mc-agent-core/internal/obslog"
)

// Skill is a registered reusable procedure description.
type Skill struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Steps       []string `json:"steps"`
	Tags        []string `json:"tags,omitempty"`
}

// record is one append-only log line.
type record struct {
	Level     string         `json:"level"`
	Event     string         `json:"event"`
	Timestamp string         `json:"timestamp"`
	Context   map[string]any `json:"context,omitempty"`
}

// Registry holds registered skills in memory and logs every
// registerSkill/invokeSkill/skillExplore call to stdout and an
// append-only history file.
type Registry struct {
	clk clock.Clock
	log *obslog.Logger

	mu     sync.Mutex
	byID   map[string]Skill
	order  []string
	path   string
	fileOK bool
	lock   *flock.Flock
}

// New builds a Registry. historyPath is the NDJSON log file; it is
// prepared lazily on first write, not here.
func New(historyPath string, clk clock.Clock, log *obslog.Logger) *Registry {
	return &Registry{
		clk:  clk,
		log:  log.WithFields(zap.String("component", "skills")),
		byID: make(map[string]Skill),
		path: historyPath,
	}
}

// RegisterSkill upserts a skill by id. Every string field is trimmed;
// id/title/description must be non-empty and steps must be non-empty,
// per spec.md §4.9.
func (r *Registry) RegisterSkill(id, title, description string, steps, tags []string) (Skill, error) {
	id = strings.TrimSpace(id)
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	steps = trimAll(steps)
	tags = trimAll(tags)

	if id == "" || title == "" || description == "" || len(steps) == 0 {
		return Skill{}, fmt.Errorf("registerSkill requires a non-empty id, title, description, and steps")
	}

	s := Skill{ID: id, Title: title, Description: description, Steps: steps, Tags: tags}

	r.mu.Lock()
	if _, exists := r.byID[id]; !exists {
		r.order = append(r.order, id)
	}
	r.byID[id] = s
	r.mu.Unlock()

	r.appendRecord("info", "skill.register", map[string]any{"id": id, "title": title})
	return s, nil
}

// InvokeSkill looks up a registered skill, announces it by title through
// chat, and returns its steps. Returns an error if id is unknown.
func (r *Registry) InvokeSkill(ctx context.Context, client gameclient.Client, id string, skillCtx map[string]any) ([]string, error) {
	r.mu.Lock()
	s, ok := r.byID[id]
	r.mu.Unlock()

	if !ok {
		r.appendRecord("warn", "skill.invoke.missing", map[string]any{"id": id})
		return nil, fmt.Errorf("skill %q is not registered", id)
	}

	r.appendRecord("info", "skill.invoke", map[string]any{"id": id, "context": skillCtx})
	if client != nil {
		_ = client.Chat(ctx, "invoking skill: "+s.Title)
	}
	return s.Steps, nil
}

// SkillExplore logs an exploratory hint request and chats a fixed hint
// back, without requiring the skill to already be registered.
func (r *Registry) SkillExplore(ctx context.Context, client gameclient.Client, id, description string, skillCtx map[string]any) {
	r.appendRecord("info", "skill.explore", map[string]any{"id": id, "description": description, "context": skillCtx})
	if client != nil {
		_ = client.Chat(ctx, "exploring approach for: "+description)
	}
}

// Skills returns every registered skill, in registration order.
func (r *Registry) Skills() []Skill {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Skill, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// appendRecord writes one NDJSON line to stdout unconditionally, and to
// the history file if it can be prepared. A failure to prepare the file
// degrades gracefully: preparation is retried on every write, a warning
// is logged on each failure, and in-memory/stdout logging continues.
func (r *Registry) appendRecord(level, event string, context map[string]any) {
	rec := record{Level: level, Event: event, Timestamp: r.clk.Now().UTC().Format(time.RFC3339), Context: context}
	data, err := json.Marshal(rec)
	if err != nil {
		r.log.WithError(err).Warn("failed to marshal skill log record")
		return
	}
	fmt.Println(string(data))
	r.writeHistory(data)
}

func (r *Registry) writeHistory(line []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.fileOK {
		if err := r.prepareLocked(); err != nil {
			r.log.WithError(err).Warn("skill history log unavailable, continuing without it")
			return
		}
	}

	if err := r.lock.Lock(); err != nil {
		r.log.WithError(err).Warn("failed to acquire skill history log lock")
		return
	}
	defer r.lock.Unlock()

	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		r.log.WithError(err).Warn("failed to open skill history log for append")
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		r.log.WithError(err).Warn("failed to append to skill history log")
	}
}

// prepareLocked creates the history file's parent directory and an
// empty file if one does not already exist. Caller holds r.mu.
func (r *Registry) prepareLocked() error {
	if r.path == "" {
		return fmt.Errorf("skills: empty history path")
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	_ = f.Close()

	r.lock = flock.New(r.path + ".lock")
	r.fileOK = true
	return nil
}
