package ratelimit

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// RuleFile is the YAML document holding the rule set.
type RuleFile struct {
	Rules []*Rule `yaml:"rules"`
}

// Loader reads rate limit rules from a YAML file and watches it for
// changes, hot-swapping the target store's rule set on every valid write.
// A broken edit keeps the previous rules in force.
type Loader struct {
	path   string
	target *MemoryRuleStore
	logger *slog.Logger
}

// NewLoader creates a loader, performs the initial load into target, and
// returns an error if the file is missing or malformed.
func NewLoader(path string, target *MemoryRuleStore, logger *slog.Logger) (*Loader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{path: path, target: target, logger: logger}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Reload forces an immediate re-read of the rule file.
func (l *Loader) Reload() error {
	rules, err := l.load()
	if err != nil {
		return err
	}
	l.target.Replace(rules)
	l.logger.Info("rate limit rules loaded", "path", l.path, "count", len(rules))
	return nil
}

// Watch starts a background goroutine that hot-reloads the rules on file
// changes. Call the returned stop function to clean up.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("rule watcher: %w", err)
	}
	if err := w.Add(l.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("rule watcher add %s: %w", l.path, err)
	}

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if err := l.Reload(); err != nil {
						l.logger.Error("rule reload failed, keeping previous rules", "error", err)
					}
				}
			case <-w.Errors:
				// Ignore watcher errors.
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, nil
}

func (l *Loader) load() ([]*Rule, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", l.path, err)
	}
	var file RuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", l.path, err)
	}
	for i, r := range file.Rules {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rules %s: rule[%d]: %w", l.path, i, err)
		}
	}
	return file.Rules, nil
}
