package logging

import (
	"regexp"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// LevelPattern assigns a level to every logger whose name matches Pattern. A pattern is a dotted
// logger name where any section may be "*", e.g. "hoopbot.*.shooter".
type LevelPattern struct {
	Pattern string `mapstructure:"pattern" json:"pattern"`
	Level   string `mapstructure:"level" json:"level"`
}

const (
	// e.g. "chassis" or "nav-engine".
	validSectionName = `[a-zA-Z0-9]+([_-]*[a-zA-Z0-9]+)*`
	// e.g. "chassis" or "*".
	validSectionWithWildcard = `(` + validSectionName + `|\*)`
	validPattern             = `^` + validSectionWithWildcard + `(\.` + validSectionWithWildcard + `)*$`
)

var (
	levelPatternRegexp = regexp.MustCompile(validPattern)
	globalRegistry     = newRegistry()
)

type registry struct {
	mu       sync.RWMutex
	loggers  map[string]Logger
	patterns []compiledPattern
}

type compiledPattern struct {
	matcher *regexp.Regexp
	level   Level
}

func newRegistry() *registry {
	return &registry{loggers: make(map[string]Logger)}
}

// getOrRegister records `logger` under `name`, replacing any earlier logger of the same name, and
// applies the last configured pattern that matches it. Replacing keeps a rebuilt subsystem from
// inheriting the appenders of the one it replaced.
func (r *registry) getOrRegister(name string, logger Logger) Logger {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loggers[name] = logger
	for _, p := range r.patterns {
		if p.matcher.MatchString(name) {
			logger.SetLevel(p.level)
		}
	}
	return logger
}

func (r *registry) loggerNamed(name string) (Logger, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	logger, ok := r.loggers[name]
	return logger, ok
}

func (r *registry) update(patterns []LevelPattern, defaultLevel Level) error {
	compiled := make([]compiledPattern, 0, len(patterns))
	for _, p := range patterns {
		if !levelPatternRegexp.MatchString(p.Pattern) {
			return errors.Errorf("invalid logger pattern %q", p.Pattern)
		}
		level, err := LevelFromString(p.Level)
		if err != nil {
			return errors.Wrapf(err, "pattern %q", p.Pattern)
		}
		matcher, err := regexp.Compile(buildRegexFromPattern(p.Pattern))
		if err != nil {
			return err
		}
		compiled = append(compiled, compiledPattern{matcher: matcher, level: level})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = compiled
	for name, logger := range r.loggers {
		level := defaultLevel
		for _, p := range compiled {
			if p.matcher.MatchString(name) {
				level = p.level
			}
		}
		logger.SetLevel(level)
	}
	return nil
}

// UpdateLevelPatterns validates and applies the patterns to every registered logger. Loggers
// matching no pattern are set to defaultLevel. Later patterns win over earlier ones.
func UpdateLevelPatterns(patterns []LevelPattern, defaultLevel Level) error {
	return globalRegistry.update(patterns, defaultLevel)
}

// LoggerNamed returns a registered logger.
func LoggerNamed(name string) (Logger, bool) {
	return globalRegistry.loggerNamed(name)
}

func buildRegexFromPattern(pattern string) string {
	var matcher strings.Builder
	matcher.WriteRune('^')
	for _, ch := range pattern {
		switch ch {
		case '*':
			matcher.WriteString(`.*`)
		case '.':
			matcher.WriteString(`\.`)
		default:
			matcher.WriteRune(ch)
		}
	}
	matcher.WriteRune('$')
	return matcher.String()
}
