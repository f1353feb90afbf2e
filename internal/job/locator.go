package job

import (
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/rezkam/umbridge-gateway/internal/joberr"
)

// unusedScriptPattern matches the model-specific job script naming
// convention (job_<model>.sh) so WarnUnused can flag scripts that do not
// correspond to any model the gateway actually serves.
var unusedScriptPattern = regexp.MustCompile(`^job_(.+)\.sh$`)

// ScriptLocator selects which job submission script to use for a given
// model, preferring a model-specific script over the shared default.
type ScriptLocator struct {
	dir            string
	defaultScript  string
	specificPrefix string
	specificSuffix string
}

// NewScriptLocator constructs a ScriptLocator rooted at dir. Model-specific
// scripts are named "job_<model>.sh"; the shared fallback is "job.sh".
func NewScriptLocator(dir string) *ScriptLocator {
	return &ScriptLocator{
		dir:            dir,
		defaultScript:  "job.sh",
		specificPrefix: "job_",
		specificSuffix: ".sh",
	}
}

// Select returns the path of the job script to use for model: the
// model-specific script if it exists, otherwise the default script.
// Returns joberr.ScriptMissing if neither exists.
func (l *ScriptLocator) Select(model string) (string, error) {
	specific := filepath.Join(l.dir, l.specificPrefix+model+l.specificSuffix)
	if fileExists(specific) {
		return specific, nil
	}

	def, err := l.DefaultScript()
	if err != nil {
		return "", joberr.ScriptMissing{Model: model}
	}
	return def, nil
}

// DefaultScript returns the path of the shared fallback script
// unconditionally, without considering any model-specific script. Used
// when enumerating models, before any specific model name is known, so
// that a scripts directory that happens to contain a file matching the
// model-specific naming convention for an empty model name never gets
// selected by accident.
func (l *ScriptLocator) DefaultScript() (string, error) {
	def := filepath.Join(l.dir, l.defaultScript)
	if fileExists(def) {
		return def, nil
	}
	return "", joberr.ScriptMissing{Model: ""}
}

// WarnUnused logs a warning for every model-specific job script present in
// the scripts directory that does not correspond to any name in models:
// a script that will never be selected usually means a typo'd model name.
func (l *ScriptLocator) WarnUnused(models []string) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return
	}

	known := make(map[string]bool, len(models))
	for _, m := range models {
		known[m] = true
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := unusedScriptPattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		model := match[1]
		if !known[model] {
			slog.Warn("job script does not match any served model", "script", entry.Name(), "model", model)
		}
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
