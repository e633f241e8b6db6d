package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/baxromumarov/job-scraper/internal/scraper"
)

type targetFile struct {
	Targets []scraper.TargetConfig `yaml:"targets" json:"targets"`
}

// LoadTargets reads career targets from a YAML or JSON5 file holding a
// top-level "targets" list. Every target is validated and ids must be
// unique; all problems are reported together.
func LoadTargets(path string) ([]scraper.TargetConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets %s: %w", path, err)
	}
	var file targetFile
	if err := decode(path, data, &file); err != nil {
		return nil, fmt.Errorf("parse targets %s: %w", path, err)
	}
	if len(file.Targets) == 0 {
		return nil, fmt.Errorf("targets %s: no targets defined", path)
	}

	var errs []error
	seen := make(map[string]bool, len(file.Targets))
	for i := range file.Targets {
		t := &file.Targets[i]
		t.ID = strings.TrimSpace(t.ID)
		for j, k := range t.Strategies {
			t.Strategies[j] = scraper.StrategyKind(strings.ToLower(strings.TrimSpace(string(k))))
		}
		if err := t.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		key := strings.ToLower(t.ID)
		if seen[key] {
			errs = append(errs, fmt.Errorf("target %q: duplicate id", t.ID))
			continue
		}
		seen[key] = true
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return file.Targets, nil
}
