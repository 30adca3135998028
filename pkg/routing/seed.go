package routing

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/docket/pkg/observability"
	"github.com/platinummonkey/docket/pkg/principal"
)

// SeedFile is the on-disk route model catalog loaded at startup.
type SeedFile struct {
	Models []SeedModel `yaml:"models"`
}

// SeedModel is one route model definition in a seed file.
type SeedModel struct {
	Name  string         `yaml:"name"`
	Steps []StepTemplate `yaml:"steps"`
}

// LoadSeedFile parses a YAML route model catalog.
func LoadSeedFile(path string) (*SeedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var f SeedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	for _, m := range f.Models {
		if m.Name == "" {
			return nil, fmt.Errorf("%w: seed model with no name", ErrInvalidRouteModel)
		}
		if err := ValidateSteps(m.Steps); err != nil {
			return nil, fmt.Errorf("seed model %q: %w", m.Name, err)
		}
	}
	return &f, nil
}

// Seed upserts the catalog's models: existing models (by name) are
// updated in place, new ones are created owned by the given principal.
func Seed(ctx context.Context, store *ModelStore, f *SeedFile, p *principal.Principal, logger *observability.Logger) error {
	for _, m := range f.Models {
		existing, err := store.GetActiveByName(ctx, m.Name)
		if err != nil && !errors.Is(err, ErrModelNotFound) {
			return err
		}
		if existing != nil {
			if _, err := store.Update(ctx, existing.ID, m.Name, m.Steps, p.UserID); err != nil {
				return fmt.Errorf("failed to update seed model %q: %w", m.Name, err)
			}
			logger.WithField("model", m.Name).Debug("seed model updated")
			continue
		}
		if _, err := store.Create(ctx, m.Name, m.Steps, p); err != nil {
			return fmt.Errorf("failed to create seed model %q: %w", m.Name, err)
		}
		logger.WithField("model", m.Name).Info("seed model created")
	}
	return nil
}
