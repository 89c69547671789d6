package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/openagua/go-evaluator/dataset"
	"github.com/openagua/go-evaluator/engine"
	"github.com/openagua/go-evaluator/timestep"
)

// CompositeProvider queries providers in order. Earlier providers override later ones.
type CompositeProvider struct {
	providers []Provider
}

var _ Provider = (*CompositeProvider)(nil)

// NewCompositeProvider creates a provider that queries the given providers in order. Nil
// providers are skipped.
func NewCompositeProvider(providers ...Provider) *CompositeProvider {
	p := &CompositeProvider{}
	for _, provider := range providers {
		if provider != nil {
			p.providers = append(p.providers, provider)
		}
	}
	return p
}

// FetchAttributeDataset returns the dataset of the first provider that has one. A provider
// failure other than engine.ErrNotFound stops the search.
func (p *CompositeProvider) FetchAttributeDataset(ctx context.Context, scenarioID int64, ref dataset.ResourceRef) (*dataset.Dataset, error) {
	for i, provider := range p.providers {
		ds, err := provider.FetchAttributeDataset(ctx, scenarioID, ref)
		if errors.Is(err, engine.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("error from provider %d: %w", i, err)
		}
		return ds, nil
	}
	return nil, fmt.Errorf("%w: %s in %d providers", engine.ErrNotFound, ref, len(p.providers))
}

// FetchScenarioCalendar returns the calendar of the first provider that has one. Providers
// without a calendar or without the scenario are skipped.
func (p *CompositeProvider) FetchScenarioCalendar(ctx context.Context, scenarioID int64) (timestep.Settings, error) {
	var errs []error
	for i, provider := range p.providers {
		s, err := provider.FetchScenarioCalendar(ctx, scenarioID)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, engine.ErrNoCalendar) && !errors.Is(err, engine.ErrNotFound) {
			return timestep.Settings{}, fmt.Errorf("error from provider %d: %w", i, err)
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return timestep.Settings{}, engine.ErrNoCalendar
	}
	return timestep.Settings{}, errors.Join(errs...)
}
