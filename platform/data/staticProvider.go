package data

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/spf13/afero"

	"github.com/openagua/go-evaluator/dataset"
	"github.com/openagua/go-evaluator/engine"
	"github.com/openagua/go-evaluator/timestep"
)

// StaticProvider serves a fixed set of datasets and one calendar for every scenario.
type StaticProvider struct {
	datasets map[dataset.ResourceRef]*dataset.Dataset
	calendar *timestep.Settings
}

var _ Provider = (*StaticProvider)(nil)

// NewStaticProvider serves datasets keyed by resource attribute key. A nil calendar makes
// FetchScenarioCalendar fail with engine.ErrNoCalendar.
func NewStaticProvider(datasets map[string]*dataset.Dataset, calendar *timestep.Settings) (*StaticProvider, error) {
	p := &StaticProvider{
		datasets: make(map[dataset.ResourceRef]*dataset.Dataset, len(datasets)),
		calendar: calendar,
	}
	for key, ds := range datasets {
		ref, err := dataset.ParseKey(key)
		if err != nil {
			return nil, err
		}
		if ds == nil {
			return nil, fmt.Errorf("dataset %s is nil", key)
		}
		p.datasets[ref] = ds
	}
	return p, nil
}

// fixture is the file form of a StaticProvider.
type fixture struct {
	Calendar *struct {
		Start string `json:"start"`
		End   string `json:"end"`
		Span  string `json:"span"`
	} `json:"calendar"`
	Datasets map[string]*dataset.Dataset `json:"datasets"`
}

// LoadStaticProvider reads a JSON fixture:
//
//	{"calendar": {"start": "2020-01-01", "end": "2020-12-31", "span": "day"},
//	 "datasets": {"node/1/2": {"type": "scalar", "value": "3.5", "metadata": {}}}}
func LoadStaticProvider(fsys afero.Fs, path string) (*StaticProvider, error) {
	raw, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var f fixture
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode fixture %s: %w", path, err)
	}

	var cal *timestep.Settings
	if f.Calendar != nil {
		s := timestep.Settings{}
		if s.Start, err = timestep.ParseDate(f.Calendar.Start); err != nil {
			return nil, fmt.Errorf("fixture calendar start: %w", err)
		}
		if s.End, err = timestep.ParseDate(f.Calendar.End); err != nil {
			return nil, fmt.Errorf("fixture calendar end: %w", err)
		}
		if s.Span, err = timestep.ParseSpan(f.Calendar.Span); err != nil {
			return nil, fmt.Errorf("fixture calendar span: %w", err)
		}
		cal = &s
	}
	return NewStaticProvider(f.Datasets, cal)
}

// Len is the number of datasets served.
func (p *StaticProvider) Len() int {
	return len(p.datasets)
}

// FetchAttributeDataset returns a copy of the dataset of ref.
func (p *StaticProvider) FetchAttributeDataset(_ context.Context, _ int64, ref dataset.ResourceRef) (*dataset.Dataset, error) {
	ds, ok := p.datasets[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrNotFound, ref)
	}
	c := *ds
	return &c, nil
}

// FetchScenarioCalendar returns the fixture calendar.
func (p *StaticProvider) FetchScenarioCalendar(context.Context, int64) (timestep.Settings, error) {
	if p.calendar == nil {
		return timestep.Settings{}, engine.ErrNoCalendar
	}
	return *p.calendar, nil
}

// Keys lists the served keys in order.
func (p *StaticProvider) Keys() []string {
	keys := make([]string, 0, len(p.datasets))
	for ref := range p.datasets {
		keys = append(keys, ref.Key())
	}
	slices.Sort(keys)
	return keys
}
