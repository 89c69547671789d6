package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openagua/go-evaluator/dataset"
	"github.com/openagua/go-evaluator/engine"
	"github.com/openagua/go-evaluator/timestep"
)

const datasetQuery = `
SELECT d.id, d.type, COALESCE(d.value, ''), COALESCE(u.abbreviation, ''),
       COALESCE(json_object_agg(m.key, m.value) FILTER (WHERE m.key IS NOT NULL), '{}'::json)::text
FROM "tResourceAttr" ra
JOIN "tResourceScenario" rs ON rs.resource_attr_id = ra.id
JOIN "tScenario" s ON s.id = rs.scenario_id
JOIN "tDataset" d ON d.id = rs.dataset_id
LEFT JOIN "tUnit" u ON u.id = d.unit_id
LEFT JOIN "tMetadata" m ON m.dataset_id = d.id
WHERE rs.scenario_id = $1
  AND ra.attr_id = $2
  AND ra.ref_key = $3
  AND CASE ra.ref_key
        WHEN 'NODE' THEN ra.node_id
        WHEN 'LINK' THEN ra.link_id
        WHEN 'GROUP' THEN ra.group_id
        ELSE ra.network_id
      END = $4
  AND ($5 = 0 OR s.network_id = $5)
GROUP BY d.id, d.type, d.value, u.abbreviation`

const calendarQuery = `
SELECT COALESCE(start_time, ''), COALESCE(end_time, ''), COALESCE(time_step, '')
FROM "tScenario"
WHERE id = $1`

// Store implements engine.DataAccess over a Hydra schema.
type Store struct {
	db           *sql.DB
	queryTimeout time.Duration
}

var _ engine.DataAccess = (*Store)(nil)

// NewStore returns a Store over db. A positive cfg.QueryTimeout bounds every query.
func NewStore(db *sql.DB, cfg Config) (*Store, error) {
	if db == nil {
		return nil, errors.New("postgres store requires a database handle")
	}
	return &Store{db: db, queryTimeout: cfg.QueryTimeout}, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}

// FetchAttributeDataset returns the dataset of ref in the scenario, or engine.ErrNotFound.
func (s *Store) FetchAttributeDataset(ctx context.Context, scenarioID int64, ref dataset.ResourceRef) (*dataset.Dataset, error) {
	refKey, err := refKey(ref.ResourceType)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		d        dataset.Dataset
		typ      string
		metadata string
	)
	row := s.db.QueryRowContext(ctx, datasetQuery, scenarioID, ref.AttrID, refKey, ref.ResourceID, ref.NetworkID)
	if err := row.Scan(&d.ID, &typ, &d.Value, &d.Unit, &metadata); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s in scenario %d", engine.ErrNotFound, ref, scenarioID)
		}
		return nil, fmt.Errorf("fetch dataset %s: %w", ref, err)
	}

	if d.Type, err = dataset.ParseType(typ); err != nil {
		return nil, fmt.Errorf("dataset %d: %w", d.ID, err)
	}
	if d.Metadata, err = dataset.ParseMetadata(metadata); err != nil {
		return nil, fmt.Errorf("dataset %d: %w", d.ID, err)
	}
	return &d, nil
}

// FetchScenarioCalendar returns the time settings of the scenario. Unset dates are zero.
func (s *Store) FetchScenarioCalendar(ctx context.Context, scenarioID int64) (timestep.Settings, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var start, end, span string
	err := s.db.QueryRowContext(ctx, calendarQuery, scenarioID).Scan(&start, &end, &span)
	if errors.Is(err, sql.ErrNoRows) {
		return timestep.Settings{}, fmt.Errorf("%w: scenario %d", engine.ErrNotFound, scenarioID)
	}
	if err != nil {
		return timestep.Settings{}, fmt.Errorf("fetch scenario %d: %w", scenarioID, err)
	}
	return settings(start, end, span)
}

func settings(start, end, span string) (timestep.Settings, error) {
	var st timestep.Settings
	var err error
	if strings.TrimSpace(start) != "" {
		if st.Start, err = timestep.ParseDate(start); err != nil {
			return timestep.Settings{}, fmt.Errorf("start time: %w", err)
		}
	}
	if strings.TrimSpace(end) != "" {
		if st.End, err = timestep.ParseDate(end); err != nil {
			return timestep.Settings{}, fmt.Errorf("end time: %w", err)
		}
	}
	st.Span = timestep.Span(strings.TrimSpace(span))
	return st, nil
}

func refKey(resourceType string) (string, error) {
	switch strings.ToLower(resourceType) {
	case "node":
		return "NODE", nil
	case "link":
		return "LINK", nil
	case "group", "resourcegroup":
		return "GROUP", nil
	case "network":
		return "NETWORK", nil
	default:
		return "", fmt.Errorf("%w: resource type %q", dataset.ErrInvalidKey, resourceType)
	}
}
