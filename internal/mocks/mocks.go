// Package mocks provides testify mocks for the collaborators of the evaluation engine.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/openagua/go-evaluator/dataset"
	"github.com/openagua/go-evaluator/function"
	"github.com/openagua/go-evaluator/tabular"
	"github.com/openagua/go-evaluator/timestep"
)

// DataAccess is a mock implementation of engine.DataAccess.
type DataAccess struct {
	mock.Mock
}

// FetchAttributeDataset is a mock implementation of the FetchAttributeDataset method.
func (m *DataAccess) FetchAttributeDataset(ctx context.Context, scenarioID int64, ref dataset.ResourceRef) (*dataset.Dataset, error) {
	args := m.Called(ctx, scenarioID, ref)
	ds, _ := args.Get(0).(*dataset.Dataset)
	return ds, args.Error(1)
}

// FetchScenarioCalendar is a mock implementation of the FetchScenarioCalendar method.
func (m *DataAccess) FetchScenarioCalendar(ctx context.Context, scenarioID int64) (timestep.Settings, error) {
	args := m.Called(ctx, scenarioID)
	return args.Get(0).(timestep.Settings), args.Error(1)
}

// TableReader is a mock implementation of engine.TableReader.
type TableReader struct {
	mock.Mock
}

// Read is a mock implementation of the Read method.
func (m *TableReader) Read(ctx context.Context, locator string, opts tabular.Options) (*tabular.Table, error) {
	args := m.Called(ctx, locator, opts)
	t, _ := args.Get(0).(*tabular.Table)
	return t, args.Error(1)
}

// Host is a mock implementation of function.Host.
type Host struct {
	mock.Mock
}

// Get is a mock implementation of the Get method.
func (m *Host) Get(ctx context.Context, cc *function.CallContext, req function.GetRequest) (any, error) {
	args := m.Called(ctx, cc, req)
	return args.Get(0), args.Error(1)
}

// ReadCSV is a mock implementation of the ReadCSV method.
func (m *Host) ReadCSV(ctx context.Context, cc *function.CallContext, locator string, opts map[string]any) (any, error) {
	args := m.Called(ctx, cc, locator, opts)
	return args.Get(0), args.Error(1)
}
