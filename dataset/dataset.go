// Package dataset models the stored value of one resource attribute in one scenario, and
// converts it to and from the typed values the engine works with.
package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Metadata carries the evaluation settings and provenance of a Dataset.
type Metadata struct {
	UseFunction  bool   `json:"use_function"`
	Function     string `json:"function,omitempty"`
	Source       string `json:"source,omitempty"`
	Note         string `json:"note,omitempty"`
	ModifiedBy   string `json:"modified_by,omitempty"`
	ModifiedDate string `json:"modified_date,omitempty"`
	CrDate       string `json:"cr_date,omitempty"`
}

// UnmarshalJSON accepts use_function as a bool or as the legacy "Y"/"N" flag, and treats
// input_method "function" as use_function.
func (m *Metadata) UnmarshalJSON(b []byte) error {
	var raw struct {
		UseFunction  json.RawMessage `json:"use_function"`
		InputMethod  string          `json:"input_method"`
		Function     string          `json:"function"`
		Source       string          `json:"source"`
		Note         string          `json:"note"`
		ModifiedBy   string          `json:"modified_by"`
		ModifiedDate string          `json:"modified_date"`
		CrDate       string          `json:"cr_date"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMetadata, err)
	}

	useFunction, err := parseFlag(raw.UseFunction)
	if err != nil {
		return err
	}

	*m = Metadata{
		UseFunction:  useFunction || raw.InputMethod == "function",
		Function:     raw.Function,
		Source:       raw.Source,
		Note:         raw.Note,
		ModifiedBy:   raw.ModifiedBy,
		ModifiedDate: raw.ModifiedDate,
		CrDate:       raw.CrDate,
	}
	return nil
}

func parseFlag(raw json.RawMessage) (bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return false, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false, fmt.Errorf("%w: use_function %s", ErrInvalidMetadata, raw)
	}
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "Y", "YES", "TRUE", "1":
		return true, nil
	case "", "N", "NO", "FALSE", "0":
		return false, nil
	default:
		return false, fmt.Errorf("%w: use_function %q", ErrInvalidMetadata, s)
	}
}

// ParseMetadata decodes metadata stored as a JSON document. An empty document is valid.
func ParseMetadata(s string) (Metadata, error) {
	var m Metadata
	if strings.TrimSpace(s) == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return Metadata{}, err
	}
	return m, nil
}

// Dataset is the persisted value of one (resource attribute, scenario) pair.
type Dataset struct {
	ID       int64    `json:"id,omitempty"`
	Type     Type     `json:"type"`
	Value    string   `json:"value"`
	Unit     string   `json:"unit,omitempty"`
	Metadata Metadata `json:"metadata"`
}

// UnmarshalJSON accepts metadata either as an object or as a JSON-encoded string, which is
// how it is stored.
func (d *Dataset) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID       int64           `json:"id"`
		Type     string          `json:"type"`
		Value    json.RawMessage `json:"value"`
		Unit     string          `json:"unit"`
		Metadata json.RawMessage `json:"metadata"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	t, err := ParseType(raw.Type)
	if err != nil {
		return err
	}

	value, err := rawText(raw.Value)
	if err != nil {
		return fmt.Errorf("dataset value: %w", err)
	}

	var meta Metadata
	metaText, err := rawText(raw.Metadata)
	if err != nil {
		return fmt.Errorf("dataset metadata: %w", err)
	}
	if meta, err = ParseMetadata(metaText); err != nil {
		return err
	}

	*d = Dataset{ID: raw.ID, Type: t, Value: value, Unit: raw.Unit, Metadata: meta}
	return nil
}

// rawText returns a JSON string's content, or the raw document for any other JSON value.
func rawText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	return string(raw), nil
}

// UsesFunction reports whether the value is derived from the metadata function.
func (d *Dataset) UsesFunction() bool {
	return d.Metadata.UseFunction
}

// Validate checks that the dataset can be evaluated.
func (d *Dataset) Validate() error {
	if _, err := ParseType(string(d.Type)); err != nil {
		return err
	}
	if d.UsesFunction() && strings.TrimSpace(d.Metadata.Function) == "" {
		return ErrMissingFunction
	}
	return nil
}

func (d *Dataset) String() string {
	if d.UsesFunction() {
		return fmt.Sprintf("Dataset{ID: %d, Type: %s, Function: %q}", d.ID, d.Type, d.Metadata.Function)
	}
	return fmt.Sprintf("Dataset{ID: %d, Type: %s}", d.ID, d.Type)
}
