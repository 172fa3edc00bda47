package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"thermo-poller/internal/collector"
)

// Export is the JSON document written by WriteJSON.
type Export struct {
	VariableID string                `json:"variable_id"`
	Name       string                `json:"name"`
	Unit       string                `json:"unit,omitempty"`
	From       time.Time             `json:"from"`
	To         time.Time             `json:"to"`
	Stats      collector.SeriesStats `json:"stats"`
	Samples    []collector.Sample    `json:"samples"`
}

// WriteJSON writes an export with pretty formatting.
func WriteJSON(path string, exp Export) error {
	if exp.Samples == nil {
		exp.Samples = []collector.Sample{}
	}
	b, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

// WriteCSV writes samples to a CSV file.
// Columns: timestamp,variable_id,variable_name,raw,value,unit
func WriteCSV(path string, samples []collector.Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	headers := []string{"timestamp", "variable_id", "variable_name", "raw", "value", "unit"}
	if err := w.Write(headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, s := range samples {
		rec := []string{
			timeToRFC3339(s.At),
			s.VariableID,
			s.Name,
			strconv.FormatUint(uint64(s.Raw), 10),
			strconv.FormatFloat(s.Value, 'f', -1, 64),
			s.Unit,
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func timeToRFC3339(t time.Time) string { return t.Format(time.RFC3339Nano) }
