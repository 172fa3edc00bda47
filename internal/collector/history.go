package collector

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"thermo-poller/internal/model"
)

// Sample is one row read back from a history file.
type Sample struct {
	At         time.Time `json:"timestamp"`
	VariableID string    `json:"variable_id"`
	Name       string    `json:"variable_name"`
	Raw        uint16    `json:"raw"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
}

// ReadHistory collects the logged samples of v within [from, to], sorted by time.
// Missing files are skipped; malformed rows are ignored.
func ReadHistory(settings model.LoggingSettings, v model.Variable, from, to time.Time) ([]Sample, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("invalid range: %s is after %s", from.Format(TimestampLayout), to.Format(TimestampLayout))
	}
	sep := settings.Separator
	if sep == 0 {
		sep = ','
	}

	var paths []string
	for _, day := range days(from, to) {
		date := day.Format(dateLayout)
		if settings.Mode == model.LogPerVariable || settings.Mode == "" {
			set := make(map[string]struct{})
			if v.ID != "" {
				matches, err := filesWithSuffix(settings.Folder, "_"+v.ID+"_"+date+".csv")
				if err != nil {
					return nil, err
				}
				for _, m := range matches {
					set[m] = struct{}{}
				}
			}
			set[filepath.Join(settings.Folder, SafeName(v.Name)+"_"+date+".csv")] = struct{}{}
			sorted := make([]string, 0, len(set))
			for p := range set {
				sorted = append(sorted, p)
			}
			sort.Strings(sorted)
			paths = append(paths, sorted...)
			continue
		}
		paths = append(paths, filepath.Join(settings.Folder, dailyPrefix+date+".csv"))
	}
	if settings.Mode == model.LogSingle || settings.Mode == model.LogDaily {
		paths = append(paths, filepath.Join(settings.Folder, singleFileName))
	}

	var out []Sample
	for _, p := range paths {
		rows, err := readHistoryFile(p, sep, v.ID)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			if r.At.Before(from) || r.At.After(to) {
				continue
			}
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

func readHistoryFile(path string, sep rune, id string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = sep
	r.FieldsPerRecord = -1
	header := true
	var out []Sample
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if header {
			header = false
			continue
		}
		s, ok := parseSample(rec)
		if !ok || s.VariableID != id {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func parseSample(rec []string) (Sample, bool) {
	if len(rec) < 5 {
		return Sample{}, false
	}
	ts, err := time.ParseInLocation(TimestampLayout, rec[0], time.Local)
	if err != nil {
		return Sample{}, false
	}
	value, err := strconv.ParseFloat(rec[4], 64)
	if err != nil {
		return Sample{}, false
	}
	s := Sample{At: ts, VariableID: rec[1], Name: rec[2], Value: value}
	if raw, err := strconv.ParseUint(rec[3], 10, 16); err == nil {
		s.Raw = uint16(raw)
	}
	if len(rec) > 5 {
		s.Unit = rec[5]
	}
	return s, true
}

// days lists each calendar date touched by [from, to] in local time.
func days(from, to time.Time) []time.Time {
	from, to = from.Local(), to.Local()
	cur := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.Local)
	end := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.Local)
	var out []time.Time
	for !cur.After(end) {
		out = append(out, cur)
		cur = cur.AddDate(0, 0, 1)
	}
	return out
}

// filesWithSuffix lists regular files in dir whose name ends with suffix
// and has something before it.
func filesWithSuffix(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list history folder: %w", err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || len(name) <= len(suffix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// SeriesStats summarises a sample series.
type SeriesStats struct {
	Count int     `json:"count"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Summarize returns count/avg/min/max of samples; zero value when empty.
func Summarize(samples []Sample) SeriesStats {
	if len(samples) == 0 {
		return SeriesStats{}
	}
	st := SeriesStats{Count: len(samples), Min: samples[0].Value, Max: samples[0].Value}
	sum := 0.0
	for _, s := range samples {
		sum += s.Value
		if s.Value < st.Min {
			st.Min = s.Value
		}
		if s.Value > st.Max {
			st.Max = s.Value
		}
	}
	st.Avg = sum / float64(len(samples))
	return st
}
