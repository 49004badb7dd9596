// Package tracker implements a metrics collaborator which stores named
// scalar statistics grouped by tag, summarizes them, and saves a
// history of the summaries
package tracker

import (
	"encoding/gob"
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Mode determines how Store treats values already stored under a key
type Mode int

const (
	// Append adds the value to those already stored under the key
	Append Mode = iota

	// Overwrite replaces all values stored under the key
	Overwrite
)

func (m Mode) String() string {
	if m == Overwrite {
		return "Overwrite"
	}
	return "Append"
}

// Summary summarizes all values stored under a key. Std is the
// population standard deviation.
type Summary struct {
	N    int
	Mean float64
	Std  float64
	Min  float64
	Max  float64
}

// Logger stores scalar statistics tagged by category. Statistics are
// accumulated until Log is called, which writes a summary of each
// statistic, records it in the Logger's history, and clears the
// accumulated statistics.
type Logger struct {
	logger  zerolog.Logger
	data    map[string]map[string][]float64 // tag -> key -> values
	history map[string][]float64            // "tag/key" -> summary means
}

// New returns a new Logger which writes summaries to logger
func New(logger zerolog.Logger) *Logger {
	return &Logger{
		logger:  logger.With().Str("component", "tracker").Logger(),
		data:    make(map[string]map[string][]float64),
		history: make(map[string][]float64),
	}
}

// Store stores each statistic in stats under tag
func (l *Logger) Store(tag string, stats map[string]float64, mode Mode) {
	tagged, ok := l.data[tag]
	if !ok {
		tagged = make(map[string][]float64)
		l.data[tag] = tagged
	}

	for key, value := range stats {
		if mode == Overwrite {
			tagged[key] = []float64{value}
		} else {
			tagged[key] = append(tagged[key], value)
		}
	}
}

// Values returns a copy of the values stored under tag and key
func (l *Logger) Values(tag, key string) []float64 {
	values := l.data[tag][key]
	out := make([]float64, len(values))
	copy(out, values)
	return out
}

// Tags returns the sorted tags with stored statistics
func (l *Logger) Tags() []string {
	tags := make([]string, 0, len(l.data))
	for tag := range l.data {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Keys returns the sorted keys of the statistics stored under tag
func (l *Logger) Keys(tag string) []string {
	keys := make([]string, 0, len(l.data[tag]))
	for key := range l.data[tag] {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Mean returns the mean of the values stored under tag and key and
// whether any values were stored
func (l *Logger) Mean(tag, key string) (float64, bool) {
	values := l.data[tag][key]
	if len(values) == 0 {
		return 0, false
	}
	return stat.Mean(values, nil), true
}

// Summary summarizes the values stored under tag and key, returning
// false if no values were stored
func (l *Logger) Summary(tag, key string) (Summary, bool) {
	values := l.data[tag][key]
	if len(values) == 0 {
		return Summary{}, false
	}

	mean, std := stat.PopMeanStdDev(values, nil)
	return Summary{
		N:    len(values),
		Mean: mean,
		Std:  std,
		Min:  floats.Min(values),
		Max:  floats.Max(values),
	}, true
}

// Log writes the summaries of all stored statistics at some step,
// appends their means to the history, and clears the stored statistics
func (l *Logger) Log(step int) {
	for _, tag := range l.Tags() {
		e := l.logger.Info().Int("step", step).Str("tag", tag)
		for _, key := range l.Keys(tag) {
			s, _ := l.Summary(tag, key)
			if s.N == 1 {
				e = e.Float64(key, s.Mean)
			} else {
				e = e.Dict(key, zerolog.Dict().
					Float64("mean", s.Mean).
					Float64("std", s.Std).
					Float64("min", s.Min).
					Float64("max", s.Max))
			}
			name := tag + "/" + key
			l.history[name] = append(l.history[name], s.Mean)
		}
		e.Msg("summary")
	}
	l.Reset()
}

// History returns the means recorded by each call to Log, keyed by
// "tag/key"
func (l *Logger) History() map[string][]float64 {
	out := make(map[string][]float64, len(l.history))
	for name, values := range l.history {
		out[name] = append([]float64(nil), values...)
	}
	return out
}

// Reset clears all stored statistics. The history is kept.
func (l *Logger) Reset() {
	l.data = make(map[string]map[string][]float64)
}

// Save saves the history to a file
func (l *Logger) Save(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("save: could not create data file: %w", err)
	}
	defer file.Close()

	enc := gob.NewEncoder(file)
	if err := enc.Encode(l.history); err != nil {
		return fmt.Errorf("save: could not encode data: %w", err)
	}
	return nil
}

// LoadData loads and returns the history saved by a Logger
func LoadData(filename string) (map[string][]float64, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("loadData: could not open data file: %w", err)
	}
	defer file.Close()

	dec := gob.NewDecoder(file)
	var data map[string][]float64
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("loadData: could not decode data: %w", err)
	}
	return data, nil
}
