// Package replay provides a BarSource that reads historical bars from CSV
// and feeds them into the pipeline at configurable speed. Rows are
// `ts,open,high,low,close,volume[,symbol]` with ts as RFC3339 or unix
// seconds; a header row is skipped automatically.
package replay

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"liquidity-systemv1/internal/model"
)

// Source replays a CSV file of base-timeframe bars.
type Source struct {
	path   string
	symbol string // default symbol when the CSV has no symbol column
	speed  float64
	log    zerolog.Logger

	// OnInvalid is called for rows dropped by validation (optional).
	OnInvalid func(line int, err error)
}

// New creates a replayer. speed 0 replays as fast as possible, 1.0 real-time.
func New(path, symbol string, speed float64, log zerolog.Logger) *Source {
	return &Source{
		path:   path,
		symbol: symbol,
		speed:  speed,
		log:    log.With().Str("comp", "replay").Logger(),
	}
}

// Run streams every bar through fn in file order. Stops on ctx cancellation
// or the first error returned by fn.
func (s *Source) Run(ctx context.Context, fn func(model.Bar) error) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("replay open: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var prevTS time.Time
	line := 0
	emitted := 0

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Int("bars", emitted).Msg("replay cancelled")
			return ctx.Err()
		default:
		}

		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("replay read: %w", err)
		}
		line++

		if line == 1 && looksLikeHeader(record) {
			continue
		}

		bar, err := s.parse(record)
		if err != nil {
			if s.OnInvalid != nil {
				s.OnInvalid(line, err)
			}
			s.log.Debug().Int("line", line).Err(err).Msg("row dropped")
			continue
		}

		// Simulate time gaps between bars.
		if s.speed > 0 && !prevTS.IsZero() {
			if gap := bar.TS.Sub(prevTS); gap > 0 {
				scaled := time.Duration(float64(gap) / s.speed)
				if scaled > 5*time.Second {
					scaled = 5 * time.Second
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(scaled):
				}
			}
		}
		prevTS = bar.TS

		if err := fn(bar); err != nil {
			return err
		}
		emitted++
	}

	s.log.Info().Int("bars", emitted).Msg("replay completed")
	return nil
}

func (s *Source) parse(record []string) (model.Bar, error) {
	if len(record) < 6 {
		return model.Bar{}, fmt.Errorf("want at least 6 fields, got %d", len(record))
	}

	ts, err := parseTS(strings.TrimSpace(record[0]))
	if err != nil {
		return model.Bar{}, err
	}

	vals := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[i+1]), 64)
		if err != nil {
			return model.Bar{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		vals[i] = v
	}

	symbol := s.symbol
	if len(record) >= 7 && strings.TrimSpace(record[6]) != "" {
		symbol = strings.TrimSpace(record[6])
	}

	bar := model.Bar{
		Symbol: symbol,
		TF:     model.M1,
		TS:     ts,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}
	if err := bar.Validate(); err != nil {
		return model.Bar{}, err
	}
	return bar, nil
}

func parseTS(s string) (time.Time, error) {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: %w", s, err)
	}
	return ts.UTC(), nil
}

func looksLikeHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	head := strings.ToLower(strings.TrimSpace(record[0]))
	return head == "ts" || head == "timestamp" || head == "time" || head == "date"
}
