package model

import (
	"fmt"
	"time"
)

// Timeframe is a bar period expressed in minutes. Bucket arithmetic is done
// purely on integer epoch minutes so period boundaries never drift across DST
// transitions. The only accepted reference is UTC.
type Timeframe int

const (
	M1  Timeframe = 1
	M5  Timeframe = 5
	M15 Timeframe = 15
	M30 Timeframe = 30
	H1  Timeframe = 60
	H4  Timeframe = 240
	D1  Timeframe = 1440
)

// Minutes returns the period length in minutes.
func (tf Timeframe) Minutes() int { return int(tf) }

// Duration returns the period length as a time.Duration.
func (tf Timeframe) Duration() time.Duration { return time.Duration(tf) * time.Minute }

// Name returns the standard timeframe label (M1, H1, D1, ...).
func (tf Timeframe) Name() string {
	switch {
	case tf < 60:
		return fmt.Sprintf("M%d", int(tf))
	case tf < 1440:
		return fmt.Sprintf("H%d", int(tf)/60)
	default:
		return fmt.Sprintf("D%d", int(tf)/1440)
	}
}

// String implements fmt.Stringer.
func (tf Timeframe) String() string { return tf.Name() }

// TimeframeFromMinutes maps a minute count onto the known timeframe set.
func TimeframeFromMinutes(minutes int) (Timeframe, error) {
	switch Timeframe(minutes) {
	case M1, M5, M15, M30, H1, H4, D1:
		return Timeframe(minutes), nil
	}
	return 0, fmt.Errorf("unknown timeframe: %d minutes", minutes)
}

// BucketID returns the bucket index of ts for this timeframe:
// floor(epoch_minutes / tf_minutes).
func (tf Timeframe) BucketID(ts time.Time) int64 {
	epochMin := ts.Unix() / 60
	return epochMin / int64(tf)
}

// BucketStart returns the UTC start of the bucket containing ts.
func (tf Timeframe) BucketStart(ts time.Time) time.Time {
	startMin := tf.BucketID(ts) * int64(tf)
	return time.Unix(startMin*60, 0).UTC()
}

// IsBoundary reports whether ts falls exactly on a bucket boundary.
func (tf Timeframe) IsBoundary(ts time.Time) bool {
	return ts.Unix()%(int64(tf)*60) == 0
}
