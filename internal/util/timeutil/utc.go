package timeutil

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// UTCTime is a time.Time that scans from the database and marshals to JSON in
// UTC, so persisted timestamps round-trip regardless of the host timezone.
type UTCTime time.Time

func NowUTC() UTCTime {
	return UTCTime(time.Now().UTC())
}

func (t UTCTime) UTC() time.Time {
	return time.Time(t).UTC()
}

func (t UTCTime) Add(delta time.Duration) UTCTime {
	return UTCTime(time.Time(t).Add(delta))
}

func (t UTCTime) Compare(u UTCTime) int {
	return time.Time(t).Compare(time.Time(u))
}

func (t UTCTime) Before(u UTCTime) bool {
	return time.Time(t).Before(time.Time(u))
}

func (t UTCTime) Value() (driver.Value, error) {
	return time.Time(t), nil
}

func (t *UTCTime) Scan(value any) error {
	if value == nil {
		return nil
	}
	cvt, err := driver.DefaultParameterConverter.ConvertValue(value)
	if err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	cvtTime, ok := cvt.(time.Time)
	if !ok {
		return fmt.Errorf("expected type time.Time, got type %T", cvt)
	}
	*t = UTCTime(cvtTime)
	return nil
}

func (t UTCTime) MarshalJSON() ([]byte, error) {
	return t.UTC().MarshalJSON()
}

func (t *UTCTime) UnmarshalJSON(data []byte) error {
	var tm time.Time
	if err := tm.UnmarshalJSON(data); err != nil {
		return err
	}
	*t = UTCTime(tm.UTC())
	return nil
}
