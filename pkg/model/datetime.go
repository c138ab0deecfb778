package model

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// DateTimeLayout is the boundary format for all date-time values.
const DateTimeLayout = "2006-01-02 15:04:05"

// DateTime wraps time.Time so that JSON at the API boundary always uses
// DateTimeLayout while BSON keeps the native date representation.
type DateTime struct {
	time.Time
}

func NewDateTime(t time.Time) DateTime {
	return DateTime{Time: t}
}

// ParseDateTime parses a boundary-format date-time string.
func ParseDateTime(s string) (DateTime, error) {
	t, err := time.Parse(DateTimeLayout, s)
	if err != nil {
		return DateTime{}, fmt.Errorf("invalid date-time %q, want %s: %w", s, DateTimeLayout, err)
	}
	return DateTime{Time: t}, nil
}

func (d DateTime) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(DateTimeLayout) + `"`), nil
}

func (d *DateTime) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `""` {
		d.Time = time.Time{}
		return nil
	}
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("date-time must be a string in %s format", DateTimeLayout)
	}
	parsed, err := ParseDateTime(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	d.Time = parsed.Time
	return nil
}

func (d DateTime) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(d.Time)
}

func (d *DateTime) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}
	return raw.Unmarshal(&d.Time)
}
