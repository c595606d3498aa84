package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor units (paise). On the wire it is a decimal in
// major units, so 719.80 travels as 719.8 and is stored as 71980.
type Money int64

var (
	maxMoney = decimal.NewFromInt(math.MaxInt64)
	minMoney = decimal.NewFromInt(math.MinInt64)
)

// MoneyFromDecimal rounds d, given in major units, half away from zero to the
// nearest minor unit. It fails when the result does not fit in an int64.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	minor := d.Shift(2).Round(0)
	if minor.GreaterThan(maxMoney) || minor.LessThan(minMoney) {
		return 0, fmt.Errorf("amount %s is out of range", d.String())
	}
	return Money(minor.IntPart()), nil
}

func ParseMoney(value string) (Money, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", value)
	}
	return MoneyFromDecimal(d)
}

func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal().String()), nil
}

// UnmarshalJSON takes a number or a numeric string; null leaves m unchanged.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	parsed, err := ParseMoney(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Percent is a rate such as a GST percentage. Form fields often post it as a
// string, so both "18" and 18 decode.
type Percent float64

func (p *Percent) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*p = 0
			return nil
		}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("invalid percentage %q", raw)
	}
	*p = Percent(v)
	return nil
}

// looseInt decodes a JSON number or numeric string into an integer.
func looseInt(data json.RawMessage) (int64, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return 0, nil
	}
	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return 0, err
		}
		raw = strings.TrimSpace(raw)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	return v, nil
}
