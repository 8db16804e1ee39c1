package models

import (
	"bytes"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"ktu-bizconnect/internal/saleerrors"
)

// Money is a cedi amount held in pesewas. It travels over JSON as a decimal string ("60.00")
// and is stored as a BIGINT.
type Money int64

var (
	_ driver.Valuer = Money(0)
	_ sql.Scanner   = (*Money)(nil)
)

// maxMoney caps amounts at 10 billion cedi.
const maxMoney Money = 1_000_000_000_000

var hundred = decimal.NewFromInt(100)

// ParseMoney accepts a positive decimal with at most two fractional digits.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, saleerrors.ErrInvalidAmount
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, saleerrors.ErrInvalidAmount
	}
	if !d.IsPositive() {
		return 0, saleerrors.ErrNonPositive
	}
	if !d.Equal(d.Truncate(2)) {
		return 0, saleerrors.ErrTooManyDecimals
	}

	minor := d.Mul(hundred)
	if minor.GreaterThanOrEqual(decimal.NewFromInt(int64(maxMoney))) {
		return 0, saleerrors.ErrAmountTooLarge
	}
	return Money(minor.IntPart()), nil
}

func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON takes either a JSON string or a bare JSON number.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return saleerrors.ErrInvalidAmount
	}

	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return saleerrors.ErrInvalidAmount
		}
	}

	v, err := ParseMoney(raw)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Value keeps bun off the JSON path so the column holds pesewas.
func (m Money) Value() (driver.Value, error) {
	return int64(m), nil
}

func (m *Money) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = 0
	case int64:
		*m = Money(v)
	case []byte:
		return m.scanString(string(v))
	case string:
		return m.scanString(v)
	default:
		return fmt.Errorf("money: cannot scan %T", src)
	}
	return nil
}

func (m *Money) scanString(s string) error {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return fmt.Errorf("money: %w", err)
	}
	*m = Money(n)
	return nil
}
