package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ktu-bizconnect/internal/saleerrors"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Money
		wantErr error
	}{
		{name: "whole cedis", input: "60", want: 6000},
		{name: "two decimals", input: "60.05", want: 6005},
		{name: "one decimal", input: "0.5", want: 50},
		{name: "trailing zeros beyond two places", input: "12.500", want: 1250},
		{name: "surrounding whitespace", input: " 7.25 ", want: 725},
		{name: "empty", input: "", wantErr: saleerrors.ErrInvalidAmount},
		{name: "letters", input: "sixty", wantErr: saleerrors.ErrInvalidAmount},
		{name: "zero", input: "0.00", wantErr: saleerrors.ErrNonPositive},
		{name: "negative", input: "-5", wantErr: saleerrors.ErrNonPositive},
		{name: "three decimals", input: "1.005", wantErr: saleerrors.ErrTooManyDecimals},
		{name: "huge", input: "10000000000", wantErr: saleerrors.ErrAmountTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMoney(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, saleerrors.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMoney_String(t *testing.T) {
	assert.Equal(t, "60.00", Money(6000).String())
	assert.Equal(t, "0.05", Money(5).String())
	assert.Equal(t, "1234.50", Money(123450).String())
}

func TestMoney_JSON(t *testing.T) {
	var body struct {
		Amount Money `json:"amount"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"amount":"60.50"}`), &body))
	assert.Equal(t, Money(6050), body.Amount)

	require.NoError(t, json.Unmarshal([]byte(`{"amount":75}`), &body))
	assert.Equal(t, Money(7500), body.Amount)

	err := json.Unmarshal([]byte(`{"amount":"abc"}`), &body)
	assert.ErrorIs(t, err, saleerrors.ErrInvalidAmount)

	out, err := json.Marshal(struct {
		Amount Money `json:"amount"`
	}{Amount: 6000})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"60.00"}`, string(out))
}

func TestMoney_ValueAndScan(t *testing.T) {
	v, err := Money(5000).Value()
	require.NoError(t, err)
	assert.Equal(t, int64(5000), v)

	tests := []struct {
		name string
		src  any
		want Money
	}{
		{name: "int64", src: int64(5000), want: 5000},
		{name: "bytes", src: []byte("18500"), want: 18500},
		{name: "string", src: "75", want: 75},
		{name: "null", src: nil, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Money(1)
			require.NoError(t, m.Scan(tt.src))
			assert.Equal(t, tt.want, m)
		})
	}

	var m Money
	assert.Error(t, m.Scan(`"50.00"`))
	assert.Error(t, m.Scan(3.5))
}
