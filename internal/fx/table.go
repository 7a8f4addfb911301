package fx

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrPairNotFound  = errors.New("no exchange data for currency pair")
	ErrInvalidAmount = errors.New("invalid amount")
)

type pair struct {
	from string
	to   string
}

// Table holds exchange rates and fees per currency pair. It is loaded once
// and never mutated, so it is safe for concurrent use.
type Table struct {
	rates map[pair]decimal.Decimal
	fees  map[pair]decimal.Decimal
}

// Load reads the rate and fee CSV files. Both use the layout
//
//	currency_from,currency_to,value
//
// with a header row; blank lines and lines starting with # are skipped.
func Load(ratesPath, feesPath string) (*Table, error) {
	rf, err := os.Open(ratesPath)
	if err != nil {
		return nil, err
	}
	defer rf.Close()

	ff, err := os.Open(feesPath)
	if err != nil {
		return nil, err
	}
	defer ff.Close()

	return LoadFrom(rf, ff)
}

func LoadFrom(rates, fees io.Reader) (*Table, error) {
	r, err := readPairs(rates)
	if err != nil {
		return nil, fmt.Errorf("exchange rates: %w", err)
	}
	f, err := readPairs(fees)
	if err != nil {
		return nil, fmt.Errorf("exchange fees: %w", err)
	}
	for p, fee := range f {
		if fee.IsNegative() || fee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("exchange fees: fee %s for %s/%s out of range", fee, p.from, p.to)
		}
	}
	return &Table{rates: r, fees: f}, nil
}

func readPairs(src io.Reader) (map[pair]decimal.Decimal, error) {
	reader := csv.NewReader(src)
	reader.Comment = '#'
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true

	if _, err := reader.Read(); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	out := make(map[pair]decimal.Decimal)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		value, err := decimal.NewFromString(strings.TrimSpace(row[2]))
		if err != nil {
			line, _ := reader.FieldPos(2)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out[newPair(row[0], row[1])] = value
	}
	return out, nil
}

func newPair(from, to string) pair {
	return pair{
		from: strings.ToUpper(strings.TrimSpace(from)),
		to:   strings.ToUpper(strings.TrimSpace(to)),
	}
}

func (t *Table) Rate(from, to string) (decimal.Decimal, error) {
	rate, ok := t.rates[newPair(from, to)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s/%s", ErrPairNotFound, from, to)
	}
	return rate, nil
}

func (t *Table) Fee(from, to string) (decimal.Decimal, error) {
	fee, ok := t.fees[newPair(from, to)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s/%s", ErrPairNotFound, from, to)
	}
	return fee, nil
}

// Simulate returns what amount in from turns into in to, after the pair's
// fee: amount * (1 - fee) * rate, rounded to cents.
func (t *Table) Simulate(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	rate, err := t.Rate(from, to)
	if err != nil {
		return decimal.Zero, err
	}
	fee, err := t.Fee(from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(decimal.NewFromInt(1).Sub(fee)).Mul(rate).Round(2), nil
}
