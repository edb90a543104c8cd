package config

import (
	"strconv"
	"strings"

	"github.com/gcash/bchutil"
)

// AmountFlag embeds a bchutil.Amount and implements the flags.Marshaler
// and Unmarshaler interfaces so it can be used as a config struct field,
// accepting values like "0.0001 BCH" on the command line or in a config
// file. Adapted from the teacher's internal/cfgutil.AmountFlag.
type AmountFlag struct {
	bchutil.Amount
}

// NewAmountFlag creates an AmountFlag with a default bchutil.Amount.
func NewAmountFlag(defaultValue bchutil.Amount) *AmountFlag {
	return &AmountFlag{defaultValue}
}

// MarshalFlag satisfies the flags.Marshaler interface.
func (a *AmountFlag) MarshalFlag() (string, error) {
	return a.Amount.String(), nil
}

// UnmarshalFlag satisfies the flags.Unmarshaler interface.
func (a *AmountFlag) UnmarshalFlag(value string) error {
	value = strings.TrimSuffix(value, " BCH")
	valueF64, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return err
	}
	amount, err := bchutil.NewAmount(valueF64)
	if err != nil {
		return err
	}
	a.Amount = amount
	return nil
}
