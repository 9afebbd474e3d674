// Package uom converts quantities and costs between a product's alternate
// units of measure and its base unit.
package uom

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

var (
	// ErrUnknownUOM is returned when a unit is neither the base unit nor a declared alternate.
	ErrUnknownUOM = errors.New("uom: unknown unit of measure")
	// ErrInvalidFactor is returned for a non-positive conversion factor.
	ErrInvalidFactor = errors.New("uom: conversion factor must be > 0")
)

// Alternate is a named unit worth ConversionFactor base units.
type Alternate struct {
	Name             string
	ConversionFactor decimal.Decimal
	SellingPrice     decimal.Decimal
}

// Set is the unit catalogue of one product.
type Set struct {
	Base       string
	Alternates []Alternate
}

// A Caser is stateful, so fold builds one per call.
func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// Factor returns how many base units one unit of name is worth. Names match
// the base unit or a declared alternate exactly, ignoring case and
// surrounding space; anything else, a blank name included, is unknown.
func (s Set) Factor(name string) (decimal.Decimal, error) {
	key := fold(name)
	if key == "" {
		return decimal.Zero, fmt.Errorf("%w: blank unit", ErrUnknownUOM)
	}
	if key == fold(s.Base) {
		return decimal.NewFromInt(1), nil
	}
	for _, alt := range s.Alternates {
		if fold(alt.Name) == key {
			return checkFactor(alt)
		}
	}
	return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownUOM, name)
}

func checkFactor(alt Alternate) (decimal.Decimal, error) {
	if !alt.ConversionFactor.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidFactor, alt.Name)
	}
	return alt.ConversionFactor, nil
}

// ToBaseQuantity converts qty expressed in unit name into base units.
func (s Set) ToBaseQuantity(name string, qty decimal.Decimal) (decimal.Decimal, error) {
	factor, err := s.Factor(name)
	if err != nil {
		return decimal.Zero, err
	}
	return qty.Mul(factor), nil
}

// ToBaseUnitCost converts a per-unit cost in unit name into a per-base-unit cost.
func (s Set) ToBaseUnitCost(name string, cost decimal.Decimal) (decimal.Decimal, error) {
	factor, err := s.Factor(name)
	if err != nil {
		return decimal.Zero, err
	}
	return cost.Div(factor), nil
}

// FromBaseUnitCost converts a per-base-unit cost into a per-unit cost in unit name.
func (s Set) FromBaseUnitCost(name string, cost decimal.Decimal) (decimal.Decimal, error) {
	factor, err := s.Factor(name)
	if err != nil {
		return decimal.Zero, err
	}
	return cost.Mul(factor), nil
}
