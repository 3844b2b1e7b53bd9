package proctoring

import (
	"encoding/json"
	"math"
	"strconv"
)

// Tenths is a fixed-point amount of attempts in units of 0.1. Minor violations
// cost half an attempt, so budgets are kept in tenths to stay exact.
type Tenths int64

const (
	CostMajor Tenths = 10
	CostMinor Tenths = 5
	CostNone  Tenths = 0
)

// Attempts converts a whole number of attempts to Tenths.
func Attempts(n int) Tenths { return Tenths(n) * 10 }

func (t Tenths) Float() float64 { return float64(t) / 10 }

// Multiplier is the cost relative to one full attempt.
func (t Tenths) Multiplier() float64 { return t.Float() }

func (t Tenths) String() string {
	return strconv.FormatFloat(t.Float(), 'f', -1, 64)
}

func (t Tenths) MarshalJSON() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tenths) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*t = Tenths(math.Round(f * 10))
	return nil
}

// floorZero clamps negative remainders so attemptsLeft is never observed below zero.
func floorZero(t Tenths) Tenths {
	if t < 0 {
		return 0
	}
	return t
}
