// Package dice resolves checks locally and deterministically. It backs the
// degraded gameplay path: when the generation backend is unavailable, a
// mechanical check still resolves so play continues.
package dice

import (
	"errors"
	"fmt"
	"math/rand"
)

var (
	// ErrMissingSpec is returned when a roll request carries no dice.
	ErrMissingSpec = errors.New("dice: at least one spec is required")
	// ErrInvalidSpec is returned when a spec has non-positive sides or count.
	ErrInvalidSpec = errors.New("dice: sides and count must be positive")
)

// Spec describes one group of identical dice, e.g. 2d6.
type Spec struct {
	Sides int
	Count int
}

// Roll is the resolved values for one spec, in roll order.
type Roll struct {
	Sides   int
	Results []int
	Total   int
}

// Result aggregates every roll in a request.
type Result struct {
	Rolls []Roll
	Total int
}

// RollSeed rolls specs in order using a seeded source. The same seed and
// specs always produce the same result.
func RollSeed(seed int64, specs ...Spec) (Result, error) {
	if len(specs) == 0 {
		return Result{}, ErrMissingSpec
	}

	rng := rand.New(rand.NewSource(seed))
	rolls := make([]Roll, 0, len(specs))
	total := 0
	for _, spec := range specs {
		if spec.Sides <= 0 || spec.Count <= 0 {
			return Result{}, ErrInvalidSpec
		}
		results := make([]int, spec.Count)
		rollTotal := 0
		for i := range results {
			results[i] = rng.Intn(spec.Sides) + 1
			rollTotal += results[i]
		}
		rolls = append(rolls, Roll{Sides: spec.Sides, Results: results, Total: rollTotal})
		total += rollTotal
	}
	return Result{Rolls: rolls, Total: total}, nil
}

// CheckOutcome is one locally resolved difficulty check.
type CheckOutcome struct {
	Total      int
	Difficulty int
	Success    bool
	// Margin is positive on success, negative on failure.
	Margin int
	// Detail is a human-readable account of the roll.
	Detail string
}

// defaultDifficulty is a moderate target for checks resolved without
// specialist guidance.
const defaultDifficulty = 12

// ResolveCheck resolves a d20 check with the given modifier against
// difficulty. Non-positive difficulty uses a moderate default.
func ResolveCheck(seed int64, modifier, difficulty int) CheckOutcome {
	if difficulty <= 0 {
		difficulty = defaultDifficulty
	}
	result, err := RollSeed(seed, Spec{Sides: 20, Count: 1})
	if err != nil {
		// Unreachable with a fixed valid spec; resolve as a flat failure.
		return CheckOutcome{Difficulty: difficulty, Detail: "roll failed"}
	}
	die := result.Rolls[0].Results[0]
	total := die + modifier
	return CheckOutcome{
		Total:      total,
		Difficulty: difficulty,
		Success:    total >= difficulty,
		Margin:     total - difficulty,
		Detail:     fmt.Sprintf("1d20(%d)%+d=%d vs DC %d", die, modifier, total, difficulty),
	}
}
