package types

import (
	"errors"
	"fmt"
	"strings"
)

// Failure taxonomy shared by the solver, generator, simulator, and late-swap
// resolver. Callers branch with errors.Is; structured detail travels in the
// typed errors below and is reached with errors.As.
var (
	// ErrInfeasible: no assignment satisfies the hard constraints. Permanent
	// for the given input.
	ErrInfeasible = errors.New("infeasible")

	// ErrSuboptimalTimeout: the solve hit its time or node budget without
	// proving optimality. Recoverable; the best incumbent, when one exists,
	// accompanies the error.
	ErrSuboptimalTimeout = errors.New("suboptimal: time budget exhausted")

	// ErrPartialPortfolio: exposure bounds unsatisfiable at the requested
	// portfolio size. The portfolio is returned with named violations.
	ErrPartialPortfolio = errors.New("partial portfolio")

	// ErrCancelled: caller-initiated abort; partial or no result.
	ErrCancelled = errors.New("cancelled")
)

// InfeasibleError reports why no lineup can satisfy the constraints,
// naming the slots involved when the cause is slot-specific.
type InfeasibleError struct {
	Reason string
	Slots  []string
}

func (e *InfeasibleError) Error() string {
	if len(e.Slots) > 0 {
		return fmt.Sprintf("infeasible: %s (slots: %s)", e.Reason, strings.Join(e.Slots, ", "))
	}
	return fmt.Sprintf("infeasible: %s", e.Reason)
}

func (e *InfeasibleError) Unwrap() error { return ErrInfeasible }

// SwapInfeasibleError reports that forcing the still-eligible players of a
// prior lineup leaves vacated slots with no feasible completion. Distinct
// from the general solver infeasibility so the caller can decide to relax a
// lock on exactly the named slots.
type SwapInfeasibleError struct {
	Slots []string
}

func (e *SwapInfeasibleError) Error() string {
	return fmt.Sprintf("late swap infeasible: cannot fill vacated slots %s with remaining budget", strings.Join(e.Slots, ", "))
}

func (e *SwapInfeasibleError) Unwrap() error { return ErrInfeasible }

// PartialPortfolioError carries the unresolved exposure violations attached
// to a partial portfolio.
type PartialPortfolioError struct {
	Violations []ExposureViolation
}

func (e *PartialPortfolioError) Error() string {
	return fmt.Sprintf("partial portfolio: %d unresolved exposure violations", len(e.Violations))
}

func (e *PartialPortfolioError) Unwrap() error { return ErrPartialPortfolio }
