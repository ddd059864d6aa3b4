package domain

import (
	"fmt"
	"strings"
	"time"
)

// DataAlignmentError is the fatal error raised when the fund has dates no
// asset series covers. It names the missing dates so callers can surface a
// structured payload rather than a generic failure.
type DataAlignmentError struct {
	MissingDates   []time.Time // fund dates with no matching asset data
	LatestComplete time.Time   // latest date covered by every series
	FundMax        time.Time   // the fund's maximum date
}

func (e *DataAlignmentError) Error() string {
	dates := make([]string, len(e.MissingDates))
	for i, d := range e.MissingDates {
		dates[i] = d.Format("2006-01-02")
	}
	return fmt.Sprintf(
		"fund dates missing asset data: [%s] (latest complete %s, fund max %s)",
		strings.Join(dates, ", "),
		e.LatestComplete.Format("2006-01-02"),
		e.FundMax.Format("2006-01-02"),
	)
}

// InsufficientDataError is fatal: fewer aligned observations than the
// configured minimum.
type InsufficientDataError struct {
	Months  int
	Minimum int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %d aligned months, minimum is %d", e.Months, e.Minimum)
}

// ModelFitError is recovered locally: the model is excluded from downstream
// computation and the pipeline continues.
type ModelFitError struct {
	Model string
	Err   error
}

func (e *ModelFitError) Error() string {
	return fmt.Sprintf("model %s failed to fit: %v", e.Model, e.Err)
}

func (e *ModelFitError) Unwrap() error { return e.Err }

// NoUsableModelsError is the fatal escalation when every model fit failed.
type NoUsableModelsError struct {
	Attempted int
}

func (e *NoUsableModelsError) Error() string {
	return fmt.Sprintf("no usable models: all %d model fits failed", e.Attempted)
}

// DegenerateInputError marks a zero-variance input. Handled as a null
// statistic, never fatal.
type DegenerateInputError struct {
	Symbol string
}

func (e *DegenerateInputError) Error() string {
	return fmt.Sprintf("degenerate input: %s has zero variance", e.Symbol)
}

// SerializationError reports a non-finite number that reached the output
// boundary. The report assembler sanitizes values precisely so this never
// happens; if it does, the run fails rather than emitting invalid JSON.
type SerializationError struct {
	Field string
	Value float64
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("non-finite value %v in report field %s", e.Value, e.Field)
}
