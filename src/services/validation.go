package services

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

type RowPolicy int

const (
	// SkipInvalidRows drops and logs rows that fail conversion.
	SkipInvalidRows RowPolicy = iota
	// AbortOnInvalidRow fails the whole sync on the first bad row.
	AbortOnInvalidRow
)

// RowValidationError reports the first row rejected under AbortOnInvalidRow.
type RowValidationError struct {
	Dataset string
	Index   int
	Err     error
}

func (e *RowValidationError) Error() string {
	return fmt.Sprintf("invalid %s row at index %d: %v", e.Dataset, e.Index, e.Err)
}

func (e *RowValidationError) Unwrap() error {
	return e.Err
}

// convertRows maps raw upstream rows to models, applying policy to the rows convert rejects.
func convertRows[R any, M any](dataset string, raw []R, policy RowPolicy, logger *logrus.Entry, convert func(R) (M, error)) ([]M, error) {
	converted := make([]M, 0, len(raw))
	skipped := 0
	for i, row := range raw {
		m, err := convert(row)
		if err != nil {
			if policy == AbortOnInvalidRow {
				return nil, &RowValidationError{Dataset: dataset, Index: i, Err: err}
			}
			skipped++
			logger.WithError(err).WithField("index", i).Debug("Skipping invalid row")
			continue
		}
		converted = append(converted, m)
	}
	if skipped > 0 {
		logger.WithFields(logrus.Fields{"skipped": skipped, "kept": len(converted)}).Warnf("Skipped invalid %s rows", dataset)
	}
	return converted, nil
}
