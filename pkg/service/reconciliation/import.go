package reconciliation

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/amirasaad/ledger/pkg/domain"
	"github.com/amirasaad/ledger/pkg/domain/reconciliation"
	"github.com/amirasaad/ledger/pkg/dto"
	"github.com/amirasaad/ledger/pkg/money"
	"github.com/amirasaad/ledger/pkg/repository"
	"github.com/google/uuid"
)

// DateLayout is the statement date format.
const DateLayout = "2006-01-02"

var csvColumns = []string{"date", "description", "amount", "reference"}

// ImportItems appends statement rows as PENDING items. Bad rows are reported
// individually and do not abort the import.
func (s *Service) ImportItems(ctx context.Context, id uuid.UUID, rows []dto.StatementRow) (*dto.ImportReport, error) {
	report := &dto.ImportReport{ReconciliationID: id, Errors: []dto.RowError{}}
	_, err := s.mutate(ctx, id, func(_ repository.UnitOfWork, repo repository.ReconciliationRepository, _ *reconciliation.Reconciliation) error {
		report.Imported = 0
		report.Errors = report.Errors[:0]

		existing, err := repo.Items(ctx, id, repository.ItemFilter{})
		if err != nil {
			return err
		}
		line := 0
		for _, it := range existing {
			if it.Line > line {
				line = it.Line
			}
		}

		now := s.now()
		items := make([]reconciliation.Item, 0, len(rows))
		for i, row := range rows {
			item, err := parseRow(row)
			if err != nil {
				at := row.Line
				if at == 0 {
					at = i + 1
				}
				report.Errors = append(report.Errors, dto.RowError{Row: at, Reason: err.Error()})
				continue
			}
			line++
			item.ID = uuid.New()
			item.ReconciliationID = id
			item.Line = line
			item.MatchStatus = reconciliation.MatchPending
			item.CreatedAt = now
			item.UpdatedAt = now
			items = append(items, item)
		}
		if err := repo.AddItems(ctx, items); err != nil {
			return err
		}
		report.Imported = len(items)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("statement imported",
		"reconciliation_id", id,
		"imported", report.Imported,
		"rejected", len(report.Errors))
	return report, nil
}

// ImportCSV reads a statement with a date,description,amount,reference
// header and imports it. Column order follows the header.
func (s *Service) ImportCSV(ctx context.Context, id uuid.UUID, r io.Reader) (*dto.ImportReport, error) {
	rows, err := ReadCSV(r)
	if err != nil {
		return nil, err
	}
	return s.ImportItems(ctx, id, rows)
}

// ReadCSV decodes statement rows. The reference column is optional.
func ReadCSV(r io.Reader) ([]dto.StatementRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, domain.NewValidationError("file", "empty statement")
	}
	if err != nil {
		return nil, domain.NewValidationError("file", err.Error())
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, col := range csvColumns[:3] {
		if _, ok := index[col]; !ok {
			return nil, domain.NewValidationError("file", fmt.Sprintf("missing column %q", col))
		}
	}

	field := func(rec []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var rows []dto.StatementRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, domain.NewValidationError("file", err.Error())
		}
		line, _ := cr.FieldPos(0)
		rows = append(rows, dto.StatementRow{
			Date:        field(rec, "date"),
			Description: field(rec, "description"),
			Amount:      field(rec, "amount"),
			Reference:   field(rec, "reference"),
			Line:        line,
		})
	}
	return rows, nil
}

func parseRow(row dto.StatementRow) (reconciliation.Item, error) {
	date, err := time.Parse(DateLayout, strings.TrimSpace(row.Date))
	if err != nil {
		return reconciliation.Item{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", row.Date)
	}
	amount, err := money.Parse(row.Amount)
	if err != nil {
		return reconciliation.Item{}, err
	}
	if err := money.ValidateScale(amount); err != nil {
		return reconciliation.Item{}, err
	}
	if amount.IsZero() {
		return reconciliation.Item{}, errors.New("amount must not be zero")
	}
	desc := strings.TrimSpace(row.Description)
	if len(desc) > 500 {
		return reconciliation.Item{}, errors.New("description longer than 500 characters")
	}
	return reconciliation.Item{
		TransactionDate: date.UTC(),
		Description:     desc,
		Amount:          amount,
		Reference:       strings.TrimSpace(row.Reference),
	}, nil
}
