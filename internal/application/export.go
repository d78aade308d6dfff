package application

import (
	"context"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	exportSheet   = "Users"
	maxExportRows = 1000
)

var exportHeader = []any{"ID", "Email", "Role", "Referral Code", "Approved", "Verified", "Created At"}

// ExportUsers writes the users matching q as an XLSX workbook and returns the
// number of data rows.
func (s *Service) ExportUsers(ctx context.Context, q string, w io.Writer) (int, error) {
	docs, err := s.searchUsers(ctx, q, maxExportRows)
	if err != nil {
		return 0, err
	}
	if err := WriteUsersXLSX(w, docs); err != nil {
		return 0, err
	}
	return len(docs), nil
}

// WriteUsersXLSX renders docs into a single "Users" sheet with a header row.
func WriteUsersXLSX(w io.Writer, docs []UserDoc) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return err
	}
	for i, d := range docs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{d.ID, d.Email, d.Role, d.ReferralCode, d.IsApproved, d.IsVerified, d.CreatedAt.UTC().Format(time.RFC3339)}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return err
		}
	}
	return f.Write(w)
}
