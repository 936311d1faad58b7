// Package report renders admin spreadsheets.
package report

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/xuri/excelize/v2"

	"edustatus/internal/submission"
)

const sheetName = "Submissions"

// Student is the account information shown next to each submission.
type Student struct {
	Name   string
	RollNo string
}

// Header lists the columns of the submissions sheet.
var Header = []string{"id", "user_id", "name", "roll_no", "type", "status", "submitted_at", "last_submission", "details"}

// WriteSubmissions renders subs as an XLSX workbook to w. lookup may be nil.
func WriteSubmissions(w io.Writer, subs []submission.Submission, lookup func(userID string) (Student, bool)) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := setRow(f, 1, Header); err != nil {
		return err
	}
	for i, s := range subs {
		var st Student
		if lookup != nil {
			st, _ = lookup(s.UserID)
		}
		row := []string{
			s.ID, s.UserID, st.Name, st.RollNo, string(s.Type), string(s.Status),
			s.SubmittedAt, s.LastSubmission, formatDetails(s.Details),
		}
		if err := setRow(f, i+2, row); err != nil {
			return err
		}
	}
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, n int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
		return fmt.Errorf("write row %d: %w", n, err)
	}
	return nil
}

func formatDetails(d map[string]string) string {
	if len(d) == 0 {
		return ""
	}
	parts := make([]string, 0, len(d))
	for _, k := range slices.Sorted(maps.Keys(d)) {
		parts = append(parts, k+"="+d[k])
	}
	return strings.Join(parts, "; ")
}
