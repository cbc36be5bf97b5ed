package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campushq/sis-api/internal/models"
	"github.com/campushq/sis-api/internal/transition"
	appErrors "github.com/campushq/sis-api/pkg/errors"
	"github.com/campushq/sis-api/pkg/export"
)

type exportHistoryStore interface {
	History(ctx context.Context, ref transition.Ref, limit int) ([]transition.Record, error)
}

type exportStudentReader interface {
	GetByID(ctx context.Context, id string) (*models.Student, error)
}

// ExportFile is a rendered download.
type ExportFile struct {
	FileName    string
	ContentType string
	Data        []byte
}

// ExportService renders a student's status history as CSV, PDF or XLSX.
type ExportService struct {
	history  exportHistoryStore
	students exportStudentReader
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	excel    *export.ExcelExporter
	logger   *zap.Logger
}

// NewExportService constructs the service.
func NewExportService(history exportHistoryStore, students exportStudentReader, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		history:  history,
		students: students,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		excel:    export.NewExcelExporter(),
		logger:   logger,
	}
}

var historyHeaders = []string{"When", "From", "To", "Reason", "Trigger", "Actor", "Note"}

// StudentHistory renders the student's ledger in the requested format.
func (s *ExportService) StudentHistory(ctx context.Context, studentID, format string) (*ExportFile, error) {
	student, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	records, err := s.history.History(ctx, transition.Ref{Type: models.SubjectStudent, ID: studentID}, 500)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load status history")
	}

	dataset := export.Dataset{Headers: historyHeaders, Rows: make([]map[string]string, 0, len(records))}
	for _, record := range records {
		trigger := ""
		if t := record.Trigger(); t != nil {
			trigger = fmt.Sprintf("%s:%s", t.Kind, t.ID)
		}
		actor := ""
		if record.ActorID != nil {
			actor = *record.ActorID
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"When":    record.EffectiveAt.Format(time.RFC3339),
			"From":    string(record.FromStatus),
			"To":      string(record.ToStatus),
			"Reason":  string(record.Reason),
			"Trigger": trigger,
			"Actor":   actor,
			"Note":    record.Note,
		})
	}

	base := fmt.Sprintf("status-history-%s-%s", student.NIS, time.Now().UTC().Format("20060102"))
	title := fmt.Sprintf("Status history: %s", student.FullName)

	switch strings.ToLower(format) {
	case "csv", "":
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportFile{FileName: base + ".csv", ContentType: "text/csv", Data: data}, nil
	case "pdf":
		data, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportFile{FileName: base + ".pdf", ContentType: "application/pdf", Data: data}, nil
	case "xlsx":
		data, err := s.excel.Render(dataset, "History")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render xlsx")
		}
		return &ExportFile{
			FileName:    base + ".xlsx",
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Data:        data,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}
