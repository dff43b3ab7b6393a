package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/vzs-club-api/internal/models"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
	"github.com/noah-isme/vzs-club-api/pkg/export"
)

type personSource interface {
	Visible(ctx context.Context, principal *models.Principal) ([]models.Person, error)
	Get(ctx context.Context, id int64) (*models.Person, error)
}

type ledgerSource interface {
	All(ctx context.Context, principal *models.Principal, filter models.TransactionFilter) ([]models.TransactionDetail, error)
	Summary(ctx context.Context, personID int64) (*models.LedgerSummary, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(st export.Statement) ([]byte, error)
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders person and ledger listings for download.
type ExportService struct {
	persons personSource
	ledger  ledgerSource
	csv     csvRenderer
	pdf     pdfRenderer
	logger  *zap.Logger
	clock   Clock
	loc     *time.Location
}

// NewExportService constructs an ExportService. Nil renderers fall back to
// the default CSV and PDF exporters.
func NewExportService(persons personSource, ledger ledgerSource, loc *time.Location, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		persons: persons,
		ledger:  ledger,
		csv:     csv,
		pdf:     pdf,
		logger:  logger,
		clock:   systemClock,
		loc:     loc,
	}
}

// WithClock overrides the time source used in file names.
func (s *ExportService) WithClock(clock Clock) *ExportService {
	if clock != nil {
		s.clock = clock
	}
	return s
}

var personHeaders = []string{
	"Typ členství", "Jméno", "Příjmení", "Datum narození", "Rodné číslo", "E-mail",
	"Telefon", "Obec", "PSČ", "Ulice", "Zdravotní pojišťovna", "Čas plavání", "Pohlaví",
}

// Persons renders every person visible to the caller as CSV.
func (s *ExportService) Persons(ctx context.Context, principal *models.Principal) (*ExportFile, error) {
	persons, err := s.persons.Visible(ctx, principal)
	if err != nil {
		return nil, err
	}
	data := export.Dataset{Headers: personHeaders}
	for _, p := range persons {
		insurer := ""
		if p.HealthInsuranceCompany != nil {
			insurer = strconv.Itoa(*p.HealthInsuranceCompany)
		}
		data.Append(
			models.PersonTypeLabels[p.PersonType],
			p.FirstName,
			p.LastName,
			p.DateOfBirth.Format(models.DateLayout),
			deref(p.BirthNumber),
			deref(p.Email),
			deref(p.Phone),
			deref(p.City),
			deref(p.Postcode),
			deref(p.Street),
			insurer,
			deref(p.SwimmingTime),
			string(p.Sex),
		)
	}
	return s.renderCSV("osoby", data)
}

var transactionHeaders = []string{"Osoba", "Událost", "Vlastnost", "Částka", "Typ", "Důvod", "Splatnost"}

// Transactions renders the filtered ledger as CSV. Amounts are absolute;
// the kind column tells debts from rewards.
func (s *ExportService) Transactions(ctx context.Context, principal *models.Principal, filter models.TransactionFilter) (*ExportFile, error) {
	items, err := s.ledger.All(ctx, principal, filter)
	if err != nil {
		return nil, err
	}
	data := export.Dataset{Headers: transactionHeaders}
	for _, t := range items {
		assignment := ""
		if t.FeatureAssignmentID != nil {
			assignment = strconv.FormatInt(*t.FeatureAssignmentID, 10)
		}
		data.Append(
			fullName(t.FirstName, t.LastName),
			deref(t.EventName),
			assignment,
			strconv.Itoa(t.AbsAmount()),
			kindLabel(t.Kind()),
			t.Reason,
			t.DateDue.Format(models.DateLayout),
		)
	}
	return s.renderCSV("transakce", data)
}

// Statement renders a printable ledger statement of one person.
func (s *ExportService) Statement(ctx context.Context, principal *models.Principal, personID int64) (*ExportFile, error) {
	person, err := s.persons.Get(ctx, personID)
	if err != nil {
		return nil, err
	}
	items, err := s.ledger.All(ctx, principal, models.TransactionFilter{PersonID: int64Ptr(personID)})
	if err != nil {
		return nil, err
	}
	summary, err := s.ledger.Summary(ctx, personID)
	if err != nil {
		return nil, err
	}

	now := s.clock().In(s.loc)
	st := export.Statement{
		Title:  "Výpis transakcí",
		Lines:  []string{person.FullName(), "Vystaveno " + now.Format("02.01.2006")},
		Table:  export.Dataset{Headers: []string{"Splatnost", "Důvod", "Částka", "Stav"}},
		Widths: []float64{28, 110, 27, 25},
		Summary: []string{
			fmt.Sprintf("Dluhy celkem: %d Kč, z toho nezaplaceno %d Kč", summary.TotalDebt, summary.DueDebt),
			fmt.Sprintf("Odměny celkem: %d Kč, z toho nevyplaceno %d Kč", summary.TotalReward, summary.DueReward),
		},
	}
	for _, t := range items {
		state := "nevyrovnáno"
		if t.IsSettled() {
			state = "vyrovnáno"
		}
		st.Table.Append(t.DateDue.Format("02.01.2006"), t.Reason, strconv.Itoa(t.Amount), state)
	}
	payload, err := s.pdf.Render(st)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render statement")
	}
	s.logger.Info("ledger statement rendered", zap.Int64("person_id", personID), zap.Int("rows", len(items)))
	return &ExportFile{
		Filename:    s.filename(fmt.Sprintf("vypis_%d", personID), "pdf"),
		ContentType: "application/pdf",
		Data:        payload,
	}, nil
}

func (s *ExportService) renderCSV(name string, data export.Dataset) (*ExportFile, error) {
	payload, err := s.csv.Render(data)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render export")
	}
	s.logger.Info("export rendered", zap.String("export", name), zap.Int("rows", len(data.Rows)))
	return &ExportFile{
		Filename:    s.filename(name, "csv"),
		ContentType: "text/csv; charset=utf-8",
		Data:        payload,
	}, nil
}

func (s *ExportService) filename(name, ext string) string {
	return fmt.Sprintf("%s_%s.%s", name, s.clock().In(s.loc).Format("20060102_150405"), ext)
}

func kindLabel(kind models.TransactionKind) string {
	if kind == models.TransactionDebt {
		return "dluh"
	}
	return "odměna"
}

func fullName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
