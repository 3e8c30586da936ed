package handler

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/raykov/gofpdf"

	"github.com/yourusername/placement-api/internal/service"
)

// ReportHandler формирует PDF отчеты об успеваемости студентов
type ReportHandler struct {
	resultService *service.ResultService
}

// NewReportHandler создает новый обработчик отчетов
func NewReportHandler(resultService *service.ResultService) *ReportHandler {
	return &ReportHandler{
		resultService: resultService,
	}
}

// GetMyReport отдает отчет текущего студента
func (h *ReportHandler) GetMyReport(c *gin.Context) {
	userID, _, _ := currentUser(c)
	h.sendReport(c, userID)
}

// GetStudentReport отдает отчет выбранного студента (для сотрудников)
func (h *ReportHandler) GetStudentReport(c *gin.Context) {
	h.sendReport(c, c.MustGet("userID").(uint))
}

func (h *ReportHandler) sendReport(c *gin.Context, userID uint) {
	report, err := h.resultService.GetPerformanceReport(userID)
	if err != nil {
		handleError(c, "ReportHandler", err)
		return
	}

	// Рендерим в буфер: при ошибке еще можно ответить JSON
	var buf bytes.Buffer
	if err := renderPerformanceReport(&buf, report); err != nil {
		log.Printf("[ReportHandler] Ошибка формирования PDF для пользователя ID=%d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate report"})
		return
	}

	filename := fmt.Sprintf("performance_%s_%s.pdf", report.User.Username, report.GeneratedAt.Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

// renderPerformanceReport рисует отчет: шапка со сведениями о студенте,
// сводка и таблица результатов по тестам
func renderPerformanceReport(w io.Writer, report *service.PerformanceReport) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Performance Report", true)
	pdf.SetAuthor("placement-api", true)
	pdf.AddPage()

	user := report.User
	details := user.GetDetails()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, "Performance Report", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 6, "Generated "+report.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC"), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, "Student", "B", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	info := [][2]string{
		{"Name", user.DisplayName()},
		{"Username", user.Username},
		{"Email", user.Email},
		{"Department", details.Department},
		{"Year", details.Year},
		{"Batch", details.Batch},
	}
	for _, row := range info {
		if row[1] == "" {
			continue
		}
		pdf.CellFormat(40, 6, row[0]+":", "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, tr(row[1]), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	stats := report.Stats
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, "Summary", "B", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	summary := [][2]string{
		{"Tests taken", fmt.Sprintf("%d", stats.TotalTests)},
		{"Passed", fmt.Sprintf("%d", stats.Passed)},
		{"Failed", fmt.Sprintf("%d", stats.Failed)},
		{"Average score", fmt.Sprintf("%.1f%%", stats.AverageScore)},
		{"Pass rate", fmt.Sprintf("%.1f%%", stats.PassRate)},
	}
	for _, row := range summary {
		pdf.CellFormat(40, 6, row[0]+":", "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, row[1], "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, "Results", "B", 1, "L", false, 0, "")
	pdf.Ln(2)

	widths := []float64{60, 40, 20, 25, 25, 20}
	headers := []string{"Test", "Company", "Score", "Correct", "Verdict", "Date"}
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, header := range headers {
		pdf.CellFormat(widths[i], 7, header, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	if len(report.Results) == 0 {
		pdf.CellFormat(sum(widths), 7, "No tests taken yet", "1", 1, "C", false, 0, "")
	}
	for _, r := range report.Results {
		pdf.CellFormat(widths[0], 7, tr(truncate(r.TestName, 34)), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 7, tr(truncate(r.Company, 22)), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[2], 7, fmt.Sprintf("%d%%", r.Score), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[3], 7, fmt.Sprintf("%d/%d", r.CorrectAnswers, r.TotalQuestions), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[4], 7, r.Verdict, "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[5], 7, r.SubmittedAt.UTC().Format("02.01.06"), "1", 1, "C", false, 0, "")
	}

	if err := pdf.Error(); err != nil {
		return err
	}
	return pdf.Output(w)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}
