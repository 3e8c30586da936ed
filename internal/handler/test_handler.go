package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/placement-api/internal/domain/repository"
	"github.com/yourusername/placement-api/internal/handler/dto"
	"github.com/yourusername/placement-api/internal/handler/helper"
	"github.com/yourusername/placement-api/internal/service"
)

// TestHandler обрабатывает запросы, связанные с тестами
type TestHandler struct {
	testService   *service.TestService
	resultService *service.ResultService
}

// NewTestHandler создает новый обработчик тестов
func NewTestHandler(testService *service.TestService, resultService *service.ResultService) *TestHandler {
	return &TestHandler{
		testService:   testService,
		resultService: resultService,
	}
}

// CreateTest создает тест с вопросами
func (h *TestHandler) CreateTest(c *gin.Context) {
	staffID, _, _ := currentUser(c)

	var req dto.TestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data: " + err.Error()})
		return
	}
	test, err := req.ToEntity()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.testService.CreateTest(staffID, test)
	if err != nil {
		handleError(c, "TestHandler.CreateTest", err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewTestResponse(created, true, true))
}

// ListTests возвращает тесты с фильтрами status, company, search
func (h *TestHandler) ListTests(c *gin.Context) {
	page, pageSize := helper.ParsePagination(c.Query("page"), c.Query("page_size"))
	filters := repository.TestFilters{
		Status:  strings.TrimSpace(c.Query("status")),
		Company: strings.TrimSpace(c.Query("company")),
		Search:  strings.TrimSpace(c.Query("search")),
	}

	tests, total, err := h.testService.ListTests(page, pageSize, filters)
	if err != nil {
		handleError(c, "TestHandler.ListTests", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tests": dto.NewListTestResponse(tests, true),
		"total": total,
		"page":  page,
		"size":  pageSize,
	})
}

// GetTest возвращает тест с ключами ответов (для сотрудников)
func (h *TestHandler) GetTest(c *gin.Context) {
	testID := c.MustGet("testID").(uint)

	test, err := h.testService.GetTest(testID)
	if err != nil {
		handleError(c, "TestHandler.GetTest", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewTestResponse(test, true, true))
}

// UpdateTest заменяет метаданные и вопросы теста
func (h *TestHandler) UpdateTest(c *gin.Context) {
	testID := c.MustGet("testID").(uint)

	var req dto.TestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data: " + err.Error()})
		return
	}
	update, err := req.ToEntity()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	test, err := h.testService.UpdateTest(testID, update)
	if err != nil {
		handleError(c, "TestHandler.UpdateTest", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewTestResponse(test, true, true))
}

// UpdateStatus меняет статус теста
func (h *TestHandler) UpdateStatus(c *gin.Context) {
	testID := c.MustGet("testID").(uint)

	var req dto.StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data: " + err.Error()})
		return
	}

	if err := h.testService.UpdateStatus(testID, strings.TrimSpace(req.Status)); err != nil {
		handleError(c, "TestHandler.UpdateStatus", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": testID, "status": strings.TrimSpace(req.Status)})
}

// DuplicateTest создает черновую копию теста
func (h *TestHandler) DuplicateTest(c *gin.Context) {
	testID := c.MustGet("testID").(uint)
	staffID, _, _ := currentUser(c)

	copied, err := h.testService.DuplicateTest(testID, staffID)
	if err != nil {
		handleError(c, "TestHandler.DuplicateTest", err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewTestResponse(copied, true, true))
}

// DeleteTest удаляет тест. Сохраненные результаты остаются.
func (h *TestHandler) DeleteTest(c *gin.Context) {
	testID := c.MustGet("testID").(uint)

	if err := h.testService.DeleteTest(testID); err != nil {
		handleError(c, "TestHandler.DeleteTest", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Test deleted"})
}

// GetTestStatistics возвращает статистику по тесту с разбивкой по вопросам
func (h *TestHandler) GetTestStatistics(c *gin.Context) {
	testID := c.MustGet("testID").(uint)

	stats, err := h.resultService.GetTestStatistics(testID)
	if err != nil {
		handleError(c, "TestHandler.GetTestStatistics", err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetAvailableTests возвращает активные тесты, которые студент еще не проходил
func (h *TestHandler) GetAvailableTests(c *gin.Context) {
	userID, _, _ := currentUser(c)

	tests, err := h.testService.GetAvailableTests(userID)
	if err != nil {
		handleError(c, "TestHandler.GetAvailableTests", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tests": dto.NewListTestResponse(tests, false)})
}

// GetTestForStudent возвращает активный тест без ключей ответов
func (h *TestHandler) GetTestForStudent(c *gin.Context) {
	testID := c.MustGet("testID").(uint)

	test, err := h.testService.GetTestForStudent(testID)
	if err != nil {
		handleError(c, "TestHandler.GetTestForStudent", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewTestResponse(test, true, false))
}
