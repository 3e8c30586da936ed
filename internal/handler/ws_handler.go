package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"

	"github.com/yourusername/placement-api/internal/service/examsession"
	"github.com/yourusername/placement-api/internal/websocket"
	"github.com/yourusername/placement-api/pkg/auth"
)

// WSHandler обрабатывает WebSocket соединения
type WSHandler struct {
	wsHub      *websocket.Hub
	wsManager  *websocket.Manager
	sessions   *examsession.Manager
	jwtService *auth.JWTService
	upgrader   gorillaws.Upgrader
}

// NewWSHandler создает новый обработчик WebSocket.
// allowedOrigins совпадает со списком CORS; пустой Origin (не браузер) разрешен.
func NewWSHandler(
	wsHub *websocket.Hub,
	wsManager *websocket.Manager,
	sessions *examsession.Manager,
	jwtService *auth.JWTService,
	allowedOrigins []string,
) *WSHandler {
	handler := &WSHandler{
		wsHub:      wsHub,
		wsManager:  wsManager,
		sessions:   sessions,
		jwtService: jwtService,
	}
	handler.upgrader = gorillaws.Upgrader{
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		CheckOrigin:       originChecker(allowedOrigins),
		EnableCompression: true,
	}

	// Регистрируем обработчики сообщений один раз при создании обработчика
	handler.registerMessageHandlers()

	return handler
}

func originChecker(allowedOrigins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := allowed[origin]; ok {
			return true
		}
		log.Printf("WebSocket: rejected unauthorized origin: %s", origin)
		return false
	}
}

// HandleConnection обрабатывает входящее WebSocket соединение (?ticket=...)
func (h *WSHandler) HandleConnection(c *gin.Context) {
	// НЕ логируем тикет - это секретные данные аутентификации
	ticket := c.Query("ticket")
	if ticket == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing authentication ticket parameter"})
		return
	}

	claims, err := h.jwtService.ParseWSTicket(ticket)
	if err != nil {
		log.Printf("WebSocket: Invalid or expired ticket - %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired ticket"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade уже записал ответ клиенту
		log.Printf("Error upgrading connection: %v", err)
		return
	}

	log.Printf("WebSocket: Connection upgraded for UserID: %d", claims.UserID)

	client := websocket.NewClient(h.wsHub, conn, strconv.FormatUint(uint64(claims.UserID), 10), claims.Role)
	client.StartPumps(h.wsManager.HandleMessage)
}

// GetMetrics возвращает метрики WebSocket (для сотрудников)
func (h *WSHandler) GetMetrics(c *gin.Context) {
	metrics := h.wsManager.GetMetrics()
	metrics["active_sessions"] = h.sessions.Count()
	c.JSON(http.StatusOK, metrics)
}

// registerMessageHandlers регистрирует обработчики для различных типов сообщений
func (h *WSHandler) registerMessageHandlers() {
	// Клиент после переподключения запрашивает свои идущие сессии
	h.wsManager.RegisterHandler(websocket.SESSION_SYNC, func(data json.RawMessage, client *websocket.Client) error {
		userID := client.UserIDUint()
		if userID == 0 {
			h.wsManager.SendErrorToClient(client, "internal_error", "Invalid user ID format")
			return nil
		}
		if err := h.wsManager.SendToClient(client, websocket.SESSION_STATE, gin.H{
			"sessions": h.sessions.ActiveForUser(userID),
		}); err != nil {
			log.Printf("[WSHandler] Не удалось отправить session:state пользователю %s: %v", client.UserID, err)
		}
		return nil
	})

	// Проверка соединения
	h.wsManager.RegisterHandler(websocket.CLIENT_PING, func(data json.RawMessage, client *websocket.Client) error {
		if err := h.wsManager.SendToClient(client, websocket.SERVER_PONG, gin.H{
			"timestamp": time.Now().UnixMilli(),
		}); err != nil {
			log.Printf("[WSHandler] WARNING: Ошибка при отправке server:pong пользователю %s: %v", client.UserID, err)
		}
		return nil // Никогда не закрываем соединение из-за ping
	})
}
