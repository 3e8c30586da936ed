package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
)

// Hub хранит подключенных клиентов. Один пользователь может держать
// несколько соединений (несколько вкладок), события получают все.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	closeOnce  sync.Once

	mu    sync.RWMutex
	users map[string]map[*Client]struct{}

	messagesSent    atomic.Int64
	messagesDropped atomic.Int64
	totalConnected  atomic.Int64
}

// NewHub создает новый хаб. Run нужно запустить отдельно.
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client, 100),
		unregister: make(chan *Client, 100),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		users:      make(map[string]map[*Client]struct{}),
	}
}

// Run обрабатывает регистрацию, отключение и рассылку до вызова Close
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.handleRegister(client)
		case client := <-h.unregister:
			h.handleUnregister(client)
		case message := <-h.broadcast:
			h.handleBroadcast(message)
		case <-h.done:
			log.Printf("[Hub] Получен сигнал завершения работы, отключаем клиентов")
			h.cleanupAllClients()
			return
		}
	}
}

// Close останавливает хаб и закрывает все соединения
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Register ставит клиента в очередь на регистрацию
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.close()
	}
}

// Unregister ставит клиента в очередь на отключение
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) handleRegister(client *Client) {
	h.mu.Lock()
	conns, ok := h.users[client.UserID]
	if !ok {
		conns = make(map[*Client]struct{})
		h.users[client.UserID] = conns
	}
	conns[client] = struct{}{}
	count := len(conns)
	h.mu.Unlock()

	h.totalConnected.Add(1)
	log.Printf("[Hub] Клиент %s (Conn: %s) зарегистрирован, соединений пользователя: %d", client.UserID, client.ConnectionID, count)

	if client.registrationComplete != nil {
		select {
		case client.registrationComplete <- struct{}{}:
		default:
		}
	}
}

func (h *Hub) handleUnregister(client *Client) {
	if !h.remove(client) {
		return
	}
	client.close()
	log.Printf("[Hub] Клиент %s (Conn: %s) отключен", client.UserID, client.ConnectionID)
}

// remove удаляет клиента из карты. Возвращает false, если его там не было.
func (h *Hub) remove(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.users[client.UserID]
	if !ok {
		return false
	}
	if _, ok := conns[client]; !ok {
		return false
	}
	delete(conns, client)
	if len(conns) == 0 {
		delete(h.users, client.UserID)
	}
	return true
}

func (h *Hub) handleBroadcast(message []byte) {
	for _, client := range h.snapshotClients("") {
		h.deliver(client, message)
	}
}

func (h *Hub) cleanupAllClients() {
	h.mu.Lock()
	users := h.users
	h.users = make(map[string]map[*Client]struct{})
	h.mu.Unlock()

	for _, conns := range users {
		for client := range conns {
			client.close()
		}
	}
}

// snapshotClients копирует список клиентов пользователя (или всех при пустом userID)
func (h *Hub) snapshotClients(userID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*Client
	if userID != "" {
		for client := range h.users[userID] {
			out = append(out, client)
		}
		return out
	}
	for _, conns := range h.users {
		for client := range conns {
			out = append(out, client)
		}
	}
	return out
}

// deliver кладет сообщение в буфер клиента. Клиент, который
// maxBufferWarnings раз подряд не успевает читать, отключается.
func (h *Hub) deliver(client *Client, message []byte) bool {
	if client.IsSendClosed() {
		return false
	}
	if client.trySend(message) {
		h.messagesSent.Add(1)
		client.resetBufferWarningCount()
		return true
	}

	h.messagesDropped.Add(1)
	newCount := client.incrementBufferWarningCount()
	if newCount >= maxBufferWarnings {
		log.Printf("[Hub] Клиент %s (Conn: %s) превысил лимит предупреждений буфера (%d), отключаем", client.UserID, client.ConnectionID, maxBufferWarnings)
		if h.remove(client) {
			client.close()
		}
		return false
	}

	log.Printf("[Hub] Буфер клиента %s (Conn: %s) заполнен, предупреждение %d/%d", client.UserID, client.ConnectionID, newCount, maxBufferWarnings)
	warning, _ := json.Marshal(Event{
		Type: BUFFER_WARNING,
		Data: map[string]interface{}{
			"warning_count": newCount,
			"max_warnings":  maxBufferWarnings,
		},
	})
	client.trySend(warning)
	return false
}

// SendToUser отправляет сообщение всем соединениям пользователя.
// Возвращает true, если доставлено хотя бы в одно.
func (h *Hub) SendToUser(userID string, message []byte) bool {
	delivered := false
	for _, client := range h.snapshotClients(userID) {
		if h.deliver(client, message) {
			delivered = true
		}
	}
	return delivered
}

// SendJSONToUser сериализует v и отправляет пользователю
func (h *Hub) SendJSONToUser(userID string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.SendToUser(userID, data)
	return nil
}

// BroadcastJSON сериализует v и рассылает всем клиентам
func (h *Hub) BroadcastJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- data:
	default:
		h.messagesDropped.Add(1)
		log.Printf("[Hub] Канал рассылки заполнен, сообщение отброшено")
	}
	return nil
}

// ClientCount возвращает количество подключенных соединений
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, conns := range h.users {
		n += len(conns)
	}
	return n
}

// UserConnected проверяет, есть ли у пользователя открытые соединения
func (h *Hub) UserConnected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// GetMetrics возвращает метрики хаба
func (h *Hub) GetMetrics() map[string]interface{} {
	h.mu.RLock()
	users := len(h.users)
	h.mu.RUnlock()
	return map[string]interface{}{
		"active_connections": h.ClientCount(),
		"connected_users":    users,
		"total_connections":  h.totalConnected.Load(),
		"messages_sent":      h.messagesSent.Load(),
		"messages_dropped":   h.messagesDropped.Load(),
	}
}
