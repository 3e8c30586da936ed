package websocket

import (
	"encoding/json"
	"fmt"
	"log"
)

// Event представляет структуру WebSocket-сообщения
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// incomingEvent входящее сообщение клиента с отложенным разбором data
type incomingEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MessageHandler обрабатывает входящее сообщение определенного типа
type MessageHandler func(data json.RawMessage, client *Client) error

// Manager маршрутизирует входящие сообщения и доставляет события пользователям
type Manager struct {
	hub            HubInterface
	messageHandler map[string]MessageHandler
}

// NewManager создает новый менеджер WebSocket
func NewManager(hub HubInterface) *Manager {
	return &Manager{
		hub:            hub,
		messageHandler: make(map[string]MessageHandler),
	}
}

// RegisterHandler регистрирует обработчик для определенного типа сообщений
func (m *Manager) RegisterHandler(eventType string, handler MessageHandler) {
	m.messageHandler[eventType] = handler
	log.Printf("[WebSocketManager] Зарегистрирован обработчик для сообщений типа: %s", eventType)
}

// HandleMessage обрабатывает входящее сообщение от клиента.
// Возвращает error, если обработка не удалась и соединение нужно закрыть.
func (m *Manager) HandleMessage(message []byte, client *Client) error {
	var event incomingEvent
	if err := json.Unmarshal(message, &event); err != nil {
		log.Printf("[WebSocketManager] Некорректное сообщение от %s: %v", client.UserID, err)
		m.SendErrorToClient(client, "invalid_message_format", "Invalid JSON format")
		return err
	}

	handler, ok := m.messageHandler[event.Type]
	if !ok {
		m.SendErrorToClient(client, "unknown_message_type", fmt.Sprintf("Unknown message type: %s", event.Type))
		return nil
	}

	if err := handler(event.Data, client); err != nil {
		log.Printf("[WebSocketManager] Обработчик %q вернул ошибку для клиента %s: %v", event.Type, client.UserID, err)
		return err
	}
	return nil
}

// SendToClient отправляет событие в одно соединение
func (m *Manager) SendToClient(client *Client, eventType string, data interface{}) error {
	payload, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		return err
	}
	if !client.trySend(payload) {
		return fmt.Errorf("client %s buffer is full or closed", client.ConnectionID)
	}
	return nil
}

// SendErrorToClient отправляет сообщение об ошибке клиенту. Соединение не закрывается.
func (m *Manager) SendErrorToClient(client *Client, code string, message string) {
	err := m.SendToClient(client, SERVER_ERROR, map[string]string{
		"code":    code,
		"message": message,
	})
	if err != nil {
		log.Printf("[WebSocketManager] Не удалось отправить ошибку клиенту %s: %v", client.UserID, err)
	}
}

// BroadcastEvent отправляет событие всем клиентам
func (m *Manager) BroadcastEvent(eventType string, data interface{}) error {
	return m.hub.BroadcastJSON(Event{Type: eventType, Data: data})
}

// SendEventToUser отправляет событие всем соединениям пользователя.
// Без открытых соединений событие не сериализуется.
func (m *Manager) SendEventToUser(userID string, eventType string, data interface{}) error {
	if !m.hub.UserConnected(userID) {
		return nil
	}
	return m.hub.SendJSONToUser(userID, Event{Type: eventType, Data: data})
}

// GetMetrics возвращает текущие метрики WebSocket-системы
func (m *Manager) GetMetrics() map[string]interface{} {
	metrics := m.hub.GetMetrics()
	metrics["client_count"] = m.hub.ClientCount()
	return metrics
}
