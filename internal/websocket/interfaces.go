package websocket

// MetricsProvider определяет метод для получения метрик хаба.
type MetricsProvider interface {
	GetMetrics() map[string]interface{}
	ClientCount() int
}

// HubInterface объединяет возможности хаба, которые использует Manager.
type HubInterface interface {
	MetricsProvider

	// BroadcastJSON отправляет структуру JSON всем клиентам
	BroadcastJSON(v interface{}) error

	// SendJSONToUser отправляет структуру JSON всем соединениям пользователя
	SendJSONToUser(userID string, v interface{}) error

	// SendToUser отправляет байтовое сообщение всем соединениям пользователя
	SendToUser(userID string, message []byte) bool

	// UserConnected проверяет, есть ли у пользователя открытые соединения
	UserConnected(userID string) bool
}
