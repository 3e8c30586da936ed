package websocket

// Типы входящих сообщений клиента
const (
	// SESSION_SYNC запрашивает текущее состояние активных сессий пользователя
	SESSION_SYNC = "session:sync"

	// CLIENT_PING проверка связи на уровне приложения
	CLIENT_PING = "client:ping"
)

// Типы исходящих служебных сообщений
const (
	// SESSION_STATE ответ на session:sync
	SESSION_STATE = "session:state"

	// SERVER_PONG ответ на client:ping
	SERVER_PONG = "server:pong"

	// SERVER_ERROR ошибка обработки сообщения
	SERVER_ERROR = "server:error"

	// BUFFER_WARNING предупреждение о переполнении буфера клиента
	BUFFER_WARNING = "server:buffer_warning"
)
