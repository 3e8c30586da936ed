package websocket

import (
	"bytes"
	"fmt"
	"log"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Время, которое разрешено писать сообщение клиенту.
	writeWait = 10 * time.Second

	// Время, которое разрешено клиенту читать следующее сообщение.
	pongWait = 30 * time.Second

	// Периодичность отправки ping-сообщений клиенту.
	pingPeriod = (pongWait * 9) / 10

	// Максимальный размер входящего сообщения
	maxMessageSize = 512

	// Размер буфера канала отправки сообщений клиенту
	defaultClientBufferSize = 64

	// Максимальное количество предупреждений о переполнении буфера до отключения
	maxBufferWarnings = 3
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Client является посредником между WebSocket соединением и hub.
type Client struct {
	// ID пользователя
	UserID string

	// Роль пользователя из тикета
	Role string

	// Уникальный ID для каждого соединения
	ConnectionID string

	hub  *Hub
	conn *websocket.Conn

	// Буферизованный канал для исходящих сообщений
	send chan []byte

	// sendMu защищает запись в send и его закрытие
	sendMu     sync.Mutex
	sendClosed bool

	registrationComplete chan struct{}

	bufferWarningCount int32
	bufferWarningMutex sync.Mutex
}

// NewClient создает нового клиента
func NewClient(hub *Hub, conn *websocket.Conn, userID, role string) *Client {
	return &Client{
		hub:                  hub,
		conn:                 conn,
		send:                 make(chan []byte, defaultClientBufferSize),
		UserID:               userID,
		Role:                 role,
		ConnectionID:         uuid.New().String(),
		registrationComplete: make(chan struct{}, 1),
	}
}

// UserIDUint преобразует строковый UserID в uint. Возвращает 0 при ошибке.
func (c *Client) UserIDUint() uint {
	id, err := strconv.ParseUint(c.UserID, 10, 64)
	if err != nil {
		log.Printf("[Client %s] Ошибка преобразования UserID в uint: %v", c.UserID, err)
		return 0
	}
	return uint(id)
}

// readPump читает сообщения от клиента и передает их обработчику
func (c *Client) readPump(messageHandler func(message []byte, client *Client) error) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
		log.Printf("[Client %s][Conn %s] Read pump остановлен", c.UserID, c.ConnectionID)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("[Client %s][Conn %s] Ошибка чтения: %v", c.UserID, c.ConnectionID, err)
			}
			return
		}

		if handlerErr := safeHandleMessage(message, c, messageHandler); handlerErr != nil {
			log.Printf("[Client %s][Conn %s] Ошибка обработчика: %v. Закрываем соединение.", c.UserID, c.ConnectionID, handlerErr)
			return
		}
		c.resetBufferWarningCount()
	}
}

// safeHandleMessage вызывает обработчик с recover
func safeHandleMessage(message []byte, client *Client, messageHandler func(message []byte, client *Client) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC recovered in message handler for UserID: %s, ConnID: %s. Panic: %v\nStack trace:\n%s",
				client.UserID, client.ConnectionID, r, string(debug.Stack()))
			err = fmt.Errorf("panic recovered: %v", r)
		}
	}()
	message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))
	if messageHandler == nil {
		return nil
	}
	return messageHandler(message, client)
}

// writePump отправляет сообщения клиенту из канала send и пингует соединение
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		log.Printf("[Client %s][Conn %s] Write pump остановлен", c.UserID, c.ConnectionID)
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				// Хаб закрыл канал
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[Client %s][Conn %s] Ошибка записи: %v", c.UserID, c.ConnectionID, err)
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// StartPumps регистрирует клиента в хабе и запускает горутины чтения и записи
func (c *Client) StartPumps(messageHandler func(message []byte, client *Client) error) {
	if c.UserID == "" || c.hub == nil {
		log.Printf("[Client] Нет UserID или хаба, соединение закрыто")
		c.conn.Close()
		return
	}

	c.hub.Register(c)

	select {
	case <-c.registrationComplete:
	case <-time.After(5 * time.Second):
		log.Printf("[Client %s] Таймаут регистрации в хабе", c.UserID)
		c.conn.Close()
		return
	}

	go c.writePump()
	go c.readPump(messageHandler)
}

// trySend кладет сообщение в буфер без блокировки.
// Возвращает false, если буфер заполнен или канал закрыт.
func (c *Client) trySend(message []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// close закрывает канал send (один раз) и соединение
func (c *Client) close() {
	c.sendMu.Lock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
	c.sendMu.Unlock()
	if c.conn != nil {
		c.conn.Close()
	}
}

// IsSendClosed проверяет, закрыт ли канал send
func (c *Client) IsSendClosed() bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.sendClosed
}

func (c *Client) incrementBufferWarningCount() int32 {
	c.bufferWarningMutex.Lock()
	defer c.bufferWarningMutex.Unlock()
	c.bufferWarningCount++
	return c.bufferWarningCount
}

func (c *Client) resetBufferWarningCount() {
	c.bufferWarningMutex.Lock()
	defer c.bufferWarningMutex.Unlock()
	c.bufferWarningCount = 0
}
