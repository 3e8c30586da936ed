package websocket

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient создает клиента без сетевого соединения
func newTestClient(hub *Hub, userID string, buffer int) *Client {
	c := NewClient(hub, nil, userID, "student")
	c.send = make(chan []byte, buffer)
	return c
}

func decodeEvent(t *testing.T, raw []byte) incomingEvent {
	t.Helper()
	var ev incomingEvent
	require.NoError(t, json.Unmarshal(raw, &ev))
	return ev
}

// ============================================================================
// Hub
// ============================================================================

func TestHub_SendToUser_AllConnections(t *testing.T) {
	// Arrange
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	tab1 := newTestClient(hub, "7", 4)
	tab2 := newTestClient(hub, "7", 4)
	other := newTestClient(hub, "8", 4)
	for _, c := range []*Client{tab1, tab2, other} {
		hub.Register(c)
		<-c.registrationComplete
	}

	// Act
	err := NewManager(hub).SendEventToUser("7", "session:tick", map[string]int{"remaining_seconds": 30})

	// Assert
	require.NoError(t, err)
	for _, c := range []*Client{tab1, tab2} {
		select {
		case msg := <-c.send:
			assert.Equal(t, "session:tick", decodeEvent(t, msg).Type)
		default:
			t.Fatalf("соединение %s не получило событие", c.ConnectionID)
		}
	}
	assert.Len(t, other.send, 0, "Другой пользователь не получает чужие события")
	assert.Equal(t, 3, hub.ClientCount())
	assert.True(t, hub.UserConnected("7"))
}

func TestManager_SendEventToUser_OfflineUserSkipped(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	// Канал не сериализуется в JSON: ошибки нет, потому что до сериализации не доходит
	err := NewManager(hub).SendEventToUser("42", "session:tick", make(chan int))

	require.NoError(t, err)
	assert.Equal(t, int64(0), hub.GetMetrics()["messages_sent"])
}

func TestHub_BroadcastEvent_ReachesEveryUser(t *testing.T) {
	// Arrange
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	student := newTestClient(hub, "7", 4)
	staff := newTestClient(hub, "1", 4)
	for _, c := range []*Client{student, staff} {
		hub.Register(c)
		<-c.registrationComplete
	}

	// Act
	err := NewManager(hub).BroadcastEvent("catalog:updated", map[string]int{"test_id": 4})

	// Assert
	require.NoError(t, err)
	for _, c := range []*Client{student, staff} {
		require.Eventually(t, func() bool { return len(c.send) == 1 }, time.Second, 5*time.Millisecond)
		ev := decodeEvent(t, <-c.send)
		assert.Equal(t, "catalog:updated", ev.Type)
		assert.JSONEq(t, `{"test_id":4}`, string(ev.Data))
	}
	assert.Eventually(t, func() bool { return hub.GetMetrics()["messages_sent"] == int64(2) }, time.Second, 5*time.Millisecond)
}

func TestHub_Unregister_ClosesSend(t *testing.T) {
	// Arrange
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	client := newTestClient(hub, "7", 4)
	hub.Register(client)
	<-client.registrationComplete

	// Act
	hub.Unregister(client)

	// Assert
	require.Eventually(t, func() bool { return client.IsSendClosed() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, hub.ClientCount())
	assert.False(t, hub.SendToUser("7", []byte(`{}`)), "Отключенному пользователю ничего не доставляется")

	// Повторное отключение безопасно
	hub.Unregister(client)
}

func TestHub_SlowClientDisconnected(t *testing.T) {
	// Arrange
	hub := NewHub()
	client := newTestClient(hub, "7", 1)
	hub.handleRegister(client)

	// Act: первое сообщение заполняет буфер, остальные не помещаются
	assert.True(t, hub.SendToUser("7", []byte(`{"n":1}`)))
	for i := 0; i < maxBufferWarnings; i++ {
		assert.False(t, hub.SendToUser("7", []byte(`{"n":2}`)))
	}

	// Assert
	assert.True(t, client.IsSendClosed(), "Клиент отключается после лимита предупреждений")
	assert.Equal(t, 0, hub.ClientCount())
	assert.Equal(t, int64(maxBufferWarnings), hub.GetMetrics()["messages_dropped"])
}

func TestHub_CloseDisconnectsEveryone(t *testing.T) {
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()

	client := newTestClient(hub, "7", 1)
	hub.Register(client)
	<-client.registrationComplete

	hub.Close()
	<-done

	assert.True(t, client.IsSendClosed())
	assert.Equal(t, 0, hub.ClientCount())
}

// ============================================================================
// Manager
// ============================================================================

func TestManager_HandleMessage_Routes(t *testing.T) {
	// Arrange
	hub := NewHub()
	manager := NewManager(hub)
	client := newTestClient(hub, "7", 4)

	var got json.RawMessage
	manager.RegisterHandler(CLIENT_PING, func(data json.RawMessage, c *Client) error {
		got = data
		return manager.SendToClient(c, SERVER_PONG, nil)
	})

	// Act
	err := manager.HandleMessage([]byte(`{"type":"client:ping","data":{"seq":3}}`), client)

	// Assert
	require.NoError(t, err)
	assert.JSONEq(t, `{"seq":3}`, string(got))
	assert.Equal(t, SERVER_PONG, decodeEvent(t, <-client.send).Type)
}

func TestManager_HandleMessage_UnknownType(t *testing.T) {
	hub := NewHub()
	manager := NewManager(hub)
	client := newTestClient(hub, "7", 4)

	err := manager.HandleMessage([]byte(`{"type":"nope"}`), client)

	require.NoError(t, err, "Неизвестный тип не закрывает соединение")
	assert.Equal(t, SERVER_ERROR, decodeEvent(t, <-client.send).Type)
}

func TestManager_HandleMessage_InvalidJSONAndHandlerError(t *testing.T) {
	hub := NewHub()
	manager := NewManager(hub)
	client := newTestClient(hub, "7", 4)
	manager.RegisterHandler("boom", func(json.RawMessage, *Client) error { return errors.New("boom") })

	assert.Error(t, manager.HandleMessage([]byte(`not json`), client))
	assert.Error(t, manager.HandleMessage([]byte(`{"type":"boom"}`), client))
}

func TestSafeHandleMessage_RecoversPanic(t *testing.T) {
	client := newTestClient(NewHub(), "7", 1)

	err := safeHandleMessage([]byte("x"), client, func([]byte, *Client) error { panic("oops") })

	assert.Error(t, err)
}
