package ws

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/goroutine"
	"github.com/ignatzorin/marketplace-backend/internal/logger"
)

// Hub управляет всеми WebSocket клиентами и доставляет им события.
// Сохранение уведомлений в БД выполняют сервисы до рассылки, поэтому
// хаб занимается только доставкой.
type Hub struct {
	mu         sync.RWMutex
	clients    map[uuid.UUID]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan message
}

type message struct {
	userID  uuid.UUID
	payload []byte
}

// NewHub создаёт новый хаб.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan message, 32),
	}
}

// Run запускает главный цикл хаба.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case msg := <-h.broadcast:
			h.send(msg.userID, msg.payload)
		}
	}
}

// Register добавляет клиента.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister удаляет клиента.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastToUser отправляет событие всем подключениям пользователя.
// Сообщение следует контракту WebSocket API: поле "type" содержит имя
// события, "data" — полезную нагрузку.
func (h *Hub) BroadcastToUser(userID uuid.UUID, event string, data interface{}) error {
	payload := map[string]interface{}{
		"type": event,
		"data": data,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ws: не удалось сериализовать сообщение: %w", err)
	}

	h.broadcast <- message{userID: userID, payload: raw}
	return nil
}

// BroadcastStatusUpdate отправляет событие об изменении статуса сущности.
// Имя события собирается как "<entity>.status", идентификатор сущности
// подмешивается в данные.
func (h *Hub) BroadcastStatusUpdate(userID uuid.UUID, entity string, id uuid.UUID, fields map[string]interface{}) error {
	data := map[string]interface{}{"id": id}
	for k, v := range fields {
		data[k] = v
	}
	return h.BroadcastToUser(userID, entity+".status", data)
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.userID]; !ok {
		h.clients[client.userID] = make(map[*Client]struct{})
	}
	h.clients[client.userID][client] = struct{}{}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.userID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, client.userID)
		}
	}
}

func (h *Hub) send(userID uuid.UUID, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[userID] {
		select {
		case client.send <- payload:
		default:
			// Буфер клиента переполнен, закрываем соединение.
			if logger.Log != nil {
				logger.Log.WithField("user_id", userID).
					Warn("ws: буфер клиента переполнен, закрываем соединение")
			}
			goroutine.SafeGo(client.Close)
		}
	}
}
