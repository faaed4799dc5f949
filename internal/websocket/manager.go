package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

type ClientMessage struct {
	Client  *Client
	Message []byte
}

// Manager tracks connected operator devices and fans sync events out to them.
// An operator may hold several connections (press house tablet, office
// desktop); broadcasts can exclude the device that caused the event.
type Manager struct {
	clients            map[string]*Client
	operatorIndex      map[string]map[string]bool
	clientsMutex       sync.RWMutex
	Register           chan *Client
	Unregister         chan *Client
	HandleMessage      chan *ClientMessage
	maxConnPerOperator int
	maxMessageSize     int64
	writeWait          time.Duration
	pongWait           time.Duration
	pingPeriod         time.Duration
	messageHandler     MessageHandler
}

type MessageHandler interface {
	HandleWebSocketMessage(client *Client, msg *Message) error
}

func NewManager(maxConnPerOperator int, maxMessageSize int64, writeWait, pongWait, pingPeriod time.Duration) *Manager {
	return &Manager{
		clients:            make(map[string]*Client),
		operatorIndex:      make(map[string]map[string]bool),
		Register:           make(chan *Client),
		Unregister:         make(chan *Client),
		HandleMessage:      make(chan *ClientMessage),
		maxConnPerOperator: maxConnPerOperator,
		maxMessageSize:     maxMessageSize,
		writeWait:          writeWait,
		pongWait:           pongWait,
		pingPeriod:         pingPeriod,
	}
}

func (m *Manager) SetMessageHandler(handler MessageHandler) {
	m.messageHandler = handler
}

func (m *Manager) Run() {
	for {
		select {
		case client := <-m.Register:
			m.registerClient(client)

		case client := <-m.Unregister:
			m.unregisterClient(client)

		case clientMsg := <-m.HandleMessage:
			m.processMessage(clientMsg)
		}
	}
}

func (m *Manager) registerClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if m.operatorIndex[client.OperatorID] == nil {
		m.operatorIndex[client.OperatorID] = make(map[string]bool)
	}

	if len(m.operatorIndex[client.OperatorID]) >= m.maxConnPerOperator {
		log.Printf("max connections reached for operator %s", client.OperatorID)
		close(client.Send)
		return
	}

	m.clients[client.ID] = client
	m.operatorIndex[client.OperatorID][client.ID] = true

	log.Printf("client registered: %s (operator: %s, device: %s)", client.ID, client.OperatorID, client.DeviceID)
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if _, ok := m.clients[client.ID]; ok {
		delete(m.clients, client.ID)
		delete(m.operatorIndex[client.OperatorID], client.ID)

		if len(m.operatorIndex[client.OperatorID]) == 0 {
			delete(m.operatorIndex, client.OperatorID)
		}

		close(client.Send)
		log.Printf("client unregistered: %s", client.ID)
	}
}

func (m *Manager) processMessage(clientMsg *ClientMessage) {
	var msg Message
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		log.Printf("error unmarshaling message: %v", err)
		return
	}

	if m.messageHandler != nil {
		if err := m.messageHandler.HandleWebSocketMessage(clientMsg.Client, &msg); err != nil {
			log.Printf("error handling message: %v", err)
		}
	}
}

// BroadcastToOperator sends a message to every device of one operator except
// the device that originated the event.
func (m *Manager) BroadcastToOperator(operatorID string, message *Message, excludeDeviceID string) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	var stalled []*Client

	m.clientsMutex.RLock()
	for clientID := range m.operatorIndex[operatorID] {
		client := m.clients[clientID]
		if client.DeviceID == excludeDeviceID {
			continue
		}
		select {
		case client.Send <- messageBytes:
		default:
			log.Printf("client %s send buffer full, closing connection", clientID)
			stalled = append(stalled, client)
		}
	}
	m.clientsMutex.RUnlock()

	// Unregistration needs the write lock on the manager goroutine, so it
	// must happen after the read lock is released or the broadcast stalls.
	for _, client := range stalled {
		m.Unregister <- client
	}

	return nil
}

func (m *Manager) SendToClient(clientID string, message *Message) error {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	client, exists := m.clients[clientID]
	if !exists {
		return nil
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case client.Send <- messageBytes:
	default:
		log.Printf("client %s send buffer full", clientID)
	}

	return nil
}

func (m *Manager) OperatorConnections(operatorID string) int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	if clients, exists := m.operatorIndex[operatorID]; exists {
		return len(clients)
	}
	return 0
}
