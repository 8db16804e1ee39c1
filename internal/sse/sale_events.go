package sse

import (
	"context"
	"sync"

	"ktu-bizconnect/internal/models"
)

const clientBuffer = 16

// SaleEventEmitter fans sale events out to the SSE clients watching each sale
type SaleEventEmitter struct {
	// key: saleID, value: client channels
	clients     map[string][]chan models.SaleEvent
	clientMutex sync.RWMutex
}

// NewSaleEventEmitter creates a new SSE event emitter for quick-sale events
func NewSaleEventEmitter() *SaleEventEmitter {
	return &SaleEventEmitter{
		clients: make(map[string][]chan models.SaleEvent),
	}
}

// Subscribe adds a client to a sale's events. The channel is closed once ctx is done.
func (e *SaleEventEmitter) Subscribe(ctx context.Context, saleID string) <-chan models.SaleEvent {
	clientChan := make(chan models.SaleEvent, clientBuffer)

	e.clientMutex.Lock()
	e.clients[saleID] = append(e.clients[saleID], clientChan)
	e.clientMutex.Unlock()

	// Remove client when context is done
	go func() {
		<-ctx.Done()
		e.removeClient(saleID, clientChan)
	}()

	return clientChan
}

// Emit broadcasts an event to every subscriber of its sale. Slow clients miss events rather
// than stall the caller.
func (e *SaleEventEmitter) Emit(event models.SaleEvent) {
	e.clientMutex.RLock()
	defer e.clientMutex.RUnlock()

	for _, clientChan := range e.clients[event.SaleID] {
		select {
		case clientChan <- event:
		default:
			// Channel buffer full, skip this client
		}
	}
}

func (e *SaleEventEmitter) removeClient(saleID string, clientChan chan models.SaleEvent) {
	e.clientMutex.Lock()
	defer e.clientMutex.Unlock()

	clients := e.clients[saleID]
	for i, ch := range clients {
		if ch == clientChan {
			e.clients[saleID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}

	// Clean up map entry if no more clients
	if len(e.clients[saleID]) == 0 {
		delete(e.clients, saleID)
	}
}

// ClientCount returns the number of clients currently watching a sale
func (e *SaleEventEmitter) ClientCount(saleID string) int {
	e.clientMutex.RLock()
	defer e.clientMutex.RUnlock()
	return len(e.clients[saleID])
}
