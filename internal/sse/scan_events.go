package sse

import (
	"context"
	"sync"

	"ms-checkin/internal/models"
)

const hallAll = "*"

// ScanEventEmitter manages SSE subscriptions and broadcast for the live
// scan feed. Dashboards subscribe to one hall or to every hall.
type ScanEventEmitter struct {
	clients     map[string][]chan models.ScanEvent
	clientMutex sync.RWMutex
}

func NewScanEventEmitter() *ScanEventEmitter {
	return &ScanEventEmitter{
		clients: make(map[string][]chan models.ScanEvent),
	}
}

// Subscribe registers a client for scan events in the given hall; an empty
// hall means all halls. The subscription is dropped when ctx is done.
func (e *ScanEventEmitter) Subscribe(ctx context.Context, hall string) chan models.ScanEvent {
	if hall == "" {
		hall = hallAll
	}
	clientChan := make(chan models.ScanEvent, 10)

	e.clientMutex.Lock()
	e.clients[hall] = append(e.clients[hall], clientChan)
	e.clientMutex.Unlock()

	go func() {
		<-ctx.Done()
		e.removeClient(hall, clientChan)
	}()

	return clientChan
}

// Emit broadcasts a scan event to hall subscribers and all-hall subscribers.
// Sends are non-blocking: a slow dashboard drops events instead of stalling
// the check-in path. The read lock is held across the sends so removeClient
// cannot close a channel mid-broadcast.
func (e *ScanEventEmitter) Emit(event models.ScanEvent) {
	e.clientMutex.RLock()
	defer e.clientMutex.RUnlock()

	targets := make([]chan models.ScanEvent, 0, len(e.clients[hallAll])+len(e.clients[event.Hall]))
	targets = append(targets, e.clients[hallAll]...)
	if event.Hall != "" && event.Hall != hallAll {
		targets = append(targets, e.clients[event.Hall]...)
	}

	for _, clientChan := range targets {
		select {
		case clientChan <- event:
		default:
			// Channel buffer full, skip this client.
		}
	}
}

func (e *ScanEventEmitter) removeClient(hall string, clientChan chan models.ScanEvent) {
	e.clientMutex.Lock()
	defer e.clientMutex.Unlock()

	clients := e.clients[hall]
	for i, ch := range clients {
		if ch == clientChan {
			e.clients[hall] = append(clients[:i], clients[i+1:]...)
			close(ch)
			break
		}
	}
	if len(e.clients[hall]) == 0 {
		delete(e.clients, hall)
	}
}
