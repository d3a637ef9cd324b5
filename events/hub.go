// events/hub.go
//
// Package events fans repository changes out to connected listeners.
package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/vinizap/myworld/domain"
)

const (
	NoteCreated   = "note_created"
	NoteUpdated   = "note_updated"
	NoteDeleted   = "note_deleted"
	FolderCreated = "folder_created"
	FolderUpdated = "folder_updated"
	FolderDeleted = "folder_deleted"
)

type Message struct {
	Type   string         `json:"type"`
	ID     string         `json:"id,omitempty"`
	Note   *domain.Note   `json:"note,omitempty"`
	Folder *domain.Folder `json:"folder,omitempty"`
}

// Client receives broadcast messages until it is unregistered or falls
// too far behind.
type Client struct {
	send chan Message
}

func (c *Client) Messages() <-chan Message {
	return c.send
}

type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	buffer     int
	log        zerolog.Logger
	mu         sync.RWMutex
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		buffer:     16,
		log:        log,
	}
}

// Run dispatches messages until ctx is cancelled, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mu.Lock()
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.drop(c)

		case msg := <-h.broadcast:
			h.mu.RLock()
			var slow []*Client
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()
			for _, c := range slow {
				h.log.Warn().Str("type", msg.Type).Msg("dropping slow event listener")
				h.drop(c)
			}
		}
	}
}

func (h *Hub) drop(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

func (h *Hub) NoteChanged(msgType string, note *domain.Note) {
	h.Broadcast(Message{Type: msgType, ID: note.ID.Value(), Note: note})
}

func (h *Hub) FolderChanged(msgType string, folder *domain.Folder) {
	h.Broadcast(Message{Type: msgType, ID: folder.ID.Value(), Folder: folder})
}

func (h *Hub) Deleted(msgType string, id domain.ID) {
	h.Broadcast(Message{Type: msgType, ID: id.Value()})
}

// Register adds a listener. After the hub has stopped it returns a client
// whose channel is already closed.
func (h *Hub) Register() *Client {
	c := &Client{send: make(chan Message, h.buffer)}
	select {
	case h.register <- c:
	case <-h.done:
		close(c.send)
	}
	return c
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Len reports the number of connected listeners.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
