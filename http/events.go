// http/events.go
package http

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"github.com/vinizap/myworld/events"
)

const keepAlive = 15 * time.Second

// HandleEvents streams change events as server-sent events until the
// client disconnects or the hub stops.
func (s *Server) HandleEvents(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	client := s.hub.Register()
	log := s.log.With().Str("remote", c.IP()).Logger()
	log.Debug().Msg("event stream opened")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer s.hub.Unregister(client)
		defer log.Debug().Msg("event stream closed")

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		// comment line so clients see the stream is open
		if err := writeComment(w, "connected"); err != nil {
			return
		}
		for {
			select {
			case msg, ok := <-client.Messages():
				if !ok {
					return
				}
				if err := writeEvent(w, msg); err != nil {
					return
				}
			case <-ticker.C:
				if err := writeComment(w, "ping"); err != nil {
					return
				}
			}
		}
	}))
	return nil
}

func writeEvent(w *bufio.Writer, msg events.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, data); err != nil {
		return err
	}
	return w.Flush()
}

func writeComment(w *bufio.Writer, text string) error {
	if _, err := fmt.Fprintf(w, ": %s\n\n", text); err != nil {
		return err
	}
	return w.Flush()
}
