// Package main runs a demo WebSocket client that follows one tracking number.
//
//	go run ./scripts DLV20240905120000ABC123
package main

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type  string         `json:"type"`
	Topic string         `json:"topic,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
	Error string         `json:"error,omitempty"`
}

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: ws_client <tracking-number>")
	}
	topic := os.Args[1]
	if !strings.HasPrefix(topic, "order_") {
		topic = "order_" + topic
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/realtime/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "subscribe", Topic: topic}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			switch m.Type {
			case "subscribed":
				log.Printf("following %s", m.Topic)
			case "error":
				log.Printf("server error: %s", m.Error)
			default:
				log.Printf("WS <- %s %s: %s -> %s %v", m.Type, m.Topic, m.Data["old_status"], m.Data["new_status"], m.Data["note"])
			}
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	select {
	case <-done:
	case <-interrupt:
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		fmt.Println()
	}
}
