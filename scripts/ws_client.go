// Package main runs a demo WebSocket client that streams the events of one run.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/gorilla/websocket"
)

const demoInstance = `5 3 2
2 0 3 1 1
1 2 4
2 0 1 2 2
1 1 5
1 0 2
3 0 4 1 3 2 4
2 1 6 2 5
4 12
`

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Store the instance
	resp, err := http.Post(base+"/v1/instances?name=demo", "text/plain", strings.NewReader(demoInstance))
	if err != nil {
		log.Fatal(err)
	}
	var inst struct {
		ID string `json:"id"`
	}
	err = json.NewDecoder(resp.Body).Decode(&inst)
	_ = resp.Body.Close()
	if err != nil || inst.ID == "" {
		log.Fatalf("create instance: status %d: %v", resp.StatusCode, err)
	}
	log.Printf("Instance ID: %s", inst.ID)

	// Start an async PSO run
	body, _ := json.Marshal(map[string]any{"instanceId": inst.ID, "algorithm": "pso", "iterations": 200})
	resp, err = http.Post(base+"/v1/solve", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatal(err)
	}
	var run struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	err = json.NewDecoder(resp.Body).Decode(&run)
	_ = resp.Body.Close()
	if err != nil || run.ID == "" {
		log.Fatalf("solve: status %d: %v", resp.StatusCode, err)
	}
	log.Printf("Run ID: %s (%s)", run.ID, run.Status)

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/runs/" + run.ID + "/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	for {
		var m struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := c.ReadJSON(&m); err != nil {
			log.Printf("read: %v", err)
			return
		}
		log.Printf("WS <- %s: %s", m.Type, string(m.Data))
		if m.Type == "run.finished" {
			return
		}
	}
}
