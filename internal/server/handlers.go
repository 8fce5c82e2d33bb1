// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, the room catalog, and the built-in test page.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
)

// WebSocketHandler upgrades GET requests to WebSocket connections and hands
// the new client to the hub, which starts its read/write pumps.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr)
	if !s.hub.Register(client) {
		s.logger.Warn("rejecting connection during shutdown", "addr", r.RemoteAddr)
		_ = conn.Close()
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "GoChat server is running!")
}

// RoomsHandler lists the catalog rooms with their current member counts,
// followed by any ad-hoc rooms clients have joined outside the catalog.
func (s *Server) RoomsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed.", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.roomStatuses()); err != nil {
		s.logger.Warn("writing rooms response", "error", err)
	}
}

func (s *Server) roomStatuses() []RoomStatus {
	occupancy := s.hub.Registry().Occupancy()

	statuses := make([]RoomStatus, 0, len(s.catalog.Rooms))
	for _, room := range s.catalog.Rooms {
		statuses = append(statuses, RoomStatus{ID: room.ID, Name: room.Name, Members: occupancy[room.ID]})
		delete(occupancy, room.ID)
	}

	adHoc := make([]string, 0, len(occupancy))
	for id := range occupancy {
		adHoc = append(adHoc, id)
	}
	sort.Strings(adHoc)
	for _, id := range adHoc {
		statuses = append(statuses, RoomStatus{ID: id, Name: id, Members: occupancy[id]})
	}
	return statuses
}

// TestPageHandler serves an HTML page for trying the relay from a browser:
// pick a room, chat, and watch join/leave notices.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>GoChat Rooms Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; background-color: #f9f9f9; }
        .system { color: gray; font-style: italic; }
        .mine { color: blue; }
        .room.active { font-weight: bold; }
    </style>
</head>
<body>
    <h1>GoChat Rooms Test</h1>
    <div>Name: <input type="text" id="name" value="guest"></div>
    <div id="rooms"></div>
    <div id="messages"></div>
    <input type="text" id="messageInput" placeholder="Type a message..." disabled>
    <button id="sendButton" onclick="sendMessage()" disabled>Send</button>

    <script>
        const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
        const messagesDiv = document.getElementById('messages');
        const input = document.getElementById('messageInput');
        let currentRoom = null;

        function stamp() {
            const d = new Date();
            return String(d.getHours()).padStart(2, '0') + ':' + String(d.getMinutes()).padStart(2, '0');
        }

        function addLine(text, cls) {
            const el = document.createElement('div');
            el.className = cls || '';
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function emit(event, data) {
            ws.send(JSON.stringify({event: event, data: data}));
        }

        function joinRoom(id) {
            if (currentRoom === id) return;
            emit('join_room', {roomId: id, username: document.getElementById('name').value});
            currentRoom = id;
            messagesDiv.innerHTML = '';
            input.disabled = false;
            document.getElementById('sendButton').disabled = false;
            document.querySelectorAll('.room').forEach(b => b.classList.toggle('active', b.dataset.id === id));
        }

        function sendMessage() {
            const text = input.value;
            if (!text.trim() || !currentRoom) return;
            const msg = {author: document.getElementById('name').value, message: text, time: stamp(), roomId: currentRoom};
            emit('send_message', msg);
            addLine('[' + msg.time + '] ' + msg.author + ': ' + msg.message, 'mine');
            input.value = '';
        }

        ws.onmessage = function(event) {
            const env = JSON.parse(event.data);
            const data = env.data || {};
            if (data.roomId !== currentRoom) return;
            if (env.event === 'receive_message') {
                const system = data.isSystemMessage || String(data.author || '').toLowerCase() === 'system' ||
                    /님이 입장|님이 퇴장|has joined\.|has left\./.test(data.message || '');
                addLine(system ? data.message : '[' + data.time + '] ' + data.author + ': ' + data.message, system ? 'system' : '');
            } else if (env.event === 'room_joined') {
                addLine(data.message, 'system');
            }
        };
        ws.onclose = function() { addLine('Connection closed', 'system'); };

        fetch('/rooms').then(r => r.json()).then(rooms => {
            const div = document.getElementById('rooms');
            rooms.forEach(room => {
                const b = document.createElement('button');
                b.className = 'room';
                b.dataset.id = room.id;
                b.textContent = room.name;
                b.onclick = () => joinRoom(room.id);
                div.appendChild(b);
            });
        });

        input.addEventListener('keypress', e => { if (e.key === 'Enter') sendMessage(); });
    </script>
</body>
</html>`
