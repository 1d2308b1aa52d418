// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicAuthHeader(t *testing.T) {
	h := basicAuthHeader("user", "pass")
	assert.Equal(t, "Basic dXNlcjpwYXNz", h.Get("Authorization"))

	assert.Empty(t, basicAuthHeader("user", "").Get("Authorization"))
	assert.Empty(t, basicAuthHeader("", "pass").Get("Authorization"))
}

func TestOpenWebSocketConnection_Scheme(t *testing.T) {
	_, err := OpenWebSocketConnection("http://localhost/bus", "", "", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported URL scheme")
}

func TestIsClosed(t *testing.T) {
	assert.True(t, isClosed(ErrConnectionClosed))
	assert.True(t, isClosed(fmt.Errorf("read: %w", io.EOF)))
	assert.True(t, isClosed(os.ErrClosed))
	assert.False(t, isClosed(errors.New("framing error")))
}

// bridgeServer upgrades one connection and hands it to serve
func bridgeServer(t *testing.T, serve func(*websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketConnection_Read(t *testing.T) {
	url := bridgeServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte("status"))
		conn.WriteMessage(websocket.BinaryMessage, []byte{0x04, 0x81, 0x7A, 0xFF, 0x20})
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		// Wait for the client to go away
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	conn, err := OpenWebSocketConnection(url, "", "", false)
	require.NoError(t, err)
	defer conn.Close()

	// The text message is skipped and the binary chunk is split across reads
	p := make([]byte, 3)
	n, err := conn.Read(p)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x04, 0x81, 0x7A}, p[:n])

	n, err = conn.Read(p)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0x20}, p[:n])

	_, err = conn.Read(p)
	assert.ErrorIs(t, err, ErrConnectionClosed)
	_, err = conn.Read(p)
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestWebSocketConnection_Write(t *testing.T) {
	received := make(chan []byte, 1)
	url := bridgeServer(t, func(conn *websocket.Conn) {
		messageType, data, err := conn.ReadMessage()
		if err == nil && messageType == websocket.BinaryMessage {
			received <- data
		}
	})

	conn, err := OpenWebSocketConnection(url, "", "", false)
	require.NoError(t, err)
	defer conn.Close()

	frame := []byte{0x04, 0x81, 0x7A, 0xFF}
	n, err := conn.Write(frame)
	require.NoError(t, err)
	assert.Equal(t, len(frame), n)

	select {
	case got := <-received:
		assert.Equal(t, frame, got)
	case <-time.After(2 * time.Second):
		t.Fatal("bridge never received the frame")
	}
}
