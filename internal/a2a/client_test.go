package a2a

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/companioncore/internal/interaction"
)

func TestMessageSendParams_Serialization(t *testing.T) {
	msg := NewTextMessage("user", "Hello", map[string]any{
		"userId":    "test-user",
		"personaId": "hannah",
	})

	params := MessageSendParams{Message: msg}

	data, err := json.Marshal(params)
	require.NoError(t, err)

	var parsed map[string]any
	err = json.Unmarshal(data, &parsed)
	require.NoError(t, err)

	assert.NotNil(t, parsed["message"])
	message, ok := parsed["message"].(map[string]any)
	require.True(t, ok)

	metadata, ok := message["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hannah", metadata["personaId"])
	assert.Equal(t, "test-user", metadata["userId"])
}

func TestJSONRPCRequest_SendMethod(t *testing.T) {
	msg := NewTextMessage("user", "What's the weather?", map[string]any{
		"userId":    "user-123",
		"personaId": "hannah",
	})

	rpcReq := JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  "message/send",
		Params:  MessageSendParams{Message: msg},
		ID:      1,
	}

	data, err := json.Marshal(rpcReq)
	require.NoError(t, err)

	var parsed map[string]any
	err = json.Unmarshal(data, &parsed)
	require.NoError(t, err)

	assert.Equal(t, "2.0", parsed["jsonrpc"])
	assert.Equal(t, "message/send", parsed["method"])
}

func TestJSONRPCRequest_StreamMethod(t *testing.T) {
	msg := NewTextMessage("user", "Stream this", nil)

	rpcReq := JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  "message/stream",
		Params:  MessageSendParams{Message: msg},
		ID:      1,
	}

	data, err := json.Marshal(rpcReq)
	require.NoError(t, err)

	var parsed map[string]any
	err = json.Unmarshal(data, &parsed)
	require.NoError(t, err)

	assert.Equal(t, "message/stream", parsed["method"])
}

func TestNewTextMessage_WithMetadata(t *testing.T) {
	metadata := map[string]any{
		"userId":    "test-user",
		"personaId": "hannah",
	}
	msg := NewTextMessage("user", "Test message", metadata)

	assert.Equal(t, "user", msg.Role)
	require.Len(t, msg.Parts, 1)

	textPart, ok := msg.Parts[0].(TextPart)
	require.True(t, ok)
	assert.Equal(t, "text", textPart.Kind)
	assert.Equal(t, "Test message", textPart.Text)

	assert.Equal(t, "test-user", msg.Metadata["userId"])
	assert.Equal(t, "hannah", msg.Metadata["personaId"])
}

func TestStreamingResponse_Structure(t *testing.T) {
	resp := StreamingResponse{
		Text:    "Hello world",
		Delta:   "world",
		IsFinal: false,
		State:   TaskStateWorking,
		Message: nil,
		Error:   nil,
	}
	assert.Equal(t, "Hello world", resp.Text)
	assert.Equal(t, "world", resp.Delta)
	assert.False(t, resp.IsFinal)
	assert.Equal(t, TaskStateWorking, resp.State)
}

func TestStreamingResponse_FinalState(t *testing.T) {
	msg := NewTextMessage("agent", "Final response", nil)
	resp := StreamingResponse{
		Text:    "Final response",
		Delta:   "",
		IsFinal: true,
		State:   TaskStateCompleted,
		Message: msg,
	}
	assert.True(t, resp.IsFinal)
	assert.Equal(t, TaskStateCompleted, resp.State)
	assert.NotNil(t, resp.Message)
}

func TestStreamingResponse_ErrorState(t *testing.T) {
	resp := StreamingResponse{
		IsFinal: true,
		Error:   assert.AnError,
	}
	assert.True(t, resp.IsFinal)
	assert.Error(t, resp.Error)
}

func TestTaskEvent_StreamingFields(t *testing.T) {
	msg := NewTextMessage("agent", "Streaming chunk", nil)
	event := TaskEvent{
		EventType: "status-update",
		TaskID:    "task-123",
		State:     TaskStateWorking,
		Message:   msg,
		Final:     false,
	}
	assert.Equal(t, "status-update", event.EventType)
	assert.Equal(t, TaskStateWorking, event.State)
	assert.False(t, event.Final)
	assert.NotNil(t, event.Message)
}

func TestTaskEvent_FinalEvent(t *testing.T) {
	msg := NewTextMessage("agent", "Complete response", nil)
	event := TaskEvent{
		EventType: "status-update",
		TaskID:    "task-456",
		State:     TaskStateCompleted,
		Message:   msg,
		Final:     true,
	}
	assert.True(t, event.Final)
	assert.Equal(t, TaskStateCompleted, event.State)
}

func TestTaskState_Constants(t *testing.T) {
	assert.Equal(t, TaskState("submitted"), TaskStateSubmitted)
	assert.Equal(t, TaskState("working"), TaskStateWorking)
	assert.Equal(t, TaskState("completed"), TaskStateCompleted)
	assert.Equal(t, TaskState("failed"), TaskStateFailed)
	assert.Equal(t, TaskState("canceled"), TaskStateCanceled)
}

func TestMessage_ExtractText(t *testing.T) {
	msg := &Message{
		Role: "agent",
		Parts: []Part{
			TextPart{Kind: "text", Text: "First part"},
			TextPart{Kind: "text", Text: "Second part"},
		},
	}
	extracted := msg.ExtractText()
	assert.Equal(t, "First part\nSecond part", extracted)
}

func TestMessage_ExtractText_SinglePart(t *testing.T) {
	msg := NewTextMessage("agent", "Single text", nil)
	extracted := msg.ExtractText()
	assert.Equal(t, "Single text", extracted)
}

func TestMessage_ExtractText_MixedParts(t *testing.T) {
	msg := &Message{
		Role: "agent",
		Parts: []Part{
			TextPart{Kind: "text", Text: "Text content"},
			DataPart{Kind: "data", Data: map[string]any{"key": "value"}},
			FilePart{Kind: "file", Bytes: "base64"},
		},
	}
	extracted := msg.ExtractText()
	assert.Equal(t, "Text content", extracted)
}

// --- Client.SendMessage, exercised against a fake agent server ---

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(&ClientConfig{ServerURL: srv.URL, Timeout: 2 * time.Second}, zerolog.Nop())
}

func TestSendMessage_ScopesMetadataToKey(t *testing.T) {
	var gotMetadata map[string]any
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))

		params, ok := raw["params"].(map[string]any)
		require.True(t, ok)
		message, ok := params["message"].(map[string]any)
		require.True(t, ok)
		gotMetadata, _ = message["metadata"].(map[string]any)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      1,
			Result: map[string]any{
				"message": map[string]any{
					"role":  "agent",
					"parts": []map[string]any{{"kind": "text", "text": "reply"}},
				},
			},
		})
	})

	key := interaction.Key{UserID: "u1", ModelID: "hannah"}
	resp, err := client.SendMessage(context.Background(), key, "hi")
	require.NoError(t, err)
	assert.Equal(t, "reply", resp.ExtractText())
	assert.Equal(t, "u1", gotMetadata["userId"])
	assert.Equal(t, "hannah", gotMetadata["personaId"])
}

func TestSendMessage_PropagatesRPCError(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      1,
			Error:   &JSONRPCError{Code: 500, Message: "agent unavailable"},
		})
	})

	_, err := client.SendMessage(context.Background(), interaction.Key{UserID: "u1", ModelID: "m1"}, "hi")
	require.Error(t, err)
}

func TestIsConnected_FollowsConnect(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(AgentCard{Name: "test-agent", Version: "1.0"})
	})

	assert.False(t, client.IsConnected())
	require.NoError(t, client.Connect(context.Background()))
	assert.True(t, client.IsConnected())
}
