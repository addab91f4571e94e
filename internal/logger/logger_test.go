package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecurityEventIsTagged(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("payment", &buf, slog.LevelDebug)

	log.Security("signature_mismatch", "payment signature rejected", "req-1", map[string]interface{}{
		"transaction_id": "tx-1",
	})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, true, entry["security_event"])
	assert.Equal(t, "signature_mismatch", entry["action"])
	assert.Equal(t, "req-1", entry["request_id"])
	details, ok := entry["details"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "tx-1", details["transaction_id"])
}

func TestErrorCarriesMessage(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("order", &buf, slog.LevelInfo)

	log.Debug("ignored", "below level", "", nil)
	log.Error("db_query_failed", "query failed", "req-2", errors.New("connection refused"), nil)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "ERROR", entry["level"])
	errGroup, ok := entry["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "connection refused", errGroup["msg"])
}

func TestGenerateRequestIDUnique(t *testing.T) {
	assert.NotEqual(t, GenerateRequestID(), GenerateRequestID())
}
