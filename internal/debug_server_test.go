package internal

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func openInMemory(t *testing.T, entries map[string]string) *badger.DB {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		for k, v := range entries {
			if err := txn.Set([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	}))
	return db
}

func TestDebugHandler_Lists_Keys_Under_Prefix(t *testing.T) {
	req := require.New(t)
	db := openInMemory(t, map[string]string{
		"msg:1:a": "first",
		"msg:1:b": "second",
		"chat:1":  "ops",
	})
	handler := NewDebugHandler(db, "/inspect", 10, nil, func() map[string]any {
		return map[string]any{"queue_depth": 3}
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/inspect?prefix=msg:", nil))

	req.Equal(http.StatusOK, rec.Code)
	body := rec.Body.String()
	req.Contains(body, "msg:1:a")
	req.Contains(body, "msg:1:b")
	req.NotContains(body, "<td>chat:1</td>")
	req.Contains(body, "queue_depth: 3")
	req.Contains(body, "2 keys (max 10)")
}

func TestDebugHandler_Respects_Limit(t *testing.T) {
	req := require.New(t)
	db := openInMemory(t, map[string]string{"msg:1": "a", "msg:2": "b", "msg:3": "c"})
	mapper := func(key string, val []byte) InspectRow {
		return InspectRow{Key: key, Type: "MESSAGE", Detail: string(val)}
	}
	handler := NewDebugHandler(db, "/inspect", 2, mapper, nil)

	// Given no prefix the messages are listed
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/inspect", nil))

	req.Equal(http.StatusOK, rec.Code)
	req.Contains(rec.Body.String(), "2 keys (max 2)")
	req.NotContains(rec.Body.String(), "msg:3")
	req.Contains(rec.Body.String(), "MESSAGE")
}

func TestDefaultMapper(t *testing.T) {
	req := require.New(t)
	row := DefaultMapper("member:7:alice", []byte("xyz"))
	req.Equal("member:7", row.Namespace)
	req.Equal("RAW", row.Type)
	req.Equal("Size: 3 bytes", row.Detail)

	req.Equal("default", DefaultMapper("plain", nil).Namespace)
}
