package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"citypulse/internal/types"
)

type testRow struct {
	ID string `json:"SVC_ID"`
}

func TestDecodeEnvelope(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		body := []byte(`{"testSvc":{"list_total_count":2,"RESULT":{"CODE":"INFO-000","MESSAGE":"OK"},"row":[{"SVC_ID":"a"},{"SVC_ID":"b"}]}}`)
		env, err := decodeEnvelope[testRow](body, "testSvc")
		if err != nil {
			t.Fatalf("decodeEnvelope() error = %v", err)
		}
		if env.TotalCount != 2 || len(env.Rows) != 2 {
			t.Errorf("got total=%d rows=%d, want 2/2", env.TotalCount, len(env.Rows))
		}
		if env.Rows[0].ID != "a" {
			t.Errorf("first row ID = %q, want a", env.Rows[0].ID)
		}
	})

	t.Run("no data is a valid empty dataset", func(t *testing.T) {
		body := []byte(`{"testSvc":{"list_total_count":0,"RESULT":{"CODE":"INFO-200","MESSAGE":"no data"},"row":[]}}`)
		env, err := decodeEnvelope[testRow](body, "testSvc")
		if err != nil {
			t.Fatalf("decodeEnvelope() error = %v", err)
		}
		if env.TotalCount != 0 || env.Rows != nil {
			t.Errorf("INFO-200 should yield an empty envelope, got total=%d rows=%v", env.TotalCount, env.Rows)
		}
	})

	t.Run("top-level error result", func(t *testing.T) {
		body := []byte(`{"RESULT":{"CODE":"ERROR-500","MESSAGE":"server error"}}`)
		_, err := decodeEnvelope[testRow](body, "testSvc")
		if err == nil {
			t.Fatal("expected error for top-level RESULT")
		}
		if code := types.CodeOf(err); code != types.ErrCodeMalformedResponse {
			t.Errorf("error code = %q, want %q", code, types.ErrCodeMalformedResponse)
		}
		if !strings.Contains(err.Error(), "ERROR-500") {
			t.Errorf("error %q should carry the upstream code", err)
		}
	})

	t.Run("error result inside envelope", func(t *testing.T) {
		body := []byte(`{"testSvc":{"RESULT":{"CODE":"ERROR-336","MESSAGE":"page bounds"},"row":[]}}`)
		if _, err := decodeEnvelope[testRow](body, "testSvc"); err == nil {
			t.Fatal("expected error for non-INFO result code")
		}
	})

	t.Run("not json", func(t *testing.T) {
		if _, err := decodeEnvelope[testRow]([]byte("<html>maintenance</html>"), "testSvc"); err == nil {
			t.Fatal("expected error for non-JSON body")
		}
	})

	t.Run("service key missing", func(t *testing.T) {
		if _, err := decodeEnvelope[testRow]([]byte(`{"otherSvc":{}}`), "testSvc"); err == nil {
			t.Fatal("expected error when service key is absent")
		}
	})
}

// pagedServer serves a dataset of n rows through the open-API envelope,
// parsing the 1-based start/end indexes out of the request path.
func pagedServer(t *testing.T, service string, total int, failPage int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := calls.Add(1)
		if failPage > 0 && int(page) == failPage {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) < 5 {
			t.Errorf("unexpected request path %q", r.URL.Path)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var start, end int
		fmt.Sscanf(parts[3], "%d", &start)
		fmt.Sscanf(parts[4], "%d", &end)

		var rows []string
		for i := start; i <= end && i <= total; i++ {
			rows = append(rows, fmt.Sprintf(`{"SVC_ID":"row-%03d"}`, i))
		}
		fmt.Fprintf(w, `{"%s":{"list_total_count":%d,"RESULT":{"CODE":"INFO-000","MESSAGE":"OK"},"row":[%s]}}`,
			service, total, strings.Join(rows, ","))
	}))
	return srv, &calls
}

func TestFetchPaged(t *testing.T) {
	srv, calls := pagedServer(t, "testSvc", 5, 0)
	defer srv.Close()

	client, _ := newTestClient(t, DefaultRetryPolicy())
	rows, raw, err := fetchPaged[testRow](context.Background(), client, srv.URL, "key", "testSvc", "", 2)
	if err != nil {
		t.Fatalf("fetchPaged() error = %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("got %d rows, want 5", len(rows))
	}
	if rows[0].ID != "row-001" || rows[4].ID != "row-005" {
		t.Errorf("rows out of order: first=%q last=%q", rows[0].ID, rows[4].ID)
	}
	if calls.Load() != 3 {
		t.Errorf("fetched %d pages, want 3", calls.Load())
	}
	if pages := strings.Count(string(raw), "list_total_count"); pages != 3 {
		t.Errorf("raw retention holds %d pages, want 3", pages)
	}
}

func TestFetchPaged_PartialFailure(t *testing.T) {
	srv, _ := pagedServer(t, "testSvc", 6, 2)
	defer srv.Close()

	client, _ := newTestClient(t, RetryPolicy{MaxRetries: 0, MinWait: time.Millisecond, MaxWait: time.Millisecond})
	rows, _, err := fetchPaged[testRow](context.Background(), client, srv.URL, "key", "testSvc", "", 3)
	if err == nil {
		t.Fatal("expected error from the failing page")
	}
	if len(rows) != 3 {
		t.Errorf("got %d rows from the page before the failure, want 3", len(rows))
	}
}

func TestFetchPaged_EmptyDataset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"testSvc":{"list_total_count":0,"RESULT":{"CODE":"INFO-200","MESSAGE":"no data"},"row":[]}}`)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, DefaultRetryPolicy())
	rows, _, err := fetchPaged[testRow](context.Background(), client, srv.URL, "key", "testSvc", "", 100)
	if err != nil {
		t.Fatalf("fetchPaged() error = %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("got %d rows, want 0", len(rows))
	}
}
