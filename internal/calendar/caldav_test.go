package calendar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// davServer is a minimal CalDAV collection at /cal holding raw iCalendar
// objects. With failCode set every non-PROPFIND request fails with that
// status and failBody as a text/plain body.
type davServer struct {
	mu       sync.Mutex
	objects  map[string][]byte
	etags    map[string]string
	seq      int
	omitETag bool
	failCode int
	failBody string
	methods  []string
}

func (s *davServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Method == "PROPFIND" {
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.WriteHeader(http.StatusMultiStatus)
		io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><d:multistatus xmlns:d="DAV:"></d:multistatus>`)
		return
	}
	s.methods = append(s.methods, r.Method+" "+r.URL.Path)
	if s.failCode != 0 {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(s.failCode)
		io.WriteString(w, s.failBody)
		return
	}

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		s.seq++
		s.objects[r.URL.Path] = body
		s.etags[r.URL.Path] = fmt.Sprintf("v%d", s.seq)
		if !s.omitETag {
			w.Header().Set("ETag", `"`+s.etags[r.URL.Path]+`"`)
		}
		w.WriteHeader(http.StatusCreated)
	case http.MethodGet:
		body, ok := s.objects[r.URL.Path]
		if !ok {
			http.Error(w, "no such object", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Header().Set("ETag", `"`+s.etags[r.URL.Path]+`"`)
		w.Write(body)
	case http.MethodDelete:
		if _, ok := s.objects[r.URL.Path]; !ok {
			http.Error(w, "no such object", http.StatusNotFound)
			return
		}
		delete(s.objects, r.URL.Path)
		delete(s.etags, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *davServer) fail(code int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCode, s.failBody = code, body
}

func (s *davServer) object(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.objects[path])
}

func (s *davServer) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.methods...)
}

func newTestCalDAVClient(t *testing.T) (*CalDAVClient, *davServer, *httptest.Server) {
	t.Helper()
	dav := &davServer{objects: map[string][]byte{}, etags: map[string]string{}}
	srv := httptest.NewServer(dav)
	t.Cleanup(srv.Close)

	client, err := NewCalDAVClient(context.Background(), srv.Client(), srv.URL, "ops", "secret", srv.URL+"/cal/", time.UTC)
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	return client, dav, srv
}

func testRemoteEvent() RemoteEvent {
	start := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	return RemoteEvent{Summary: "FI: Kim", Start: start, End: start.Add(time.Hour), Status: "confirmed"}
}

func TestCalDAVCreateReturnsUIDAndEtag(t *testing.T) {
	client, dav, _ := newTestCalDAVClient(t)

	ref, err := client.Create(context.Background(), testRemoteEvent())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(ref.RemoteID, "opscal-") {
		t.Errorf("unexpected remote id %q", ref.RemoteID)
	}
	if ref.VersionTag != "v1" {
		t.Errorf("expected etag v1, got %q", ref.VersionTag)
	}
	body := dav.object("/cal/" + ref.RemoteID + ".ics")
	if !strings.Contains(body, "SUMMARY:FI: Kim") || !strings.Contains(body, "DTSTART:20250301T080000Z") {
		t.Errorf("unexpected object:\n%s", body)
	}
}

func TestCalDAVCreateReadsBackMissingEtag(t *testing.T) {
	client, dav, _ := newTestCalDAVClient(t)
	dav.mu.Lock()
	dav.omitETag = true
	dav.mu.Unlock()

	ref, err := client.Create(context.Background(), testRemoteEvent())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ref.VersionTag != "v1" {
		t.Errorf("expected etag v1, got %q", ref.VersionTag)
	}
}

func TestCalDAVUpdateReturnsNewEtag(t *testing.T) {
	client, _, _ := newTestCalDAVClient(t)
	ref, err := client.Create(context.Background(), testRemoteEvent())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ev := testRemoteEvent()
	ev.Summary = "FI: Lee"
	tag, err := client.Update(context.Background(), ref.RemoteID, ev)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if tag == "" || tag == ref.VersionTag {
		t.Errorf("expected a new etag, got %q", tag)
	}
}

func TestCalDAVMissingObject(t *testing.T) {
	client, dav, _ := newTestCalDAVClient(t)

	if err := client.Delete(context.Background(), "opscal-gone"); err != nil {
		t.Errorf("delete of missing object: %v", err)
	}

	_, err := client.Update(context.Background(), "opscal-gone", testRemoteEvent())
	if !errors.Is(err, ErrRemoteNotFound) {
		t.Errorf("expected ErrRemoteNotFound, got %v", err)
	}
	for _, m := range dav.seen() {
		if strings.HasPrefix(m, http.MethodPut) {
			t.Errorf("update recreated the missing object: %v", dav.seen())
		}
	}
}

func TestCalDAVClassifiesByStatusNotBody(t *testing.T) {
	tests := []struct {
		name string
		code int
		body string
		want error
	}{
		{name: "not found", code: http.StatusNotFound, body: "no such object", want: ErrRemoteNotFound},
		{name: "gone", code: http.StatusGone, want: ErrRemoteNotFound},
		{name: "server error with digits in body", code: http.StatusInternalServerError, body: "backend error, trace id 84041", want: ErrRemoteUnavailable},
		{name: "server error quoting a status", code: http.StatusServiceUnavailable, body: "404 Not Found from upstream", want: ErrRemoteUnavailable},
		{name: "rate limited", code: http.StatusTooManyRequests, want: ErrRemoteUnavailable},
		{name: "forbidden", code: http.StatusForbidden, body: "read only calendar", want: ErrRemoteRejected},
		{name: "precondition failed", code: http.StatusPreconditionFailed, want: ErrRemoteRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, dav, _ := newTestCalDAVClient(t)
			dav.fail(tt.code, tt.body)

			_, err := client.Update(context.Background(), "opscal-1", testRemoteEvent())
			if !errors.Is(err, tt.want) {
				t.Errorf("update: expected %v, got %v", tt.want, err)
			}

			err = client.Delete(context.Background(), "opscal-1")
			if tt.want == ErrRemoteNotFound {
				if err != nil {
					t.Errorf("delete: expected nil, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("delete: expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCalDAVTransportFailureIsUnavailable(t *testing.T) {
	client, _, srv := newTestCalDAVClient(t)
	srv.Close()

	if err := client.Delete(context.Background(), "opscal-1"); !errors.Is(err, ErrRemoteUnavailable) {
		t.Errorf("expected ErrRemoteUnavailable, got %v", err)
	}
	if _, err := client.Create(context.Background(), testRemoteEvent()); !errors.Is(err, ErrRemoteUnavailable) {
		t.Errorf("expected ErrRemoteUnavailable, got %v", err)
	}
}
