package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatalf("write gzip: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return buf.Bytes()
}

func readResponseBody(t *testing.T, res *http.Response) string {
	t.Helper()
	var r io.Reader = res.Body
	if res.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(res.Body)
		if err != nil {
			t.Fatalf("new gzip reader: %v", err)
		}
		defer zr.Close()
		r = zr
	}
	body, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

// echoOrder отвечает JSON-ом с телом запроса, как обработчики заказов.
func echoOrder(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte(`{"echo":` + string(body) + `}`))
}

func TestGzipMiddleware(t *testing.T) {
	noContent := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
	implicitOK := func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "services")
	}

	tests := []struct {
		name            string
		handler         http.HandlerFunc
		body            []byte
		headers         map[string]string
		wantStatus      int
		wantEncoding    string
		wantBody        string
		wantContentType string
	}{
		{
			name:            "compresses json for gzip clients",
			handler:         echoOrder,
			body:            []byte(`{"service_id":"landing-page"}`),
			headers:         map[string]string{"Accept-Encoding": "gzip, deflate"},
			wantStatus:      http.StatusCreated,
			wantEncoding:    "gzip",
			wantBody:        `{"echo":{"service_id":"landing-page"}}`,
			wantContentType: "application/json",
		},
		{
			name:            "plain response without accept-encoding",
			handler:         echoOrder,
			body:            []byte(`"x"`),
			wantStatus:      http.StatusCreated,
			wantBody:        `{"echo":"x"}`,
			wantContentType: "application/json",
		},
		{
			name:    "decompresses gzip request body",
			handler: echoOrder,
			body:    nil,
			headers: map[string]string{
				"Content-Encoding": "gzip",
				"Accept-Encoding":  "gzip",
			},
			wantStatus:      http.StatusCreated,
			wantEncoding:    "gzip",
			wantBody:        `{"echo":{"contact":"budi"}}`,
			wantContentType: "application/json",
		},
		{
			name:    "rejects broken gzip request body",
			handler: echoOrder,
			body:    []byte("not gzip at all"),
			headers: map[string]string{
				"Content-Encoding": "gzip",
			},
			wantStatus: http.StatusBadRequest,
			wantBody:   "invalid gzip body\n",
		},
		{
			name:       "no content stays bodyless",
			handler:    noContent,
			headers:    map[string]string{"Accept-Encoding": "gzip"},
			wantStatus: http.StatusNoContent,
		},
		{
			name:         "implicit status is compressed",
			handler:      implicitOK,
			headers:      map[string]string{"Accept-Encoding": "gzip"},
			wantStatus:   http.StatusOK,
			wantEncoding: "gzip",
			wantBody:     "services",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := tt.body
			if body == nil && tt.headers["Content-Encoding"] == "gzip" {
				body = gzipBytes(t, `{"contact":"budi"}`)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(body))
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()

			GzipMiddleware(tt.handler).ServeHTTP(rec, req)

			res := rec.Result()
			defer res.Body.Close()

			if res.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.wantStatus)
			}
			if ce := res.Header.Get("Content-Encoding"); ce != tt.wantEncoding {
				t.Fatalf("content-encoding = %q, want %q", ce, tt.wantEncoding)
			}
			if tt.wantContentType != "" && res.Header.Get("Content-Type") != tt.wantContentType {
				t.Fatalf("content-type = %q, want %q", res.Header.Get("Content-Type"), tt.wantContentType)
			}
			if got := readResponseBody(t, res); got != tt.wantBody {
				t.Fatalf("body = %q, want %q", got, tt.wantBody)
			}
		})
	}
}

func TestGzipMiddleware_NoContentHasNoTrailer(t *testing.T) {
	h := GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/user/logout", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Body.Len() != 0 {
		t.Fatalf("204 response carries %d body bytes", rec.Body.Len())
	}
	if rec.Header().Get("Content-Encoding") != "" {
		t.Fatalf("204 response must not be marked as gzip")
	}
}

func TestGzipMiddleware_VaryHeader(t *testing.T) {
	h := GzipMiddleware(http.HandlerFunc(echoOrder))

	for _, accept := range []string{"gzip", ""} {
		req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(`1`))
		if accept != "" {
			req.Header.Set("Accept-Encoding", accept)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if got := rec.Header().Values("Vary"); len(got) != 1 || got[0] != "Accept-Encoding" {
			t.Fatalf("accept %q: vary = %v", accept, got)
		}
	}
}

func TestGzipMiddleware_PooledWriterReuse(t *testing.T) {
	h := GzipMiddleware(http.HandlerFunc(echoOrder))

	payloads := []string{
		`{"order":"` + strings.Repeat("a", 4096) + `"}`,
		`{"order":"b"}`,
		`{"order":"c"}`,
	}
	for _, p := range payloads {
		req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(p))
		req.Header.Set("Accept-Encoding", "gzip")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		res := rec.Result()
		got := readResponseBody(t, res)
		res.Body.Close()

		if want := `{"echo":` + p + `}`; got != want {
			t.Fatalf("body = %.40q..., want %.40q...", got, want)
		}
	}
}
