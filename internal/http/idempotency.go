package http

import (
	"bytes"
	"crypto/sha256"
	"io"
	"net/http"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/log"
	"fintrack/internal/middleware/trace"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"

	maxIdempotencyKeyLen = 255
	idempotencyTTL       = 24 * time.Hour
	idempotencyEntries   = 10000
)

// idempotentResponse is what a keyed POST produced. A pending entry marks a
// request still being served.
type idempotentResponse struct {
	fingerprint [sha256.Size]byte
	pending     bool

	status   int
	header   http.Header
	body     []byte
	recorded time.Time
}

// idempotency replays the first successful response for a repeated
// Idempotency-Key so that a client retrying a POST does not post twice.
// Keys are remembered per process only.
type idempotency struct {
	store *cache.LRUCache[*idempotentResponse]
	now   func() time.Time
}

func newIdempotency(store *cache.LRUCache[*idempotentResponse]) *idempotency {
	return &idempotency{store: store, now: time.Now}
}

func (m *idempotency) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(HeaderIdempotencyKey)
		if r.Method != http.MethodPost || key == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !validIdempotencyKey(key) {
			writeJSON(w, r, http.StatusBadRequest, errorResponse{
				Error:     "idempotency key must be 1-255 printable ASCII characters",
				Field:     HeaderIdempotencyKey,
				RequestID: trace.GetRequestID(r.Context()),
			})
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeJSON(w, r, http.StatusBadRequest, errorResponse{
				Error:     "unreadable request body",
				Field:     "body",
				RequestID: trace.GetRequestID(r.Context()),
			})
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		storeKey := r.URL.Path + " " + key
		fingerprint := sha256.Sum256(body)

		if !m.store.SetIfAbsent(storeKey, &idempotentResponse{fingerprint: fingerprint, pending: true}) {
			m.replay(w, r, storeKey, fingerprint)
			return
		}

		rec := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// Only successes are remembered; a failed attempt may be retried.
		if rec.status < 200 || rec.status >= 300 {
			m.store.Delete(storeKey)
			return
		}
		m.store.Set(storeKey, &idempotentResponse{
			fingerprint: fingerprint,
			status:      rec.status,
			header:      replayHeaders(rec.Header()),
			body:        rec.body.Bytes(),
			recorded:    m.now(),
		})
	})
}

func (m *idempotency) replay(w http.ResponseWriter, r *http.Request, storeKey string, fingerprint [sha256.Size]byte) {
	ctx := r.Context()
	prev, ok := m.store.Get(storeKey)
	switch {
	case !ok:
		// Expired or evicted between the two lookups.
		writeJSON(w, r, http.StatusConflict, errorResponse{
			Error:     "idempotency key changed state, retry the request",
			RequestID: trace.GetRequestID(ctx),
		})
	case prev.fingerprint != fingerprint:
		writeJSON(w, r, http.StatusUnprocessableEntity, errorResponse{
			Error:     "idempotency key was used with a different request body",
			Field:     HeaderIdempotencyKey,
			RequestID: trace.GetRequestID(ctx),
		})
	case prev.pending:
		writeJSON(w, r, http.StatusConflict, errorResponse{
			Error:     "a request with this idempotency key is still in progress",
			RequestID: trace.GetRequestID(ctx),
		})
	default:
		log.FromContext(ctx).DebugContext(ctx, "Replaying idempotent response",
			"path", r.URL.Path, "recorded_at", prev.recorded.Format(time.RFC3339))
		for k, v := range prev.header {
			w.Header()[k] = append([]string(nil), v...)
		}
		w.Header().Set(HeaderReplayed, "true")
		w.WriteHeader(prev.status)
		if _, err := w.Write(prev.body); err != nil {
			log.FromContext(ctx).WarnContext(ctx, "Failed to replay response", log.FieldError, err)
		}
	}
}

func validIdempotencyKey(key string) bool {
	if len(key) > maxIdempotencyKeyLen {
		return false
	}
	for i := 0; i < len(key); i++ {
		if key[i] < 0x21 || key[i] > 0x7e {
			return false
		}
	}
	return true
}

// replayHeaders keeps the headers that describe the resource, not the
// exchange that created it.
func replayHeaders(h http.Header) http.Header {
	out := http.Header{}
	for _, k := range []string{"Content-Type", "Location"} {
		if v := h.Values(k); len(v) > 0 {
			out[k] = append([]string(nil), v...)
		}
	}
	return out
}

type recordingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (w *recordingWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}
