package httpmiddleware

import (
	"net/http"

	"github.com/go-faster/jx"
)

// WriteError writes the ops server error body {"code":...,"message":...}.
// When the request carries an ID it is echoed as "request_id".
func WriteError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(msg)
	if id := RequestIDFromContext(r.Context()); id != "" {
		e.FieldStart("request_id")
		e.Str(id)
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
