// Package httpapi registers the HTTP and WebSocket surface over a
// session.Manager: the streaming endpoint, the JSON status/transcript/
// changes views, the HTML listing/practice/compare pages, and static
// file serving for assets and recordings. Adapted from the teacher's
// flat, raw http.HandleFunc registration style and sendJSONError helper
// idiom (cmd/server/main.go), generalized from the teacher's meeting/
// video surface to this spec's session surface.
package httpapi

import (
	"encoding/json"
	"html/template"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"

	"speechbridge/internal/apperr"
	"speechbridge/internal/compare"
	"speechbridge/internal/resource"
	"speechbridge/internal/session"
	"speechbridge/internal/sessionstore"
)

// Server holds everything the HTTP surface needs to serve requests: the
// session manager, the directories static content is read from, and the
// parsed HTML templates.
type Server struct {
	Manager       *session.Manager
	Store         *sessionstore.Store
	AssetsDir     string
	RecordingsDir string

	templates *template.Template
	upgrader  websocket.Upgrader
}

// New parses the HTML templates under templatesDir and returns a Server
// ready to have its routes registered.
func New(mgr *session.Manager, store *sessionstore.Store, assetsDir, recordingsDir, templatesDir string) (*Server, error) {
	tmpl, err := template.ParseGlob(templatesDir + "/*.html")
	if err != nil {
		return nil, err
	}
	return &Server{
		Manager:       mgr,
		Store:         store,
		AssetsDir:     assetsDir,
		RecordingsDir: recordingsDir,
		templates:     tmpl,
		upgrader:      websocket.Upgrader{CheckOrigin: checkOrigin},
	}, nil
}

// checkOrigin mirrors the teacher's ALLOWED_ORIGINS check on the
// meeting/video WebSocket upgraders exactly, including the
// default-allow-with-warning behavior when unset.
func checkOrigin(r *http.Request) bool {
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("WARNING: ALLOWED_ORIGINS not set - allowing all origins (development mode)")
		return true
	}

	origin := r.Header.Get("Origin")
	for _, allowed := range strings.Split(allowedOriginsEnv, ",") {
		if strings.TrimSpace(allowed) == origin {
			return true
		}
	}
	log.Printf("Rejected WebSocket connection from unauthorized origin: %s", origin)
	return false
}

// Register wires every route this package serves onto mux, in the
// teacher's flat HandleFunc style.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/close/", s.handleClose)
	mux.HandleFunc("/status/", s.handleStatus)
	mux.HandleFunc("/transcript/", s.handleTranscript)
	mux.HandleFunc("/practice/", s.handlePractice)
	mux.HandleFunc("/serve_resource/", s.handleServeResource)
	mux.HandleFunc("/compare/", s.handleCompare)
	mux.HandleFunc("/changes/", s.handleChanges)
	mux.Handle("/assets/", http.StripPrefix("/assets/", http.FileServer(http.Dir(s.AssetsDir))))
	mux.Handle("/recordings/", http.StripPrefix("/recordings/", http.FileServer(http.Dir(s.RecordingsDir))))
	mux.HandleFunc("/", s.handleIndex)
}

func sendJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "error": message})
}

func sendNotFound(w http.ResponseWriter, message string) {
	sendJSONError(w, http.StatusNotFound, message)
}

func sendInternalError(w http.ResponseWriter, message string) {
	sendJSONError(w, http.StatusInternalServerError, message)
}

// pathSegments splits everything after prefix on "/", dropping empty
// trailing segments, used to pull positional path params out of routes
// like /practice/<resource>/<lang> without pulling in a router dependency
// the teacher never uses either.
func pathSegments(r *http.Request, prefix string) []string {
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lang := q.Get("lang")
	if lang == "" {
		lang = "de"
	}
	sampleRate := 44100
	if rate := q.Get("rate"); rate != "" {
		if parsed, err := strconv.Atoi(rate); err == nil && parsed > 0 {
			sampleRate = parsed
		}
	}
	resourceName := q.Get("resource")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("chat: upgrade failed: %v", err)
		return
	}
	go s.Manager.Accept(conn, lang, sampleRate, resourceName)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	segments := pathSegments(r, "/close/")
	if len(segments) != 1 {
		sendJSONError(w, http.StatusBadRequest, "missing uuid")
		return
	}
	var id int
	err := s.Store.ReadByUUID(segments[0], func(rec *sessionstore.Record) error {
		id = rec.ID
		return nil
	})
	if apperr.KindOf(err) == apperr.KindNotFound {
		sendNotFound(w, "session not found")
		return
	}
	if err != nil {
		sendInternalError(w, "lookup failed")
		return
	}
	s.Manager.RequestClose(id)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r, "/status/")
	if len(segments) != 1 {
		sendJSONError(w, http.StatusBadRequest, "missing uuid")
		return
	}
	var status sessionstore.Status
	err := s.Store.ReadByUUID(segments[0], func(rec *sessionstore.Record) error {
		status = rec.Status()
		return nil
	})
	if apperr.KindOf(err) == apperr.KindNotFound {
		sendNotFound(w, "session not found")
		return
	}
	if err != nil {
		sendInternalError(w, "lookup failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r, "/transcript/")
	if len(segments) != 1 {
		sendJSONError(w, http.StatusBadRequest, "missing uuid")
		return
	}
	rec, err := s.Store.FindByUUID(segments[0])
	if apperr.KindOf(err) == apperr.KindNotFound {
		sendNotFound(w, "session not found")
		return
	}
	if err != nil {
		sendInternalError(w, "lookup failed")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(rec.Translations.Transcript()))
}

func (s *Server) handlePractice(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r, "/practice/")
	if len(segments) != 2 {
		sendJSONError(w, http.StatusBadRequest, "expected /practice/<resource>/<lang>")
		return
	}
	resourcePath, lang := segments[0], segments[1]

	meta, err := resource.FromResourcePath(s.AssetsDir, resourcePath)
	if err != nil {
		log.Printf("practice: %v", err)
		http.NotFound(w, r)
		return
	}

	data := struct {
		Metadata     *resource.Metadata
		ResourcePath string
		Lang         string
	}{Metadata: meta, ResourcePath: resourcePath, Lang: lang}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "practice.html", data); err != nil {
		log.Printf("practice: render failed: %v", err)
	}
}

func (s *Server) handleServeResource(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r, "/serve_resource/")
	if len(segments) == 0 {
		sendJSONError(w, http.StatusBadRequest, "missing resource")
		return
	}
	resourcePath := strings.Join(segments, "/")

	meta, err := resource.FromResourcePath(s.AssetsDir, resourcePath)
	if err != nil {
		log.Printf("serve_resource: %v", err)
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, meta.AudioPath())
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r, "/compare/")
	if len(segments) != 3 {
		sendJSONError(w, http.StatusBadRequest, "expected /compare/<resource>/<uuid>/<lang>")
		return
	}
	resourcePath, uuid, lang := segments[0], segments[1], segments[2]

	data := struct {
		Resource string
		UUID     string
		Lang     string
	}{Resource: resourcePath, UUID: uuid, Lang: lang}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "compare.html", data); err != nil {
		log.Printf("compare: render failed: %v", err)
	}
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r, "/changes/")
	if len(segments) != 3 {
		sendJSONError(w, http.StatusBadRequest, "expected /changes/<resource>/<uuid>/<lang>")
		return
	}
	resourcePath, uuid, lang := segments[0], segments[1], segments[2]

	rec, err := s.Store.FindByUUID(uuid)
	if apperr.KindOf(err) == apperr.KindNotFound {
		sendNotFound(w, "session not found")
		return
	}
	if err != nil {
		sendInternalError(w, "lookup failed")
		return
	}

	changes, err := compare.Changes(s.AssetsDir, resourcePath, lang, rec.Translations.Transcript())
	if err != nil {
		log.Printf("changes: %v", err)
		sendInternalError(w, "could not compute changes")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(changes)
}

// sessionRow is the index page's per-session view, snapshotted under the
// store's read lock so it can't observe a Record mid-mutation the way
// rendering straight off *sessionstore.Record pointers from All() could.
type sessionRow struct {
	UUID     string
	Language string
	Resource string
	Valid    bool
	Age      string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	records := s.Store.All()
	rows := make([]sessionRow, 0, len(records))
	for _, rec := range records {
		_ = s.Store.Read(rec.ID, func(r *sessionstore.Record) error {
			rows = append(rows, sessionRow{
				UUID:     r.UUID,
				Language: r.Language,
				Resource: r.Resource,
				Valid:    r.Valid,
				Age:      humanize.Time(r.CreatedAt),
			})
			return nil
		})
	}

	data := struct {
		Sessions []sessionRow
	}{Sessions: rows}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		log.Printf("index: render failed: %v", err)
	}
}
