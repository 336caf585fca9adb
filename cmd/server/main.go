package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"speechbridge/internal/dispatch"
	"speechbridge/internal/httpapi"
	"speechbridge/internal/integrator"
	"speechbridge/internal/queue"
	"speechbridge/internal/recognizer"
	"speechbridge/internal/session"
	"speechbridge/internal/sessionindex"
	"speechbridge/internal/sessionstore"
	"speechbridge/internal/storage"
)

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// buildRecognizer picks the local (CGO whisper.cpp) or remote (HTTP)
// recognizer backend from the environment. WHISPER_MODEL_PATH takes
// precedence over WHISPER_SERVER when both are set, since a local model
// avoids a network hop per chunk.
func buildRecognizer() recognizer.Recognizer {
	if modelPath := getEnv("WHISPER_MODEL_PATH", ""); modelPath != "" {
		local, err := recognizer.NewLocal(modelPath)
		if err != nil {
			log.Fatalf("failed to load local whisper model: %v", err)
		}
		log.Printf("recognizer: using local whisper.cpp model at %s", modelPath)
		return local
	}
	if serverURL := getEnv("WHISPER_SERVER", ""); serverURL != "" {
		log.Printf("recognizer: using remote whisper server at %s", serverURL)
		return recognizer.NewRemote(serverURL)
	}
	log.Fatal("one of WHISPER_MODEL_PATH or WHISPER_SERVER must be set")
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	recordingsDir := getEnv("RECORDINGS_DIR", "../recordings")
	assetsDir := getEnv("ASSETS_DIR", "../assets")
	listenAddr := getEnv("LISTEN", "127.0.0.1:3030")
	workerCount := getEnvInt("WORKER_COUNT", 4)

	if err := os.MkdirAll(recordingsDir, 0o755); err != nil {
		log.Fatalf("failed to create recordings dir: %v", err)
	}

	var index *sessionindex.Store
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		var err error
		index, err = sessionindex.Open(dsn)
		if err != nil {
			log.Printf("session index disabled: %v", err)
		} else if err := index.EnsureSchema(); err != nil {
			log.Printf("session index schema setup failed: %v", err)
		} else {
			log.Println("session index connected")
			defer index.Close()
		}
	}

	archive, err := storage.NewMinioFromEnv()
	if err != nil {
		log.Printf("archive mirror disabled: %v", err)
		archive = &storage.MinioClient{}
	}
	if archive.Enabled() {
		log.Printf("archive mirror enabled, bucket %s", archive.Bucket())
	}

	store := sessionstore.New()
	q := queue.New()
	mgr := session.NewManager(store, q, recordingsDir, index, archive)

	if err := mgr.Restore(); err != nil {
		log.Printf("session restore failed: %v", err)
	}

	in := integrator.New(store)
	in.OnComplete = mgr.Finalize

	rec := buildRecognizer()
	pool := dispatch.NewPool(q, store, rec, in.Integrate)
	pool.Start(context.Background(), workerCount)
	log.Printf("dispatch pool started with %d workers", workerCount)

	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	go mgr.RunExpirySweep(sweepCtx)

	api, err := httpapi.New(mgr, store, assetsDir, recordingsDir, "./web/templates")
	if err != nil {
		log.Fatalf("failed to load templates: %v", err)
	}

	mux := http.NewServeMux()
	api.Register(mux)

	log.Printf("listening on %s", listenAddr)
	log.Fatal(http.ListenAndServe(listenAddr, mux))
}
