package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ayusman/tagsight/internal/app"
	"github.com/ayusman/tagsight/internal/apriltag"
	"github.com/ayusman/tagsight/internal/config"
	"github.com/ayusman/tagsight/internal/detector"
	"github.com/ayusman/tagsight/internal/server"
	"github.com/ayusman/tagsight/internal/store"
	"github.com/ayusman/tagsight/internal/tray"
)

func main() {
	fmt.Println("Tagsight - AprilTag Detection")

	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to load .env: %v", err)
	}
	cfg := config.Load()

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	flag.IntVar(&cfg.CameraID, "camera", cfg.CameraID, "camera device id")
	flag.BoolVar(&cfg.Tray, "tray", cfg.Tray, "show the system tray icon")
	flag.Parse()

	// Initialize the store
	st, err := store.Open(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	lib := apriltag.Default()
	if missing := apriltag.Unsupported(lib); len(missing) > 0 {
		log.Printf("Detector backend cannot build %v; rebuild with -tags apriltag for every family", missing)
	}
	session, err := detector.InitShared(lib)
	if err != nil {
		log.Fatalf("Failed to initialize detector: %v", err)
	}
	defer session.Teardown()
	restoreDetector(session, st, cfg)

	a, err := app.New(app.Config{
		Store:           st,
		Detector:        session,
		CameraID:        cfg.CameraID,
		FPS:             cfg.FPS,
		QueueSize:       cfg.QueueSize,
		ConvertWorkers:  cfg.ConvertWorkers,
		MotionThreshold: cfg.MotionThreshold,
		HistoryLimit:    cfg.HistoryLimit,
	})
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}
	if err := a.Start(); err != nil {
		log.Printf("Camera unavailable, serving API only: %v", err)
	}
	defer a.Stop()

	// Find web directory
	webDir := cfg.WebDir
	if webDir == "" {
		webDir = findWebDir(cfg.DataDir)
	}
	if webDir != "" {
		fmt.Printf("Serving static files from: %s\n", webDir)
	}

	srv := server.New(server.Config{
		StaticDir:      webDir,
		Store:          st,
		Detector:       session,
		App:            a,
		ConvertWorkers: cfg.ConvertWorkers,
	})
	defer srv.Close()

	go func() {
		fmt.Printf("Starting server on %s\n", cfg.Addr)
		if err := srv.ListenAndServe(cfg.Addr); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	if cfg.Tray {
		// systray owns the main goroutine until Quit
		go func() {
			<-quit
			a.Stop()
			os.Exit(0)
		}()
		runTray(a, cfg.Addr)
		return
	}

	<-quit
	log.Println("Shutting down")
}

// restoreDetector applies the saved detector settings, falling back to the
// environment. A bad setting leaves the detector to configure its defaults
// on first use.
func restoreDetector(session *detector.Session, st *store.Store, cfg *config.Config) {
	params, err := st.Settings().LoadDetector()
	switch {
	case err == nil:
		log.Printf("Restoring saved detector settings")
	case errors.Is(err, store.ErrNotFound):
		params, err = cfg.DetectorParams()
		if err != nil {
			log.Printf("Invalid detector settings in environment: %v", err)
			return
		}
	default:
		log.Printf("Failed to load detector settings: %v", err)
		return
	}

	if err := session.Configure(params); err != nil {
		log.Printf("Failed to configure detector: %v", err)
	}
}

// runTray shows the tray menu and mirrors pipeline results into it.
func runTray(a *app.App, addr string) {
	t := tray.New(a.IsEnabled())
	t.OnToggle(a.SetEnabled)
	t.OnSettings(func() {
		openBrowser("http://localhost" + addr)
	})

	results, cancel := a.Subscribe()
	defer cancel()
	go func() {
		for res := range results {
			ids := make([]int, len(res.Detections))
			for i, rec := range res.Detections {
				ids[i] = rec.ID
			}
			t.SetLastTags(ids)
			t.SetFamily(res.Family)
		}
	}()

	t.Run()
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Printf("Failed to open browser: %v", err)
	}
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and <dataDir>/web.
// Returns the first existing directory or empty string if none found.
func findWebDir(dataDir string) string {
	// Check relative paths from current working directory
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	dataWebDir := filepath.Join(dataDir, "web")
	if info, err := os.Stat(dataWebDir); err == nil && info.IsDir() {
		return dataWebDir
	}

	return ""
}
