// Package config loads runtime settings from the environment.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/ayusman/tagsight/internal/detector"
)

type Config struct {
	Addr            string
	DataDir         string
	WebDir          string
	CameraID        int
	FPS             int
	QueueSize       int
	ConvertWorkers  int     // Bands used for the preview conversion
	MotionThreshold float64 // Percent of changed pixels, 0 runs detection on every frame
	HistoryLimit    int     // Frames kept in the detection log
	Tray            bool

	Family     string
	ErrorBits  int
	Decimation float64
	Sigma      float64
	Threads    int // <= 0 uses every CPU
}

func Load() *Config {
	return &Config{
		Addr:            getEnv("TAGSIGHT_ADDR", ":8080"),
		DataDir:         getEnv("TAGSIGHT_DATA_DIR", defaultDataDir()),
		WebDir:          getEnv("TAGSIGHT_WEB_DIR", ""),
		CameraID:        getEnvAsInt("TAGSIGHT_CAMERA_ID", 0),
		FPS:             getEnvAsInt("TAGSIGHT_FPS", 5),
		QueueSize:       getEnvAsInt("TAGSIGHT_QUEUE_SIZE", 10),
		ConvertWorkers:  getEnvAsInt("TAGSIGHT_CONVERT_WORKERS", 4),
		MotionThreshold: getEnvAsFloat("TAGSIGHT_MOTION_THRESHOLD", 0),
		HistoryLimit:    getEnvAsInt("TAGSIGHT_HISTORY_LIMIT", 1000),
		Tray:            getEnvAsBool("TAGSIGHT_TRAY", false),

		Family:     getEnv("TAGSIGHT_FAMILY", detector.DefaultFamily.String()),
		ErrorBits:  getEnvAsInt("TAGSIGHT_ERROR_BITS", detector.DefaultErrorBits),
		Decimation: getEnvAsFloat("TAGSIGHT_DECIMATION", detector.DefaultDecimation),
		Sigma:      getEnvAsFloat("TAGSIGHT_SIGMA", detector.DefaultSigma),
		Threads:    getEnvAsInt("TAGSIGHT_THREADS", detector.DefaultThreads),
	}
}

// DetectorParams parses the detector settings.
func (c *Config) DetectorParams() (detector.Params, error) {
	return detector.ParseParams(c.Family, c.ErrorBits, c.Decimation, c.Sigma, c.Threads)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tagsight"
	}
	return filepath.Join(home, ".tagsight")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
