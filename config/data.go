package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DATA_DIR is the directory where interpserve keeps its databases.
// Defaults to "./data" relative to the working directory.
var DATA_DIR = getDataDir()

// getDataDir reads INTERPSERVE_DATA_DIR, falling back to "./data".
func getDataDir() string {
	if dir := os.Getenv("INTERPSERVE_DATA_DIR"); dir != "" {
		return dir
	}
	return "./data"
}

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file into the process
// environment. Variables that are already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// GetDataDir returns the current data directory path.
// The environment is checked on every call so tests can point it elsewhere.
func GetDataDir() string {
	return getDataDir()
}

// GetRecordsDBPath returns {DATA_DIR}/records.db, the job history database.
func GetRecordsDBPath() string {
	return filepath.Join(GetDataDir(), "records.db")
}

// GetTargetsDBPath returns {DATA_DIR}/targets.db, where publish destinations
// and their credentials are kept.
func GetTargetsDBPath() string {
	return filepath.Join(GetDataDir(), "targets.db")
}

// GetListenAddr returns the HTTP listen address. INTERPSERVE_LISTEN_ADDR,
// default "0.0.0.0:7860".
func GetListenAddr() string {
	return getenv("INTERPSERVE_LISTEN_ADDR", "0.0.0.0:7860")
}

// GetSVFIDir returns the directory holding the SVFI installation tree.
func GetSVFIDir() string {
	return getenv("INTERPSERVE_SVFI_DIR", "./SVFI 3.x")
}

// GetSVFIEntrypoint returns the script the runner hands to the interpreter.
func GetSVFIEntrypoint() string {
	return filepath.Join(GetSVFIDir(), "one_line_shot_args.py")
}

// GetPython returns the interpreter used to launch SVFI.
func GetPython() string {
	return getenv("INTERPSERVE_PYTHON", "python")
}

// GetWorkBaseDir returns the parent of the per-process working directory.
// Empty means os.TempDir().
func GetWorkBaseDir() string {
	return os.Getenv("INTERPSERVE_WORK_DIR")
}

// GetDirectServeBaseDir returns the base directory for the directServe publish
// backend. Only administrators can set it (INTERPSERVE_SERVE_DIR), default "./serve".
func GetDirectServeBaseDir() string {
	return getenv("INTERPSERVE_SERVE_DIR", "./serve")
}

// GetJWTSecret returns the HS256 secret for API tokens. Empty disables auth.
func GetJWTSecret() string {
	return os.Getenv("INTERPSERVE_JWT_SECRET")
}

// GetMaxUploadBytes returns the upload size limit (INTERPSERVE_MAX_UPLOAD_MB, default 2048).
func GetMaxUploadBytes() int64 {
	return int64(getenvInt("INTERPSERVE_MAX_UPLOAD_MB", 2048)) << 20
}

// GetQueueSize returns how many jobs may wait behind the running one.
func GetQueueSize() int {
	return getenvInt("INTERPSERVE_QUEUE_SIZE", 16)
}

// GetJobRetention returns how long finished job directories are kept.
func GetJobRetention() time.Duration {
	return getenvDuration("INTERPSERVE_JOB_RETENTION", 24*time.Hour)
}

// GetRecordMaxAge returns how long history records are kept.
func GetRecordMaxAge() time.Duration {
	return getenvDuration("INTERPSERVE_RECORD_MAX_AGE", 30*24*time.Hour)
}

// GetLogLevel returns LOG_LEVEL, default "info".
func GetLogLevel() string {
	return getenv("LOG_LEVEL", "info")
}

// GetLogFile returns LOG_FILE. Empty means console only.
func GetLogFile() string {
	return os.Getenv("LOG_FILE")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
