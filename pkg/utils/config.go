package utils

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	SourcePath     string
	Sheet          string // xlsx sheet name; empty means the first sheet
	MirrorPath     string
	HTTPAddr       string
	GRPCAddr       string // empty (env "off") disables the gRPC health listener
	RebuildTimeout time.Duration

	PageMin     int
	PageMax     int
	PageDefault int

	CrossTabRows int
	CrossTabCols int
}

func LoadConfig() Config {
	cfg := Config{
		SourcePath:     envString("ADVODASH_SOURCE_PATH", "data/advocates.xlsx"),
		Sheet:          envString("ADVODASH_SHEET", ""),
		MirrorPath:     envString("ADVODASH_MIRROR_PATH", "data/advocates_mirror.json"),
		HTTPAddr:       envString("ADVODASH_HTTP_ADDR", ":8080"),
		GRPCAddr:       envString("ADVODASH_GRPC_ADDR", ":9090"),
		RebuildTimeout: envDuration("ADVODASH_REBUILD_TIMEOUT", 60*time.Second),
		PageMin:        envInt("ADVODASH_PAGE_MIN", 1),
		PageMax:        envInt("ADVODASH_PAGE_MAX", 500),
		PageDefault:    envInt("ADVODASH_PAGE_DEFAULT", 25),
		CrossTabRows:   envInt("ADVODASH_XTAB_ROWS", 15),
		CrossTabCols:   envInt("ADVODASH_XTAB_COLS", 10),
	}

	if strings.EqualFold(cfg.GRPCAddr, "off") {
		cfg.GRPCAddr = ""
	}

	// keep bounds sane even with bad env input
	if cfg.PageMin < 1 {
		cfg.PageMin = 1
	}
	if cfg.PageMax < cfg.PageMin {
		cfg.PageMax = cfg.PageMin
	}
	cfg.PageDefault = min(max(cfg.PageDefault, cfg.PageMin), cfg.PageMax)
	cfg.CrossTabRows = max(cfg.CrossTabRows, 1)
	cfg.CrossTabCols = max(cfg.CrossTabCols, 1)
	return cfg
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// envDuration accepts Go durations ("90s") or plain seconds ("90").
func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}
