package cli

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables seeding upload flag defaults.
const (
	EnvHost       = "STUDIO_SHARE_HOST"
	EnvUser       = "STUDIO_SHARE_USER"
	EnvDest       = "STUDIO_SHARE_DEST"
	EnvPort       = "STUDIO_SHARE_PORT"
	EnvIdentity   = "STUDIO_SHARE_IDENTITY"
	EnvKnownHosts = "STUDIO_SHARE_KNOWN_HOSTS"
	EnvBwLimit    = "STUDIO_SHARE_BWLIMIT"
)

// loadDotEnv adds variables from path to the environment. Variables that
// are already set win; a missing file is ignored.
func loadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		GetLogger().Warn().Err(err).Str("file", path).Msg("could not read env file")
	}
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
