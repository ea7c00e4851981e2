package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port         string
	MusicDir     string
	Bitrate      string
	StationName  string
	MaxClients   int
	SampleRate   string
	Channels     string
	PlaylistFile string
	WebDir       string
	DJUsername   string
	DJPassword   string
	JWTSecret    string
	Timezone     string

	CacheRoot             string
	AllowedBitrates       []int
	EncoderPath           string
	ClientWaitTimeoutSecs int
}

func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "8000"),
		MusicDir:     getEnv("MUSIC_DIR", "./music"),
		Bitrate:      getEnv("BITRATE", "128k"),
		StationName:  getEnv("STATION_NAME", "Denpa Radio"),
		MaxClients:   getEnvAsInt("MAX_CLIENTS", 100),
		SampleRate:   getEnv("SAMPLE_RATE", "44100"),
		Channels:     getEnv("CHANNELS", "2"),
		PlaylistFile: getEnv("PLAYLIST_FILE", "./data/playlists.json"),
		WebDir:       getEnv("WEB_DIR", "./web/dist"),
		DJUsername:   getEnv("DJ_USERNAME", "dj"),
		DJPassword:   getEnv("DJ_PASSWORD", "denpa"),
		JWTSecret:    getEnv("JWT_SECRET", "change-me-in-production-please"),
		Timezone:     getEnv("TIMEZONE", ""),

		CacheRoot:             getEnv("CACHE_ROOT", "./data/transcode-cache"),
		AllowedBitrates:       getEnvAsIntList("ALLOWED_BITRATES", []int{320000, 256000, 192000, 160000, 128000, 96000, 64000, 32000}),
		EncoderPath:           getEnv("ENCODER_PATH", "ffmpeg"),
		ClientWaitTimeoutSecs: getEnvAsInt("CLIENT_WAIT_TIMEOUT_SECONDS", 60),
	}
}

func getEnvAsIntList(name string, defaultVal []int) []int {
	valueStr, exists := os.LookupEnv(name)
	if !exists || valueStr == "" {
		return defaultVal
	}
	parts := strings.Split(valueStr, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return defaultVal
		}
		out = append(out, v)
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultVal int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultVal
}
