package config

import (
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load initializes the configuration with viper
func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading it. Using default values and environment variables.")
	}

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("callback.spotify", "http://localhost:8080/callback/spotify")
	viper.SetDefault("spotify.scopes", []string{
		"user-read-currently-playing",
		"user-read-recently-played",
		"user-read-email",
		"playlist-modify-private",
	})
	viper.SetDefault("spotify.timeout_seconds", 10)
	viper.SetDefault("db.path", "./data/aux.db")

	// Submission cycle window: the reveal time is picked uniformly at
	// random inside [min_delay, max_delay] hours after an advance.
	viper.SetDefault("cycle.min_delay_hours", 6)
	viper.SetDefault("cycle.max_delay_hours", 21)
	viper.SetDefault("cycle.grace_seconds", 120)

	// identity provider token verification
	viper.SetDefault("identity.jwks_path", "./jwks.json")
	viper.SetDefault("identity.issuer", "")
	viper.SetDefault("identity.audience", "")

	viper.SetDefault("social.repair_interval_seconds", 3600)

	viper.AutomaticEnv()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatalf("Error reading config file: %v", err)
		}
		log.Println("Config file not found, using default values and environment variables")
	} else {
		log.Println("Using config file:", viper.ConfigFileUsed())
	}

	// check for required settings
	requiredVars := []string{"spotify.client_id", "spotify.client_secret", "scheduler.secret"}
	missingVars := []string{}

	for _, v := range requiredVars {
		if !viper.IsSet(v) {
			missingVars = append(missingVars, v)
		}
	}

	if len(missingVars) > 0 {
		log.Fatalf("Required configuration variables not set: %s", strings.Join(missingVars, ", "))
	}
}
