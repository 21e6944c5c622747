package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/viper"

	"github.com/aux-fm/auxio/config"
	"github.com/aux-fm/auxio/db"
	"github.com/aux-fm/auxio/identity"
	"github.com/aux-fm/auxio/oauth"
	"github.com/aux-fm/auxio/service/cycle"
	"github.com/aux-fm/auxio/service/nearby"
	"github.com/aux-fm/auxio/service/notify"
	"github.com/aux-fm/auxio/service/nowplaying"
	"github.com/aux-fm/auxio/service/social"
	"github.com/aux-fm/auxio/service/spotify"
	"github.com/aux-fm/auxio/service/submission"
)

type application struct {
	database     *db.DB
	identity     *identity.Service
	oauthService *oauth.Service
	advancer     *cycle.Advancer
	coordinator  *submission.Coordinator
	social       *social.Service
	nearby       *nearby.Service
	notifier     *notify.Notifier
	schedulerKey string
}

func main() {
	config.Load()

	// create data folder if not exists with proper perms
	os.MkdirAll("./data", 0o755)

	database, err := db.New(viper.GetString("db.path"))
	if err != nil {
		log.Fatalf("Error connecting to database: %v", err)
	}

	if err := database.Initialize(); err != nil {
		log.Fatalf("Error initializing database: %v", err)
	}

	verifier, err := identity.NewJWTVerifier(
		viper.GetString("identity.jwks_path"),
		viper.GetString("identity.issuer"),
		viper.GetString("identity.audience"),
	)
	if err != nil {
		log.Fatalf("Error loading identity keys: %v", err)
	}

	clock := clockwork.NewRealClock()

	// --- Service Initializations ---

	// The identity service and the oauth service reference each other:
	// oauth hands completed links to identity, identity refreshes
	// through oauth. Wire identity first with a nil refresher slot.
	identityService := identity.NewService(database, verifier, nil, clock)

	oauthService := oauth.NewService(
		viper.GetString("spotify.client_id"),
		viper.GetString("spotify.client_secret"),
		viper.GetString("callback.spotify"),
		viper.GetStringSlice("spotify.scopes"),
		identityService,
	)
	identityService.SetRefresher(oauthService)

	spotifyClient := spotify.NewClient(time.Duration(viper.GetInt("spotify.timeout_seconds")) * time.Second)
	resolver := nowplaying.NewResolver(spotifyClient, identityService)

	notifier := notify.New(database, notify.NewLogSender())

	advancer := cycle.NewAdvancer(
		database,
		clock,
		time.Duration(viper.GetInt("cycle.min_delay_hours"))*time.Hour,
		time.Duration(viper.GetInt("cycle.max_delay_hours"))*time.Hour,
		notifier,
	)

	coordinator := submission.NewCoordinator(
		database,
		advancer,
		resolver,
		notifier,
		clock,
		time.Duration(viper.GetInt("cycle.grace_seconds"))*time.Second,
	).WithPlaylists(spotifyClient, identityService)

	socialService := social.NewService(database, notifier)

	app := &application{
		database:     database,
		identity:     identityService,
		oauthService: oauthService,
		advancer:     advancer,
		coordinator:  coordinator,
		social:       socialService,
		nearby:       nearby.NewService(database, advancer),
		notifier:     notifier,
		schedulerKey: viper.GetString("scheduler.secret"),
	}

	repairInterval := time.Duration(viper.GetInt("social.repair_interval_seconds")) * time.Second
	if repairInterval > 0 {
		go socialService.StartRepairLoop(context.Background(), repairInterval)
	}

	serverAddr := fmt.Sprintf("%s:%s", viper.GetString("server.host"), viper.GetString("server.port"))
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      app.routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	fmt.Printf("Server running at: http://%s\n", serverAddr)
	log.Fatal(server.ListenAndServe())
}
