package config

import (
	"flag"
	"os"
	"time"

	"github.com/wikicampus/wikicampus/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-w string   Wikibase instance base URL
//	-q string   SPARQL endpoint URL
//	-g string   outbound User-Agent string
//	-m int      maxlag for write requests, seconds
//	-d string   PostgreSQL DSN for the audit log
//	-s string   JWT HMAC secret key
//	-t int      session token validity, minutes
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes
//     using flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers in minutes and then converted
//     to time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-w", "-q", "-g", "-m", "-d", "-s", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.InstanceURL, "w", config.InstanceURL, "wikibase instance base URL")
	fs.StringVar(&config.SPARQLEndpoint, "q", config.SPARQLEndpoint, "SPARQL endpoint URL")
	fs.StringVar(&config.UserAgent, "g", config.UserAgent, "outbound User-Agent")
	fs.IntVar(&config.MaxLag, "m", config.MaxLag, "maxlag for write requests (in seconds)")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	sessionTokenValidity := fs.Int("t", int(config.SessionTokenValidity.Minutes()), "session_token_validity (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SessionTokenValidity = time.Duration(*sessionTokenValidity) * time.Minute
}
