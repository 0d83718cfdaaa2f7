package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-t int      access token validity, minutes
//	-r int      refresh token validity, minutes
//	-m string   Mailgun sending domain
//	-k string   Mailgun API key
//	-f string   sender address for outbound mail
//
// Policy values (bounds, hash cost, retry settings) are JSON-only; they
// change rarely and do not belong on the command line.
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers in minutes and then converted
//     to time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-t", "-r", "-m", "-k", "-f"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")

	accessTokenLifetime := fs.Int("t", int(config.AccessTokenLifetime.Minutes()), "access_token_lifetime (in minutes)")
	refreshTokenLifetime := fs.Int("r", int(config.RefreshTokenLifetime.Minutes()), "refresh_token_lifetime (in minutes)")

	fs.StringVar(&config.MailDomain, "m", config.MailDomain, "Mailgun sending domain")
	fs.StringVar(&config.MailgunAPIKey, "k", config.MailgunAPIKey, "Mailgun API key")
	fs.StringVar(&config.MailFrom, "f", config.MailFrom, "sender address for outbound mail")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenLifetime = time.Duration(*accessTokenLifetime) * time.Minute
	config.RefreshTokenLifetime = time.Duration(*refreshTokenLifetime) * time.Minute
}
