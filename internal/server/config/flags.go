package config

import (
	"flag"
	"io"
	"strings"

	"github.com/dmitrijs2005/whisper/internal/flagx"
)

// parseFlags overlays command-line flags, the last and strongest layer.
//
//	-a string     HTTP bind address (e.g. ":8080")
//	-d string     PostgreSQL DSN
//	-s string     JWT HMAC secret key
//	-o string     comma-separated allowed WebSocket origins
//	-w duration   per-frame write timeout
//	-f string     Firebase service-account JSON file
//	-u/-p/-b/-g/-e  S3 user, password, bucket, region, base endpoint
//	-l string     log level
//
// Unknown flags are filtered out first so -c/-config and friends do not clash.
func parseFlags(config *Config, args []string) {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-s", "-o", "-w", "-f", "-u", "-p", "-b", "-g", "-e", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	origins := fs.String("o", strings.Join(config.AllowedOrigins, ","), "allowed origins, comma separated")
	fs.DurationVar(&config.WriteTimeout, "w", config.WriteTimeout, "per-frame write timeout")
	fs.StringVar(&config.FirebaseCredentialsFile, "f", config.FirebaseCredentialsFile, "firebase credentials file")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AllowedOrigins = splitList(*origins)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
