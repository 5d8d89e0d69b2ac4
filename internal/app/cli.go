package app

import "github.com/spf13/pflag"

// RegisterFlags registers all CLI flags on the given FlagSet
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringP("transport", "t", "", "Transport type: stdio or sse")
	flags.StringP("host", "H", "", "Host for SSE transport")
	flags.IntP("port", "p", 0, "Port for SSE transport")
	flags.Int("search-max-sessions", 0, "Maximum concurrent search sessions")
	flags.Duration("search-retention", 0, "How long finished sessions stay readable")
	flags.Duration("search-reap-interval", 0, "How often expired sessions are purged")
	flags.Duration("search-default-timeout", 0, "Default per-search timeout")
	flags.Int64("search-max-file-size", 0, "Maximum file size to scan, in bytes")
	flags.Int("search-subscriber-buffer", 0, "Event buffer size per progress subscriber")
	flags.Bool("lookup-enabled", true, "Enable the commit lookup tool")
	flags.Duration("lookup-index-ttl", 0, "How long a commit lookup index is reused")
}
