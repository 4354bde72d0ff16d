package internal

import "time"

type Config struct {
	// Storage
	IndexStorage      string `name:"index-storage" alias:"index-path,path" default:"./ramindex.db" help:"Path to Pebble index database"`
	ABISource         string `name:"abi-source" alias:"abi-path" default:"./abis" help:"Path to ABI cache directory (used to render hex-encoded action data)"`
	PebbleCacheSizeMB int64  `name:"pebble-cache-size-mb" default:"128" help:"Pebble block cache size in MB"`
	ReadOnly          bool   `name:"read-only" help:"Serve the existing index without following the trace feed"`
	ExportLedger      string `name:"export-ledger" help:"Write a compressed ledger export to this path and exit"`
	ImportLedger      string `name:"import-ledger" help:"Load a ledger export into an empty index and exit"`

	// Trace feed
	FeedURL          string        `name:"feed-url" default:"ws://127.0.0.1:8080/v1/traces" help:"WebSocket URL of the transaction trace feed"`
	FeedIrreversible bool          `name:"feed-irreversible-only" default:"true" help:"Request only irreversible traces from the feed"`
	FeedReconnectMax time.Duration `name:"feed-reconnect-max" default:"30s" help:"Upper bound of the feed reconnect backoff"`
	SkipMalformed    bool          `name:"skip-malformed" help:"Log and skip malformed RAM actions instead of stopping ingestion"`

	// Chain API
	ChainAPI        string        `name:"chain-api" default:"http://127.0.0.1:8888" help:"Chain API base URL (http:// or unix://)"`
	ChainAPITimeout time.Duration `name:"chain-api-timeout" default:"5s" help:"Timeout for chain API requests"`

	// Server
	HTTPListen     string  `name:"http-listen" default:":9420" help:"HTTP API TCP address ('none' to disable)"`
	HTTPSocket     string  `name:"http-socket" default:"none" help:"HTTP API Unix socket ('none' to disable)"`
	MetricsListen  string  `name:"metrics-listen" default:"none" help:"Metrics endpoint address (e.g., 'localhost:9090' or '/path/to/metrics.sock')"`
	RateLimitRPS   float64 `name:"rate-limit-rps" default:"0" help:"Per-client request rate limit (0 to disable)"`
	RateLimitBurst int     `name:"rate-limit-burst" default:"20" help:"Per-client request burst size"`

	// Market
	SystemAccount    string `name:"system-account" default:"enumivo" help:"Account of the system contract that owns the RAM market"`
	RAMAccount       string `name:"ram-account" default:"enu.ram" help:"Account receiving RAM purchase payments"`
	RAMFeeAccount    string `name:"ramfee-account" default:"enu.ramfee" help:"Account receiving RAM market fees"`
	TokenSymbol      string `name:"token-symbol" default:"4,ENU" help:"Core token symbol"`
	RAMSymbol        string `name:"ram-symbol" default:"0,RAM" help:"RAM connector symbol"`
	MarketTable      string `name:"market-table" default:"rammarket" help:"Table holding the RAM market row"`
	BuyAction        string `name:"buy-action" default:"buyram" help:"Action that buys RAM for an amount of tokens"`
	BuyBytesAction   string `name:"buy-bytes-action" default:"buyrambytes" help:"Action that buys a number of RAM bytes"`
	SellAction       string `name:"sell-action" default:"sellram" help:"Action that sells RAM bytes"`
	MatchAnyContract bool   `name:"match-any-contract" help:"Match RAM actions by name on any contract, not only the system account"`

	// Queries
	HistoryTimeLimit time.Duration `name:"history-time-limit" default:"100ms" help:"Wall clock budget of one get_actions scan"`

	// Logging and debugging
	Debug           bool     `help:"Enable debug logging (all categories)"`
	DebugEndpoints  bool     `name:"debug-endpoints" help:"Enable debug API endpoints (/debug/*)"`
	LogFilter       []string `name:"log-filter" default:"startup,sync,http,ram,pebble,feed,chainapi" help:"Log category filter (comma-separated)"`
	LogFile         string   `name:"log-file" help:"Log output file path (logs to both stdout and file when set)"`
	PprofPort       string   `name:"pprof-port" help:"Port for pprof debugging endpoint"`
	Profile         bool     `help:"Enable periodic CPU profiling"`
	ProfileInterval int      `name:"profile-interval" default:"60" help:"Profile logging interval in seconds"`
	QueryTrace      bool     `name:"query-trace" help:"Enable query tracing to log history scan performance per request"`
}
