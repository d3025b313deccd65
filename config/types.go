package config

// Telemetry captures the OpenTelemetry exporter knobs. Headers is a
// comma-separated key=value list forwarded to the OTLP collector.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
}

// RateLimit controls the per-client HTTP throttle.
type RateLimit struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
}

// Quota defines per-address limits for offer creation: a request count and a
// cap on native value locked per epoch.
type Quota struct {
	MaxRequestsPerEpoch uint32 `toml:"MaxRequestsPerEpoch"`
	MaxValuePerEpoch    uint64 `toml:"MaxValuePerEpoch"`
	EpochSeconds        uint32 `toml:"EpochSeconds"`
}

// Pauses sets the initial circuit-breaker flags applied at startup. The
// runtime flags live in state and are toggled through the admin API.
type Pauses struct {
	Market bool `toml:"Market"`
	Assets bool `toml:"Assets"`
}

// Fees captures the protocol fee schedule and royalty switch.
type Fees struct {
	FeeBps           uint32 `toml:"FeeBps"`
	FeeRecipient     string `toml:"FeeRecipient"`
	RoyaltiesEnabled bool   `toml:"RoyaltiesEnabled"`
}
