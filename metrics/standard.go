package metrics

// Pre-defined metrics for the node. All metrics live in DefaultRegistry so
// they are globally accessible without passing a registry around.

var (
	// ---- Chain metrics ----

	// ChainHeight tracks the latest finalized slot.
	ChainHeight = DefaultRegistry.Gauge("chain.height")
	// BlockProcessTime records per-block STF pipeline duration in milliseconds.
	BlockProcessTime = DefaultRegistry.Histogram("chain.block_process_ms")
	// BlocksProduced counts blocks this node has authored.
	BlocksProduced = DefaultRegistry.Counter("chain.blocks_produced")
	// BlocksImported counts blocks successfully appended to the chain.
	BlocksImported = DefaultRegistry.Counter("chain.blocks_imported")

	// ---- Safrole metrics ----

	// TicketsSubmitted counts tickets admitted into gamma_a.
	TicketsSubmitted = DefaultRegistry.Counter("safrole.tickets_submitted")
	// EpochTransitions counts epoch-boundary transitions processed.
	EpochTransitions = DefaultRegistry.Counter("safrole.epoch_transitions")
	// FallbackSeals counts epochs that fell back to non-ticketed seal keys.
	FallbackSeals = DefaultRegistry.Counter("safrole.fallback_seals")

	// ---- Guarantees / accumulation metrics ----

	// ReportsPending tracks the current size of rho.
	ReportsPending = DefaultRegistry.Gauge("guarantees.reports_pending")
	// ReportsQueued tracks the current size of omega.
	ReportsQueued = DefaultRegistry.Gauge("guarantees.reports_queued")
	// ReportsAccumulated counts work-reports successfully accumulated.
	ReportsAccumulated = DefaultRegistry.Counter("guarantees.reports_accumulated")
	// ReportsFailed counts work-reports that failed accumulation.
	ReportsFailed = DefaultRegistry.Counter("guarantees.reports_failed")

	// ---- Assurances metrics ----

	// AssurancesProcessed counts assurance extrinsics applied.
	AssurancesProcessed = DefaultRegistry.Counter("assurances.processed")
	// CoresReported counts cores promoted to reported this block.
	CoresReported = DefaultRegistry.Counter("assurances.cores_reported")

	// ---- Preimages metrics ----

	// PreimagesProvided counts preimages admitted into service accounts.
	PreimagesProvided = DefaultRegistry.Counter("preimages.provided")

	// ---- History metrics ----

	// HistoryEntries tracks the current length of beta.
	HistoryEntries = DefaultRegistry.Gauge("history.entries")

	// ---- Disputes metrics ----

	// OffendersRecorded counts validator keys added to psi.offenders.
	OffendersRecorded = DefaultRegistry.Counter("disputes.offenders_recorded")
	// VerdictsProcessed counts dispute verdicts processed.
	VerdictsProcessed = DefaultRegistry.Counter("disputes.verdicts_processed")

	// ---- GRANDPA metrics ----

	// GrandpaRound tracks the current voting round number.
	GrandpaRound = DefaultRegistry.Gauge("grandpa.round")
	// GrandpaFinalized counts blocks finalized by GRANDPA.
	GrandpaFinalized = DefaultRegistry.Counter("grandpa.finalized")
	// GrandpaEquivocations counts detected equivocating votes.
	GrandpaEquivocations = DefaultRegistry.Counter("grandpa.equivocations")

	// ---- P2P metrics ----

	// PeersConnected tracks the current number of connected peers.
	PeersConnected = DefaultRegistry.Gauge("p2p.peers")
	// MessagesReceived counts protocol messages received.
	MessagesReceived = DefaultRegistry.Counter("p2p.messages_received")
	// MessagesSent counts protocol messages sent.
	MessagesSent = DefaultRegistry.Counter("p2p.messages_sent")

	// ---- RPC metrics ----

	// RPCRequests counts incoming API requests.
	RPCRequests = DefaultRegistry.Counter("rpc.requests")
	// RPCErrors counts API requests that returned an error.
	RPCErrors = DefaultRegistry.Counter("rpc.errors")
	// RPCLatency records API request latency in milliseconds.
	RPCLatency = DefaultRegistry.Histogram("rpc.latency_ms")
)
