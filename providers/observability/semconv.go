package observability

// Semantic conventions for observability attributes.
// These constants define standard attribute names to ensure consistency
// across the dispatch, grounding, agent and store components.

// --- LLM Provider Attributes ---

const (
	// AttrLLMProvider is the name of the provider path ("ollama" or "openrouter")
	AttrLLMProvider = "llm.provider"

	// AttrLLMModel is the model identifier (e.g., "phi4-mini")
	AttrLLMModel = "llm.model"

	// AttrLLMEndpoint is the API endpoint URL
	AttrLLMEndpoint = "llm.endpoint"

	// AttrLLMFormat is the structured-output format requested, if any
	AttrLLMFormat = "llm.format"

	// AttrLLMTokensPrompt is the number of prompt tokens reported by the provider
	AttrLLMTokensPrompt = "llm.tokens.prompt" // #nosec G101 -- Not a credential, token refers to LLM tokens

	// AttrLLMTokensCompletion is the number of completion tokens reported by the provider
	AttrLLMTokensCompletion = "llm.tokens.completion" // #nosec G101 -- Not a credential, token refers to LLM tokens
)

// --- Agent Attributes ---

const (
	// AttrAgentName is the name of the agent being invoked
	AttrAgentName = "agent.name"

	// AttrAgentInvocationID identifies a single invocation
	AttrAgentInvocationID = "agent.invocation.id"

	// AttrAgentDependencies is the number of dependencies awaited by an invocation
	AttrAgentDependencies = "agent.dependencies"

	// AttrAgentFailedDependencies is the number of dependencies that failed
	AttrAgentFailedDependencies = "agent.dependencies.failed"

	// AttrAgentHistoryLength is the number of messages in the agent history
	AttrAgentHistoryLength = "agent.history.length"
)

// --- Request/Response Attributes ---

const (
	// AttrRequestMessagesCount is the number of messages in the request
	AttrRequestMessagesCount = "request.messages_count"

	// AttrResponseContent is the response content from the model
	AttrResponseContent = "response.content"
)

// --- Grounding Attributes ---

const (
	// AttrGroundingQuery is the web search query
	AttrGroundingQuery = "grounding.query"

	// AttrGroundingRequested is the number of documents requested
	AttrGroundingRequested = "grounding.requested"

	// AttrGroundingCandidates is the number of search candidates after the blocklist
	AttrGroundingCandidates = "grounding.candidates"

	// AttrGroundingReturned is the number of documents returned
	AttrGroundingReturned = "grounding.returned"

	// AttrFetchURL is the URL being fetched
	AttrFetchURL = "fetch.url"
)

// --- Store Attributes ---

const (
	// AttrStoreBackend is the similarity store backend ("postgres" or "chromem")
	AttrStoreBackend = "store.backend"

	// AttrStoreNamespace is the namespace of a store operation
	AttrStoreNamespace = "store.namespace"

	// AttrStoreResults is the number of rows returned by a search
	AttrStoreResults = "store.results"
)

// --- HTTP Attributes ---

const (
	// AttrHTTPMethod is the HTTP method (GET, POST, etc.)
	AttrHTTPMethod = "http.method"

	// AttrHTTPStatusCode is the HTTP response status code
	AttrHTTPStatusCode = "http.status_code"

	// AttrHTTPURL is the full request URL
	AttrHTTPURL = "http.url"

	// AttrHTTPRequestBodySize is the request body size in bytes
	AttrHTTPRequestBodySize = "http.request.body.size"

	// AttrHTTPResponseBodySize is the response body size in bytes
	AttrHTTPResponseBodySize = "http.response.body.size"

	// AttrHTTPDuration is the round-trip time of the request
	AttrHTTPDuration = "http.duration"
)

// --- General Attributes ---

const (
	// AttrError is the error message
	AttrError = "error"

	// AttrDuration is the operation duration
	AttrDuration = "duration"

	// AttrStatus is the operation status
	AttrStatus = "status"

	// AttrStatusDescription is the status description
	AttrStatusDescription = "status_description"
)

// --- Span Names ---

const (
	// SpanDispatch is the span name for a single inference dispatch
	SpanDispatch = "dispatch.send"

	// SpanAgentInvocation is the span name for an agent invocation
	SpanAgentInvocation = "agent.invocation"

	// SpanGrounding is the span name for a web grounding run
	SpanGrounding = "grounding.search"

	// SpanStoreOperation is the span name for similarity store operations
	SpanStoreOperation = "store.operation"
)

// --- Event Names ---

const (
	// EventDependenciesResolved marks the end of the fan-in for an invocation
	EventDependenciesResolved = "agent.dependencies.resolved"

	// EventSearchCompleted marks the return of search candidates
	EventSearchCompleted = "grounding.search.completed"

	// EventFetchFailed marks a fetch that degraded to an empty result
	EventFetchFailed = "grounding.fetch.failed"
)

// --- Metric Names ---

const (
	// MetricDispatchCount is the counter for dispatches, labeled with status
	MetricDispatchCount = "mule.dispatch.count"

	// MetricDispatchDuration is the histogram for dispatch duration in milliseconds
	MetricDispatchDuration = "mule.dispatch.duration"

	// MetricGroundingDocuments is the counter for documents returned by grounding
	MetricGroundingDocuments = "mule.grounding.documents"

	// MetricFetchFailures is the counter for fetches that failed
	MetricFetchFailures = "mule.fetch.failures"

	// MetricAgentInvocations is the counter for completed invocations, labeled with status
	MetricAgentInvocations = "mule.agent.invocations"
)
