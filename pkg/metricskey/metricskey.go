package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	// StatsLLMMessagesSent is base for counter metric for total messages sent to LLM
	StatsLLMMessagesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_messages_sent",
		Help:         "stats_llm_messages_sent provides total messages sent to LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMInputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_input_tokens",
		Help:         "stats_llm_input_tokens provides total input tokens sent to LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsLLMOutputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_output_tokens",
		Help:         "stats_llm_output_tokens provides total output tokens received from LLM",
		RequiredTags: []string{"agent", "model"},
	}

	StatsQueriesSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_queries_succeeded",
		Help:         "stats_queries_succeeded provides total user queries answered",
		RequiredTags: []string{"agent"},
	}

	StatsQueriesFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_queries_failed",
		Help:         "stats_queries_failed provides total user queries failed",
		RequiredTags: []string{"agent"},
	}

	StatsTurnLimitExceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_turn_limit_exceeded",
		Help:         "stats_turn_limit_exceeded provides total queries aborted at the turn ceiling",
		RequiredTags: []string{"agent"},
	}

	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_succeeded",
		Help:         "stats_tool_calls_succeeded provides total tool calls succeeded",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_failed",
		Help:         "stats_tool_calls_failed provides total tool calls failed",
		RequiredTags: []string{"tool"},
	}

	StatsSessionsStarted = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_sessions_started",
		Help:         "stats_sessions_started provides total provider sessions started",
		RequiredTags: []string{"server"},
	}

	StatsSessionsLost = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_sessions_lost",
		Help:         "stats_sessions_lost provides total provider sessions lost",
		RequiredTags: []string{"server"},
	}
)

// Perf
var (
	PerfQueryRun = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_query_run",
		Help:         "perf_query_run provides duration of a user query",
		RequiredTags: []string{"agent"},
	}

	PerfModelCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_model_call",
		Help:         "perf_model_call provides duration of a model call",
		RequiredTags: []string{"agent", "model"},
	}

	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_call",
		Help:         "perf_tool_call provides duration of tool call",
		RequiredTags: []string{"tool"},
	}

	PerfProviderStartup = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_provider_startup",
		Help:         "perf_provider_startup provides duration of provider startup and discovery",
		RequiredTags: []string{"server"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfModelCall,
	&PerfProviderStartup,
	&PerfQueryRun,
	&PerfToolCall,
	&StatsLLMInputTokens,
	&StatsLLMMessagesSent,
	&StatsLLMOutputTokens,
	&StatsQueriesFailed,
	&StatsQueriesSucceeded,
	&StatsSessionsLost,
	&StatsSessionsStarted,
	&StatsToolCallsFailed,
	&StatsToolCallsSucceeded,
	&StatsTurnLimitExceeded,
}
