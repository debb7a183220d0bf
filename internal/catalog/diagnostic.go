package catalog

// DiagnosticKind names a non-fatal per-channel condition.
type DiagnosticKind string

const (
	NotMulticast        DiagnosticKind = "not_multicast"
	ProbeTimeout        DiagnosticKind = "probe_timeout"
	ProbeNoRedirect     DiagnosticKind = "no_redirect"
	PlaybackUnreachable DiagnosticKind = "playback_unreachable"
)

// Diagnostic is one non-fatal condition recorded for the end-of-batch report.
type Diagnostic struct {
	Kind    DiagnosticKind
	Channel string
	Message string
}

func (d Diagnostic) String() string {
	return d.Channel + ": " + d.Message
}
