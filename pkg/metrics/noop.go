package metrics

import "time"

// Noop discards every recording. Useful for tests and hosts that don't
// want a metrics backend wired in.
var Noop Collector = noopCollector{}

type noopCollector struct{}

func (noopCollector) RecordRequest(method string, d time.Duration, outcome string) {}
func (noopCollector) RecordError(kind string)                                      {}
func (noopCollector) RecordAuthEvent(eventKind, keyID string)                       {}
func (noopCollector) RecordViolation(kind string)                                   {}
func (noopCollector) RecordKeyEvent(event string, keyID string, metadata map[string]string) {
}
