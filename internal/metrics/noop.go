package metrics

// NoopCollector is a no-op implementation of the Collector interface.
type NoopCollector struct{}

// AuthorizationStarted is a no-op.
func (n *NoopCollector) AuthorizationStarted() {}

// StateValidated is a no-op.
func (n *NoopCollector) StateValidated(valid bool) {}

// TokenExchanged is a no-op.
func (n *NoopCollector) TokenExchanged(result string) {}

// TokenRefreshed is a no-op.
func (n *NoopCollector) TokenRefreshed(result string) {}

// ErrorRecorded is a no-op.
func (n *NoopCollector) ErrorRecorded(category, code string) {}
