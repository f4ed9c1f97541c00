// Package metrics defines the Collector interface for recording OAuth2
// flow metrics and its Prometheus and no-op implementations.
package metrics

// Collector records OAuth2 flow events.
type Collector interface {
	// AuthorizationStarted counts authorization URLs handed out
	AuthorizationStarted()

	// StateValidated counts callback state checks
	StateValidated(valid bool)

	// TokenExchanged counts code exchanges by result ("success" or an error code)
	TokenExchanged(result string)

	// TokenRefreshed counts refresh attempts by result ("success" or an error code)
	TokenRefreshed(result string)

	// ErrorRecorded counts classified errors
	ErrorRecorded(category, code string)
}

// Result labels shared by collectors.
const (
	ResultSuccess = "success"
)
