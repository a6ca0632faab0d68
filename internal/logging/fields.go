package logging

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	FieldService     = "service"
	FieldModule      = "module"
	FieldClientToken = "client_token"
)
