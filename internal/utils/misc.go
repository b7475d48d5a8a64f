package utils

// Allowed as an extra CORS origin when the high-security flag is off.
const CORSLowSecurityAllowedOriginLocalhost = "http://localhost:3000"

func Ptr[T any](v T) *T {
	return &v
}

func Val[T any](p *T) T {
	if p != nil {
		return *p
	}
	var zero T
	return zero
}
