package constants

// Static route constants
const (
	ShopRoute     = "/shop"
	CheckoutPath  = "/checkout"
	WebhookPath   = "/webhook"
	SuccessPath   = "/success"
	CancelPath    = "/cancel"
	HealthPath    = "/health"
	MetricsRoute  = "/metrics"
	OutcomesRoute = "/metrics/webhooks"
	DocsBasePath  = "/docs/api/"
	DocsSpecFile  = "public/docs/v1/openapi.yml"
	DocsVersionID = "v1"
)
