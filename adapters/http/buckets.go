package authhttp

// Bucket names used by the verification endpoints.
const (
	RLFlowOpen   = "verify_flow_open"
	RLFlowRead   = "verify_flow_read"
	RLFlowPhone  = "verify_flow_phone"
	RLFlowCode   = "verify_flow_code"
	RLFlowResend = "verify_flow_resend"
	RLFlowCancel = "verify_flow_cancel"
)
