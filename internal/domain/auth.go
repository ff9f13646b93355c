package domain

// SubjectType differentiates operator vs integration tokens.
type SubjectType string

const (
	// SubjectTypeOperator is an authenticated staff member.
	SubjectTypeOperator SubjectType = "OPERATOR"
	// SubjectTypeIntegration is a trusted collaborator such as the chat front-end.
	SubjectTypeIntegration SubjectType = "INTEGRATION"
)
