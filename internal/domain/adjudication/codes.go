package adjudication

// Message codes referenced by the engines. The persisted catalog is seeded
// by migration; this table backs default message text.
const (
	CodeAutoApproved          = "APPR001"
	CodeManualApproved        = "APPR002"
	CodeBeneficiaryInactive   = "BENF001"
	CodeBenefitsNotStarted    = "BENF002"
	CodeBeneficiarySuspended  = "BENF003"
	CodeBeneficiaryTerminated = "BENF004"
	CodeEligibilityConfirmed  = "BENF100"
	CodeAmountReduced         = "LIMT001"
	CodeAnnualLimitExceeded   = "LIMT002"
	CodeServiceNotCovered     = "SERV001"
	CodeReferralRequired      = "SERV002"
	CodePackageNotCovered     = "PACK002"
	CodeWaitingPeriod         = "PACK003"
	CodeCopaymentApplied      = "PACK004"
	CodeAgeRestriction        = "AGER001"
	CodeProviderInactive      = "PROV001"
	CodeProviderSuspended     = "PROV002"
	CodeMissingDocuments      = "PROV004"
	CodeExpiredDocuments      = "PROV005"
	CodeAuthRequired          = "AUTH001"
	CodeAuthValid             = "AUTH002"
	CodeAuthExpired           = "AUTH003"
	CodeAuthExhausted         = "AUTH004"
	CodeAuthPartial           = "AUTH005"
	CodeStaleServiceDate      = "TIME001"
	CodeFutureServiceDate     = "TIME002"
	CodeDuplicateClaim        = "FRAU001"
	CodeHighFrequency         = "FRAU002"
	CodeAnomalousAmount       = "FRAU003"
	CodeProviderVolume        = "FRAU004"
	CodeBalanceReduced        = "ACCT001"
	CodeInsufficientBalance   = "ACCT002"
	CodeAccountMissing        = "ACCT003"
	CodePolicyExclusion       = "DECL002"
	CodeManualDecline         = "DECL003"
	CodeManualReview          = "REVW001"
	CodeClinicalReview        = "REVW002"
)

// DefaultCatalog is the built-in message-code catalog, mirrored by the
// seed migration.
var DefaultCatalog = []MessageCode{
	{CodeAutoApproved, "Claim approved automatically", SeverityInfo, true, true},
	{CodeManualApproved, "Claim approved by reviewer", SeverityInfo, true, true},
	{CodeBeneficiaryInactive, "Beneficiary is not active", SeverityError, true, true},
	{CodeBenefitsNotStarted, "Benefits have not started", SeverityError, true, true},
	{CodeBeneficiarySuspended, "Beneficiary is suspended", SeverityError, true, true},
	{CodeBeneficiaryTerminated, "Beneficiary is terminated", SeverityError, true, true},
	{CodeEligibilityConfirmed, "Beneficiary eligibility confirmed", SeverityInfo, true, false},
	{CodeAmountReduced, "Claimed amount reduced", SeverityWarning, true, true},
	{CodeAnnualLimitExceeded, "Annual benefit limit exhausted", SeverityError, true, true},
	{CodeServiceNotCovered, "Service not covered", SeverityError, true, true},
	{CodeReferralRequired, "Referral required for service", SeverityError, true, true},
	{CodePackageNotCovered, "Service not covered under package", SeverityError, true, true},
	{CodeWaitingPeriod, "Package waiting period not served", SeverityError, true, true},
	{CodeCopaymentApplied, "Co-payment applied", SeverityInfo, true, true},
	{CodeAgeRestriction, "Service restricted by age", SeverityError, true, true},
	{CodeProviderInactive, "Provider is not active", SeverityError, true, false},
	{CodeProviderSuspended, "Provider is suspended", SeverityError, true, false},
	{CodeMissingDocuments, "Provider has missing documents", SeverityWarning, true, false},
	{CodeExpiredDocuments, "Provider has expired documents", SeverityWarning, true, false},
	{CodeAuthRequired, "Prior authorization required", SeverityError, true, true},
	{CodeAuthValid, "Valid authorization on file", SeverityInfo, true, false},
	{CodeAuthExpired, "Authorization has expired", SeverityError, true, true},
	{CodeAuthExhausted, "Authorization fully utilized", SeverityError, true, true},
	{CodeAuthPartial, "Amount capped at authorized balance", SeverityWarning, true, true},
	{CodeStaleServiceDate, "Service date too old", SeverityError, true, true},
	{CodeFutureServiceDate, "Service date in the future", SeverityError, true, true},
	{CodeDuplicateClaim, "Possible duplicate claim", SeverityWarning, false, false},
	{CodeHighFrequency, "High claim frequency", SeverityWarning, false, false},
	{CodeAnomalousAmount, "Claimed amount anomalous for beneficiary", SeverityWarning, false, false},
	{CodeProviderVolume, "Provider daily claim volume exceeded", SeverityWarning, false, false},
	{CodeBalanceReduced, "Amount reduced to available balance", SeverityWarning, true, true},
	{CodeInsufficientBalance, "Insufficient account balance", SeverityError, true, true},
	{CodeAccountMissing, "Member account not found", SeverityError, false, false},
	{CodePolicyExclusion, "Declined by policy exclusion", SeverityError, true, true},
	{CodeManualDecline, "Claim declined by reviewer", SeverityError, true, true},
	{CodeManualReview, "Manual review required", SeverityWarning, true, false},
	{CodeClinicalReview, "Clinical review required", SeverityWarning, true, false},
}

var catalogByCode = func() map[string]MessageCode {
	m := make(map[string]MessageCode, len(DefaultCatalog))
	for _, c := range DefaultCatalog {
		m[c.Code] = c
	}
	return m
}()

// CodeTitle returns the catalog title for a code, or the code itself when
// unknown.
func CodeTitle(code string) string {
	if c, ok := catalogByCode[code]; ok {
		return c.Title
	}
	return code
}
