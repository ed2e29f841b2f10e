package outcome

import "strings"

// 拒赔原因固定分类
const (
	DenialInsufficientEvidence      = "insufficient_evidence"
	DenialPolicyViolation           = "policy_violation"
	DenialPastDeadline              = "past_deadline"
	DenialAlreadyReimbursed         = "already_reimbursed"
	DenialInvestigationInconclusive = "investigation_inconclusive"
	DenialDuplicateClaim            = "duplicate_claim"
	DenialOther                     = "other"
)

// denialRule 单条归一化规则
type denialRule struct {
	reason   string
	keywords []string
}

// 规则顺序即匹配顺序，首个命中生效
var denialRules = []denialRule{
	{DenialInsufficientEvidence, []string{"insufficient", "evidence", "documentation", "proof"}},
	{DenialPolicyViolation, []string{"policy", "violation", "not eligible", "ineligible"}},
	{DenialPastDeadline, []string{"deadline", "too late", "expired", "time limit"}},
	{DenialAlreadyReimbursed, []string{"already reimbursed", "already credited", "previously reimbursed"}},
	{DenialInvestigationInconclusive, []string{"inconclusive", "unable to confirm", "could not verify"}},
	{DenialDuplicateClaim, []string{"duplicate", "already filed", "existing claim"}},
}

// NormalizeDenialReason 自由文本拒赔原因归一化到固定分类
// 按固定规则顺序做关键词匹配，首个命中即返回；全不命中归入 other
func NormalizeDenialReason(raw string) string {
	if raw == "" {
		return DenialOther
	}
	lowered := strings.ToLower(raw)
	for _, rule := range denialRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lowered, kw) {
				return rule.reason
			}
		}
	}
	return DenialOther
}
